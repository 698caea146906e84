// Package contextpath implements the hierarchical addressing scheme used
// to identify device sub-contexts, e.g. "mppt.3" or "storage". A path is
// one or more dot-separated non-empty segments: the first segment is the
// context id, the rest are subcontext parts. Everything here is pure
// lexical work with no registry lookup or I/O.
package contextpath

import (
	"strconv"
	"strings"
	"unicode"
)

// Parse splits a path into its context id and subcontext parts. Paths
// without subcontexts return nil parts. An empty path returns an empty
// id.
func Parse(path string) (string, []string) {
	if path == "" {
		return "", nil
	}
	parts := strings.Split(path, ".")
	if len(parts) <= 1 {
		return path, nil
	}
	return parts[0], parts[1:]
}

// Build is the inverse of Parse: it joins the context id and subcontext
// parts with dots, returning the id unchanged when there are no parts.
func Build(contextID string, subParts []string) string {
	if len(subParts) == 0 {
		return contextID
	}
	return contextID + "." + strings.Join(subParts, ".")
}

// IsValid reports whether every dot-separated segment of the path is
// non-empty.
func IsValid(path string) bool {
	if path == "" {
		return false
	}
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return false
		}
	}
	return true
}

// Type extracts the leading alphabetic run of the first segment,
// lower-cased: Type("mppt.3") == "mppt". Returns "unknown" for empty
// input or when the first segment has no alphabetic characters.
func Type(path string) string {
	if path == "" {
		return "unknown"
	}
	first, _ := Parse(path)
	var b strings.Builder
	for _, r := range first {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return strings.ToLower(b.String())
}

// Index extracts the numeric component of a path: the digit run inside
// the first segment, or the second segment when it is purely numeric.
// The second return value is false when neither yields digits.
func Index(path string) (int, bool) {
	if path == "" {
		return 0, false
	}
	parts := strings.Split(path, ".")
	var b strings.Builder
	for _, r := range parts[0] {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		n, err := strconv.Atoi(b.String())
		if err == nil {
			return n, true
		}
	}
	if len(parts) > 1 && isNumeric(parts[1]) {
		if n, err := strconv.Atoi(parts[1]); err == nil {
			return n, true
		}
	}
	return 0, false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
