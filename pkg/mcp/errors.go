package mcp

import "errors"

// Transport failure categories. Each is logged with its own cause at the
// call site; callers are expected to treat them uniformly as "no
// response".
var (
	ErrTimeout           = errors.New("mcp: request timed out")
	ErrConnectionRefused = errors.New("mcp: connection refused")
	ErrEarlyClose        = errors.New("mcp: connection closed before full response")
	ErrMalformedResponse = errors.New("mcp: malformed response payload")
	ErrTransport         = errors.New("mcp: transport failure")
)
