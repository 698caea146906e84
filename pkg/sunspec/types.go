// Package sunspec holds the static catalog of SunSpec-style data models
// used to coerce, format and validate point values reported by MCP
// devices.
package sunspec

// DataType is the closed set of point value types a model may declare.
type DataType int

const (
	TypeUnknown DataType = iota
	TypeFloat
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint16
	TypeUint32
	TypeUint64
	TypeEnum16
	TypeString
	TypeBool
)

// ParseDataType maps a wire type name to its DataType. Unrecognised
// names map to TypeUnknown.
func ParseDataType(name string) DataType {
	switch name {
	case "float":
		return TypeFloat
	case "int16":
		return TypeInt16
	case "int32":
		return TypeInt32
	case "int64":
		return TypeInt64
	case "uint16":
		return TypeUint16
	case "uint32":
		return TypeUint32
	case "uint64":
		return TypeUint64
	case "enum16", "enum":
		return TypeEnum16
	case "string":
		return TypeString
	case "boolean", "bool":
		return TypeBool
	}
	return TypeUnknown
}

// String returns the wire name of the type.
func (t DataType) String() string {
	switch t {
	case TypeFloat:
		return "float"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeEnum16:
		return "enum16"
	case TypeString:
		return "string"
	case TypeBool:
		return "boolean"
	}
	return "unknown"
}

// Signed reports whether the type is a signed integer.
func (t DataType) Signed() bool {
	return t == TypeInt16 || t == TypeInt32 || t == TypeInt64
}

// Unsigned reports whether the type is an unsigned integer.
func (t DataType) Unsigned() bool {
	return t == TypeUint16 || t == TypeUint32 || t == TypeUint64
}

// Integer reports whether the type coerces to an integer, enums
// included.
func (t DataType) Integer() bool {
	return t.Signed() || t.Unsigned() || t == TypeEnum16
}

// AccessMode is a point's read/write permission.
type AccessMode string

const (
	AccessRead      AccessMode = "R"
	AccessWrite     AccessMode = "W"
	AccessReadWrite AccessMode = "RW"
)

// Writable reports whether the mode permits writes.
func (m AccessMode) Writable() bool {
	return m == AccessWrite || m == AccessReadWrite
}

// PointDef declares one point of a model.
type PointDef struct {
	Name        string
	Type        DataType
	Unit        string
	Access      AccessMode
	Description string
}

// Model is one entry of the model catalog.
type Model struct {
	ID          int
	Name        string
	Description string
	Points      map[string]PointDef
}
