package syncer

import "fmt"

// ErrorKind classifies a failed operation per the hub's error taxonomy.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindProtocol
	KindValidation
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindValidation:
		return "validation"
	case KindPersistence:
		return "persistence"
	}
	return "unknown"
}

// Error is a typed operation failure returned to callers of the write
// path. Message carries the device's protocol error verbatim when there
// is one.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("syncer: %s: %s: %s", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("syncer: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: "no response from device", Err: err}
}

func protocolError(message string) *Error {
	return &Error{Kind: KindProtocol, Message: message}
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func persistenceError(err error) *Error {
	return &Error{Kind: KindPersistence, Message: "store operation failed", Err: err}
}
