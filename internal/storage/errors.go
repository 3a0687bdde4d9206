package storage

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can decide how to report it.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidConfig
	KindInvalidPattern
	KindAuthentication
	KindTransport
	KindFilesystem
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalidConfig:
		return "invalid configuration"
	case KindInvalidPattern:
		return "invalid pattern"
	case KindAuthentication:
		return "authentication"
	case KindTransport:
		return "transport"
	case KindFilesystem:
		return "filesystem"
	case KindNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// Error is a classified error. Op names the operation that failed, e.g. "list blobs in logs".
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError wraps err with a kind and operation.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
