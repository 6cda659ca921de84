// Package errs provides the error taxonomy shared across dbguard.
//
// dbguard never wraps errors coming back from a database driver: callers
// receive the driver's native error unchanged. The kinds below exist so that
// logs, the HTTP surface and callers can still classify a failure without
// importing driver packages.
//
// Usage:
//
//	// Errors produced by dbguard itself:
//	return errs.New(errs.ErrKindInvalidInput, "acquire timeout must not be negative")
//
//	// In a handler, check the error kind:
//	if errs.IsTimeout(err) {
//	    w.WriteHeader(http.StatusGatewayTimeout)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing driver-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows
	ErrKindConnectionFailed         // cannot reach or authenticate to the backend
	ErrKindTimeout                  // a dbguard bound or a context deadline was exceeded
	ErrKindQueryFailed              // SQL syntax or execution error
	ErrKindInvalidInput             // bad arguments or configuration from the caller
	ErrKindPermissionDenied         // access denied
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Kinded is implemented by error types outside this package that want the
// Is* predicates to recognise them.
type Kinded interface {
	error
	Kind() ErrKind
}

// Error is the error type dbguard uses for failures it originates itself
// (configuration, invalid requests). Driver failures are never converted
// into an *Error.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by an exceeded time bound.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a SQL execution failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// KindOf extracts the ErrKind from the first *Error or Kinded error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ErrKindUnknown
}
