package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/koustreak/dbguard/internal/errs"
)

// Operation names the guarded phase that exceeded its bound.
type Operation string

const (
	OpConnect Operation = "connect"
	OpQuery   Operation = "query"
)

// TimeoutError is returned when a guarded phase loses its race against the
// clock. It is the only error dbguard creates on the query path; every other
// failure is the driver's own error, returned unchanged.
type TimeoutError struct {
	Operation Operation
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Database %s timed out after %dms", e.Operation, e.Timeout.Milliseconds())
}

// Kind reports errs.ErrKindTimeout so errs.IsTimeout recognises the error.
func (e *TimeoutError) Kind() errs.ErrKind {
	return errs.ErrKindTimeout
}

// IsTimeout reports whether err is a *TimeoutError for the given operation.
func IsTimeout(err error, op Operation) bool {
	te, ok := AsTimeout(err)
	return ok && te.Operation == op
}

// AsTimeout extracts the *TimeoutError from err's chain.
func AsTimeout(err error) (*TimeoutError, bool) {
	var te *TimeoutError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
