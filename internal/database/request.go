package database

import "time"

// Request is a structured statement with an optional per-call query timeout.
// The override applies to execution only; acquisition always uses the
// guard's acquire timeout.
type Request struct {
	SQL  string
	Args []any

	timeout    time.Duration
	hasTimeout bool
}

// NewRequest builds a Request that uses the guard's default query timeout.
func NewRequest(sql string, args ...any) Request {
	return Request{SQL: sql, Args: args}
}

// WithTimeout returns a copy of r whose execution is bounded by d instead of
// the default. A zero d is honoured as an immediate timeout.
func (r Request) WithTimeout(d time.Duration) Request {
	r.timeout = d
	r.hasTimeout = true
	return r
}

// Timeout returns the per-call override, if any.
func (r Request) Timeout() (time.Duration, bool) {
	return r.timeout, r.hasTimeout
}

func (r Request) effectiveTimeout(def time.Duration) time.Duration {
	if r.hasTimeout {
		return r.timeout
	}
	return def
}
