// Package database guards a connection pool with wall-clock bounds.
//
// A Guard wraps a Pool. Every call borrows one connection under the acquire
// timeout, runs one statement under the query timeout and hands the
// connection back. When a statement outlives its bound the connection is
// destroyed and the server is told to kill the session, so a runaway query
// never pins a pool slot.
package database

import (
	"context"
	"time"
)

// Pool is the connection pool a Guard decorates. Drivers implement it;
// the guard never manages slots or queueing itself.
type Pool interface {
	// Acquire borrows a connection. It may block for as long as the
	// pool's own queue makes it wait.
	Acquire(ctx context.Context) (Conn, error)

	// Query runs a statement on any free connection. The guard uses it to
	// deliver the kill statement, never the connection being killed.
	Query(ctx context.Context, sql string, args ...any) (*Result, error)

	// KillQuery returns the statement that terminates the server session
	// identified by threadID.
	KillQuery(threadID uint64) (string, []any)

	// Stats reports pool counters as the driver exposes them.
	Stats() Stats

	// Close shuts the pool down.
	Close() error
}

// Conn is a connection borrowed from a Pool for exactly one statement.
//
// Exactly one of Release or Destroy is called per borrowed handle. Both may
// be called while a Query is still in flight: they return immediately and
// finish once that Query has returned.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (*Result, error)

	// ThreadID returns the server-side session id. ok is false when the
	// id is not known.
	ThreadID() (id uint64, ok bool)

	// Release returns the connection to the pool's free list.
	Release()

	// Destroy closes the connection and removes it from the pool.
	Destroy()
}

// Rows is an abstraction over a driver result cursor.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Close()
	Err() error
}

// Stats is a snapshot of pool counters. Fields a driver cannot report stay zero.
type Stats struct {
	MaxOpen      int           `json:"max_open"`
	Open         int           `json:"open"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
}

// Process is one server session as reported by the server's process list.
type Process struct {
	ID      uint64 `json:"id"`
	User    string `json:"user"`
	DB      string `json:"db,omitempty"`
	Command string `json:"command"`
	Time    int64  `json:"time"`
	State   string `json:"state,omitempty"`
	Info    string `json:"info,omitempty"`
}

// ProcessLister is implemented by pools that can introspect running sessions.
type ProcessLister interface {
	ProcessList(ctx context.Context) ([]Process, error)
}
