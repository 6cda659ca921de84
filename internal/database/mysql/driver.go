// Package mysql implements database.Pool on top of database/sql and
// go-sql-driver/mysql.
//
// Usage:
//
//	guard, err := mysql.Connect(ctx, cfg, log)
//	if err != nil { ... }
//	defer guard.Close()
//
//	res, err := guard.Query(ctx, "SELECT 1")
package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"

	"github.com/koustreak/dbguard/internal/database"
	"github.com/koustreak/dbguard/internal/logger"
)

// errConnClosed is returned by a query started after its connection was
// released or destroyed.
var errConnClosed = errors.New("mysql: connection already released")

// Pool is a MySQL implementation of database.Pool backed by *sql.DB.
// It is safe for concurrent use by multiple goroutines.
type Pool struct {
	db *sql.DB
}

// New builds the pool. Connections are opened lazily, so an unreachable
// server surfaces on first use, bounded by the guard's acquire timeout.
func New(cfg *database.Config) (*Pool, error) {
	db, err := buildPool(cfg)
	if err != nil {
		return nil, err
	}
	return &Pool{db: db}, nil
}

// Connect builds a pool from cfg and wraps it in a Guard.
func Connect(ctx context.Context, cfg *database.Config, log *logger.Logger) (*database.Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.FromContext(ctx)
	}
	return database.NewGuard(p, cfg.Timeouts(), log.With().Str("driver", "mysql").Logger()), nil
}

// --- database.Pool implementation ---

// Acquire borrows a connection and records its server thread id.
func (p *Pool) Acquire(ctx context.Context) (database.Conn, error) {
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	var id uint64
	if err := c.QueryRowContext(ctx, "SELECT CONNECTION_ID()").Scan(&id); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &conn{c: c, id: id}, nil
}

// Query runs sql on any free connection.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (*database.Result, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return database.ScanRows(&mysqlRows{rows: rows})
}

// KillQuery returns KILL <id>. The id is an integer, so it is formatted
// directly rather than escaped.
func (p *Pool) KillQuery(threadID uint64) (string, []any) {
	return fmt.Sprintf("KILL %d", threadID), nil
}

func (p *Pool) Stats() database.Stats {
	s := p.db.Stats()
	return database.Stats{
		MaxOpen:      s.MaxOpenConnections,
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
}

// Ping verifies the server is reachable.
func (p *Pool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Pool) Close() error {
	return p.db.Close()
}

// DB returns the underlying *sql.DB (for advanced use)
func (p *Pool) DB() *sql.DB {
	return p.db
}

// --- database.Conn implementation ---

// conn is one borrowed *sql.Conn. database/sql serialises Close against an
// in-flight query, so Release and Destroy defer their work until the query
// has returned instead of blocking the caller. Once either has been called
// Query refuses to start.
type conn struct {
	c  *sql.Conn
	id uint64

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *conn) Query(ctx context.Context, query string, args ...any) (*database.Result, error) {
	qctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return nil, errConnClosed
	}
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	defer func() {
		cancel()
		close(done)
	}()

	rows, err := c.c.QueryContext(qctx, query, args...)
	if err != nil {
		return nil, err
	}
	return database.ScanRows(&mysqlRows{rows: rows})
}

func (c *conn) ThreadID() (uint64, bool) {
	return c.id, c.id != 0
}

func (c *conn) Release() {
	c.finish(false, func() {
		_ = c.c.Close()
	})
}

// Destroy cancels the in-flight query, which makes the driver close the
// socket, then discards the connection so the pool never hands it out again.
func (c *conn) Destroy() {
	c.finish(true, func() {
		_ = c.c.Raw(func(any) error { return driver.ErrBadConn })
		_ = c.c.Close()
	})
}

// finish marks the conn closed and runs fn once no query is in flight.
// Only the first call has any effect.
func (c *conn) finish(cancelQuery bool, fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancelQuery && cancel != nil {
		cancel()
	}
	afterQuery(done, fn)
}

// afterQuery runs fn now if done is nil or closed, otherwise once it closes.
func afterQuery(done <-chan struct{}, fn func()) {
	if done == nil {
		fn()
		return
	}
	select {
	case <-done:
		fn()
	default:
		go func() {
			<-done
			fn()
		}()
	}
}

// --- sql.Rows wrapper ---

type mysqlRows struct{ rows *sql.Rows }

func (r *mysqlRows) Next() bool                 { return r.rows.Next() }
func (r *mysqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *mysqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *mysqlRows) Close()                     { _ = r.rows.Close() }
func (r *mysqlRows) Err() error                 { return r.rows.Err() }
