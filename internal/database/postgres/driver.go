// Package postgres implements database.Pool on top of pgxpool.
//
// The session id used for kills is the backend PID, and the kill statement
// is pg_terminate_backend.
package postgres

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/dbguard/internal/database"
	"github.com/koustreak/dbguard/internal/logger"
)

// errConnClosed is returned by a query started after its connection was
// released or destroyed.
var errConnClosed = errors.New("postgres: connection already released")

// Pool is a PostgreSQL implementation of database.Pool backed by pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Pool struct {
	pool *pgxpool.Pool
}

// New builds the pool. pgxpool dials lazily, so an unreachable server
// surfaces on first acquisition.
func New(ctx context.Context, cfg *database.Config) (*Pool, error) {
	poolCfg, err := buildPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	return &Pool{pool: pool}, nil
}

// Connect builds a pool from cfg and wraps it in a Guard.
func Connect(ctx context.Context, cfg *database.Config, log *logger.Logger) (*database.Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.FromContext(ctx)
	}
	return database.NewGuard(p, cfg.Timeouts(), log.With().Str("driver", "postgres").Logger()), nil
}

// --- database.Pool implementation ---

func (p *Pool) Acquire(ctx context.Context) (database.Conn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &conn{c: c, pid: c.Conn().PgConn().PID()}, nil
}

func (p *Pool) Query(ctx context.Context, sql string, args ...any) (*database.Result, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return database.ScanRows(&pgxRows{rows: rows})
}

// KillQuery terminates the backend, the closest equivalent of MySQL's KILL.
func (p *Pool) KillQuery(threadID uint64) (string, []any) {
	return "SELECT pg_terminate_backend($1)", []any{int64(threadID)}
}

func (p *Pool) Stats() database.Stats {
	s := p.pool.Stat()
	return database.Stats{
		MaxOpen:      int(s.MaxConns()),
		Open:         int(s.TotalConns()),
		InUse:        int(s.AcquiredConns()),
		Idle:         int(s.IdleConns()),
		WaitCount:    s.EmptyAcquireCount(),
		WaitDuration: s.AcquireDuration(),
	}
}

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close drains the connection pool.
func (p *Pool) Close() error {
	p.pool.Close()
	return nil
}

// --- database.Conn implementation ---

// conn is one borrowed pgxpool connection. Release and Destroy hand the
// connection back only once an in-flight query has returned, and Query
// refuses to start after either has been called.
type conn struct {
	c   *pgxpool.Conn
	pid uint32

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *conn) Query(ctx context.Context, sql string, args ...any) (*database.Result, error) {
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

	rows, err := c.c.Query(qctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return database.ScanRows(&pgxRows{rows: rows})
}

func (c *conn) ThreadID() (uint64, bool) {
	return uint64(c.pid), c.pid != 0
}

func (c *conn) Release() {
	c.finish(false, c.c.Release)
}

// Destroy cancels the in-flight query and takes the connection out of the
// pool for good once that query has returned. Closing the socket happens in
// the background.
func (c *conn) Destroy() {
	c.finish(true, func() {
		pgc := c.c.Hijack()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
			defer cancel()
			_ = pgc.Close(ctx)
		}()
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

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Close()                 { r.rows.Close() }
func (r *pgxRows) Err() error             { return r.rows.Err() }

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}
