package database

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koustreak/dbguard/internal/logger"
)

// Guard decorates a Pool so that every statement is bounded twice: once
// while waiting for a connection and once while the statement runs.
// It is safe for concurrent use by multiple goroutines.
type Guard struct {
	pool Pool
	cfg  TimeoutConfig
	log  *logger.Logger

	// kills tracks in-flight kill statements so Close can let them land.
	// mu orders kills.Add against closing so no Add races Close's Wait.
	mu      sync.Mutex
	closing bool
	kills   sync.WaitGroup

	connectTimeouts atomic.Uint64
	queryTimeouts   atomic.Uint64
	killsIssued     atomic.Uint64
	killsSkipped    atomic.Uint64
}

// GuardStats combines pool counters with the guard's own.
type GuardStats struct {
	Pool            Stats  `json:"pool"`
	ConnectTimeouts uint64 `json:"connect_timeouts"`
	QueryTimeouts   uint64 `json:"query_timeouts"`
	KillsIssued     uint64 `json:"kills_issued"`
	KillsSkipped    uint64 `json:"kills_skipped"`
}

// NewGuard wraps pool. A nil log discards guard logging.
func NewGuard(pool Pool, cfg TimeoutConfig, log *logger.Logger) *Guard {
	if log == nil {
		log = logger.Nop()
	}
	return &Guard{pool: pool, cfg: cfg, log: log}
}

// Config returns the timeouts the guard was built with.
func (g *Guard) Config() TimeoutConfig {
	return g.cfg
}

// Query runs sql under the default query timeout.
func (g *Guard) Query(ctx context.Context, sql string, args ...any) (*Result, error) {
	return g.Do(ctx, NewRequest(sql, args...))
}

// Do runs req. The error is either the driver's own error, unchanged, or a
// *TimeoutError naming the phase that ran out of time.
func (g *Guard) Do(ctx context.Context, req Request) (*Result, error) {
	conn, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}

	timeout := req.effectiveTimeout(g.cfg.QueryTimeout)

	destroyed := false
	defer func() {
		if !destroyed {
			conn.Release()
		}
	}()

	res, err := Race(ctx, OpQuery, timeout, func() (*Result, error) {
		return conn.Query(ctx, req.SQL, req.Args...)
	}, nil)
	if err != nil {
		if IsTimeout(err, OpQuery) {
			destroyed = true
			g.queryTimeouts.Add(1)
			g.log.WarnWith("query timed out", map[string]interface{}{
				"timeout_ms": timeout.Milliseconds(),
			})
			g.kill(conn)
		}
		return nil, err
	}
	return res, nil
}

// acquire borrows a connection under the acquire timeout. A connection that
// arrives after the caller has given up is released straight back.
func (g *Guard) acquire(ctx context.Context) (Conn, error) {
	conn, err := Race(ctx, OpConnect, g.cfg.AcquireTimeout, func() (Conn, error) {
		return g.pool.Acquire(ctx)
	}, g.reclaim)
	if IsTimeout(err, OpConnect) {
		g.connectTimeouts.Add(1)
		g.log.WarnWith("connection acquisition timed out", map[string]interface{}{
			"timeout_ms": g.cfg.AcquireTimeout.Milliseconds(),
		})
	}
	return conn, err
}

func (g *Guard) reclaim(conn Conn, err error) {
	if err != nil {
		g.log.DebugWith("late acquisition failed", err, nil)
		return
	}
	conn.Release()
	g.log.Debug("late connection released")
}

// kill destroys conn and asks the server to terminate its session through a
// separate pool query. The kill is not awaited and its failure is only logged.
func (g *Guard) kill(conn Conn) {
	id, ok := conn.ThreadID()
	conn.Destroy()

	if !ok {
		g.killsSkipped.Add(1)
		g.log.Debug("thread id unknown, kill skipped")
		return
	}

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		g.killsSkipped.Add(1)
		g.log.Debug("guard closing, kill skipped")
		return
	}
	g.kills.Add(1)
	g.mu.Unlock()

	stmt, args := g.pool.KillQuery(id)
	g.killsIssued.Add(1)
	go func() {
		defer g.kills.Done()

		ctx, cancel := context.WithTimeout(context.Background(), g.killBudget())
		defer cancel()

		if _, err := g.pool.Query(ctx, stmt, args...); err != nil {
			g.log.DebugWith("kill statement failed", err, map[string]interface{}{"thread_id": id})
			return
		}
		g.log.InfoWith("killed timed out query", map[string]interface{}{"thread_id": id})
	}()
}

// killBudget bounds a kill statement by one full guarded call.
func (g *Guard) killBudget() time.Duration {
	return g.cfg.AcquireTimeout + g.cfg.QueryTimeout
}

// Stats reports pool and guard counters.
func (g *Guard) Stats() GuardStats {
	return GuardStats{
		Pool:            g.pool.Stats(),
		ConnectTimeouts: g.connectTimeouts.Load(),
		QueryTimeouts:   g.queryTimeouts.Load(),
		KillsIssued:     g.killsIssued.Load(),
		KillsSkipped:    g.killsSkipped.Load(),
	}
}

// Pool returns the decorated pool.
func (g *Guard) Pool() Pool {
	return g.pool
}

// Close waits for outstanding kill statements and then closes the pool.
// Kills triggered after Close has started are skipped.
func (g *Guard) Close() error {
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	g.kills.Wait()
	return g.pool.Close()
}
