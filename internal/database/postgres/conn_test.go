package postgres

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dbguard/internal/database"
)

const stubPID = 4242

// handshakeServer completes the startup handshake for every connection and
// then never answers a query.
func handshakeServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
			go serveHandshake(c)
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	port := ln.Addr().(*net.TCPAddr).Port
	return "postgres://postgres@127.0.0.1:" + strconv.Itoa(port) + "/postgres?sslmode=disable"
}

func serveHandshake(c net.Conn) {
	defer c.Close()

	backend := pgproto3.NewBackend(c, c)
	msg, err := backend.ReceiveStartupMessage()
	if err != nil {
		return
	}
	if _, ok := msg.(*pgproto3.StartupMessage); !ok {
		return
	}

	backend.Send(&pgproto3.AuthenticationOk{})
	backend.Send(&pgproto3.BackendKeyData{ProcessID: stubPID, SecretKey: 1})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	if err := backend.Flush(); err != nil {
		return
	}

	for {
		if _, err := backend.Receive(); err != nil {
			return
		}
	}
}

func stubPool(t *testing.T) *Pool {
	t.Helper()

	cfg := database.DefaultConfig(database.DriverPostgres, handshakeServer(t))
	cfg.ConnectionLimit = 2
	cfg.MinConns = 0
	cfg.ConnectTimeout = time.Second

	p, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return p
}

func TestConn_QueryAfterReleaseOrDestroy(t *testing.T) {
	tests := []struct {
		name   string
		finish func(c database.Conn)
	}{
		{name: "release", finish: func(c database.Conn) { c.Release() }},
		{name: "destroy", finish: func(c database.Conn) { c.Destroy() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := stubPool(t)
			defer p.Close()

			c, err := p.Acquire(context.Background())
			require.NoError(t, err)
			id, ok := c.ThreadID()
			require.True(t, ok)
			assert.Equal(t, uint64(stubPID), id)

			tt.finish(c)

			start := time.Now()
			_, err = c.Query(context.Background(), "SELECT pg_sleep(5)")

			assert.ErrorIs(t, err, errConnClosed)
			assert.Less(t, time.Since(start), 100*time.Millisecond)
		})
	}
}

func TestConn_DestroyDuringQueryDoesNotBlock(t *testing.T) {
	p := stubPool(t)
	defer p.Close()

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := c.Query(context.Background(), "SELECT pg_sleep(5)")
		errc <- err
	}()
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	c.Destroy()
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight query was not cancelled")
	}
	assert.Eventually(t, func() bool { return p.Stats().InUse == 0 }, time.Second, 10*time.Millisecond)
}

// cancellingPool cancels the caller's context as soon as a connection has
// been handed out, so the guard gives the connection back before the query
// goroutine gets to run.
type cancellingPool struct {
	*Pool
	cancel context.CancelFunc
}

func (p *cancellingPool) Acquire(ctx context.Context) (database.Conn, error) {
	c, err := p.Pool.Acquire(ctx)
	p.cancel()
	return c, err
}

func TestGuard_CancelRightAfterAcquire(t *testing.T) {
	cp := &cancellingPool{Pool: stubPool(t)}
	guard := database.NewGuard(cp, database.TimeoutConfig{
		AcquireTimeout: 2 * time.Second,
		QueryTimeout:   2 * time.Second,
	}, nil)
	defer guard.Close()

	for i := 0; i < 300; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cp.cancel = cancel

		_, err := guard.Query(ctx, "SELECT pg_sleep(5)")

		require.ErrorIs(t, err, context.Canceled, "iteration %d", i)
	}

	assert.Eventually(t, func() bool { return cp.Stats().InUse == 0 }, 2*time.Second, 10*time.Millisecond)
}

// localKillPool answers the kill statement itself, since the stub server
// never answers anything.
type localKillPool struct {
	*Pool
	kills atomic.Int32
}

func (p *localKillPool) Query(context.Context, string, ...any) (*database.Result, error) {
	p.kills.Add(1)
	return &database.Result{}, nil
}

func TestGuard_ZeroTimeoutDestroysSafely(t *testing.T) {
	p := &localKillPool{Pool: stubPool(t)}
	guard := database.NewGuard(p, database.TimeoutConfig{
		AcquireTimeout: 2 * time.Second,
		QueryTimeout:   2 * time.Second,
	}, nil)
	defer guard.Close()

	for i := 0; i < 100; i++ {
		req := database.NewRequest("SELECT pg_sleep(5)").WithTimeout(time.Duration(i%5) * time.Microsecond)

		start := time.Now()
		_, err := guard.Do(context.Background(), req)

		require.True(t, database.IsTimeout(err, database.OpQuery), "iteration %d: %v", i, err)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	}

	assert.Eventually(t, func() bool { return p.kills.Load() == 100 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return p.Stats().InUse == 0 }, 2*time.Second, 10*time.Millisecond)
}
