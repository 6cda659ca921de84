package mysql

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dbguard/internal/database"
)

// These tests need a live server, e.g.
//
//	DBGUARD_MYSQL_DSN="root@tcp(test-db:3306)/" go test ./internal/database/mysql/...
func liveConfig(t *testing.T) *database.Config {
	t.Helper()
	dsn := os.Getenv("DBGUARD_MYSQL_DSN")
	if dsn == "" {
		t.Skip("DBGUARD_MYSQL_DSN not set")
	}
	cfg := database.DefaultConfig(database.DriverMySQL, dsn)
	cfg.ConnectionLimit = 1
	cfg.MinConns = 1
	return cfg
}

func liveGuard(t *testing.T, cfg *database.Config) *database.Guard {
	t.Helper()
	guard, err := Connect(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = guard.Close() })
	return guard
}

func stillRunning(t *testing.T, guard *database.Guard, marker string) bool {
	t.Helper()
	procs, err := guard.Pool().(database.ProcessLister).ProcessList(context.Background())
	require.NoError(t, err)
	for _, p := range procs {
		if strings.Contains(p.Info, marker) && !strings.Contains(p.Info, "processlist") {
			return true
		}
	}
	return false
}

func TestLive_DefaultQueryTimeout(t *testing.T) {
	cfg := liveConfig(t)
	cfg.QueryTimeout = 500 * time.Millisecond
	guard := liveGuard(t, cfg)
	ctx := context.Background()

	start := time.Now()
	_, err := guard.Query(ctx, "DO SLEEP(5) -- timeout please")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.EqualError(t, err, "Database query timed out after 500ms")
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond+grace)

	t.Run("kills the query", func(t *testing.T) {
		assert.Eventually(t, func() bool {
			return !stillRunning(t, guard, "timeout please")
		}, 2*time.Second, 50*time.Millisecond, "query still running")
	})

	t.Run("frees up the connection", func(t *testing.T) {
		res, err := guard.Query(ctx, "SELECT 1")
		require.NoError(t, err)
		assert.Equal(t, 1, res.Len())
	})
}

func TestLive_QueryTimeoutOverride(t *testing.T) {
	cfg := liveConfig(t)
	cfg.QueryTimeout = 100 * time.Millisecond
	guard := liveGuard(t, cfg)
	ctx := context.Background()

	start := time.Now()
	_, err := guard.Do(ctx, database.NewRequest("DO SLEEP(5) -- override please").WithTimeout(500*time.Millisecond))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.EqualError(t, err, "Database query timed out after 500ms")
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond+grace)

	assert.Eventually(t, func() bool {
		return !stillRunning(t, guard, "override please")
	}, 2*time.Second, 50*time.Millisecond, "query still running")

	_, err = guard.Query(ctx, "SELECT 1")
	assert.NoError(t, err)
}

func TestLive_AllConnectionsInUse(t *testing.T) {
	cfg := liveConfig(t)
	cfg.AcquireTimeout = 500 * time.Millisecond
	guard := liveGuard(t, cfg)
	ctx := context.Background()

	hogged := make(chan struct{})
	go func() {
		defer close(hogged)
		_, _ = guard.Query(ctx, "DO SLEEP(2)")
	}()
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	_, err := guard.Query(ctx, "SELECT 1")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.EqualError(t, err, "Database connect timed out after 500ms")
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond+grace)

	<-hogged
}

func TestLive_ReusesConnections(t *testing.T) {
	guard := liveGuard(t, liveConfig(t))
	ctx := context.Background()

	_, err := guard.Query(ctx, "SELECT 1")
	require.NoError(t, err)

	res, err := guard.Query(ctx, "SELECT 2 AS two")
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, res.Columns)
	assert.Equal(t, 1, guard.Stats().Pool.MaxOpen)
}
