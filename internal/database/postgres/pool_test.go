package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dbguard/internal/database"
	"github.com/koustreak/dbguard/internal/errs"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  *database.Config
		want string
	}{
		{
			name: "defaults",
			cfg:  &database.Config{Host: "test-db", User: "postgres"},
			want: "host=test-db port=5432 user=postgres sslmode=disable",
		},
		{
			name: "all fields",
			cfg: &database.Config{
				Host: "db", Port: 6432, User: "app", Password: "secret",
				Database: "orders", SSLMode: "require",
			},
			want: "host=db port=6432 user=app sslmode=require password=secret dbname=orders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildDSN(tt.cfg))
		})
	}
}

func TestBuildPoolConfig(t *testing.T) {
	cfg := &database.Config{
		Host:            "db",
		User:            "app",
		ConnectionLimit: 1,
		MinConns:        4,
		ConnectTimeout:  2 * time.Second,
	}

	poolCfg, err := buildPoolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(1), poolCfg.MaxConns)
	assert.Equal(t, int32(1), poolCfg.MinConns, "min conns capped by the connection limit")
	assert.Equal(t, 2*time.Second, poolCfg.ConnConfig.ConnectTimeout)
	assert.Equal(t, defaultConnMaxLifetime, poolCfg.MaxConnLifetime)
	assert.Equal(t, "db", poolCfg.ConnConfig.Host)
}

func TestBuildPoolConfig_DSNTimeoutKept(t *testing.T) {
	poolCfg, err := buildPoolConfig(&database.Config{DSN: "postgres://app@db:5432/orders?connect_timeout=3"})
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, poolCfg.ConnConfig.ConnectTimeout)
	assert.Equal(t, int32(defaultMaxConns), poolCfg.MaxConns)
}

func TestBuildPoolConfig_InvalidDSN(t *testing.T) {
	_, err := buildPoolConfig(&database.Config{DSN: "postgres://%zz"})

	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}
