package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/dbguard/internal/database"
	"github.com/koustreak/dbguard/internal/errs"
)

const (
	defaultMaxConns        = 10
	defaultMinConns        = 0
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
	defaultConnectTimeout  = 10 * time.Second
	defaultPort            = 5432
)

// buildPoolConfig creates a pgxpool config from the given config
func buildPoolConfig(cfg *database.Config) (*pgxpool.Config, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = buildDSN(cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid postgres config", err)
	}

	poolCfg.MaxConns = withDefault(cfg.ConnectionLimit, defaultMaxConns)
	poolCfg.MinConns = withDefault(cfg.MinConns, defaultMinConns)
	if poolCfg.MinConns > poolCfg.MaxConns {
		poolCfg.MinConns = poolCfg.MaxConns
	}
	poolCfg.MaxConnLifetime = durationOr(cfg.MaxConnLifetime, defaultConnMaxLifetime)
	poolCfg.MaxConnIdleTime = durationOr(cfg.MaxConnIdleTime, defaultConnMaxIdleTime)
	if cfg.ConnectTimeout > 0 || poolCfg.ConnConfig.ConnectTimeout == 0 {
		poolCfg.ConnConfig.ConnectTimeout = durationOr(cfg.ConnectTimeout, defaultConnectTimeout)
	}

	return poolCfg, nil
}

// buildDSN constructs the postgres connection string
func buildDSN(cfg *database.Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s sslmode=%s", cfg.Host, port, cfg.User, sslMode)
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	if cfg.Database != "" {
		dsn += fmt.Sprintf(" dbname=%s", cfg.Database)
	}
	return dsn
}

// withDefault returns val if non-zero, otherwise returns def
func withDefault(val, def int32) int32 {
	if val == 0 {
		return def
	}
	return val
}

func durationOr(val, def time.Duration) time.Duration {
	if val == 0 {
		return def
	}
	return val
}
