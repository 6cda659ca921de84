package mysql

import (
	"database/sql"
	"net"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/dbguard/internal/database"
	"github.com/koustreak/dbguard/internal/errs"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
	defaultConnectTimeout  = 10 * time.Second
	defaultPort            = 3306
)

// buildPool configures and returns a *sql.DB with pool settings. No
// connection is opened until the first acquisition.
func buildPool(cfg *database.Config) (*sql.DB, error) {
	mc, err := buildConfig(cfg)
	if err != nil {
		return nil, err
	}

	connector, err := gomysql.NewConnector(mc)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid mysql config", err)
	}
	db := sql.OpenDB(connector)

	maxOpen := int(cfg.ConnectionLimit)
	if maxOpen == 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := int(cfg.MinConns)
	if maxIdle == 0 {
		maxIdle = defaultMaxIdleConns
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(withDefault(cfg.MaxConnLifetime, defaultConnMaxLifetime))
	db.SetConnMaxIdleTime(withDefault(cfg.MaxConnIdleTime, defaultConnMaxIdleTime))

	return db, nil
}

// buildConfig turns the driver-agnostic config into a go-sql-driver config.
// An explicit DSN wins over the discrete fields.
func buildConfig(cfg *database.Config) (*gomysql.Config, error) {
	var mc *gomysql.Config
	if cfg.DSN != "" {
		parsed, err := gomysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid mysql dsn", err)
		}
		mc = parsed
	} else {
		port := cfg.Port
		if port == 0 {
			port = defaultPort
		}
		mc = gomysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.DBName = cfg.Database
	}

	mc.ParseTime = true
	if cfg.ConnectTimeout > 0 || mc.Timeout == 0 {
		mc.Timeout = withDefault(cfg.ConnectTimeout, defaultConnectTimeout)
	}
	return mc, nil
}

func withDefault(val, def time.Duration) time.Duration {
	if val == 0 {
		return def
	}
	return val
}
