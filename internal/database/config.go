package database

import (
	"time"

	"github.com/koustreak/dbguard/internal/errs"
)

// Driver identifies the database engine.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

const (
	DefaultAcquireTimeout = 10 * time.Second
	DefaultQueryTimeout   = 10 * time.Second
)

// Config holds all settings needed to connect to, pool and guard a database.
// Driver-level fields are passed through to the driver unchanged.
type Config struct {
	// Driver is the database engine (e.g. DriverMySQL).
	Driver Driver

	// DSN is the full data source name / connection string. When empty the
	// driver builds one from the discrete fields below.
	// Example: "root:secret@tcp(localhost:3306)/app"
	DSN string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // postgres only

	// Pool tuning
	ConnectionLimit int32         // maximum number of open connections
	MinConns        int32         // idle connections kept alive
	MaxConnLifetime time.Duration // maximum time a connection may be reused
	MaxConnIdleTime time.Duration // maximum time a connection may sit idle

	// Timeouts
	ConnectTimeout time.Duration // dial + handshake limit for a new connection
	AcquireTimeout time.Duration // limit for borrowing a connection from the pool
	QueryTimeout   time.Duration // default per-query limit, overridable per call
}

// DefaultConfig returns pool settings for the given DSN with both guard
// timeouts at their 10s defaults.
func DefaultConfig(driver Driver, dsn string) *Config {
	return &Config{
		Driver:          driver,
		DSN:             dsn,
		ConnectionLimit: 10,
		MinConns:        2,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		AcquireTimeout:  DefaultAcquireTimeout,
		QueryTimeout:    DefaultQueryTimeout,
	}
}

// Validate reports configuration that can never work.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverPostgres:
	default:
		return errs.New(errs.ErrKindInvalidInput, "unsupported driver: "+string(c.Driver))
	}
	if c.DSN == "" && c.Host == "" {
		return errs.New(errs.ErrKindInvalidInput, "either dsn or host is required")
	}
	if c.ConnectionLimit < 0 || c.MinConns < 0 {
		return errs.New(errs.ErrKindInvalidInput, "pool sizes must not be negative")
	}
	if c.MinConns > c.ConnectionLimit && c.ConnectionLimit > 0 {
		return errs.New(errs.ErrKindInvalidInput, "min_conns exceeds connection_limit")
	}
	if c.AcquireTimeout < 0 || c.QueryTimeout < 0 || c.ConnectTimeout < 0 {
		return errs.New(errs.ErrKindInvalidInput, "timeouts must not be negative")
	}
	return nil
}

// Timeouts returns the guard timeouts, substituting defaults for unset values.
func (c *Config) Timeouts() TimeoutConfig {
	t := TimeoutConfig{
		AcquireTimeout: c.AcquireTimeout,
		QueryTimeout:   c.QueryTimeout,
	}
	if t.AcquireTimeout == 0 {
		t.AcquireTimeout = DefaultAcquireTimeout
	}
	if t.QueryTimeout == 0 {
		t.QueryTimeout = DefaultQueryTimeout
	}
	return t
}

// TimeoutConfig bounds the two phases of a guarded query. It is fixed for
// the lifetime of a Guard.
type TimeoutConfig struct {
	AcquireTimeout time.Duration
	QueryTimeout   time.Duration
}

// DefaultTimeouts returns the 10s/10s defaults.
func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		AcquireTimeout: DefaultAcquireTimeout,
		QueryTimeout:   DefaultQueryTimeout,
	}
}
