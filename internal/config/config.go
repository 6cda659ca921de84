// Package config loads dbguard configuration from a YAML file and applies
// environment overrides on top.
//
// Environment variables use the DBGUARD prefix, e.g. DBGUARD_DB_HOST,
// DBGUARD_DB_ACQUIRE_TIMEOUT=500ms, DBGUARD_LOG_LEVEL=debug.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/dbguard/internal/database"
	"github.com/koustreak/dbguard/internal/logger"
)

const envPrefix = "DBGUARD"

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
}

// DatabaseConfig holds driver, pool and guard settings. Driver-level fields
// are passed to the driver unchanged.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" envconfig:"DB_DRIVER"`
	DSN      string `yaml:"dsn" envconfig:"DB_DSN"`
	Host     string `yaml:"host" envconfig:"DB_HOST"`
	Port     int    `yaml:"port" envconfig:"DB_PORT"`
	User     string `yaml:"user" envconfig:"DB_USER"`
	Password string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name     string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode  string `yaml:"ssl_mode" envconfig:"DB_SSLMODE"`

	ConnectionLimit int32         `yaml:"connection_limit" envconfig:"DB_CONNECTION_LIMIT"`
	MinConns        int32         `yaml:"min_conns" envconfig:"DB_MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" envconfig:"DB_MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" envconfig:"DB_MAX_CONN_IDLE_TIME"`

	// ConnectTimeout bounds dialing a brand new connection.
	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"DB_CONNECT_TIMEOUT"`
	// AcquireTimeout bounds borrowing a connection from the pool.
	AcquireTimeout time.Duration `yaml:"acquire_timeout" envconfig:"DB_ACQUIRE_TIMEOUT"`
	// DefaultQueryTimeout bounds a statement unless the call overrides it.
	DefaultQueryTimeout time.Duration `yaml:"default_query_timeout" envconfig:"DB_DEFAULT_QUERY_TIMEOUT"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Default returns the configuration used when neither file nor environment
// sets a value.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:              string(database.DriverMySQL),
			Host:                "localhost",
			User:                "root",
			ConnectionLimit:     10,
			ConnectTimeout:      10 * time.Second,
			AcquireTimeout:      database.DefaultAcquireTimeout,
			DefaultQueryTimeout: database.DefaultQueryTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides. A missing file is an error; an empty path is not.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg.Database); err != nil {
		return nil, fmt.Errorf("database env: %w", err)
	}
	if err := envconfig.Process(envPrefix, &cfg.Log); err != nil {
		return nil, fmt.Errorf("log env: %w", err)
	}
	if err := envconfig.Process(envPrefix, &cfg.Server); err != nil {
		return nil, fmt.Errorf("server env: %w", err)
	}

	if err := cfg.Database.ToDatabase().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToDatabase converts the file representation into a database.Config.
func (c *DatabaseConfig) ToDatabase() *database.Config {
	return &database.Config{
		Driver:          database.Driver(c.Driver),
		DSN:             c.DSN,
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Name,
		SSLMode:         c.SSLMode,
		ConnectionLimit: c.ConnectionLimit,
		MinConns:        c.MinConns,
		MaxConnLifetime: c.MaxConnLifetime,
		MaxConnIdleTime: c.MaxConnIdleTime,
		ConnectTimeout:  c.ConnectTimeout,
		AcquireTimeout:  c.AcquireTimeout,
		QueryTimeout:    c.DefaultQueryTimeout,
	}
}

// ToLogger converts the log section into a logger.Config.
func (c *LogConfig) ToLogger() *logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = c.Level
	cfg.Format = c.Format
	return cfg
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
