// dbguard runs statements against MySQL or PostgreSQL with bounded waits.
//
// One-shot:
//
//	dbguard -config dbguard.yaml -sql "SELECT SLEEP(?)" -timeout 500ms 3
//
// Trailing arguments are bound to the statement's placeholders.
//
// Server:
//
//	dbguard -config dbguard.yaml -serve
//
// Sessions currently on the server:
//
//	dbguard -config dbguard.yaml -processlist
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koustreak/dbguard/internal/config"
	"github.com/koustreak/dbguard/internal/database"
	"github.com/koustreak/dbguard/internal/database/mysql"
	"github.com/koustreak/dbguard/internal/database/postgres"
	"github.com/koustreak/dbguard/internal/errs"
	"github.com/koustreak/dbguard/internal/logger"
	"github.com/koustreak/dbguard/internal/server"
)

// Set at build time via -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	configPath string
	serve      bool
	processes  bool
	sql        string
	timeout    time.Duration
	hasTimeout bool
	args       []string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, parseFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if _, ok := database.AsTimeout(err); ok {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", os.Getenv("DBGUARD_CONFIG"), "path to YAML config file")
	flag.BoolVar(&o.serve, "serve", false, "serve the HTTP API")
	flag.BoolVar(&o.processes, "processlist", false, "print the server's sessions")
	flag.StringVar(&o.sql, "sql", "", "statement to run once")
	flag.DurationVar(&o.timeout, "timeout", 0, "query timeout for -sql, overrides the configured default")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "timeout" {
			o.hasTimeout = true
		}
	})
	o.args = flag.Args()
	return o
}

func run(ctx context.Context, o options) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.New(cfg.Log.ToLogger())
	log.InfoWith("starting dbguard", map[string]interface{}{
		"version": version,
		"driver":  cfg.Database.Driver,
	})

	ctx = log.WithContext(ctx)
	guard, classify, err := connect(ctx, cfg.Database.ToDatabase())
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer func() {
		if closeErr := guard.Close(); closeErr != nil {
			log.ErrorWith("closing pool", closeErr, nil)
		}
	}()

	switch {
	case o.serve:
		return serve(ctx, cfg.Server, guard, classify, log)
	case o.processes:
		return printProcesses(ctx, guard)
	case o.sql != "":
		return queryOnce(ctx, guard, o)
	default:
		return errs.New(errs.ErrKindInvalidInput, "nothing to do: pass -serve, -processlist or -sql")
	}
}

// connect builds the guard for cfg.Driver. The drivers take their logger
// from ctx.
func connect(ctx context.Context, cfg *database.Config) (*database.Guard, func(error) errs.ErrKind, error) {
	switch cfg.Driver {
	case database.DriverMySQL:
		g, err := mysql.Connect(ctx, cfg, nil)
		return g, mysql.Classify, err
	case database.DriverPostgres:
		g, err := postgres.Connect(ctx, cfg, nil)
		return g, postgres.Classify, err
	default:
		return nil, nil, errs.New(errs.ErrKindInvalidInput, "unsupported driver: "+string(cfg.Driver))
	}
}

func serve(ctx context.Context, cfg config.ServerConfig, guard *database.Guard, classify func(error) errs.ErrKind, log *logger.Logger) error {
	srv, err := server.New(server.Deps{
		Config:   cfg,
		Guard:    guard,
		Logger:   log,
		Classify: classify,
	})
	if err != nil {
		return err
	}
	srv.Start()

	<-ctx.Done()
	log.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func queryOnce(ctx context.Context, guard *database.Guard, o options) error {
	args := make([]any, len(o.args))
	for i, a := range o.args {
		args[i] = a
	}
	req := database.NewRequest(o.sql, args...)
	if o.hasTimeout {
		req = req.WithTimeout(o.timeout)
	}

	res, err := guard.Do(ctx, req)
	if err != nil {
		return err
	}

	return printJSON(res)
}

func printProcesses(ctx context.Context, guard *database.Guard) error {
	lister, ok := guard.Pool().(database.ProcessLister)
	if !ok {
		return errs.New(errs.ErrKindInvalidInput, "driver cannot list sessions")
	}
	procs, err := lister.ProcessList(ctx)
	if err != nil {
		return err
	}
	return printJSON(procs)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
