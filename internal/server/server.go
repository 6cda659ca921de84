// Package server exposes a guarded pool over HTTP.
//
// Routes:
//
//	POST /query    run one statement, optionally with "timeout_ms"
//	GET  /healthz  run SELECT 1 through the guard
//	GET  /stats    pool and guard counters
//
// A statement that runs out of time answers 504 with the guard's message,
// e.g. {"error":"Database query timed out after 500ms","operation":"query","ms":500}.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/dbguard/internal/config"
	"github.com/koustreak/dbguard/internal/database"
	"github.com/koustreak/dbguard/internal/errs"
	"github.com/koustreak/dbguard/internal/logger"
)

// maxBodyBytes bounds a /query request body.
const maxBodyBytes = 1 << 20

// Querier is the part of *database.Guard the server needs.
type Querier interface {
	Do(ctx context.Context, req database.Request) (*database.Result, error)
	Stats() database.GuardStats
}

// Deps holds the dependencies required by the server.
type Deps struct {
	Config config.ServerConfig
	Guard  Querier
	Logger *logger.Logger

	// Classify maps driver errors to a kind for the response status.
	// Optional; unclassified driver errors answer 502.
	Classify func(error) errs.ErrKind
}

// Server is the HTTP front of a Guard.
type Server struct {
	cfg      config.ServerConfig
	guard    Querier
	log      *logger.Logger
	classify func(error) errs.ErrKind
	server   *http.Server
}

// New creates a server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Guard == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "guard is required")
	}
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	classify := deps.Classify
	if classify == nil {
		classify = errs.KindOf
	}
	return &Server{
		cfg:      deps.Config,
		guard:    deps.Guard,
		log:      log,
		classify: classify,
	}, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Post("/query", s.handleQuery)

	return r
}

// Start listens in the background. Listener errors other than a clean
// shutdown are logged.
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	go func() {
		s.log.InfoWith("http server listening", map[string]interface{}{"addr": s.server.Addr})
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.ErrorWith("http server failed", err, nil)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones, up to the
// configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
