// Package api serves the local HTTP control API: the procedure table, calls
// on the PQ service, and the outcome journal.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/pqd/internal/auth"
	"github.com/mattjoyce/pqd/internal/journal"
	"github.com/mattjoyce/pqd/internal/pq"
	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/wire"
)

// Applier issues one procedure call.
type Applier interface {
	Apply(ctx context.Context, id registry.OperationID, args ...wire.Value) pq.Outcome
}

// Runner executes work on the event loop.
type Runner interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// Journal exposes recent outcomes and a live feed.
type Journal interface {
	SnapshotSince(lastID int64) []journal.Entry
	Subscribe() (<-chan journal.Entry, func())
}

// Config holds API server configuration
type Config struct {
	Listen string
	// CallTimeout bounds how long a request waits for the loop.
	CallTimeout time.Duration
	// Tokens enables bearer authentication when non-empty.
	Tokens []auth.TokenConfig
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	reg       *registry.Registry
	applier   Applier
	runner    Runner
	journal   Journal
	verifier  *auth.Verifier
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, reg *registry.Registry, applier Applier, runner Runner, j Journal, logger *slog.Logger) *Server {
	if config.CallTimeout <= 0 {
		config.CallTimeout = pq.DefaultTimeout + time.Second
	}
	return &Server{
		config:    config,
		reg:       reg,
		applier:   applier,
		runner:    runner,
		journal:   j,
		verifier:  auth.NewVerifier(config.Tokens),
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeProceduresRead)).Get("/procedures", s.handleProcedures)
		r.With(s.requireScopes(auth.ScopeProceduresCall)).Post("/procedures/{name}", s.handleCall)
		r.With(s.requireScopes(auth.ScopeProceduresRead, auth.ScopeEventsRead)).Get("/outcomes", s.handleOutcomes)
		r.With(s.requireScopes(auth.ScopeEventsRead)).Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
