// Package server wires the HTTP routes and runs the listener.
//
// Routes:
//
//	GET  /healthz                store reachability
//	GET  /metrics                Prometheus exposition (when enabled)
//	POST /api/execute            run a script
//	GET  /api/executions         an identity's recent executions
//	GET  /api/executions/{id}    one execution
//	*    /mcp                    MCP streamable-HTTP transport (when enabled)
//
// When a TokenService is supplied, /api and /mcp require a bearer token.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/sakif/scriptbox/internal/auth"
	"github.com/sakif/scriptbox/internal/handler"
	"github.com/sakif/scriptbox/internal/middleware"
	"github.com/sakif/scriptbox/internal/observability"
)

type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MetricsPath     string
}

// Deps are the collaborators built by the caller. Service and Store are
// required; the rest switch features on when non-nil.
type Deps struct {
	Service handler.ExecutionService
	Store   handler.Pinger
	Tokens  *auth.TokenService
	Metrics *observability.MetricsCollector
	Tracer  trace.Tracer
	MCP     http.Handler
}

type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	if s.deps.Tracer != nil {
		s.router.Use(middleware.Trace(s.deps.Tracer))
	}
	if s.deps.Metrics != nil {
		s.router.Use(middleware.Metrics(s.deps.Metrics))
	}
	s.router.Use(middleware.Logger(s.logger))

	health := handler.NewHealthHandler(s.deps.Store, s.logger)
	s.router.Get("/healthz", health.HandleHealth)

	if s.deps.Metrics != nil {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.Handle(path, promhttp.HandlerFor(s.deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	execute := handler.NewExecuteHandler(s.deps.Service, s.logger)
	executions := handler.NewExecutionsHandler(s.deps.Service, s.logger)

	s.router.Group(func(r chi.Router) {
		if s.deps.Tokens != nil {
			r.Use(auth.RequireAuth(s.deps.Tokens))
		}

		r.Route("/api", func(r chi.Router) {
			r.Post("/execute", execute.HandleExecute)
			r.Get("/executions", executions.HandleList)
			r.Get("/executions/{id}", executions.HandleGet)
		})

		if s.deps.MCP != nil {
			r.Handle("/mcp", s.deps.MCP)
		}
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then drains in-flight requests for
// up to ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", s.config.Addr),
			slog.Bool("auth", s.deps.Tokens != nil),
			slog.Bool("metrics", s.deps.Metrics != nil),
			slog.Bool("mcp", s.deps.MCP != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
