package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/scriptbox/internal/auth"
	"github.com/sakif/scriptbox/internal/mcpserver"
	"github.com/sakif/scriptbox/internal/retention"
	"github.com/sakif/scriptbox/internal/server"
)

var addrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the scriptbox HTTP server.

Endpoints:
  POST /api/execute            run a script
  GET  /api/executions         recent executions for an identity
  GET  /api/executions/{id}    one execution
  GET  /healthz                liveness and store reachability
  GET  /metrics                Prometheus metrics (metrics.enabled)
  *    /mcp                    MCP over streamable HTTP (mcp.http_enabled)

Examples:
  scriptbox serve
  scriptbox serve --addr :9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}

	stopPruner, err := a.startRetention(ctx)
	if err != nil {
		return err
	}
	defer stopPruner()

	deps := server.Deps{
		Service: a.svc,
		Store:   a.store,
		Metrics: a.metrics,
	}
	if cfg.Tracing.Enabled {
		deps.Tracer = a.tracing.Tracer()
	}
	if cfg.Auth.JWTSecret != "" {
		deps.Tokens, err = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
	}
	if cfg.MCP.HTTPEnabled {
		deps.MCP = a.mcpHandler()
	}

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsPath:     cfg.Metrics.Path,
	}, deps, a.logger)

	return srv.Start(ctx)
}

// startRetention schedules log pruning. A zero max age keeps entries forever.
func (a *app) startRetention(ctx context.Context) (func(), error) {
	r := a.cfg.Retention
	if r.MaxAge <= 0 {
		a.logger.Info("retention disabled")
		return func() {}, nil
	}

	pruner := retention.NewPruner(a.store, r.MaxAge, a.logger)
	stop, err := pruner.Start(ctx, r.Schedule)
	if err != nil {
		return nil, err
	}
	a.logger.Info("retention scheduled",
		slog.Duration("max_age", r.MaxAge),
		slog.String("schedule", r.Schedule),
	)
	return stop, nil
}

func (a *app) mcpServer() *mcpserver.Server {
	return mcpserver.New(a.svc, a.engine.Config().Policy, a.cfg.MCP.Identity, version, a.logger)
}

func (a *app) mcpHandler() http.Handler {
	return a.mcpServer().HTTPHandler()
}
