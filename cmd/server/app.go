package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/scriptbox/internal/config"
	"github.com/sakif/scriptbox/internal/executor"
	"github.com/sakif/scriptbox/internal/logger"
	"github.com/sakif/scriptbox/internal/observability"
	"github.com/sakif/scriptbox/internal/repository"
	"github.com/sakif/scriptbox/internal/repository/postgres"
	"github.com/sakif/scriptbox/internal/repository/sqlite"
	"github.com/sakif/scriptbox/internal/service"
)

// workerCommand is the hidden subcommand a process-isolated run re-executes
// this binary with.
const workerCommand = "worker"

// app holds everything a long-running command needs, built once from config.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   repository.ExecutionRepository
	metrics *observability.MetricsCollector
	tracing *observability.TracerSetup
	engine  *executor.Engine
	svc     *service.ExecutionService
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log}

	a.store, err = openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.metrics = observability.NewMetricsCollector()
	}

	a.tracing, err = observability.NewTracerSetup(ctx, cfg.TracerConfig())
	if err != nil {
		a.store.Close()
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	execCfg := cfg.Executor()
	runner, err := newRunner(execCfg, log)
	if err != nil {
		a.close()
		return nil, err
	}

	opts := []executor.Option{
		executor.WithRecorder(service.NewExecutionRecorder(a.store)),
		executor.WithTracer(a.tracing.Tracer()),
	}
	if a.metrics != nil {
		opts = append(opts, executor.WithMetrics(a.metrics))
	}
	a.engine, err = executor.NewEngine(execCfg, runner, log, opts...)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	a.svc = service.NewExecutionService(a.engine, a.store, log)

	log.Info("sandbox ready",
		slog.String("isolation", execCfg.Isolation),
		slog.Int("pool_size", execCfg.PoolSize),
		slog.Duration("timeout", execCfg.Timeout),
		slog.String("storage", cfg.Storage.Driver),
	)
	return a, nil
}

// close drains the engine first so pending log writes reach the store.
func (a *app) close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing store failed", slog.String("error", err.Error()))
		}
	}
}

func openStore(cfg *config.Config, log *slog.Logger) (repository.ExecutionRepository, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := postgres.Open(cfg.Postgres(), log)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return db, nil
	default:
		path := cfg.Storage.SQLitePath
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		db, err := sqlite.New(path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		return db, nil
	}
}

func newRunner(cfg executor.Config, log *slog.Logger) (executor.Runner, error) {
	switch cfg.Isolation {
	case executor.IsolationProcess:
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating own executable for worker processes: %w", err)
		}
		return executor.NewProcessRunner(exe, []string{workerCommand}, cfg, log), nil
	case executor.IsolationInProcess:
		return executor.NewInProcessRunner(cfg), nil
	default:
		return nil, errors.New("unknown isolation mode: " + cfg.Isolation)
	}
}
