package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/sakif/scriptbox/internal/executor"

// logWriteTimeout bounds one background Recorder call.
const logWriteTimeout = 5 * time.Second

// Metrics receives engine measurements. internal/observability provides
// the Prometheus implementation.
type Metrics interface {
	ObserveExecution(status Status, elapsed time.Duration)
	SetBusyWorkers(n int)
	LogWriteFailed()
}

type noopMetrics struct{}

func (noopMetrics) ObserveExecution(Status, time.Duration) {}
func (noopMetrics) SetBusyWorkers(int)                     {}
func (noopMetrics) LogWriteFailed()                        {}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder sets the collaborator that persists every outcome.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

// Engine is the entry point of the package: it checks input, decodes
// arguments, dispatches the run, classifies the result and hands it to the
// Recorder.
type Engine struct {
	cfg        Config
	pool       *Pool
	supervisor *Supervisor
	recorder   Recorder
	metrics    Metrics
	tracer     trace.Tracer
	logger     *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

// NewEngine validates cfg and starts the worker pool.
func NewEngine(cfg Config, runner Runner, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg.MaxCodeLength <= 0 {
		return nil, errors.New("executor: max code length must be positive")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("executor: timeout must be positive")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		metrics: noopMetrics{},
		tracer:  otel.Tracer(tracerName),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.pool = NewPool(cfg.PoolSize, logger)
	e.pool.OnChange(e.metrics.SetBusyWorkers)
	e.pool.Start()
	e.supervisor = NewSupervisor(runner, e.pool, cfg.Timeout, logger)
	return e, nil
}

// Config returns the limits the engine enforces.
func (e *Engine) Config() Config { return e.cfg }

// Execute runs source for identity and always returns an Outcome. The log
// entry is written in the background; its failure never changes the result.
func (e *Engine) Execute(ctx context.Context, identity, source, rawArgs string) Outcome {
	ctx, span := e.tracer.Start(ctx, "executor.Execute", trace.WithAttributes(
		attribute.String("scriptbox.identity", identity),
		attribute.Int("scriptbox.code_length", len(source)),
	))
	defer span.End()

	out := e.execute(ctx, source, rawArgs)

	span.SetAttributes(
		attribute.String("scriptbox.status", string(out.Status)),
		attribute.Float64("scriptbox.elapsed_seconds", out.ElapsedSeconds),
	)
	if !out.Succeeded {
		span.SetStatus(codes.Error, string(out.Status))
	}
	e.metrics.ObserveExecution(out.Status, time.Duration(out.ElapsedSeconds*float64(time.Second)))
	e.logger.Info("execution finished",
		slog.String("identity", identity),
		slog.String("status", string(out.Status)),
		slog.Float64("elapsed", out.ElapsedSeconds),
	)

	e.record(ctx, identity, rawArgs, out)
	return out
}

func (e *Engine) execute(ctx context.Context, source, rawArgs string) Outcome {
	if utf8.RuneCountInString(source) > e.cfg.MaxCodeLength {
		return failure(StatusInputTooLarge, fmt.Sprintf("code too long (max %d characters)", e.cfg.MaxCodeLength), 0)
	}
	if err := checkArgs(rawArgs, e.cfg.MaxArgsLength); err != nil {
		return failure(StatusArgumentDecodeFailure, err.Error(), 0)
	}

	job := Job{Source: source, Args: Decode(rawArgs)}
	t := e.supervisor.Dispatch(ctx, job)
	return Classify(t, e.supervisor.Timeout())
}

// checkArgs rejects argument strings Decode would otherwise mangle.
func checkArgs(raw string, maxLen int) error {
	switch {
	case maxLen > 0 && len(raw) > maxLen:
		return fmt.Errorf("invalid arguments: longer than %d bytes", maxLen)
	case !utf8.ValidString(raw):
		return errors.New("invalid arguments: not valid UTF-8")
	case strings.ContainsRune(raw, 0):
		return errors.New("invalid arguments: contains NUL byte")
	}
	return nil
}

func (e *Engine) record(ctx context.Context, identity, rawArgs string, out Outcome) {
	if e.recorder == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
		defer cancel()

		if err := e.recorder.LogExecution(logCtx, identity, rawArgs, out); err != nil {
			e.metrics.LogWriteFailed()
			e.logger.Warn("failed to record execution",
				slog.String("identity", identity),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Close stops accepting runs and waits for pending log writes.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.pool.Stop()
	e.pending.Wait()
}
