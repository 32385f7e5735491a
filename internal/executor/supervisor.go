package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// State is how a dispatched run ended.
type State int

const (
	StateCompleted State = iota
	StateTimedOut
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal is the supervisor's verdict on one run.
type Terminal struct {
	State   State
	Stdout  string
	Stderr  string
	Fault   string
	Elapsed time.Duration
}

// Supervisor bounds every run with a deadline. It never retries.
type Supervisor struct {
	runner  Runner
	pool    *Pool
	timeout time.Duration
	logger  *slog.Logger
}

// NewSupervisor wires a runner to a started pool.
func NewSupervisor(runner Runner, pool *Pool, timeout time.Duration, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		runner:  runner,
		pool:    pool,
		timeout: timeout,
		logger:  logger,
	}
}

// Timeout returns the per-run deadline.
func (s *Supervisor) Timeout() time.Duration { return s.timeout }

type runResult struct {
	capture Capture
	err     error
}

// Dispatch runs job and waits for whichever comes first: the runner
// returning, the deadline, or ctx being cancelled. The deadline starts now
// and covers waiting for a pool slot. On timeout Dispatch returns at once
// and the runner's context is cancelled; the slot stays held until the
// runner actually returns.
func (s *Supervisor) Dispatch(ctx context.Context, job Job) Terminal {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.pool.Acquire(runCtx); err != nil {
		if errors.Is(err, ErrPoolClosed) {
			return Terminal{State: StateFaulted, Fault: err.Error(), Elapsed: time.Since(start)}
		}
		return s.interrupted(ctx, start)
	}

	done := make(chan runResult, 1)
	go func() {
		defer s.pool.Release()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("runner panicked", slog.Any("panic", r))
				done <- runResult{err: fmt.Errorf("runner panic: %v", r)}
			}
		}()
		c, err := s.runner.Run(runCtx, job)
		done <- runResult{capture: c, err: err}
	}()

	select {
	case r := <-done:
		elapsed := time.Since(start)
		if r.err == nil && !r.capture.Faulted {
			return Terminal{State: StateCompleted, Stdout: r.capture.Stdout, Stderr: r.capture.Stderr, Elapsed: elapsed}
		}
		// A fault that lands together with the deadline is the deadline's doing.
		if runCtx.Err() != nil {
			return s.interrupted(ctx, start)
		}
		fault := r.capture.Fault
		if r.err != nil {
			fault = r.err.Error()
		}
		return Terminal{State: StateFaulted, Stdout: r.capture.Stdout, Stderr: r.capture.Stderr, Fault: fault, Elapsed: elapsed}
	case <-runCtx.Done():
		return s.interrupted(ctx, start)
	}
}

// interrupted tells a caller cancellation apart from our own deadline.
func (s *Supervisor) interrupted(ctx context.Context, start time.Time) Terminal {
	elapsed := time.Since(start)
	if err := ctx.Err(); err != nil {
		return Terminal{
			State:   StateFaulted,
			Fault:   fmt.Sprintf("execution cancelled: %v", context.Cause(ctx)),
			Elapsed: elapsed,
		}
	}
	s.logger.Warn("execution timed out", slog.Duration("timeout", s.timeout), slog.Duration("elapsed", elapsed))
	return Terminal{State: StateTimedOut, Elapsed: elapsed}
}
