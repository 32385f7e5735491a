package executor

import (
	"context"
)

// InProcessRunner executes jobs on an interpreter thread in this process.
// Cancellation is cooperative: the interpreter checks for it between
// steps, so a runaway loop stops promptly once ctx is done.
type InProcessRunner struct {
	builder   *Builder
	worker    *Worker
	maxOutput int
}

var _ Runner = (*InProcessRunner)(nil)

// NewInProcessRunner builds a runner enforcing cfg.Policy.
func NewInProcessRunner(cfg Config) *InProcessRunner {
	return &InProcessRunner{
		builder:   NewBuilder(cfg.Policy),
		worker:    &Worker{MaxSteps: cfg.MaxSteps},
		maxOutput: cfg.MaxOutputBytes,
	}
}

func (r *InProcessRunner) Run(ctx context.Context, job Job) (Capture, error) {
	return runJob(ctx, r.builder, r.worker, r.maxOutput, job), nil
}

func runJob(ctx context.Context, b *Builder, w *Worker, maxOutput int, job Job) Capture {
	s := NewSession(maxOutput)
	ns := b.Build(job.Args, s)
	runErr := w.Run(ctx, job.Source, ns, job.Args, s)

	c := Capture{
		Stdout: s.Stdout.Captured(),
		Stderr: s.Stderr.Captured(),
	}
	if runErr != nil {
		c.Faulted = true
		c.Fault = describeFault(runErr)
	}
	return c
}
