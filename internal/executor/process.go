package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// workerWaitDelay is how long Wait lingers for the child's pipes after the
// child has been killed.
const workerWaitDelay = 2 * time.Second

// WorkerRequest is what ProcessRunner writes to the child's stdin.
type WorkerRequest struct {
	Job            Job        `json:"job"`
	Policy         PolicySpec `json:"policy"`
	MaxOutputBytes int        `json:"max_output_bytes"`
	MaxSteps       uint64     `json:"max_steps"`
}

// ProcessRunner executes each job in a fresh child process running
// ServeWorker. The child gets an empty environment and its own process
// group, and the whole group is killed when ctx is done.
type ProcessRunner struct {
	path   string
	args   []string
	cfg    Config
	logger *slog.Logger
}

var _ Runner = (*ProcessRunner)(nil)

// NewProcessRunner runs path with args as the worker command, usually the
// current executable with the hidden "worker" subcommand.
func NewProcessRunner(path string, args []string, cfg Config, logger *slog.Logger) *ProcessRunner {
	return &ProcessRunner{path: path, args: args, cfg: cfg, logger: logger}
}

func (r *ProcessRunner) Run(ctx context.Context, job Job) (Capture, error) {
	req, err := json.Marshal(WorkerRequest{
		Job:            job,
		Policy:         r.cfg.Policy.Spec(),
		MaxOutputBytes: r.cfg.MaxOutputBytes,
		MaxSteps:       r.cfg.MaxSteps,
	})
	if err != nil {
		return Capture{}, fmt.Errorf("encode worker request: %w", err)
	}

	var stdout bytes.Buffer
	stderr := NewOutputBuffer(64 << 10)

	cmd := exec.CommandContext(ctx, r.path, r.args...)
	cmd.Env = []string{}
	cmd.Stdin = bytes.NewReader(req)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = workerWaitDelay
	killProcessGroup(cmd)

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return Capture{}, ctx.Err()
	}
	if runErr != nil {
		r.logger.Error("worker process failed",
			slog.String("error", runErr.Error()),
			slog.String("stderr", stderr.String()),
		)
		return Capture{}, fmt.Errorf("worker process: %w: %s", runErr, strings.TrimSpace(stderr.String()))
	}

	var c Capture
	if err := json.Unmarshal(stdout.Bytes(), &c); err != nil {
		return Capture{}, fmt.Errorf("decode worker response: %w", err)
	}
	return c, nil
}

// ServeWorker is the child side of ProcessRunner: it reads one
// WorkerRequest from r, runs it, and writes one Capture to w.
func ServeWorker(r io.Reader, w io.Writer) error {
	var req WorkerRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("decode worker request: %w", err)
	}
	if req.Job.Args == nil {
		req.Job.Args = Vector{}
	}

	var c Capture
	policy := PolicyFromSpec(req.Policy)
	if err := policy.Validate(); err != nil {
		c = Capture{Faulted: true, Fault: err.Error()}
	} else {
		c = runJob(context.Background(), NewBuilder(policy), &Worker{MaxSteps: req.MaxSteps}, req.MaxOutputBytes, req.Job)
	}
	return json.NewEncoder(w).Encode(c)
}
