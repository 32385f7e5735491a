// Package executor runs short, untrusted Starlark scripts inside a
// capability-restricted namespace and classifies every run as a success,
// a runtime fault or a timeout.
//
// A run flows through four stages:
//
//	Engine.Execute -> Decode -> Supervisor.Dispatch -> Runner.Run -> Classify
//
// The Runner owns the Namespace Builder and the Worker. Two runners ship
// with the package: InProcessRunner, which executes on an interpreter
// thread inside the current process, and ProcessRunner, which executes
// the same worker inside a child process that is killed as a group on
// timeout.
package executor

import (
	"context"
)

// Job is a decoded execution request handed to a Runner.
type Job struct {
	Source string `json:"source"`
	Args   Vector `json:"args"`
}

// Capture is what a Runner observed while executing a Job.
type Capture struct {
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Fault   string `json:"fault,omitempty"`
	Faulted bool   `json:"faulted"`
}

// Runner executes a single Job to completion or until ctx is done.
//
// A non-nil error means the runner itself could not do its job (for
// example the worker process failed to start). Script failures are
// reported through Capture.Fault instead.
type Runner interface {
	Run(ctx context.Context, job Job) (Capture, error)
}

// Recorder persists one entry per terminal outcome. Engine calls it in
// the background and never surfaces its errors to the caller.
type Recorder interface {
	LogExecution(ctx context.Context, identity, rawArgs string, outcome Outcome) error
}
