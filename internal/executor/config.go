package executor

import (
	"time"
)

// Isolation modes for Config.Isolation.
const (
	IsolationInProcess = "inprocess"
	IsolationProcess   = "process"
)

// Config holds the limits applied to every execution.
type Config struct {
	// MaxCodeLength is the largest accepted script, counted in characters.
	MaxCodeLength int
	// MaxArgsLength is the largest accepted raw argument string, in bytes.
	MaxArgsLength int
	// Timeout bounds a run from dispatch to terminal state, queueing included.
	Timeout time.Duration
	// PoolSize is the number of runs allowed in flight at once.
	PoolSize int
	// MaxOutputBytes caps each of the stdout and stderr captures.
	MaxOutputBytes int
	// MaxSteps caps interpreter steps per run. Zero means unlimited.
	MaxSteps uint64
	// Isolation selects the runner: IsolationInProcess or IsolationProcess.
	Isolation string
	// Policy is the capability policy applied to every run.
	Policy Policy
}

// DefaultConfig mirrors the limits the service has always shipped with:
// ten seconds and ten thousand characters.
func DefaultConfig() Config {
	return Config{
		MaxCodeLength:  10000,
		MaxArgsLength:  4096,
		Timeout:        10 * time.Second,
		PoolSize:       4,
		MaxOutputBytes: 1 << 20,
		Isolation:      IsolationInProcess,
		Policy:         DefaultPolicy(),
	}
}
