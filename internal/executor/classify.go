package executor

import (
	"fmt"
	"time"
)

// NoOutputPlaceholder is the output of a successful run that printed nothing.
const NoOutputPlaceholder = "Code executed successfully (no output)"

// Status names the outcome kind. It is stored with every log entry.
type Status string

const (
	StatusOK                    Status = "ok"
	StatusInputTooLarge         Status = "input_too_large"
	StatusArgumentDecodeFailure Status = "argument_decode_failure"
	StatusRuntimeFault          Status = "runtime_fault"
	StatusTimeout               Status = "timeout"
	StatusStderrNonEmpty        Status = "stderr_non_empty"
)

// Outcome is what a caller gets back for every execution. Exactly one of
// Output and Error is set.
type Outcome struct {
	Succeeded      bool    `json:"success"`
	Output         *string `json:"result"`
	Error          *string `json:"error"`
	ElapsedSeconds float64 `json:"execution_time"`
	Status         Status  `json:"status"`
}

// Classify maps a terminal run onto an Outcome. Anything written to stderr
// fails the run, even if the script finished.
func Classify(t Terminal, limit time.Duration) Outcome {
	elapsed := t.Elapsed.Seconds()
	switch t.State {
	case StateCompleted:
		if t.Stderr != "" {
			return failure(StatusStderrNonEmpty, t.Stderr, elapsed)
		}
		out := t.Stdout
		if out == "" {
			out = NoOutputPlaceholder
		}
		return Outcome{Succeeded: true, Output: &out, ElapsedSeconds: elapsed, Status: StatusOK}
	case StateTimedOut:
		return failure(StatusTimeout, TimeoutMessage(limit), elapsed)
	default:
		fault := t.Fault
		if fault == "" {
			fault = "execution failed"
		}
		return failure(StatusRuntimeFault, fault, elapsed)
	}
}

// TimeoutMessage is the error reported for a run that hit limit.
func TimeoutMessage(limit time.Duration) string {
	return fmt.Sprintf("execution timed out after %g seconds", limit.Seconds())
}

func failure(status Status, msg string, elapsed float64) Outcome {
	return Outcome{Error: &msg, ElapsedSeconds: elapsed, Status: status}
}
