package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/scriptbox/internal/executor"
	"github.com/sakif/scriptbox/internal/model"
	"github.com/sakif/scriptbox/internal/repository"
)

var _ executor.Recorder = (*ExecutionRecorder)(nil)

// ExecutionRecorder writes engine outcomes to the execution log.
type ExecutionRecorder struct {
	repo repository.ExecutionRepository
	now  func() time.Time
}

func NewExecutionRecorder(repo repository.ExecutionRepository) *ExecutionRecorder {
	return &ExecutionRecorder{repo: repo, now: time.Now}
}

// LogExecution stores the output only for a successful run and the error
// only for a failed one.
func (r *ExecutionRecorder) LogExecution(ctx context.Context, identity, rawArgs string, outcome executor.Outcome) error {
	e := &model.Execution{
		Identity:       identity,
		InputArgs:      rawArgs,
		Success:        outcome.Succeeded,
		ElapsedSeconds: outcome.ElapsedSeconds,
		Status:         string(outcome.Status),
		ExecutedAt:     r.now(),
	}
	if outcome.Succeeded {
		e.OutputResult = outcome.Output
	} else {
		e.ErrorMessage = outcome.Error
	}

	if err := r.repo.Create(ctx, e); err != nil {
		return fmt.Errorf("recording execution: %w", err)
	}
	return nil
}
