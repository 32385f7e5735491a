package repository

import (
	"context"
	"time"

	"github.com/sakif/scriptbox/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ExecutionRepository stores the execution log. Entries are append-only;
// the only removal is bulk pruning by age.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *model.Execution) error
	GetByID(ctx context.Context, id string) (*model.Execution, error)
	// ListByIdentity returns an identity's entries, newest first.
	ListByIdentity(ctx context.Context, identity string, opts ListOptions) ([]model.Execution, error)
	// DeleteBefore removes entries executed before cutoff and reports how many.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
