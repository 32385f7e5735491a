package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"gorm.io/gorm"

	"github.com/sakif/scriptbox/internal/apperror"
	"github.com/sakif/scriptbox/internal/model"
	"github.com/sakif/scriptbox/internal/repository"
)

var _ repository.ExecutionRepository = (*DB)(nil)

// Create inserts one log entry. The log is append-only apart from retention.
func (d *DB) Create(ctx context.Context, e *model.Execution) error {
	e.ID = xid.New().String()
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now()
	}
	e.ExecutedAt = e.ExecutedAt.UTC()

	row := toExecutionModel(e)
	if err := d.gormDB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("postgres: creating execution: %w", err)
	}
	return nil
}

func (d *DB) GetByID(ctx context.Context, id string) (*model.Execution, error) {
	var row ExecutionModel
	err := d.gormDB.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("execution", id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting execution %s: %w", id, err)
	}
	e := toExecutionDomain(&row)
	return &e, nil
}

// ListByIdentity returns newest entries first, 10 by default and at most 100.
func (d *DB) ListByIdentity(ctx context.Context, identity string, opts repository.ListOptions) ([]model.Execution, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	var rows []ExecutionModel
	err := d.gormDB.WithContext(ctx).
		Where("identity = ?", identity).
		Order("executed_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(max(opts.Offset, 0)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("postgres: listing executions: %w", err)
	}

	out := make([]model.Execution, len(rows))
	for i := range rows {
		out[i] = toExecutionDomain(&rows[i])
	}
	return out, nil
}

func (d *DB) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := d.gormDB.WithContext(ctx).
		Where("executed_at < ?", cutoff.UTC()).
		Delete(&ExecutionModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("postgres: pruning executions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
