package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/scriptbox/internal/apperror"
	"github.com/sakif/scriptbox/internal/model"
	"github.com/sakif/scriptbox/internal/repository"
)

var _ repository.ExecutionRepository = (*DB)(nil)

const executionColumns = `id, identity, input_args, output_result, success,
	error_message, execution_time, status, executed_at`

// Create appends an entry to the log. The ID is an xid, which sorts by
// creation time; ExecutedAt defaults to now.
func (db *DB) Create(ctx context.Context, e *model.Execution) error {
	e.ID = xid.New().String()
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now()
	}
	e.ExecutedAt = e.ExecutedAt.UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO executions (`+executionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Identity,
		e.InputArgs,
		nullString(e.OutputResult),
		e.Success,
		nullString(e.ErrorMessage),
		e.ElapsedSeconds,
		e.Status,
		e.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating execution: %w", err)
	}
	return nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.Execution, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)

	e, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("execution", id)
		}
		return nil, fmt.Errorf("sqlite: getting execution %s: %w", id, err)
	}
	return e, nil
}

// ListByIdentity returns newest entries first. Limits outside 1..100 are
// clamped here as well as in the service, so no caller can scan the table.
func (db *DB) ListByIdentity(ctx context.Context, identity string, opts repository.ListOptions) ([]model.Execution, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	offset := max(opts.Offset, 0)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+executionColumns+`
		 FROM executions
		 WHERE identity = ?
		 ORDER BY executed_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		identity, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing executions: %w", err)
	}
	defer rows.Close()

	out := make([]model.Execution, 0, limit)
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning execution row: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating executions: %w", err)
	}
	return out, nil
}

func (db *DB) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM executions WHERE executed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: pruning executions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(s scanner) (*model.Execution, error) {
	var (
		e      model.Execution
		output sql.NullString
		errMsg sql.NullString
	)
	if err := s.Scan(
		&e.ID, &e.Identity, &e.InputArgs, &output, &e.Success,
		&errMsg, &e.ElapsedSeconds, &e.Status, &e.ExecutedAt,
	); err != nil {
		return nil, err
	}
	if output.Valid {
		e.OutputResult = &output.String
	}
	if errMsg.Valid {
		e.ErrorMessage = &errMsg.String
	}
	return &e, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
