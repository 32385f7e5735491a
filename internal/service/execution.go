// Package service contains the business rules that sit between the HTTP
// handlers and the storage and sandbox layers.
//
//	Handler (HTTP) → ExecutionService → executor.Engine  (runs the script)
//	                                  ↘ ExecutionRepository (reads the log)
//
// The engine writes the log itself through ExecutionRecorder, so a run is
// recorded even when the HTTP client has already gone away.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/scriptbox/internal/apperror"
	"github.com/sakif/scriptbox/internal/executor"
	"github.com/sakif/scriptbox/internal/model"
	"github.com/sakif/scriptbox/internal/repository"
)

const (
	MaxIdentityLength = 255
	DefaultListLimit  = 10
	MaxListLimit      = 100
)

// Engine is the part of *executor.Engine the service depends on.
type Engine interface {
	Execute(ctx context.Context, identity, source, rawArgs string) executor.Outcome
}

// ExecutionService validates requests, runs scripts and reads the log.
type ExecutionService struct {
	engine Engine
	repo   repository.ExecutionRepository
	logger *slog.Logger
}

func NewExecutionService(engine Engine, repo repository.ExecutionRepository, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{
		engine: engine,
		repo:   repo,
		logger: logger,
	}
}

// Execute runs code for identity.
//
// Only caller mistakes come back as errors (missing identity, empty code).
// Everything that happens to the script itself, including code that is too
// long, is part of the Outcome.
func (s *ExecutionService) Execute(ctx context.Context, identity, code, args string) (executor.Outcome, error) {
	identity, err := validIdentity(identity)
	if err != nil {
		return executor.Outcome{}, err
	}
	if strings.TrimSpace(code) == "" {
		return executor.Outcome{}, apperror.ValidationFailed("code", "no code provided")
	}

	return s.engine.Execute(ctx, identity, code, args), nil
}

// History returns identity's most recent executions, newest first.
// limit is clamped to 1..MaxListLimit, DefaultListLimit when unset.
func (s *ExecutionService) History(ctx context.Context, identity string, limit int) ([]model.Execution, error) {
	identity, err := validIdentity(identity)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	entries, err := s.repo.ListByIdentity(ctx, identity, repository.ListOptions{Limit: limit})
	if err != nil {
		s.logger.Error("failed to list executions",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	return entries, nil
}

// Get returns one log entry. An entry belonging to another identity is
// reported as forbidden.
func (s *ExecutionService) Get(ctx context.Context, identity, id string) (*model.Execution, error) {
	identity, err := validIdentity(identity)
	if err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "execution ID is required")
	}

	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Identity != identity {
		return nil, apperror.Forbidden("execution belongs to another identity")
	}
	return e, nil
}

func validIdentity(identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", apperror.ValidationFailed("identity", "identity is required")
	}
	if len(identity) > MaxIdentityLength {
		return "", apperror.ValidationFailed("identity",
			fmt.Sprintf("identity must be %d characters or less", MaxIdentityLength))
	}
	return identity, nil
}
