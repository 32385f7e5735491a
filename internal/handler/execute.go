package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/scriptbox/internal/apperror"
	"github.com/sakif/scriptbox/internal/executor"
	"github.com/sakif/scriptbox/internal/model"
)

// ExecutionService is the service surface the handlers need.
type ExecutionService interface {
	Execute(ctx context.Context, identity, code, args string) (executor.Outcome, error)
	History(ctx context.Context, identity string, limit int) ([]model.Execution, error)
	Get(ctx context.Context, identity, id string) (*model.Execution, error)
}

// ExecuteRequest is the body of POST /api/execute. Identity may be omitted
// when the request carries a bearer token.
type ExecuteRequest struct {
	Identity string `json:"identity" validate:"max=255"`
	Code     string `json:"code" validate:"required"`
	Args     string `json:"args"`
}

// ExecuteHandler handles code execution requests.
type ExecuteHandler struct {
	svc    ExecutionService
	logger *slog.Logger
}

func NewExecuteHandler(svc ExecutionService, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		svc:    svc,
		logger: logger,
	}
}

// HandleExecute runs a script and returns its Outcome.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid execution request", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	outcome, err := h.svc.Execute(r.Context(), callerIdentity(r, req.Identity), req.Code, req.Args)
	if err != nil {
		if !errors.Is(err, apperror.ErrValidation) {
			h.logger.Error("execution request failed", slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}
