package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/scriptbox/internal/apperror"
	"github.com/sakif/scriptbox/internal/model"
)

// ExecutionsHandler serves the execution log.
type ExecutionsHandler struct {
	svc    ExecutionService
	logger *slog.Logger
}

func NewExecutionsHandler(svc ExecutionService, logger *slog.Logger) *ExecutionsHandler {
	return &ExecutionsHandler{
		svc:    svc,
		logger: logger,
	}
}

// HandleList serves GET /api/executions?identity=...&limit=...
func (h *ExecutionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, apperror.ValidationFailed("limit", "limit must be an integer"))
			return
		}
		limit = n
	}

	entries, err := h.svc.History(r.Context(), callerIdentity(r, q.Get("identity")), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.Execution{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGet serves GET /api/executions/{id}.
func (h *ExecutionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	e, err := h.svc.Get(r.Context(), callerIdentity(r, r.URL.Query().Get("identity")), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
