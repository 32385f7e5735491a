package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/scriptbox/internal/apperror"
	"github.com/sakif/scriptbox/internal/auth"
	"github.com/sakif/scriptbox/internal/executor"
	"github.com/sakif/scriptbox/internal/handler"
	"github.com/sakif/scriptbox/internal/model"
)

// MockService records what the handlers pass in and returns canned results.
type MockService struct {
	CapturedIdentity string
	CapturedCode     string
	CapturedArgs     string
	CapturedLimit    int
	CapturedID       string

	ReturnOutcome executor.Outcome
	ReturnEntries []model.Execution
	ReturnEntry   *model.Execution
	ReturnErr     error
}

func (m *MockService) Execute(ctx context.Context, identity, code, args string) (executor.Outcome, error) {
	m.CapturedIdentity, m.CapturedCode, m.CapturedArgs = identity, code, args
	return m.ReturnOutcome, m.ReturnErr
}

func (m *MockService) History(ctx context.Context, identity string, limit int) ([]model.Execution, error) {
	m.CapturedIdentity, m.CapturedLimit = identity, limit
	return m.ReturnEntries, m.ReturnErr
}

func (m *MockService) Get(ctx context.Context, identity, id string) (*model.Execution, error) {
	m.CapturedIdentity, m.CapturedID = identity, id
	return m.ReturnEntry, m.ReturnErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var res handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	return res
}

func TestExecuteHandler_HandleExecute(t *testing.T) {
	logger := testLogger()

	t.Run("valid execution", func(t *testing.T) {
		out := "Hello World\n"
		svc := &MockService{ReturnOutcome: executor.Outcome{
			Succeeded: true, Output: &out, ElapsedSeconds: 0.01, Status: executor.StatusOK,
		}}
		h := handler.NewExecuteHandler(svc, logger)

		body := `{"identity":"alice","code":"print('Hello World')","args":"1,2"}`
		req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewBufferString(body))
		rr := httptest.NewRecorder()
		h.HandleExecute(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var res map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, true, res["success"])
		assert.Equal(t, "Hello World\n", res["result"])
		assert.Nil(t, res["error"])
		assert.Equal(t, "ok", res["status"])
		assert.Contains(t, res, "execution_time")

		assert.Equal(t, "alice", svc.CapturedIdentity)
		assert.Equal(t, "print('Hello World')", svc.CapturedCode)
		assert.Equal(t, "1,2", svc.CapturedArgs)
	})

	t.Run("failed script is still 200", func(t *testing.T) {
		msg := "execution timed out after 10 seconds"
		svc := &MockService{ReturnOutcome: executor.Outcome{Error: &msg, Status: executor.StatusTimeout}}
		h := handler.NewExecuteHandler(svc, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/execute",
			bytes.NewBufferString(`{"identity":"alice","code":"while True: pass"}`))
		rr := httptest.NewRecorder()
		h.HandleExecute(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var res map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, false, res["success"])
		assert.Equal(t, msg, res["error"])
		assert.Equal(t, "timeout", res["status"])
	})

	t.Run("invalid request body", func(t *testing.T) {
		h := handler.NewExecuteHandler(&MockService{}, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewBufferString(`{"invalid_json":`))
		rr := httptest.NewRecorder()
		h.HandleExecute(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "validation_error", decodeError(t, rr).Error)
	})

	t.Run("empty code", func(t *testing.T) {
		svc := &MockService{}
		h := handler.NewExecuteHandler(svc, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewBufferString(`{"identity":"alice","code":""}`))
		rr := httptest.NewRecorder()
		h.HandleExecute(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		res := decodeError(t, rr)
		assert.Equal(t, "code", res.Field)
		assert.Equal(t, "code is required", res.Message)
		assert.Empty(t, svc.CapturedCode, "service must not be called")
	})

	t.Run("identity too long", func(t *testing.T) {
		h := handler.NewExecuteHandler(&MockService{}, logger)

		body, _ := json.Marshal(handler.ExecuteRequest{Identity: strings.Repeat("a", 256), Code: "print(1)"})
		req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		h.HandleExecute(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "identity", decodeError(t, rr).Field)
	})

	t.Run("body too large", func(t *testing.T) {
		h := handler.NewExecuteHandler(&MockService{}, logger)

		body, _ := json.Marshal(handler.ExecuteRequest{Identity: "alice", Code: strings.Repeat("x", 2<<20)})
		req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		h.HandleExecute(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decodeError(t, rr).Message, "exceeds")
	})

	t.Run("service validation error", func(t *testing.T) {
		svc := &MockService{ReturnErr: apperror.ValidationFailed("identity", "identity is required")}
		h := handler.NewExecuteHandler(svc, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewBufferString(`{"code":"print(1)"}`))
		rr := httptest.NewRecorder()
		h.HandleExecute(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "identity", decodeError(t, rr).Field)
	})

	t.Run("token identity wins", func(t *testing.T) {
		svc := &MockService{}
		h := handler.NewExecuteHandler(svc, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/execute",
			bytes.NewBufferString(`{"identity":"mallory","code":"print(1)"}`))
		req = req.WithContext(auth.WithIdentity(req.Context(), "alice"))
		rr := httptest.NewRecorder()
		h.HandleExecute(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "alice", svc.CapturedIdentity)
	})

	t.Run("internal error is not leaked", func(t *testing.T) {
		svc := &MockService{ReturnErr: errors.New("sqlite: no such table: executions")}
		h := handler.NewExecuteHandler(svc, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewBufferString(`{"identity":"a","code":"print(1)"}`))
		rr := httptest.NewRecorder()
		h.HandleExecute(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "sqlite")
	})
}
