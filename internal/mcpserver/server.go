// Package mcpserver exposes the sandbox as Model Context Protocol tools,
// so an MCP client can run scripts and read the execution log.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sakif/scriptbox/internal/apperror"
	"github.com/sakif/scriptbox/internal/auth"
	"github.com/sakif/scriptbox/internal/executor"
	"github.com/sakif/scriptbox/internal/model"
)

const (
	serverName      = "scriptbox"
	defaultIdentity = "mcp"
)

// ExecutionService is the service surface the tools call.
type ExecutionService interface {
	Execute(ctx context.Context, identity, code, args string) (executor.Outcome, error)
	History(ctx context.Context, identity string, limit int) ([]model.Execution, error)
}

// Server wraps an MCP server with the scriptbox tools registered.
type Server struct {
	svc      ExecutionService
	policy   executor.Policy
	identity string
	logger   *slog.Logger
	mcp      *server.MCPServer
}

// New registers execute_script, list_executions and describe_policy.
// identity is used when a tool call does not name one.
func New(svc ExecutionService, policy executor.Policy, identity, version string, logger *slog.Logger) *Server {
	if identity == "" {
		identity = defaultIdentity
	}
	s := &Server{
		svc:      svc,
		policy:   policy,
		identity: identity,
		logger:   logger,
		mcp:      server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.Tool{
		Name:        "execute_script",
		Description: "Run a Starlark script in the sandbox. Define main(...) to receive the decoded arguments; they are also bound to the global list args.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Script source",
				},
				"args": map[string]any{
					"type":        "string",
					"description": "Comma-separated arguments, e.g. 1,2.5,hello (optional)",
				},
				"identity": map[string]any{
					"type":        "string",
					"description": "Caller identity recorded in the execution log (optional)",
				},
			},
			Required: []string{"code"},
		},
	}, s.handleExecute)

	s.mcp.AddTool(mcp.Tool{
		Name:        "list_executions",
		Description: "List the most recent executions for an identity, newest first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"identity": map[string]any{
					"type":        "string",
					"description": "Identity whose log to read (optional)",
				},
				"limit": map[string]any{
					"type":        "number",
					"description": "Maximum entries, 1 to 100 (default 10)",
				},
			},
		},
	}, s.handleList)

	s.mcp.AddTool(mcp.Tool{
		Name:        "describe_policy",
		Description: "List the builtins and modules scripts may use.",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}},
	}, s.handleDescribePolicy)

	return s
}

// MCPServer returns the underlying server, mainly for tests.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves on stdin/stdout until EOF or a signal.
func (s *Server) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcp)
}

// HTTPHandler returns a streamable-HTTP transport for mounting on a router.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

func (s *Server) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError("code parameter is required"), nil
	}
	args := request.GetString("args", "")
	identity := s.callerIdentity(ctx, request)

	outcome, err := s.svc.Execute(ctx, identity, code, args)
	if err != nil {
		return toolError(err), nil
	}

	s.logger.Info("mcp execution finished",
		slog.String("identity", identity),
		slog.String("status", string(outcome.Status)),
	)

	res, err := jsonResult(outcome)
	if err != nil {
		return nil, err
	}
	res.IsError = !outcome.Succeeded
	return res, nil
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity := s.callerIdentity(ctx, request)
	limit := request.GetInt("limit", 0)

	entries, err := s.svc.History(ctx, identity, limit)
	if err != nil {
		return toolError(err), nil
	}
	if entries == nil {
		entries = []model.Execution{}
	}
	return jsonResult(entries)
}

func (s *Server) handleDescribePolicy(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.policy.Spec())
}

// callerIdentity prefers the bearer-token identity set by the HTTP
// transport's auth middleware over the tool argument.
func (s *Server) callerIdentity(ctx context.Context, request mcp.CallToolRequest) string {
	if id, ok := auth.IdentityFromContext(ctx); ok {
		return id
	}
	return request.GetString("identity", s.identity)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError turns caller mistakes into readable tool errors and hides
// everything else.
func toolError(err error) *mcp.CallToolResult {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return mcp.NewToolResultError(appErr.Message)
	}
	return mcp.NewToolResultError("internal error")
}
