package api

import (
	"context"
	"net/http"

	"github.com/ainventory/ainventory-server/internal/auth"
	"github.com/ainventory/ainventory-server/internal/chread"
	"github.com/ainventory/ainventory-server/internal/tools"
	"go.uber.org/zap"
)

// ToolCallReader serves the audit trail. *chread.Reader implements it.
type ToolCallReader interface {
	ListToolCalls(ctx context.Context, params chread.ListToolCallsParams) ([]chread.ToolCallRow, int, error)
	GetToolCall(ctx context.Context, requestID string) (*chread.ToolCallRow, error)
	GetToolStats(ctx context.Context, days int) ([]chread.ToolStats, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Tools  *tools.Registry
	Auth   auth.Authenticator // nil disables authentication
	Reader ToolCallReader     // nil if ClickHouse unavailable
	MCP    http.Handler       // MCP SSE transport, nil if not served over HTTP
	Logger *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Tool invocation
	mux.HandleFunc("GET /v1/tools", deps.authMiddleware(deps.handleListTools))
	mux.HandleFunc("POST /v1/tools/{name}", deps.authMiddleware(deps.handleCallTool))

	// Audit trail
	mux.HandleFunc("GET /api/tool-calls", deps.authMiddleware(deps.handleListToolCalls))
	mux.HandleFunc("GET /api/tool-calls/stats", deps.authMiddleware(deps.handleToolStats))
	mux.HandleFunc("GET /api/tool-calls/{request_id}", deps.authMiddleware(deps.handleGetToolCall))

	// MCP over SSE
	if deps.MCP != nil {
		mcp := deps.authMiddleware(deps.MCP.ServeHTTP)
		mux.HandleFunc("/sse", mcp)
		mux.HandleFunc("/message", mcp)
	}

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestID(requestLogging(mux, deps.Logger)))
}
