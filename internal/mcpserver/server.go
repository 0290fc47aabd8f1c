// Package mcpserver publishes the tool registry over the Model Context
// Protocol, on stdio or SSE.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ainventory/ainventory-server/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Name is the server name advertised during initialization.
const Name = "ainventory-server"

// New returns an MCP server exposing every tool in reg.
//
// Results, envelope failures included, are returned as JSON text. Unknown
// tools and schema violations become tool errors; any other handler error,
// such as tools.ErrNotImplemented, becomes a JSON-RPC error.
func New(reg *tools.Registry, version string, logger *zap.Logger) (*server.MCPServer, error) {
	s := server.NewMCPServer(Name, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	for _, t := range reg.List() {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("mcpserver: schema for %s: %w", t.Name, err)
		}
		tool := mcp.NewToolWithRawSchema(t.Name, t.Description, schema)
		readOnly := t.ReadOnly()
		tool.Annotations.ReadOnlyHint = &readOnly

		s.AddTool(tool, handler(reg, t.Name, logger))
	}
	return s, nil
}

func handler(reg *tools.Registry, name string, logger *zap.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := reg.Call(ctx, name, req.GetArguments(), tools.SourceMCP)
		if err != nil {
			if errors.Is(err, tools.ErrUnknownTool) || errors.Is(err, tools.ErrInvalidArguments) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return nil, err
		}

		text, err := encode(result)
		if err != nil {
			logger.Error("mcp result encoding failed", zap.String("tool", name), zap.Error(err))
			return nil, err
		}
		return mcp.NewToolResultText(text), nil
	}
}

// encode renders v as indented JSON without HTML escaping.
func encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// NewSSEHandler returns an http.Handler serving /sse and /message.
func NewSSEHandler(s *server.MCPServer, baseURL string) *server.SSEServer {
	return server.NewSSEServer(s, server.WithBaseURL(baseURL))
}

// ServeStdio serves s on stdin/stdout until EOF or a termination signal.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
