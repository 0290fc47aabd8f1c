package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/ainventory/ainventory-server/internal/envelope"
	"github.com/ainventory/ainventory-server/internal/storage"
	"github.com/ainventory/ainventory-server/internal/tools"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

type nopWriter struct{}

func (nopWriter) Write(*storage.ToolCallEvent) {}
func (nopWriter) Close()                       {}

func newServer(t *testing.T) *server.MCPServer {
	t.Helper()
	reg := tools.NewRegistry(nopWriter{}, zap.NewNop())
	mustRegister := func(tool tools.Tool) {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("register %s: %v", tool.Name, err)
		}
	}
	mustRegister(tools.Tool{
		Name:        "lookup",
		Description: "Busca un bien",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{"type": "integer"},
			},
			"required": []any{"id"},
		},
		Handler: func(_ context.Context, args tools.Arguments) (any, error) {
			id, err := args.OptionalInt("id")
			if err != nil {
				return nil, err
			}
			return map[string]any{"id": *id, "ubicación": "<Bodega>"}, nil
		},
	})
	mustRegister(tools.Tool{
		Name: "missing",
		Handler: func(context.Context, tools.Arguments) (any, error) {
			return nil, envelope.MissingArgument("id es requerido")
		},
	})
	mustRegister(tools.Tool{
		Name: "later",
		Handler: func(context.Context, tools.Arguments) (any, error) {
			return nil, fmt.Errorf("%w: history", tools.ErrNotImplemented)
		},
	})
	mustRegister(tools.Tool{
		Name:     "send",
		RiskTier: tools.RiskWrite,
		Handler:  func(context.Context, tools.Arguments) (any, error) { return map[string]any{"success": true}, nil },
	})

	s, err := New(reg, "test", zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// rpc sends one JSON-RPC request and returns the decoded response.
func rpc(t *testing.T, s *server.MCPServer, method string, params any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		t.Fatal(err)
	}
	resp := s.HandleMessage(context.Background(), raw)
	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return decoded
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) map[string]any {
	t.Helper()
	return rpc(t, s, "tools/call", map[string]any{"name": name, "arguments": args})
}

func resultText(t *testing.T, resp map[string]any) (string, bool) {
	t.Helper()
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("no result in %v", resp)
	}
	content := result["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("content = %v", content)
	}
	isError, _ := result["isError"].(bool)
	return content[0].(map[string]any)["text"].(string), isError
}

func TestToolsList(t *testing.T) {
	s := newServer(t)
	resp := rpc(t, s, "tools/list", map[string]any{})

	result := resp["result"].(map[string]any)
	list := result["tools"].([]any)
	if len(list) != 4 {
		t.Fatalf("got %d tools, want 4", len(list))
	}

	byName := map[string]map[string]any{}
	for _, item := range list {
		m := item.(map[string]any)
		byName[m["name"].(string)] = m
	}

	lookup := byName["lookup"]
	if lookup["description"] != "Busca un bien" {
		t.Errorf("description = %v", lookup["description"])
	}
	schema := lookup["inputSchema"].(map[string]any)
	if req, _ := schema["required"].([]any); len(req) != 1 || req[0] != "id" {
		t.Errorf("inputSchema = %v", schema)
	}
	if hint := lookup["annotations"].(map[string]any)["readOnlyHint"]; hint != true {
		t.Errorf("lookup readOnlyHint = %v", hint)
	}
	if hint := byName["send"]["annotations"].(map[string]any)["readOnlyHint"]; hint != false {
		t.Errorf("send readOnlyHint = %v", hint)
	}
}

func TestToolsCall_JSONText(t *testing.T) {
	s := newServer(t)
	text, isError := resultText(t, callTool(t, s, "lookup", map[string]any{"id": 42}))
	if isError {
		t.Fatal("unexpected tool error")
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatalf("result is not JSON: %q", text)
	}
	if got["id"] != float64(42) || got["ubicación"] != "<Bodega>" {
		t.Errorf("result = %v", got)
	}
}

func TestToolsCall_EnvelopeIsText(t *testing.T) {
	s := newServer(t)
	text, isError := resultText(t, callTool(t, s, "missing", nil))
	if isError {
		t.Fatal("envelope should not be a tool error")
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(text), &got); err != nil {
		t.Fatalf("result is not JSON: %q", text)
	}
	if got["error"] != "id es requerido" {
		t.Errorf("result = %v", got)
	}
}

func TestToolsCall_InvalidArgumentsIsToolError(t *testing.T) {
	s := newServer(t)
	_, isError := resultText(t, callTool(t, s, "lookup", map[string]any{"id": "abc"}))
	if !isError {
		t.Error("expected isError for schema violation")
	}
}

func TestToolsCall_NotImplementedIsRPCError(t *testing.T) {
	s := newServer(t)
	resp := callTool(t, s, "later", nil)
	if _, ok := resp["error"].(map[string]any); !ok {
		t.Errorf("expected JSON-RPC error, got %v", resp)
	}
}

func TestEncode(t *testing.T) {
	got, err := encode(map[string]any{"a": "<b>"})
	if err != nil {
		t.Fatal(err)
	}
	if want := "{\n  \"a\": \"<b>\"\n}"; got != want {
		t.Errorf("encode = %q, want %q", got, want)
	}
}
