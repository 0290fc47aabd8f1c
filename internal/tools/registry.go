// Package tools hosts named tools: it validates call arguments against each
// tool's JSON schema, dispatches to the handler, turns recoverable failures
// into error envelopes and records every call.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ainventory/ainventory-server/internal/envelope"
	"github.com/ainventory/ainventory-server/internal/storage"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrDuplicateTool    = errors.New("tool already registered")
	ErrNotImplemented   = envelope.ErrNotImplemented
)

// Risk tiers.
const (
	RiskRead  = "read"
	RiskWrite = "write"
)

// Call sources.
const (
	SourceMCP  = "mcp"
	SourceHTTP = "http"
	SourceGRPC = "grpc"
	SourceCLI  = "cli"
)

// Handler executes a tool. Returning an *envelope.Error makes the call
// succeed with the envelope as its result.
type Handler func(ctx context.Context, args Arguments) (any, error)

// Tool is a named operation with a JSON schema for its arguments.
type Tool struct {
	Name        string
	Description string
	RiskTier    string
	InputSchema map[string]any
	Handler     Handler
}

// ReadOnly reports whether the tool has no side effects.
func (t Tool) ReadOnly() bool {
	return t.RiskTier != RiskWrite
}

// FailureReporter is implemented by results that carry their own failure
// flag instead of an error.
type FailureReporter interface {
	Failure() string
}

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds tools in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	events  storage.EventWriter
	logger  *zap.Logger
}

// NewRegistry creates an empty Registry that records calls to events.
func NewRegistry(events storage.EventWriter, logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		events:  events,
		logger:  logger,
	}
}

// Register adds t after compiling its schema.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return errors.New("Register: tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("Register %s: handler is required", t.Name)
	}
	if t.InputSchema == nil {
		t.InputSchema = map[string]any{"type": "object"}
	}
	if t.RiskTier == "" {
		t.RiskTier = RiskRead
	}

	schema, err := compileSchema(t.Name, t.InputSchema)
	if err != nil {
		return fmt.Errorf("Register %s: %w", t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[t.Name]; ok {
		return fmt.Errorf("Register %s: %w", t.Name, ErrDuplicateTool)
	}
	r.entries[t.Name] = &entry{tool: t, schema: schema}
	r.order = append(r.order, t.Name)
	return nil
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}

	// An absolute location keeps the working directory out of validation
	// errors.
	loc := "mem:///tools/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(loc, doc); err != nil {
		return nil, fmt.Errorf("schema compile error: %w", err)
	}
	return c.Compile(loc)
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].tool)
	}
	return out
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Tool{}, false
	}
	return e.tool, true
}

// Call validates args and runs the named tool. Envelope failures are
// returned as results; ErrUnknownTool, ErrInvalidArguments and handler
// errors such as ErrNotImplemented are returned as errors.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any, source string) (any, error) {
	start := time.Now()
	event := &storage.ToolCallEvent{
		RequestID: RequestIDFromContext(ctx),
		Timestamp: start.UTC(),
		ToolName:  name,
		Source:    source,
	}
	event.Arguments, event.ArgumentsHash = storage.PreviewArguments(args)

	result, err := r.call(ctx, name, args, event)

	event.LatencyMs = float32(time.Since(start).Seconds() * 1000)
	r.events.Write(event)
	r.logger.Info("tool call",
		zap.String("request_id", event.RequestID),
		zap.String("tool", name),
		zap.String("source", source),
		zap.String("outcome", event.Outcome),
		zap.Float32("latency_ms", event.LatencyMs),
	)
	return result, err
}

func (r *Registry) call(ctx context.Context, name string, args map[string]any, event *storage.ToolCallEvent) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownTool, name)
		fail(event, "unknown_tool", err)
		return nil, err
	}

	normalized, err := normalize(args)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		fail(event, "invalid_arguments", err)
		return nil, err
	}
	if err := e.schema.Validate(normalized); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		fail(event, "invalid_arguments", err)
		return nil, err
	}

	result, err := e.tool.Handler(ctx, normalized.(map[string]any))
	if err != nil {
		if env, ok := envelope.As(err); ok {
			event.Outcome = storage.OutcomeErrorEnvelope
			event.ErrorKind = string(env.Kind)
			event.ErrorMessage = env.Message
			return env.Map(), nil
		}
		kind := "handler_error"
		if errors.Is(err, ErrNotImplemented) {
			kind = "not_implemented"
		}
		fail(event, kind, err)
		return nil, err
	}

	if fr, ok := result.(FailureReporter); ok {
		if msg := fr.Failure(); msg != "" {
			event.Outcome = storage.OutcomeErrorEnvelope
			event.ErrorKind = "tool_failure"
			event.ErrorMessage = msg
			return result, nil
		}
	}

	event.Outcome = storage.OutcomeOK
	return result, nil
}

func fail(event *storage.ToolCallEvent, kind string, err error) {
	event.Outcome = storage.OutcomeFailed
	event.ErrorKind = kind
	event.ErrorMessage = err.Error()
}

// normalize round-trips args through JSON so numbers become json.Number
// regardless of how the transport decoded them.
func normalize(args map[string]any) (any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}

type requestIDKey struct{}

// WithRequestID attaches a request ID that Call records instead of
// generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the attached request ID or a new one.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}
