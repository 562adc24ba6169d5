// Package assistant – tools.go manages a registry of callable tools
// and dispatches tool calls from the LLM to the appropriate handlers.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultToolTimeout is the maximum time a single tool execution can take.
const DefaultToolTimeout = 30 * time.Second

// ToolHandlerFunc is the signature for tool execution handlers.
// Receives parsed arguments and returns the result or an error.
type ToolHandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// registeredTool bundles a tool definition with its handler.
type registeredTool struct {
	Definition ToolDefinition
	Handler    ToolHandlerFunc
}

// ToolResult holds the output of a single tool execution.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
	Error      error
}

// ToolRegistry holds the tools exposed to the LLM.
type ToolRegistry struct {
	tools   map[string]*registeredTool
	timeout time.Duration
	logger  *slog.Logger
	mu      sync.RWMutex
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRegistry{
		tools:   make(map[string]*registeredTool),
		timeout: DefaultToolTimeout,
		logger:  logger.With("component", "tools"),
	}
}

// Register adds a tool with its definition and handler.
// If a tool with the same name already exists, it is overwritten.
func (r *ToolRegistry) Register(def ToolDefinition, handler ToolHandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[def.Function.Name] = &registeredTool{Definition: def, Handler: handler}
	r.logger.Debug("tool registered", "name", def.Function.Name)
}

// Definitions returns all tool definitions sorted by name, for a stable
// prompt across runs.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition)
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Function.Name < defs[j].Function.Name
	})
	return defs
}

// Execute runs the given tool calls sequentially and returns one result per
// call. Handler errors and unknown tools become error results, never panics.
func (r *ToolRegistry) Execute(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, r.executeOne(ctx, call))
	}
	return results
}

func (r *ToolRegistry) executeOne(ctx context.Context, call ToolCall) ToolResult {
	name := call.Function.Name
	result := ToolResult{ToolCallID: call.ID, Name: name}

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		result.Error = fmt.Errorf("unknown tool %q", name)
		result.Content = result.Error.Error()
		return result
	}

	args := map[string]any{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			result.Error = fmt.Errorf("invalid arguments for %q: %w", name, err)
			result.Content = result.Error.Error()
			return result
		}
	}

	toolCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	out, err := tool.Handler(toolCtx, args)
	if err != nil {
		r.logger.Warn("tool failed", "name", name, "error", err)
		result.Error = err
		result.Content = "Error: " + err.Error()
		return result
	}

	r.logger.Debug("tool executed", "name", name, "duration_ms", time.Since(start).Milliseconds())
	result.Content = stringifyResult(out)
	return result
}

// stringifyResult converts a handler return value into LLM context text.
func stringifyResult(v any) string {
	switch s := v.(type) {
	case nil:
		return "ok"
	case string:
		return s
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
