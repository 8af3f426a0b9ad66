// ABOUTME: Tool registry mapping tool names to handlers and schemas.
// ABOUTME: Serves tools/list and dispatches tools/call for the engine.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/conhub/mcp-gateway/internal/mcp"
)

// ErrUnknownTool reports a tools/call against a name nobody registered.
// It is the mcp package's sentinel, matchable on either side.
var ErrUnknownTool = mcp.ErrUnknownTool

// Handler executes one tool invocation. Failures that agents should see
// are returned as result payloads; an error return means the invocation
// itself could not run.
type Handler func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)

// Tool pairs a tool's listing metadata with its handler.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// Registry holds the engine's tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool. Registering the same name twice is an error.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return errors.New("tool name is empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s has no handler", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// List returns the registered tools in registration order.
func (r *Registry) List() []mcp.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]mcp.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		infos = append(infos, mcp.ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return infos
}

// Call dispatches one invocation to the named tool.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	r.mu.RLock()
	tool, exists := r.tools[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	r.logger.Debug("tool call", "tool", name)
	return tool.Handler(ctx, args)
}
