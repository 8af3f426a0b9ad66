// ABOUTME: Knowledge search tools served by the engine.
// ABOUTME: Implements search_knowledge, search_knowledge_hybrid, and health_check.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/conhub/mcp-gateway/internal/mcp"
	"github.com/conhub/mcp-gateway/internal/search"
)

// hybridToggle gates the hybrid search tool.
const hybridToggle = "hybridSearch"

const (
	defaultLimit     = 10
	maxLimit         = 50
	defaultThreshold = 0.75
	defaultMaxDepth  = 2
	maxDepth         = 3
)

// Flags is the feature toggle surface the tools consult.
type Flags interface {
	IsEnabled(ctx context.Context, name string, def bool) bool
}

func clampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

func clampDepth(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxDepth {
		return maxDepth
	}
	return n
}

func normalizeThreshold(v float64) float64 {
	if v < 0 || v > 1 {
		return defaultThreshold
	}
	return v
}

// errorPayload is the failure shape agents parse: an error message plus
// empty results. Failures ride inside normal tool results, never as
// protocol errors.
type errorPayload struct {
	Error   string `json:"error"`
	Results []any  `json:"results"`
	Total   int    `json:"total"`
}

// textResult encodes a payload as a single text content item.
func textResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{{Type: "text", Text: string(raw)}},
	}, nil
}

// rawResult wraps an already-encoded payload without re-encoding it.
func rawResult(payload json.RawMessage) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{{Type: "text", Text: string(payload)}},
	}
}

func errorResult(msg string) (*mcp.CallToolResult, error) {
	return textResult(errorPayload{Error: msg, Results: []any{}})
}

// searchFailure maps a client error onto the message vocabulary agents
// already parse: timeouts name the deadline, status errors the code.
func searchFailure(err error, prefix string, timeoutSecs int) string {
	var statusErr *search.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s timed out after %d seconds", prefix, timeoutSecs)
	case errors.As(err, &statusErr):
		return fmt.Sprintf("%s failed: %d", prefix, statusErr.Code)
	default:
		return fmt.Sprintf("%s failed: %v", prefix, err)
	}
}

var searchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "Natural language search query"},
		"workspace_id": {"type": "string", "description": "Optional workspace to scope the search"},
		"limit": {"type": "integer", "description": "Maximum results to return", "default": 10, "minimum": 1, "maximum": 50},
		"similarity_threshold": {"type": "number", "description": "Minimum similarity score", "default": 0.75, "minimum": 0, "maximum": 1}
	},
	"required": ["query"]
}`)

type searchArgs struct {
	Query               string  `json:"query"`
	WorkspaceID         string  `json:"workspace_id"`
	Limit               int     `json:"limit"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// NewSearchTool builds the semantic search tool over the given client.
func NewSearchTool(client *search.Client, logger *slog.Logger) Tool {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("tool", "search_knowledge")

	return Tool{
		Name:        "search_knowledge",
		Description: "Search the knowledge base using semantic vector search. Returns the most relevant chunks for a natural language query.",
		InputSchema: searchSchema,
		Handler: func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
			// Defaults go in before decoding so absent fields keep them
			// and explicit out-of-range values get clamped.
			args := searchArgs{Limit: defaultLimit, SimilarityThreshold: defaultThreshold}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return errorResult("Invalid arguments: " + err.Error())
				}
			}
			if strings.TrimSpace(args.Query) == "" {
				return errorResult("Query cannot be empty")
			}

			payload, err := client.Semantic(ctx, search.SemanticQuery{
				Query:               args.Query,
				WorkspaceID:         args.WorkspaceID,
				Limit:               clampLimit(args.Limit),
				SimilarityThreshold: normalizeThreshold(args.SimilarityThreshold),
			})
			if err != nil {
				logger.Warn("search failed", "error", err)
				return errorResult(searchFailure(err, "Search", int(client.Timeout().Seconds())))
			}
			return rawResult(payload), nil
		},
	}
}

var hybridSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "Natural language search query"},
		"workspace_id": {"type": "string", "description": "Optional workspace to scope the search"},
		"limit": {"type": "integer", "description": "Maximum results to return", "default": 10, "minimum": 1, "maximum": 50},
		"include_related": {"type": "boolean", "description": "Follow graph edges to related chunks", "default": true},
		"max_depth": {"type": "integer", "description": "Maximum graph traversal depth", "default": 2, "minimum": 1, "maximum": 3}
	},
	"required": ["query"]
}`)

type hybridArgs struct {
	Query          string `json:"query"`
	WorkspaceID    string `json:"workspace_id"`
	Limit          int    `json:"limit"`
	IncludeRelated bool   `json:"include_related"`
	MaxDepth       int    `json:"max_depth"`
}

// NewHybridSearchTool builds the combined vector and graph search tool.
// It consults the hybridSearch toggle before each run; the toggle
// defaults on so an unreachable toggle service does not kill the tool.
func NewHybridSearchTool(proc *search.Processor, flags Flags, logger *slog.Logger) Tool {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("tool", "search_knowledge_hybrid")

	return Tool{
		Name:        "search_knowledge_hybrid",
		Description: "Search the knowledge base combining semantic vector search with graph traversal over related chunks.",
		InputSchema: hybridSchema,
		Handler: func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
			args := hybridArgs{Limit: defaultLimit, IncludeRelated: true, MaxDepth: defaultMaxDepth}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return errorResult("Invalid arguments: " + err.Error())
				}
			}
			if strings.TrimSpace(args.Query) == "" {
				return errorResult("Query cannot be empty")
			}
			if !flags.IsEnabled(ctx, hybridToggle, true) {
				return errorResult("Hybrid search is disabled by the hybridSearch feature toggle")
			}

			result, err := proc.Process(ctx, search.HybridQuery{
				Query:          args.Query,
				WorkspaceID:    args.WorkspaceID,
				Limit:          clampLimit(args.Limit),
				IncludeRelated: args.IncludeRelated,
				MaxDepth:       clampDepth(args.MaxDepth),
			})
			if err != nil {
				logger.Warn("hybrid search failed", "error", err)
				return errorResult(searchFailure(err, "Hybrid search", int(proc.Timeout().Seconds())))
			}
			return textResult(search.FormatResponse(result))
		},
	}
}

var healthSchema = json.RawMessage(`{"type": "object", "properties": {}}`)

type healthPayload struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Message string `json:"message"`
}

// NewHealthTool builds the backend health probe tool.
func NewHealthTool(client *search.Client, logger *slog.Logger) Tool {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("tool", "health_check")

	return Tool{
		Name:        "health_check",
		Description: "Check connectivity to the knowledge search backend.",
		InputSchema: healthSchema,
		Handler: func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
			if err := client.Health(ctx); err != nil {
				logger.Warn("health probe failed", "error", err)
				return textResult(healthPayload{
					Status:  "unhealthy",
					Backend: "disconnected",
					Message: fmt.Sprintf("Backend service unavailable: %v", err),
				})
			}
			return textResult(healthPayload{
				Status:  "healthy",
				Backend: "connected",
				Message: "Knowledge search service is operational",
			})
		},
	}
}
