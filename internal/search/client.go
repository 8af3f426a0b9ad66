// ABOUTME: HTTP client for the knowledge and embeddings services.
// ABOUTME: Carries the semantic, hybrid, health, and vectorize calls behind the engine tools.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const healthTimeout = 5 * time.Second

// StatusError reports a non-2xx reply from a collaborator service.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service returned status %d", e.Code)
}

// Config carries the collaborator endpoints for the search client.
type Config struct {
	// SearchURL is the knowledge service base URL.
	SearchURL string
	// EmbeddingsURL is the embeddings service base URL.
	EmbeddingsURL string
	// Timeout bounds one semantic search request; hybrid requests get
	// twice this. Zero means 30 seconds.
	Timeout time.Duration
}

// Client calls the knowledge service's search endpoints and the
// embeddings service. One Client is shared by every tool invocation.
type Client struct {
	searchURL     string
	embeddingsURL string
	timeout       time.Duration
	http          *http.Client
	logger        *slog.Logger
}

// NewClient creates a search client from the given config.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		searchURL:     strings.TrimRight(cfg.SearchURL, "/"),
		embeddingsURL: strings.TrimRight(cfg.EmbeddingsURL, "/"),
		timeout:       cfg.Timeout,
		http:          &http.Client{},
		logger:        logger.With("component", "search"),
	}
}

// Timeout returns the semantic search bound.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// SemanticQuery is the request body for semantic search.
type SemanticQuery struct {
	Query               string  `json:"query"`
	WorkspaceID         string  `json:"workspace_id,omitempty"`
	Limit               int     `json:"limit"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// HybridQuery is the request body for hybrid search. QueryVectors is
// filled by the pipeline when the embeddings service answered.
type HybridQuery struct {
	Query          string    `json:"query"`
	WorkspaceID    string    `json:"workspace_id,omitempty"`
	Limit          int       `json:"limit"`
	IncludeRelated bool      `json:"include_related"`
	MaxDepth       int       `json:"max_depth"`
	QueryVectors   []float64 `json:"query_vectors,omitempty"`
}

// Chunk is one retrieved knowledge chunk.
type Chunk struct {
	ChunkID   string  `json:"chunk_id"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	ChunkType string  `json:"chunk_type"`
	SourceID  string  `json:"source_id"`
}

// HybridResult is the decoded hybrid search payload.
type HybridResult struct {
	Results           []Chunk  `json:"results"`
	RelatedEntities   []string `json:"related_entities"`
	VectorMatches     int      `json:"vector_matches"`
	GraphMatches      int      `json:"graph_matches"`
	CompletionReached bool     `json:"completion_reached"`
	Total             int      `json:"total"`
}

// postJSON posts a JSON body under the given timeout and returns the raw
// response payload. Non-2xx replies surface as StatusError.
func (c *Client) postJSON(ctx context.Context, url string, body any, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return payload, nil
}

// resultPeek decodes just enough of a search payload for logging.
type resultPeek struct {
	Results []json.RawMessage `json:"results"`
	Total   int               `json:"total"`
}

// Semantic runs a semantic vector search and returns the knowledge
// service's payload verbatim.
func (c *Client) Semantic(ctx context.Context, q SemanticQuery) (json.RawMessage, error) {
	payload, err := c.postJSON(ctx, c.searchURL+"/api/v1/search/semantic", q, c.timeout)
	if err != nil {
		return nil, err
	}

	var peek resultPeek
	if err := json.Unmarshal(payload, &peek); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	c.logger.Info("semantic search completed",
		"query", q.Query,
		"results", len(peek.Results),
		"total", peek.Total,
	)
	return payload, nil
}

// Hybrid runs a combined vector and graph search.
func (c *Client) Hybrid(ctx context.Context, q HybridQuery) (*HybridResult, error) {
	payload, err := c.postJSON(ctx, c.searchURL+"/api/v1/search/hybrid", q, 2*c.timeout)
	if err != nil {
		return nil, err
	}

	var result HybridResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decoding hybrid response: %w", err)
	}
	c.logger.Info("hybrid search completed",
		"query", q.Query,
		"results", len(result.Results),
		"entities", len(result.RelatedEntities),
	)
	return &result, nil
}

// embedRequest and embedResponse are the embeddings service wire shapes.
type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embeddings []float64 `json:"embeddings"`
}

// Vectorize turns query text into an embedding vector.
func (c *Client) Vectorize(ctx context.Context, text string) ([]float64, error) {
	payload, err := c.postJSON(ctx, c.embeddingsURL+"/api/v1/generate", embedRequest{Text: text}, c.timeout)
	if err != nil {
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding embeddings: %w", err)
	}
	return resp.Embeddings, nil
}

// Health probes the knowledge service's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}
