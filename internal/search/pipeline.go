// ABOUTME: Query pipeline running tokenize and vectorize ahead of hybrid retrieval.
// ABOUTME: Formats retrieved chunks as content items addressed by confuse://chunk URIs.

package search

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

var wordRuns = regexp.MustCompile(`\w+`)

// Tokenize splits a query into lower-cased word runs.
func Tokenize(query string) []string {
	return wordRuns.FindAllString(strings.ToLower(query), -1)
}

// Result is the outcome of one pipeline run.
type Result struct {
	Query             string
	Tokens            []string
	Chunks            []Chunk
	RelatedEntities   []string
	VectorMatches     int
	GraphMatches      int
	CompletionReached bool
	ElapsedMS         float64
}

// Processor drives the retrieval pipeline: the query is tokenized and
// vectorized concurrently, then both feed the hybrid retrieval call.
type Processor struct {
	client *Client
	logger *slog.Logger
}

// NewProcessor creates a processor over the given client.
func NewProcessor(client *Client, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		client: client,
		logger: logger.With("component", "pipeline"),
	}
}

// Timeout returns the bound on one hybrid retrieval, twice the
// semantic search bound.
func (p *Processor) Timeout() time.Duration {
	return 2 * p.client.timeout
}

// Process runs the pipeline for one query. A failed vectorization fails
// the whole run; hybrid retrieval never sees an unvectorized query.
func (p *Processor) Process(ctx context.Context, q HybridQuery) (*Result, error) {
	start := time.Now()

	var tokens []string
	var vectors []float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tokens = Tokenize(q.Query)
		return nil
	})
	g.Go(func() error {
		v, err := p.client.Vectorize(gctx, q.Query)
		if err != nil {
			return fmt.Errorf("vectorizing query: %w", err)
		}
		vectors = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	p.logger.Debug("query analyzed", "tokens", len(tokens), "dimensions", len(vectors))

	q.QueryVectors = vectors
	retrieved, err := p.client.Hybrid(ctx, q)
	if err != nil {
		return nil, err
	}

	return &Result{
		Query:             q.Query,
		Tokens:            tokens,
		Chunks:            retrieved.Results,
		RelatedEntities:   retrieved.RelatedEntities,
		VectorMatches:     retrieved.VectorMatches,
		GraphMatches:      retrieved.GraphMatches,
		CompletionReached: retrieved.CompletionReached,
		ElapsedMS:         time.Since(start).Seconds() * 1000,
	}, nil
}

// ContentItem is one formatted knowledge chunk.
type ContentItem struct {
	URI      string        `json:"uri"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkMetadata carries the per-chunk score and provenance.
type ChunkMetadata struct {
	Score     float64 `json:"score"`
	ChunkType string  `json:"chunk_type"`
	SourceID  string  `json:"source_id"`
}

// ResponseMetadata summarizes a pipeline run.
type ResponseMetadata struct {
	Query             string   `json:"query"`
	TotalResults      int      `json:"total_results"`
	RelatedEntities   []string `json:"related_entities,omitempty"`
	VectorMatches     int      `json:"vector_matches"`
	GraphMatches      int      `json:"graph_matches"`
	CompletionReached bool     `json:"completion_reached"`
	TimeMS            float64  `json:"time_ms"`
}

// FormattedResponse is a pipeline result shaped for tool consumption.
type FormattedResponse struct {
	Type     string           `json:"type"`
	Content  []ContentItem    `json:"content"`
	Metadata ResponseMetadata `json:"metadata"`
}

// FormatResponse shapes a pipeline result into one content item per
// chunk, each addressed by its confuse://chunk URI.
func FormatResponse(result *Result) FormattedResponse {
	items := make([]ContentItem, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		items = append(items, ContentItem{
			URI:  "confuse://chunk/" + chunk.ChunkID,
			Text: chunk.Content,
			Metadata: ChunkMetadata{
				Score:     chunk.Score,
				ChunkType: chunk.ChunkType,
				SourceID:  chunk.SourceID,
			},
		})
	}
	return FormattedResponse{
		Type:    "success",
		Content: items,
		Metadata: ResponseMetadata{
			Query:             result.Query,
			TotalResults:      len(result.Chunks),
			RelatedEntities:   result.RelatedEntities,
			VectorMatches:     result.VectorMatches,
			GraphMatches:      result.GraphMatches,
			CompletionReached: result.CompletionReached,
			TimeMS:            result.ElapsedMS,
		},
	}
}
