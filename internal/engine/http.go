// ABOUTME: HTTP transport posting JSON-RPC envelopes to a remote engine.
// ABOUTME: No background reader; HTTP request/response is already unary.

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/conhub/mcp-gateway/internal/mcp"
)

type httpTransport struct {
	url     string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	client *http.Client
}

func newHTTPTransport(url string, timeout time.Duration, logger *slog.Logger) *httpTransport {
	return &httpTransport{
		url:     strings.TrimRight(url, "/"),
		timeout: timeout,
		logger:  logger,
	}
}

// Start allocates the reusable client.
func (t *httpTransport) Start(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.client = &http.Client{Timeout: t.timeout}
	t.logger.Info("engine client ready", "url", t.url)
	return nil
}

// Send posts one envelope to the engine's /mcp endpoint and decodes the
// body as the response envelope.
func (t *httpTransport) Send(ctx context.Context, req *mcp.Request) (*mcp.Response, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return nil, ErrNotRunning
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url+"/mcp", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: engine returned status %d", ErrTransport, httpResp.StatusCode)
	}

	var resp mcp.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: decode engine response: %v", ErrTransport, err)
	}
	return &resp, nil
}

// Stop releases the client. Safe to call twice.
func (t *httpTransport) Stop(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		t.client.CloseIdleConnections()
		t.client = nil
	}
	return nil
}

// Running reports whether the client is allocated.
func (t *httpTransport) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil
}
