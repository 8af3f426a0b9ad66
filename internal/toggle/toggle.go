// ABOUTME: Feature toggle client resolving named toggles against the toggle service.
// ABOUTME: Verdicts are cached briefly so hot tools do not hammer the service.

package toggle

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	requestTimeout = 5 * time.Second
	cacheTTL       = 60 * time.Second
	cacheSize      = 256
)

// Client checks feature toggles against the toggle service. An unreachable
// service yields the caller's default, so features fail toward disabled.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *expirable.LRU[string, bool]
	logger  *slog.Logger
}

// New creates a toggle client for the given service base URL.
func New(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		cache:   expirable.NewLRU[string, bool](cacheSize, nil, cacheTTL),
		logger:  logger.With("component", "toggles"),
	}
}

// togglePayload is the service's response body for one toggle. Enabled is
// a pointer so an absent field falls back to the caller's default.
type togglePayload struct {
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled"`
}

// IsEnabled reports whether the named toggle is on. Cache hits skip the
// service. A missing toggle or a failed lookup returns def uncached, so
// the next check retries the service.
func (c *Client) IsEnabled(ctx context.Context, name string, def bool) bool {
	if enabled, ok := c.cache.Get(name); ok {
		return enabled
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/toggles/"+name, nil)
	if err != nil {
		c.logger.Warn("building toggle request", "toggle", name, "error", err)
		return def
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("toggle service unreachable", "toggle", name, "error", err)
		return def
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		c.logger.Debug("toggle not found", "toggle", name)
		return def
	default:
		c.logger.Warn("toggle lookup failed", "toggle", name, "status", resp.StatusCode)
		return def
	}

	var payload togglePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Warn("decoding toggle response", "toggle", name, "error", err)
		return def
	}

	enabled := def
	if payload.Enabled != nil {
		enabled = *payload.Enabled
	}
	c.cache.Add(name, enabled)
	return enabled
}

// ClearCache drops every cached verdict.
func (c *Client) ClearCache() {
	c.cache.Purge()
}
