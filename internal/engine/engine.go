// ABOUTME: Client multiplexes JSON-RPC requests onto the single backend engine.
// ABOUTME: Assigns correlation ids and hides the transport choice from callers.

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/conhub/mcp-gateway/internal/config"
	"github.com/conhub/mcp-gateway/internal/mcp"
)

var (
	// ErrNotRunning is returned by Send when the transport has not been
	// started or has already been stopped.
	ErrNotRunning = errors.New("engine not running")

	// ErrTimeout is returned when the engine does not answer a request
	// within the configured request timeout.
	ErrTimeout = errors.New("engine request timed out")

	// ErrEngineExited is returned for requests that were in flight when
	// the engine process exited.
	ErrEngineExited = errors.New("engine exited")

	// ErrTransport wraps write, connection, and decode failures on the
	// path to the engine.
	ErrTransport = errors.New("engine transport failure")
)

// Transport delivers a single request to the engine and returns the
// response correlated to it.
type Transport interface {
	Start(ctx context.Context) error
	Send(ctx context.Context, req *mcp.Request) (*mcp.Response, error)
	Stop(ctx context.Context) error
	Running() bool
}

// Client is the single logical connection to the backend engine. All
// gateway connections share one Client; concurrent Sends are safe.
type Client struct {
	transport Transport
	mode      string
	nextID    atomic.Int64
	logger    *slog.Logger
}

// New builds a Client with the transport selected by cfg.Mode.
func New(cfg config.EngineConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")

	var transport Transport
	switch cfg.Mode {
	case config.EngineModeSubprocess:
		transport = newStdioTransport(cfg.Command, cfg.Args, cfg.RequestTimeout, cfg.StopGrace, logger)
	case config.EngineModeHTTP:
		transport = newHTTPTransport(cfg.URL, cfg.RequestTimeout, logger)
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}

	return &Client{transport: transport, mode: cfg.Mode, logger: logger}, nil
}

// Start establishes the transport: spawns the subprocess or allocates
// the HTTP client.
func (c *Client) Start(ctx context.Context) error {
	return c.transport.Start(ctx)
}

// Send forwards one request to the engine and returns the response whose
// id matches. A request without an id is given the next integer id before
// it is written; requests that already carry an id keep it untouched.
func (c *Client) Send(ctx context.Context, req *mcp.Request) (*mcp.Response, error) {
	if req.IsNotification() {
		req.ID = json.RawMessage(strconv.FormatInt(c.nextID.Add(1), 10))
	}
	return c.transport.Send(ctx, req)
}

// Stop shuts the transport down. Safe to call more than once and safe
// after a failed Start.
func (c *Client) Stop(ctx context.Context) error {
	return c.transport.Stop(ctx)
}

// Running reports whether the engine can currently take requests.
func (c *Client) Running() bool {
	return c.transport.Running()
}

// Mode returns the configured transport mode, for health reporting.
func (c *Client) Mode() string {
	return c.mode
}
