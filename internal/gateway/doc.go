// Package gateway orchestrates the conhub-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the conhub-gateway
// server. It owns and manages all major components: identity gate, session
// registry, engine client, audit store, metrics, and the HTTP server that
// carries both the WebSocket endpoint and the admin surface.
//
// # Gateway Struct
//
// The Gateway struct is the main entry point:
//
//	type Gateway struct {
//	    cfg      *config.Config
//	    gate     *auth.Gate
//	    registry *session.Registry
//	    engine   *engine.Client
//	    store    store.Store
//	    metrics  *metrics.Metrics
//	    // ... and the HTTP server
//	}
//
// # WebSocket Endpoint
//
// Agents connect at GET /ws with credentials as query parameters (token
// for bearer JWTs, key or api_key for API keys). After the upgrade the
// caller is admitted through the gate and registered in the session
// registry; rejections close the socket with 1008 (policy violation) for
// bad credentials or 1013 (try again later) for rate-limit and capacity
// rejections.
//
// Each connection runs one serial read loop. Every text frame is parsed
// as a JSON-RPC 2.0 request, forwarded to the engine, and the response is
// relayed back with the same id bytes. A frame that fails to parse gets a
// -32700 reply; a forwarding failure gets -32603. Neither ends the
// connection. A successful initialize exchange promotes the session to
// the ready state and records the client's declared name and version.
//
// # HTTP API
//
//   - GET /ws - Agent WebSocket endpoint
//   - GET /health - Liveness with engine and session detail
//   - GET /ready - Readiness check
//   - GET /admin/sessions - Live session list (admin role)
//   - GET /admin/stats - Registry stats plus per-identity usage (admin role)
//   - GET /admin/audit?limit=N - Recent audit events (admin role)
//   - GET /metrics - Prometheus text format
//
// Admin endpoints sit behind bearer authentication and require the admin
// role; missing credentials get 401, a non-admin identity 403.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	err = gw.Run(ctx)
//
// Run starts the engine, the idle-session sweep, and the HTTP server, and
// blocks until the context is canceled. Graceful shutdown stops the HTTP
// server first so no new frames arrive, then the engine, then closes the
// audit store.
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, Run/Shutdown
//   - ws.go: WebSocket handler and the per-frame relay pipeline
//   - api.go: Health and admin HTTP handlers
package gateway
