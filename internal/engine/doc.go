// ABOUTME: Package documentation for the backend engine multiplexer.
// ABOUTME: Describes transports, correlation, and lifecycle guarantees.

// Package engine owns the single logical connection to the backend MCP
// engine and multiplexes every gateway session onto it.
//
// # Transports
//
// Two interchangeable transports sit behind the Transport interface,
// selected from config at construction:
//
//   - subprocess: the engine runs as a child process; requests are written
//     as one JSON object per line on its stdin and responses are read the
//     same way from its stdout.
//   - http: requests are POSTed to the engine's /mcp endpoint; the response
//     body is the response envelope.
//
// Callers only ever see the Client.
//
// # Correlation
//
// Every request carries an integer id; responses echo it. The Client
// assigns the next id to requests that arrive without one. In subprocess
// mode a single reader goroutine resolves responses against a pending map
// keyed by id, so backend replies may arrive in any order:
//
//	pending map[string]chan *mcp.Response
//
// Each pending entry is removed exactly once, by the matching response,
// by timeout cleanup, or by reader shutdown. A request times out after
// the configured request timeout (default 30s).
//
// # Lifecycle
//
// Start spawns the process (or allocates the HTTP client). Stop closes
// stdin, sends SIGTERM, waits out a bounded grace period, then kills.
// Stop is idempotent and safe after a partial Start failure. When the
// reader sees EOF the process is gone: all in-flight requests fail
// immediately with ErrEngineExited rather than waiting out their
// timeouts. The engine is never restarted automatically; health
// reporting surfaces the dead process instead.
package engine
