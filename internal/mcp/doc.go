// Package mcp defines the JSON-RPC 2.0 wire types shared by the gateway
// and the knowledge engine.
//
// # Envelopes
//
// Request and Response model the JSON-RPC 2.0 envelope. IDs are kept as
// json.RawMessage so that numeric and string ids survive a round trip
// through the gateway byte-for-byte; correlation between agent and engine
// depends on that.
//
// A Request with no id (or an explicit null id) is a notification and
// must not receive a response.
//
// # Handshake
//
// InitializeParams and InitializeResult model the MCP initialize
// exchange. The gateway inspects initialize traffic to record client
// identity and to advance a session to its ready state, but relays the
// envelopes themselves untouched.
//
// # Tools
//
// ToolInfo, CallToolParams and CallToolResult model the tools/list and
// tools/call payloads served by the engine.
//
// # Server
//
// Server is the engine-side dispatcher for the MCP method set:
// initialize, ping, tools/list, tools/call, shutdown. One dispatch
// serves both transports the gateway can connect over: ServeStdio reads
// newline-delimited requests and answers one line each, and
// RegisterRoutes mounts the same dispatch at POST /mcp. Per-message
// failures (parse, envelope) answer -32700 and -32600 without ending
// the transport, the same contract the gateway applies to agent frames.
// A well-formed shutdown request ends the stdio loop after its response
// is written; over HTTP it just answers, since the process manager owns
// that lifecycle.
package mcp
