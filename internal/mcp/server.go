// ABOUTME: Transport-independent JSON-RPC dispatch for the engine's MCP server.
// ABOUTME: Serves newline-delimited stdio and HTTP POST /mcp from one method table.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// MaxLineBytes bounds one request, on either transport. It matches the
// line limit the gateway's stdio client reads with, so anything the
// server accepts the client can relay.
const MaxLineBytes = 4 << 20

// ErrUnknownTool reports a tools/call against an unregistered name.
var ErrUnknownTool = errors.New("unknown tool")

// ToolSource supplies the listing and dispatch behind tools/list and
// tools/call. Call failures wrapping ErrUnknownTool map to invalid
// params; anything else maps to an internal error.
type ToolSource interface {
	List() []ToolInfo
	Call(ctx context.Context, name string, args json.RawMessage) (*CallToolResult, error)
}

// ServerConfig configures the engine-side MCP server.
type ServerConfig struct {
	// Name and Version identify the server in initialize results.
	Name    string
	Version string
	Tools   ToolSource
	Logger  *slog.Logger
}

// Server dispatches JSON-RPC requests to the MCP method set: initialize,
// ping, tools/list, tools/call, shutdown. The same dispatch serves both
// transports.
type Server struct {
	name    string
	version string
	tools   ToolSource
	logger  *slog.Logger
}

// NewServer creates an MCP server over the given tool source.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Tools == nil {
		return nil, errors.New("tool source is required")
	}
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		name:    cfg.Name,
		version: cfg.Version,
		tools:   cfg.Tools,
		logger:  logger.With("component", "mcp"),
	}, nil
}

// Handle dispatches one validated request. Notifications return nil:
// they receive no response on any transport.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	if req.IsNotification() {
		s.logger.Debug("notification dropped", "method", req.Method)
		return nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return s.result(req.ID, struct{}{})
	case "tools/list":
		return s.result(req.ID, ListToolsResult{Tools: s.tools.List()})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "shutdown":
		s.logger.Info("shutdown requested")
		return s.result(req.ID, struct{}{})
	default:
		return NewError(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewError(req.ID, CodeInvalidParams, "invalid initialize params")
		}
	}

	s.logger.Info("initialize",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", params.ProtocolVersion,
	)

	return s.result(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    Capabilities{Tools: map[string]any{}},
		ServerInfo:      ServerInfo{Name: s.name, Version: s.version},
	})
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewError(req.ID, CodeInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return NewError(req.ID, CodeInvalidParams, "tool name is required")
	}

	result, err := s.tools.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, ErrUnknownTool) {
			return NewError(req.ID, CodeInvalidParams, err.Error())
		}
		s.logger.Error("tool call failed", "tool", params.Name, "error", err)
		return NewError(req.ID, CodeInternalError, "tool execution failed")
	}
	return s.result(req.ID, result)
}

// result wraps NewResult, downgrading encoding failures to internal
// errors so dispatch always produces a response for a request.
func (s *Server) result(id json.RawMessage, payload any) *Response {
	resp, err := NewResult(id, payload)
	if err != nil {
		s.logger.Error("encoding result failed", "error", err)
		return NewError(id, CodeInternalError, "internal error")
	}
	return resp
}

// dispatch parses and validates one raw request, then hands it to
// Handle. It mirrors the per-frame contract the gateway applies on its
// socket side: parse failures answer -32700, envelope failures -32600,
// and neither ends the transport.
func (s *Server) dispatch(ctx context.Context, line []byte) (*Response, *Request) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return NewError(nil, CodeParseError, "Parse error"), nil
	}
	if err := req.Validate(); err != nil {
		if req.IsNotification() {
			s.logger.Debug("invalid notification dropped", "error", err)
			return nil, &req
		}
		return NewError(req.ID, CodeInvalidRequest, err.Error()), &req
	}
	return s.Handle(ctx, &req), &req
}

// ServeStdio reads newline-delimited requests from r and writes one-line
// responses to w until EOF or a successful shutdown request.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp, req := s.dispatch(ctx, line)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}

		if req != nil && req.Method == "shutdown" && resp.Error == nil {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	s.logger.Info("stdin closed")
	return nil
}

// RegisterRoutes mounts the HTTP transport on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.handleHTTP)
}

// handleHTTP serves one JSON-RPC request per POST body. Notifications
// are accepted with 202 and no body.
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxLineBytes+1))
	if err != nil {
		s.writeHTTP(w, NewError(nil, CodeParseError, "failed to read request body"))
		return
	}
	if len(body) > MaxLineBytes {
		s.writeHTTP(w, NewError(nil, CodeInvalidRequest, "request body too large"))
		return
	}

	resp, _ := s.dispatch(r.Context(), bytes.TrimSpace(body))
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.writeHTTP(w, resp)
}

func (s *Server) writeHTTP(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}
