// ABOUTME: WebSocket handler terminating agent sessions and relaying JSON-RPC to the engine
// ABOUTME: One serial read loop per connection keeps frame ordering strict

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/conhub/mcp-gateway/internal/auth"
	"github.com/conhub/mcp-gateway/internal/mcp"
	"github.com/conhub/mcp-gateway/internal/session"
	"github.com/conhub/mcp-gateway/internal/store"
)

// maxFrameBytes caps one inbound WebSocket frame, matching the line limit
// of the stdio transport.
const maxFrameBytes = 4 << 20

// handleWS upgrades the socket, admits the caller, registers a session,
// and runs the read loop until the connection ends.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	creds := auth.Credentials{
		Token:      r.URL.Query().Get("token"),
		Key:        r.URL.Query().Get("key"),
		RemoteAddr: r.RemoteAddr,
	}
	if creds.Key == "" {
		creds.Key = r.URL.Query().Get("api_key")
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.cfg.CORS.Origins,
	})
	if err != nil {
		g.logger.Debug("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	// Admission runs after the upgrade so rejections can carry a close code.
	identity, err := g.gate.Admit(r.Context(), creds)
	if err != nil {
		g.rejectSocket(conn, r.RemoteAddr, err)
		return
	}
	g.recordAuthEvent(store.EventAuthOK, identity.Key(), r.RemoteAddr, "")

	sess, err := g.registry.Create(session.NewSession{
		UserID:   identity.UserID,
		APIKeyID: identity.APIKeyID,
	})
	if err != nil {
		g.metrics.RateLimited.Inc()
		g.recordAuthEvent(store.EventRateLimited, identity.Key(), r.RemoteAddr, err.Error())
		_ = conn.Close(websocket.StatusTryAgainLater, closeReason(err))
		return
	}
	g.recordSessionEvent(store.EventSessionOpen, sess, r.RemoteAddr, "")

	// Runs on every exit path, whatever state the session reached.
	defer func() {
		_ = g.registry.Update(sess.ID, session.Update{State: session.StateClosed})
		g.registry.Remove(sess.ID)
	}()

	if err := g.registry.Update(sess.ID, session.Update{State: session.StateInitializing}); err != nil {
		g.logger.Warn("session update failed", "session_id", sess.ID, "error", err)
	}
	g.updateSessionGauge()

	conn.SetReadLimit(maxFrameBytes)

	g.logger.Info("connection open",
		"session_id", sess.ID,
		"user_id", identity.UserID,
		"remote", r.RemoteAddr,
	)

	g.serveConn(r.Context(), conn, sess.ID)
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// rejectSocket closes an upgraded-then-refused socket with the close code
// the rejection maps to: 1013 for rate limiting, 1008 otherwise.
func (g *Gateway) rejectSocket(conn *websocket.Conn, remote string, err error) {
	if errors.Is(err, auth.ErrRateLimited) {
		g.metrics.RateLimited.Inc()
		g.recordAuthEvent(store.EventRateLimited, "", remote, err.Error())
		_ = conn.Close(websocket.StatusTryAgainLater, closeReason(err))
		return
	}
	g.metrics.AuthFailures.Inc()
	g.recordAuthEvent(store.EventAuthDenied, "", remote, err.Error())
	_ = conn.Close(websocket.StatusPolicyViolation, closeReason(err))
}

// closeReason trims an error message to the 123-byte payload limit of a
// close frame.
func closeReason(err error) string {
	const max = 123
	msg := err.Error()
	if len(msg) > max {
		msg = msg[:max]
	}
	return msg
}

// serveConn is the per-connection read loop. Frames are handled one at a
// time in arrival order; the loop exits on the first socket error.
func (g *Gateway) serveConn(ctx context.Context, conn *websocket.Conn, sessionID string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			g.logger.Debug("connection closed",
				"session_id", sessionID,
				"close_status", int(websocket.CloseStatus(err)),
				"error", err,
			)
			return
		}
		g.handleFrame(ctx, conn, sessionID, data)
	}
}

// handleFrame applies the per-message pipeline: parse, touch, validate,
// forward, relay. Protocol errors are answered on the open connection;
// only socket failures end it.
func (g *Gateway) handleFrame(ctx context.Context, conn *websocket.Conn, sessionID string, data []byte) {
	g.metrics.Requests.Inc()

	var req mcp.Request
	if err := json.Unmarshal(data, &req); err != nil {
		g.writeResponse(ctx, conn, sessionID, mcp.NewError(nil, mcp.CodeParseError, "Parse error"))
		return
	}

	if err := g.registry.Touch(sessionID); err != nil {
		g.logger.Warn("touch failed", "session_id", sessionID, "error", err)
	}

	if err := req.Validate(); err != nil {
		g.writeResponse(ctx, conn, sessionID, mcp.NewError(req.ID, mcp.CodeInvalidRequest, err.Error()))
		return
	}

	start := time.Now()
	resp, err := g.engine.Send(ctx, &req)
	g.metrics.ForwardSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		g.metrics.EngineErrors.Inc()
		g.logger.Error("forward failed",
			"session_id", sessionID,
			"method", req.Method,
			"error", err,
		)
		g.writeResponse(ctx, conn, sessionID, mcp.NewError(req.ID, mcp.CodeInternalError, "Internal error: "+err.Error()))
		return
	}

	// The response relays as-is: raw id bytes, untouched result or error.
	g.writeResponse(ctx, conn, sessionID, resp)

	if req.Method == "initialize" && resp.Error == nil {
		g.completeHandshake(sessionID, req.Params)
	}
}

// writeResponse sends one JSON-RPC response frame. Write errors only get
// logged; the read loop notices the dead socket on its next Read.
func (g *Gateway) writeResponse(ctx context.Context, conn *websocket.Conn, sessionID string, resp *mcp.Response) {
	if err := wsjson.Write(ctx, conn, resp); err != nil {
		g.logger.Debug("write failed", "session_id", sessionID, "error", err)
	}
}

// completeHandshake promotes the session to ready, recording the client
// name and version the agent declared in its initialize params.
func (g *Gateway) completeHandshake(sessionID string, params json.RawMessage) {
	var init mcp.InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &init); err != nil {
			g.logger.Debug("unparseable initialize params", "session_id", sessionID, "error", err)
		}
	}
	if err := g.registry.Update(sessionID, session.Update{
		State:         session.StateReady,
		ClientName:    init.ClientInfo.Name,
		ClientVersion: init.ClientInfo.Version,
	}); err != nil {
		g.logger.Warn("session update failed", "session_id", sessionID, "error", err)
		return
	}
	g.updateSessionGauge()
	g.logger.Info("session ready",
		"session_id", sessionID,
		"client", init.ClientInfo.Name,
		"version", init.ClientInfo.Version,
	)
}
