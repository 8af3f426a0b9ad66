// ABOUTME: Health, readiness, and admin HTTP handlers for the gateway.
// ABOUTME: Admin endpoints expose session, usage, and audit views to operators.

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/conhub/mcp-gateway/internal/session"
	"github.com/conhub/mcp-gateway/internal/store"
)

// serviceName identifies this gateway in health responses.
const serviceName = "conhub-gateway"

// EngineStatus is the engine section of the health response.
type EngineStatus struct {
	Mode    string `json:"mode"`
	Running bool   `json:"running"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string        `json:"status"`
	Service  string        `json:"service"`
	Engine   EngineStatus  `json:"engine"`
	Sessions session.Stats `json:"sessions"`
}

// SessionListResponse is the JSON response for GET /admin/sessions.
type SessionListResponse struct {
	Sessions []session.Session `json:"sessions"`
	Count    int               `json:"count"`
}

// StatsResponse is the JSON response for GET /admin/stats.
type StatsResponse struct {
	Sessions session.Stats  `json:"sessions"`
	Usage    []*store.Usage `json:"usage"`
}

// AuditResponse is the JSON response for GET /admin/audit.
type AuditResponse struct {
	Events []*store.Event `json:"events"`
	Count  int            `json:"count"`
}

// handleHealth reports gateway liveness with engine and session detail.
// Always 200; the engine being down shows up as status "degraded".
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	running := g.engine.Running()
	status := "ok"
	if !running {
		status = "degraded"
	}

	response := HealthResponse{
		Status:  status,
		Service: serviceName,
		Engine: EngineStatus{
			Mode:    g.engine.Mode(),
			Running: running,
		},
		Sessions: g.registry.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleReady returns 200 once the HTTP server is accepting connections.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleAdminSessions handles GET /admin/sessions.
func (g *Gateway) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessions := g.registry.List()
	response := SessionListResponse{
		Sessions: sessions,
		Count:    len(sessions),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleAdminStats handles GET /admin/stats, combining live registry
// counts with per-identity usage from the audit store.
func (g *Gateway) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	usage, err := g.store.UsageByIdentity(r.Context())
	if err != nil {
		g.logger.Error("usage query failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "usage query failed")
		return
	}

	response := StatsResponse{
		Sessions: g.registry.Stats(),
		Usage:    usage,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleAdminAudit handles GET /admin/audit?limit=N.
func (g *Gateway) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	events, err := g.store.RecentEvents(r.Context(), limit)
	if err != nil {
		g.logger.Error("audit query failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "audit query failed")
		return
	}

	response := AuditResponse{
		Events: events,
		Count:  len(events),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
