// ABOUTME: In-memory session registry with capacity enforcement and idle expiry.
// ABOUTME: Owns all session records; callers hold ids and read through snapshots.

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conhub/mcp-gateway/internal/window"
)

// ErrCapacity indicates the registry is full and no session was created.
var ErrCapacity = errors.New("session capacity reached")

// ErrNotFound indicates the specified session was not found.
var ErrNotFound = errors.New("session not found")

// State is the connection lifecycle state of a session.
type State string

// Session lifecycle states.
const (
	StateConnecting   State = "connecting"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateClosing      State = "closing"
	StateClosed       State = "closed"
	StateError        State = "error"
)

// States lists every lifecycle state, in lifecycle order. Stats reports a
// bucket for each.
var States = []State{
	StateConnecting,
	StateInitializing,
	StateReady,
	StateClosing,
	StateClosed,
	StateError,
}

// Session is one logical client connection. Values returned by the
// registry are snapshots; mutate through Update and Touch.
type Session struct {
	ID            string            `json:"id"`
	State         State             `json:"state"`
	ClientName    string            `json:"client_name,omitempty"`
	ClientVersion string            `json:"client_version,omitempty"`
	ConnectedAt   time.Time         `json:"connected_at"`
	LastActivity  time.Time         `json:"last_activity"`
	RequestCount  int64             `json:"request_count"`
	UserID        string            `json:"user_id,omitempty"`
	APIKeyID      string            `json:"api_key_id,omitempty"`
	TenantID      string            `json:"tenant_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Update describes a partial mutation of a session. Zero-valued fields are
// left unchanged. Every Update refreshes last_activity.
type Update struct {
	State         State
	ClientName    string
	ClientVersion string
}

// Stats summarizes the registry contents.
type Stats struct {
	Total         int           `json:"total"`
	Max           int           `json:"max"`
	ByState       map[State]int `json:"by_state"`
	TotalRequests int64         `json:"total_requests"`
}

// Removal reasons passed to the OnRemove hook.
const (
	RemoveReasonClosed  = "closed"
	RemoveReasonExpired = "expired"
)

// Config carries the registry settings.
type Config struct {
	MaxClients    int
	IdleTimeout   time.Duration
	SweepInterval time.Duration

	// OnRemove, if set, runs after a session leaves the registry. It is
	// called outside the registry lock.
	OnRemove func(sess Session, reason string)

	Logger *slog.Logger
}

// Registry coordinates all live sessions. It is the sole owner of session
// records; connection handlers keep only session ids.
type Registry struct {
	cfg      Config
	logger   *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry creates a registry enforcing the configured capacity.
func NewRegistry(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// NewSession carries the identity attributes recorded at creation.
type NewSession struct {
	UserID   string
	APIKeyID string
	TenantID string
	Metadata map[string]string
}

// Create registers a new session in the connecting state. The capacity
// check and the insert are one atomic step: concurrent creates cannot
// overshoot the limit. Returns ErrCapacity when the registry is full.
func (r *Registry) Create(attrs NewSession) (Session, error) {
	now := r.now()
	sess := &Session{
		ID:           uuid.New().String(),
		State:        StateConnecting,
		ConnectedAt:  now,
		LastActivity: now,
		UserID:       attrs.UserID,
		APIKeyID:     attrs.APIKeyID,
		TenantID:     attrs.TenantID,
		Metadata:     attrs.Metadata,
	}

	r.mu.Lock()
	if r.cfg.MaxClients > 0 && len(r.sessions) >= r.cfg.MaxClients {
		r.mu.Unlock()
		return Session{}, ErrCapacity
	}
	r.sessions[sess.ID] = sess
	total := len(r.sessions)
	snap := snapshot(sess)
	r.mu.Unlock()

	r.logger.Info("session created",
		"session_id", sess.ID,
		"user_id", attrs.UserID,
		"total_sessions", total,
	)
	return snap, nil
}

// Get returns a snapshot of the session with the given id.
func (r *Registry) Get(id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return snapshot(sess), nil
}

// Update applies a partial mutation and refreshes last_activity.
func (r *Registry) Update(id string, upd Update) error {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if upd.State != "" {
		sess.State = upd.State
	}
	if upd.ClientName != "" {
		sess.ClientName = upd.ClientName
	}
	if upd.ClientVersion != "" {
		sess.ClientVersion = upd.ClientVersion
	}
	touchLocked(sess, now)
	return nil
}

// Touch records one inbound message: refreshes last_activity and
// increments the request counter.
func (r *Registry) Touch(id string) error {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	touchLocked(sess, now)
	sess.RequestCount++
	return nil
}

// Remove deletes a session. Removing an unknown id is a no-op, so the
// deferred cleanup path and the sweep can race without error.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	total := len(r.sessions)
	snap := snapshot(sess)
	r.mu.Unlock()

	r.logger.Info("session removed",
		"session_id", id,
		"state", string(snap.State),
		"requests", snap.RequestCount,
		"total_sessions", total,
	)
	if r.cfg.OnRemove != nil {
		r.cfg.OnRemove(snap, RemoveReasonClosed)
	}
}

// List returns a snapshot of every live session.
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, snapshot(sess))
	}
	return out
}

// Stats returns per-state counts, totals, and the summed request count.
// The snapshot is taken under one lock: it never observes a session
// half-created or half-removed.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total:   len(r.sessions),
		Max:     r.cfg.MaxClients,
		ByState: make(map[State]int, len(States)),
	}
	for _, state := range States {
		stats.ByState[state] = 0
	}
	for _, sess := range r.sessions {
		stats.ByState[sess.State]++
		stats.TotalRequests += sess.RequestCount
	}
	return stats
}

// Run sweeps expired sessions every SweepInterval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	interval := r.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Debug("session sweep started",
		"interval", interval,
		"idle_timeout", r.cfg.IdleTimeout,
	)
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("session sweep stopped")
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep removes every session idle past the configured timeout.
func (r *Registry) sweep() {
	if r.cfg.IdleTimeout <= 0 {
		return
	}
	cutoff := window.Cutoff(r.now(), r.cfg.IdleTimeout)

	r.mu.Lock()
	var expired []Session
	for id, sess := range r.sessions {
		if sess.LastActivity.Before(cutoff) {
			expired = append(expired, snapshot(sess))
			delete(r.sessions, id)
		}
	}
	total := len(r.sessions)
	r.mu.Unlock()

	for _, snap := range expired {
		r.logger.Info("session expired",
			"session_id", snap.ID,
			"state", string(snap.State),
			"idle_since", snap.LastActivity,
			"total_sessions", total,
		)
		if r.cfg.OnRemove != nil {
			r.cfg.OnRemove(snap, RemoveReasonExpired)
		}
	}
}

// touchLocked advances last_activity, keeping it monotonic even if the
// clock steps backwards. Caller holds r.mu.
func touchLocked(sess *Session, now time.Time) {
	if now.After(sess.LastActivity) {
		sess.LastActivity = now
	}
}

// snapshot copies a session, including its metadata map, so callers can
// never mutate registry-owned state.
func snapshot(sess *Session) Session {
	out := *sess
	if sess.Metadata != nil {
		out.Metadata = make(map[string]string, len(sess.Metadata))
		for k, v := range sess.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
