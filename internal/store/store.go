// ABOUTME: Store interface and data types for conhub-gateway audit persistence
// ABOUTME: Defines audit Event, Usage aggregates, and the NopStore fallback

package store

import (
	"context"
	"time"
)

// Event kinds recorded in the audit trail.
const (
	EventAuthOK       = "auth_ok"
	EventAuthDenied   = "auth_denied"
	EventRateLimited  = "rate_limited"
	EventSessionOpen  = "session_open"
	EventSessionClose = "session_close"
)

// Event is a single audit trail entry. Identity carries the admitted or
// attempted identity label; raw credentials are never stored.
type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Identity  string    `json:"identity,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Remote    string    `json:"remote,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Usage aggregates audit events for one identity.
type Usage struct {
	Identity string    `json:"identity"`
	Sessions int64     `json:"sessions"`
	Denials  int64     `json:"denials"`
	LastSeen time.Time `json:"last_seen"`
}

// Store defines the interface for audit event persistence
type Store interface {
	// Admission decisions (auth_ok, auth_denied, rate_limited)
	RecordAuth(ctx context.Context, event *Event) error

	// Session lifecycle (session_open, session_close)
	RecordSession(ctx context.Context, event *Event) error

	// RecentEvents returns up to limit events, newest first
	RecentEvents(ctx context.Context, limit int) ([]*Event, error)

	// UsageByIdentity aggregates events per identity, most recently active first
	UsageByIdentity(ctx context.Context) ([]*Usage, error)

	// Close releases any resources held by the store
	Close() error
}

// NopStore discards all events. It stands in when no database path is
// configured so callers never need a nil check.
type NopStore struct{}

var _ Store = NopStore{}

func (NopStore) RecordAuth(context.Context, *Event) error    { return nil }
func (NopStore) RecordSession(context.Context, *Event) error { return nil }

func (NopStore) RecentEvents(context.Context, int) ([]*Event, error) {
	return []*Event{}, nil
}

func (NopStore) UsageByIdentity(context.Context) ([]*Usage, error) {
	return []*Usage{}, nil
}

func (NopStore) Close() error { return nil }
