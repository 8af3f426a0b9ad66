// Package store provides the audit trail for the gateway using SQLite.
//
// # Events
//
// Every admission decision and session lifecycle transition is recorded as
// an Event with one of five kinds:
//
//   - auth_ok: a connection was admitted
//   - auth_denied: credentials were missing or invalid
//   - rate_limited: an identity exceeded its admission rate
//   - session_open: a session entered the registry
//   - session_close: a session left the registry
//
// Events carry the identity label and session id, never credential
// material. The gateway writes them on its hot path but treats write
// failures as log-and-continue; a broken audit database must not take
// down agent traffic.
//
// # Implementations
//
// SQLiteStore persists events in a single audit_events table using the
// pure-Go modernc.org/sqlite driver:
//
//	PRAGMA journal_mode=WAL;
//
// The schema is created automatically on open and parent directories are
// created as needed. Timestamps are stored as RFC3339 UTC strings.
//
// NopStore discards everything and is used when no database path is
// configured.
//
// # Queries
//
// RecentEvents serves the admin audit endpoint, newest first, with the
// limit clamped to at most 1000 (default 100). UsageByIdentity aggregates
// session and denial counts per identity for the admin stats view.
package store
