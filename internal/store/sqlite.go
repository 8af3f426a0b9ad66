// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists audit events with automatic schema creation and WAL mode

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	identity   TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	remote     TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	ts         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events(ts);
CREATE INDEX IF NOT EXISTS idx_audit_events_identity ON audit_events(identity);
`

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode so admin reads do not block event writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	logger.Info("audit store initialized", "path", path)
	return s, nil
}

// record inserts one event, generating its ID and timestamp when absent.
func (s *SQLiteStore) record(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, kind, identity, session_id, remote, detail, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Kind, event.Identity, event.SessionID, event.Remote, event.Detail,
		event.Timestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording %s event: %w", event.Kind, err)
	}

	s.logger.Debug("recorded audit event", "kind", event.Kind, "identity", event.Identity)
	return nil
}

// RecordAuth appends an admission decision to the audit trail.
func (s *SQLiteStore) RecordAuth(ctx context.Context, event *Event) error {
	return s.record(ctx, event)
}

// RecordSession appends a session lifecycle event to the audit trail.
func (s *SQLiteStore) RecordSession(ctx context.Context, event *Event) error {
	return s.record(ctx, event)
}

// normalizeEventLimit clamps the requested event count to a sane range.
func normalizeEventLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// RecentEvents returns up to limit events, newest first. A limit of zero or
// below selects the default of 100; requests above 1000 are capped.
func (s *SQLiteStore) RecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, identity, session_id, remote, detail, ts
		FROM audit_events
		ORDER BY ts DESC
		LIMIT ?`, normalizeEventLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		var e Event
		var ts string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Identity, &e.SessionID, &e.Remote, &e.Detail, &ts); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	return events, nil
}

// UsageByIdentity aggregates audit events per identity, most recently active
// first. Events recorded without an identity are skipped.
func (s *SQLiteStore) UsageByIdentity(ctx context.Context) ([]*Usage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity,
			SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END) AS sessions,
			SUM(CASE WHEN kind IN (?, ?) THEN 1 ELSE 0 END) AS denials,
			MAX(ts) AS last_seen
		FROM audit_events
		WHERE identity != ''
		GROUP BY identity
		ORDER BY last_seen DESC`,
		EventSessionOpen, EventAuthDenied, EventRateLimited)
	if err != nil {
		return nil, fmt.Errorf("querying usage: %w", err)
	}
	defer rows.Close()

	usage := []*Usage{}
	for rows.Next() {
		var u Usage
		var lastSeen string
		if err := rows.Scan(&u.Identity, &u.Sessions, &u.Denials, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning usage: %w", err)
		}
		u.LastSeen, err = time.Parse(time.RFC3339, lastSeen)
		if err != nil {
			return nil, fmt.Errorf("parsing usage timestamp: %w", err)
		}
		usage = append(usage, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage: %w", err)
	}

	return usage, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing audit store")
	return s.db.Close()
}
