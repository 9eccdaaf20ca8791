// Package eventlog provides the SQLite-backed append-only event store. Every
// pipeline transition appends one record; nothing is ever updated or deleted.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// SQLite driver registered as "sqlite".
	_ "modernc.org/sqlite"

	"taskforge/pkg/logx"
	"taskforge/pkg/proto"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    event_id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    created_at TEXT NOT NULL,
    payload TEXT NOT NULL
);
`

// timestampLayout keeps the fractional seconds fixed-width. RFC3339Nano
// trims trailing zeros, which breaks lexicographic ordering of the TEXT
// column ("…00.5Z" sorts after "…00.52Z").
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is an append-only event log backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// New opens (or creates) the event store at dbPath. Parent directories are
// created as needed.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create event store directory: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping event store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize event schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{
		db:     db,
		logger: logx.NewLogger("eventlog"),
	}, nil
}

// Append inserts one event record. Records are immutable once written.
func (s *Store) Append(ctx context.Context, event proto.EventRecord) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, event_type, created_at, payload) VALUES (?, ?, ?, ?)`,
		event.EventID,
		string(event.EventType),
		event.CreatedAt.UTC().Format(timestampLayout),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append event %s: %w", event.EventType, err)
	}
	return nil
}

// FetchAll returns every event ordered by creation time ascending.
func (s *Store) FetchAll(ctx context.Context) ([]proto.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, event_type, created_at, payload FROM events ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []proto.EventRecord
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// Last returns the most recent event, or nil when the log is empty.
func (s *Store) Last(ctx context.Context) (*proto.EventRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT event_id, event_type, created_at, payload FROM events ORDER BY created_at DESC, rowid DESC LIMIT 1`)

	event, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close event store: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (proto.EventRecord, error) {
	var (
		eventID   string
		eventType string
		createdAt string
		payload   string
	)
	if err := row.Scan(&eventID, &eventType, &createdAt, &payload); err != nil {
		if err == sql.ErrNoRows {
			return proto.EventRecord{}, err
		}
		return proto.EventRecord{}, fmt.Errorf("failed to scan event row: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return proto.EventRecord{}, fmt.Errorf("failed to parse event timestamp %q: %w", createdAt, err)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return proto.EventRecord{}, fmt.Errorf("failed to decode event payload: %w", err)
	}

	return proto.EventRecord{
		EventID:   eventID,
		EventType: proto.EventType(eventType),
		CreatedAt: ts,
		Payload:   decoded,
	}, nil
}
