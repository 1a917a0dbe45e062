// Package handoff reads captured events from the shared SQLite buffer the
// capture agent writes into. The buffer decouples capture from ingestion: the
// agent appends rows offline and the server drains them on an interval.
package handoff

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite event buffer.
type Store struct {
	db *sql.DB
}

// Row is one buffered event. Seq is the drain cursor; Payload is the raw
// JSON event as the capture agent wrote it.
type Row struct {
	Seq     int64
	ID      string
	Ts      time.Time
	Payload []byte
}

// Open opens (or creates) the buffer database at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open handoff database: %w", err)
	}

	// WAL lets the capture agent keep appending while the server drains.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	migration := `
CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    ts INTEGER NOT NULL,
    payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
`
	if _, err := s.db.Exec(migration); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Append inserts one captured event. Duplicate ids are ignored so the capture
// agent can retry safely.
func (s *Store) Append(ctx context.Context, id string, ts time.Time, payload []byte) error {
	query := `INSERT OR IGNORE INTO events (id, ts, payload) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, id, ts.UnixMilli(), string(payload)); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListSince returns up to limit events with a sequence greater than seq,
// oldest first.
func (s *Store) ListSince(ctx context.Context, seq int64, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		SELECT seq, id, ts, payload
		FROM events
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, seq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var ms int64
		var payload string
		if err := rows.Scan(&r.Seq, &r.ID, &ms, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		r.Ts = time.UnixMilli(ms)
		r.Payload = []byte(payload)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return out, nil
}

// Prune deletes events older than the cutoff, returning the number removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE ts < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
