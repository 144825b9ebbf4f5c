package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cloudx-io/scionauction/core"
)

// SQLiteJournal stores events in a local SQLite database.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens or creates the database at path.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	// WAL and a busy timeout let readers run alongside the single writer.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		type TEXT NOT NULL,
		at TIMESTAMP NOT NULL,
		payload TEXT NOT NULL
	)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating events table: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func (s *SQLiteJournal) Append(ctx context.Context, event core.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event %d: %w", event.Seq, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (seq, id, type, at, payload) VALUES (?, ?, ?, ?, ?)`,
		event.Seq, event.ID.String(), string(event.Type), event.At.UTC(), string(payload))
	if err != nil {
		return fmt.Errorf("inserting event %d: %w", event.Seq, err)
	}
	return nil
}

func (s *SQLiteJournal) List(ctx context.Context, afterSeq uint64, limit int) ([]core.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE seq > ? ORDER BY seq LIMIT ?`,
		afterSeq, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	return scanEvents(rows)
}

func (s *SQLiteJournal) LastSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("reading last sequence: %w", err)
	}
	return seq, nil
}

func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}

func scanEvents(rows *sql.Rows) ([]core.Event, error) {
	defer rows.Close()

	events := []core.Event{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		var event core.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
