package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/cloudx-io/scionauction/core"
)

// PostgresJournal stores events in PostgreSQL.
type PostgresJournal struct {
	db *sql.DB
}

// NewPostgresJournal connects with dsn and creates the schema if needed.
func NewPostgresJournal(dsn string) (*PostgresJournal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	j := &PostgresJournal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return j, nil
}

func (j *PostgresJournal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scion_events (
		seq BIGINT PRIMARY KEY,
		id UUID NOT NULL,
		type VARCHAR(32) NOT NULL,
		at TIMESTAMP WITH TIME ZONE NOT NULL,
		payload JSONB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scion_events_type ON scion_events(type);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := j.db.ExecContext(ctx, schema)
	return err
}

func (j *PostgresJournal) Append(ctx context.Context, event core.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event %d: %w", event.Seq, err)
	}

	query := `
	INSERT INTO scion_events (seq, id, type, at, payload)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (seq) DO NOTHING
	`
	_, err = j.db.ExecContext(ctx, query,
		int64(event.Seq),
		event.ID.String(),
		string(event.Type),
		event.At.UTC(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("inserting event %d: %w", event.Seq, err)
	}
	return nil
}

func (j *PostgresJournal) List(ctx context.Context, afterSeq uint64, limit int) ([]core.Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT payload FROM scion_events WHERE seq > $1 ORDER BY seq LIMIT $2`,
		int64(afterSeq), normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	return scanEvents(rows)
}

func (j *PostgresJournal) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	if err := j.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM scion_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("reading last sequence: %w", err)
	}
	return uint64(seq), nil
}

func (j *PostgresJournal) Close() error {
	return j.db.Close()
}
