// Package store journals committed engine events. The journal is an audit
// feed for clients and operators; engine state is never rebuilt from it.
package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cloudx-io/scionauction/core"
)

// Default and maximum page sizes for List.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

const writeTimeout = 5 * time.Second

// Journal is an append-only log of events keyed by sequence number.
// Appending a sequence number that is already present is a no-op.
type Journal interface {
	Append(ctx context.Context, event core.Event) error
	// List returns up to limit events with Seq greater than afterSeq, in order.
	List(ctx context.Context, afterSeq uint64, limit int) ([]core.Event, error)
	// LastSeq returns the highest journaled sequence number, or 0.
	LastSeq(ctx context.Context) (uint64, error)
	Close() error
}

// Open returns the journal for driver: "memory", "sqlite" or "postgres".
func Open(driver, dsn string) (Journal, error) {
	switch driver {
	case "", "memory":
		return NewMemoryJournal(), nil
	case "sqlite", "sqlite3":
		if dsn == "" {
			return nil, fmt.Errorf("sqlite journal requires a database path")
		}
		return NewSQLiteJournal(dsn)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("postgres journal requires a connection string")
		}
		return NewPostgresJournal(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// Sink publishes engine events into a Journal. Write failures are logged and
// never reach the engine, whose operation has already committed.
type Sink struct {
	journal Journal
	log     *zap.Logger
}

// NewSink returns a sink writing to journal.
func NewSink(journal Journal, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{journal: journal, log: logger}
}

var _ core.EventSink = (*Sink)(nil)

func (s *Sink) Publish(ctx context.Context, event core.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := s.journal.Append(ctx, event); err != nil {
		s.log.Error("failed to journal event",
			zap.Uint64("seq", event.Seq),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}
