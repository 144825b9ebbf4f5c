package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/scionauction/core"
)

func testEvent(seq uint64, typ core.EventType) core.Event {
	value := decimal.RequireFromString("12.5")
	return core.Event{
		ID:       uuid.New(),
		Seq:      seq,
		Type:     typ,
		At:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Actor:    "alice",
		BidIndex: seq,
		Value:    &value,
	}
}

// exerciseJournal runs the behavior every Journal shares.
func exerciseJournal(t *testing.T, j Journal) {
	ctx := t.Context()

	last, err := j.LastSeq(ctx)
	assert.NoError(t, err)
	check.Equal(t, uint64(0), last)

	empty, err := j.List(ctx, 0, 10)
	assert.NoError(t, err)
	check.Equal(t, 0, len(empty))

	// Out of order appends come back ordered.
	for _, seq := range []uint64{2, 1, 3, 5, 4} {
		assert.NoError(t, j.Append(ctx, testEvent(seq, core.EventBidPlaced)))
	}

	// Re-appending a sequence number keeps the original.
	dup := testEvent(3, core.EventBidCanceled)
	assert.NoError(t, j.Append(ctx, dup))

	all, err := j.List(ctx, 0, 0)
	assert.NoError(t, err)
	assert.Equal(t, 5, len(all))
	for i, e := range all {
		check.Equal(t, uint64(i+1), e.Seq)
		check.Equal(t, core.EventBidPlaced, e.Type)
		check.Equal(t, core.Address("alice"), e.Actor)
		check.True(t, e.At.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
		assert.NotNil(t, e.Value)
		check.Equal(t, "12.5", e.Value.String())
	}

	page, err := j.List(ctx, 2, 2)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(page))
	check.Equal(t, uint64(3), page[0].Seq)
	check.Equal(t, uint64(4), page[1].Seq)

	tail, err := j.List(ctx, 5, 10)
	assert.NoError(t, err)
	check.Equal(t, 0, len(tail))

	last, err = j.LastSeq(ctx)
	assert.NoError(t, err)
	check.Equal(t, uint64(5), last)
}

func TestMemoryJournal(t *testing.T) {
	exerciseJournal(t, NewMemoryJournal())
}

func TestSQLiteJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	j, err := NewSQLiteJournal(path)
	assert.NoError(t, err)
	exerciseJournal(t, j)
	assert.NoError(t, j.Close())

	// Events survive a reopen.
	j, err = NewSQLiteJournal(path)
	assert.NoError(t, err)
	defer j.Close()
	last, err := j.LastSeq(t.Context())
	assert.NoError(t, err)
	check.Equal(t, uint64(5), last)
}

func TestPostgresJournal(t *testing.T) {
	dsn := os.Getenv("SCION_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SCION_TEST_POSTGRES_DSN not set")
	}
	j, err := NewPostgresJournal(dsn)
	assert.NoError(t, err)
	defer j.Close()

	_, err = j.db.ExecContext(t.Context(), `TRUNCATE scion_events`)
	assert.NoError(t, err)
	exerciseJournal(t, j)
}

func TestOpen(t *testing.T) {
	j, err := Open("memory", "")
	assert.NoError(t, err)
	_, ok := j.(*MemoryJournal)
	check.True(t, ok)

	j, err = Open("sqlite", filepath.Join(t.TempDir(), "open.db"))
	assert.NoError(t, err)
	check.NoError(t, j.Close())

	_, err = Open("sqlite", "")
	check.Error(t, err)
	_, err = Open("postgres", "")
	check.Error(t, err)
	_, err = Open("mongo", "x")
	check.Error(t, err)
}

func TestNormalizeLimit(t *testing.T) {
	check.Equal(t, DefaultListLimit, normalizeLimit(0))
	check.Equal(t, DefaultListLimit, normalizeLimit(-3))
	check.Equal(t, 7, normalizeLimit(7))
	check.Equal(t, MaxListLimit, normalizeLimit(MaxListLimit+1))
}

type failingJournal struct {
	*MemoryJournal
	calls int
}

func (f *failingJournal) Append(context.Context, core.Event) error {
	f.calls++
	return errors.New("disk full")
}

func TestSink(t *testing.T) {
	j := NewMemoryJournal()
	sink := NewSink(j, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// A canceled caller context does not stop the write.
	sink.Publish(ctx, testEvent(1, core.EventAuctionStarted))

	events, err := j.List(t.Context(), 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(events))
	check.Equal(t, core.EventAuctionStarted, events[0].Type)

	failing := &failingJournal{MemoryJournal: NewMemoryJournal()}
	NewSink(failing, nil).Publish(t.Context(), testEvent(2, core.EventAuctionFinished))
	check.Equal(t, 1, failing.calls)
}
