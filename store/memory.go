package store

import (
	"context"
	"sort"
	"sync"

	"github.com/cloudx-io/scionauction/core"
)

// MemoryJournal keeps events in process memory, for tests and single-run setups.
type MemoryJournal struct {
	mu     sync.RWMutex
	events []core.Event // ascending Seq
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (m *MemoryJournal) Append(_ context.Context, event core.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := sort.Search(len(m.events), func(i int) bool { return m.events[i].Seq >= event.Seq })
	if i < len(m.events) && m.events[i].Seq == event.Seq {
		return nil
	}
	m.events = append(m.events, core.Event{})
	copy(m.events[i+1:], m.events[i:])
	m.events[i] = event
	return nil
}

func (m *MemoryJournal) List(_ context.Context, afterSeq uint64, limit int) ([]core.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := sort.Search(len(m.events), func(i int) bool { return m.events[i].Seq > afterSeq })
	end := min(start+normalizeLimit(limit), len(m.events))
	out := make([]core.Event, end-start)
	copy(out, m.events[start:end])
	return out, nil
}

func (m *MemoryJournal) LastSeq(context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.events) == 0 {
		return 0, nil
	}
	return m.events[len(m.events)-1].Seq, nil
}

func (m *MemoryJournal) Close() error { return nil }
