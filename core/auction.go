package core

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"time"
)

// AuctionLedger owns the bidding window and the bid records.
//
// Bids live in an arena indexed by slot. Bid indices map to slots through slotOf,
// and the global and per-owner enumerations keep a position map so a cancellation
// is a swap-delete that never renumbers another live bid.
type AuctionLedger struct {
	started  bool
	start    time.Time
	duration time.Duration

	nextIndex uint64
	slots     []Bid
	free      []int
	slotOf    map[uint64]int

	all      []uint64
	posAll   map[uint64]int
	owned    map[Address][]uint64
	posOwned map[uint64]int
}

// NewAuctionLedger returns an empty ledger whose window has never been started.
func NewAuctionLedger() *AuctionLedger {
	return &AuctionLedger{
		nextIndex: 1,
		slotOf:    make(map[uint64]int),
		posAll:    make(map[uint64]int),
		owned:     make(map[Address][]uint64),
		posOwned:  make(map[uint64]int),
	}
}

// State reports the window phase at now. Finishing by elapsed time needs no write.
func (l *AuctionLedger) State(now time.Time) AuctionState {
	if !l.started || now.Before(l.start) {
		return AuctionNotStarted
	}
	if now.Before(l.start.Add(l.duration)) {
		return AuctionActive
	}
	return AuctionFinished
}

// Start opens a window at start for duration. Calling it while a window is
// active replaces both values, which prolongs (or shortens) the running auction.
func (l *AuctionLedger) Start(start time.Time, duration time.Duration) {
	l.started = true
	l.start = start
	l.duration = duration
}

// Finish closes the window at now. An active window keeps its start and
// freezes duration to the elapsed time; a window not yet open collapses to now.
func (l *AuctionLedger) Finish(now time.Time) {
	switch l.State(now) {
	case AuctionActive:
		l.duration = now.Sub(l.start)
	case AuctionNotStarted:
		l.started = true
		l.start = now
		l.duration = 0
	}
}

// Window returns the configured start and duration.
func (l *AuctionLedger) Window() (time.Time, time.Duration) {
	return l.start, l.duration
}

// Append stores a new bid and returns it. Indices are 1-based and never reused.
func (l *AuctionLedger) Append(bidder Address, value Amount, at time.Time) Bid {
	bid := Bid{
		Index:    l.nextIndex,
		Bidder:   bidder,
		Value:    value,
		PlacedAt: at,
	}
	l.nextIndex++

	var slot int
	if n := len(l.free); n > 0 {
		slot = l.free[n-1]
		l.free = l.free[:n-1]
		l.slots[slot] = bid
	} else {
		slot = len(l.slots)
		l.slots = append(l.slots, bid)
	}
	l.slotOf[bid.Index] = slot

	l.posAll[bid.Index] = len(l.all)
	l.all = append(l.all, bid.Index)

	l.posOwned[bid.Index] = len(l.owned[bidder])
	l.owned[bidder] = append(l.owned[bidder], bid.Index)

	return bid
}

// Get returns the live bid stored under index.
func (l *AuctionLedger) Get(index uint64) (*Bid, bool) {
	slot, ok := l.slotOf[index]
	if !ok {
		return nil, false
	}
	return &l.slots[slot], true
}

// Remove deletes a bid from the arena and both enumerations.
func (l *AuctionLedger) Remove(index uint64) bool {
	slot, ok := l.slotOf[index]
	if !ok {
		return false
	}
	bidder := l.slots[slot].Bidder

	l.all = swapDelete(l.all, l.posAll, index)

	list := swapDelete(l.owned[bidder], l.posOwned, index)
	if len(list) == 0 {
		delete(l.owned, bidder)
	} else {
		l.owned[bidder] = list
	}

	delete(l.slotOf, index)
	l.slots[slot] = Bid{}
	l.free = append(l.free, slot)
	return true
}

func swapDelete(list []uint64, pos map[uint64]int, index uint64) []uint64 {
	i := pos[index]
	last := len(list) - 1
	if i != last {
		moved := list[last]
		list[i] = moved
		pos[moved] = i
	}
	delete(pos, index)
	return list[:last]
}

// CountAll returns the number of live bids.
func (l *AuctionLedger) CountAll() int {
	return len(l.all)
}

// CountOwned returns the number of live bids placed by addr.
func (l *AuctionLedger) CountOwned(addr Address) int {
	return len(l.owned[addr])
}

// List returns up to limit bids starting at offset in enumeration order.
// Appends land at the tail, so pages already read stay valid while bidding continues.
func (l *AuctionLedger) List(offset, limit int, scope ListScope, addr Address) []Bid {
	source := l.all
	if scope == ScopeOwned {
		source = l.owned[addr]
	}
	if offset < 0 || limit <= 0 || offset >= len(source) {
		return []Bid{}
	}
	end := offset + limit
	if end > len(source) || end < offset {
		end = len(source)
	}

	out := make([]Bid, 0, end-offset)
	for _, index := range source[offset:end] {
		out = append(out, l.slots[l.slotOf[index]])
	}
	return out
}

// Digest computes a hash over the live bids in index order.
//
// Formula: SHA256 over one "index|bidder|value|claimed\n" line per bid, with value
// in canonical decimal form.
func (l *AuctionLedger) Digest() string {
	indices := append([]uint64(nil), l.all...)
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	h := sha256.New()
	for _, index := range indices {
		bid := l.slots[l.slotOf[index]]
		fmt.Fprintf(h, "%d|%s|%s|%t\n", bid.Index, bid.Bidder, bid.Value.String(), bid.Claimed)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
