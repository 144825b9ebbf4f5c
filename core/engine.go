package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RerollPolicy restricts which candidates a reroll may land on.
type RerollPolicy struct {
	NoDowngrade    bool `json:"no_downgrade"`
	SameWeightOnly bool `json:"same_weight_only"`
	RarityPlus     bool `json:"rarity_plus"`
}

// Config holds the engine's accounts, limits and prices.
type Config struct {
	Operator        Address
	Treasury        Address
	Escrow          Address
	PromotionHolder Address
	BurnAddress     Address

	MinimumBid           Amount
	MaxBidsPerCall       int
	MaxClaimsPerCall     int
	MaxPromotionsPerCall int
	TotalBidsLimit       int // 0 means unlimited

	MaxWeight       uint64
	RerollBasePrice Amount
	Policy          RerollPolicy
}

// DefaultConfig returns limits matching the reference deployment: a minimum bid
// of 1, 30 items per batch call and weights up to 200.
func DefaultConfig() Config {
	return Config{
		Operator:             "operator",
		Treasury:             "treasury",
		Escrow:               "escrow",
		PromotionHolder:      "promotion-holder",
		BurnAddress:          "0x0000000000000000000000000000000000000000",
		MinimumBid:           decimal.NewFromInt(1),
		MaxBidsPerCall:       30,
		MaxClaimsPerCall:     30,
		MaxPromotionsPerCall: 30,
		MaxWeight:            200,
		RerollBasePrice:      decimal.NewFromInt(10),
	}
}

// Dependencies are the external collaborators the engine settles against.
type Dependencies struct {
	Funds       PaymentInstrument // bids, refunds, promotion purchases
	RerollFunds PaymentInstrument // reroll payments
	Passes      TokenRegistry
	Scions      TokenRegistry
	Random      RandomSource

	// Creatures holds one registry per creature line sold in batches. Lines
	// without a registry have no sale.
	Creatures map[CreatureLine]TokenRegistry
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.log = logger }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithEventSink sets where committed events are published.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithEventSeq continues event numbering after seq, typically the last
// sequence number already journaled.
func WithEventSeq(seq uint64) Option {
	return func(e *Engine) { e.seq = seq }
}

// Engine serializes every operation on the auction and trait state.
// Each call runs to completion under one lock and either commits fully or is
// rolled back, and its events are published only after it commits.
type Engine struct {
	mu    sync.Mutex
	cfg   Config
	deps  Dependencies
	log   *zap.Logger
	clock func() time.Time
	sink  EventSink
	seq   uint64

	ledger    *AuctionLedger
	classes   *ClassResolver
	catalog   *WeightedCatalog
	issuer    *PassIssuer
	traits    *TraitGenerator
	creatures *CreatureSales
}

// NewEngine wires the engine's components over deps.
func NewEngine(cfg Config, deps Dependencies, opts ...Option) (*Engine, error) {
	if deps.Funds == nil || deps.RerollFunds == nil || deps.Passes == nil || deps.Scions == nil || deps.Random == nil {
		return nil, fmt.Errorf("engine dependencies are incomplete")
	}
	if cfg.Operator == "" || cfg.Treasury == "" || cfg.Escrow == "" || cfg.PromotionHolder == "" || cfg.BurnAddress == "" {
		return nil, fmt.Errorf("engine accounts are not configured")
	}
	if cfg.MaxWeight == 0 {
		return nil, fmt.Errorf("max weight must be positive")
	}

	e := &Engine{
		cfg:       cfg,
		deps:      deps,
		log:       zap.NewNop(),
		clock:     time.Now,
		sink:      nopSink{},
		ledger:    NewAuctionLedger(),
		classes:   NewClassResolver(),
		catalog:   NewWeightedCatalog(cfg.MaxWeight),
		creatures: newCreatureSales(deps.Creatures),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.issuer = newPassIssuer(&e.cfg, deps, e.ledger, e.classes)
	e.traits = newTraitGenerator(&e.cfg, deps, e.catalog, e.issuer)
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// run executes fn as one all-or-nothing operation.
func (e *Engine) run(ctx context.Context, op string, fn func(t *txn, now time.Time) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := &txn{}
	now := e.clock()
	if err := fn(t, now); err != nil {
		t.rollback()
		e.log.Debug("operation rejected", zap.String("op", op), zap.Error(err))
		return err
	}

	for i := range t.events {
		e.seq++
		t.events[i].Seq = e.seq
		t.events[i].ID = uuid.New()
		if t.events[i].At.IsZero() {
			t.events[i].At = now
		}
		e.sink.Publish(ctx, t.events[i])
	}
	return nil
}

func (e *Engine) requireOperator(caller Address) error {
	if caller != e.cfg.Operator {
		return ErrNotOperator
	}
	return nil
}

// StartAuction opens (or prolongs) the bidding window. A zero start means now.
func (e *Engine) StartAuction(ctx context.Context, caller Address, duration time.Duration, start time.Time) error {
	return e.run(ctx, "start_auction", func(t *txn, now time.Time) error {
		if err := e.requireOperator(caller); err != nil {
			return err
		}
		if duration <= 0 {
			return ErrInvalidDuration
		}
		if start.IsZero() {
			start = now
		}
		e.ledger.Start(start, duration)
		e.log.Info("auction window set", zap.Time("start", start), zap.Duration("duration", duration))
		t.emit(Event{Type: EventAuctionStarted, Actor: caller})
		return nil
	})
}

// FinishAuction closes the window immediately.
func (e *Engine) FinishAuction(ctx context.Context, caller Address) error {
	return e.run(ctx, "finish_auction", func(t *txn, now time.Time) error {
		if err := e.requireOperator(caller); err != nil {
			return err
		}
		e.ledger.Finish(now)
		digest := e.ledger.Digest()
		e.log.Info("auction finished", zap.Int("bids", e.ledger.CountAll()), zap.String("digest", digest))
		t.emit(Event{Type: EventAuctionFinished, Actor: caller, Digest: digest})
		return nil
	})
}

// AuctionStatus summarizes the window at the current time.
func (e *Engine) AuctionStatus() AuctionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.ledger.State(e.clock())
	start, duration := e.ledger.Window()
	status := AuctionStatus{
		State:      state,
		StateName:  state.String(),
		Start:      start,
		Duration:   duration,
		MinimumBid: e.cfg.MinimumBid,
		TotalBids:  e.ledger.CountAll(),
	}
	if !start.IsZero() {
		status.End = start.Add(duration)
	}
	return status
}

// PlaceBid places count bids of unitValue each, paid from caller's balance.
//
// Parameters:
//   - count: number of bids, between 1 and Config.MaxBidsPerCall
//   - unitValue: value of each bid, strictly above Config.MinimumBid
//   - payment: must equal unitValue * count exactly; neither may carry more
//     than MonetaryPrecision decimal places
//
// Returns:
//   - the index of the first bid; the rest follow consecutively
func (e *Engine) PlaceBid(ctx context.Context, caller Address, count int, unitValue, payment Amount) (uint64, error) {
	var first uint64
	err := e.run(ctx, "place_bid", func(t *txn, now time.Time) error {
		if e.ledger.State(now) != AuctionActive {
			return ErrAuctionInactive
		}
		if !unitValue.GreaterThan(e.cfg.MinimumBid) {
			return ErrBidBelowMinimum
		}
		if count <= 0 {
			return ErrInvalidCount
		}
		if count > e.cfg.MaxBidsPerCall {
			return ErrTooManyBids
		}
		if err := CheckPrecision(unitValue, payment); err != nil {
			return err
		}
		total := unitValue.Mul(decimal.NewFromInt(int64(count)))
		if !payment.Equal(total) {
			return ErrInsufficientBidFunds
		}
		if e.cfg.TotalBidsLimit > 0 && e.ledger.CountAll()+count > e.cfg.TotalBidsLimit {
			return ErrBidsLimitReached
		}
		if err := t.transfer(e.deps.Funds, caller, e.cfg.Escrow, total); err != nil {
			return fmt.Errorf("%w: %v", ErrInsufficientBidFunds, err)
		}

		for i := 0; i < count; i++ {
			bid := e.ledger.Append(caller, unitValue, now)
			if i == 0 {
				first = bid.Index
			}
			t.emit(Event{Type: EventBidPlaced, Actor: caller, BidIndex: bid.Index, Value: amountPtr(unitValue)})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return first, nil
}

// UpdateBid raises the value of an open bid by added. Only added is charged.
func (e *Engine) UpdateBid(ctx context.Context, caller Address, index uint64, added, payment Amount) error {
	return e.run(ctx, "update_bid", func(t *txn, now time.Time) error {
		if e.ledger.State(now) != AuctionActive {
			return ErrAuctionInactive
		}
		bid, ok := e.ledger.Get(index)
		if !ok {
			return ErrBidNotFound
		}
		if bid.Bidder != caller {
			return ErrNotBidOwner
		}
		if bid.Claimed {
			return ErrBidClaimed
		}
		if !added.IsPositive() {
			return ErrInvalidAmount
		}
		if err := CheckPrecision(added, payment); err != nil {
			return err
		}
		if payment.LessThan(added) {
			return ErrInsufficientUpdate
		}
		if err := t.transfer(e.deps.Funds, caller, e.cfg.Escrow, added); err != nil {
			return fmt.Errorf("%w: %v", ErrInsufficientUpdate, err)
		}

		previous := bid.Value
		bid.Value = previous.Add(added)
		t.emit(Event{
			Type:     EventBidUpdated,
			Actor:    caller,
			BidIndex: index,
			Value:    amountPtr(bid.Value),
			Previous: amountPtr(previous),
		})
		return nil
	})
}

// CancelBid refunds and removes an unclaimed bid once the window is finished.
func (e *Engine) CancelBid(ctx context.Context, caller Address, index uint64) error {
	return e.run(ctx, "cancel_bid", func(t *txn, now time.Time) error {
		if e.ledger.State(now) != AuctionFinished {
			return ErrAuctionNotFinished
		}
		bid, ok := e.ledger.Get(index)
		if !ok {
			return ErrBidNotFound
		}
		if bid.Bidder != caller {
			return ErrNotBidOwner
		}
		if bid.Claimed {
			return ErrBidClaimed
		}
		value := bid.Value
		if err := t.transfer(e.deps.Funds, e.cfg.Escrow, caller, value); err != nil {
			return fmt.Errorf("refund bid %d: %w", index, err)
		}
		e.ledger.Remove(index)
		t.emit(Event{Type: EventBidCanceled, Actor: caller, BidIndex: index, Value: amountPtr(value)})
		return nil
	})
}

// CountAllBids returns the number of live bids.
func (e *Engine) CountAllBids() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.CountAll()
}

// CountOwnedBids returns the number of live bids placed by addr.
func (e *Engine) CountOwnedBids(addr Address) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.CountOwned(addr)
}

// ListBids pages through bids with their tiers resolved.
func (e *Engine) ListBids(offset, limit int, scope ListScope, addr Address) []BidView {
	e.mu.Lock()
	defer e.mu.Unlock()

	bids := e.ledger.List(offset, limit, scope, addr)
	out := make([]BidView, len(bids))
	for i, bid := range bids {
		out[i] = e.view(bid)
	}
	return out
}

// Bid returns a single bid with its tier resolved.
func (e *Engine) Bid(index uint64) (BidView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bid, ok := e.ledger.Get(index)
	if !ok {
		return BidView{}, ErrBidNotFound
	}
	return e.view(*bid), nil
}

// view resolves open bids against the live table and reports claimed bids with
// the tier they were frozen at.
func (e *Engine) view(bid Bid) BidView {
	if bid.Claimed {
		return BidView{Bid: bid, Tier: bid.ClaimedTier, AsOfVersion: bid.ClassVersion}
	}
	tier, version := e.classes.Resolve(bid.Value)
	return BidView{Bid: bid, Tier: tier, AsOfVersion: version}
}

// LedgerDigest returns the hash of the live bid ledger.
func (e *Engine) LedgerDigest() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Digest()
}

// SetBands replaces the class table, stamping bands that carry no SetAt with
// the current time.
func (e *Engine) SetBands(ctx context.Context, caller Address, bands []ClassBand) (uint64, error) {
	var version uint64
	err := e.run(ctx, "set_bands", func(t *txn, now time.Time) error {
		if err := e.requireOperator(caller); err != nil {
			return err
		}
		stamped := make([]ClassBand, len(bands))
		for i, band := range bands {
			if band.SetAt.IsZero() {
				band.SetAt = now
			}
			stamped[i] = band
		}
		table, err := e.classes.Publish(stamped)
		if err != nil {
			return err
		}
		version = table.Version
		t.emit(Event{Type: EventBandsSet, Actor: caller, Version: version})
		return nil
	})
	return version, err
}

// ResolvedTier resolves value against the current class table without side effects.
func (e *Engine) ResolvedTier(value Amount) (Tier, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.classes.Resolve(value)
}

// ClassTable returns the current class table.
func (e *Engine) ClassTable() ClassTable {
	e.mu.Lock()
	defer e.mu.Unlock()
	table := e.classes.Table()
	return ClassTable{Version: table.Version, Bands: append([]ClassBand(nil), table.Bands...)}
}

// SetCategory replaces one catalog category.
func (e *Engine) SetCategory(ctx context.Context, caller Address, category CategoryID, assetIDs, weights []uint64, names []string) (uint64, error) {
	var version uint64
	err := e.run(ctx, "set_category", func(t *txn, _ time.Time) error {
		if err := e.requireOperator(caller); err != nil {
			return err
		}
		snap, err := e.catalog.Set(category, assetIDs, weights, names)
		if err != nil {
			return err
		}
		version = snap.Version
		t.emit(Event{Type: EventCategorySet, Actor: caller, Category: categoryPtr(category), Version: version})
		return nil
	})
	return version, err
}

// EntriesInWeightRange returns the catalog entries of category with weight in [lo, hi].
func (e *Engine) EntriesInWeightRange(category CategoryID, lo, hi uint64) ([]WeightEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.EntriesInWeightRange(category, lo, hi)
}

// EntriesInCategory returns every entry of category.
func (e *Engine) EntriesInCategory(category CategoryID) ([]WeightEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.EntriesInCategory(category)
}

// EntriesAtWeight returns the entries of category with exactly weight w.
func (e *Engine) EntriesAtWeight(category CategoryID, w uint64) ([]WeightEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.EntriesAtWeight(category, w)
}

// CatalogEntry returns the entry at position within category.
func (e *Engine) CatalogEntry(category CategoryID, position int) (WeightEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.Entry(category, position)
}

// Categories lists the configured catalog categories.
func (e *Engine) Categories() []CategoryID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.Categories()
}

// SetWeightBands sets the weight band of each named tier.
func (e *Engine) SetWeightBands(ctx context.Context, caller Address, bands []TierWeightBand) (uint64, error) {
	var version uint64
	err := e.run(ctx, "set_weight_bands", func(t *txn, _ time.Time) error {
		if err := e.requireOperator(caller); err != nil {
			return err
		}
		table, err := nextWeightBands(e.traits.bands, bands)
		if err != nil {
			return err
		}
		e.traits.bands = table
		version = table.Version
		t.emit(Event{Type: EventWeightBandsSet, Actor: caller, Version: version})
		return nil
	})
	return version, err
}

// WeightBands returns the current tier weight-band table.
func (e *Engine) WeightBands() WeightBandTable {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := WeightBandTable{Version: e.traits.bands.Version, Bands: make(map[Tier]TierWeightBand, len(e.traits.bands.Bands))}
	for tier, band := range e.traits.bands.Bands {
		out.Bands[tier] = band
	}
	return out
}
