package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PassIssuer mints passes for claimed bids and runs the promotion side channel.
type PassIssuer struct {
	cfg     *Config
	funds   PaymentInstrument
	tokens  TokenRegistry
	ledger  *AuctionLedger
	classes *ClassResolver

	nextID    uint64
	passes    map[uint64]PassToken
	prices    map[Tier]Amount
	whitelist map[Address]bool
	purchased map[Address]bool
}

func newPassIssuer(cfg *Config, deps Dependencies, ledger *AuctionLedger, classes *ClassResolver) *PassIssuer {
	return &PassIssuer{
		cfg:       cfg,
		funds:     deps.Funds,
		tokens:    deps.Passes,
		ledger:    ledger,
		classes:   classes,
		nextID:    1,
		passes:    make(map[uint64]PassToken),
		prices:    make(map[Tier]Amount),
		whitelist: make(map[Address]bool),
		purchased: make(map[Address]bool),
	}
}

// mint records and mints a new pass to owner.
func (p *PassIssuer) mint(t *txn, owner Address, pass PassToken) (PassToken, error) {
	pass.ID = p.nextID
	if err := t.mint(p.tokens, owner, pass.ID); err != nil {
		return PassToken{}, fmt.Errorf("mint pass %d: %w", pass.ID, err)
	}
	p.nextID++
	p.passes[pass.ID] = pass
	t.onRollback(func() {
		delete(p.passes, pass.ID)
		p.nextID--
	})
	return pass, nil
}

// consume forgets a pass after its token has been burned.
func (p *PassIssuer) consume(t *txn, pass PassToken) {
	delete(p.passes, pass.ID)
	t.onRollback(func() {
		p.passes[pass.ID] = pass
	})
}

// claim processes one index of a claim batch. A false result with a nil error
// is a soft skip.
func (p *PassIssuer) claim(t *txn, caller Address, index uint64) (PassToken, bool, error) {
	bid, ok := p.ledger.Get(index)
	if !ok || bid.Bidder != caller || bid.Claimed {
		return PassToken{}, false, nil
	}
	tier, version := p.classes.Resolve(bid.Value)
	if tier == TierNone {
		return PassToken{}, false, nil
	}

	value := bid.Value
	if err := t.transfer(p.funds, p.cfg.Escrow, p.cfg.Treasury, value); err != nil {
		return PassToken{}, false, fmt.Errorf("settle bid %d: %w", index, err)
	}
	pass, err := p.mint(t, caller, PassToken{
		Tier:         tier,
		ClassVersion: version,
		Origin:       OriginAuction,
		BidIndex:     index,
	})
	if err != nil {
		return PassToken{}, false, err
	}

	bid.Claimed = true
	bid.PassID = pass.ID
	bid.ClaimedTier = tier
	bid.ClassVersion = version
	t.onRollback(func() {
		if b, ok := p.ledger.Get(index); ok {
			b.Claimed = false
			b.PassID = 0
			b.ClaimedTier = TierNone
			b.ClassVersion = 0
		}
	})

	t.emit(Event{
		Type:     EventPassClaimed,
		Actor:    caller,
		BidIndex: index,
		PassID:   pass.ID,
		Tier:     tier,
		Version:  version,
		Value:    amountPtr(value),
	})
	return pass, true, nil
}

// ClaimPass mints one pass per claimable index.
//
// The call fails as a whole if the auction is not finished or too many indices
// are given. Each index that does not exist, belongs to someone else, is already
// claimed, or resolves to TierNone is skipped without error, so claiming the same
// index twice is a no-op the second time.
//
// Returns:
//   - the passes minted by this call, in index order of the request
func (e *Engine) ClaimPass(ctx context.Context, caller Address, indices []uint64) ([]PassToken, error) {
	var minted []PassToken
	err := e.run(ctx, "claim_pass", func(t *txn, now time.Time) error {
		minted = nil
		if e.ledger.State(now) != AuctionFinished {
			return ErrAuctionNotFinished
		}
		if len(indices) > e.cfg.MaxClaimsPerCall {
			return ErrTooManyIndexes
		}
		for _, index := range indices {
			pass, ok, err := e.issuer.claim(t, caller, index)
			if err != nil {
				return err
			}
			if ok {
				minted = append(minted, pass)
			}
		}
		if skipped := len(indices) - len(minted); skipped > 0 {
			e.log.Debug("claim skipped indices", zap.String("caller", string(caller)), zap.Int("skipped", skipped))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// MintPromotionBatch mints one pass per tier to the promotion holder.
func (e *Engine) MintPromotionBatch(ctx context.Context, caller Address, tiers []Tier) ([]PassToken, error) {
	var minted []PassToken
	err := e.run(ctx, "mint_promotion", func(t *txn, _ time.Time) error {
		minted = nil
		if err := e.requireOperator(caller); err != nil {
			return err
		}
		if len(tiers) > e.cfg.MaxPromotionsPerCall {
			return ErrTooManyPromotions
		}
		for _, tier := range tiers {
			if tier == TierNone {
				return ErrInvalidTier
			}
			pass, err := e.issuer.mint(t, e.cfg.PromotionHolder, PassToken{Tier: tier, Origin: OriginPromotion})
			if err != nil {
				return err
			}
			minted = append(minted, pass)
			t.emit(Event{Type: EventPromotionMinted, Actor: caller, PassID: pass.ID, Tier: tier})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// SetPricePerTier sets the promotion resale price of each tier.
func (e *Engine) SetPricePerTier(ctx context.Context, caller Address, tiers []Tier, prices []Amount) error {
	return e.run(ctx, "set_prices", func(t *txn, _ time.Time) error {
		if err := e.requireOperator(caller); err != nil {
			return err
		}
		if len(tiers) != len(prices) {
			return ErrLengthMismatch
		}
		for i := range tiers {
			if tiers[i] == TierNone {
				return ErrInvalidTier
			}
			if !prices[i].IsPositive() {
				return ErrInvalidAmount
			}
		}
		for i, tier := range tiers {
			prev, had := e.issuer.prices[tier]
			e.issuer.prices[tier] = RoundAmount(prices[i])
			t.onRollback(func() {
				if had {
					e.issuer.prices[tier] = prev
				} else {
					delete(e.issuer.prices, tier)
				}
			})
		}
		return nil
	})
}

// AddPromotionAddress whitelists addresses for one promotion purchase each.
func (e *Engine) AddPromotionAddress(ctx context.Context, caller Address, addrs []Address) error {
	return e.run(ctx, "whitelist", func(_ *txn, _ time.Time) error {
		if err := e.requireOperator(caller); err != nil {
			return err
		}
		for _, addr := range addrs {
			e.issuer.whitelist[addr] = true
		}
		return nil
	})
}

// BuyPromotionPass sells a pass held by the promotion holder to a whitelisted
// caller at the operator-set price of its tier. Each address may buy once.
func (e *Engine) BuyPromotionPass(ctx context.Context, caller Address, passID uint64, payment Amount) error {
	return e.run(ctx, "buy_promotion", func(t *txn, _ time.Time) error {
		pass, ok := e.issuer.passes[passID]
		if !ok {
			return ErrPassNotFound
		}
		owner, err := e.deps.Passes.OwnerOf(passID)
		if err != nil || owner != e.cfg.PromotionHolder {
			return ErrPassNotForSale
		}
		price, ok := e.issuer.prices[pass.Tier]
		if !ok {
			return ErrPricesNotSet
		}
		if !e.issuer.whitelist[caller] || e.issuer.purchased[caller] {
			return ErrNotBeneficiary
		}
		if err := CheckPrecision(payment); err != nil {
			return err
		}
		if payment.LessThan(price) {
			return ErrInsufficientBuyFunds
		}
		if err := t.transfer(e.deps.Funds, caller, e.cfg.Treasury, price); err != nil {
			return fmt.Errorf("%w: %v", ErrInsufficientBuyFunds, err)
		}
		if err := t.move(e.deps.Passes, e.cfg.PromotionHolder, caller, passID); err != nil {
			return fmt.Errorf("deliver pass %d: %w", passID, err)
		}
		e.issuer.purchased[caller] = true

		t.emit(Event{Type: EventPromotionPurchased, Actor: caller, PassID: passID, Tier: pass.Tier, Price: amountPtr(price)})
		return nil
	})
}

// Pass returns the recorded pass.
func (e *Engine) Pass(id uint64) (PassToken, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pass, ok := e.issuer.passes[id]
	if !ok {
		return PassToken{}, ErrPassNotFound
	}
	return pass, nil
}

// PromotionPrice returns the resale price of tier, if set.
func (e *Engine) PromotionPrice(tier Tier) (Amount, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	price, ok := e.issuer.prices[tier]
	return price, ok
}
