package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TraitGenerator turns passes into trait-bearing scion tokens and prices rerolls.
type TraitGenerator struct {
	cfg     *Config
	random  RandomSource
	funds   PaymentInstrument
	passes  TokenRegistry
	tokens  TokenRegistry
	catalog *WeightedCatalog
	issuer  *PassIssuer

	bands  *WeightBandTable
	nextID uint64
	nonce  uint64
	scions map[uint64]*ScionTraits
}

func newTraitGenerator(cfg *Config, deps Dependencies, catalog *WeightedCatalog, issuer *PassIssuer) *TraitGenerator {
	return &TraitGenerator{
		cfg:     cfg,
		random:  deps.Random,
		funds:   deps.RerollFunds,
		passes:  deps.Passes,
		tokens:  deps.Scions,
		catalog: catalog,
		issuer:  issuer,
		bands:   &WeightBandTable{Bands: map[Tier]TierWeightBand{}},
		nextID:  1,
		scions:  make(map[uint64]*ScionTraits),
	}
}

// nextNonce hands out draw nonces; a rolled-back call gives its nonces back.
func (g *TraitGenerator) nextNonce(t *txn) uint64 {
	n := g.nonce
	g.nonce++
	t.onRollback(func() { g.nonce-- })
	return n
}

func (g *TraitGenerator) draw(ctx context.Context, t *txn, subject Address, n int) (int, error) {
	v, err := g.random.Draw(ctx, subject, uint64(n), g.nextNonce(t))
	if err != nil {
		return 0, fmt.Errorf("random draw: %w", err)
	}
	if v >= uint64(n) {
		return 0, fmt.Errorf("random draw out of range: %d >= %d", v, n)
	}
	return int(v), nil
}

// Generate burns a pass owned by caller and mints a scion carrying one trait
// per catalog category, each drawn uniformly from the entries inside the pass
// tier's weight band.
//
// Processing flow:
//  1. Check pass ownership
//  2. Look up the tier's weight band
//  3. Draw one entry per category, in ascending category order
//  4. Burn the pass and mint the scion
func (e *Engine) Generate(ctx context.Context, caller Address, passID uint64) (ScionTraits, error) {
	var result ScionTraits
	err := e.run(ctx, "generate", func(t *txn, _ time.Time) error {
		g := e.traits

		// Step 1: ownership
		pass, ok := e.issuer.passes[passID]
		if !ok {
			return ErrPassNotFound
		}
		owner, err := g.passes.OwnerOf(passID)
		if err != nil || owner != caller {
			return ErrInvalidOwner
		}

		// Step 2: band
		band, ok := g.bands.Band(pass.Tier)
		if !ok {
			return ErrWeightBandsNotSet
		}
		categories := g.catalog.Categories()
		if len(categories) == 0 {
			return ErrCatalogNotSet
		}

		// Step 3: draws
		scion := &ScionTraits{
			Tier:              pass.Tier,
			Traits:            make([]Trait, 0, len(categories)),
			WeightBandVersion: g.bands.Version,
		}
		for _, category := range categories {
			snap, err := g.catalog.snapshot(category)
			if err != nil {
				return err
			}
			candidates := snap.inRange(band.Bottom, band.Top)
			if len(candidates) == 0 {
				return fmt.Errorf("category %d: %w", category, ErrNoAssetsInBand)
			}
			i, err := g.draw(ctx, t, caller, len(candidates))
			if err != nil {
				return err
			}
			entry := candidates[i]
			scion.Traits = append(scion.Traits, Trait{
				Category:       category,
				AssetID:        entry.AssetID,
				Name:           entry.Name,
				Weight:         entry.Weight,
				CatalogVersion: snap.Version,
			})
		}

		// Step 4: burn and mint
		if err := t.burn(g.passes, caller, passID); err != nil {
			return fmt.Errorf("burn pass %d: %w", passID, err)
		}
		e.issuer.consume(t, pass)

		scion.TokenID = g.nextID
		if err := t.mint(g.tokens, caller, scion.TokenID); err != nil {
			return fmt.Errorf("mint scion %d: %w", scion.TokenID, err)
		}
		g.nextID++
		g.scions[scion.TokenID] = scion
		t.onRollback(func() {
			delete(g.scions, scion.TokenID)
			g.nextID--
		})

		e.log.Info("scion generated",
			zap.Uint64("token_id", scion.TokenID),
			zap.Uint64("pass_id", passID),
			zap.String("tier", pass.Tier.String()))

		result = scion.clone()
		t.emit(Event{
			Type:    EventScionClaimed,
			Actor:   caller,
			PassID:  passID,
			TokenID: scion.TokenID,
			Tier:    pass.Tier,
			Traits:  result.Traits,
		})
		return nil
	})
	if err != nil {
		return ScionTraits{}, err
	}
	return result, nil
}

// RerollPrice is the cost of moving a trait from currentWeight to targetWeight
// at the configured base price.
func (e *Engine) RerollPrice(currentWeight, targetWeight uint64) (Amount, error) {
	return RerollPrice(e.cfg.RerollBasePrice, currentWeight, targetWeight)
}

// checkPolicy applies the reroll policy flags to a candidate weight.
func checkPolicy(policy RerollPolicy, current, candidate uint64) error {
	if policy.NoDowngrade && candidate < current {
		return ErrDowngradeNotAllowed
	}
	if policy.SameWeightOnly && candidate != current {
		return ErrWeightChangeBlocked
	}
	if policy.RarityPlus && candidate >= current {
		return ErrRarityPlusRequired
	}
	return nil
}

// Reroll replaces the trait of one category with a fresh draw over the other
// entries of the category, charging the reroll price from the caller. Under
// SameWeightOnly the draw is limited to the other entries at the current weight.
//
// Parameters:
//   - tokenID: scion owned by caller
//   - category: trait to replace; its current asset must still exist in the catalog
//     with the same weight
//
// Returns:
//   - the updated trait and the price burned
//   - an error, with nothing charged, if the candidate violates the reroll policy
//     or the category has no other entry to draw
func (e *Engine) Reroll(ctx context.Context, caller Address, tokenID uint64, category CategoryID) (Trait, Amount, error) {
	var (
		updated Trait
		price   Amount
	)
	err := e.run(ctx, "reroll", func(t *txn, _ time.Time) error {
		g := e.traits

		scion, ok := g.scions[tokenID]
		if !ok {
			return ErrTokenNotFound
		}
		owner, err := g.tokens.OwnerOf(tokenID)
		if err != nil || owner != caller {
			return ErrInvalidOwner
		}
		slot := scion.traitIndex(category)
		if slot < 0 {
			return ErrCategoryNotFound
		}
		current := scion.Traits[slot]

		snap, err := g.catalog.snapshot(category)
		if err != nil {
			return err
		}
		live, ok := snap.byAsset[current.AssetID]
		if !ok || snap.Entries[live].Weight != current.Weight {
			return ErrAssetNotFound
		}

		candidates := snap.rerollCandidates(live, g.cfg.Policy.SameWeightOnly)
		if len(candidates) == 0 {
			return ErrNoRerollCandidates
		}
		i, err := g.draw(ctx, t, caller, len(candidates))
		if err != nil {
			return err
		}
		candidate := candidates[i]
		if err := checkPolicy(g.cfg.Policy, current.Weight, candidate.Weight); err != nil {
			return err
		}

		price, err = RerollPrice(g.cfg.RerollBasePrice, current.Weight, candidate.Weight)
		if err != nil {
			return err
		}
		if err := t.transfer(g.funds, caller, g.cfg.BurnAddress, price); err != nil {
			return fmt.Errorf("%w: %v", ErrInsufficientReroll, err)
		}

		updated = Trait{
			Category:       category,
			AssetID:        candidate.AssetID,
			Name:           candidate.Name,
			Weight:         candidate.Weight,
			CatalogVersion: snap.Version,
			Rerolls:        current.Rerolls + 1,
		}
		scion.Traits[slot] = updated
		t.onRollback(func() { scion.Traits[slot] = current })

		t.emit(Event{
			Type:     EventReroll,
			Actor:    caller,
			TokenID:  tokenID,
			Category: categoryPtr(category),
			Price:    amountPtr(price),
			Traits:   []Trait{updated},
		})
		return nil
	})
	if err != nil {
		return Trait{}, Amount{}, err
	}
	return updated, price, nil
}

// Scion returns a copy of a generated token's traits.
func (e *Engine) Scion(tokenID uint64) (ScionTraits, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	scion, ok := e.traits.scions[tokenID]
	if !ok {
		return ScionTraits{}, ErrTokenNotFound
	}
	return scion.clone(), nil
}
