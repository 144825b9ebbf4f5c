package config

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cloudx-io/scionauction/core"
)

// Apply seeds a fresh engine through the operator operations: class bands,
// weight bands, catalog, promotion prices, whitelist and mint, then the
// auction window when auto_start is set. cfg must already be valid.
func Apply(ctx context.Context, engine *core.Engine, cfg Config) error {
	operator := engine.Config().Operator

	if len(cfg.ClassBands) > 0 {
		bands := make([]core.ClassBand, 0, len(cfg.ClassBands))
		for _, b := range cfg.ClassBands {
			tier, err := parseTier(b.Tier)
			if err != nil {
				return err
			}
			bottom, err := core.ParseAmount(b.Bottom)
			if err != nil {
				return fmt.Errorf("class band bottom: %w", err)
			}
			top, err := core.ParseAmount(b.Top)
			if err != nil {
				return fmt.Errorf("class band top: %w", err)
			}
			bands = append(bands, core.ClassBand{Tier: tier, Bottom: bottom, Top: top})
		}
		if _, err := engine.SetBands(ctx, operator, bands); err != nil {
			return fmt.Errorf("set class bands: %w", err)
		}
	}

	if len(cfg.WeightBands) > 0 {
		bands := make([]core.TierWeightBand, 0, len(cfg.WeightBands))
		for _, b := range cfg.WeightBands {
			tier, err := parseTier(b.Tier)
			if err != nil {
				return err
			}
			bands = append(bands, core.TierWeightBand{Tier: tier, Bottom: b.Bottom, Top: b.Top})
		}
		if _, err := engine.SetWeightBands(ctx, operator, bands); err != nil {
			return fmt.Errorf("set weight bands: %w", err)
		}
	}

	for _, cat := range cfg.Catalog {
		ids := make([]uint64, len(cat.Assets))
		weights := make([]uint64, len(cat.Assets))
		names := make([]string, len(cat.Assets))
		for i, a := range cat.Assets {
			ids[i], weights[i], names[i] = a.ID, a.Weight, a.Name
		}
		if _, err := engine.SetCategory(ctx, operator, core.CategoryID(cat.ID), ids, weights, names); err != nil {
			return fmt.Errorf("set category %d: %w", cat.ID, err)
		}
	}

	if len(cfg.Promotion.Prices) > 0 {
		names := make([]string, 0, len(cfg.Promotion.Prices))
		for name := range cfg.Promotion.Prices {
			names = append(names, name)
		}
		sort.Strings(names)

		tiers := make([]core.Tier, len(names))
		prices := make([]core.Amount, len(names))
		for i, name := range names {
			tier, err := parseTier(name)
			if err != nil {
				return err
			}
			price, err := core.ParseAmount(cfg.Promotion.Prices[name])
			if err != nil {
				return fmt.Errorf("promotion price for %s: %w", name, err)
			}
			tiers[i], prices[i] = tier, price
		}
		if err := engine.SetPricePerTier(ctx, operator, tiers, prices); err != nil {
			return fmt.Errorf("set promotion prices: %w", err)
		}
	}

	if len(cfg.Promotion.Whitelist) > 0 {
		addrs := make([]core.Address, len(cfg.Promotion.Whitelist))
		for i, a := range cfg.Promotion.Whitelist {
			addrs[i] = core.NormalizeAddress(a)
		}
		if err := engine.AddPromotionAddress(ctx, operator, addrs); err != nil {
			return fmt.Errorf("add promotion addresses: %w", err)
		}
	}

	if len(cfg.Promotion.Mint) > 0 {
		tiers := make([]core.Tier, len(cfg.Promotion.Mint))
		for i, name := range cfg.Promotion.Mint {
			tier, err := parseTier(name)
			if err != nil {
				return err
			}
			tiers[i] = tier
		}
		// Batches respect the per-call cap.
		limit := engine.Config().MaxPromotionsPerCall
		if limit <= 0 {
			limit = len(tiers)
		}
		for start := 0; start < len(tiers); start += limit {
			end := min(start+limit, len(tiers))
			if _, err := engine.MintPromotionBatch(ctx, operator, tiers[start:end]); err != nil {
				return fmt.Errorf("mint promotion passes: %w", err)
			}
		}
	}

	if cfg.Auction.AutoStart {
		if err := engine.StartAuction(ctx, operator, cfg.Auction.Duration, time.Time{}); err != nil {
			return fmt.Errorf("start auction: %w", err)
		}
	}
	return nil
}

// Creditor is a ledger that can mint balance out of thin air.
type Creditor interface {
	Credit(addr core.Address, amount core.Amount) error
}

// SeedBalances credits the configured genesis balances to funds and rerolls.
func SeedBalances(cfg BalancesConfig, funds, rerolls Creditor) error {
	for _, seed := range []struct {
		name     string
		balances map[string]string
		ledger   Creditor
	}{
		{"funds", cfg.Funds, funds},
		{"reroll", cfg.Reroll, rerolls},
	} {
		addrs := make([]string, 0, len(seed.balances))
		for addr := range seed.balances {
			addrs = append(addrs, addr)
		}
		sort.Strings(addrs)
		for _, addr := range addrs {
			amount, err := core.ParseAmount(seed.balances[addr])
			if err != nil {
				return fmt.Errorf("balances.%s[%s]: %w", seed.name, addr, err)
			}
			if err := seed.ledger.Credit(core.NormalizeAddress(addr), amount); err != nil {
				return fmt.Errorf("credit %s to %s: %w", seed.name, addr, err)
			}
		}
	}
	return nil
}
