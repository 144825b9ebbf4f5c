package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cloudx-io/scionauction/core"
)

// Validate checks the whole configuration and reports every problem at once.
func (c Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	accounts := map[string]string{
		"operator":         c.Accounts.Operator,
		"treasury":         c.Accounts.Treasury,
		"escrow":           c.Accounts.Escrow,
		"promotion_holder": c.Accounts.PromotionHolder,
		"burn":             c.Accounts.Burn,
	}
	for _, name := range []string{"operator", "treasury", "escrow", "promotion_holder", "burn"} {
		if strings.TrimSpace(accounts[name]) == "" {
			add("accounts.%s is required", name)
		}
	}

	if v, err := core.ParseAmount(c.Auction.MinimumBid); err != nil {
		add("auction.minimum_bid %q is not a decimal", c.Auction.MinimumBid)
	} else if !v.IsPositive() {
		add("auction.minimum_bid must be positive")
	}
	if c.Auction.AutoStart && c.Auction.Duration <= 0 {
		add("auction.duration must be positive when auto_start is set")
	}
	for name, n := range map[string]int{
		"max_bids_per_call":       c.Auction.MaxBidsPerCall,
		"max_claims_per_call":     c.Auction.MaxClaimsPerCall,
		"max_promotions_per_call": c.Auction.MaxPromotionsPerCall,
	} {
		if n <= 0 {
			add("auction.%s must be positive", name)
		}
	}
	if c.Auction.TotalBidsLimit < 0 {
		add("auction.total_bids_limit must not be negative")
	}

	if v, err := core.ParseAmount(c.Reroll.BasePrice); err != nil {
		add("reroll.base_price %q is not a decimal", c.Reroll.BasePrice)
	} else if v.IsNegative() {
		add("reroll.base_price must not be negative")
	}
	if c.Reroll.MaxWeight == 0 {
		add("reroll.max_weight must be positive")
	}

	for i, band := range c.ClassBands {
		if _, err := parseTier(band.Tier); err != nil {
			add("class_bands[%d]: %v", i, err)
		}
		bottom, errB := core.ParseAmount(band.Bottom)
		top, errT := core.ParseAmount(band.Top)
		if errB != nil || errT != nil {
			add("class_bands[%d]: bottom and top must be decimals", i)
		} else if bottom.GreaterThan(top) {
			add("class_bands[%d]: bottom %s exceeds top %s", i, band.Bottom, band.Top)
		}
	}

	for i, band := range c.WeightBands {
		if _, err := parseTier(band.Tier); err != nil {
			add("weight_bands[%d]: %v", i, err)
		}
		if band.Bottom > band.Top {
			add("weight_bands[%d]: bottom %d exceeds top %d", i, band.Bottom, band.Top)
		}
		if band.Top > c.Reroll.MaxWeight {
			add("weight_bands[%d]: top %d exceeds max weight %d", i, band.Top, c.Reroll.MaxWeight)
		}
	}

	seenCategories := map[uint32]bool{}
	for i, cat := range c.Catalog {
		if seenCategories[cat.ID] {
			add("catalog[%d]: duplicate category %d", i, cat.ID)
		}
		seenCategories[cat.ID] = true
		if len(cat.Assets) == 0 {
			add("catalog[%d]: category %d has no assets", i, cat.ID)
		}
		seenAssets := map[uint64]bool{}
		for j, asset := range cat.Assets {
			if seenAssets[asset.ID] {
				add("catalog[%d].assets[%d]: duplicate asset id %d", i, j, asset.ID)
			}
			seenAssets[asset.ID] = true
			if asset.Weight < 1 || asset.Weight > c.Reroll.MaxWeight {
				add("catalog[%d].assets[%d]: weight %d outside [1, %d]", i, j, asset.Weight, c.Reroll.MaxWeight)
			}
		}
	}

	for tier, price := range c.Promotion.Prices {
		if _, err := parseTier(tier); err != nil {
			add("promotion.prices: %v", err)
		}
		if _, err := core.ParseAmount(price); err != nil {
			add("promotion.prices[%s]: %q is not a decimal", tier, price)
		}
	}
	for i, tier := range c.Promotion.Mint {
		if _, err := parseTier(tier); err != nil {
			add("promotion.mint[%d]: %v", i, err)
		}
	}

	for section, balances := range map[string]map[string]string{
		"funds":  c.Balances.Funds,
		"reroll": c.Balances.Reroll,
	} {
		for addr, amount := range balances {
			if v, err := core.ParseAmount(amount); err != nil || v.IsNegative() {
				add("balances.%s[%s]: %q is not a non-negative decimal", section, addr, amount)
			}
		}
	}

	switch c.Store.Driver {
	case "", "memory":
	case "sqlite", "sqlite3", "postgres":
		if c.Store.DSN == "" {
			add("store.dsn is required for driver %s", c.Store.Driver)
		}
	default:
		add("store.driver %q is not one of memory, sqlite, postgres", c.Store.Driver)
	}

	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}

	if c.Oracle.PublicKey != "" {
		raw, err := base64.StdEncoding.DecodeString(c.Oracle.PublicKey)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			add("oracle.public_key must be a base64 Ed25519 public key")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// parseTier accepts tier names; TierNone is not a configurable tier.
func parseTier(name string) (core.Tier, error) {
	tier, err := core.ParseTier(name)
	if err != nil {
		return core.TierNone, err
	}
	if tier == core.TierNone {
		return core.TierNone, fmt.Errorf("tier %q cannot be configured", name)
	}
	return tier, nil
}
