package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value in the payment currency.
type Amount = decimal.Decimal

// Address identifies a bidder, holder, or system account.
type Address string

// NormalizeAddress trims and lower-cases an address so lookups are case-insensitive.
func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

// Tier is the reward class a finalized bid resolves to.
type Tier uint8

const (
	TierNone Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
	TierRuby
	TierOnyx
)

var tierNames = map[Tier]string{
	TierNone:     "none",
	TierBronze:   "bronze",
	TierSilver:   "silver",
	TierGold:     "gold",
	TierPlatinum: "platinum",
	TierRuby:     "ruby",
	TierOnyx:     "onyx",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier-%d", uint8(t))
}

// ParseTier resolves a tier by name, case-insensitively.
func ParseTier(name string) (Tier, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range tierNames {
		if n == name {
			return t, nil
		}
	}
	return TierNone, fmt.Errorf("unknown tier %q", name)
}

// Bid is a single unit placed in the auction.
// The tier is never stored while the bid is open; ClaimedTier and ClassVersion
// are written once, when the bid is claimed.
type Bid struct {
	Index        uint64    `json:"index"`
	Bidder       Address   `json:"bidder"`
	Value        Amount    `json:"value"`
	PlacedAt     time.Time `json:"placed_at"`
	Claimed      bool      `json:"claimed"`
	PassID       uint64    `json:"pass_id,omitempty"`
	ClaimedTier  Tier      `json:"claimed_tier,omitempty"`
	ClassVersion uint64    `json:"class_version,omitempty"`
}

// BidView is a bid together with the tier it resolves to and the class table
// version the tier was read from.
type BidView struct {
	Bid
	Tier        Tier   `json:"tier"`
	AsOfVersion uint64 `json:"as_of_version"`
}

// ListScope selects which bids ListBids enumerates.
type ListScope int

const (
	ScopeAll ListScope = iota
	ScopeOwned
)

// AuctionState is the phase of the bidding window.
type AuctionState int

const (
	AuctionNotStarted AuctionState = iota
	AuctionActive
	AuctionFinished
)

func (s AuctionState) String() string {
	switch s {
	case AuctionActive:
		return "active"
	case AuctionFinished:
		return "finished"
	default:
		return "not_started"
	}
}

// AuctionStatus is a read-only summary of the auction window.
type AuctionStatus struct {
	State      AuctionState  `json:"-"`
	StateName  string        `json:"state"`
	Start      time.Time     `json:"start"`
	Duration   time.Duration `json:"duration"`
	End        time.Time     `json:"end"`
	MinimumBid Amount        `json:"minimum_bid"`
	TotalBids  int           `json:"total_bids"`
}

// PassOrigin records how a pass was created.
type PassOrigin string

const (
	OriginAuction   PassOrigin = "auction"
	OriginPromotion PassOrigin = "promotion"
)

// PassToken is the claim ticket consumed by Generate.
type PassToken struct {
	ID           uint64     `json:"id"`
	Tier         Tier       `json:"tier"`
	ClassVersion uint64     `json:"class_version"`
	Origin       PassOrigin `json:"origin"`
	BidIndex     uint64     `json:"bid_index,omitempty"`
}

// CategoryID identifies a trait category in the catalog.
type CategoryID uint32

// Trait is the asset drawn for one category of a scion.
type Trait struct {
	Category       CategoryID `json:"category"`
	AssetID        uint64     `json:"asset_id"`
	Name           string     `json:"name"`
	Weight         uint64     `json:"weight"`
	CatalogVersion uint64     `json:"catalog_version"`
	Rerolls        uint64     `json:"rerolls"`
}

// ScionTraits is the trait vector of a generated token, ordered by category.
type ScionTraits struct {
	TokenID           uint64  `json:"token_id"`
	Tier              Tier    `json:"tier"`
	Traits            []Trait `json:"traits"`
	WeightBandVersion uint64  `json:"weight_band_version"`
}

func (s *ScionTraits) traitIndex(category CategoryID) int {
	for i := range s.Traits {
		if s.Traits[i].Category == category {
			return i
		}
	}
	return -1
}

func (s *ScionTraits) clone() ScionTraits {
	out := *s
	out.Traits = append([]Trait(nil), s.Traits...)
	return out
}
