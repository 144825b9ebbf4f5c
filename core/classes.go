package core

import "time"

// ClassBand maps a closed value interval to a tier. SetAt records when the
// band's limits were set; the engine stamps it when left zero.
type ClassBand struct {
	Tier   Tier      `json:"tier"`
	Bottom Amount    `json:"bottom"`
	Top    Amount    `json:"top"`
	SetAt  time.Time `json:"set_at"`
}

// ClassTable is an immutable, versioned set of class bands.
type ClassTable struct {
	Version uint64      `json:"version"`
	Bands   []ClassBand `json:"bands"`
}

// NewClassBands builds bands from parallel arrays, rejecting mismatched lengths
// before any band is inspected.
func NewClassBands(tiers []Tier, bottoms, tops []Amount) ([]ClassBand, error) {
	if len(tiers) != len(bottoms) || len(tiers) != len(tops) {
		return nil, ErrLengthMismatch
	}
	bands := make([]ClassBand, len(tiers))
	for i := range tiers {
		bands[i] = ClassBand{Tier: tiers[i], Bottom: bottoms[i], Top: tops[i]}
	}
	return bands, nil
}

func validateClassBands(bands []ClassBand) error {
	for _, band := range bands {
		if band.Tier == TierNone {
			return ErrInvalidTier
		}
		if band.Bottom.GreaterThan(band.Top) {
			return ErrInvalidBand
		}
	}
	return nil
}

// ClassResolver resolves bid values to tiers against the current class table.
// Publishing a table swaps in a new snapshot; readers holding an older snapshot
// keep seeing it unchanged.
type ClassResolver struct {
	current *ClassTable
}

// NewClassResolver returns a resolver with no table published.
func NewClassResolver() *ClassResolver {
	return &ClassResolver{current: &ClassTable{}}
}

// Publish validates bands and installs them as the next table version.
func (r *ClassResolver) Publish(bands []ClassBand) (*ClassTable, error) {
	if err := validateClassBands(bands); err != nil {
		return nil, err
	}
	next := &ClassTable{
		Version: r.current.Version + 1,
		Bands:   append([]ClassBand(nil), bands...),
	}
	r.current = next
	return next, nil
}

// Table returns the current snapshot.
func (r *ClassResolver) Table() *ClassTable {
	return r.current
}

// Resolve returns the tier for value and the table version it was read from.
// Bands are closed intervals scanned in table order and the last match wins, so a
// value sitting on a shared boundary belongs to the later band. No match is TierNone.
func (r *ClassResolver) Resolve(value Amount) (Tier, uint64) {
	return r.current.Resolve(value), r.current.Version
}

// Resolve applies the table to value.
func (t *ClassTable) Resolve(value Amount) Tier {
	tier := TierNone
	for _, band := range t.Bands {
		if value.GreaterThanOrEqual(band.Bottom) && value.LessThanOrEqual(band.Top) {
			tier = band.Tier
		}
	}
	return tier
}

// TierWeightBand bounds the catalog weights a pass of Tier may draw.
type TierWeightBand struct {
	Tier   Tier   `json:"tier"`
	Bottom uint64 `json:"bottom"`
	Top    uint64 `json:"top"`
}

// WeightBandTable is an immutable, versioned tier to weight-band mapping.
type WeightBandTable struct {
	Version uint64                  `json:"version"`
	Bands   map[Tier]TierWeightBand `json:"bands"`
}

// NewTierWeightBands builds weight bands from parallel arrays.
func NewTierWeightBands(tiers []Tier, bottoms, tops []uint64) ([]TierWeightBand, error) {
	if len(tiers) != len(bottoms) || len(tiers) != len(tops) {
		return nil, ErrLengthMismatch
	}
	bands := make([]TierWeightBand, len(tiers))
	for i := range tiers {
		bands[i] = TierWeightBand{Tier: tiers[i], Bottom: bottoms[i], Top: tops[i]}
	}
	return bands, nil
}

// nextWeightBands returns a new table with bands layered over prev.
// Tiers not named keep their previous band.
func nextWeightBands(prev *WeightBandTable, bands []TierWeightBand) (*WeightBandTable, error) {
	next := &WeightBandTable{
		Version: prev.Version + 1,
		Bands:   make(map[Tier]TierWeightBand, len(prev.Bands)+len(bands)),
	}
	for tier, band := range prev.Bands {
		next.Bands[tier] = band
	}
	for _, band := range bands {
		if band.Tier == TierNone {
			return nil, ErrInvalidTier
		}
		if band.Bottom > band.Top {
			return nil, ErrInvalidBand
		}
		next.Bands[band.Tier] = band
	}
	return next, nil
}

// Band returns the weight band for tier.
func (t *WeightBandTable) Band(tier Tier) (TierWeightBand, bool) {
	band, ok := t.Bands[tier]
	return band, ok
}
