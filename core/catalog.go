package core

import (
	"math"
	"sort"
)

// WeightEntry is one asset of a trait category. Lower weight is rarer.
type WeightEntry struct {
	Category CategoryID `json:"category"`
	AssetID  uint64     `json:"asset_id"`
	Name     string     `json:"name"`
	Weight   uint64     `json:"weight"`
	Position int        `json:"position"`
}

// CategorySnapshot is the immutable entry list of one category.
type CategorySnapshot struct {
	Category      CategoryID    `json:"category"`
	Version       uint64        `json:"version"`
	Entries       []WeightEntry `json:"entries"`
	UniqueWeights []uint64      `json:"unique_weights"`
	WeightSum     uint64        `json:"weight_sum"`

	byWeight map[uint64][]int
	byAsset  map[uint64]int
}

// WeightedCatalog stores per-category weighted entries and answers weight-band queries.
type WeightedCatalog struct {
	maxWeight  uint64
	categories map[CategoryID]*CategorySnapshot
}

// NewWeightedCatalog returns an empty catalog accepting weights in [1, maxWeight].
func NewWeightedCatalog(maxWeight uint64) *WeightedCatalog {
	return &WeightedCatalog{
		maxWeight:  maxWeight,
		categories: make(map[CategoryID]*CategorySnapshot),
	}
}

// Set replaces the full entry list of category.
//
// Parameters:
//   - category: category to replace
//   - assetIDs, weights, names: parallel arrays, one element per entry
//
// Returns:
//   - the new snapshot, versioned one past the category's previous snapshot
//   - a validation error on mismatched lengths, an empty list, a weight outside
//     [1, maxWeight], a repeated asset id or weights summing past uint64
func (c *WeightedCatalog) Set(category CategoryID, assetIDs, weights []uint64, names []string) (*CategorySnapshot, error) {
	if len(assetIDs) != len(weights) || len(assetIDs) != len(names) {
		return nil, ErrLengthMismatch
	}
	if len(assetIDs) == 0 {
		return nil, ErrEmptyCategory
	}

	snap := &CategorySnapshot{
		Category: category,
		Entries:  make([]WeightEntry, len(assetIDs)),
		byWeight: make(map[uint64][]int),
		byAsset:  make(map[uint64]int, len(assetIDs)),
	}
	if prev, ok := c.categories[category]; ok {
		snap.Version = prev.Version + 1
	} else {
		snap.Version = 1
	}

	for i := range assetIDs {
		w := weights[i]
		if w < 1 || w > c.maxWeight {
			return nil, ErrInvalidWeight
		}
		if _, dup := snap.byAsset[assetIDs[i]]; dup {
			return nil, ErrDuplicateAsset
		}
		snap.Entries[i] = WeightEntry{
			Category: category,
			AssetID:  assetIDs[i],
			Name:     names[i],
			Weight:   w,
			Position: i,
		}
		snap.byAsset[assetIDs[i]] = i
		if _, seen := snap.byWeight[w]; !seen {
			snap.UniqueWeights = append(snap.UniqueWeights, w)
		}
		snap.byWeight[w] = append(snap.byWeight[w], i)
		if snap.WeightSum > math.MaxUint64-w {
			return nil, ErrWeightSumOverflow
		}
		snap.WeightSum += w
	}
	sort.Slice(snap.UniqueWeights, func(i, j int) bool { return snap.UniqueWeights[i] < snap.UniqueWeights[j] })

	c.categories[category] = snap
	return snap, nil
}

func (c *WeightedCatalog) snapshot(category CategoryID) (*CategorySnapshot, error) {
	snap, ok := c.categories[category]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	return snap, nil
}

// Snapshot returns a copy of the current snapshot of category. The copy
// carries no lookup indexes and changes to it never reach the catalog.
func (c *WeightedCatalog) Snapshot(category CategoryID) (CategorySnapshot, error) {
	snap, err := c.snapshot(category)
	if err != nil {
		return CategorySnapshot{}, err
	}
	return CategorySnapshot{
		Category:      snap.Category,
		Version:       snap.Version,
		Entries:       append([]WeightEntry(nil), snap.Entries...),
		UniqueWeights: append([]uint64(nil), snap.UniqueWeights...),
		WeightSum:     snap.WeightSum,
	}, nil
}

// Categories returns every configured category in ascending order.
func (c *WeightedCatalog) Categories() []CategoryID {
	out := make([]CategoryID, 0, len(c.categories))
	for id := range c.categories {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Entry returns the entry at position within category.
func (c *WeightedCatalog) Entry(category CategoryID, position int) (WeightEntry, error) {
	snap, err := c.snapshot(category)
	if err != nil {
		return WeightEntry{}, err
	}
	if position < 0 || position >= len(snap.Entries) {
		return WeightEntry{}, ErrEntryOutOfRange
	}
	return snap.Entries[position], nil
}

// Lookup finds an asset by id within category.
func (c *WeightedCatalog) Lookup(category CategoryID, assetID uint64) (WeightEntry, error) {
	snap, err := c.snapshot(category)
	if err != nil {
		return WeightEntry{}, err
	}
	i, ok := snap.byAsset[assetID]
	if !ok {
		return WeightEntry{}, ErrAssetNotFound
	}
	return snap.Entries[i], nil
}

// EntriesInCategory returns all entries of category in their stored order.
func (c *WeightedCatalog) EntriesInCategory(category CategoryID) ([]WeightEntry, error) {
	snap, err := c.snapshot(category)
	if err != nil {
		return nil, err
	}
	return append([]WeightEntry(nil), snap.Entries...), nil
}

// EntriesAtWeight returns the entries of category whose weight is exactly w.
func (c *WeightedCatalog) EntriesAtWeight(category CategoryID, w uint64) ([]WeightEntry, error) {
	return c.EntriesInWeightRange(category, w, w)
}

// EntriesInWeightRange returns the entries of category with weight in [lo, hi],
// ordered by weight and then by position.
// The bounds are located by binary search over the unique weights, so only
// matching buckets are visited.
func (c *WeightedCatalog) EntriesInWeightRange(category CategoryID, lo, hi uint64) ([]WeightEntry, error) {
	snap, err := c.snapshot(category)
	if err != nil {
		return nil, err
	}
	return snap.inRange(lo, hi), nil
}

func (s *CategorySnapshot) inRange(lo, hi uint64) []WeightEntry {
	out := []WeightEntry{}
	if lo > hi {
		return out
	}
	weights := s.UniqueWeights
	from := sort.Search(len(weights), func(i int) bool { return weights[i] >= lo })
	to := sort.Search(len(weights), func(i int) bool { return weights[i] > hi })
	for _, w := range weights[from:to] {
		for _, i := range s.byWeight[w] {
			out = append(out, s.Entries[i])
		}
	}
	return out
}

// rerollCandidates returns every entry except the one at position skip. With
// sameWeight set only entries sharing its weight are kept.
func (s *CategorySnapshot) rerollCandidates(skip int, sameWeight bool) []WeightEntry {
	positions := make([]int, 0, len(s.Entries))
	if sameWeight {
		positions = append(positions, s.byWeight[s.Entries[skip].Weight]...)
	} else {
		for i := range s.Entries {
			positions = append(positions, i)
		}
	}
	out := make([]WeightEntry, 0, len(positions))
	for _, i := range positions {
		if i != skip {
			out = append(out, s.Entries[i])
		}
	}
	return out
}

// WeightSum returns the sum of weights in category.
func (c *WeightedCatalog) WeightSum(category CategoryID) (uint64, error) {
	snap, err := c.snapshot(category)
	if err != nil {
		return 0, err
	}
	return snap.WeightSum, nil
}
