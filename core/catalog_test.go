package core

import (
	"errors"
	"math"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func newTestCatalog(t *testing.T) *WeightedCatalog {
	t.Helper()
	c := NewWeightedCatalog(200)
	_, err := c.Set(1,
		[]uint64{10, 11, 12, 13, 14, 15},
		[]uint64{150, 5, 100, 5, 197, 100},
		[]string{"crown", "ember", "leaf", "frost", "void", "stone"},
	)
	assert.NoError(t, err)
	return c
}

func TestWeightedCatalog_Set(t *testing.T) {
	c := newTestCatalog(t)

	snap, err := c.Snapshot(1)
	assert.NoError(t, err)
	check.Equal(t, []uint64{5, 100, 150, 197}, snap.UniqueWeights)
	check.Equal(t, uint64(557), snap.WeightSum)
	check.Equal(t, uint64(1), snap.Version)

	_, err = c.Set(1, []uint64{1}, []uint64{1}, []string{"only"})
	assert.NoError(t, err)
	snap, _ = c.Snapshot(1)
	check.Equal(t, uint64(2), snap.Version)
	check.Equal(t, 1, len(snap.Entries))
}

func TestWeightedCatalog_SetValidation(t *testing.T) {
	c := NewWeightedCatalog(200)

	_, err := c.Set(1, []uint64{1, 2}, []uint64{1}, []string{"a", "b"})
	check.True(t, errors.Is(err, ErrLengthMismatch))

	_, err = c.Set(1, nil, nil, nil)
	check.True(t, errors.Is(err, ErrEmptyCategory))

	_, err = c.Set(1, []uint64{1}, []uint64{0}, []string{"a"})
	check.True(t, errors.Is(err, ErrInvalidWeight))

	_, err = c.Set(1, []uint64{1}, []uint64{201}, []string{"a"})
	check.True(t, errors.Is(err, ErrInvalidWeight))

	_, err = c.Set(1, []uint64{1, 1}, []uint64{3, 4}, []string{"a", "b"})
	check.True(t, errors.Is(err, ErrDuplicateAsset))

	check.Equal(t, 0, len(c.Categories()))
}

func TestWeightedCatalog_SetRejectsWeightSumOverflow(t *testing.T) {
	c := NewWeightedCatalog(math.MaxUint64)

	_, err := c.Set(1, []uint64{1, 2}, []uint64{math.MaxUint64, 1}, []string{"a", "b"})
	check.True(t, errors.Is(err, ErrWeightSumOverflow))
	check.Equal(t, KindValidation, KindOf(err))
	check.Equal(t, 0, len(c.Categories()))

	snap, err := c.Set(1, []uint64{1}, []uint64{math.MaxUint64}, []string{"a"})
	assert.NoError(t, err)
	check.Equal(t, uint64(math.MaxUint64), snap.WeightSum)
}

func TestWeightedCatalog_SnapshotIsACopy(t *testing.T) {
	c := newTestCatalog(t)

	snap, err := c.Snapshot(1)
	assert.NoError(t, err)
	snap.Entries[0].Weight = 1
	snap.Entries[0].Name = "forged"
	snap.UniqueWeights[0] = 999

	entry, err := c.Entry(1, 0)
	assert.NoError(t, err)
	check.Equal(t, "crown", entry.Name)
	check.Equal(t, uint64(150), entry.Weight)

	at5, err := c.EntriesAtWeight(1, 5)
	assert.NoError(t, err)
	check.Equal(t, 2, len(at5))

	_, err = c.Snapshot(9)
	check.True(t, errors.Is(err, ErrCategoryNotFound))
}

func TestCategorySnapshot_RerollCandidates(t *testing.T) {
	c := newTestCatalog(t)
	snap, err := c.snapshot(1)
	assert.NoError(t, err)

	names := func(entries []WeightEntry) []string {
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.Name)
		}
		return out
	}

	// Position 1 is "ember" at weight 5; "frost" shares the weight.
	check.Equal(t, []string{"crown", "leaf", "frost", "void", "stone"}, names(snap.rerollCandidates(1, false)))
	check.Equal(t, []string{"frost"}, names(snap.rerollCandidates(1, true)))
	check.Equal(t, 0, len(snap.rerollCandidates(4, true)))

	_, err = c.Set(2, []uint64{7}, []uint64{50}, []string{"lone"})
	assert.NoError(t, err)
	lone, err := c.snapshot(2)
	assert.NoError(t, err)
	check.Equal(t, 0, len(lone.rerollCandidates(0, false)))
}

func TestWeightedCatalog_Queries(t *testing.T) {
	c := newTestCatalog(t)

	entry, err := c.Entry(1, 2)
	assert.NoError(t, err)
	check.Equal(t, "leaf", entry.Name)

	_, err = c.Entry(1, 6)
	check.True(t, errors.Is(err, ErrEntryOutOfRange))

	_, err = c.Entry(9, 0)
	check.True(t, errors.Is(err, ErrCategoryNotFound))

	all, err := c.EntriesInCategory(1)
	assert.NoError(t, err)
	check.Equal(t, 6, len(all))
	check.Equal(t, "crown", all[0].Name)

	at5, err := c.EntriesAtWeight(1, 5)
	assert.NoError(t, err)
	check.Equal(t, 2, len(at5))
	check.Equal(t, "ember", at5[0].Name)
	check.Equal(t, "frost", at5[1].Name)

	none, err := c.EntriesAtWeight(1, 6)
	assert.NoError(t, err)
	check.Equal(t, 0, len(none))

	found, err := c.Lookup(1, 14)
	assert.NoError(t, err)
	check.Equal(t, uint64(197), found.Weight)

	_, err = c.Lookup(1, 99)
	check.True(t, errors.Is(err, ErrAssetNotFound))

	sum, err := c.WeightSum(1)
	assert.NoError(t, err)
	check.Equal(t, uint64(557), sum)
}

func TestWeightedCatalog_EntriesInWeightRange(t *testing.T) {
	c := newTestCatalog(t)

	cases := []struct {
		lo, hi uint64
		names  []string
	}{
		{1, 4, nil},
		{1, 5, []string{"ember", "frost"}},
		{5, 100, []string{"ember", "frost", "leaf", "stone"}},
		{6, 149, []string{"leaf", "stone"}},
		{101, 150, []string{"crown"}},
		{151, 196, nil},
		{197, 200, []string{"void"}},
		{1, 200, []string{"ember", "frost", "leaf", "stone", "crown", "void"}},
		{100, 50, nil},
	}
	for _, tc := range cases {
		entries, err := c.EntriesInWeightRange(1, tc.lo, tc.hi)
		assert.NoError(t, err)
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			check.True(t, e.Weight >= tc.lo && e.Weight <= tc.hi)
			names = append(names, e.Name)
		}
		if tc.names == nil {
			check.Equal(t, 0, len(names))
		} else {
			check.Equal(t, tc.names, names)
		}
	}
}

func TestWeightedCatalog_Categories(t *testing.T) {
	c := NewWeightedCatalog(10)
	for _, id := range []CategoryID{3, 1, 2} {
		_, err := c.Set(id, []uint64{1}, []uint64{1}, []string{"x"})
		assert.NoError(t, err)
	}
	check.Equal(t, []CategoryID{1, 2, 3}, c.Categories())
}
