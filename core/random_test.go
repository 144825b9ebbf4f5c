package core

import (
	"context"
	"math"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestInsecureRandomSource_Range(t *testing.T) {
	src, err := NewInsecureRandomSource([]byte("range"))
	assert.NoError(t, err)

	for _, n := range []uint64{1, 2, 7, 1000, math.MaxUint64} {
		for i := uint64(0); i < 50; i++ {
			v, err := src.Draw(context.Background(), alice, n, i)
			assert.NoError(t, err)
			check.True(t, v < n)
		}
	}

	_, err = src.Draw(context.Background(), alice, 0, 0)
	check.Error(t, err)
}

func TestInsecureRandomSource_SameSeedSameSequence(t *testing.T) {
	a, err := NewInsecureRandomSource([]byte("seed"))
	assert.NoError(t, err)
	b, err := NewInsecureRandomSource([]byte("seed"))
	assert.NoError(t, err)

	for i := uint64(0); i < 20; i++ {
		va, _ := a.Draw(context.Background(), bob, 1_000_000, i)
		vb, _ := b.Draw(context.Background(), bob, 1_000_000, i)
		check.Equal(t, va, vb)
	}
}

func TestInsecureRandomSource_RoundAdvances(t *testing.T) {
	src, err := NewInsecureRandomSource([]byte("rounds"))
	assert.NoError(t, err)

	// Repeating subject and nonce still moves on to fresh values.
	seen := map[uint64]bool{}
	for i := 0; i < 20; i++ {
		v, err := src.Draw(context.Background(), alice, 1<<40, 7)
		assert.NoError(t, err)
		seen[v] = true
	}
	check.True(t, len(seen) > 1)
}

func TestInsecureRandomSource_NilSeed(t *testing.T) {
	src, err := NewInsecureRandomSource(nil)
	assert.NoError(t, err)
	check.Equal(t, 32, len(src.seed))
}

func TestInsecureRandomSource_Converges(t *testing.T) {
	const (
		draws = 30000
		r     = 1000
	)
	src, err := NewInsecureRandomSource([]byte("convergence"))
	assert.NoError(t, err)

	counts := make([]int, r)
	for i := 0; i < draws; i++ {
		v, err := src.Draw(context.Background(), alice, r, uint64(i))
		assert.NoError(t, err)
		counts[v]++
	}

	expected := float64(draws) / r
	margin := 6 * math.Sqrt(expected)
	for bucket, c := range counts {
		if math.Abs(float64(c)-expected) > margin {
			t.Errorf("bucket %d: got %d draws, want %.0f +/- %.1f", bucket, c, expected, margin)
		}
	}
}

func TestReduceDigest(t *testing.T) {
	digest := make([]byte, 32)
	digest[31] = 10
	check.Equal(t, uint64(1), ReduceDigest(digest, 3))
	check.Equal(t, uint64(0), ReduceDigest(digest, 1))
}
