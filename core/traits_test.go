package core

import (
	"context"
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

// promotionPasses mints one promotion pass per tier to the holder and returns their ids.
func (env *testEnv) promotionPasses(t *testing.T, tiers ...Tier) []uint64 {
	t.Helper()
	minted, err := env.engine.MintPromotionBatch(context.Background(), operator, tiers)
	if err != nil {
		t.Fatalf("mint promotion batch: %v", err)
	}
	ids := make([]uint64, len(minted))
	for i, pass := range minted {
		ids[i] = pass.ID
	}
	return ids
}

func (env *testEnv) weightBands(t *testing.T) {
	t.Helper()
	if _, err := env.engine.SetWeightBands(context.Background(), operator, referenceWeightBands()); err != nil {
		t.Fatalf("set weight bands: %v", err)
	}
}

func TestGenerate_WeightsWithinTierBand(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	holder := env.cfg.PromotionHolder

	weights := make([]uint64, 200)
	for i := range weights {
		weights[i] = uint64(i + 1)
	}
	env.seedCatalog(t, 4, weights)
	env.weightBands(t)

	var tiers []Tier
	for _, tier := range []Tier{TierBronze, TierSilver, TierGold, TierPlatinum, TierRuby, TierOnyx} {
		for i := 0; i < 5; i++ {
			tiers = append(tiers, tier)
		}
	}
	ids := env.promotionPasses(t, tiers...)
	bands := env.engine.WeightBands()

	for i, id := range ids {
		scion, err := env.engine.Generate(ctx, holder, id)
		assert.NoError(t, err)
		check.Equal(t, tiers[i], scion.Tier)
		assert.Equal(t, 4, len(scion.Traits))

		band := bands.Bands[tiers[i]]
		for c, trait := range scion.Traits {
			check.Equal(t, CategoryID(c), trait.Category)
			if trait.Weight < band.Bottom || trait.Weight > band.Top {
				t.Errorf("%s scion %d category %d: weight %d outside [%d, %d]",
					tiers[i], scion.TokenID, c, trait.Weight, band.Bottom, band.Top)
			}
		}
	}

	check.Equal(t, 0, env.passes.count(holder))
	check.Equal(t, 30, env.scions.count(holder))
	check.Equal(t, 30, len(env.sink.ofType(EventScionClaimed)))
}

func TestGenerate_FromAuctionPass(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &mockRandomSource{sequence: []uint64{2}})
	env.fund(alice, "100")
	env.startAuction(t)
	_, err := env.engine.PlaceBid(ctx, alice, 1, amt("25"), amt("25"))
	assert.NoError(t, err)
	env.finishAuction(t)
	_, err = env.engine.SetBands(ctx, operator, referenceBands())
	assert.NoError(t, err)
	passes, err := env.engine.ClaimPass(ctx, alice, []uint64{1})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(passes))

	env.seedCatalog(t, 1, []uint64{150, 160, 170, 171, 10})
	env.weightBands(t)

	scion, err := env.engine.Generate(ctx, alice, passes[0].ID)
	assert.NoError(t, err)
	check.Equal(t, TierGold, scion.Tier)
	check.Equal(t, uint64(1), scion.TokenID)
	// Gold draws from [151, 170]: 160 and 170, so index 2 wraps to 160.
	check.Equal(t, uint64(160), scion.Traits[0].Weight)
	check.Equal(t, uint64(1), scion.Traits[0].AssetID)
	check.Equal(t, uint64(1), scion.WeightBandVersion)

	_, err = env.engine.Pass(passes[0].ID)
	check.True(t, errors.Is(err, ErrPassNotFound))
	_, err = env.passes.OwnerOf(passes[0].ID)
	check.Error(t, err)
	owner, err := env.scions.OwnerOf(scion.TokenID)
	assert.NoError(t, err)
	check.Equal(t, alice, owner)

	stored, err := env.engine.Scion(scion.TokenID)
	assert.NoError(t, err)
	check.Equal(t, scion.Traits[0].Name, stored.Traits[0].Name)
}

func TestGenerate_Failures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	holder := env.cfg.PromotionHolder
	ids := env.promotionPasses(t, TierOnyx)

	_, err := env.engine.Generate(ctx, alice, ids[0])
	check.True(t, errors.Is(err, ErrInvalidOwner))

	_, err = env.engine.Generate(ctx, holder, 99)
	check.True(t, errors.Is(err, ErrPassNotFound))

	_, err = env.engine.Generate(ctx, holder, ids[0])
	check.True(t, errors.Is(err, ErrWeightBandsNotSet))

	env.weightBands(t)
	_, err = env.engine.Generate(ctx, holder, ids[0])
	check.True(t, errors.Is(err, ErrCatalogNotSet))

	// Category 1 has nothing in the Onyx band, so the whole call fails.
	env.seedCatalog(t, 1, []uint64{199})
	_, err = env.engine.SetCategory(ctx, operator, 1, []uint64{7}, []uint64{3}, []string{"common"})
	assert.NoError(t, err)
	_, err = env.engine.Generate(ctx, holder, ids[0])
	check.True(t, errors.Is(err, ErrNoAssetsInBand))
	check.Equal(t, KindConfiguration, KindOf(err))

	owner, err := env.passes.OwnerOf(ids[0])
	assert.NoError(t, err)
	check.Equal(t, holder, owner)
	check.Equal(t, 0, env.scions.count(holder))
}

func TestGenerate_MintFailureRestoresPass(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	holder := env.cfg.PromotionHolder
	ids := env.promotionPasses(t, TierBronze)
	env.seedCatalog(t, 2, []uint64{10, 20})
	env.weightBands(t)

	env.scions.failMints = 0
	_, err := env.engine.Generate(ctx, holder, ids[0])
	check.Error(t, err)

	owner, err := env.passes.OwnerOf(ids[0])
	assert.NoError(t, err)
	check.Equal(t, holder, owner)
	_, err = env.engine.Pass(ids[0])
	assert.NoError(t, err)

	env.scions.failMints = -1
	scion, err := env.engine.Generate(ctx, holder, ids[0])
	assert.NoError(t, err)
	check.Equal(t, uint64(1), scion.TokenID)
}

// rerollEnv generates one Bronze scion whose single trait is asset 1 with
// weight 50. The catalog's stored order is 5, 50, 100, 150 and a reroll never
// draws the current asset, so a reroll draw of i lands on the i-th of 5, 100, 150.
func rerollEnv(t *testing.T, rerollDraws []uint64, mutate ...func(*Config)) (*testEnv, uint64) {
	return rerollEnvWithWeights(t, []uint64{5, 50, 100, 150}, rerollDraws, mutate...)
}

func rerollEnvWithWeights(t *testing.T, weights, rerollDraws []uint64, mutate ...func(*Config)) (*testEnv, uint64) {
	t.Helper()
	random := &mockRandomSource{sequence: append([]uint64{1}, rerollDraws...)}
	env := newTestEnv(t, random, mutate...)
	env.seedCatalog(t, 1, weights)
	env.weightBands(t)
	ids := env.promotionPasses(t, TierBronze)

	scion, err := env.engine.Generate(context.Background(), env.cfg.PromotionHolder, ids[0])
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if scion.Traits[0].Weight != 50 || scion.Traits[0].AssetID != 1 {
		t.Fatalf("generated asset %d weight %d, want asset 1 weight 50", scion.Traits[0].AssetID, scion.Traits[0].Weight)
	}
	env.rerollFunds.balances[env.cfg.PromotionHolder] = amt("1000")
	return env, scion.TokenID
}

func TestReroll_ChargesPriceToBurnAddress(t *testing.T) {
	ctx := context.Background()
	env, token := rerollEnv(t, []uint64{0})
	holder := env.cfg.PromotionHolder

	trait, price, err := env.engine.Reroll(ctx, holder, token, 0)
	assert.NoError(t, err)
	check.Equal(t, uint64(5), trait.Weight)
	check.Equal(t, uint64(1), trait.Rerolls)
	check.Equal(t, "100", price.String())
	check.Equal(t, "900", env.rerollFunds.BalanceOf(holder).String())
	check.Equal(t, "100", env.rerollFunds.BalanceOf(env.cfg.BurnAddress).String())

	// Bid funds are untouched by rerolls.
	check.Equal(t, "0", env.funds.BalanceOf(env.cfg.BurnAddress).String())

	scion, err := env.engine.Scion(token)
	assert.NoError(t, err)
	check.Equal(t, uint64(5), scion.Traits[0].Weight)

	events := env.sink.ofType(EventReroll)
	assert.Equal(t, 1, len(events))
	check.Equal(t, "100", events[0].Price.String())
}

func TestReroll_Policies(t *testing.T) {
	twinFifties := []uint64{5, 50, 50, 100, 150}
	cases := []struct {
		name    string
		policy  RerollPolicy
		weights []uint64
		draw    uint64
		want    error
	}{
		{"no downgrade rejects lower weight", RerollPolicy{NoDowngrade: true}, nil, 0, ErrDowngradeNotAllowed},
		{"no downgrade allows higher weight", RerollPolicy{NoDowngrade: true}, nil, 1, nil},
		{"same weight needs another asset at the weight", RerollPolicy{SameWeightOnly: true}, nil, 0, ErrNoRerollCandidates},
		{"same weight draws the twin", RerollPolicy{SameWeightOnly: true}, twinFifties, 0, nil},
		{"rarity plus rejects equal", RerollPolicy{RarityPlus: true}, twinFifties, 1, ErrRarityPlusRequired},
		{"rarity plus rejects higher", RerollPolicy{RarityPlus: true}, nil, 2, ErrRarityPlusRequired},
		{"rarity plus allows rarer", RerollPolicy{RarityPlus: true}, nil, 0, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			weights := tc.weights
			if weights == nil {
				weights = []uint64{5, 50, 100, 150}
			}
			env, token := rerollEnvWithWeights(t, weights, []uint64{tc.draw}, func(c *Config) { c.Policy = tc.policy })
			holder := env.cfg.PromotionHolder

			trait, _, err := env.engine.Reroll(context.Background(), holder, token, 0)
			if tc.want == nil {
				assert.NoError(t, err)
				check.NotEqual(t, uint64(1), trait.AssetID)
				return
			}
			check.True(t, errors.Is(err, tc.want))
			check.Equal(t, "1000", env.rerollFunds.BalanceOf(holder).String())
			scion, err := env.engine.Scion(token)
			assert.NoError(t, err)
			check.Equal(t, uint64(1), scion.Traits[0].AssetID)
			check.Equal(t, uint64(0), scion.Traits[0].Rerolls)
		})
	}
}

func TestReroll_NeverKeepsCurrentAsset(t *testing.T) {
	ctx := context.Background()

	t.Run("same weight only charges for a different asset", func(t *testing.T) {
		env, token := rerollEnvWithWeights(t, []uint64{5, 50, 50, 100, 150}, []uint64{0},
			func(c *Config) { c.Policy = RerollPolicy{SameWeightOnly: true} })
		holder := env.cfg.PromotionHolder

		trait, price, err := env.engine.Reroll(ctx, holder, token, 0)
		assert.NoError(t, err)
		check.Equal(t, uint64(2), trait.AssetID)
		check.Equal(t, uint64(50), trait.Weight)
		check.Equal(t, "10", price.String())
		check.Equal(t, "990", env.rerollFunds.BalanceOf(holder).String())
	})

	t.Run("lone asset at the weight is rejected without charge", func(t *testing.T) {
		env, token := rerollEnv(t, []uint64{1}, func(c *Config) { c.Policy = RerollPolicy{SameWeightOnly: true} })
		holder := env.cfg.PromotionHolder

		_, _, err := env.engine.Reroll(ctx, holder, token, 0)
		check.True(t, errors.Is(err, ErrNoRerollCandidates))
		check.Equal(t, KindConfiguration, KindOf(err))
		check.Equal(t, "1000", env.rerollFunds.BalanceOf(holder).String())
		check.Equal(t, 0, len(env.sink.ofType(EventReroll)))
	})

	t.Run("every draw without a policy moves off the current asset", func(t *testing.T) {
		for draw := uint64(0); draw < 3; draw++ {
			env, token := rerollEnv(t, []uint64{draw})
			trait, _, err := env.engine.Reroll(ctx, env.cfg.PromotionHolder, token, 0)
			assert.NoError(t, err)
			check.NotEqual(t, uint64(1), trait.AssetID)
		}
	})
}

func TestReroll_Failures(t *testing.T) {
	ctx := context.Background()
	env, token := rerollEnv(t, []uint64{2})
	holder := env.cfg.PromotionHolder

	_, _, err := env.engine.Reroll(ctx, alice, token, 0)
	check.True(t, errors.Is(err, ErrInvalidOwner))

	_, _, err = env.engine.Reroll(ctx, holder, 42, 0)
	check.True(t, errors.Is(err, ErrTokenNotFound))

	_, _, err = env.engine.Reroll(ctx, holder, token, 9)
	check.True(t, errors.Is(err, ErrCategoryNotFound))

	env.rerollFunds.balances[holder] = amt("1")
	_, _, err = env.engine.Reroll(ctx, holder, token, 0)
	check.True(t, errors.Is(err, ErrInsufficientReroll))
	check.Equal(t, KindFunding, KindOf(err))

	// Replacing the category removes the scion's current asset.
	env.rerollFunds.balances[holder] = amt("1000")
	_, err = env.engine.SetCategory(ctx, operator, 0, []uint64{500, 501}, []uint64{50, 60}, []string{"new-a", "new-b"})
	assert.NoError(t, err)
	_, _, err = env.engine.Reroll(ctx, holder, token, 0)
	check.True(t, errors.Is(err, ErrAssetNotFound))
}

func TestEngineRerollPrice(t *testing.T) {
	env := newTestEnv(t, nil)
	price, err := env.engine.RerollPrice(50, 5)
	assert.NoError(t, err)
	check.Equal(t, "100", price.String())
}
