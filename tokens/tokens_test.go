package tokens

import (
	"errors"
	"sync"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/scionauction/core"
)

func TestLedger_Transfer(t *testing.T) {
	l := NewLedger("USDC")
	assert.NoError(t, l.Credit("alice", decimal.NewFromInt(10)))

	assert.NoError(t, l.Transfer("alice", "bob", decimal.RequireFromString("2.5")))
	check.Equal(t, "7.5", l.BalanceOf("alice").String())
	check.Equal(t, "2.5", l.BalanceOf("bob").String())
	check.Equal(t, "0", l.BalanceOf("carol").String())

	err := l.Transfer("bob", "alice", decimal.NewFromInt(3))
	check.True(t, errors.Is(err, core.ErrInsufficientBalance))
	check.Equal(t, "2.5", l.BalanceOf("bob").String())

	check.Error(t, l.Transfer("alice", "bob", decimal.NewFromInt(-1)))
	check.Error(t, l.Credit("alice", decimal.NewFromInt(-1)))
	check.Equal(t, "USDC", l.Symbol())
}

func TestLedger_ConcurrentTransfersConserveSupply(t *testing.T) {
	l := NewLedger("USDC")
	assert.NoError(t, l.Credit("a", decimal.NewFromInt(1000)))
	assert.NoError(t, l.Credit("b", decimal.NewFromInt(1000)))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = l.Transfer("a", "b", decimal.NewFromInt(1))
		}()
		go func() {
			defer wg.Done()
			_ = l.Transfer("b", "a", decimal.NewFromInt(1))
		}()
	}
	wg.Wait()

	total := l.BalanceOf("a").Add(l.BalanceOf("b"))
	check.Equal(t, "2000", total.String())
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry("pass")

	assert.NoError(t, r.Mint("alice", 1))
	assert.NoError(t, r.Mint("alice", 3))
	assert.NoError(t, r.Mint("bob", 2))
	check.True(t, errors.Is(r.Mint("bob", 1), ErrTokenExists))

	owner, err := r.OwnerOf(1)
	assert.NoError(t, err)
	check.Equal(t, core.Address("alice"), owner)
	check.Equal(t, []uint64{1, 3}, r.TokensOf("alice"))

	check.True(t, errors.Is(r.Transfer("bob", "carol", 1), ErrWrongOwner))
	assert.NoError(t, r.Transfer("alice", "carol", 1))
	check.Equal(t, []uint64{3}, r.TokensOf("alice"))

	assert.NoError(t, r.Burn(1))
	_, err = r.OwnerOf(1)
	check.True(t, errors.Is(err, ErrTokenMissing))
	check.True(t, errors.Is(r.Burn(1), ErrTokenMissing))
	check.True(t, errors.Is(r.Transfer("carol", "alice", 1), ErrTokenMissing))
	check.Equal(t, 0, len(r.TokensOf("carol")))
}

// The in-memory collaborators drive a full engine round trip.
func TestCollaborators_WithEngine(t *testing.T) {
	funds := NewLedger("USDC")
	rerolls := NewLedger("SCN")
	passes := NewRegistry("pass")
	scions := NewRegistry("scion")
	random, err := core.NewInsecureRandomSource([]byte("tokens"))
	assert.NoError(t, err)

	cfg := core.DefaultConfig()
	engine, err := core.NewEngine(cfg, core.Dependencies{
		Funds:       funds,
		RerollFunds: rerolls,
		Passes:      passes,
		Scions:      scions,
		Random:      random,
	})
	assert.NoError(t, err)

	minted, err := engine.MintPromotionBatch(t.Context(), cfg.Operator, []core.Tier{core.TierGold})
	assert.NoError(t, err)
	check.Equal(t, []uint64{minted[0].ID}, passes.TokensOf(cfg.PromotionHolder))
	check.Equal(t, 0, len(scions.TokensOf(cfg.PromotionHolder)))
}
