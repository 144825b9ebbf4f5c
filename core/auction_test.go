package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestAuctionLedger_StateMachine(t *testing.T) {
	l := NewAuctionLedger()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	check.Equal(t, AuctionNotStarted, l.State(t0))

	l.Start(t0.Add(time.Hour), 24*time.Hour)
	check.Equal(t, AuctionNotStarted, l.State(t0))
	check.Equal(t, AuctionActive, l.State(t0.Add(time.Hour)))
	check.Equal(t, AuctionFinished, l.State(t0.Add(25*time.Hour)))

	// Restarting while active replaces the window
	l.Start(t0.Add(time.Hour), 48*time.Hour)
	check.Equal(t, AuctionActive, l.State(t0.Add(25*time.Hour)))

	// Finishing freezes the elapsed duration
	l.Finish(t0.Add(3 * time.Hour))
	start, duration := l.Window()
	check.Equal(t, t0.Add(time.Hour), start)
	check.Equal(t, 2*time.Hour, duration)
	check.Equal(t, AuctionFinished, l.State(t0.Add(3*time.Hour)))

	// Finishing again is a no-op
	l.Finish(t0.Add(10 * time.Hour))
	_, duration = l.Window()
	check.Equal(t, 2*time.Hour, duration)
}

func TestAuctionLedger_FinishBeforeStart(t *testing.T) {
	l := NewAuctionLedger()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	l.Start(t0.Add(time.Hour), time.Hour)
	l.Finish(t0)
	check.Equal(t, AuctionFinished, l.State(t0))
}

func TestAuctionLedger_SwapDeleteKeepsIndices(t *testing.T) {
	l := NewAuctionLedger()
	now := time.Now()

	for _, bidder := range []Address{alice, bob, alice, bob, alice} {
		l.Append(bidder, amt("2"), now)
	}
	check.Equal(t, 5, l.CountAll())
	check.Equal(t, 3, l.CountOwned(alice))

	check.True(t, l.Remove(1))
	check.False(t, l.Remove(1))

	check.Equal(t, 4, l.CountAll())
	check.Equal(t, 2, l.CountOwned(alice))

	// Every other index still resolves to its own record
	for _, index := range []uint64{2, 3, 4, 5} {
		bid, ok := l.Get(index)
		assert.True(t, ok)
		check.Equal(t, index, bid.Index)
	}

	// The freed slot is reused but the index is not
	bid := l.Append(bob, amt("3"), now)
	check.Equal(t, uint64(6), bid.Index)
	got, ok := l.Get(6)
	assert.True(t, ok)
	check.Equal(t, bob, got.Bidder)
	check.Equal(t, 3, l.CountOwned(bob))
}

func TestAuctionLedger_ListPagination(t *testing.T) {
	l := NewAuctionLedger()
	now := time.Now()
	for i := 0; i < 7; i++ {
		bidder := alice
		if i%2 == 1 {
			bidder = bob
		}
		l.Append(bidder, amt("2"), now)
	}

	page := l.List(0, 3, ScopeAll, "")
	check.Equal(t, 3, len(page))
	check.Equal(t, uint64(1), page[0].Index)

	page = l.List(6, 3, ScopeAll, "")
	check.Equal(t, 1, len(page))
	check.Equal(t, uint64(7), page[0].Index)

	check.Equal(t, 0, len(l.List(7, 3, ScopeAll, "")))
	check.Equal(t, 0, len(l.List(0, 0, ScopeAll, "")))

	owned := l.List(0, 10, ScopeOwned, bob)
	check.Equal(t, 3, len(owned))
	for _, bid := range owned {
		check.Equal(t, bob, bid.Bidder)
	}
	check.Equal(t, 0, len(l.List(0, 10, ScopeOwned, "nobody")))
}

func TestAuctionLedger_Digest(t *testing.T) {
	l := NewAuctionLedger()
	empty := l.Digest()
	l.Append(alice, amt("2"), time.Now())
	first := l.Digest()
	check.NotEqual(t, empty, first)
	check.Equal(t, first, l.Digest())
	check.Equal(t, 64, len(first))
}

func TestPlaceBid_Success(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fund(alice, "100")
	env.startAuction(t)

	first, err := env.engine.PlaceBid(context.Background(), alice, 3, amt("2"), amt("6"))
	assert.NoError(t, err)
	check.Equal(t, uint64(1), first)
	check.Equal(t, 3, env.engine.CountAllBids())
	check.Equal(t, 3, env.engine.CountOwnedBids(alice))
	check.Equal(t, "94", env.funds.BalanceOf(alice).String())
	check.Equal(t, "6", env.funds.BalanceOf(env.cfg.Escrow).String())

	events := env.sink.ofType(EventBidPlaced)
	check.Equal(t, 3, len(events))
	check.Equal(t, uint64(3), events[2].BidIndex)

	// All bids of one call share the same timestamp
	views := env.engine.ListBids(0, 10, ScopeAll, "")
	check.Equal(t, views[0].PlacedAt, views[2].PlacedAt)
}

func TestPlaceBid_Rejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil, func(c *Config) { c.TotalBidsLimit = 40 })
	env.fund(alice, "1000")

	_, err := env.engine.PlaceBid(ctx, alice, 1, amt("2"), amt("2"))
	check.True(t, errors.Is(err, ErrAuctionInactive))

	env.startAuction(t)

	_, err = env.engine.PlaceBid(ctx, alice, 1, amt("1"), amt("1"))
	check.True(t, errors.Is(err, ErrBidBelowMinimum))
	check.Equal(t, "Bid value must be bigger then minimum bid", ReasonOf(err))

	_, err = env.engine.PlaceBid(ctx, alice, 31, amt("2"), amt("62"))
	check.True(t, errors.Is(err, ErrTooManyBids))
	check.Equal(t, KindResourceLimit, KindOf(err))

	_, err = env.engine.PlaceBid(ctx, alice, 2, amt("2"), amt("3"))
	check.True(t, errors.Is(err, ErrInsufficientBidFunds))

	_, err = env.engine.PlaceBid(ctx, alice, 0, amt("2"), amt("0"))
	check.True(t, errors.Is(err, ErrInvalidCount))

	_, err = env.engine.PlaceBid(ctx, bob, 1, amt("2"), amt("2"))
	check.True(t, errors.Is(err, ErrInsufficientBidFunds))
	check.Equal(t, KindFunding, KindOf(err))

	_, err = env.engine.PlaceBid(ctx, alice, 30, amt("2"), amt("60"))
	assert.NoError(t, err)
	_, err = env.engine.PlaceBid(ctx, alice, 11, amt("2"), amt("22"))
	check.True(t, errors.Is(err, ErrBidsLimitReached))

	// Rejected calls leave no trace
	check.Equal(t, 30, env.engine.CountAllBids())
	check.Equal(t, 30, len(env.sink.ofType(EventBidPlaced)))
	check.Equal(t, "940", env.funds.BalanceOf(alice).String())
}

func TestPlaceBid_PaymentMustMatchExactly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.fund(alice, "100")
	env.startAuction(t)

	// A value finer than the monetary precision never settles.
	_, err := env.engine.PlaceBid(ctx, alice, 1, amt("2.000000004"), amt("2"))
	check.True(t, errors.Is(err, ErrAmountPrecision))
	check.Equal(t, KindValidation, KindOf(err))

	_, err = env.engine.PlaceBid(ctx, alice, 1, amt("2"), amt("2.000000004"))
	check.True(t, errors.Is(err, ErrAmountPrecision))

	// Within precision the payment must equal the total to the last place.
	_, err = env.engine.PlaceBid(ctx, alice, 3, amt("2.00000001"), amt("6.00000002"))
	check.True(t, errors.Is(err, ErrInsufficientBidFunds))

	check.Equal(t, 0, env.engine.CountAllBids())
	check.Equal(t, "100", env.funds.BalanceOf(alice).String())

	_, err = env.engine.PlaceBid(ctx, alice, 3, amt("2.00000001"), amt("6.00000003"))
	assert.NoError(t, err)
	check.Equal(t, "93.99999997", env.funds.BalanceOf(alice).String())
	check.Equal(t, "6.00000003", env.funds.BalanceOf(env.cfg.Escrow).String())
}

func TestUpdateBid_PaymentPrecision(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.fund(alice, "100")
	env.startAuction(t)

	index, err := env.engine.PlaceBid(ctx, alice, 1, amt("2"), amt("2"))
	assert.NoError(t, err)

	err = env.engine.UpdateBid(ctx, alice, index, amt("1.000000004"), amt("1"))
	check.True(t, errors.Is(err, ErrAmountPrecision))

	err = env.engine.UpdateBid(ctx, alice, index, amt("1"), amt("0.999999999"))
	check.True(t, errors.Is(err, ErrAmountPrecision))

	err = env.engine.UpdateBid(ctx, alice, index, amt("1.00000001"), amt("1"))
	check.True(t, errors.Is(err, ErrInsufficientUpdate))
	check.Equal(t, "98", env.funds.BalanceOf(alice).String())

	err = env.engine.UpdateBid(ctx, alice, index, amt("1.00000001"), amt("1.00000001"))
	assert.NoError(t, err)
	bid, _ := env.engine.Bid(index)
	check.Equal(t, "3.00000001", bid.Value.String())
	check.Equal(t, "96.99999999", env.funds.BalanceOf(alice).String())
}

func TestUpdateBid(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.fund(alice, "100")
	env.fund(bob, "100")
	env.startAuction(t)

	index, err := env.engine.PlaceBid(ctx, alice, 1, amt("2"), amt("2"))
	assert.NoError(t, err)
	before, _ := env.engine.Bid(index)

	env.clock.Advance(time.Hour)

	err = env.engine.UpdateBid(ctx, bob, index, amt("1"), amt("1"))
	check.True(t, errors.Is(err, ErrNotBidOwner))

	err = env.engine.UpdateBid(ctx, alice, index, amt("5"), amt("4"))
	check.True(t, errors.Is(err, ErrInsufficientUpdate))

	err = env.engine.UpdateBid(ctx, alice, 99, amt("5"), amt("5"))
	check.True(t, errors.Is(err, ErrBidNotFound))

	err = env.engine.UpdateBid(ctx, alice, index, amt("5"), amt("7"))
	assert.NoError(t, err)

	after, _ := env.engine.Bid(index)
	check.Equal(t, "7", after.Value.String())
	check.Equal(t, before.PlacedAt, after.PlacedAt)
	check.Equal(t, index, after.Index)
	// Only the declared increment is charged
	check.Equal(t, "93", env.funds.BalanceOf(alice).String())

	updates := env.sink.ofType(EventBidUpdated)
	check.Equal(t, 1, len(updates))
	check.Equal(t, "2", updates[0].Previous.String())
	check.Equal(t, "7", updates[0].Value.String())

	env.clock.Advance(72 * time.Hour)
	err = env.engine.UpdateBid(ctx, alice, index, amt("1"), amt("1"))
	check.True(t, errors.Is(err, ErrAuctionInactive))
}

func TestCancelBid_RestoresBalanceAndCounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.fund(alice, "100")
	env.fund(bob, "100")
	env.startAuction(t)

	_, err := env.engine.PlaceBid(ctx, alice, 3, amt("2.5"), amt("7.5"))
	assert.NoError(t, err)
	_, err = env.engine.PlaceBid(ctx, bob, 2, amt("4"), amt("8"))
	assert.NoError(t, err)

	err = env.engine.CancelBid(ctx, alice, 1)
	check.True(t, errors.Is(err, ErrAuctionNotFinished))
	check.Equal(t, "Auction active", ReasonOf(err))

	env.finishAuction(t)

	err = env.engine.CancelBid(ctx, bob, 1)
	check.True(t, errors.Is(err, ErrNotBidOwner))

	for _, index := range []uint64{1, 2, 3} {
		assert.NoError(t, env.engine.CancelBid(ctx, alice, index))
	}

	check.Equal(t, "100", env.funds.BalanceOf(alice).String())
	check.Equal(t, 2, env.engine.CountAllBids())
	check.Equal(t, 0, env.engine.CountOwnedBids(alice))
	check.Equal(t, 2, env.engine.CountOwnedBids(bob))
	check.Equal(t, 3, len(env.sink.ofType(EventBidCanceled)))

	err = env.engine.CancelBid(ctx, alice, 1)
	check.True(t, errors.Is(err, ErrBidNotFound))

	// Bob's bids are untouched by the swap-deletes
	for _, view := range env.engine.ListBids(0, 10, ScopeOwned, bob) {
		check.Equal(t, bob, view.Bidder)
		check.Equal(t, "4", view.Value.String())
	}
}

func TestStartAuction_RequiresOperator(t *testing.T) {
	env := newTestEnv(t, nil)
	err := env.engine.StartAuction(context.Background(), alice, time.Hour, time.Time{})
	check.True(t, errors.Is(err, ErrNotOperator))
	check.Equal(t, KindAuthorization, KindOf(err))

	err = env.engine.StartAuction(context.Background(), operator, 0, time.Time{})
	check.True(t, errors.Is(err, ErrInvalidDuration))

	check.Equal(t, AuctionNotStarted, env.engine.AuctionStatus().State)
}

func TestAuctionStatus_AutoFinish(t *testing.T) {
	env := newTestEnv(t, nil)
	env.startAuction(t)

	status := env.engine.AuctionStatus()
	check.Equal(t, AuctionActive, status.State)
	check.Equal(t, "active", status.StateName)

	env.clock.Advance(72 * time.Hour)
	check.Equal(t, AuctionFinished, env.engine.AuctionStatus().State)
}

func TestFinishAuction_PublishesDigest(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fund(alice, "10")
	env.startAuction(t)
	_, err := env.engine.PlaceBid(context.Background(), alice, 1, amt("2"), amt("2"))
	assert.NoError(t, err)

	env.finishAuction(t)

	finished := env.sink.ofType(EventAuctionFinished)
	assert.Equal(t, 1, len(finished))
	check.Equal(t, env.engine.LedgerDigest(), finished[0].Digest)
}

func TestEvents_AreSequenced(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fund(alice, "10")
	env.startAuction(t)
	_, err := env.engine.PlaceBid(context.Background(), alice, 2, amt("2"), amt("4"))
	assert.NoError(t, err)

	for i, event := range env.sink.events {
		check.Equal(t, uint64(i+1), event.Seq)
		check.NotEqual(t, "00000000-0000-0000-0000-000000000000", event.ID.String())
	}
}
