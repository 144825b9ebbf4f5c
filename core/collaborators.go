package core

import "context"

// PaymentInstrument is the fungible ledger bids, refunds, purchases and rerolls settle on.
// Transfer must fail with an error wrapping ErrInsufficientBalance when from is short.
type PaymentInstrument interface {
	BalanceOf(addr Address) Amount
	Transfer(from, to Address, amount Amount) error
}

// TokenRegistry tracks single-owner, transferable, burnable tokens.
type TokenRegistry interface {
	OwnerOf(id uint64) (Address, error)
	Mint(to Address, id uint64) error
	Burn(id uint64) error
	Transfer(from, to Address, id uint64) error
}

// RandomSource returns a value uniform over [0, n) for a given subject and nonce.
type RandomSource interface {
	Draw(ctx context.Context, subject Address, n uint64, nonce uint64) (uint64, error)
}

// EventSink receives events after the operation that produced them has committed.
type EventSink interface {
	Publish(ctx context.Context, event Event)
}
