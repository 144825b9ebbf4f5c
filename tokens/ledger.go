// Package tokens provides in-memory payment and ownership ledgers that satisfy
// the engine's collaborator interfaces.
package tokens

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/scionauction/core"
)

// Ledger is an in-memory fungible balance sheet.
type Ledger struct {
	mu       sync.RWMutex
	symbol   string
	balances map[core.Address]core.Amount
}

// NewLedger creates an empty ledger for the given currency symbol.
func NewLedger(symbol string) *Ledger {
	return &Ledger{
		symbol:   symbol,
		balances: make(map[core.Address]core.Amount),
	}
}

// Symbol returns the currency symbol.
func (l *Ledger) Symbol() string {
	return l.symbol
}

// BalanceOf returns the balance of addr, zero if unknown.
func (l *Ledger) BalanceOf(addr core.Address) core.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return decimal.Zero
}

// Credit adds amount to addr out of thin air. Used for faucets and seeding.
func (l *Ledger) Credit(addr core.Address, amount core.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("credit amount must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] = l.balanceLocked(addr).Add(amount)
	return nil
}

// Transfer moves amount from one address to another.
func (l *Ledger) Transfer(from, to core.Address, amount core.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("transfer amount must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	have := l.balanceLocked(from)
	if have.LessThan(amount) {
		return fmt.Errorf("%s balance of %s is %s, need %s: %w", l.symbol, from, have, amount, core.ErrInsufficientBalance)
	}
	l.balances[from] = have.Sub(amount)
	l.balances[to] = l.balanceLocked(to).Add(amount)
	return nil
}

func (l *Ledger) balanceLocked(addr core.Address) core.Amount {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return decimal.Zero
}
