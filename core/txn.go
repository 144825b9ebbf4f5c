package core

// txn collects undo steps and pending events for one engine operation.
// On failure the undo steps run in reverse and the events are dropped.
type txn struct {
	undo   []func()
	events []Event
}

func (t *txn) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *txn) emit(event Event) {
	t.events = append(t.events, event)
}

func (t *txn) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.events = nil
}

// transfer moves funds and registers the reverse transfer.
func (t *txn) transfer(funds PaymentInstrument, from, to Address, amount Amount) error {
	if err := funds.Transfer(from, to, amount); err != nil {
		return err
	}
	t.onRollback(func() {
		_ = funds.Transfer(to, from, amount)
	})
	return nil
}

func (t *txn) mint(tokens TokenRegistry, to Address, id uint64) error {
	if err := tokens.Mint(to, id); err != nil {
		return err
	}
	t.onRollback(func() {
		_ = tokens.Burn(id)
	})
	return nil
}

func (t *txn) burn(tokens TokenRegistry, owner Address, id uint64) error {
	if err := tokens.Burn(id); err != nil {
		return err
	}
	t.onRollback(func() {
		_ = tokens.Mint(owner, id)
	})
	return nil
}

func (t *txn) move(tokens TokenRegistry, from, to Address, id uint64) error {
	if err := tokens.Transfer(from, to, id); err != nil {
		return err
	}
	t.onRollback(func() {
		_ = tokens.Transfer(to, from, id)
	})
	return nil
}
