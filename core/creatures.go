package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// CreatureLine names a creature collection sold in fixed-size batches.
type CreatureLine string

const (
	LineArchangel CreatureLine = "archangel"
	LineWatcher   CreatureLine = "watcher"
)

// CreatureBatchSize is the number of creatures each triggered batch offers.
const CreatureBatchSize = 7

// CreatureToken is a minted creature. IDs start at 0 within each line and
// batch b (counting from 1) covers IDs [(b-1)*CreatureBatchSize, b*CreatureBatchSize).
type CreatureToken struct {
	Line     CreatureLine `json:"line"`
	ID       uint64       `json:"id"`
	Owner    Address      `json:"owner"`
	Batch    uint64       `json:"batch"`
	Price    Amount       `json:"price"`
	MintedAt time.Time    `json:"minted_at"`
}

// BatchStatus reports the sale state of one line.
type BatchStatus struct {
	Line       CreatureLine `json:"line"`
	BatchIndex uint64       `json:"batch_index"`
	Price      Amount       `json:"price"`
	Minted     int          `json:"minted"`
	Left       int          `json:"left"`
	NextID     uint64       `json:"next_id"`
}

type batchSale struct {
	price  Amount
	index  uint64
	minted int
}

func (b *batchSale) left() int {
	if b.index == 0 {
		return 0
	}
	return CreatureBatchSize - b.minted
}

func (b *batchSale) nextID() uint64 {
	if b.index == 0 {
		return 0
	}
	return (b.index-1)*CreatureBatchSize + uint64(b.minted)
}

// CreatureSales runs the batch sale of every configured line.
type CreatureSales struct {
	registries map[CreatureLine]TokenRegistry
	sales      map[CreatureLine]*batchSale
	minted     map[CreatureLine]map[uint64]*CreatureToken
}

func newCreatureSales(registries map[CreatureLine]TokenRegistry) *CreatureSales {
	c := &CreatureSales{
		registries: make(map[CreatureLine]TokenRegistry, len(registries)),
		sales:      make(map[CreatureLine]*batchSale, len(registries)),
		minted:     make(map[CreatureLine]map[uint64]*CreatureToken, len(registries)),
	}
	for line, registry := range registries {
		if registry == nil {
			continue
		}
		c.registries[line] = registry
		c.sales[line] = &batchSale{}
		c.minted[line] = make(map[uint64]*CreatureToken)
	}
	return c
}

func (c *CreatureSales) sale(line CreatureLine) (*batchSale, error) {
	sale, ok := c.sales[line]
	if !ok {
		return nil, ErrCreatureLineNotFound
	}
	return sale, nil
}

func (c *CreatureSales) status(line CreatureLine, sale *batchSale) BatchStatus {
	return BatchStatus{
		Line:       line,
		BatchIndex: sale.index,
		Price:      sale.price,
		Minted:     sale.minted,
		Left:       sale.left(),
		NextID:     sale.nextID(),
	}
}

// TriggerBatchSale opens the next batch of line at price, paid in the reroll
// currency. The previous batch must be sold out.
func (e *Engine) TriggerBatchSale(ctx context.Context, caller Address, line CreatureLine, price Amount) (BatchStatus, error) {
	var status BatchStatus
	err := e.run(ctx, "trigger_batch_sale", func(t *txn, _ time.Time) error {
		if err := e.requireOperator(caller); err != nil {
			return err
		}
		sale, err := e.creatures.sale(line)
		if err != nil {
			return err
		}
		if !price.IsPositive() {
			return ErrBatchPriceNotPositive
		}
		if err := CheckPrecision(price); err != nil {
			return err
		}
		if sale.left() > 0 {
			return ErrBatchStillOnSale
		}

		prev := *sale
		sale.index++
		sale.minted = 0
		sale.price = price
		t.onRollback(func() { *sale = prev })

		status = e.creatures.status(line, sale)
		e.log.Info("creature batch opened",
			zap.String("line", string(line)),
			zap.Uint64("batch", sale.index),
			zap.String("price", price.String()))
		t.emit(Event{Type: EventBatchSaleTriggered, Actor: caller, Line: line, Batch: sale.index, Price: amountPtr(price)})
		return nil
	})
	if err != nil {
		return BatchStatus{}, err
	}
	return status, nil
}

// ClaimCreature sells the next creature of the open batch of line to caller.
// The batch price moves from caller to the treasury in the reroll currency.
func (e *Engine) ClaimCreature(ctx context.Context, caller Address, line CreatureLine) (CreatureToken, error) {
	var result CreatureToken
	err := e.run(ctx, "claim_creature", func(t *txn, now time.Time) error {
		sale, err := e.creatures.sale(line)
		if err != nil {
			return err
		}
		if sale.left() == 0 {
			return ErrNoCreatureOnSale
		}
		if err := t.transfer(e.deps.RerollFunds, caller, e.cfg.Treasury, sale.price); err != nil {
			return fmt.Errorf("%w: %v", ErrInsufficientCreatureFunds, err)
		}

		token := &CreatureToken{
			Line:     line,
			ID:       sale.nextID(),
			Owner:    caller,
			Batch:    sale.index,
			Price:    sale.price,
			MintedAt: now,
		}
		if err := t.mint(e.creatures.registries[line], caller, token.ID); err != nil {
			return fmt.Errorf("mint %s %d: %w", line, token.ID, err)
		}
		sale.minted++
		e.creatures.minted[line][token.ID] = token
		t.onRollback(func() {
			sale.minted--
			delete(e.creatures.minted[line], token.ID)
		})

		result = *token
		t.emit(Event{
			Type:    EventCreatureMinted,
			Actor:   caller,
			Line:    line,
			Batch:   token.Batch,
			TokenID: token.ID,
			Price:   amountPtr(token.Price),
		})
		return nil
	})
	if err != nil {
		return CreatureToken{}, err
	}
	return result, nil
}

// BatchSale reports the sale state of line.
func (e *Engine) BatchSale(line CreatureLine) (BatchStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sale, err := e.creatures.sale(line)
	if err != nil {
		return BatchStatus{}, err
	}
	return e.creatures.status(line, sale), nil
}

// IsOnSale reports whether id is offered by the open batch of line and not yet minted.
func (e *Engine) IsOnSale(line CreatureLine, id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	sale, err := e.creatures.sale(line)
	if err != nil || sale.left() == 0 {
		return false
	}
	return id >= sale.nextID() && id < sale.index*CreatureBatchSize
}

// Creature returns a minted creature.
func (e *Engine) Creature(line CreatureLine, id uint64) (CreatureToken, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.creatures.sale(line); err != nil {
		return CreatureToken{}, err
	}
	token, ok := e.creatures.minted[line][id]
	if !ok {
		return CreatureToken{}, ErrCreatureNotFound
	}
	return *token, nil
}

// CreatureLines lists the lines with a sale, in name order.
func (e *Engine) CreatureLines() []CreatureLine {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]CreatureLine, 0, len(e.creatures.sales))
	for line := range e.creatures.sales {
		out = append(out, line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
