package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// fakeFunds is a minimal PaymentInstrument for engine tests.
type fakeFunds struct {
	balances map[Address]Amount
	failTo   Address // transfers to this address fail when set
}

func newFakeFunds() *fakeFunds {
	return &fakeFunds{balances: make(map[Address]Amount)}
}

func (f *fakeFunds) BalanceOf(addr Address) Amount {
	return f.balances[addr]
}

func (f *fakeFunds) Transfer(from, to Address, amount Amount) error {
	if f.failTo != "" && to == f.failTo {
		return fmt.Errorf("transfer to %s refused", to)
	}
	if f.balances[from].LessThan(amount) {
		return ErrInsufficientBalance
	}
	f.balances[from] = f.balances[from].Sub(amount)
	f.balances[to] = f.balances[to].Add(amount)
	return nil
}

// fakeRegistry is a minimal TokenRegistry for engine tests.
type fakeRegistry struct {
	owners        map[uint64]Address
	failMints     int // number of successful mints allowed before minting fails; <0 never fails
	failTransfers bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{owners: make(map[uint64]Address), failMints: -1}
}

func (r *fakeRegistry) OwnerOf(id uint64) (Address, error) {
	owner, ok := r.owners[id]
	if !ok {
		return "", fmt.Errorf("token %d does not exist", id)
	}
	return owner, nil
}

func (r *fakeRegistry) Mint(to Address, id uint64) error {
	if r.failMints == 0 {
		return fmt.Errorf("mint refused")
	}
	if r.failMints > 0 {
		r.failMints--
	}
	if _, ok := r.owners[id]; ok {
		return fmt.Errorf("token %d exists", id)
	}
	r.owners[id] = to
	return nil
}

func (r *fakeRegistry) Burn(id uint64) error {
	if _, ok := r.owners[id]; !ok {
		return fmt.Errorf("token %d does not exist", id)
	}
	delete(r.owners, id)
	return nil
}

func (r *fakeRegistry) Transfer(from, to Address, id uint64) error {
	if r.failTransfers {
		return fmt.Errorf("transfer refused")
	}
	if r.owners[id] != from {
		return fmt.Errorf("token %d not owned by %s", id, from)
	}
	r.owners[id] = to
	return nil
}

func (r *fakeRegistry) count(owner Address) int {
	n := 0
	for _, o := range r.owners {
		if o == owner {
			n++
		}
	}
	return n
}

// mockRandomSource returns a fixed sequence of values, cycling when exhausted.
type mockRandomSource struct {
	sequence []uint64
	index    int
	calls    []uint64 // ranges requested
}

func (m *mockRandomSource) Draw(_ context.Context, _ Address, n uint64, _ uint64) (uint64, error) {
	m.calls = append(m.calls, n)
	if len(m.sequence) == 0 {
		return 0, nil
	}
	v := m.sequence[m.index%len(m.sequence)]
	m.index++
	return v % n, nil
}

// recordingSink keeps every published event.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) ofType(typ EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// testClock is a settable clock.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine      *Engine
	funds       *fakeFunds
	rerollFunds *fakeFunds
	passes      *fakeRegistry
	scions      *fakeRegistry
	archangels  *fakeRegistry
	watchers    *fakeRegistry
	random      RandomSource
	clock       *testClock
	sink        *recordingSink
	cfg         Config
}

const (
	operator = Address("operator")
	alice    = Address("alice")
	bob      = Address("bob")
)

func amt(s string) Amount {
	return decimal.RequireFromString(s)
}

func newTestEnv(t *testing.T, random RandomSource, mutate ...func(*Config)) *testEnv {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	if random == nil {
		src, err := NewInsecureRandomSource([]byte("test-seed"))
		if err != nil {
			t.Fatalf("random source: %v", err)
		}
		random = src
	}
	env := &testEnv{
		funds:       newFakeFunds(),
		rerollFunds: newFakeFunds(),
		passes:      newFakeRegistry(),
		scions:      newFakeRegistry(),
		archangels:  newFakeRegistry(),
		watchers:    newFakeRegistry(),
		random:      random,
		clock:       &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		sink:        &recordingSink{},
		cfg:         cfg,
	}
	engine, err := NewEngine(cfg, Dependencies{
		Funds:       env.funds,
		RerollFunds: env.rerollFunds,
		Passes:      env.passes,
		Scions:      env.scions,
		Random:      env.random,
		Creatures: map[CreatureLine]TokenRegistry{
			LineArchangel: env.archangels,
			LineWatcher:   env.watchers,
		},
	}, WithClock(env.clock.Now), WithEventSink(env.sink))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	env.engine = engine
	return env
}

func (env *testEnv) fund(addr Address, amount string) {
	env.funds.balances[addr] = env.funds.balances[addr].Add(amt(amount))
}

func (env *testEnv) startAuction(t *testing.T) {
	t.Helper()
	if err := env.engine.StartAuction(context.Background(), operator, 72*time.Hour, time.Time{}); err != nil {
		t.Fatalf("start auction: %v", err)
	}
}

func (env *testEnv) finishAuction(t *testing.T) {
	t.Helper()
	if err := env.engine.FinishAuction(context.Background(), operator); err != nil {
		t.Fatalf("finish auction: %v", err)
	}
}

// referenceBands returns the six class bands as multiples of the 1-unit minimum:
// 2-10, 10-20, 20-30, 30-40, 40-50, 50-60.
func referenceBands() []ClassBand {
	bands, _ := NewClassBands(
		[]Tier{TierBronze, TierSilver, TierGold, TierPlatinum, TierRuby, TierOnyx},
		[]Amount{amt("2"), amt("10"), amt("20"), amt("30"), amt("40"), amt("50")},
		[]Amount{amt("10"), amt("20"), amt("30"), amt("40"), amt("50"), amt("60")},
	)
	return bands
}

// referenceWeightBands returns the reference rarity limits per tier.
func referenceWeightBands() []TierWeightBand {
	bands, _ := NewTierWeightBands(
		[]Tier{TierBronze, TierSilver, TierGold, TierPlatinum, TierRuby, TierOnyx},
		[]uint64{1, 101, 151, 171, 187, 197},
		[]uint64{100, 150, 170, 186, 196, 200},
	)
	return bands
}

// seedCatalog installs categories 0..categories-1, each with one asset at every
// weight listed.
func (env *testEnv) seedCatalog(t *testing.T, categories int, weights []uint64) {
	t.Helper()
	for c := 0; c < categories; c++ {
		ids := make([]uint64, len(weights))
		names := make([]string, len(weights))
		for i := range weights {
			ids[i] = uint64(c*1000 + i)
			names[i] = fmt.Sprintf("asset-%d-%d", c, i)
		}
		if _, err := env.engine.SetCategory(context.Background(), operator, CategoryID(c), ids, weights, names); err != nil {
			t.Fatalf("set category %d: %v", c, err)
		}
	}
}
