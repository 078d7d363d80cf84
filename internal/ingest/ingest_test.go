package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
	"github.com/Yahiasherif002/stock-alerts-project/internal/storage"
)

type fakeSource struct {
	mu     sync.Mutex
	calls  map[string]int
	quotes map[string]decimal.Decimal
	errs   map[string]error
	delay  time.Duration

	inFlight atomic.Int32
	peak     atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls:  make(map[string]int),
		quotes: make(map[string]decimal.Decimal),
		errs:   make(map[string]error),
	}
}

func (f *fakeSource) Fetch(ctx context.Context, symbol string) (domain.PriceSample, error) {
	cur := f.inFlight.Add(1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls[symbol]++
	err := f.errs[symbol]
	price, ok := f.quotes[symbol]
	f.mu.Unlock()

	if err != nil {
		return domain.PriceSample{}, err
	}
	if !ok {
		return domain.PriceSample{}, errors.New("no quote configured")
	}
	return domain.PriceSample{
		Symbol:     symbol,
		Price:      price,
		ObservedAt: time.Now().UTC(),
		Source:     "fake",
	}, nil
}

type capturePublisher struct {
	mu      sync.Mutex
	updates []domain.PricesUpdated
}

func (p *capturePublisher) PublishPrices(update domain.PricesUpdated) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update)
}

func (p *capturePublisher) last(t *testing.T) domain.PricesUpdated {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.updates) == 0 {
		t.Fatal("no cycle event published")
	}
	return p.updates[len(p.updates)-1]
}

func seedSymbols(t *testing.T, repo *storage.Memory, symbols ...domain.Symbol) {
	t.Helper()
	for _, sym := range symbols {
		if err := repo.UpsertSymbol(context.Background(), sym); err != nil {
			t.Fatalf("seed symbol %s: %v", sym.Symbol, err)
		}
	}
}

func TestRunCycleUpdatesActiveSymbols(t *testing.T) {
	repo := storage.NewMemory()
	seedSymbols(t, repo,
		domain.Symbol{Symbol: "AAPL", Active: true},
		domain.Symbol{Symbol: "MSFT", Active: true},
		domain.Symbol{Symbol: "DEAD", Active: false},
	)

	source := newFakeSource()
	source.quotes["AAPL"] = decimal.RequireFromString("190.25")
	source.quotes["MSFT"] = decimal.RequireFromString("415")

	pub := &capturePublisher{}
	ing := New(source, repo, pub, Options{Workers: 2}, zerolog.Nop())

	result, err := ing.RunCycle(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if result.Attempted != 2 || result.Updated != 2 || result.Failed != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if result.Degraded {
		t.Fatal("cycle with updates must not be degraded")
	}
	if source.calls["DEAD"] != 0 {
		t.Fatal("inactive symbol must not be fetched")
	}

	latest, err := repo.LatestPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("latest price missing: %v", err)
	}
	if latest.Price.Cmp(decimal.RequireFromString("190.25")) != 0 {
		t.Fatalf("projection holds wrong price: %s", latest.Price)
	}
	if latest.Source != "fake" {
		t.Fatalf("sample must carry its source, got %q", latest.Source)
	}

	count, _ := repo.CountSamples(context.Background())
	if count != 2 {
		t.Fatalf("expected 2 history rows, got %d", count)
	}

	update := pub.last(t)
	if len(update.Symbols) != 2 || update.Symbols[0] != "AAPL" || update.Symbols[1] != "MSFT" {
		t.Fatalf("cycle event lists wrong symbols: %v", update.Symbols)
	}
}

func TestRunCycleIsolatesSymbolFailure(t *testing.T) {
	repo := storage.NewMemory()
	seedSymbols(t, repo,
		domain.Symbol{Symbol: "AAPL", Active: true},
		domain.Symbol{Symbol: "MSFT", Active: true},
	)

	// AAPL already has a price from an earlier cycle.
	stale := domain.PriceSample{
		Symbol:     "AAPL",
		Price:      decimal.RequireFromString("188"),
		ObservedAt: time.Now().UTC().Add(-time.Hour),
		Source:     "fake",
	}
	if err := repo.UpsertLatestPrice(context.Background(), stale); err != nil {
		t.Fatalf("seed latest: %v", err)
	}

	source := newFakeSource()
	source.errs["AAPL"] = &fakeExhausted{}
	source.quotes["MSFT"] = decimal.RequireFromString("415")

	pub := &capturePublisher{}
	ing := New(source, repo, pub, Options{Workers: 2}, zerolog.Nop())

	result, err := ing.RunCycle(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if result.Updated != 1 || result.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if result.Degraded {
		t.Fatal("one successful symbol keeps the cycle non-degraded")
	}

	latest, err := repo.LatestPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("latest price missing: %v", err)
	}
	if latest.Price.Cmp(stale.Price) != 0 {
		t.Fatalf("failed symbol must keep its previous price, got %s", latest.Price)
	}

	update := pub.last(t)
	if len(update.Symbols) != 1 || update.Symbols[0] != "MSFT" {
		t.Fatalf("cycle event lists wrong symbols: %v", update.Symbols)
	}
}

func TestRunCycleReportsDegraded(t *testing.T) {
	repo := storage.NewMemory()
	seedSymbols(t, repo, domain.Symbol{Symbol: "AAPL", Active: true})

	source := newFakeSource()
	source.errs["AAPL"] = &fakeExhausted{}

	pub := &capturePublisher{}
	ing := New(source, repo, pub, Options{Workers: 2}, zerolog.Nop())

	result, err := ing.RunCycle(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("degraded cycle is not a cycle error: %v", err)
	}
	if !result.Degraded {
		t.Fatal("cycle with zero updates must be degraded")
	}

	update := pub.last(t)
	if !update.Degraded || len(update.Symbols) != 0 {
		t.Fatalf("cycle event must reflect degradation: %+v", update)
	}
}

func TestRunCycleBoundsConcurrency(t *testing.T) {
	repo := storage.NewMemory()
	symbols := []string{"A", "B", "C", "D", "E", "F"}
	for _, s := range symbols {
		seedSymbols(t, repo, domain.Symbol{Symbol: s, Active: true})
	}

	source := newFakeSource()
	source.delay = 10 * time.Millisecond
	for _, s := range symbols {
		source.quotes[s] = decimal.New(1, 0)
	}

	ing := New(source, repo, nil, Options{Workers: 2}, zerolog.Nop())
	if _, err := ing.RunCycle(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if peak := source.peak.Load(); peak > 2 {
		t.Fatalf("worker bound exceeded: %d concurrent fetches", peak)
	}
}

func TestRunCycleDefersOnExpiredContext(t *testing.T) {
	repo := storage.NewMemory()
	seedSymbols(t, repo,
		domain.Symbol{Symbol: "AAPL", Active: true},
		domain.Symbol{Symbol: "MSFT", Active: true},
	)

	source := newFakeSource()
	source.quotes["AAPL"] = decimal.New(1, 0)
	source.quotes["MSFT"] = decimal.New(1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ing := New(source, repo, nil, Options{Workers: 2}, zerolog.Nop())
	result, err := ing.RunCycle(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("expired deadline is not a cycle error: %v", err)
	}
	if result.Deferred != 2 || result.Updated != 0 {
		t.Fatalf("all symbols should be deferred: %+v", result)
	}
	if source.calls["AAPL"]+source.calls["MSFT"] != 0 {
		t.Fatal("no fetch should start after the deadline")
	}
}

type fakeExhausted struct{}

func (f *fakeExhausted) Error() string { return "all providers exhausted" }
