// Package ingest drives full-universe price refresh cycles through the
// provider gateway into the price store.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
)

// QuoteSource resolves the current price for one symbol.
type QuoteSource interface {
	Fetch(ctx context.Context, symbol string) (domain.PriceSample, error)
}

// Store is the slice of the repository the ingestor touches.
type Store interface {
	ListSymbols(ctx context.Context, activeOnly bool) ([]domain.Symbol, error)
	InsertPriceSample(ctx context.Context, sample domain.PriceSample) error
	UpsertLatestPrice(ctx context.Context, sample domain.PriceSample) error
}

// Publisher announces settled cycles.
type Publisher interface {
	PublishPrices(update domain.PricesUpdated)
}

// Options tune one ingestor.
type Options struct {
	// Workers bounds concurrent fetches within one cycle.
	Workers int
}

// CycleResult summarises one ingestion cycle.
type CycleResult struct {
	Cycle     time.Time
	Attempted int
	Updated   int
	Failed    int
	Deferred  int
	Degraded  bool
}

// Ingestor fetches every tracked symbol once per cycle. Symbol failures are
// isolated; the cycle event is published only after every fetch settled.
type Ingestor struct {
	opts   Options
	source QuoteSource
	store  Store
	pub    Publisher
	logger zerolog.Logger
}

// New constructs an Ingestor. pub may be nil when nobody listens.
func New(source QuoteSource, store Store, pub Publisher, opts Options, logger zerolog.Logger) *Ingestor {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Ingestor{
		opts:   opts,
		source: source,
		store:  store,
		pub:    pub,
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// RunCycle refreshes prices for the active symbol universe. It returns an
// error only when the universe itself cannot be read; per-symbol failures
// are logged, counted and never abort the cycle.
func (i *Ingestor) RunCycle(ctx context.Context, cycle time.Time) (CycleResult, error) {
	symbols, err := i.store.ListSymbols(ctx, true)
	if err != nil {
		return CycleResult{Cycle: cycle}, fmt.Errorf("list symbols: %w", err)
	}

	result := CycleResult{Cycle: cycle, Attempted: len(symbols)}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		updated []string
	)

	sem := make(chan struct{}, i.opts.Workers)
	for idx, sym := range symbols {
		if ctx.Err() != nil {
			result.Deferred = len(symbols) - idx
		} else {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				result.Deferred = len(symbols) - idx
			}
		}
		if result.Deferred > 0 {
			// Soft deadline hit: whatever has not started is deferred
			// to the next cycle.
			i.logger.Warn().
				Int("deferred", result.Deferred).
				Time("cycle", cycle).
				Msg("cycle deadline reached, deferring remaining symbols")
			break
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := i.refreshSymbol(ctx, symbol); err != nil {
				mu.Lock()
				result.Failed++
				mu.Unlock()
				i.logger.Warn().
					Str("symbol", symbol).
					Err(err).
					Msg("symbol refresh failed, keeping previous price")
				return
			}

			mu.Lock()
			updated = append(updated, symbol)
			mu.Unlock()
		}(sym.Symbol)
	}

	wg.Wait()

	sort.Strings(updated)
	result.Updated = len(updated)
	result.Degraded = result.Updated == 0

	if i.pub != nil {
		i.pub.PublishPrices(domain.PricesUpdated{
			Cycle:    cycle,
			Symbols:  updated,
			Degraded: result.Degraded,
		})
	}

	if result.Degraded {
		i.logger.Warn().
			Time("cycle", cycle).
			Int("attempted", result.Attempted).
			Int("failed", result.Failed).
			Int("deferred", result.Deferred).
			Msg("degraded cycle, no symbol updated")
	} else {
		i.logger.Info().
			Time("cycle", cycle).
			Int("updated", result.Updated).
			Int("failed", result.Failed).
			Int("deferred", result.Deferred).
			Msg("ingestion cycle settled")
	}

	return result, nil
}

func (i *Ingestor) refreshSymbol(ctx context.Context, symbol string) error {
	sample, err := i.source.Fetch(ctx, symbol)
	if err != nil {
		return err
	}
	if err := i.store.InsertPriceSample(ctx, sample); err != nil {
		return fmt.Errorf("store sample: %w", err)
	}
	if err := i.store.UpsertLatestPrice(ctx, sample); err != nil {
		return fmt.Errorf("refresh projection: %w", err)
	}
	return nil
}
