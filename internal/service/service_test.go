package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Yahiasherif002/stock-alerts-project/internal/config"
	"github.com/Yahiasherif002/stock-alerts-project/internal/dispatch"
	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
	"github.com/Yahiasherif002/stock-alerts-project/internal/evaluate"
	"github.com/Yahiasherif002/stock-alerts-project/internal/events"
	"github.com/Yahiasherif002/stock-alerts-project/internal/ingest"
	"github.com/Yahiasherif002/stock-alerts-project/internal/notifier"
	"github.com/Yahiasherif002/stock-alerts-project/internal/storage"
)

type staticSource struct {
	prices map[string]decimal.Decimal
}

func (s *staticSource) Fetch(ctx context.Context, symbol string) (domain.PriceSample, error) {
	price, ok := s.prices[symbol]
	if !ok {
		return domain.PriceSample{}, errors.New("no quote")
	}
	return domain.PriceSample{
		Symbol:     symbol,
		Price:      price,
		ObservedAt: time.Now().UTC(),
		Source:     "static",
	}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testConfig() *config.Config {
	return &config.Config{
		Ingest:   config.LoopConfig{Interval: time.Hour, Workers: 2},
		Evaluate: config.LoopConfig{Interval: time.Hour, Workers: 2},
	}
}

type testRig struct {
	repo *storage.Memory
	out  *bytes.Buffer
	svc  *Service
}

func newTestRig(t *testing.T, prices map[string]decimal.Decimal) *testRig {
	t.Helper()
	repo := storage.NewMemory()
	ctx := context.Background()
	for symbol := range prices {
		if err := repo.UpsertSymbol(ctx, domain.Symbol{Symbol: symbol, Name: symbol, Active: true}); err != nil {
			t.Fatalf("seed symbol: %v", err)
		}
	}

	logger := testLogger()
	bus := events.NewBus(0, logger)
	var out bytes.Buffer

	ingestor := ingest.New(&staticSource{prices: prices}, repo, bus, ingest.Options{Workers: 2}, logger)
	evaluator := evaluate.New(repo, evaluate.Options{Workers: 2}, logger)
	dispatcher := dispatch.New(repo, notifier.NewConsoleNotifier(&out, logger), dispatch.Options{}, logger)

	svc := New(testConfig(), repo, ingestor, evaluator, dispatcher, bus, logger)
	return &testRig{repo: repo, out: &out, svc: svc}
}

func (r *testRig) createAlert(t *testing.T, alert domain.Alert) domain.Alert {
	t.Helper()
	created, err := r.repo.CreateAlert(context.Background(), alert)
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	return created
}

func TestIngestThenEvaluateDeliversTrigger(t *testing.T) {
	rig := newTestRig(t, map[string]decimal.Decimal{
		"AAPL": decimal.RequireFromString("205.00"),
	})
	rig.createAlert(t, domain.Alert{
		Owner:     "ops@example.com",
		Symbol:    "AAPL",
		Kind:      domain.KindThreshold,
		Condition: domain.CondAbove,
		Threshold: decimal.RequireFromString("200"),
		Active:    true,
	})
	ctx := context.Background()

	ingested, err := rig.svc.RunIngestionOnce(ctx)
	if err != nil {
		t.Fatalf("ingestion: %v", err)
	}
	if ingested.Updated != 1 {
		t.Fatalf("updated = %d, want 1", ingested.Updated)
	}

	evaluated, err := rig.svc.RunEvaluationOnce(ctx)
	if err != nil {
		t.Fatalf("evaluation: %v", err)
	}
	if evaluated.Fired != 1 {
		t.Fatalf("fired = %d, want 1", evaluated.Fired)
	}
	if len(evaluated.Emitted) != 1 {
		t.Fatalf("emitted = %d, want 1", len(evaluated.Emitted))
	}

	if !strings.Contains(rig.out.String(), "AAPL") {
		t.Fatalf("notification output missing symbol: %q", rig.out.String())
	}

	episode := evaluated.Emitted[0].EpisodeID
	done, err := rig.repo.WasDispatched(ctx, episode)
	if err != nil || !done {
		t.Fatalf("episode should be in the dispatch ledger, done=%v err=%v", done, err)
	}
	records, err := rig.repo.ListRecentTriggers(ctx, 10)
	if err != nil || len(records) != 1 {
		t.Fatalf("trigger records = %d err=%v, want 1", len(records), err)
	}
	if !records[0].Delivered {
		t.Fatal("trigger record should be marked delivered")
	}
}

func TestEvaluationDoesNotReFireHeldCondition(t *testing.T) {
	rig := newTestRig(t, map[string]decimal.Decimal{
		"TSLA": decimal.RequireFromString("140.00"),
	})
	rig.createAlert(t, domain.Alert{
		Owner:     "ops@example.com",
		Symbol:    "TSLA",
		Kind:      domain.KindThreshold,
		Condition: domain.CondBelow,
		Threshold: decimal.RequireFromString("150"),
		Active:    true,
	})
	ctx := context.Background()

	if _, err := rig.svc.RunIngestionOnce(ctx); err != nil {
		t.Fatalf("ingestion: %v", err)
	}
	first, err := rig.svc.RunEvaluationOnce(ctx)
	if err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	if first.Fired != 1 {
		t.Fatalf("first fired = %d, want 1", first.Fired)
	}

	second, err := rig.svc.RunEvaluationOnce(ctx)
	if err != nil {
		t.Fatalf("second evaluation: %v", err)
	}
	if second.Fired != 0 {
		t.Fatalf("second fired = %d, want 0 while condition holds", second.Fired)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	rig := newTestRig(t, map[string]decimal.Decimal{
		"MSFT": decimal.RequireFromString("410.00"),
	})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- rig.svc.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
