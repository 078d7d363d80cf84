package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
)

// Seed applies the schema and loads the configured symbol universe.
// When an owner is given it also creates a small set of sample alerts.
func (a *App) Seed(ctx context.Context, opts SeedOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	for _, sym := range a.Config.Symbols {
		symbol := domain.Symbol{Symbol: sym.Symbol, Name: sym.Name, Active: true}
		if err := store.UpsertSymbol(ctx, symbol); err != nil {
			return fmt.Errorf("upsert symbol %s: %w", sym.Symbol, err)
		}
	}
	a.Logger.Info().Int("symbols", len(a.Config.Symbols)).Msg("symbol universe seeded")

	if opts.AlertsOwner == "" {
		return nil
	}

	for _, alert := range sampleAlerts(opts.AlertsOwner) {
		created, err := store.CreateAlert(ctx, alert)
		if err != nil {
			return fmt.Errorf("create alert for %s: %w", alert.Symbol, err)
		}
		a.Logger.Info().
			Int64("alert_id", created.ID).
			Str("symbol", created.Symbol).
			Str("kind", string(created.Kind)).
			Msg("sample alert created")
	}
	return nil
}

func sampleAlerts(owner string) []domain.Alert {
	return []domain.Alert{
		{
			Owner:     owner,
			Symbol:    "AAPL",
			Kind:      domain.KindThreshold,
			Condition: domain.CondAbove,
			Threshold: decimal.RequireFromString("200.00"),
			Active:    true,
		},
		{
			Owner:     owner,
			Symbol:    "TSLA",
			Kind:      domain.KindThreshold,
			Condition: domain.CondBelow,
			Threshold: decimal.RequireFromString("150.00"),
			Active:    true,
		},
		{
			Owner:     owner,
			Symbol:    "GOOGL",
			Kind:      domain.KindDuration,
			Condition: domain.CondAbove,
			Threshold: decimal.RequireFromString("180.00"),
			Duration:  30 * time.Minute,
			Active:    true,
		},
	}
}
