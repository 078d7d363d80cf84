package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Yahiasherif002/stock-alerts-project/internal/storage"
)

// Show prints the latest price per symbol, or recent samples for one
// symbol when --symbol is given.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Symbol != "" {
		return a.showSymbol(ctx, store, opts)
	}
	return a.showOverview(ctx, store)
}

func (a *App) showOverview(ctx context.Context, store *storage.Store) error {
	latest, err := store.ListLatestPrices(ctx)
	if err != nil {
		return err
	}
	if len(latest) == 0 {
		fmt.Fprintln(os.Stdout, "no prices ingested yet")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tPrice\tObserved (UTC)\tSource")
	for _, sample := range latest {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\n",
			sample.Symbol,
			formatDecimal(sample.Price, 2),
			sample.ObservedAt.UTC().Format(time.RFC3339),
			sample.Source,
		)
	}
	writer.Flush()

	total, err := store.CountSamples(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\n%d samples stored\n", total)
	return nil
}

func (a *App) showSymbol(ctx context.Context, store *storage.Store, opts ShowOptions) error {
	samples, err := store.ListRecentSamples(ctx, opts.Symbol, opts.Limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintf(os.Stdout, "no samples found for %s\n", opts.Symbol)
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tPrice\tSource")
	for _, sample := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			sample.ObservedAt.UTC().Format(time.RFC3339),
			formatDecimal(sample.Price, 2),
			sample.Source,
		)
	}
	writer.Flush()
	return nil
}
