package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Triggers prints the most recent trigger events with delivery status.
func (a *App) Triggers(ctx context.Context, opts TriggersOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListRecentTriggers(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no triggers recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Fired (UTC)\tAlert\tSymbol\tPrice\tOwner\tDelivered\tEpisode")
	for _, rec := range records {
		delivered := "no"
		if rec.Delivered {
			delivered = "yes"
		}
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			rec.Event.FiredAt.UTC().Format(time.RFC3339),
			rec.Event.AlertID,
			rec.Event.Symbol,
			formatDecimal(rec.Event.Price, 2),
			rec.Event.Owner,
			delivered,
			rec.Event.EpisodeID,
		)
	}
	writer.Flush()
	return nil
}
