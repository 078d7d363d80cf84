package app

import (
	"context"
	"errors"
	"time"
)

// Cleanup prunes old trigger events and, when requested, price samples.
// Alert state and the dispatched-episode ledger are never pruned here.
func (a *App) Cleanup(ctx context.Context, opts CleanupOptions) error {
	if opts.Days <= 0 {
		return errors.New("--days must be greater than zero")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	cutoff := time.Now().UTC().AddDate(0, 0, -opts.Days)

	triggers, err := store.DeleteTriggersBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	var samples int64
	if opts.Samples {
		samples, err = store.DeleteSamplesBefore(ctx, cutoff)
		if err != nil {
			return err
		}
	}

	a.Logger.Info().
		Time("cutoff", cutoff).
		Int64("triggers_removed", triggers).
		Int64("samples_removed", samples).
		Msg("cleanup finished")
	return nil
}
