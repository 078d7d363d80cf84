package app

import (
	"context"
	"errors"
)

// Refresh runs one ingestion cycle against the configured providers.
func (a *App) Refresh(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store)
	if err != nil {
		return err
	}

	result, err := svc.RunIngestionOnce(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("attempted", result.Attempted).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Int("deferred", result.Deferred).
		Msg("refresh finished")

	if result.Degraded && result.Attempted > 0 {
		return errors.New("degraded cycle: no symbol updated")
	}
	return nil
}
