package app

import (
	"context"
)

// Evaluate runs one evaluation cycle and delivers any fired triggers
// before returning.
func (a *App) Evaluate(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store)
	if err != nil {
		return err
	}

	result, err := svc.RunEvaluationOnce(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("evaluated", result.Evaluated).
		Int("fired", result.Fired).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("evaluation finished")
	return nil
}
