// Package evaluate advances per-alert state machines against the
// latest-price projection and emits trigger events for newly satisfied
// conditions.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
	"github.com/Yahiasherif002/stock-alerts-project/internal/storage"
)

// Store is the slice of the repository the evaluator touches.
type Store interface {
	ListAlerts(ctx context.Context, activeOnly bool) ([]domain.Alert, error)
	ListLatestPrices(ctx context.Context) ([]domain.PriceSample, error)
	GetAlertState(ctx context.Context, alertID int64) (domain.AlertState, error)
	SaveAlertState(ctx context.Context, state domain.AlertState) error
	InsertTriggerEvent(ctx context.Context, event domain.TriggerEvent) error
}

// Options tune one evaluator.
type Options struct {
	// Workers bounds concurrent alert evaluations within one cycle.
	Workers int
}

// CycleResult summarises one evaluation cycle.
type CycleResult struct {
	Cycle     time.Time
	Evaluated int
	Skipped   int
	Fired     int
	Failed    int
	Deferred  int
	Emitted   []domain.TriggerEvent
}

// Evaluator runs the alert state machines. Each alert is advanced under a
// per-alert lock so two evaluations of the same alert never overlap; alert
// failures are isolated from the rest of the cycle.
type Evaluator struct {
	opts   Options
	store  Store
	logger zerolog.Logger
	keys   keyedMutex
	clock  func() time.Time
}

// New constructs an Evaluator.
func New(store Store, opts Options, logger zerolog.Logger) *Evaluator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Evaluator{
		opts:   opts,
		store:  store,
		logger: logger.With().Str("component", "evaluate").Logger(),
		clock:  time.Now,
	}
}

// RunCycle evaluates every active alert against the latest-price
// projection. It returns an error only when alerts or prices cannot be
// read; per-alert failures are logged, counted and never abort the cycle.
func (e *Evaluator) RunCycle(ctx context.Context, cycle time.Time) (CycleResult, error) {
	alerts, err := e.store.ListAlerts(ctx, true)
	if err != nil {
		return CycleResult{Cycle: cycle}, fmt.Errorf("list alerts: %w", err)
	}

	latest, err := e.store.ListLatestPrices(ctx)
	if err != nil {
		return CycleResult{Cycle: cycle}, fmt.Errorf("list latest prices: %w", err)
	}
	prices := make(map[string]domain.PriceSample, len(latest))
	for _, sample := range latest {
		prices[sample.Symbol] = sample
	}

	result := CycleResult{Cycle: cycle}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	sem := make(chan struct{}, e.opts.Workers)
	for idx, alert := range alerts {
		deferred := false
		if ctx.Err() != nil {
			deferred = true
		} else {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				deferred = true
			}
		}
		if deferred {
			result.Deferred = len(alerts) - idx
			e.logger.Warn().
				Int("deferred", result.Deferred).
				Time("cycle", cycle).
				Msg("cycle deadline reached, deferring remaining alerts")
			break
		}

		wg.Add(1)
		go func(alert domain.Alert) {
			defer wg.Done()
			defer func() { <-sem }()

			price, ok := prices[alert.Symbol]
			if !ok {
				// No price yet for this symbol. Skip without touching
				// state; a missing price is not a false condition.
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				e.logger.Debug().
					Int64("alert_id", alert.ID).
					Str("symbol", alert.Symbol).
					Msg("no price for symbol, alert skipped")
				return
			}

			event, err := e.evaluateOne(ctx, alert, price)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				e.logger.Error().
					Int64("alert_id", alert.ID).
					Str("symbol", alert.Symbol).
					Err(err).
					Msg("alert evaluation failed")
				return
			}

			result.Evaluated++
			if event != nil {
				result.Fired++
				result.Emitted = append(result.Emitted, *event)
			}
		}(alert)
	}

	wg.Wait()

	e.logger.Info().
		Time("cycle", cycle).
		Int("evaluated", result.Evaluated).
		Int("skipped", result.Skipped).
		Int("fired", result.Fired).
		Int("failed", result.Failed).
		Int("deferred", result.Deferred).
		Msg("evaluation cycle settled")

	return result, nil
}

// evaluateOne advances a single alert under its per-alert lock and
// persists the outcome. State is written before the audit record so a
// crash replays as the same episode instead of a fresh one.
func (e *Evaluator) evaluateOne(ctx context.Context, alert domain.Alert, price domain.PriceSample) (*domain.TriggerEvent, error) {
	unlock := e.keys.lock(alert.ID)
	defer unlock()

	state, err := e.store.GetAlertState(ctx, alert.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load state: %w", err)
		}
		state = domain.AlertState{AlertID: alert.ID}
	}

	next, event, err := advance(alert, state, price, e.clock().UTC())
	if err != nil {
		return nil, err
	}

	if !statesEqual(state, next) {
		if err := e.store.SaveAlertState(ctx, next); err != nil {
			return nil, fmt.Errorf("save state: %w", err)
		}
	}

	if event != nil {
		if err := e.store.InsertTriggerEvent(ctx, *event); err != nil {
			return nil, fmt.Errorf("record trigger: %w", err)
		}
		e.logger.Info().
			Int64("alert_id", alert.ID).
			Str("symbol", alert.Symbol).
			Str("episode_id", event.EpisodeID.String()).
			Str("price", event.Price.String()).
			Msg("alert fired")
	}

	return event, nil
}

// advance is the pure state machine. It returns the successor state and,
// when a condition episode newly fires, the event to emit.
func advance(alert domain.Alert, state domain.AlertState, price domain.PriceSample, now time.Time) (domain.AlertState, *domain.TriggerEvent, error) {
	if !alert.Condition.Valid() {
		return state, nil, fmt.Errorf("unknown condition %q", alert.Condition)
	}

	holds := alert.Condition.Holds(price.Price, alert.Threshold)

	if !holds {
		// Any phase re-arms on a false observation. Duration credit is
		// discarded entirely; a later episode starts from zero.
		if state.PendingSince != nil {
			state.PendingSince = nil
			state.UpdatedAt = now
		}
		return state, nil, nil
	}

	switch alert.Kind {
	case domain.KindThreshold:
		if state.Phase() == domain.PhaseFired {
			return state, nil, nil
		}
		state.PendingSince = &now
		state.LastTriggeredAt = &now
		state.UpdatedAt = now
		event := newTrigger(alert, price, *state.PendingSince, now)
		return state, &event, nil

	case domain.KindDuration:
		if alert.Duration <= 0 {
			return state, nil, fmt.Errorf("duration alert %d has non-positive duration", alert.ID)
		}
		switch state.Phase() {
		case domain.PhaseIdle:
			state.PendingSince = &now
			state.UpdatedAt = now
			return state, nil, nil
		case domain.PhasePending:
			if now.Sub(*state.PendingSince) < alert.Duration {
				return state, nil, nil
			}
			state.LastTriggeredAt = &now
			state.UpdatedAt = now
			event := newTrigger(alert, price, *state.PendingSince, now)
			return state, &event, nil
		default:
			return state, nil, nil
		}

	default:
		return state, nil, fmt.Errorf("unknown alert kind %q", alert.Kind)
	}
}

func newTrigger(alert domain.Alert, price domain.PriceSample, episodeStart, firedAt time.Time) domain.TriggerEvent {
	return domain.TriggerEvent{
		EpisodeID: domain.EpisodeID(alert.ID, episodeStart),
		AlertID:   alert.ID,
		Owner:     alert.Owner,
		Symbol:    alert.Symbol,
		Price:     price.Price,
		FiredAt:   firedAt,
	}
}

func statesEqual(a, b domain.AlertState) bool {
	return timePtrEqual(a.PendingSince, b.PendingSince) &&
		timePtrEqual(a.LastTriggeredAt, b.LastTriggeredAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// keyedMutex hands out one mutex per alert id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (k *keyedMutex) lock(id int64) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*sync.Mutex)
	}
	lock, ok := k.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[id] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
