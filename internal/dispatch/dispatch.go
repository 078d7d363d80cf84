package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
	"github.com/Yahiasherif002/stock-alerts-project/internal/notifier"
)

// Store is the slice of persistence the dispatcher needs: the dedup
// ledger plus the delivered flag on the audit trail.
type Store interface {
	WasDispatched(ctx context.Context, episodeID uuid.UUID) (bool, error)
	RecordDispatched(ctx context.Context, episodeID uuid.UUID, at time.Time) error
	MarkTriggerDelivered(ctx context.Context, episodeID uuid.UUID) error
}

// Options tunes delivery retries.
type Options struct {
	// MaxAttempts bounds how many times a single event is handed to the
	// notifier before it is dropped.
	MaxAttempts int
	// InitialBackoff is the pause after the first failed attempt. It
	// doubles per retry up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Dispatcher delivers trigger events at most once per episode. An
// episode is recorded as handled whether or not delivery ultimately
// succeeded; retrying a notification forever would be worse than
// dropping it.
type Dispatcher struct {
	opts     Options
	store    Store
	notifier notifier.Notifier
	logger   zerolog.Logger

	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Dispatcher. Zero option fields fall back to defaults.
func New(store Store, n notifier.Notifier, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 2 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Dispatcher{
		opts:     opts,
		store:    store,
		notifier: n,
		logger:   logger.With().Str("component", "dispatch").Logger(),
		clock:    time.Now,
		sleep:    sleepCtx,
	}
}

// Dispatch hands one trigger event to the notifier. Episodes already
// present in the ledger are skipped, which makes replays after a crash
// or a re-published event harmless.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.TriggerEvent) error {
	done, err := d.store.WasDispatched(ctx, event.EpisodeID)
	if err != nil {
		return fmt.Errorf("check dispatch ledger: %w", err)
	}
	if done {
		d.logger.Debug().
			Str("episode_id", event.EpisodeID.String()).
			Int64("alert_id", event.AlertID).
			Msg("episode already dispatched, skipping")
		return nil
	}

	deliverErr := d.deliver(ctx, event)
	if deliverErr != nil && ctx.Err() != nil {
		// Shutdown interrupted the attempt. Leave the ledger alone so
		// the next run picks the episode up again.
		return deliverErr
	}

	if err := d.store.RecordDispatched(ctx, event.EpisodeID, d.clock().UTC()); err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}

	if deliverErr != nil {
		d.logger.Error().
			Err(deliverErr).
			Str("episode_id", event.EpisodeID.String()).
			Int64("alert_id", event.AlertID).
			Str("symbol", event.Symbol).
			Int("attempts", d.opts.MaxAttempts).
			Msg("delivery failed, dropping event")
		return deliverErr
	}

	if err := d.store.MarkTriggerDelivered(ctx, event.EpisodeID); err != nil {
		// The notification went out; a stale audit flag is not worth
		// failing the dispatch over.
		d.logger.Warn().
			Err(err).
			Str("episode_id", event.EpisodeID.String()).
			Msg("could not mark trigger delivered")
	}

	d.logger.Info().
		Str("episode_id", event.EpisodeID.String()).
		Int64("alert_id", event.AlertID).
		Str("symbol", event.Symbol).
		Msg("trigger delivered")
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, event domain.TriggerEvent) error {
	backoff := d.opts.InitialBackoff
	var last error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		last = d.notifier.Send(ctx, event)
		if last == nil {
			return nil
		}
		if attempt == d.opts.MaxAttempts {
			break
		}
		d.logger.Warn().
			Err(last).
			Str("episode_id", event.EpisodeID.String()).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("delivery attempt failed, retrying")
		if err := d.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
		if backoff > d.opts.MaxBackoff {
			backoff = d.opts.MaxBackoff
		}
	}
	return last
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
