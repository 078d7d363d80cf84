package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval with the cycle's nominal start time.
type TickFunc func(ctx context.Context, cycle time.Time) error

// Options tune loop behaviour.
type Options struct {
	// Name distinguishes loops in logs when several run side by side.
	Name         string
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// CycleTimeout bounds one tick. Zero leaves only the parent ctx in charge.
	CycleTimeout time.Duration
}

// Loop drives periodic execution of one job until cancelled. A slow tick
// never overlaps the next one; the loop simply realigns afterwards.
type Loop struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Loop instance.
func New(opts Options, logger zerolog.Logger) *Loop {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Name == "" {
		opts.Name = "loop"
	}
	return &Loop{
		opts: opts,
		logger: logger.With().
			Str("component", "scheduler").
			Str("loop", opts.Name).
			Logger(),
	}
}

// Run blocks, invoking the tick function at each interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context, tick TickFunc) error {
	if l.opts.StartupDelay > 0 {
		timer := time.NewTimer(l.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := l.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = l.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		l.logger.Debug().Time("next_cycle", next).Msg("waiting for next cycle")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		cycle := l.cycleStart(next)
		l.logger.Info().Time("cycle", cycle).Msg("executing scheduled cycle")

		if err := l.runTick(ctx, tick, cycle); err != nil {
			l.logger.Error().Err(err).Time("cycle", cycle).Msg("cycle execution failed")
		}

		next = next.Add(l.opts.Interval)
	}
}

// runTick applies the soft deadline so one hung cycle cannot stall the loop.
func (l *Loop) runTick(ctx context.Context, tick TickFunc, cycle time.Time) error {
	if l.opts.CycleTimeout <= 0 {
		return tick(ctx, cycle)
	}
	tickCtx, cancel := context.WithTimeout(ctx, l.opts.CycleTimeout)
	defer cancel()
	return tick(tickCtx, cycle)
}

func (l *Loop) nextTick(now time.Time) time.Time {
	if !l.opts.AlignToStart {
		return now.Add(l.opts.Interval)
	}
	cycle := now.Truncate(l.opts.Interval)
	if !cycle.After(now) {
		cycle = cycle.Add(l.opts.Interval)
	}
	return cycle
}

func (l *Loop) cycleStart(t time.Time) time.Time {
	if !l.opts.AlignToStart {
		return t
	}
	return t.Truncate(l.opts.Interval)
}
