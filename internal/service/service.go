package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Yahiasherif002/stock-alerts-project/internal/config"
	"github.com/Yahiasherif002/stock-alerts-project/internal/dispatch"
	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
	"github.com/Yahiasherif002/stock-alerts-project/internal/evaluate"
	"github.com/Yahiasherif002/stock-alerts-project/internal/events"
	"github.com/Yahiasherif002/stock-alerts-project/internal/ingest"
	"github.com/Yahiasherif002/stock-alerts-project/internal/scheduler"
	"github.com/Yahiasherif002/stock-alerts-project/internal/storage"
)

// Service orchestrates ingestion, evaluation, and trigger dispatch.
type Service struct {
	ingestor   *ingest.Ingestor
	evaluator  *evaluate.Evaluator
	dispatcher *dispatch.Dispatcher
	bus        *events.Bus
	logger     zerolog.Logger

	ingestLoop   *scheduler.Loop
	evaluateLoop *scheduler.Loop

	locker  storage.AdvisoryLocker
	lockKey int64
}

// New constructs the engine service around already-wired collaborators.
func New(cfg *config.Config, repo storage.Repository, ingestor *ingest.Ingestor, evaluator *evaluate.Evaluator, dispatcher *dispatch.Dispatcher, bus *events.Bus, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := repo.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		ingestor:     ingestor,
		evaluator:    evaluator,
		dispatcher:   dispatcher,
		bus:          bus,
		logger:       logger.With().Str("component", "service").Logger(),
		ingestLoop:   scheduler.New(loopOptions("ingest", cfg.Ingest), logger),
		evaluateLoop: scheduler.New(loopOptions("evaluate", cfg.Evaluate), logger),
		locker:       locker,
		lockKey:      cfg.Database.AdvisoryLockKey,
	}
}

func loopOptions(name string, cfg config.LoopConfig) scheduler.Options {
	return scheduler.Options{
		Name:         name,
		Interval:     cfg.Interval,
		AlignToStart: cfg.AlignToInterval,
		StartupDelay: cfg.StartupDelay,
		CycleTimeout: cfg.CycleTimeout,
	}
}

// Run starts both loops plus the dispatch worker and blocks until ctx is
// cancelled. The advisory lock, when configured, is held for the whole
// process lifetime so two engines never share one database.
func (s *Service) Run(ctx context.Context) error {
	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if unlock != nil {
		defer unlock()
	}

	triggers := s.bus.SubscribeTriggers()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.dispatchWorker(ctx, triggers)
	}()

	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- s.ingestLoop.Run(ctx, s.ingestTick)
	}()
	go func() {
		defer wg.Done()
		errs <- s.evaluateLoop.Run(ctx, s.evaluateTick)
	}()

	err = <-errs
	cancel()
	wg.Wait()
	return err
}

// RunIngestionOnce executes a single ingestion cycle.
func (s *Service) RunIngestionOnce(ctx context.Context) (ingest.CycleResult, error) {
	return s.ingestor.RunCycle(ctx, time.Now().UTC())
}

// RunEvaluationOnce executes a single evaluation cycle, delivering any
// fired triggers before returning. Delivery failures are terminal for
// their episode but do not fail the cycle.
func (s *Service) RunEvaluationOnce(ctx context.Context) (evaluate.CycleResult, error) {
	result, err := s.evaluator.RunCycle(ctx, time.Now().UTC())
	if err != nil {
		return result, err
	}
	for _, event := range result.Emitted {
		if err := s.dispatcher.Dispatch(ctx, event); err != nil {
			s.logger.Error().
				Err(err).
				Str("episode_id", event.EpisodeID.String()).
				Int64("alert_id", event.AlertID).
				Msg("trigger dispatch failed")
		}
	}
	return result, nil
}

func (s *Service) ingestTick(ctx context.Context, cycle time.Time) error {
	_, err := s.ingestor.RunCycle(ctx, cycle)
	return err
}

func (s *Service) evaluateTick(ctx context.Context, cycle time.Time) error {
	result, err := s.evaluator.RunCycle(ctx, cycle)
	if err != nil {
		return err
	}
	for _, event := range result.Emitted {
		s.bus.PublishTrigger(event)
	}
	return nil
}

// dispatchWorker drains the trigger stream until ctx is cancelled.
func (s *Service) dispatchWorker(ctx context.Context, triggers <-chan domain.TriggerEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-triggers:
			if err := s.dispatcher.Dispatch(ctx, event); err != nil && ctx.Err() == nil {
				s.logger.Error().
					Err(err).
					Str("episode_id", event.EpisodeID.String()).
					Int64("alert_id", event.AlertID).
					Msg("trigger dispatch failed")
			}
		}
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("advisory lock %d held by another instance", s.lockKey)
	}
	return unlock, nil
}
