// Package events is the in-process surface other components subscribe to:
// one message per completed ingestion cycle, plus the trigger stream the
// dispatcher consumes.
package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
)

// Bus fans engine events out to subscribers. Publishing never blocks: a
// subscriber that falls behind its buffer loses events, which is logged.
type Bus struct {
	logger zerolog.Logger
	buffer int

	mu          sync.RWMutex
	priceSubs   []chan domain.PricesUpdated
	triggerSubs []chan domain.TriggerEvent
}

// NewBus constructs a Bus whose subscriber channels hold buffer events each.
func NewBus(buffer int, logger zerolog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		logger: logger.With().Str("component", "events").Logger(),
		buffer: buffer,
	}
}

// SubscribePrices returns a channel receiving one message per completed
// ingestion cycle.
func (b *Bus) SubscribePrices() <-chan domain.PricesUpdated {
	ch := make(chan domain.PricesUpdated, b.buffer)
	b.mu.Lock()
	b.priceSubs = append(b.priceSubs, ch)
	b.mu.Unlock()
	return ch
}

// SubscribeTriggers returns a channel receiving every published trigger event.
func (b *Bus) SubscribeTriggers() <-chan domain.TriggerEvent {
	ch := make(chan domain.TriggerEvent, b.buffer)
	b.mu.Lock()
	b.triggerSubs = append(b.triggerSubs, ch)
	b.mu.Unlock()
	return ch
}

// PublishPrices announces a settled ingestion cycle.
func (b *Bus) PublishPrices(update domain.PricesUpdated) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.priceSubs {
		select {
		case ch <- update:
		default:
			b.logger.Warn().
				Time("cycle", update.Cycle).
				Msg("price subscriber lagging, update dropped")
		}
	}
}

// PublishTrigger announces one trigger emission. A drop here means a
// subscriber missed a notification, so it logs at error level.
func (b *Bus) PublishTrigger(event domain.TriggerEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.triggerSubs {
		select {
		case ch <- event:
		default:
			b.logger.Error().
				Str("episode_id", event.EpisodeID.String()).
				Int64("alert_id", event.AlertID).
				Msg("trigger subscriber lagging, event dropped")
		}
	}
}
