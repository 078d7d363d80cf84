package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
)

// Memory is an in-memory Repository. It backs tests and alert simulation,
// where spinning up postgres would be overkill.
type Memory struct {
	mu          sync.RWMutex
	symbols     map[string]domain.Symbol
	samples     map[string][]domain.PriceSample
	latest      map[string]domain.PriceSample
	alerts      map[int64]domain.Alert
	states      map[int64]domain.AlertState
	triggers    []TriggerRecord
	dispatched  map[uuid.UUID]time.Time
	nextAlertID int64
}

// NewMemory constructs an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		symbols:    make(map[string]domain.Symbol),
		samples:    make(map[string][]domain.PriceSample),
		latest:     make(map[string]domain.PriceSample),
		alerts:     make(map[int64]domain.Alert),
		states:     make(map[int64]domain.AlertState),
		dispatched: make(map[uuid.UUID]time.Time),
	}
}

// UpsertSymbol inserts or updates one tracked symbol.
func (m *Memory) UpsertSymbol(ctx context.Context, sym domain.Symbol) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.symbols[sym.Symbol]; ok {
		sym.CreatedAt = existing.CreatedAt
	} else if sym.CreatedAt.IsZero() {
		sym.CreatedAt = time.Now().UTC()
	}
	m.symbols[sym.Symbol] = sym
	return nil
}

// ListSymbols lists the symbol universe, optionally restricted to active rows.
func (m *Memory) ListSymbols(ctx context.Context, activeOnly bool) ([]domain.Symbol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := make([]domain.Symbol, 0, len(m.symbols))
	for _, sym := range m.symbols {
		if activeOnly && !sym.Active {
			continue
		}
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].Symbol < symbols[j].Symbol })
	return symbols, nil
}

// InsertPriceSample appends one observation, ignoring duplicates of the
// same (symbol, observed_at) pair.
func (m *Memory) InsertPriceSample(ctx context.Context, sample domain.PriceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.samples[sample.Symbol] {
		if existing.ObservedAt.Equal(sample.ObservedAt) {
			return nil
		}
	}
	m.samples[sample.Symbol] = append(m.samples[sample.Symbol], sample)
	return nil
}

// UpsertLatestPrice refreshes the latest-price projection for a symbol.
func (m *Memory) UpsertLatestPrice(ctx context.Context, sample domain.PriceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[sample.Symbol] = sample
	return nil
}

// LatestPrice returns the most recent price for symbol.
func (m *Memory) LatestPrice(ctx context.Context, symbol string) (domain.PriceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sample, ok := m.latest[symbol]
	if !ok {
		return domain.PriceSample{}, ErrNotFound
	}
	return sample, nil
}

// ListLatestPrices returns the latest-price projection for every symbol.
func (m *Memory) ListLatestPrices(ctx context.Context) ([]domain.PriceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	samples := make([]domain.PriceSample, 0, len(m.latest))
	for _, sample := range m.latest {
		samples = append(samples, sample)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Symbol < samples[j].Symbol })
	return samples, nil
}

// ListSamplesBetween lists stored observations for symbol within a window.
func (m *Memory) ListSamplesBetween(ctx context.Context, symbol string, from, to time.Time) ([]domain.PriceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.PriceSample, 0)
	for _, sample := range m.samples[symbol] {
		if sample.ObservedAt.Before(from) || !sample.ObservedAt.Before(to) {
			continue
		}
		out = append(out, sample)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

// ListRecentSamples lists the most recent observations for symbol, newest first.
func (m *Memory) ListRecentSamples(ctx context.Context, symbol string, limit int) ([]domain.PriceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.PriceSample, len(m.samples[symbol]))
	copy(out, m.samples[symbol])
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountSamples counts stored observations.
func (m *Memory) CountSamples(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, list := range m.samples {
		count += int64(len(list))
	}
	return count, nil
}

// DeleteSamplesBefore removes observations older than the cutoff.
func (m *Memory) DeleteSamplesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for symbol, list := range m.samples {
		kept := list[:0]
		for _, sample := range list {
			if sample.ObservedAt.Before(olderThan) {
				removed++
				continue
			}
			kept = append(kept, sample)
		}
		m.samples[symbol] = kept
	}
	return removed, nil
}

// CreateAlert persists a new alert definition and returns it with its id.
func (m *Memory) CreateAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextAlertID++
	alert.ID = m.nextAlertID
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	m.alerts[alert.ID] = alert
	return alert, nil
}

// ListAlerts lists alert definitions, optionally restricted to active ones.
func (m *Memory) ListAlerts(ctx context.Context, activeOnly bool) ([]domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := make([]domain.Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		if activeOnly && !alert.Active {
			continue
		}
		alerts = append(alerts, alert)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts, nil
}

// GetAlertState loads evaluation state for one alert.
func (m *Memory) GetAlertState(ctx context.Context, alertID int64) (domain.AlertState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[alertID]
	if !ok {
		return domain.AlertState{}, ErrNotFound
	}
	return cloneState(state), nil
}

// SaveAlertState upserts evaluation state for one alert.
func (m *Memory) SaveAlertState(ctx context.Context, state domain.AlertState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.AlertID] = cloneState(state)
	return nil
}

// InsertTriggerEvent appends one emission to the audit trail, ignoring
// replays of the same episode.
func (m *Memory) InsertTriggerEvent(ctx context.Context, event domain.TriggerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.triggers {
		if rec.Event.EpisodeID == event.EpisodeID {
			return nil
		}
	}
	m.triggers = append(m.triggers, TriggerRecord{Event: event, CreatedAt: time.Now().UTC()})
	return nil
}

// ListRecentTriggers lists the newest audit records first.
func (m *Memory) ListRecentTriggers(ctx context.Context, limit int) ([]TriggerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TriggerRecord, len(m.triggers))
	copy(out, m.triggers)
	sort.Slice(out, func(i, j int) bool { return out[i].Event.FiredAt.After(out[j].Event.FiredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkTriggerDelivered flips the delivered flag on one audit record.
func (m *Memory) MarkTriggerDelivered(ctx context.Context, episodeID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.triggers {
		if m.triggers[i].Event.EpisodeID == episodeID {
			m.triggers[i].Delivered = true
			return nil
		}
	}
	return ErrNotFound
}

// DeleteTriggersBefore removes audit records older than the cutoff.
func (m *Memory) DeleteTriggersBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.triggers[:0]
	var removed int64
	for _, rec := range m.triggers {
		if rec.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.triggers = kept
	return removed, nil
}

// WasDispatched reports whether a delivery was already attempted for episode.
func (m *Memory) WasDispatched(ctx context.Context, episodeID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.dispatched[episodeID]
	return ok, nil
}

// RecordDispatched marks an episode as handled. Recording twice is a no-op.
func (m *Memory) RecordDispatched(ctx context.Context, episodeID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.dispatched[episodeID]; !ok {
		m.dispatched[episodeID] = at
	}
	return nil
}

// cloneState copies the pointer fields so callers cannot alias stored state.
func cloneState(state domain.AlertState) domain.AlertState {
	if state.PendingSince != nil {
		t := *state.PendingSince
		state.PendingSince = &t
	}
	if state.LastTriggeredAt != nil {
		t := *state.LastTriggeredAt
		state.LastTriggeredAt = &t
	}
	return state
}

var _ Repository = (*Memory)(nil)
