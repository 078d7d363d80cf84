package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
)

// GatewayOptions tune failover behavior across the provider chain.
type GatewayOptions struct {
	// Cooldown is how long a provider sits out after a rate limit.
	Cooldown time.Duration
}

// ProviderStatus is a point-in-time view of one provider inside the Gateway.
type ProviderStatus struct {
	Name        string
	Requests    int64
	Failures    int64
	RateLimits  int64
	CoolingDown bool
	CoolUntil   time.Time
}

// Gateway fronts an ordered list of providers. Fetch walks the list top to
// bottom, skipping providers inside a rate-limit cooldown, and returns the
// first successful quote as a price sample stamped with its source.
type Gateway struct {
	opts   GatewayOptions
	logger zerolog.Logger

	mu        sync.Mutex
	providers []*gatewayEntry

	clock func() time.Time
}

type gatewayEntry struct {
	provider   Provider
	coolUntil  time.Time
	requests   int64
	failures   int64
	rateLimits int64
}

// NewGateway builds a Gateway over providers in failover order.
func NewGateway(providers []Provider, opts GatewayOptions, logger zerolog.Logger) *Gateway {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 5 * time.Minute
	}

	entries := make([]*gatewayEntry, 0, len(providers))
	for _, p := range providers {
		entries = append(entries, &gatewayEntry{provider: p})
	}

	return &Gateway{
		opts:      opts,
		logger:    logger.With().Str("component", "gateway").Logger(),
		providers: entries,
		clock:     time.Now,
	}
}

// Fetch resolves the current price of symbol through the failover chain.
// It fails with ExhaustedError once every provider has either failed or
// been skipped inside its cooldown window.
func (g *Gateway) Fetch(ctx context.Context, symbol string) (domain.PriceSample, error) {
	var (
		attempts int
		lastErr  error
	)

	for _, entry := range g.providers {
		if err := ctx.Err(); err != nil {
			return domain.PriceSample{}, err
		}
		if !g.admit(entry) {
			continue
		}

		attempts++
		quote, err := entry.provider.GetQuote(ctx, symbol)
		if err == nil {
			return domain.PriceSample{
				Symbol:     symbol,
				Price:      quote.Price,
				ObservedAt: quote.Timestamp,
				Source:     entry.provider.Name(),
			}, nil
		}

		lastErr = err
		if errors.Is(err, ErrRateLimited) {
			g.beginCooldown(entry)
			g.logger.Warn().
				Str("provider", entry.provider.Name()).
				Str("symbol", symbol).
				Dur("cooldown", g.opts.Cooldown).
				Msg("provider rate limited, cooling down")
			continue
		}

		g.recordFailure(entry)
		g.logger.Warn().
			Str("provider", entry.provider.Name()).
			Str("symbol", symbol).
			Err(err).
			Msg("provider failed, trying next")
	}

	return domain.PriceSample{}, &ExhaustedError{Symbol: symbol, Attempts: attempts, Last: lastErr}
}

// admit reports whether entry may serve a request now, counting the request
// when it may. An expired cooldown is cleared here so Snapshot stays truthful.
func (g *Gateway) admit(entry *gatewayEntry) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !entry.coolUntil.IsZero() {
		if g.clock().Before(entry.coolUntil) {
			return false
		}
		entry.coolUntil = time.Time{}
		g.logger.Info().
			Str("provider", entry.provider.Name()).
			Msg("cooldown expired, provider back in rotation")
	}

	entry.requests++
	return true
}

func (g *Gateway) beginCooldown(entry *gatewayEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry.failures++
	entry.rateLimits++
	entry.coolUntil = g.clock().Add(g.opts.Cooldown)
}

func (g *Gateway) recordFailure(entry *gatewayEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry.failures++
}

// Snapshot reports per-provider counters and cooldown state in failover order.
func (g *Gateway) Snapshot() []ProviderStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	statuses := make([]ProviderStatus, 0, len(g.providers))
	for _, entry := range g.providers {
		statuses = append(statuses, ProviderStatus{
			Name:        entry.provider.Name(),
			Requests:    entry.requests,
			Failures:    entry.failures,
			RateLimits:  entry.rateLimits,
			CoolingDown: !entry.coolUntil.IsZero() && now.Before(entry.coolUntil),
			CoolUntil:   entry.coolUntil,
		})
	}
	return statuses
}
