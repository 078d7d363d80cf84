// Package provider hosts the upstream quote sources and the Gateway that
// fronts them with ordered failover and rate-limit cooldowns.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the normalized answer from one upstream source.
type Quote struct {
	Price     decimal.Decimal
	Timestamp time.Time
}

// Provider retrieves the current quote for a symbol from one upstream API.
type Provider interface {
	Name() string
	GetQuote(ctx context.Context, symbol string) (Quote, error)
}

// Provider failure taxonomy. RateLimited is the only class the Gateway
// treats specially (cooldown); everything else is transient and simply
// fails over to the next provider.
var (
	ErrTimeout     = errors.New("provider timeout")
	ErrRateLimited = errors.New("provider rate limited")
	ErrMalformed   = errors.New("provider returned malformed data")
)

// ExhaustedError reports that a fetch ran out of providers: every configured
// source either failed or was inside its cooldown window. Last carries the
// final underlying failure, nil when all providers were skipped cold.
type ExhaustedError struct {
	Symbol   string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("all providers exhausted for %s: every provider cooling down", e.Symbol)
	}
	return fmt.Sprintf("all providers exhausted for %s after %d attempts: %v", e.Symbol, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// classifyTransport maps HTTP transport failures onto the provider taxonomy.
func classifyTransport(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", name, ErrTimeout, err)
	}
	return fmt.Errorf("%s: request failed: %w", name, err)
}
