package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Symbol identifies one tracked stock. The universe is small, configured at
// startup, and never mutated by the engine.
type Symbol struct {
	Symbol    string
	Name      string
	Active    bool
	CreatedAt time.Time
}

// PriceSample is one observed price for a symbol. Written only by ingestion,
// immutable once stored.
type PriceSample struct {
	Symbol     string
	Price      decimal.Decimal
	ObservedAt time.Time
	Source     string
}

// PricesUpdated announces that an ingestion cycle has settled. Symbols lists
// the symbols whose latest-price projection was refreshed this cycle.
type PricesUpdated struct {
	Cycle    time.Time
	Symbols  []string
	Degraded bool
}
