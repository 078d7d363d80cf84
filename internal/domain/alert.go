package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertKind selects the trigger semantics of an alert.
type AlertKind string

const (
	// KindThreshold fires the moment its condition becomes true.
	KindThreshold AlertKind = "THRESHOLD"
	// KindDuration fires once its condition has held continuously for the
	// alert's configured duration.
	KindDuration AlertKind = "DURATION"
)

// Condition is the comparison applied between a price and a threshold.
type Condition string

const (
	CondAbove     Condition = ">"
	CondBelow     Condition = "<"
	CondAtOrAbove Condition = ">="
	CondAtOrBelow Condition = "<="
)

// Holds reports whether price satisfies the condition against threshold.
// Comparison is exact decimal comparison, no epsilon.
func (c Condition) Holds(price, threshold decimal.Decimal) bool {
	cmp := price.Cmp(threshold)
	switch c {
	case CondAbove:
		return cmp > 0
	case CondBelow:
		return cmp < 0
	case CondAtOrAbove:
		return cmp >= 0
	case CondAtOrBelow:
		return cmp <= 0
	}
	return false
}

// Valid reports whether c is one of the four supported comparisons.
func (c Condition) Valid() bool {
	switch c {
	case CondAbove, CondBelow, CondAtOrAbove, CondAtOrBelow:
		return true
	}
	return false
}

// Alert is a user-defined rule. The engine only reads alerts; definitions
// are owned by an external management surface.
type Alert struct {
	ID        int64
	Owner     string
	Symbol    string
	Kind      AlertKind
	Condition Condition
	Threshold decimal.Decimal
	Duration  time.Duration // KindDuration only
	Active    bool
	CreatedAt time.Time
}

// AlertPhase is the derived position of an alert in its trigger lifecycle.
type AlertPhase string

const (
	PhaseIdle    AlertPhase = "IDLE"
	PhasePending AlertPhase = "PENDING"
	PhaseFired   AlertPhase = "FIRED"
)

// AlertState is the durable per-alert record advanced by the evaluator.
// PendingSince is set iff the alert's condition has been continuously true
// since that instant, as observed at evaluation granularity; it marks the
// start of the current episode for both alert kinds.
type AlertState struct {
	AlertID         int64
	PendingSince    *time.Time
	LastTriggeredAt *time.Time
	UpdatedAt       time.Time
}

// Phase derives the lifecycle phase from the persisted fields, so the state
// machine survives process restarts without extra bookkeeping.
func (s AlertState) Phase() AlertPhase {
	if s.PendingSince == nil {
		return PhaseIdle
	}
	if s.LastTriggeredAt != nil && !s.LastTriggeredAt.Before(*s.PendingSince) {
		return PhaseFired
	}
	return PhasePending
}
