package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// episodeNamespace scopes episode UUIDs to this engine.
var episodeNamespace = uuid.MustParse("9a1c2f6e-4b83-5d90-a7e1-3c58d2b4f017")

// EpisodeID derives the identifier of one condition episode. It is a
// deterministic function of the alert and the episode start, so re-emitting
// the same episode after a crash yields the same ID and the dispatcher can
// detect the redelivery.
func EpisodeID(alertID int64, start time.Time) uuid.UUID {
	seed := fmt.Sprintf("%d|%s", alertID, start.UTC().Format(time.RFC3339Nano))
	return uuid.NewSHA1(episodeNamespace, []byte(seed))
}

// TriggerEvent records one alert firing. Immutable, produced exactly once
// per condition episode. Owner is carried so delivery does not need an
// extra lookup; it is not part of the event identity.
type TriggerEvent struct {
	EpisodeID uuid.UUID
	AlertID   int64
	Owner     string
	Symbol    string
	Price     decimal.Decimal
	FiredAt   time.Time
}
