package storage

import (
	"time"

	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
)

// TriggerRecord is a persisted trigger emission plus its delivery status.
type TriggerRecord struct {
	Event     domain.TriggerEvent
	Delivered bool
	CreatedAt time.Time
}
