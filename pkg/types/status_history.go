package types

import (
	"time"

	"github.com/adesolafarms/farmstore-backend/pkg/enums"
)

// StatusHistoryEntry records a single order status transition.
type StatusHistoryEntry struct {
	Status enums.OrderStatus `json:"status"`
	Note   string            `json:"note,omitempty"`
	Actor  string            `json:"actor,omitempty"`
	At     time.Time         `json:"at"`
}

// StatusHistory is the append-only transition log stored on an order.
type StatusHistory []StatusHistoryEntry
