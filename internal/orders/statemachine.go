package orders

import (
	"encoding/json"
	"time"

	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
	"github.com/adesolafarms/farmstore-backend/pkg/enums"
	"github.com/adesolafarms/farmstore-backend/pkg/types"
)

// transitions is the complete order lifecycle. Terminal states map to an
// empty set; anything not listed here is rejected.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusPaid, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:       {enums.OrderStatusProcessing, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered:  {},
	enums.OrderStatusCancelled:  {},
	enums.OrderStatusRefunded:   {},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from the given one.
func AllowedTransitions(from enums.OrderStatus) []enums.OrderStatus {
	return append([]enums.OrderStatus(nil), transitions[from]...)
}

// transitionUpdates builds the column updates for a validated transition:
// the new status, the appended history entry, and any first-reach timestamp.
// Timestamps are stamped only the first time a status is reached.
func transitionUpdates(order *models.Order, to enums.OrderStatus, actor, note string, now time.Time) map[string]any {
	history := append(append(types.StatusHistory(nil), order.StatusHistory...), types.StatusHistoryEntry{
		Status: to,
		Note:   note,
		Actor:  actor,
		At:     now,
	})

	updates := map[string]any{
		"status":         to,
		"status_history": mustJSON(history),
	}

	switch to {
	case enums.OrderStatusPaid:
		if order.PaidAt == nil {
			updates["paid_at"] = now
		}
	case enums.OrderStatusShipped:
		if order.ShippedAt == nil {
			updates["shipped_at"] = now
		}
	case enums.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			updates["delivered_at"] = now
		}
	case enums.OrderStatusCancelled:
		if order.CancelledAt == nil {
			updates["cancelled_at"] = now
		}
		if note != "" {
			updates["cancellation_reason"] = note
		}
	}

	return updates
}

// mustJSON serializes history for a column update. StatusHistory contains
// only marshallable fields, so the error path is unreachable.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
