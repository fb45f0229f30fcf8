package status

import (
	"errors"
	"fmt"
	"time"

	"github.com/sparekart/backend/internal/models"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// ReturnWindow is measured from the actual delivery timestamp.
const ReturnWindow = 30 * 24 * time.Hour

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:        {models.OrderConfirmed, models.OrderCancelled},
	models.OrderConfirmed:      {models.OrderProcessing, models.OrderCancelled},
	models.OrderProcessing:     {models.OrderPacked, models.OrderCancelled},
	models.OrderPacked:         {models.OrderShipped},
	models.OrderShipped:        {models.OrderOutForDelivery, models.OrderDelivered},
	models.OrderOutForDelivery: {models.OrderDelivered, models.OrderReturned},
	models.OrderDelivered:      {models.OrderReturned},
}

func CanTransition(from, to models.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Cancellable reports whether an order in the given status may still be
// cancelled by the owner.
func Cancellable(s models.OrderStatus) bool {
	return s == models.OrderPending || s == models.OrderConfirmed || s == models.OrderProcessing
}

// Apply validates the transition, mutates the order's status and
// status-specific timestamps in memory and returns the history entry to
// append. The caller persists both in one transaction.
func Apply(o *models.Order, to models.OrderStatus, notes string, now time.Time) (*models.OrderStatusHistory, error) {
	from := o.Status
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if from == models.OrderDelivered && to == models.OrderReturned {
		if o.ActualDeliveryDate == nil || now.Sub(*o.ActualDeliveryDate) > ReturnWindow {
			return nil, fmt.Errorf("%w: return window of 30 days has expired", ErrInvalidTransition)
		}
	}

	o.Status = to
	switch to {
	case models.OrderProcessing:
		o.ProcessedAt = &now
	case models.OrderShipped:
		o.ShippedAt = &now
	case models.OrderDelivered:
		o.DeliveredAt = &now
		o.ActualDeliveryDate = &now
	case models.OrderCancelled:
		o.CancelledAt = &now
	}

	return &models.OrderStatusHistory{
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   to,
		Notes:      notes,
		CreatedAt:  now,
	}, nil
}

// ApplyPayment moves the independent payment axis. A completed payment on a
// still-pending order auto-advances the order to CONFIRMED and returns the
// resulting history entry, otherwise the entry is nil.
func ApplyPayment(o *models.Order, to models.PaymentStatus, now time.Time) (*models.OrderStatusHistory, error) {
	o.PaymentStatus = to

	if to == models.PaymentCompleted && o.Status == models.OrderPending {
		return Apply(o, models.OrderConfirmed, "payment completed", now)
	}
	return nil, nil
}
