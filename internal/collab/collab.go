// Package collab holds the external collaborator contracts the order
// orchestrator composes: payment, invoicing, loyalty, shipping and
// notifications. The orchestrator consumes these interfaces and never
// reimplements them.
package collab

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sparekart/backend/internal/models"
)

type PaymentResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
}

// Payment is a blocking, possibly slow external call. Implementations
// should impose their own call timeout; the orchestrator treats any error
// or unsuccessful result as a payment failure and compensates.
type Payment interface {
	Charge(ctx context.Context, order *models.Order, details map[string]string) (PaymentResult, error)
	Refund(ctx context.Context, order *models.Order) error
}

type Invoicer interface {
	Generate(ctx context.Context, order *models.Order) (string, error)
}

type Loyalty interface {
	AddPoints(ctx context.Context, userID uint, points int, reason string) error
	DeductPoints(ctx context.Context, userID uint, points int, reason string) error
}

// Notifier is fire-and-forget: it never returns an error the orchestrator
// must act on.
type Notifier interface {
	Notify(ctx context.Context, userID uint, title, message, category string, referenceID uint)
}

type Shipping interface {
	EstimateCharge(ctx context.Context, addr models.AddressSnapshot, orderValue decimal.Decimal) (decimal.Decimal, error)
	EstimatedDeliveryDate(addr models.AddressSnapshot) time.Time
	GenerateTrackingNumber() string
}
