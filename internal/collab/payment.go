package collab

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sparekart/backend/internal/models"
	"github.com/sparekart/backend/pkg/logging"
)

// SandboxGateway stands in for the real payment provider in development
// and local deployments. Charges succeed unless the card details carry the
// provider's well-known decline trigger.
type SandboxGateway struct {
	Timeout time.Duration
}

func (g *SandboxGateway) Charge(ctx context.Context, order *models.Order, details map[string]string) (PaymentResult, error) {
	timeout := g.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return PaymentResult{Success: false, Message: "payment timed out"}, ctx.Err()
	default:
	}

	if strings.HasSuffix(details["card_number"], "0000") {
		return PaymentResult{Success: false, Message: "card declined"}, nil
	}

	txn := "TXN-" + strings.ToUpper(uuid.NewString()[:12])
	logging.FromContext(ctx).Info("payment_charged",
		"order_number", order.OrderNumber, "amount", order.TotalAmount.String(), "txn", txn)
	return PaymentResult{Success: true, TransactionID: txn, Message: "approved"}, nil
}

func (g *SandboxGateway) Refund(ctx context.Context, order *models.Order) error {
	if order.PaymentTxnID == "" {
		return fmt.Errorf("refund: order %s has no payment transaction", order.OrderNumber)
	}
	logging.FromContext(ctx).Info("payment_refunded",
		"order_number", order.OrderNumber, "txn", order.PaymentTxnID)
	return nil
}
