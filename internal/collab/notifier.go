package collab

import (
	"context"

	"github.com/sparekart/backend/internal/models"
	"github.com/sparekart/backend/internal/mykafka"
	"github.com/sparekart/backend/pkg/logging"
)

// KafkaNotifier publishes notification events for downstream email/SMS
// workers. Failures are logged and dropped; notifications never fail an
// order operation.
type KafkaNotifier struct {
	Producer *mykafka.Producer
}

func (n *KafkaNotifier) Notify(ctx context.Context, userID uint, title, message, category string, referenceID uint) {
	event := map[string]any{
		"type":         "notification",
		"user_id":      userID,
		"title":        title,
		"message":      message,
		"category":     category,
		"reference_id": referenceID,
	}
	if err := n.Producer.PublishEvent(ctx, mykafka.TopicOrderEvents, title, event); err != nil {
		logging.FromContext(ctx).Warn("notify_failed", "user_id", userID, "title", title, "error", err)
	}
}

// LowStock satisfies the inventory coordinator's alerter contract by
// publishing to the inventory topic.
func (n *KafkaNotifier) LowStock(ctx context.Context, p models.Product) {
	event := map[string]any{
		"type":            "low_stock",
		"product_id":      p.ID,
		"sku":             p.SKU,
		"stock_quantity":  p.StockQuantity,
		"min_stock_level": p.MinStockLevel,
	}
	if err := n.Producer.PublishEvent(ctx, mykafka.TopicInventoryEvents, p.SKU, event); err != nil {
		logging.FromContext(ctx).Warn("low_stock_notify_failed", "product_id", p.ID, "error", err)
	}
}
