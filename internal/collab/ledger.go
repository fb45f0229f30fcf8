package collab

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sparekart/backend/internal/models"
)

// GormInvoicer persists an invoice snapshot per order.
type GormInvoicer struct {
	DB *gorm.DB
}

func (i *GormInvoicer) Generate(ctx context.Context, order *models.Order) (string, error) {
	inv := models.Invoice{
		InvoiceNumber: fmt.Sprintf("INV-%d-%s", time.Now().UnixMilli(), strings.ToUpper(uuid.NewString()[:8])),
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		IssuedAt:      time.Now().UTC(),
	}
	if err := i.DB.WithContext(ctx).Create(&inv).Error; err != nil {
		return "", fmt.Errorf("generate invoice for order %s: %w", order.OrderNumber, err)
	}
	return inv.InvoiceNumber, nil
}

// GormLoyalty keeps the append-only points ledger.
type GormLoyalty struct {
	DB *gorm.DB
}

func (l *GormLoyalty) AddPoints(ctx context.Context, userID uint, points int, reason string) error {
	return l.record(ctx, userID, points, reason)
}

func (l *GormLoyalty) DeductPoints(ctx context.Context, userID uint, points int, reason string) error {
	return l.record(ctx, userID, -points, reason)
}

func (l *GormLoyalty) record(ctx context.Context, userID uint, points int, reason string) error {
	if points == 0 {
		return nil
	}
	txn := models.LoyaltyTransaction{
		UserID:    userID,
		Points:    points,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	return l.DB.WithContext(ctx).Create(&txn).Error
}

// Balance sums the ledger for a user.
func (l *GormLoyalty) Balance(ctx context.Context, userID uint) (int, error) {
	var total int64
	err := l.DB.WithContext(ctx).Model(&models.LoyaltyTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error
	return int(total), err
}
