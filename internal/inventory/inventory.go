package inventory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sparekart/backend/internal/models"
	"github.com/sparekart/backend/pkg/logging"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotFound   = errors.New("product not found")
)

// Alerter receives low-stock notifications. Implementations must be cheap
// or run their own goroutines; the coordinator never waits on them.
type Alerter interface {
	LowStock(ctx context.Context, product models.Product)
}

// Coordinator is the only component that mutates stock counters. Both
// operations are single conditional UPDATEs, so concurrent reservations on
// the same product serialize in the database and stock can never go
// negative.
type Coordinator struct {
	DB      *gorm.DB
	Alerter Alerter
}

// Reserve decrements stock by qty only while qty is still available,
// otherwise fails with ErrInsufficientStock and the shortfall.
func (c *Coordinator) Reserve(ctx context.Context, productID uint, qty int) error {
	if qty < 1 {
		return fmt.Errorf("reserve: quantity must be >= 1, got %d", qty)
	}

	res := c.DB.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock_quantity >= ?", productID, qty).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		var p models.Product
		if err := c.DB.WithContext(ctx).First(&p, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: product %d", ErrProductNotFound, productID)
			}
			return err
		}
		return fmt.Errorf("%w: product %d has %d, requested %d (short %d)",
			ErrInsufficientStock, productID, p.StockQuantity, qty, qty-p.StockQuantity)
	}

	c.checkLowStock(ctx, productID)
	return nil
}

// Release returns qty units to stock, used on cancellation and payment
// failure.
func (c *Coordinator) Release(ctx context.Context, productID uint, qty int) error {
	if qty < 1 {
		return fmt.Errorf("release: quantity must be >= 1, got %d", qty)
	}

	res := c.DB.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: product %d", ErrProductNotFound, productID)
	}
	return nil
}

// Available reports the current stock level, used for the orchestrator's
// pre-check before reserving.
func (c *Coordinator) Available(ctx context.Context, productID uint) (int, error) {
	var p models.Product
	if err := c.DB.WithContext(ctx).Select("stock_quantity").First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: product %d", ErrProductNotFound, productID)
		}
		return 0, err
	}
	return p.StockQuantity, nil
}

// checkLowStock emits a side-effect alert when a reservation crosses the
// threshold. It runs detached and never fails the reservation.
func (c *Coordinator) checkLowStock(ctx context.Context, productID uint) {
	if c.Alerter == nil {
		return
	}

	var p models.Product
	if err := c.DB.WithContext(ctx).First(&p, productID).Error; err != nil {
		logging.FromContext(ctx).Warn("low_stock_check_failed", "product_id", productID, "error", err)
		return
	}
	if p.StockQuantity > p.MinStockLevel {
		return
	}

	go c.Alerter.LowStock(context.WithoutCancel(ctx), p)
}
