package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sparekart/backend/internal/models"
)

// ErrInvalid is wrapped with a human-readable reason for every rejection.
var ErrInvalid = errors.New("coupon invalid")

var hundred = decimal.NewFromInt(100)

type Validator struct {
	DB *gorm.DB
}

// Validate checks a coupon code against the cart subtotal and the caller's
// redemption history. It does not record usage; RecordUsage does that
// inside the order transaction.
func (v *Validator) Validate(ctx context.Context, code string, subtotal decimal.Decimal, userID uint) (*models.Coupon, error) {
	var c models.Coupon
	if err := v.DB.WithContext(ctx).Where("code = ?", code).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown coupon code", ErrInvalid)
		}
		return nil, err
	}

	if err := v.check(v.DB.WithContext(ctx), &c, subtotal, userID); err != nil {
		return nil, err
	}
	return &c, nil
}

func (v *Validator) check(db *gorm.DB, c *models.Coupon, subtotal decimal.Decimal, userID uint) error {
	if !c.Active {
		return fmt.Errorf("%w: coupon is not active", ErrInvalid)
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(time.Now()) {
		return fmt.Errorf("%w: coupon has expired", ErrInvalid)
	}
	if c.MinOrderAmount.Valid && subtotal.LessThan(c.MinOrderAmount.Decimal) {
		return fmt.Errorf("%w: minimum order amount for this coupon is %s", ErrInvalid, c.MinOrderAmount.Decimal)
	}

	if c.MaxUsages > 0 && c.UsageCount >= c.MaxUsages {
		return fmt.Errorf("%w: coupon usage limit exceeded", ErrInvalid)
	}

	if c.MaxUsagesPerUser > 0 {
		var used int64
		if err := db.Model(&models.CouponUsage{}).
			Where("coupon_id = ? AND user_id = ?", c.ID, userID).
			Count(&used).Error; err != nil {
			return err
		}
		if used >= int64(c.MaxUsagesPerUser) {
			return fmt.Errorf("%w: you have already used this coupon", ErrInvalid)
		}
	}

	return nil
}

// Discount computes the raw discount for a validated coupon: percentage of
// the subtotal capped at MaxDiscountAmount when set, or the fixed value
// verbatim.
func Discount(c *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if c.DiscountType == models.DiscountPercentage {
		d := subtotal.Mul(c.DiscountValue).Div(hundred).Round(2)
		if c.MaxDiscountAmount.Valid && d.GreaterThan(c.MaxDiscountAmount.Decimal) {
			return c.MaxDiscountAmount.Decimal
		}
		return d
	}
	return c.DiscountValue
}

// Clamp keeps the discount inside [0, maxPayable] so a fixed-amount coupon
// larger than the order can never drive the total negative.
func Clamp(discount, maxPayable decimal.Decimal) decimal.Decimal {
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(maxPayable) {
		return maxPayable
	}
	return discount
}

// RecordUsage appends a ledger entry for the redemption inside the caller's
// transaction. The conditional increment write-locks the coupon row until
// that transaction commits, so concurrent redemptions of one coupon
// serialize in the database; the per-user recount below then sees every
// earlier committed entry, and the caps hold even when both orders passed
// Validate before either committed.
func (v *Validator) RecordUsage(tx *gorm.DB, c *models.Coupon, userID, orderID uint) error {
	res := tx.Model(&models.Coupon{}).
		Where("id = ? AND (max_usages = 0 OR usage_count < max_usages)", c.ID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: coupon usage limit exceeded", ErrInvalid)
	}

	if c.MaxUsagesPerUser > 0 {
		var mine int64
		if err := tx.Model(&models.CouponUsage{}).
			Where("coupon_id = ? AND user_id = ?", c.ID, userID).
			Count(&mine).Error; err != nil {
			return err
		}
		if mine >= int64(c.MaxUsagesPerUser) {
			return fmt.Errorf("%w: you have already used this coupon", ErrInvalid)
		}
	}

	usage := models.CouponUsage{
		CouponID: c.ID,
		UserID:   userID,
		OrderID:  orderID,
		UsedAt:   time.Now().UTC(),
	}
	return tx.Create(&usage).Error
}
