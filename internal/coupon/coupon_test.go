package coupon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sparekart/backend/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Coupon{}, &models.CouponUsage{}))
	return db
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func future() *time.Time {
	ts := time.Now().Add(24 * time.Hour)
	return &ts
}

func TestValidate_Rejections(t *testing.T) {
	db := newTestDB(t)
	v := &Validator{DB: db}
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)

	coupons := []models.Coupon{
		{Code: "INACTIVE", DiscountType: models.DiscountFixed, DiscountValue: dec("10"), Active: false},
		{Code: "EXPIRED", DiscountType: models.DiscountFixed, DiscountValue: dec("10"), Active: true, ExpiresAt: &past},
		{Code: "MIN500", DiscountType: models.DiscountFixed, DiscountValue: dec("10"), Active: true,
			MinOrderAmount: decimal.NewNullDecimal(dec("500"))},
		{Code: "CAPPED", DiscountType: models.DiscountFixed, DiscountValue: dec("10"), Active: true, MaxUsages: 1, UsageCount: 1},
		{Code: "ONCEPER", DiscountType: models.DiscountFixed, DiscountValue: dec("10"), Active: true, MaxUsagesPerUser: 1},
	}
	require.NoError(t, db.Create(&coupons).Error)

	// exhaust ONCEPER for user 7; CAPPED is exhausted via its counter above
	require.NoError(t, db.Create(&models.CouponUsage{CouponID: coupons[4].ID, UserID: 7, OrderID: 2, UsedAt: time.Now()}).Error)

	tests := []struct {
		name     string
		code     string
		subtotal string
		userID   uint
		reason   string
	}{
		{"unknown code", "NOPE", "100", 7, "unknown coupon code"},
		{"inactive", "INACTIVE", "100", 7, "not active"},
		{"expired", "EXPIRED", "100", 7, "expired"},
		{"below minimum", "MIN500", "499.99", 7, "minimum order amount"},
		{"global cap", "CAPPED", "100", 7, "usage limit exceeded"},
		{"per-user cap", "ONCEPER", "100", 7, "already used"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(ctx, tt.code, dec(tt.subtotal), tt.userID)
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}

	// a different user can still use ONCEPER
	_, err := v.Validate(ctx, "ONCEPER", dec("100"), 8)
	require.NoError(t, err)
}

func TestDiscount_PercentageCappedAtMax(t *testing.T) {
	t.Parallel()

	c := &models.Coupon{
		DiscountType:      models.DiscountPercentage,
		DiscountValue:     dec("10"),
		MaxDiscountAmount: decimal.NewNullDecimal(dec("40")),
	}

	// 10% of 500 is 50, capped at 40
	assert.True(t, dec("40").Equal(Discount(c, dec("500"))))
	// below the cap the percentage applies as is
	assert.True(t, dec("30").Equal(Discount(c, dec("300"))))
}

func TestDiscount_Fixed(t *testing.T) {
	t.Parallel()

	c := &models.Coupon{DiscountType: models.DiscountFixed, DiscountValue: dec("75")}
	// fixed value verbatim, not scaled by subtotal
	assert.True(t, dec("75").Equal(Discount(c, dec("1000"))))
	assert.True(t, dec("75").Equal(Discount(c, dec("50"))))
}

func TestClamp(t *testing.T) {
	t.Parallel()

	assert.True(t, dec("60").Equal(Clamp(dec("75"), dec("60"))))
	assert.True(t, dec("20").Equal(Clamp(dec("20"), dec("60"))))
	assert.True(t, decimal.Zero.Equal(Clamp(dec("-5"), dec("60"))))
}

func TestRecordUsage_RechecksCapInsideTransaction(t *testing.T) {
	db := newTestDB(t)
	v := &Validator{DB: db}

	c := models.Coupon{Code: "ONCE", DiscountType: models.DiscountFixed, DiscountValue: dec("10"), Active: true, MaxUsagesPerUser: 1}
	require.NoError(t, db.Create(&c).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		return v.RecordUsage(tx, &c, 7, 1)
	})
	require.NoError(t, err)

	// the committed ledger entry blocks a second redemption even though the
	// earlier Validate pass would have succeeded before the first commit
	err = db.Transaction(func(tx *gorm.DB) error {
		return v.RecordUsage(tx, &c, 7, 2)
	})
	require.ErrorIs(t, err, ErrInvalid)

	var entries int64
	require.NoError(t, db.Model(&models.CouponUsage{}).Count(&entries).Error)
	assert.EqualValues(t, 1, entries)
}

func TestRecordUsage_ConcurrentPerUserCap(t *testing.T) {
	db := newTestDB(t)
	v := &Validator{DB: db}

	c := models.Coupon{Code: "ONCE", DiscountType: models.DiscountFixed, DiscountValue: dec("10"), Active: true, MaxUsagesPerUser: 1}
	require.NoError(t, db.Create(&c).Error)

	const attempts = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(orderID uint) {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				return v.RecordUsage(tx, &c, 7, orderID)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		}(uint(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded, "one redemption wins, the rest fail the cap")

	var entries int64
	require.NoError(t, db.Model(&models.CouponUsage{}).Where("coupon_id = ?", c.ID).Count(&entries).Error)
	assert.EqualValues(t, 1, entries)

	// failed attempts rolled their increments back with the transaction
	var reloaded models.Coupon
	require.NoError(t, db.First(&reloaded, c.ID).Error)
	assert.Equal(t, 1, reloaded.UsageCount)
}

func TestRecordUsage_ConcurrentGlobalCap(t *testing.T) {
	db := newTestDB(t)
	v := &Validator{DB: db}

	c := models.Coupon{Code: "LIMITED", DiscountType: models.DiscountFixed, DiscountValue: dec("10"), Active: true, MaxUsages: 3}
	require.NoError(t, db.Create(&c).Error)

	const attempts = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			err := db.Transaction(func(tx *gorm.DB) error {
				return v.RecordUsage(tx, &c, userID, userID)
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		}(uint(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)

	var reloaded models.Coupon
	require.NoError(t, db.First(&reloaded, c.ID).Error)
	assert.Equal(t, 3, reloaded.UsageCount)

	var entries int64
	require.NoError(t, db.Model(&models.CouponUsage{}).Where("coupon_id = ?", c.ID).Count(&entries).Error)
	assert.EqualValues(t, 3, entries)
}
