package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sparekart/backend/internal/collab"
	"github.com/sparekart/backend/internal/coupon"
	"github.com/sparekart/backend/internal/idempotency"
	"github.com/sparekart/backend/internal/inventory"
	"github.com/sparekart/backend/internal/metrics"
	"github.com/sparekart/backend/internal/models"
	"github.com/sparekart/backend/internal/pricing"
	"github.com/sparekart/backend/internal/status"
	"github.com/sparekart/backend/pkg/logging"
)

var (
	ErrValidation    = errors.New("validation")    // 400
	ErrNotFound      = errors.New("not found")     // 404
	ErrUnauthorized  = errors.New("unauthorized")  // 403
	ErrPaymentFailed = errors.New("payment failed") // 402
)

const pointsPerUnits = 10 // 1 loyalty point per 10 currency units

type CreateItem struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type CreateRequest struct {
	Items             []CreateItem         `json:"items"`
	ShippingAddressID uint                 `json:"shipping_address_id"`
	BillingAddressID  uint                 `json:"billing_address_id,omitempty"`
	PaymentMethod     models.PaymentMethod `json:"payment_method"`
	PaymentDetails    map[string]string    `json:"payment_details,omitempty"`
	CouponCode        string               `json:"coupon_code,omitempty"`
	CustomerNotes     string               `json:"customer_notes,omitempty"`
	IdempotencyKey    string               `json:"-"`
}

// Service orchestrates order creation and its reverse path. It is the only
// writer of orders and the failure/rollback policy lives here.
type Service struct {
	DB        *gorm.DB
	Repo      *GormRepo
	Pricing   *pricing.Calculator
	Coupons   *coupon.Validator
	Inventory *inventory.Coordinator

	Payment  collab.Payment
	Invoicer collab.Invoicer
	Loyalty  collab.Loyalty
	Notifier collab.Notifier
	Shipping collab.Shipping

	Idem idempotency.Cache

	FreeShippingThreshold decimal.Decimal
}

type reservation struct {
	productID uint
	qty       int
}

// CreateOrder runs the create workflow (price, reserve, pay, commit) with
// full compensation when any step fails partway.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest, user *models.User) (*models.Order, error) {
	l := logging.FromContext(ctx).With("user_id", user.ID)

	if req.IdempotencyKey != "" && s.Idem != nil {
		key := s.Idem.GenerateKey(user.ID, req.IdempotencyKey)
		if number, err := s.Idem.Get(ctx, key); err != nil {
			l.Warn("idempotency_lookup_failed", "error", err)
		} else if number != "" {
			l.Info("idempotent_replay", "order_number", number)
			return s.Repo.GetOrderByNumber(ctx, number)
		}
	}

	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: items required", ErrValidation)
	}
	for _, it := range req.Items {
		if it.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be >= 1", ErrValidation)
		}
	}
	if req.PaymentMethod == "" {
		return nil, fmt.Errorf("%w: payment method required", ErrValidation)
	}

	// step 1: resolve addresses, fail fast
	shippingAddr, err := s.Repo.GetAddress(ctx, req.ShippingAddressID, user.ID)
	if err != nil {
		return nil, err
	}
	billingAddr := shippingAddr
	if req.BillingAddressID != 0 && req.BillingAddressID != req.ShippingAddressID {
		if billingAddr, err = s.Repo.GetAddress(ctx, req.BillingAddressID, user.ID); err != nil {
			return nil, err
		}
	}
	shipSnap := models.SnapshotOf(shippingAddr)

	// step 2: resolve products, snapshot prices, pre-check stock
	items := make([]models.OrderItem, 0, len(req.Items))
	subtotal := decimal.Zero
	totalTax := decimal.Zero
	for _, it := range req.Items {
		p, err := s.Repo.GetProduct(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		available, err := s.Inventory.Available(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if available < it.Quantity {
			metrics.StockRejections.Inc()
			return nil, fmt.Errorf("%w: product %q has %d, requested %d",
				inventory.ErrInsufficientStock, p.Name, available, it.Quantity)
		}

		unitPrice := s.Pricing.UnitPrice(p, user.CustomerType)
		taxAmount := s.Pricing.ItemTax(p, unitPrice, it.Quantity)
		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))

		items = append(items, models.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			ProductSKU:  p.SKU,
			Quantity:    it.Quantity,
			UnitPrice:   unitPrice,
			TaxAmount:   taxAmount,
			LineTotal:   lineTotal.Add(taxAmount),
		})
		subtotal = subtotal.Add(lineTotal)
		totalTax = totalTax.Add(taxAmount)
	}

	// step 3: reserve stock, all-or-nothing
	reserved := make([]reservation, 0, len(items))
	for _, it := range items {
		if err := s.Inventory.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			s.releaseAll(ctx, reserved)
			if errors.Is(err, inventory.ErrInsufficientStock) {
				metrics.StockRejections.Inc()
			}
			return nil, err
		}
		reserved = append(reserved, reservation{productID: it.ProductID, qty: it.Quantity})
	}

	// step 4: one tax split for the whole order
	split := s.Pricing.Split(totalTax, shipSnap)

	// step 5: shipping
	shippingCharge := decimal.Zero
	if subtotal.LessThan(s.FreeShippingThreshold) {
		if shippingCharge, err = s.Shipping.EstimateCharge(ctx, shipSnap, subtotal); err != nil {
			s.releaseAll(ctx, reserved)
			return nil, fmt.Errorf("estimate shipping: %w", err)
		}
	}

	// step 6: coupon (usage recorded only at commit)
	discount := decimal.Zero
	var appliedCoupon *models.Coupon
	if req.CouponCode != "" {
		appliedCoupon, err = s.Coupons.Validate(ctx, req.CouponCode, subtotal, user.ID)
		if err != nil {
			s.releaseAll(ctx, reserved)
			return nil, err
		}
		maxPayable := subtotal.Add(totalTax).Add(shippingCharge)
		discount = coupon.Clamp(coupon.Discount(appliedCoupon, subtotal), maxPayable)
	}

	// step 7: total
	total := subtotal.Add(totalTax).Add(shippingCharge).Sub(discount)
	if total.IsNegative() {
		s.releaseAll(ctx, reserved)
		return nil, fmt.Errorf("%w: order total is negative", ErrValidation)
	}

	now := time.Now().UTC()
	estimated := s.Shipping.EstimatedDeliveryDate(shipSnap)
	o := &models.Order{
		OrderNumber:     newOrderNumber(),
		UserID:          user.ID,
		Status:          models.OrderPending,
		PaymentStatus:   models.PaymentPending,
		PaymentMethod:   req.PaymentMethod,
		Items:           items,
		Subtotal:        subtotal,
		CGSTAmount:      split.CGST,
		SGSTAmount:      split.SGST,
		IGSTAmount:      split.IGST,
		TotalTax:        totalTax,
		ShippingCharge:  shippingCharge,
		Discount:        discount,
		TotalAmount:     total,
		CouponCode:      req.CouponCode,
		ShippingAddress: shipSnap,
		BillingAddress:  models.SnapshotOf(billingAddr),
		CustomerNotes:   req.CustomerNotes,

		EstimatedDeliveryDate: &estimated,
		CreatedAt:             now,
	}

	// steps 8-9: payment (slow, external, after reservations, before commit)
	var confirmEntry *models.OrderStatusHistory
	if req.PaymentMethod != models.MethodCOD {
		result, err := s.Payment.Charge(ctx, o, req.PaymentDetails)
		if err != nil || !result.Success {
			s.releaseAll(ctx, reserved)
			metrics.PaymentFailures.Inc()
			return nil, s.persistFailedPayment(ctx, o, result, err, now)
		}
		o.PaymentTxnID = result.TransactionID
		if confirmEntry, err = status.ApplyPayment(o, models.PaymentCompleted, now); err != nil {
			s.releaseAll(ctx, reserved)
			return nil, err
		}
	} else {
		// reservation is treated as committed, no payment call
		if confirmEntry, err = status.Apply(o, models.OrderConfirmed, "order placed (cash on delivery)", now); err != nil {
			s.releaseAll(ctx, reserved)
			return nil, err
		}
	}

	// single commit: order, items, coupon usage, history
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(o).Error; err != nil {
			return err
		}
		if appliedCoupon != nil {
			if err := s.Coupons.RecordUsage(tx, appliedCoupon, user.ID, o.ID); err != nil {
				return err
			}
		}
		confirmEntry.OrderID = o.ID
		return tx.Create(confirmEntry).Error
	})
	if err != nil {
		s.releaseAll(ctx, reserved)
		if o.PaymentStatus == models.PaymentCompleted {
			if rerr := s.Payment.Refund(ctx, o); rerr != nil {
				l.Error("compensating_refund_failed", "order_number", o.OrderNumber, "error", rerr)
			}
		}
		return nil, err
	}

	if req.IdempotencyKey != "" && s.Idem != nil {
		key := s.Idem.GenerateKey(user.ID, req.IdempotencyKey)
		if err := s.Idem.Set(ctx, key, o.OrderNumber, 24*time.Hour); err != nil {
			l.Warn("idempotency_store_failed", "error", err)
		}
	}

	metrics.OrdersCreated.Inc()
	l.Info("order_created", "order_number", o.OrderNumber, "total", o.TotalAmount.String())

	// step 10: side effects never unwind a successful payment
	s.afterCreate(context.WithoutCancel(ctx), o)

	return o, nil
}

// persistFailedPayment keeps the cancelled order row for audit; it must
// never reach CONFIRMED.
func (s *Service) persistFailedPayment(ctx context.Context, o *models.Order, result collab.PaymentResult, chargeErr error, now time.Time) error {
	l := logging.FromContext(ctx)

	o.PaymentStatus = models.PaymentFailed
	entry, err := status.Apply(o, models.OrderCancelled, "payment failed", now)
	if err != nil {
		return err
	}
	o.CancellationReason = "payment failed"

	txErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(o).Error; err != nil {
			return err
		}
		entry.OrderID = o.ID
		return tx.Create(entry).Error
	})
	if txErr != nil {
		l.Error("failed_payment_audit_persist_failed", "order_number", o.OrderNumber, "error", txErr)
	}

	if chargeErr != nil {
		return fmt.Errorf("%w: %v", ErrPaymentFailed, chargeErr)
	}
	return fmt.Errorf("%w: %s", ErrPaymentFailed, result.Message)
}

func (s *Service) releaseAll(ctx context.Context, reserved []reservation) {
	l := logging.FromContext(ctx)
	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if err := s.Inventory.Release(ctx, r.productID, r.qty); err != nil {
			l.Error("reservation_release_failed", "product_id", r.productID, "qty", r.qty, "error", err)
		}
	}
}

func (s *Service) afterCreate(ctx context.Context, o *models.Order) {
	go s.withRetry(ctx, "generate_invoice", func() error {
		_, err := s.Invoicer.Generate(ctx, o)
		return err
	})
	go s.withRetry(ctx, "award_loyalty_points", func() error {
		return s.Loyalty.AddPoints(ctx, o.UserID, LoyaltyPoints(o.TotalAmount), "Order #"+o.OrderNumber)
	})
	go s.Notifier.Notify(ctx, o.UserID,
		"Order Confirmed",
		fmt.Sprintf("Your order #%s has been confirmed", o.OrderNumber),
		"ORDER", o.ID)
}

func (s *Service) withRetry(ctx context.Context, op string, fn func() error) {
	l := logging.FromContext(ctx)
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = fn(); err == nil {
			return
		}
		l.Warn("side_effect_retry", "op", op, "attempt", attempt, "error", err)
		select {
		case <-time.After(time.Duration(attempt) * time.Second):
		case <-ctx.Done():
			return
		}
	}
	l.Error("side_effect_failed", "op", op, "error", err)
}

// CancelOrder releases stock, refunds a completed payment, claws back
// loyalty points and appends the audit entry.
func (s *Service) CancelOrder(ctx context.Context, orderID uint, user *models.User, reason string) (*models.Order, error) {
	l := logging.FromContext(ctx).With("order_id", orderID)

	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(o, user); err != nil {
		return nil, err
	}
	if !status.Cancellable(o.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", status.ErrInvalidTransition, o.Status, models.OrderCancelled)
	}

	now := time.Now().UTC()
	wasCompleted := o.PaymentStatus == models.PaymentCompleted
	if wasCompleted {
		if err := s.Payment.Refund(ctx, o); err != nil {
			return nil, fmt.Errorf("%w: refund: %v", ErrPaymentFailed, err)
		}
	}

	entry, err := status.Apply(o, models.OrderCancelled, reason, now)
	if err != nil {
		return nil, err
	}
	o.CancellationReason = reason
	if wasCompleted {
		o.PaymentStatus = models.PaymentRefunded
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Save(o).Error; err != nil {
			return err
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		inv := &inventory.Coordinator{DB: tx, Alerter: s.Inventory.Alerter}
		for _, it := range o.Items {
			if err := inv.Release(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCancelled.Inc()
	l.Info("order_cancelled", "order_number", o.OrderNumber, "reason", reason)

	bg := context.WithoutCancel(ctx)
	go s.withRetry(bg, "deduct_loyalty_points", func() error {
		return s.Loyalty.DeductPoints(bg, o.UserID, LoyaltyPoints(o.TotalAmount), "Order cancelled: #"+o.OrderNumber)
	})
	go s.Notifier.Notify(bg, o.UserID,
		"Order Cancelled",
		fmt.Sprintf("Your order #%s has been cancelled", o.OrderNumber),
		"ORDER", o.ID)

	return o, nil
}

// UpdateStatus performs an admin-driven lifecycle transition.
func (s *Service) UpdateStatus(ctx context.Context, orderID uint, to models.OrderStatus, notes string) (*models.Order, error) {
	l := logging.FromContext(ctx).With("order_id", orderID)

	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry, err := status.Apply(o, to, notes, now)
	if err != nil {
		return nil, err
	}
	if to == models.OrderShipped {
		o.TrackingNumber = s.Shipping.GenerateTrackingNumber()
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Save(o).Error; err != nil {
			return err
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}

	l.Info("order_status_updated", "order_number", o.OrderNumber, "from", entry.FromStatus, "to", to)

	bg := context.WithoutCancel(ctx)
	go s.Notifier.Notify(bg, o.UserID,
		"Order Status Updated",
		fmt.Sprintf("Your order #%s status: %s", o.OrderNumber, to),
		"ORDER", o.ID)

	return o, nil
}

// UpdatePaymentStatus moves the payment axis; a completed payment while the
// order is still PENDING auto-advances it to CONFIRMED.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID uint, to models.PaymentStatus) (*models.Order, error) {
	switch to {
	case models.PaymentPending, models.PaymentProcessing, models.PaymentCompleted,
		models.PaymentFailed, models.PaymentRefunded:
	default:
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrValidation, to)
	}

	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	entry, err := status.ApplyPayment(o, to, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Save(o).Error; err != nil {
			return err
		}
		if entry != nil {
			return tx.Create(entry).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID uint, user *models.User) (*models.Order, error) {
	o, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(o, user); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, user *models.User, statusFilter models.OrderStatus, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.Repo.ListOrders(ctx, user.ID, statusFilter, limit, offset)
}

type Tracking struct {
	OrderNumber       string                      `json:"order_number"`
	Status            models.OrderStatus          `json:"status"`
	TrackingNumber    string                      `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time                  `json:"estimated_delivery,omitempty"`
	ActualDelivery    *time.Time                  `json:"actual_delivery,omitempty"`
	History           []models.OrderStatusHistory `json:"history"`
}

func (s *Service) GetTracking(ctx context.Context, orderID uint, user *models.User) (*Tracking, error) {
	o, err := s.GetOrder(ctx, orderID, user)
	if err != nil {
		return nil, err
	}
	history, err := s.Repo.HistoryOf(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &Tracking{
		OrderNumber:       o.OrderNumber,
		Status:            o.Status,
		TrackingNumber:    o.TrackingNumber,
		EstimatedDelivery: o.EstimatedDeliveryDate,
		ActualDelivery:    o.ActualDeliveryDate,
		History:           history,
	}, nil
}

func (s *Service) authorize(o *models.Order, user *models.User) error {
	if o.UserID != user.ID && user.Role != "admin" {
		return fmt.Errorf("%w: order %s", ErrUnauthorized, o.OrderNumber)
	}
	return nil
}

// LoyaltyPoints implements the award formula: 1 point per 10 currency
// units, rounded down.
func LoyaltyPoints(total decimal.Decimal) int {
	if total.IsNegative() {
		return 0
	}
	return int(total.Div(decimal.NewFromInt(pointsPerUnits)).IntPart())
}

func newOrderNumber() string {
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), strings.ToUpper(uuid.NewString()[:8]))
}
