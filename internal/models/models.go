package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CustomerType string

const (
	CustomerIndividual CustomerType = "INDIVIDUAL"
	CustomerBusiness   CustomerType = "BUSINESS"
)

type OrderStatus string

const (
	OrderPending        OrderStatus = "PENDING"
	OrderConfirmed      OrderStatus = "CONFIRMED"
	OrderProcessing     OrderStatus = "PROCESSING"
	OrderPacked         OrderStatus = "PACKED"
	OrderShipped        OrderStatus = "SHIPPED"
	OrderOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderDelivered      OrderStatus = "DELIVERED"
	OrderCancelled      OrderStatus = "CANCELLED"
	OrderRefunded       OrderStatus = "REFUNDED"
	OrderReturned       OrderStatus = "RETURNED"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	MethodCard       PaymentMethod = "CARD"
	MethodNetBanking PaymentMethod = "NET_BANKING"
	MethodUPI        PaymentMethod = "UPI"
	MethodWallet     PaymentMethod = "WALLET"
	MethodCOD        PaymentMethod = "COD"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED_AMOUNT"
)

type User struct {
	ID           uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string       `gorm:"unique;not null"          json:"email"`
	PasswordHash string       `gorm:"not null"                 json:"-"`
	Role         string       `gorm:"not null;default:user"    json:"role"`
	CustomerType CustomerType `gorm:"not null;default:INDIVIDUAL" json:"customer_type"`
	GSTNumber    string       `json:"gst_number,omitempty"`
	PhoneNumber  string       `json:"phone_number,omitempty"`
}

type Address struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uint   `gorm:"index;not null"           json:"user_id"`
	Line1      string `gorm:"not null"                 json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `gorm:"not null"                 json:"city"`
	State      string `gorm:"not null"                 json:"state"`
	PostalCode string `gorm:"not null"                 json:"postal_code"`
	Country    string `gorm:"not null;default:India"   json:"country"`
}

type Product struct {
	ID            uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	SKU           string              `gorm:"unique;not null"          json:"sku"`
	Name          string              `gorm:"not null"                 json:"name"`
	Description   string              `json:"description"`
	BasePrice     decimal.Decimal     `gorm:"type:numeric;not null"    json:"base_price"`
	BusinessPrice decimal.NullDecimal `gorm:"type:numeric"             json:"business_price"`
	GSTApplicable bool                `gorm:"not null;default:true"    json:"gst_applicable"`
	GSTRate       decimal.Decimal     `gorm:"type:numeric"             json:"gst_rate"`
	StockQuantity int                 `gorm:"not null;default:0;check:stock_quantity >= 0" json:"stock_quantity"`
	MinStockLevel int                 `gorm:"not null;default:0"       json:"min_stock_level"`
	Active        bool                `gorm:"not null;default:true"    json:"active"`
}

// AddressSnapshot is copied onto the order at creation time so that later
// edits to the user's address book never change a past order.
type AddressSnapshot struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func SnapshotOf(a *Address) AddressSnapshot {
	return AddressSnapshot{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type Order struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber string `gorm:"unique;not null"          json:"order_number"`
	UserID      uint   `gorm:"index;not null"           json:"user_id"`

	Status        OrderStatus   `gorm:"not null" json:"status"`
	PaymentStatus PaymentStatus `gorm:"not null" json:"payment_status"`
	PaymentMethod PaymentMethod `gorm:"not null" json:"payment_method"`
	PaymentTxnID  string        `json:"payment_txn_id,omitempty"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`

	Subtotal       decimal.Decimal `gorm:"type:numeric;not null" json:"subtotal"`
	CGSTAmount     decimal.Decimal `gorm:"type:numeric;not null" json:"cgst_amount"`
	SGSTAmount     decimal.Decimal `gorm:"type:numeric;not null" json:"sgst_amount"`
	IGSTAmount     decimal.Decimal `gorm:"type:numeric;not null" json:"igst_amount"`
	TotalTax       decimal.Decimal `gorm:"type:numeric;not null" json:"total_tax"`
	ShippingCharge decimal.Decimal `gorm:"type:numeric;not null" json:"shipping_charge"`
	Discount       decimal.Decimal `gorm:"type:numeric;not null" json:"discount"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric;not null" json:"total_amount"`

	CouponCode string `json:"coupon_code,omitempty"`

	ShippingAddress AddressSnapshot `gorm:"embedded;embeddedPrefix:ship_" json:"shipping_address"`
	BillingAddress  AddressSnapshot `gorm:"embedded;embeddedPrefix:bill_" json:"billing_address"`

	TrackingNumber        string     `json:"tracking_number,omitempty"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date,omitempty"`
	ActualDeliveryDate    *time.Time `json:"actual_delivery_date,omitempty"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	CustomerNotes      string `json:"customer_notes,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderItem carries the price snapshot taken at order time. Its monetary
// fields never change after creation.
type OrderItem struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     uint            `gorm:"index;not null"           json:"order_id"`
	ProductID   uint            `gorm:"not null"                 json:"product_id"`
	ProductName string          `gorm:"not null"                 json:"product_name"`
	ProductSKU  string          `gorm:"not null"                 json:"product_sku"`
	Quantity    int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric;not null"    json:"unit_price"`
	TaxAmount   decimal.Decimal `gorm:"type:numeric;not null"    json:"tax_amount"`
	LineTotal   decimal.Decimal `gorm:"type:numeric;not null"    json:"line_total"`
}

type Coupon struct {
	ID                uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	Code              string              `gorm:"unique;not null"          json:"code"`
	Description       string              `json:"description,omitempty"`
	DiscountType      DiscountType        `gorm:"not null"                 json:"discount_type"`
	DiscountValue     decimal.Decimal     `gorm:"type:numeric;not null"    json:"discount_value"`
	MinOrderAmount    decimal.NullDecimal `gorm:"type:numeric"             json:"min_order_amount"`
	MaxDiscountAmount decimal.NullDecimal `gorm:"type:numeric"             json:"max_discount_amount"`
	ExpiresAt         *time.Time          `json:"expires_at,omitempty"`
	Active            bool                `gorm:"not null;default:true"    json:"active"`
	MaxUsages         int                 `gorm:"not null;default:0"       json:"max_usages"`
	MaxUsagesPerUser  int                 `gorm:"not null;default:0"       json:"max_usages_per_user"`

	// Committed redemptions. Mutated only by the conditional increment in
	// coupon.RecordUsage, so it always equals the ledger row count.
	UsageCount int `gorm:"not null;default:0" json:"usage_count"`
}

// CouponUsage is the append-only redemption ledger backing usage caps.
type CouponUsage struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CouponID uint      `gorm:"index;not null"           json:"coupon_id"`
	UserID   uint      `gorm:"index;not null"           json:"user_id"`
	OrderID  uint      `gorm:"not null"                 json:"order_id"`
	UsedAt   time.Time `gorm:"not null"                 json:"used_at"`
}

// OrderStatusHistory rows are append-only, never edited or deleted.
type OrderStatusHistory struct {
	ID         uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID    uint        `gorm:"index;not null"           json:"order_id"`
	FromStatus OrderStatus `gorm:"not null"                 json:"from_status"`
	ToStatus   OrderStatus `gorm:"not null"                 json:"to_status"`
	Notes      string      `json:"notes,omitempty"`
	CreatedAt  time.Time   `gorm:"not null"                 json:"created_at"`
}

type Invoice struct {
	ID            uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	InvoiceNumber string          `gorm:"unique;not null"          json:"invoice_number"`
	OrderID       uint            `gorm:"uniqueIndex;not null"     json:"order_id"`
	Amount        decimal.Decimal `gorm:"type:numeric;not null"    json:"amount"`
	IssuedAt      time.Time       `gorm:"not null"                 json:"issued_at"`
}

// LoyaltyTransaction is the append-only points ledger. Positive points are
// awards, negative points deductions.
type LoyaltyTransaction struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"index;not null"           json:"user_id"`
	Points    int       `gorm:"not null"                 json:"points"`
	Reason    string    `gorm:"not null"                 json:"reason"`
	CreatedAt time.Time `gorm:"not null"                 json:"created_at"`
}
