package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/adesolafarms/farmstore-backend/pkg/enums"
	"github.com/adesolafarms/farmstore-backend/pkg/types"
)

// Order is created once at checkout and mutated afterward only by the state
// machine (status, timestamps) and the payment reconciler (payment fields).
// Line items and customer details are snapshots, never re-derived.
type Order struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber string    `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`

	CustomerID    uuid.UUID `gorm:"column:customer_id;type:uuid;not null;index"`
	CustomerName  string    `gorm:"column:customer_name;not null"`
	CustomerEmail string    `gorm:"column:customer_email;not null"`
	CustomerPhone string    `gorm:"column:customer_phone"`

	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	StatusHistory types.StatusHistory `gorm:"column:status_history;type:jsonb;serializer:json"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`

	SubtotalKobo     int64 `gorm:"column:subtotal_kobo;not null"`
	ShippingCostKobo int64 `gorm:"column:shipping_cost_kobo;not null;default:0"`
	DiscountKobo     int64 `gorm:"column:discount_kobo;not null;default:0"`
	TotalKobo        int64 `gorm:"column:total_kobo;not null"`

	ShippingAddress types.Address `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	Notes           *string       `gorm:"column:notes"`
	AdminNotes      *string       `gorm:"column:admin_notes"`

	InventoryDeducted  bool    `gorm:"column:inventory_deducted;not null;default:false"`
	FinanceRecordID    *string `gorm:"column:finance_record_id"`
	CancellationReason *string `gorm:"column:cancellation_reason"`

	PaidAt      *time.Time `gorm:"column:paid_at"`
	ShippedAt   *time.Time `gorm:"column:shipped_at"`
	DeliveredAt *time.Time `gorm:"column:delivered_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`

	Items     []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is the frozen snapshot of one cart line at checkout time.
type OrderItem struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID     *uuid.UUID        `gorm:"column:product_id;type:uuid"`
	FarmRef       *string           `gorm:"column:farm_ref"`
	Name          string            `gorm:"column:name;not null"`
	Slug          string            `gorm:"column:slug"`
	ImageURL      *string           `gorm:"column:image_url"`
	Unit          enums.ProductUnit `gorm:"column:unit;type:text;not null"`
	UnitPriceKobo int64             `gorm:"column:unit_price_kobo;not null"`
	CostPriceKobo int64             `gorm:"column:cost_price_kobo;not null;default:0"`
	Quantity      int               `gorm:"column:quantity;not null"`
	LineTotalKobo int64             `gorm:"column:line_total_kobo;not null"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
}
