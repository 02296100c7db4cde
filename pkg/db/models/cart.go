package models

import (
	"time"

	"github.com/google/uuid"
)

// Cart holds a customer's in-progress selection. One cart per customer,
// deleted wholesale when an order is created from it.
type Cart struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID uuid.UUID  `gorm:"column:customer_id;type:uuid;not null;uniqueIndex"`
	Items      []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// ItemCount sums line quantities.
func (c Cart) ItemCount() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// SubtotalKobo sums price times quantity across lines.
func (c Cart) SubtotalKobo() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.UnitPriceKobo * int64(item.Quantity)
	}
	return total
}

// CartItem is one product line inside a cart. UnitPriceKobo is the price seen
// when the line was added; checkout re-resolves against the current price.
type CartItem struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID        uuid.UUID `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:ux_cart_items_cart_product"`
	ProductID     uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_cart_items_cart_product"`
	Quantity      int       `gorm:"column:quantity;not null"`
	UnitPriceKobo int64     `gorm:"column:unit_price_kobo;not null"`
	AddedAt       time.Time `gorm:"column:added_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
