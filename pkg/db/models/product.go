package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/adesolafarms/farmstore-backend/pkg/enums"
)

// Product is the local sellable-item projection. StockQuantity is a cache;
// for farm-backed products the remote system owns the authoritative count and
// the stock-sync job corrects drift.
type Product struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string              `gorm:"column:name;not null"`
	Slug           string              `gorm:"column:slug;not null;uniqueIndex"`
	ImageURL       *string             `gorm:"column:image_url"`
	Source         enums.ProductSource `gorm:"column:source;type:text;not null;default:'catalog'"`
	FarmRef        *string             `gorm:"column:farm_ref;index"`
	PriceKobo      int64               `gorm:"column:price_kobo;not null"`
	CostPriceKobo  int64               `gorm:"column:cost_price_kobo;not null;default:0"`
	StockQuantity  int                 `gorm:"column:stock_quantity;not null;default:0"`
	TrackInventory bool                `gorm:"column:track_inventory;not null;default:true"`
	IsActive       bool                `gorm:"column:is_active;not null;default:true"`
	Unit           enums.ProductUnit   `gorm:"column:unit;type:text;not null;default:'piece'"`
	SalesCount     int                 `gorm:"column:sales_count;not null;default:0"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// FarmBacked reports whether stock effects must be mirrored to the remote farm system.
func (p Product) FarmBacked() bool {
	return p.Source == enums.ProductSourceInventory && p.FarmRef != nil && *p.FarmRef != ""
}
