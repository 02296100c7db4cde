package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer is the storefront account that owns carts and orders.
type Customer struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string    `gorm:"column:name;not null"`
	Email          string    `gorm:"column:email;not null;uniqueIndex"`
	Phone          string    `gorm:"column:phone"`
	OrderCount     int       `gorm:"column:order_count;not null;default:0"`
	TotalSpentKobo int64     `gorm:"column:total_spent_kobo;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
