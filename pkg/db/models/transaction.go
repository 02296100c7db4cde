package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/adesolafarms/farmstore-backend/pkg/enums"
)

// Transaction is a single payment attempt against an order. Created Pending at
// payment initialization; reaches exactly one terminal status and never moves
// back. At most one Success transaction may exist per order.
type Transaction struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Reference         string                  `gorm:"column:reference;not null;uniqueIndex:ux_transactions_reference"`
	Provider          string                  `gorm:"column:provider;not null;default:'paystack'"`
	AmountKobo        int64                   `gorm:"column:amount_kobo;not null"`
	Currency          string                  `gorm:"column:currency;not null;default:'NGN'"`
	Status            enums.TransactionStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ProviderReference *string                 `gorm:"column:provider_reference"`
	Channel           *string                 `gorm:"column:channel"`
	FailureReason     *string                 `gorm:"column:failure_reason"`
	PaidAt            *time.Time              `gorm:"column:paid_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
