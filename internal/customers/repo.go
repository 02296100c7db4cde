package customers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
)

// Repository defines persistence operations for storefront customers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	IncrementOrderStats(ctx context.Context, id uuid.UUID, spentKobo int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a customers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// IncrementOrderStats bumps lifetime counters after a confirmed payment.
func (r *repository) IncrementOrderStats(ctx context.Context, id uuid.UUID, spentKobo int64) error {
	if spentKobo < 0 {
		return errors.New("spent amount must not be negative")
	}
	return r.db.WithContext(ctx).Model(&models.Customer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"order_count":      gorm.Expr("order_count + 1"),
			"total_spent_kobo": gorm.Expr("total_spent_kobo + ?", spentKobo),
		}).Error
}
