package products

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
)

// Repository defines persistence operations for the product projection.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	FindBySlug(ctx context.Context, slug string) (*models.Product, error)
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error
	IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error
	IncrementSalesCount(ctx context.Context, id uuid.UUID, quantity int) error
	SetStockByFarmRef(ctx context.Context, farmRef string, stock int, available bool) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a products repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	result := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ID] = row
	}
	return result, nil
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// DecrementStock lowers the local stock cache, clamped at zero. The CASE
// keeps the clamp inside a single statement so concurrent decrements cannot
// drive the cache negative.
func (r *repository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		Update("stock_quantity", gorm.Expr(
			"CASE WHEN stock_quantity > ? THEN stock_quantity - ? ELSE 0 END",
			quantity, quantity,
		)).Error
}

func (r *repository) IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", quantity)).Error
}

func (r *repository) IncrementSalesCount(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		Update("sales_count", gorm.Expr("sales_count + ?", quantity)).Error
}

// SetStockByFarmRef overwrites the stock cache from the remote listing.
// Returns the number of rows touched so the sync job can log drift.
func (r *repository) SetStockByFarmRef(ctx context.Context, farmRef string, stock int, available bool) (int64, error) {
	if stock < 0 {
		stock = 0
	}
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("farm_ref = ?", farmRef).
		Updates(map[string]any{
			"stock_quantity": stock,
			"is_active":      available,
		})
	return res.RowsAffected, res.Error
}
