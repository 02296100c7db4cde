package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
)

// Repository defines the persistence surface required by the cart service.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) (*models.Cart, error)
	InsertItem(ctx context.Context, item *models.CartItem) error
	AddItemQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int, unitPriceKobo int64) (int64, error)
	SetItemQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) (int64, error)
	RemoveItem(ctx context.Context, cartID, productID uuid.UUID) (int64, error)
	ClearItems(ctx context.Context, cartID uuid.UUID) error
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("added_at ASC")
		}).
		Where("customer_id = ?", customerID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) Create(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	if err := r.db.WithContext(ctx).Create(cart).Error; err != nil {
		return nil, err
	}
	return cart, nil
}

func (r *repository) InsertItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// AddItemQuantity bumps an existing line in place, refreshing the price
// snapshot to the current price. Returns rows affected; zero means the line
// does not exist yet.
func (r *repository) AddItemQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int, unitPriceKobo int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Updates(map[string]any{
			"quantity":        gorm.Expr("quantity + ?", quantity),
			"unit_price_kobo": unitPriceKobo,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) SetItemQuantity(ctx context.Context, cartID, productID uuid.UUID, quantity int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.CartItem{}).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Update("quantity", quantity)
	return res.RowsAffected, res.Error
}

func (r *repository) RemoveItem(ctx context.Context, cartID, productID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

func (r *repository) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}

// DeleteIdleBefore removes carts untouched since the cutoff. Items go with
// them via the cascade constraint.
func (r *repository) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("updated_at < ?", cutoff).
		Delete(&models.Cart{})
	return res.RowsAffected, res.Error
}
