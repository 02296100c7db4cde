package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adesolafarms/farmstore-backend/pkg/db"
	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
	pkgerrors "github.com/adesolafarms/farmstore-backend/pkg/errors"
)

const (
	maxLineQuantity = 500
	addItemAttempts = 3
)

// errAddItemRetry signals that a concurrent mutation won a unique-key race.
// The losing transaction is already aborted on postgres, so the merge has to
// happen in a fresh one.
var errAddItemRetry = errors.New("cart line race lost, retry")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service exposes cart persistence operations. Mutations for a single
// customer serialize on the cart's unique-per-customer key.
type Service interface {
	Get(ctx context.Context, customerID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, customerID, productID uuid.UUID, quantity int) (*models.Cart, error)
	UpdateItem(ctx context.Context, customerID, productID uuid.UUID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, customerID, productID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context, customerID uuid.UUID) error
}

type service struct {
	repo     Repository
	tx       txRunner
	products productLoader
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo Repository, tx txRunner, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{repo: repo, tx: tx, products: products}, nil
}

// Get returns the customer's cart, or an empty cart view when none exists.
func (s *service) Get(ctx context.Context, customerID uuid.UUID) (*models.Cart, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	cart, err := s.repo.FindByCustomer(ctx, customerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Cart{CustomerID: customerID}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return cart, nil
}

// AddItem appends a product line or bumps the existing one, snapshotting the
// product's current price on the line.
func (s *service) AddItem(ctx context.Context, customerID, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity <= 0 || quantity > maxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity out of range")
	}

	product, err := s.products.FindByID(ctx, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product is no longer available")
	}

	for attempt := 0; attempt < addItemAttempts; attempt++ {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			cart, err := s.ensureCart(ctx, repo, customerID)
			if err != nil {
				return err
			}

			affected, err := repo.AddItemQuantity(ctx, cart.ID, productID, quantity, product.PriceKobo)
			if err != nil {
				return err
			}
			if affected > 0 {
				return nil
			}

			item := &models.CartItem{
				CartID:        cart.ID,
				ProductID:     productID,
				Quantity:      quantity,
				UnitPriceKobo: product.PriceKobo,
			}
			if err := repo.InsertItem(ctx, item); err != nil {
				// A concurrent add for the same line got there first;
				// the next attempt bumps it instead.
				if db.IsUniqueViolation(err, "ux_cart_items_cart_product") {
					return errAddItemRetry
				}
				return err
			}
			return nil
		})
		if !errors.Is(err, errAddItemRetry) {
			break
		}
	}
	if errors.Is(err, errAddItemRetry) {
		err = fmt.Errorf("cart line contention persisted after %d attempts", addItemAttempts)
	}
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			return nil, appErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add cart item")
	}

	return s.Get(ctx, customerID)
}

// UpdateItem sets a line's quantity. A non-positive quantity removes the line.
func (s *service) UpdateItem(ctx context.Context, customerID, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity <= 0 {
		return s.RemoveItem(ctx, customerID, productID)
	}
	if quantity > maxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity out of range")
	}

	cart, err := s.repo.FindByCustomer(ctx, customerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart is empty")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}

	affected, err := s.repo.SetItemQuantity(ctx, cart.ID, productID, quantity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update cart item")
	}
	if affected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
	}

	return s.Get(ctx, customerID)
}

// RemoveItem drops a line from the cart. Removing an absent line is a no-op.
func (s *service) RemoveItem(ctx context.Context, customerID, productID uuid.UUID) (*models.Cart, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	cart, err := s.repo.FindByCustomer(ctx, customerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Cart{CustomerID: customerID}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}

	if _, err := s.repo.RemoveItem(ctx, cart.ID, productID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart item")
	}

	return s.Get(ctx, customerID)
}

// Clear empties the customer's cart. Clearing an absent cart is a no-op.
func (s *service) Clear(ctx context.Context, customerID uuid.UUID) error {
	if customerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}

	cart, err := s.repo.FindByCustomer(ctx, customerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}

	if err := s.repo.ClearItems(ctx, cart.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	return nil
}

func (s *service) ensureCart(ctx context.Context, repo Repository, customerID uuid.UUID) (*models.Cart, error) {
	cart, err := repo.FindByCustomer(ctx, customerID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created, err := repo.Create(ctx, &models.Cart{CustomerID: customerID})
	if err == nil {
		return created, nil
	}
	// Lost the race to another request for the same customer; the cart can
	// only be read back once this transaction is rolled back.
	if db.IsUniqueViolation(err, "") {
		return nil, errAddItemRetry
	}
	return nil, err
}
