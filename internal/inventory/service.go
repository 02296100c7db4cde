package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
	"github.com/adesolafarms/farmstore-backend/pkg/farm"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
)

type orderFlags interface {
	ClaimInventoryDeducted(ctx context.Context, id uuid.UUID) (int64, error)
	ResetInventoryDeducted(ctx context.Context, id uuid.UUID) error
	ClearInventoryDeducted(ctx context.Context, id uuid.UUID) (int64, error)
}

type stockCache interface {
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error
	IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error
	SetStockByFarmRef(ctx context.Context, farmRef string, stock int, available bool) (int64, error)
}

type farmStock interface {
	DeductStock(ctx context.Context, items []farm.StockItem) ([]farm.StockItemError, error)
	RestoreStock(ctx context.Context, items []farm.StockItem) ([]farm.StockItemError, error)
	PublicProducts(ctx context.Context, limit int) ([]farm.PublicProduct, error)
}

// Service keeps order stock effects consistent between the remote farm
// system (the source of truth) and the local stock cache.
type Service struct {
	orders orderFlags
	cache  stockCache
	remote farmStock
	logg   *logger.Logger
	pageSz int
}

// NewService builds the inventory reconciliation service.
func NewService(orders orderFlags, cache stockCache, remote farmStock, logg *logger.Logger) (*Service, error) {
	if orders == nil {
		return nil, fmt.Errorf("order flags required")
	}
	if cache == nil {
		return nil, fmt.Errorf("stock cache required")
	}
	if remote == nil {
		return nil, fmt.Errorf("farm client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{orders: orders, cache: cache, remote: remote, logg: logg, pageSz: 100}, nil
}

// Deduct applies the order's stock effects once. The deducted flag is claimed
// up front so racing confirmations cannot both call the remote system; the
// local cache is decremented even when the remote call fails, and the flag is
// lowered again on remote errors so a retry can claim it and cancellation
// never restores unconfirmed stock.
func (s *Service) Deduct(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	if order.InventoryDeducted {
		return nil
	}

	claimed, err := s.orders.ClaimInventoryDeducted(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("claim deduction flag: %w", err)
	}
	if claimed == 0 {
		return nil
	}

	var remoteErr error
	if items := farmItems(order); len(items) > 0 {
		itemErrs, err := s.remote.DeductStock(ctx, items)
		if err != nil {
			remoteErr = multierr.Append(remoteErr, err)
		}
		for _, itemErr := range itemErrs {
			remoteErr = multierr.Append(remoteErr, itemErr)
		}
	}

	// The cache decrement runs regardless of the remote outcome; the
	// stock-sync pass corrects any drift against the remote system.
	var cacheErr error
	for _, item := range order.Items {
		if item.ProductID == nil || item.Quantity <= 0 {
			continue
		}
		if err := s.cache.DecrementStock(ctx, *item.ProductID, item.Quantity); err != nil {
			cacheErr = multierr.Append(cacheErr, fmt.Errorf("decrement %s: %w", item.Name, err))
		}
	}
	if cacheErr != nil {
		s.logg.Error(ctx, "stock cache decrement failed", cacheErr)
	}

	if remoteErr != nil {
		if err := s.orders.ResetInventoryDeducted(ctx, order.ID); err != nil {
			remoteErr = multierr.Append(remoteErr, fmt.Errorf("reset deduction flag: %w", err))
		}
		return multierr.Append(remoteErr, cacheErr)
	}
	return cacheErr
}

// Restore puts an order's stock back after cancellation. A no-op unless the
// deduction flag is set; the conditional clear keeps two concurrent restores
// from both incrementing. The remote call is best effort.
func (s *Service) Restore(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order required")
	}

	cleared, err := s.orders.ClearInventoryDeducted(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("clear deduction flag: %w", err)
	}
	if cleared == 0 {
		return nil
	}

	var combined error
	if items := farmItems(order); len(items) > 0 {
		itemErrs, err := s.remote.RestoreStock(ctx, items)
		if err != nil {
			combined = multierr.Append(combined, err)
		}
		for _, itemErr := range itemErrs {
			combined = multierr.Append(combined, itemErr)
		}
	}

	for _, item := range order.Items {
		if item.ProductID == nil || item.Quantity <= 0 {
			continue
		}
		if err := s.cache.IncrementStock(ctx, *item.ProductID, item.Quantity); err != nil {
			combined = multierr.Append(combined, fmt.Errorf("increment %s: %w", item.Name, err))
		}
	}
	return combined
}

// SyncStock overwrites the local stock cache from the remote listing.
// Returns how many remote rows matched a local product.
func (s *Service) SyncStock(ctx context.Context) (int64, error) {
	listing, err := s.remote.PublicProducts(ctx, s.pageSz)
	if err != nil {
		return 0, fmt.Errorf("fetch remote listing: %w", err)
	}

	var matched int64
	var combined error
	for _, remote := range listing {
		if remote.InventoryItemID == "" {
			continue
		}
		affected, err := s.cache.SetStockByFarmRef(ctx, remote.InventoryItemID, remote.StockQuantity, remote.Available)
		if err != nil {
			combined = multierr.Append(combined, fmt.Errorf("sync %s: %w", remote.InventoryItemID, err))
			continue
		}
		matched += affected
	}
	return matched, combined
}

func farmItems(order *models.Order) []farm.StockItem {
	var items []farm.StockItem
	for _, item := range order.Items {
		if item.FarmRef == nil || *item.FarmRef == "" || item.Quantity <= 0 {
			continue
		}
		items = append(items, farm.StockItem{
			InventoryItemID: *item.FarmRef,
			Quantity:        item.Quantity,
			ProductName:     item.Name,
		})
	}
	return items
}
