package checkout

import (
	"github.com/google/uuid"

	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
)

// ResolvedLine is a cart line re-resolved against the current catalog at
// checkout time. The price snapshot comes from the product, not the cart:
// price at checkout time wins.
type ResolvedLine struct {
	Product       models.Product
	Quantity      int
	LineTotalKobo int64
}

// UnavailableLine describes one line that blocks checkout.
type UnavailableLine struct {
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
	Reason    string    `json:"reason"`
}

// resolveLines re-fetches every cart line against the catalog. Lines whose
// product vanished or went inactive are dropped silently; tracked products
// short on stock block the whole checkout, never a partial order.
func resolveLines(items []models.CartItem, catalog map[uuid.UUID]models.Product) ([]ResolvedLine, []UnavailableLine) {
	var resolved []ResolvedLine
	var unavailable []UnavailableLine

	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		product, ok := catalog[item.ProductID]
		if !ok || !product.IsActive {
			continue
		}

		if product.TrackInventory && product.StockQuantity < item.Quantity {
			unavailable = append(unavailable, UnavailableLine{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: item.Quantity,
				Available: product.StockQuantity,
				Reason:    "insufficient stock",
			})
			continue
		}

		resolved = append(resolved, ResolvedLine{
			Product:       product,
			Quantity:      item.Quantity,
			LineTotalKobo: product.PriceKobo * int64(item.Quantity),
		})
	}

	return resolved, unavailable
}
