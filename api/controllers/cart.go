package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/adesolafarms/farmstore-backend/api/middleware"
	"github.com/adesolafarms/farmstore-backend/api/responses"
	"github.com/adesolafarms/farmstore-backend/api/validators"
	cartsvc "github.com/adesolafarms/farmstore-backend/internal/cart"
	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
	pkgerrors "github.com/adesolafarms/farmstore-backend/pkg/errors"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
)

type cartItemView struct {
	ProductID     uuid.UUID `json:"productId"`
	Quantity      int       `json:"quantity"`
	UnitPriceKobo int64     `json:"unitPriceKobo"`
	LineTotalKobo int64     `json:"lineTotalKobo"`
	AddedAt       time.Time `json:"addedAt"`
}

type cartView struct {
	CustomerID   uuid.UUID      `json:"customerId"`
	Items        []cartItemView `json:"items"`
	ItemCount    int            `json:"itemCount"`
	SubtotalKobo int64          `json:"subtotalKobo"`
}

func newCartView(cart *models.Cart) cartView {
	view := cartView{
		CustomerID: cart.CustomerID,
		Items:      make([]cartItemView, 0, len(cart.Items)),
	}
	for _, item := range cart.Items {
		view.Items = append(view.Items, cartItemView{
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			UnitPriceKobo: item.UnitPriceKobo,
			LineTotalKobo: item.UnitPriceKobo * int64(item.Quantity),
			AddedAt:       item.AddedAt,
		})
	}
	view.ItemCount = cart.ItemCount()
	view.SubtotalKobo = cart.SubtotalKobo()
	return view
}

type addCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"min=0"`
}

// CartFetch returns the customer's cart, empty if none exists yet.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		customerID := middleware.CustomerIDFromContext(r.Context())
		cart, err := svc.Get(r.Context(), customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartView(cart))
	}
}

// CartAddItem adds a product line or bumps an existing one.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID := middleware.CustomerIDFromContext(r.Context())
		cart, err := svc.AddItem(r.Context(), customerID, payload.ProductID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartView(cart))
	}
}

// CartUpdateItem sets the quantity on an existing line; zero removes it.
func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		productID, err := cartProductIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID := middleware.CustomerIDFromContext(r.Context())
		cart, err := svc.UpdateItem(r.Context(), customerID, productID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartView(cart))
	}
}

// CartRemoveItem drops a product line from the cart.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		productID, err := cartProductIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID := middleware.CustomerIDFromContext(r.Context())
		cart, err := svc.RemoveItem(r.Context(), customerID, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartView(cart))
	}
}

// CartClear deletes every line in the cart.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		customerID := middleware.CustomerIDFromContext(r.Context())
		if err := svc.Clear(r.Context(), customerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"cleared": true})
	}
}

func cartProductIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "productID"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	productID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}
	return productID, nil
}
