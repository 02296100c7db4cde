package controllers

import (
	"net/http"

	"github.com/adesolafarms/farmstore-backend/api/middleware"
	"github.com/adesolafarms/farmstore-backend/api/responses"
	"github.com/adesolafarms/farmstore-backend/api/validators"
	checkoutsvc "github.com/adesolafarms/farmstore-backend/internal/checkout"
	pkgerrors "github.com/adesolafarms/farmstore-backend/pkg/errors"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
	"github.com/adesolafarms/farmstore-backend/pkg/types"
)

type checkoutRequest struct {
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
	PaymentMethod   string        `json:"payment_method" validate:"required"`
	Notes           string        `json:"notes" validate:"max=2000"`
}

type checkoutOrderView struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
	TotalKobo   int64  `json:"totalKobo"`
}

type checkoutPaymentView struct {
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode,omitempty"`
	Reference        string `json:"reference"`
}

type checkoutResponse struct {
	Order   checkoutOrderView    `json:"order"`
	Payment *checkoutPaymentView `json:"payment,omitempty"`
}

// Checkout converts the customer's cart into an order and, for gateway
// methods, opens a hosted payment session.
func Checkout(svc *checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID := middleware.CustomerIDFromContext(r.Context())
		result, err := svc.Checkout(r.Context(), customerID, checkoutsvc.Input{
			ShippingAddress: payload.ShippingAddress,
			PaymentMethod:   payload.PaymentMethod,
			Notes:           payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := checkoutResponse{
			Order: checkoutOrderView{
				ID:          result.Order.ID.String(),
				OrderNumber: result.Order.OrderNumber,
				Status:      string(result.Order.Status),
				TotalKobo:   result.Order.TotalKobo,
			},
		}
		if result.Payment != nil {
			resp.Payment = &checkoutPaymentView{
				AuthorizationURL: result.Payment.AuthorizationURL,
				AccessCode:       result.Payment.AccessCode,
				Reference:        result.Payment.Reference,
			}
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}
