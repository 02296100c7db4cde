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
	ordersvc "github.com/adesolafarms/farmstore-backend/internal/orders"
	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
	"github.com/adesolafarms/farmstore-backend/pkg/enums"
	pkgerrors "github.com/adesolafarms/farmstore-backend/pkg/errors"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
	"github.com/adesolafarms/farmstore-backend/pkg/pagination"
	"github.com/adesolafarms/farmstore-backend/pkg/types"
)

type orderItemView struct {
	ProductID     *uuid.UUID `json:"productId,omitempty"`
	Name          string     `json:"name"`
	Unit          string     `json:"unit"`
	UnitPriceKobo int64      `json:"unitPriceKobo"`
	Quantity      int        `json:"quantity"`
	LineTotalKobo int64      `json:"lineTotalKobo"`
}

type orderView struct {
	ID               uuid.UUID           `json:"id"`
	OrderNumber      string              `json:"orderNumber"`
	CustomerID       uuid.UUID           `json:"customerId"`
	CustomerName     string              `json:"customerName"`
	CustomerEmail    string              `json:"customerEmail"`
	Status           string              `json:"status"`
	PaymentStatus    string              `json:"paymentStatus"`
	PaymentMethod    string              `json:"paymentMethod"`
	SubtotalKobo     int64               `json:"subtotalKobo"`
	ShippingCostKobo int64               `json:"shippingCostKobo"`
	TotalKobo        int64               `json:"totalKobo"`
	ShippingAddress  types.Address       `json:"shippingAddress"`
	Items            []orderItemView     `json:"items,omitempty"`
	StatusHistory    types.StatusHistory `json:"statusHistory,omitempty"`
	Notes            *string             `json:"notes,omitempty"`
	AdminNotes       *string             `json:"adminNotes,omitempty"`
	PaidAt           *time.Time          `json:"paidAt,omitempty"`
	ShippedAt        *time.Time          `json:"shippedAt,omitempty"`
	DeliveredAt      *time.Time          `json:"deliveredAt,omitempty"`
	CancelledAt      *time.Time          `json:"cancelledAt,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
}

func newOrderView(order *models.Order, includeItems bool) orderView {
	view := orderView{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		CustomerID:       order.CustomerID,
		CustomerName:     order.CustomerName,
		CustomerEmail:    order.CustomerEmail,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		PaymentMethod:    string(order.PaymentMethod),
		SubtotalKobo:     order.SubtotalKobo,
		ShippingCostKobo: order.ShippingCostKobo,
		TotalKobo:        order.TotalKobo,
		ShippingAddress:  order.ShippingAddress,
		StatusHistory:    order.StatusHistory,
		Notes:            order.Notes,
		AdminNotes:       order.AdminNotes,
		PaidAt:           order.PaidAt,
		ShippedAt:        order.ShippedAt,
		DeliveredAt:      order.DeliveredAt,
		CancelledAt:      order.CancelledAt,
		CreatedAt:        order.CreatedAt,
	}
	if includeItems {
		view.Items = make([]orderItemView, 0, len(order.Items))
		for _, item := range order.Items {
			view.Items = append(view.Items, orderItemView{
				ProductID:     item.ProductID,
				Name:          item.Name,
				Unit:          string(item.Unit),
				UnitPriceKobo: item.UnitPriceKobo,
				Quantity:      item.Quantity,
				LineTotalKobo: item.LineTotalKobo,
			})
		}
	}
	return view
}

type orderListResponse struct {
	Orders     []orderView `json:"orders"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=2000"`
}

// AdminOrdersList returns a cursor-paginated page of orders with optional
// status, payment status, and customer filters.
func AdminOrdersList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		filters, err := orderFiltersFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := orderListResponse{
			Orders:     make([]orderView, 0, len(list.Orders)),
			NextCursor: list.NextCursor,
		}
		for i := range list.Orders {
			resp.Orders = append(resp.Orders, newOrderView(&list.Orders[i], false))
		}
		responses.WriteSuccess(w, resp)
	}
}

// AdminOrderDetail returns one order with its line items and history.
func AdminOrderDetail(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := orderIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order, true))
	}
}

// AdminOrderUpdateStatus drives the order state machine.
func AdminOrderUpdateStatus(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := orderIDFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		to := enums.OrderStatus(strings.ToLower(strings.TrimSpace(payload.Status)))
		if !to.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").WithDetails(map[string]any{"status": payload.Status}))
			return
		}

		actor := "admin:" + middleware.CustomerIDFromContext(r.Context()).String()
		order, err := svc.UpdateStatus(r.Context(), orderID, to, actor, payload.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order, true))
	}
}

func orderIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}

func orderFiltersFromQuery(r *http.Request) (ordersvc.ListFilters, error) {
	var filters ordersvc.ListFilters

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := enums.OrderStatus(strings.ToLower(raw))
		if !status.IsValid() {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").WithDetails(map[string]any{"status": raw})
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("payment_status")); raw != "" {
		status := enums.PaymentStatus(strings.ToLower(raw))
		if !status.IsValid() {
			return filters, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment status").WithDetails(map[string]any{"payment_status": raw})
		}
		filters.PaymentStatus = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("customer_id")); raw != "" {
		customerID, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer id")
		}
		filters.CustomerID = &customerID
	}
	return filters, nil
}
