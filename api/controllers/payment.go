package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/adesolafarms/farmstore-backend/api/responses"
	paymentsvc "github.com/adesolafarms/farmstore-backend/internal/payments"
	pkgerrors "github.com/adesolafarms/farmstore-backend/pkg/errors"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
)

type verifyResponse struct {
	Status          string `json:"status"`
	OrderID         string `json:"orderId,omitempty"`
	Reference       string `json:"reference"`
	Reason          string `json:"reason,omitempty"`
	AlreadyVerified bool   `json:"alreadyVerified,omitempty"`
}

type paymentReconciler interface {
	Reconcile(ctx context.Context, reference, channel string) (*paymentsvc.ReconcileResult, error)
}

// PaymentVerify settles a payment from the customer's post-redirect poll.
func PaymentVerify(svc paymentReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		reference := strings.TrimSpace(r.URL.Query().Get("reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required"))
			return
		}

		result, err := svc.Reconcile(r.Context(), reference, paymentsvc.ChannelVerify)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := verifyResponse{
			Status:          string(result.Status),
			Reference:       result.Reference,
			AlreadyVerified: result.AlreadyVerified,
		}
		if result.Succeeded() {
			resp.Status = "success"
			resp.OrderID = result.OrderID.String()
			responses.WriteSuccess(w, resp)
			return
		}

		resp.Status = "failed"
		resp.Reason = result.FailureReason
		responses.WriteSuccessStatus(w, http.StatusBadRequest, resp)
	}
}
