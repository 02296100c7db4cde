package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
	"github.com/adesolafarms/farmstore-backend/pkg/enums"
	pkgerrors "github.com/adesolafarms/farmstore-backend/pkg/errors"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
	"github.com/adesolafarms/farmstore-backend/pkg/metrics"
	"github.com/adesolafarms/farmstore-backend/pkg/outbox"
	"github.com/adesolafarms/farmstore-backend/pkg/paystack"
)

// Channel names the reconciliation entry point for logs and metrics.
const (
	ChannelVerify  = "verify"
	ChannelWebhook = "webhook"
)

const reasonAmountMismatch = "amount mismatch"

type gateway interface {
	Verify(ctx context.Context, reference string) (*paystack.VerifyResult, error)
}

type orderConfirmer interface {
	ConfirmPayment(ctx context.Context, id uuid.UUID, channel string, paidAt *time.Time) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReconcileResult is what either reconciliation channel reports back.
type ReconcileResult struct {
	Status          enums.TransactionStatus
	OrderID         uuid.UUID
	Reference       string
	FailureReason   string
	AlreadyVerified bool
}

// Succeeded reports whether the reconciliation settled the payment as paid.
func (r ReconcileResult) Succeeded() bool {
	return r.Status == enums.TransactionStatusSuccess
}

// Service is the idempotent convergence point for the two payment completion
// channels. Both the verify redirect and the webhook land here; the
// Pending-to-Success claim on the transaction row decides which caller runs
// the confirmation side effects.
type Service struct {
	repo    Repository
	gateway gateway
	orders  orderConfirmer
	tx      txRunner
	events  eventEmitter
	metrics *metrics.ReconcilerMetrics
	logg    *logger.Logger
}

// ServiceParams collects the collaborators the reconciler needs.
type ServiceParams struct {
	Repo    Repository
	Gateway gateway
	Orders  orderConfirmer
	Tx      txRunner
	Events  eventEmitter
	Metrics *metrics.ReconcilerMetrics
	Logger  *logger.Logger
}

// NewService builds the payment reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order confirmer required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:    params.Repo,
		gateway: params.Gateway,
		orders:  params.Orders,
		tx:      params.Tx,
		events:  params.Events,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// Reconcile settles the transaction behind a reference. Safe to call any
// number of times from either channel; only the caller that wins the
// Pending-to-Success claim triggers order confirmation.
func (s *Service) Reconcile(ctx context.Context, reference, channel string) (*ReconcileResult, error) {
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		s.metrics.Record(channel, "rejected")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	ctx = s.logg.WithReference(ctx, trimmed)

	// References are only minted at initialization time. An unknown one is
	// rejected, never created here.
	txn, err := s.repo.FindByReference(ctx, trimmed)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.metrics.Record(channel, "unknown_reference")
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment reference")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transaction")
	}

	// Terminal states never move back.
	switch txn.Status {
	case enums.TransactionStatusSuccess:
		s.metrics.Record(channel, "already_verified")
		return &ReconcileResult{
			Status:          enums.TransactionStatusSuccess,
			OrderID:         txn.OrderID,
			Reference:       txn.Reference,
			AlreadyVerified: true,
		}, nil
	case enums.TransactionStatusFailed, enums.TransactionStatusReversed:
		s.metrics.Record(channel, "already_failed")
		return failedResult(txn, stringValue(txn.FailureReason)), nil
	}

	verified, err := s.gateway.Verify(ctx, trimmed)
	if err != nil {
		s.metrics.Record(channel, "gateway_error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gateway verify failed")
	}

	if !verified.Succeeded() {
		reason := verified.GatewayResponse
		if reason == "" {
			reason = "charge " + verified.Status
		}
		return s.settleFailed(ctx, txn, channel, reason)
	}

	// The gateway's record is authoritative for the amount; a mismatch is a
	// failed payment, not a partial success.
	if verified.AmountKobo != txn.AmountKobo {
		reason := fmt.Sprintf("%s: expected %d kobo, gateway reports %d kobo",
			reasonAmountMismatch, txn.AmountKobo, verified.AmountKobo)
		return s.settleFailed(ctx, txn, channel, reason)
	}

	return s.settleSuccess(ctx, txn, channel, verified)
}

func (s *Service) settleSuccess(ctx context.Context, txn *models.Transaction, channel string, verified *paystack.VerifyResult) (*ReconcileResult, error) {
	paidAt := time.Now().UTC()
	if verified.PaidAt != nil {
		paidAt = verified.PaidAt.UTC()
	}

	updates := map[string]any{
		"paid_at": paidAt,
	}
	if verified.Channel != "" {
		updates["channel"] = verified.Channel
	}
	if verified.ProviderID != 0 {
		updates["provider_reference"] = fmt.Sprintf("%d", verified.ProviderID)
	}

	claimed, err := s.repo.ClaimSuccess(ctx, txn.ID, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settle transaction")
	}
	if claimed == 0 {
		// Race loss. Read back to report what the winner decided.
		settled, err := s.repo.FindByID(ctx, txn.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload transaction")
		}
		if settled.Status == enums.TransactionStatusSuccess {
			s.metrics.Record(channel, "already_verified")
			return &ReconcileResult{
				Status:          enums.TransactionStatusSuccess,
				OrderID:         settled.OrderID,
				Reference:       settled.Reference,
				AlreadyVerified: true,
			}, nil
		}
		s.metrics.Record(channel, "conflict")
		return failedResult(settled, stringValue(settled.FailureReason)), nil
	}

	// Claim winner: confirmation runs exactly once per transaction.
	if err := s.orders.ConfirmPayment(ctx, txn.OrderID, channel, &paidAt); err != nil {
		// The payment is settled; confirmation failures are recorded on
		// the order for operators, never surfaced as a failed payment.
		s.logg.Error(ctx, "order confirmation failed after settled payment", err)
	}

	s.metrics.Record(channel, "success")
	s.logg.Info(s.logg.WithField(ctx, "channel", channel), "payment reconciled")
	return &ReconcileResult{
		Status:    enums.TransactionStatusSuccess,
		OrderID:   txn.OrderID,
		Reference: txn.Reference,
	}, nil
}

func (s *Service) settleFailed(ctx context.Context, txn *models.Transaction, channel, reason string) (*ReconcileResult, error) {
	var marked int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		marked, err = repo.MarkFailed(ctx, txn.ID, reason)
		if err != nil {
			return err
		}
		if marked == 0 {
			return nil
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			Data: paymentFailedEventData{
				Reference: txn.Reference,
				OrderID:   txn.OrderID,
				Reason:    reason,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark transaction failed")
	}

	if marked == 0 {
		// A concurrent reconciler settled the row first; report what the
		// winner decided instead of a failure it may have contradicted.
		settled, err := s.repo.FindByID(ctx, txn.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload transaction")
		}
		if settled.Status == enums.TransactionStatusSuccess {
			s.metrics.Record(channel, "already_verified")
			return &ReconcileResult{
				Status:          enums.TransactionStatusSuccess,
				OrderID:         settled.OrderID,
				Reference:       settled.Reference,
				AlreadyVerified: true,
			}, nil
		}
		s.metrics.Record(channel, "failed")
		return failedResult(settled, stringValue(settled.FailureReason)), nil
	}

	s.metrics.Record(channel, "failed")
	s.logg.Warn(s.logg.WithField(ctx, "failure_reason", reason), "payment reconciliation failed")
	return failedResult(txn, reason), nil
}

func failedResult(txn *models.Transaction, reason string) *ReconcileResult {
	return &ReconcileResult{
		Status:        enums.TransactionStatusFailed,
		OrderID:       txn.OrderID,
		Reference:     txn.Reference,
		FailureReason: reason,
	}
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type paymentFailedEventData struct {
	Reference string    `json:"reference"`
	OrderID   uuid.UUID `json:"orderId"`
	Reason    string    `json:"reason"`
}
