package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
	"github.com/adesolafarms/farmstore-backend/pkg/enums"
	pkgerrors "github.com/adesolafarms/farmstore-backend/pkg/errors"
	"github.com/adesolafarms/farmstore-backend/pkg/farm"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
	"github.com/adesolafarms/farmstore-backend/pkg/outbox"
	"github.com/adesolafarms/farmstore-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type inventoryService interface {
	Deduct(ctx context.Context, order *models.Order) error
	Restore(ctx context.Context, order *models.Order) error
}

type financeRegistrar interface {
	RegisterSale(ctx context.Context, sale farm.SaleRecord) (string, error)
}

type customerStats interface {
	IncrementOrderStats(ctx context.Context, id uuid.UUID, spentKobo int64) error
}

type productStats interface {
	IncrementSalesCount(ctx context.Context, id uuid.UUID, quantity int) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives the order lifecycle: admin transitions and post-payment
// confirmation.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to enums.OrderStatus, actor, note string) (*models.Order, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID, channel string, paidAt *time.Time) error
}

type service struct {
	repo      Repository
	tx        txRunner
	inventory inventoryService
	finance   financeRegistrar
	customers customerStats
	products  productStats
	events    eventEmitter
	logg      *logger.Logger
}

// ServiceParams collects the collaborators the order service needs.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Inventory inventoryService
	Finance   financeRegistrar
	Customers customerStats
	Products  productStats
	Events    eventEmitter
	Logger    *logger.Logger
}

// NewService builds the order lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Finance == nil {
		return nil, fmt.Errorf("finance registrar required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customer stats required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product stats required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		inventory: params.Inventory,
		finance:   params.Finance,
		customers: params.Customers,
		products:  params.Products,
		events:    params.Events,
		logg:      params.Logger,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, filters ListFilters) (*OrderList, error) {
	list, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return list, nil
}

// UpdateStatus applies one state-machine transition. The write is conditional
// on the status the caller saw, so a concurrent transition surfaces as a
// conflict instead of a lost update.
func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, to enums.OrderStatus, actor, note string) (*models.Order, error) {
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if to == enums.OrderStatusPaid {
		// Payments advance orders through confirmation so the payment
		// side effects always run with the status change.
		if err := s.ConfirmPayment(ctx, id, "manual", nil); err != nil {
			return nil, err
		}
		return s.Get(ctx, id)
	}

	if order.Status == to {
		return order, nil
	}
	if !CanTransition(order.Status, to) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, to)).
			WithDetails(map[string]any{"allowed": AllowedTransitions(order.Status)})
	}

	now := time.Now().UTC()
	updates := transitionUpdates(order, to, actor, note, now)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.UpdateWhereStatus(ctx, id, order.Status, updates)
		if err != nil {
			return err
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently")
		}

		eventType := enums.EventOrderStatusChanged
		if to == enums.OrderStatusCancelled {
			eventType = enums.EventOrderCancelled
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Role: "admin"},
			Data: orderStatusEventData{
				OrderNumber: order.OrderNumber,
				From:        order.Status,
				To:          to,
				Note:        note,
			},
		})
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			return nil, appErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}

	// Cancelling a paid order puts confirmed-deducted stock back. Failures
	// are operator work, not a reason to undo the cancellation.
	if to == enums.OrderStatusCancelled {
		if err := s.inventory.Restore(ctx, order); err != nil {
			s.logg.Error(s.logg.WithOrderNumber(ctx, order.OrderNumber), "inventory restore failed", err)
			s.noteFailure(ctx, order.ID, "inventory restore failed", err)
		}
	}

	return s.Get(ctx, id)
}

// ConfirmPayment marks the order paid and runs the post-payment side effects.
// The paid claim is the idempotency guard: only the caller that flips
// payment_status runs the side effects, every later call is a no-op.
func (s *service) ConfirmPayment(ctx context.Context, id uuid.UUID, channel string, paidAt *time.Time) error {
	order, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return nil
	}

	now := time.Now().UTC()
	when := now
	if paidAt != nil {
		when = paidAt.UTC()
	}

	claimed := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		updates := map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"paid_at":        when,
		}
		affected, err := repo.ClaimPaid(ctx, id, updates)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		claimed = true

		// Advance the lifecycle only from Pending; an already-cancelled
		// order keeps its status and gets an operator note below.
		if order.Status == enums.OrderStatusPending {
			statusUpdates := transitionUpdates(order, enums.OrderStatusPaid, "system", "payment confirmed via "+channel, now)
			delete(statusUpdates, "paid_at")
			if _, err := repo.UpdateWhereStatus(ctx, id, enums.OrderStatusPending, statusUpdates); err != nil {
				return err
			}
		}

		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: orderPaidEventData{
				OrderNumber: order.OrderNumber,
				TotalKobo:   order.TotalKobo,
				Channel:     channel,
				PaidAt:      when,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirm payment")
	}
	if !claimed {
		return nil
	}

	ctx = s.logg.WithOrderNumber(ctx, order.OrderNumber)
	if order.Status != enums.OrderStatusPending {
		s.noteFailure(ctx, order.ID, fmt.Sprintf("payment received while order was %s", order.Status), nil)
	}

	// Side effects run independently after the claim. The customer has
	// already paid, so none of these may revert the payment; each failure
	// becomes an admin note for manual reconciliation.
	if err := s.inventory.Deduct(ctx, order); err != nil {
		s.logg.Error(ctx, "inventory deduction failed", err)
		s.noteFailure(ctx, order.ID, "inventory deduction failed", err)
	}

	s.registerFinanceRecord(ctx, order, when)

	if err := s.customers.IncrementOrderStats(ctx, order.CustomerID, order.TotalKobo); err != nil {
		s.logg.Error(ctx, "customer stats update failed", err)
		s.noteFailure(ctx, order.ID, "customer stats update failed", err)
	}
	for _, item := range order.Items {
		if item.ProductID == nil {
			continue
		}
		if err := s.products.IncrementSalesCount(ctx, *item.ProductID, item.Quantity); err != nil {
			s.logg.Error(ctx, "sales counter update failed", err)
			s.noteFailure(ctx, order.ID, fmt.Sprintf("sales counter update failed for %s", item.Name), err)
		}
	}

	s.logg.Info(ctx, "order payment confirmed")
	return nil
}

func (s *service) registerFinanceRecord(ctx context.Context, order *models.Order, paidAt time.Time) {
	if order.FinanceRecordID != nil {
		return
	}

	var costOfGoods int64
	itemCount := 0
	for _, item := range order.Items {
		costOfGoods += item.CostPriceKobo * int64(item.Quantity)
		itemCount += item.Quantity
	}

	recordID, err := s.finance.RegisterSale(ctx, farm.SaleRecord{
		OrderNumber:   order.OrderNumber,
		Total:         farm.NairaFromKobo(order.TotalKobo),
		Subtotal:      farm.NairaFromKobo(order.SubtotalKobo),
		ShippingCost:  farm.NairaFromKobo(order.ShippingCostKobo),
		CostOfGoods:   farm.NairaFromKobo(costOfGoods),
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		ItemCount:     itemCount,
		PaymentMethod: string(order.PaymentMethod),
		PaidAt:        paidAt,
	})
	if err != nil {
		s.logg.Error(ctx, "finance registration failed", err)
		s.noteFailure(ctx, order.ID, "finance registration failed", err)
		return
	}

	affected, err := s.repo.SetFinanceRecordID(ctx, order.ID, recordID)
	if err != nil {
		s.logg.Error(ctx, "saving finance record id failed", err)
		s.noteFailure(ctx, order.ID, fmt.Sprintf("finance record %s could not be saved", recordID), err)
		return
	}
	if affected == 0 {
		s.logg.Warn(s.logg.WithField(ctx, "finance_record_id", recordID), "finance record already registered")
	}
}

func (s *service) noteFailure(ctx context.Context, orderID uuid.UUID, msg string, cause error) {
	note := msg
	if cause != nil {
		note = fmt.Sprintf("%s: %v", msg, cause)
	}
	if err := s.repo.AppendAdminNote(ctx, orderID, note); err != nil {
		s.logg.Error(ctx, "appending admin note failed", err)
	}
}

type orderStatusEventData struct {
	OrderNumber string            `json:"orderNumber"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Note        string            `json:"note,omitempty"`
}

type orderPaidEventData struct {
	OrderNumber string    `json:"orderNumber"`
	TotalKobo   int64     `json:"totalKobo"`
	Channel     string    `json:"channel"`
	PaidAt      time.Time `json:"paidAt"`
}
