package checkout

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adesolafarms/farmstore-backend/internal/orders"
	"github.com/adesolafarms/farmstore-backend/internal/payments"
	"github.com/adesolafarms/farmstore-backend/pkg/db"
	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
	"github.com/adesolafarms/farmstore-backend/pkg/enums"
	pkgerrors "github.com/adesolafarms/farmstore-backend/pkg/errors"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
	"github.com/adesolafarms/farmstore-backend/pkg/outbox"
	"github.com/adesolafarms/farmstore-backend/pkg/paystack"
	"github.com/adesolafarms/farmstore-backend/pkg/types"
)

const orderNumberAttempts = 5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartStore interface {
	FindByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Cart, error)
	ClearItems(ctx context.Context, cartID uuid.UUID) error
}

type catalog interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type customerLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

type gateway interface {
	Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResult, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Input is the checkout request after body validation.
type Input struct {
	ShippingAddress types.Address
	PaymentMethod   string
	Notes           string
}

// PaymentSession points the customer at the hosted payment page.
type PaymentSession struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// Result is the created order plus the payment session when the chosen
// method goes through the gateway.
type Result struct {
	Order   *models.Order
	Payment *PaymentSession
}

// Service turns a validated cart into an immutable order and, for gateway
// methods, a pending payment transaction.
type Service struct {
	tx          txRunner
	carts       cartStore
	catalog     catalog
	customers   customerLoader
	orders      orders.Repository
	txns        payments.Repository
	gateway     gateway
	events      eventEmitter
	logg        *logger.Logger
	shipping    int64
	callbackURL string
}

// ServiceParams collects the collaborators checkout needs.
type ServiceParams struct {
	Tx           txRunner
	Carts        cartStore
	Catalog      catalog
	Customers    customerLoader
	Orders       orders.Repository
	Transactions payments.Repository
	Gateway      gateway
	Events       eventEmitter
	Logger       *logger.Logger
	ShippingKobo int64
	CallbackURL  string
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customer loader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.ShippingKobo < 0 {
		return nil, fmt.Errorf("shipping cost must not be negative")
	}
	return &Service{
		tx:          params.Tx,
		carts:       params.Carts,
		catalog:     params.Catalog,
		customers:   params.Customers,
		orders:      params.Orders,
		txns:        params.Transactions,
		gateway:     params.Gateway,
		events:      params.Events,
		logg:        params.Logger,
		shipping:    params.ShippingKobo,
		callbackURL: params.CallbackURL,
	}, nil
}

// Checkout validates the customer's cart, builds the order, and opens a
// hosted payment session for gateway methods. Gateway failures leave the
// order Pending and the cart intact so the customer can retry.
func (s *Service) Checkout(ctx context.Context, customerID uuid.UUID, input Input) (*Result, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}

	method, err := enums.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	address := input.ShippingAddress
	if err := address.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}

	customer, err := s.customers.FindByID(ctx, customerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load customer")
	}

	cart, err := s.carts.FindByCustomer(ctx, customerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if len(cart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}

	resolved, unavailable := resolveLines(cart.Items, products)
	if len(unavailable) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnavailable, "some items are unavailable").
			WithDetails(unavailable)
	}
	if len(resolved) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	order, err := s.createOrder(ctx, customer, method, address, input.Notes, resolved)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderNumber(ctx, order.OrderNumber)

	result := &Result{Order: order}
	if method.RequiresGateway() {
		session, err := s.initializePayment(ctx, customer, order)
		if err != nil {
			// The order stays Pending and the cart untouched; a
			// re-checkout can retry the gateway.
			return nil, err
		}
		result.Payment = session
	}

	if err := s.carts.ClearItems(ctx, cart.ID); err != nil {
		s.logg.Error(ctx, "clearing cart after checkout failed", err)
	}

	s.logg.Info(ctx, "checkout completed")
	return result, nil
}

func (s *Service) createOrder(ctx context.Context, customer *models.Customer, method enums.PaymentMethod, address types.Address, notes string, lines []ResolvedLine) (*models.Order, error) {
	var subtotal int64
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		product := line.Product
		productID := product.ID
		items = append(items, models.OrderItem{
			ProductID:     &productID,
			FarmRef:       product.FarmRef,
			Name:          product.Name,
			Slug:          product.Slug,
			ImageURL:      product.ImageURL,
			Unit:          product.Unit,
			UnitPriceKobo: product.PriceKobo,
			CostPriceKobo: product.CostPriceKobo,
			Quantity:      line.Quantity,
			LineTotalKobo: line.LineTotalKobo,
		})
		subtotal += line.LineTotalKobo
	}

	now := time.Now().UTC()
	order := &models.Order{
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		CustomerPhone: customer.Phone,
		Status:        enums.OrderStatusPending,
		StatusHistory: types.StatusHistory{{
			Status: enums.OrderStatusPending,
			Note:   "order created",
			Actor:  "customer",
			At:     now,
		}},
		PaymentStatus:    enums.PaymentStatusUnpaid,
		PaymentMethod:    method,
		SubtotalKobo:     subtotal,
		ShippingCostKobo: s.shipping,
		TotalKobo:        subtotal + s.shipping,
		ShippingAddress:  address,
		Items:            items,
	}
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		order.Notes = &trimmed
	}

	// The random suffix can collide; retry with a fresh number rather than
	// failing the checkout.
	var created *models.Order
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = newOrderNumber(now)
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.orders.WithTx(tx)
			saved, err := repo.Create(ctx, order)
			if err != nil {
				return err
			}
			created = saved
			return s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   saved.ID,
				Actor:         &outbox.ActorRef{CustomerID: customer.ID.String(), Role: "customer"},
				Data: orderCreatedEventData{
					OrderNumber: saved.OrderNumber,
					TotalKobo:   saved.TotalKobo,
					ItemCount:   len(saved.Items),
				},
			})
		})
		if err == nil {
			return created, nil
		}
		if db.IsUniqueViolation(err, "ux_orders_order_number") {
			order.ID = uuid.Nil
			continue
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a unique order number")
}

// initializePayment opens the hosted session and persists the Pending
// transaction before the session URL is handed to the caller. A gateway
// failure leaves no transaction behind.
func (s *Service) initializePayment(ctx context.Context, customer *models.Customer, order *models.Order) (*PaymentSession, error) {
	reference := newReference(order.ID)

	session, err := s.gateway.Initialize(ctx, paystack.InitializeRequest{
		Email:       customer.Email,
		AmountKobo:  order.TotalKobo,
		Currency:    "NGN",
		Reference:   reference,
		CallbackURL: s.callbackURL,
		Metadata: map[string]string{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
		},
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			return nil, appErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "initialize payment")
	}

	_, err = s.txns.Create(ctx, &models.Transaction{
		OrderID:    order.ID,
		Reference:  reference,
		Provider:   "paystack",
		AmountKobo: order.TotalKobo,
		Currency:   "NGN",
		Status:     enums.TransactionStatusPending,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment transaction")
	}

	return &PaymentSession{
		AuthorizationURL: session.AuthorizationURL,
		AccessCode:       session.AccessCode,
		Reference:        reference,
	}, nil
}

// newOrderNumber is ORD-yyyymmdd plus a random hex suffix.
func newOrderNumber(now time.Time) string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		// Fall back to the clock; the unique index still catches collisions.
		return fmt.Sprintf("ORD-%s-%06X", now.Format("20060102"), now.UnixNano()&0xFFFFFF)
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(buf)))
}

// newReference ties the gateway reference to the order: txn_<orderID>_<unix>.
func newReference(orderID uuid.UUID) string {
	return fmt.Sprintf("txn_%s_%d", orderID, time.Now().Unix())
}

type orderCreatedEventData struct {
	OrderNumber string `json:"orderNumber"`
	TotalKobo   int64  `json:"totalKobo"`
	ItemCount   int    `json:"itemCount"`
}
