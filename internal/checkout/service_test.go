package checkout

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adesolafarms/farmstore-backend/internal/orders"
	"github.com/adesolafarms/farmstore-backend/internal/payments"
	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
	"github.com/adesolafarms/farmstore-backend/pkg/enums"
	pkgerrors "github.com/adesolafarms/farmstore-backend/pkg/errors"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
	"github.com/adesolafarms/farmstore-backend/pkg/outbox"
	"github.com/adesolafarms/farmstore-backend/pkg/pagination"
	"github.com/adesolafarms/farmstore-backend/pkg/paystack"
	"github.com/adesolafarms/farmstore-backend/pkg/types"
)

func validAddress() types.Address {
	return types.Address{Street: "12 Unity Road", City: "Ibadan", State: "Oyo"}
}

type fixture struct {
	customerID uuid.UUID
	carts      *stubCarts
	catalog    stubCatalog
	orders     *stubOrderRepo
	txns       *stubTxnRepo
	gateway    *stubGateway
	svc        *Service
}

func newFixture(t *testing.T, products ...models.Product) *fixture {
	t.Helper()

	f := &fixture{
		customerID: uuid.New(),
		carts:      &stubCarts{},
		catalog:    stubCatalog{},
		orders:     &stubOrderRepo{},
		txns:       &stubTxnRepo{},
		gateway:    &stubGateway{},
	}
	for _, p := range products {
		f.catalog[p.ID] = p
	}

	customer := &models.Customer{
		ID:    f.customerID,
		Name:  "Ada Obi",
		Email: "ada@example.com",
	}

	svc, err := NewService(ServiceParams{
		Tx:      stubTxRunner{},
		Carts:   f.carts,
		Catalog: f.catalog,
		Customers: customerLoaderFunc(func(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
			if id != customer.ID {
				return nil, gorm.ErrRecordNotFound
			}
			return customer, nil
		}),
		Orders:       f.orders,
		Transactions: f.txns,
		Gateway:      f.gateway,
		Events:       stubEmitter{},
		Logger:       logger.New(logger.Options{ServiceName: "test"}),
		ShippingKobo: 50000,
		CallbackURL:  "https://shop.test/payment/verify",
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) seedCart(items ...models.CartItem) {
	cart := &models.Cart{ID: uuid.New(), CustomerID: f.customerID, Items: items}
	f.carts.cart = cart
}

func TestCheckoutEmptyCartRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Checkout(context.Background(), f.customerID, Input{
		ShippingAddress: validAddress(),
		PaymentMethod:   "paystack",
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.orders.created != nil {
		t.Fatal("no order must be created for an empty cart")
	}
}

func TestCheckoutInsufficientStockBlocksWholeOrder(t *testing.T) {
	t.Parallel()

	inStock := models.Product{ID: uuid.New(), Name: "Eggs", PriceKobo: 100000, StockQuantity: 10, TrackInventory: true, IsActive: true}
	short := models.Product{ID: uuid.New(), Name: "Broilers", PriceKobo: 500000, StockQuantity: 1, TrackInventory: true, IsActive: true}
	f := newFixture(t, inStock, short)
	f.seedCart(
		models.CartItem{ProductID: inStock.ID, Quantity: 2},
		models.CartItem{ProductID: short.ID, Quantity: 3},
	)

	_, err := f.svc.Checkout(context.Background(), f.customerID, Input{
		ShippingAddress: validAddress(),
		PaymentMethod:   "paystack",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeUnavailable {
		t.Fatalf("unexpected error: %v", err)
	}
	lines, ok := typed.Details().([]UnavailableLine)
	if !ok || len(lines) != 1 {
		t.Fatalf("expected one unavailable line, got %v", typed.Details())
	}
	if lines[0].ProductID != short.ID || lines[0].Requested != 3 || lines[0].Available != 1 {
		t.Fatalf("unexpected line detail %+v", lines[0])
	}
	if f.orders.created != nil {
		t.Fatal("checkout must be all-or-nothing")
	}
}

func TestCheckoutDropsVanishedAndInactiveLines(t *testing.T) {
	t.Parallel()

	active := models.Product{ID: uuid.New(), Name: "Eggs", PriceKobo: 120000, StockQuantity: 10, TrackInventory: true, IsActive: true}
	inactive := models.Product{ID: uuid.New(), Name: "Old", PriceKobo: 100, IsActive: false}
	f := newFixture(t, active, inactive)
	f.seedCart(
		models.CartItem{ProductID: active.ID, Quantity: 2, UnitPriceKobo: 100000},
		models.CartItem{ProductID: inactive.ID, Quantity: 1},
		models.CartItem{ProductID: uuid.New(), Quantity: 1},
	)

	result, err := f.svc.Checkout(context.Background(), f.customerID, Input{
		ShippingAddress: validAddress(),
		PaymentMethod:   "cash_on_delivery",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order := result.Order
	if len(order.Items) != 1 {
		t.Fatalf("expected one surviving line, got %d", len(order.Items))
	}
	// Current catalog price wins over the stale cart snapshot.
	if order.Items[0].UnitPriceKobo != 120000 {
		t.Fatalf("expected current price snapshot, got %d", order.Items[0].UnitPriceKobo)
	}
	if order.SubtotalKobo != 240000 || order.TotalKobo != 290000 {
		t.Fatalf("unexpected totals subtotal=%d total=%d", order.SubtotalKobo, order.TotalKobo)
	}
}

func TestCheckoutPaystackHappyPath(t *testing.T) {
	t.Parallel()

	product := models.Product{ID: uuid.New(), Name: "Eggs", PriceKobo: 100000, StockQuantity: 5, TrackInventory: true, IsActive: true}
	f := newFixture(t, product)
	f.seedCart(models.CartItem{ProductID: product.ID, Quantity: 2})

	result, err := f.svc.Checkout(context.Background(), f.customerID, Input{
		ShippingAddress: validAddress(),
		PaymentMethod:   "Paystack",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := result.Order
	if order.Status != enums.OrderStatusPending || order.PaymentStatus != enums.PaymentStatusUnpaid {
		t.Fatalf("unexpected order state %s/%s", order.Status, order.PaymentStatus)
	}
	if !strings.HasPrefix(order.OrderNumber, "ORD-") {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if len(order.StatusHistory) != 1 || order.StatusHistory[0].Status != enums.OrderStatusPending {
		t.Fatalf("expected initial pending history entry, got %+v", order.StatusHistory)
	}

	if result.Payment == nil {
		t.Fatal("expected payment session")
	}
	if result.Payment.AuthorizationURL != "https://checkout.paystack.com/abc" {
		t.Fatalf("unexpected session url %q", result.Payment.AuthorizationURL)
	}
	if !strings.HasPrefix(result.Payment.Reference, "txn_"+order.ID.String()+"_") {
		t.Fatalf("reference must be tied to the order, got %q", result.Payment.Reference)
	}

	txn := f.txns.created
	if txn == nil {
		t.Fatal("expected pending transaction row")
	}
	if txn.Status != enums.TransactionStatusPending || txn.AmountKobo != order.TotalKobo {
		t.Fatalf("unexpected transaction %+v", txn)
	}
	if f.gateway.lastReq.AmountKobo != order.TotalKobo {
		t.Fatalf("gateway amount %d does not match order total %d", f.gateway.lastReq.AmountKobo, order.TotalKobo)
	}
	if !f.carts.cleared {
		t.Fatal("cart must be emptied after successful checkout")
	}
}

func TestCheckoutGatewayFailureLeavesNoTransaction(t *testing.T) {
	t.Parallel()

	product := models.Product{ID: uuid.New(), Name: "Eggs", PriceKobo: 100000, StockQuantity: 5, TrackInventory: true, IsActive: true}
	f := newFixture(t, product)
	f.seedCart(models.CartItem{ProductID: product.ID, Quantity: 1})
	f.gateway.err = errors.New("gateway unreachable")

	_, err := f.svc.Checkout(context.Background(), f.customerID, Input{
		ShippingAddress: validAddress(),
		PaymentMethod:   "paystack",
	})
	if err == nil {
		t.Fatal("expected error when the gateway fails")
	}
	if f.txns.created != nil {
		t.Fatal("no transaction row may exist after a failed initialize")
	}
	if f.orders.created == nil || f.orders.created.Status != enums.OrderStatusPending {
		t.Fatal("order must remain pending and recoverable")
	}
	if f.carts.cleared {
		t.Fatal("cart must stay intact so the customer can retry")
	}
}

func TestCheckoutCashOnDeliverySkipsGateway(t *testing.T) {
	t.Parallel()

	product := models.Product{ID: uuid.New(), Name: "Eggs", PriceKobo: 100000, StockQuantity: 5, TrackInventory: true, IsActive: true}
	f := newFixture(t, product)
	f.seedCart(models.CartItem{ProductID: product.ID, Quantity: 1})

	result, err := f.svc.Checkout(context.Background(), f.customerID, Input{
		ShippingAddress: validAddress(),
		PaymentMethod:   "cash_on_delivery",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Payment != nil {
		t.Fatal("no payment session expected for cash on delivery")
	}
	if f.gateway.calls != 0 {
		t.Fatal("gateway must not be called for offline methods")
	}
	if !f.carts.cleared {
		t.Fatal("cart must be emptied after checkout")
	}
}

func TestCheckoutRetriesOrderNumberCollision(t *testing.T) {
	t.Parallel()

	product := models.Product{ID: uuid.New(), Name: "Eggs", PriceKobo: 100000, StockQuantity: 5, TrackInventory: true, IsActive: true}
	f := newFixture(t, product)
	f.seedCart(models.CartItem{ProductID: product.ID, Quantity: 1})
	f.orders.conflicts = 2

	result, err := f.svc.Checkout(context.Background(), f.customerID, Input{
		ShippingAddress: validAddress(),
		PaymentMethod:   "cash_on_delivery",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.orders.attempts != 3 {
		t.Fatalf("expected 3 create attempts, got %d", f.orders.attempts)
	}
	if result.Order == nil {
		t.Fatal("expected order after retries")
	}
}

func TestResolveLinesValidatorRules(t *testing.T) {
	t.Parallel()

	tracked := models.Product{ID: uuid.New(), Name: "Eggs", PriceKobo: 1000, StockQuantity: 2, TrackInventory: true, IsActive: true}
	untracked := models.Product{ID: uuid.New(), Name: "Service", PriceKobo: 500, StockQuantity: 0, TrackInventory: false, IsActive: true}
	catalog := map[uuid.UUID]models.Product{tracked.ID: tracked, untracked.ID: untracked}

	resolved, unavailable := resolveLines([]models.CartItem{
		{ProductID: tracked.ID, Quantity: 2},
		{ProductID: untracked.ID, Quantity: 10},
	}, catalog)
	if len(unavailable) != 0 {
		t.Fatalf("unexpected unavailable lines %+v", unavailable)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected both lines resolved, got %d", len(resolved))
	}

	_, unavailable = resolveLines([]models.CartItem{
		{ProductID: tracked.ID, Quantity: 3},
	}, catalog)
	if len(unavailable) != 1 || unavailable[0].Available != 2 {
		t.Fatalf("expected stock shortfall, got %+v", unavailable)
	}
}

type customerLoaderFunc func(ctx context.Context, id uuid.UUID) (*models.Customer, error)

func (f customerLoaderFunc) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return f(ctx, id)
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubEmitter struct{}

func (stubEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	return nil
}

type stubCarts struct {
	cart    *models.Cart
	cleared bool
}

func (s *stubCarts) FindByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Cart, error) {
	if s.cart == nil || s.cart.CustomerID != customerID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.cart, nil
}

func (s *stubCarts) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	s.cleared = true
	return nil
}

type stubCatalog map[uuid.UUID]models.Product

func (s stubCatalog) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	result := map[uuid.UUID]models.Product{}
	for _, id := range ids {
		if p, ok := s[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

type stubGateway struct {
	err     error
	calls   int
	lastReq paystack.InitializeRequest
}

func (s *stubGateway) Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResult, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &paystack.InitializeResult{
		AuthorizationURL: "https://checkout.paystack.com/abc",
		AccessCode:       "abc",
		Reference:        req.Reference,
	}, nil
}

// stubOrderRepo implements orders.Repository; checkout only exercises Create.
type stubOrderRepo struct {
	created   *models.Order
	attempts  int
	conflicts int
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	s.attempts++
	if s.conflicts > 0 {
		s.conflicts--
		return nil, errors.New(`duplicate key value violates unique constraint "ux_orders_order_number"`)
	}
	order.ID = uuid.New()
	order.CreatedAt = time.Now().UTC()
	s.created = order
	return order, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrderRepo) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrderRepo) List(ctx context.Context, params pagination.Params, filters orders.ListFilters) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (s *stubOrderRepo) UpdateWhereStatus(ctx context.Context, id uuid.UUID, current enums.OrderStatus, updates map[string]any) (int64, error) {
	return 0, nil
}

func (s *stubOrderRepo) ClaimPaid(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error) {
	return 0, nil
}

func (s *stubOrderRepo) ClaimInventoryDeducted(ctx context.Context, id uuid.UUID) (int64, error) {
	return 0, nil
}

func (s *stubOrderRepo) ResetInventoryDeducted(ctx context.Context, id uuid.UUID) error { return nil }

func (s *stubOrderRepo) ClearInventoryDeducted(ctx context.Context, id uuid.UUID) (int64, error) {
	return 0, nil
}

func (s *stubOrderRepo) SetFinanceRecordID(ctx context.Context, id uuid.UUID, financeRecordID string) (int64, error) {
	return 0, nil
}

func (s *stubOrderRepo) AppendAdminNote(ctx context.Context, id uuid.UUID, note string) error {
	return nil
}

type stubTxnRepo struct {
	created *models.Transaction
}

func (s *stubTxnRepo) WithTx(tx *gorm.DB) payments.Repository { return s }

func (s *stubTxnRepo) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	txn.ID = uuid.New()
	s.created = txn
	return txn, nil
}

func (s *stubTxnRepo) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubTxnRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubTxnRepo) ClaimSuccess(ctx context.Context, id uuid.UUID, updates map[string]any) (int64, error) {
	return 0, nil
}

func (s *stubTxnRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (int64, error) {
	return 0, nil
}
