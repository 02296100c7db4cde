package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/adesolafarms/farmstore-backend/internal/cart"
	"github.com/adesolafarms/farmstore-backend/internal/customers"
	"github.com/adesolafarms/farmstore-backend/internal/inventory"
	"github.com/adesolafarms/farmstore-backend/internal/orders"
	"github.com/adesolafarms/farmstore-backend/internal/payments"
	"github.com/adesolafarms/farmstore-backend/internal/products"
	"github.com/adesolafarms/farmstore-backend/pkg/db/models"
	"github.com/adesolafarms/farmstore-backend/pkg/enums"
	"github.com/adesolafarms/farmstore-backend/pkg/farm"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
	"github.com/adesolafarms/farmstore-backend/pkg/metrics"
	"github.com/adesolafarms/farmstore-backend/pkg/outbox"
	"github.com/adesolafarms/farmstore-backend/pkg/paystack"
)

// The flow tests wire the real services over sqlite and fake remote systems,
// so a checkout and its reconciliation run the same code paths production
// does: conditional claims, outbox emission, stock and stats side effects.

func setupFlowDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  image_url TEXT,
  source TEXT NOT NULL DEFAULT 'catalog',
  farm_ref TEXT,
  price_kobo INTEGER NOT NULL,
  cost_price_kobo INTEGER NOT NULL DEFAULT 0,
  stock_quantity INTEGER NOT NULL DEFAULT 0,
  track_inventory INTEGER NOT NULL DEFAULT 1,
  is_active INTEGER NOT NULL DEFAULT 1,
  unit TEXT NOT NULL DEFAULT 'piece',
  sales_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS customers (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  phone TEXT,
  order_count INTEGER NOT NULL DEFAULT 0,
  total_spent_kobo INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price_kobo INTEGER NOT NULL,
  added_at DATETIME,
  updated_at DATETIME,
  UNIQUE (cart_id, product_id)
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  customer_id TEXT NOT NULL,
  customer_name TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  customer_phone TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  status_history TEXT,
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  payment_method TEXT NOT NULL,
  subtotal_kobo INTEGER NOT NULL,
  shipping_cost_kobo INTEGER NOT NULL DEFAULT 0,
  discount_kobo INTEGER NOT NULL DEFAULT 0,
  total_kobo INTEGER NOT NULL,
  shipping_address TEXT,
  notes TEXT,
  admin_notes TEXT,
  inventory_deducted INTEGER NOT NULL DEFAULT 0,
  finance_record_id TEXT,
  cancellation_reason TEXT,
  paid_at DATETIME,
  shipped_at DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT,
  farm_ref TEXT,
  name TEXT NOT NULL,
  slug TEXT,
  image_url TEXT,
  unit TEXT NOT NULL,
  unit_price_kobo INTEGER NOT NULL,
  cost_price_kobo INTEGER NOT NULL DEFAULT 0,
  quantity INTEGER NOT NULL,
  line_total_kobo INTEGER NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  reference TEXT NOT NULL UNIQUE,
  provider TEXT NOT NULL DEFAULT 'paystack',
  amount_kobo INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'NGN',
  status TEXT NOT NULL DEFAULT 'pending',
  provider_reference TEXT,
  channel TEXT,
  failure_reason TEXT,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}

	// Production ids come from the column default gen_random_uuid(), which
	// sqlite does not have. Assign them client-side instead.
	uuidType := reflect.TypeOf(uuid.UUID{})
	err = db.Callback().Create().Before("gorm:create").Register("assign_uuid_ids", func(tx *gorm.DB) {
		if tx.Statement.Schema == nil {
			return
		}
		field := tx.Statement.Schema.LookUpField("ID")
		if field == nil || field.FieldType != uuidType {
			return
		}
		assign := func(rv reflect.Value) {
			value, zero := field.ValueOf(tx.Statement.Context, rv)
			if id, ok := value.(uuid.UUID); !zero && ok && id != uuid.Nil {
				return
			}
			_ = field.Set(tx.Statement.Context, rv, uuid.New())
		}
		switch rv := tx.Statement.ReflectValue; rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				assign(rv.Index(i))
			}
		case reflect.Struct:
			assign(rv)
		}
	})
	require.NoError(t, err)
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// fakePaystack plays the gateway side of both legs: it records what checkout
// initializes and later verifies that same reference as a successful card
// charge for the initialized amount.
type fakePaystack struct {
	mu         sync.Mutex
	srv        *httptest.Server
	reference  string
	amountKobo int64
	verifies   int
}

func newFakePaystack(t *testing.T) *fakePaystack {
	t.Helper()
	fake := &fakePaystack{}

	mux := http.NewServeMux()
	mux.HandleFunc("/transaction/initialize", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Email     string `json:"email"`
			Amount    int64  `json:"amount"`
			Reference string `json:"reference"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fake.mu.Lock()
		fake.reference = req.Reference
		fake.amountKobo = req.Amount
		fake.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.test/%s","access_code":"acc_%s","reference":"%s"}}`,
			req.Reference, req.Reference, req.Reference)
	})
	mux.HandleFunc("/transaction/verify/", func(w http.ResponseWriter, r *http.Request) {
		reference := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
		fake.mu.Lock()
		known := reference == fake.reference
		amount := fake.amountKobo
		fake.verifies++
		fake.mu.Unlock()
		if !known {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":true,"data":{"id":90210,"status":"success","amount":%d,"currency":"NGN","gateway_response":"Successful","channel":"card","paid_at":"%s"}}`,
			amount, time.Now().UTC().Format(time.RFC3339))
	})

	fake.srv = httptest.NewServer(mux)
	t.Cleanup(fake.srv.Close)
	return fake
}

// fakeFarm answers the remote stock and finance endpoints, recording deduct
// calls so the test can assert exactly-once remote effects.
type fakeFarm struct {
	mu       sync.Mutex
	srv      *httptest.Server
	deducts  [][]farm.StockItem
	saleRefs []string
}

func newFakeFarm(t *testing.T) *fakeFarm {
	t.Helper()
	fake := &fakeFarm{}

	mux := http.NewServeMux()
	mux.HandleFunc("/deduct-stock", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Items []farm.StockItem `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fake.mu.Lock()
		fake.deducts = append(fake.deducts, req.Items)
		fake.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"errors":[]}`)
	})
	mux.HandleFunc("/register-sale", func(w http.ResponseWriter, r *http.Request) {
		var sale farm.SaleRecord
		if err := json.NewDecoder(r.Body).Decode(&sale); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fake.mu.Lock()
		fake.saleRefs = append(fake.saleRefs, sale.OrderNumber)
		fake.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"financeRecordId":"fin_0001"}`)
	})

	fake.srv = httptest.NewServer(mux)
	t.Cleanup(fake.srv.Close)
	return fake
}

type flowEnv struct {
	db        *gorm.DB
	carts     cart.Repository
	orders    orders.Repository
	products  products.Repository
	customers customers.Repository
	txns      payments.Repository
	checkout  *Service
	payments  *payments.Service
	gateway   *fakePaystack
	farm      *fakeFarm
}

func newFlowEnv(t *testing.T) *flowEnv {
	t.Helper()

	db := setupFlowDB(t)
	logg := logger.New(logger.Options{ServiceName: "flow-test"})
	runner := gormTxRunner{db: db}

	cartRepo := cart.NewRepository(db)
	productRepo := products.NewRepository(db)
	customerRepo := customers.NewRepository(db)
	orderRepo := orders.NewRepository(db)
	txnRepo := payments.NewRepository(db)
	events := outbox.NewService(outbox.NewRepository(db), logg)

	gatewayFake := newFakePaystack(t)
	farmFake := newFakeFarm(t)

	paystackClient, err := paystack.NewClient("sk_test_flow", paystack.WithBaseURL(gatewayFake.srv.URL))
	require.NoError(t, err)
	farmClient, err := farm.NewClient(farmFake.srv.URL, "flow-test-key")
	require.NoError(t, err)

	invSvc, err := inventory.NewService(orderRepo, productRepo, farmClient, logg)
	require.NoError(t, err)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orderRepo,
		Tx:        runner,
		Inventory: invSvc,
		Finance:   farmClient,
		Customers: customerRepo,
		Products:  productRepo,
		Events:    events,
		Logger:    logg,
	})
	require.NoError(t, err)

	paySvc, err := payments.NewService(payments.ServiceParams{
		Repo:    txnRepo,
		Gateway: paystackClient,
		Orders:  orderSvc,
		Tx:      runner,
		Events:  events,
		Metrics: metrics.NewReconcilerMetrics(prometheus.NewRegistry()),
		Logger:  logg,
	})
	require.NoError(t, err)

	checkoutSvc, err := NewService(ServiceParams{
		Tx:           runner,
		Carts:        cartRepo,
		Catalog:      productRepo,
		Customers:    customerRepo,
		Orders:       orderRepo,
		Transactions: txnRepo,
		Gateway:      paystackClient,
		Events:       events,
		Logger:       logg,
		ShippingKobo: 0,
		CallbackURL:  "https://store.example/checkout/callback",
	})
	require.NoError(t, err)

	return &flowEnv{
		db:        db,
		carts:     cartRepo,
		orders:    orderRepo,
		products:  productRepo,
		customers: customerRepo,
		txns:      txnRepo,
		checkout:  checkoutSvc,
		payments:  paySvc,
		gateway:   gatewayFake,
		farm:      farmFake,
	}
}

func TestCheckoutThenVerifyConfirmsOrderEndToEnd(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	farmRef := "inv-item-" + uuid.NewString()[:8]
	product := &models.Product{
		Name:           "Yam Tubers",
		Slug:           "yam-tubers-" + uuid.NewString()[:8],
		Source:         enums.ProductSourceInventory,
		FarmRef:        &farmRef,
		PriceKobo:      1000,
		CostPriceKobo:  600,
		StockQuantity:  5,
		TrackInventory: true,
		IsActive:       true,
		Unit:           enums.ProductUnitPiece,
	}
	require.NoError(t, env.db.Create(product).Error)

	customer := &models.Customer{
		Name:  "Ngozi Adeyemi",
		Email: "ngozi-" + uuid.NewString()[:8] + "@example.com",
		Phone: "+2348012345678",
	}
	require.NoError(t, env.db.Create(customer).Error)

	cartRow := &models.Cart{CustomerID: customer.ID}
	require.NoError(t, env.db.Create(cartRow).Error)
	require.NoError(t, env.db.Create(&models.CartItem{
		CartID:        cartRow.ID,
		ProductID:     product.ID,
		Quantity:      2,
		UnitPriceKobo: product.PriceKobo,
	}).Error)

	result, err := env.checkout.Checkout(ctx, customer.ID, Input{
		ShippingAddress: validAddress(),
		PaymentMethod:   "paystack",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Payment)
	assert.Equal(t, int64(2000), result.Order.TotalKobo)
	assert.Equal(t, enums.OrderStatusPending, result.Order.Status)

	// Checkout froze the order and emptied the cart; nothing is paid yet.
	cartAfter, err := env.carts.FindByCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Empty(t, cartAfter.Items)

	pendingTxn, err := env.txns.FindByReference(ctx, result.Payment.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPending, pendingTxn.Status)
	assert.Equal(t, int64(2000), pendingTxn.AmountKobo)

	settled, err := env.payments.Reconcile(ctx, result.Payment.Reference, payments.ChannelVerify)
	require.NoError(t, err)
	assert.True(t, settled.Succeeded())
	assert.False(t, settled.AlreadyVerified)
	assert.Equal(t, result.Order.ID, settled.OrderID)

	order, err := env.orders.FindByID(ctx, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)
	assert.True(t, order.InventoryDeducted)
	require.NotNil(t, order.PaidAt)
	require.NotNil(t, order.FinanceRecordID)
	assert.Equal(t, "fin_0001", *order.FinanceRecordID)

	productAfter, err := env.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, productAfter.StockQuantity)
	assert.Equal(t, 2, productAfter.SalesCount)

	customerAfter, err := env.customers.FindByID(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, customerAfter.OrderCount)
	assert.Equal(t, int64(2000), customerAfter.TotalSpentKobo)

	env.farm.mu.Lock()
	deducts := env.farm.deducts
	sales := env.farm.saleRefs
	env.farm.mu.Unlock()
	require.Len(t, deducts, 1)
	require.Len(t, deducts[0], 1)
	assert.Equal(t, farmRef, deducts[0][0].InventoryItemID)
	assert.Equal(t, 2, deducts[0][0].Quantity)
	assert.Equal(t, []string{order.OrderNumber}, sales)
}

func TestCheckoutThenVerifyIsIdempotentAcrossChannels(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	product := &models.Product{
		Name:           "Fresh Catfish",
		Slug:           "fresh-catfish-" + uuid.NewString()[:8],
		Source:         enums.ProductSourceCatalog,
		PriceKobo:      3500,
		StockQuantity:  10,
		TrackInventory: true,
		IsActive:       true,
		Unit:           enums.ProductUnitKg,
	}
	require.NoError(t, env.db.Create(product).Error)

	customer := &models.Customer{
		Name:  "Tunde Bakare",
		Email: "tunde-" + uuid.NewString()[:8] + "@example.com",
	}
	require.NoError(t, env.db.Create(customer).Error)

	cartRow := &models.Cart{CustomerID: customer.ID}
	require.NoError(t, env.db.Create(cartRow).Error)
	require.NoError(t, env.db.Create(&models.CartItem{
		CartID:        cartRow.ID,
		ProductID:     product.ID,
		Quantity:      1,
		UnitPriceKobo: product.PriceKobo,
	}).Error)

	result, err := env.checkout.Checkout(ctx, customer.ID, Input{
		ShippingAddress: validAddress(),
		PaymentMethod:   "paystack",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Payment)

	first, err := env.payments.Reconcile(ctx, result.Payment.Reference, payments.ChannelVerify)
	require.NoError(t, err)
	require.True(t, first.Succeeded())
	require.False(t, first.AlreadyVerified)

	// The webhook lands after the redirect already settled the charge. It
	// must observe the terminal transaction and run no side effects again.
	second, err := env.payments.Reconcile(ctx, result.Payment.Reference, payments.ChannelWebhook)
	require.NoError(t, err)
	assert.True(t, second.Succeeded())
	assert.True(t, second.AlreadyVerified)

	env.gateway.mu.Lock()
	verifies := env.gateway.verifies
	env.gateway.mu.Unlock()
	assert.Equal(t, 1, verifies)

	productAfter, err := env.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, productAfter.StockQuantity)
	assert.Equal(t, 1, productAfter.SalesCount)

	customerAfter, err := env.customers.FindByID(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, customerAfter.OrderCount)
	assert.Equal(t, int64(3500), customerAfter.TotalSpentKobo)
}
