package farm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/adesolafarms/farmstore-backend/pkg/errors"
)

const (
	apiKeyHeader             = "X-Farm-Api-Key"
	defaultTimeout           = 15 * time.Second
	errorBodyReadLimit int64 = 1024
)

var (
	errBaseURLRequired = errors.New("farm api base url is required")
	errAPIKeyRequired  = errors.New("farm api key is required")

	koboPerNaira = decimal.NewFromInt(100)
)

// Client wraps the Farm inventory/finance HTTP API. The remote system is the
// source of truth for stock; local stock columns are a cache.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout overrides the default HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds the Farm API client.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimSpace(baseURL)
	if trimmedURL == "" {
		return nil, errBaseURLRequired
	}
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		baseURL:    strings.TrimRight(trimmedURL, "/"),
		apiKey:     trimmedKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return client, nil
}

// StockItem references one remote inventory item in a deduct/restore request.
type StockItem struct {
	InventoryItemID string `json:"inventoryItemId"`
	Quantity        int    `json:"quantity"`
	ProductName     string `json:"productName"`
}

// StockItemError is a per-item failure reported by the remote system.
type StockItemError struct {
	Product string `json:"product"`
	Reason  string `json:"reason"`
}

func (e StockItemError) Error() string {
	return fmt.Sprintf("%s: %s", e.Product, e.Reason)
}

// SaleRecord is the finance-registration payload. Money fields are naira
// decimals; the remote finance ledger does not speak minor units.
type SaleRecord struct {
	OrderNumber   string          `json:"orderNumber"`
	Total         decimal.Decimal `json:"total"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	ShippingCost  decimal.Decimal `json:"shippingCost"`
	CostOfGoods   decimal.Decimal `json:"costOfGoods"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	ItemCount     int             `json:"itemCount"`
	PaymentMethod string          `json:"paymentMethod"`
	PaidAt        time.Time       `json:"paidAt"`
}

// PublicProduct is one row of the remote stock listing used for cache resync.
type PublicProduct struct {
	InventoryItemID string `json:"inventoryItemId"`
	Name            string `json:"name"`
	StockQuantity   int    `json:"stockQuantity"`
	Available       bool   `json:"available"`
}

// NairaFromKobo converts a minor-unit amount into the naira decimal the
// Farm finance API expects.
func NairaFromKobo(kobo int64) decimal.Decimal {
	return decimal.NewFromInt(kobo).Div(koboPerNaira)
}

// DeductStock asks the remote system to deduct the given quantities. Per-item
// failures come back as StockItemError values; transport failures as a single
// dependency error.
func (c *Client) DeductStock(ctx context.Context, items []StockItem) ([]StockItemError, error) {
	return c.postStock(ctx, "deduct-stock", items)
}

// RestoreStock asks the remote system to put the given quantities back.
func (c *Client) RestoreStock(ctx context.Context, items []StockItem) ([]StockItemError, error) {
	return c.postStock(ctx, "restore-stock", items)
}

func (c *Client) postStock(ctx context.Context, path string, items []StockItem) ([]StockItemError, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "farm client not configured")
	}
	if len(items) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(struct {
		Items []StockItem `json:"items"`
	}{Items: items})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal stock request")
	}

	resp, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp, path+" request failed")
	}

	var apiResp struct {
		Errors []StockItemError `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+path+" response")
	}
	return apiResp.Errors, nil
}

// RegisterSale records a paid order in the remote finance ledger and returns
// the finance record id. Must be called at most once per order; the caller
// guards with the order's finance record column.
func (c *Client) RegisterSale(ctx context.Context, sale SaleRecord) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "farm client not configured")
	}
	if strings.TrimSpace(sale.OrderNumber) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}

	payload, err := json.Marshal(sale)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal sale record")
	}

	resp, err := c.do(ctx, http.MethodPost, "register-sale", payload)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", c.apiError(resp, "register-sale request failed")
	}

	var apiResp struct {
		FinanceRecordID string `json:"financeRecordId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode register-sale response")
	}
	if strings.TrimSpace(apiResp.FinanceRecordID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "farm api returned no finance record id")
	}
	return apiResp.FinanceRecordID, nil
}

// PublicProducts lists the remote stock levels, paging through with
// offset/limit until the remote returns a short page.
func (c *Client) PublicProducts(ctx context.Context, limit int) ([]PublicProduct, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "farm client not configured")
	}
	if limit <= 0 {
		limit = 100
	}

	var all []PublicProduct
	for offset := 0; ; offset += limit {
		page, err := c.publicProductsPage(ctx, limit, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < limit {
			return all, nil
		}
	}
}

func (c *Client) publicProductsPage(ctx context.Context, limit, offset int) ([]PublicProduct, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	resp, err := c.do(ctx, http.MethodGet, "public-products?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp, "public-products request failed")
	}

	var apiResp struct {
		Products []PublicProduct `json:"products"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode public-products response")
	}
	return apiResp.Products, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+path+" request")
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+path+" request")
	}
	return resp, nil
}

func (c *Client) apiError(resp *http.Response, msg string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), msg)
}
