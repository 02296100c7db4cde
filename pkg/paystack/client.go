package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/adesolafarms/farmstore-backend/pkg/errors"
)

const (
	defaultBaseURL           = "https://api.paystack.co"
	defaultTimeout           = 15 * time.Second
	errorBodyReadLimit int64 = 1024
	successTxnStatus         = "success"
)

var errSecretKeyRequired = errors.New("paystack secret key is required")

// Client wraps the Paystack transaction APIs used for checkout.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
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

// WithBaseURL overrides the configured Paystack base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
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

// NewClient builds the Paystack client given a secret key.
func NewClient(secretKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(secretKey)
	if trimmedKey == "" {
		return nil, errSecretKeyRequired
	}

	client := &Client{
		secretKey:  trimmedKey,
		baseURL:    defaultBaseURL,
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
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// SigningSecret returns the key used by Paystack to sign webhook payloads.
// Paystack signs with the account secret key, not a separate webhook secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.secretKey
}

// InitializeRequest is the payload for opening a hosted payment session.
type InitializeRequest struct {
	Email       string            `json:"email"`
	AmountKobo  int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// InitializeResult holds the hosted session handles returned by Paystack.
type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResult is the gateway's authoritative record for a reference.
type VerifyResult struct {
	ProviderID      int64
	Status          string
	AmountKobo      int64
	Currency        string
	GatewayResponse string
	Channel         string
	PaidAt          *time.Time
}

// Succeeded reports whether the gateway considers the charge successful.
func (r VerifyResult) Succeeded() bool {
	return strings.EqualFold(r.Status, successTxnStatus)
}

// Initialize opens a hosted payment session for the given reference.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paystack client not configured")
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer email is required")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}
	if req.AmountKobo <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal initialize request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("transaction/initialize"), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build initialize request")
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute initialize request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp, "initialize request failed")
	}

	var apiResp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode initialize response")
	}
	if !apiResp.Status {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("paystack rejected initialize: %s", apiResp.Message))
	}
	if strings.TrimSpace(apiResp.Data.AuthorizationURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paystack returned no authorization url")
	}

	return &InitializeResult{
		AuthorizationURL: apiResp.Data.AuthorizationURL,
		AccessCode:       apiResp.Data.AccessCode,
		Reference:        apiResp.Data.Reference,
	}, nil
}

// Verify queries Paystack for the authoritative status of a reference.
// Safe to call any number of times for the same reference.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paystack client not configured")
	}
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL("transaction/verify/"+url.PathEscape(trimmed)), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build verify request")
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute verify request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reference not found at gateway")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp, "verify request failed")
	}

	var apiResp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			ID              int64  `json:"id"`
			Status          string `json:"status"`
			Amount          int64  `json:"amount"`
			Currency        string `json:"currency"`
			GatewayResponse string `json:"gateway_response"`
			Channel         string `json:"channel"`
			PaidAt          string `json:"paid_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode verify response")
	}
	if !apiResp.Status {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("paystack rejected verify: %s", apiResp.Message))
	}

	result := &VerifyResult{
		ProviderID:      apiResp.Data.ID,
		Status:          apiResp.Data.Status,
		AmountKobo:      apiResp.Data.Amount,
		Currency:        apiResp.Data.Currency,
		GatewayResponse: apiResp.Data.GatewayResponse,
		Channel:         apiResp.Data.Channel,
	}
	if paidAt := strings.TrimSpace(apiResp.Data.PaidAt); paidAt != "" {
		if ts, err := time.Parse(time.RFC3339, paidAt); err == nil {
			result.PaidAt = &ts
		}
	}

	return result, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) buildURL(path string) string {
	return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) apiError(resp *http.Response, msg string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), msg)
}
