package farm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestClientDeductStockRequest(t *testing.T) {
	const expectedURL = "http://farm.test/api/deduct-stock"
	respBody := `{"errors":[{"product":"Day-Old Chicks","reason":"insufficient stock"}]}`

	var capturedURL string
	var capturedHeaders http.Header

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedHeaders = req.Header.Clone()

		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		var payload struct {
			Items []StockItem `json:"items"`
		}
		if err := json.Unmarshal(bodyBytes, &payload); err != nil {
			t.Fatalf("unmarshal request body: %v", err)
		}
		if len(payload.Items) != 1 || payload.Items[0].InventoryItemID != "inv_1" || payload.Items[0].Quantity != 2 {
			t.Fatalf("unexpected items %+v", payload.Items)
		}

		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("http://farm.test/api", "farm-secret", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	itemErrs, err := client.DeductStock(context.Background(), []StockItem{
		{InventoryItemID: "inv_1", Quantity: 2, ProductName: "Day-Old Chicks"},
	})
	if err != nil {
		t.Fatalf("deduct stock: %v", err)
	}
	if capturedURL != expectedURL {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedHeaders.Get("X-Farm-Api-Key") != "farm-secret" {
		t.Fatalf("api key header missing")
	}
	if len(itemErrs) != 1 || itemErrs[0].Reason != "insufficient stock" {
		t.Fatalf("unexpected item errors %+v", itemErrs)
	}
}

func TestClientDeductStockEmptyItemsSkipsCall(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected for empty item list")
		return nil, nil
	})

	client, err := NewClient("http://farm.test", "farm-secret", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	itemErrs, err := client.DeductStock(context.Background(), nil)
	if err != nil {
		t.Fatalf("deduct stock: %v", err)
	}
	if itemErrs != nil {
		t.Fatalf("expected no item errors, got %+v", itemErrs)
	}
}

func TestClientRegisterSaleRequest(t *testing.T) {
	respBody := `{"financeRecordId":"fin_789"}`

	var capturedBody []byte

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		var err error
		capturedBody, err = io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusCreated,
			Body:       io.NopCloser(strings.NewReader(respBody)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("http://farm.test", "farm-secret", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	recordID, err := client.RegisterSale(context.Background(), SaleRecord{
		OrderNumber:   "ORD-20260301-4F7A2B",
		Total:         NairaFromKobo(250000),
		Subtotal:      NairaFromKobo(200000),
		ShippingCost:  NairaFromKobo(50000),
		CostOfGoods:   NairaFromKobo(120000),
		CustomerName:  "Ada Obi",
		CustomerEmail: "ada@example.com",
		ItemCount:     2,
		PaymentMethod: "paystack",
	})
	if err != nil {
		t.Fatalf("register sale: %v", err)
	}
	if recordID != "fin_789" {
		t.Fatalf("unexpected finance record id %q", recordID)
	}

	var payload map[string]any
	if err := json.Unmarshal(capturedBody, &payload); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	if payload["total"] != "2500" {
		t.Fatalf("total must be naira decimal, got %v", payload["total"])
	}
	if payload["shippingCost"] != "500" {
		t.Fatalf("shippingCost must be naira decimal, got %v", payload["shippingCost"])
	}
}

func TestClientPublicProductsPagination(t *testing.T) {
	pages := map[string]string{
		"0": `{"products":[{"inventoryItemId":"inv_1","name":"Eggs","stockQuantity":30,"available":true},{"inventoryItemId":"inv_2","name":"Broilers","stockQuantity":12,"available":true}]}`,
		"2": `{"products":[{"inventoryItemId":"inv_3","name":"Catfish","stockQuantity":0,"available":false}]}`,
	}

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		offset := req.URL.Query().Get("offset")
		body, ok := pages[offset]
		if !ok {
			t.Fatalf("unexpected offset %q", offset)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     http.Header{},
		}, nil
	})

	client, err := NewClient("http://farm.test", "farm-secret", WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	products, err := client.PublicProducts(context.Background(), 2)
	if err != nil {
		t.Fatalf("public products: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("expected 3 products, got %d", len(products))
	}
	if products[2].InventoryItemID != "inv_3" || products[2].Available {
		t.Fatalf("unexpected last product %+v", products[2])
	}
}

func TestNairaFromKobo(t *testing.T) {
	if got := NairaFromKobo(250050); !got.Equal(decimal.RequireFromString("2500.5")) {
		t.Fatalf("unexpected conversion %s", got)
	}
	if got := NairaFromKobo(0); !got.IsZero() {
		t.Fatalf("expected zero, got %s", got)
	}
}

func TestNewClientRequiresConfig(t *testing.T) {
	if _, err := NewClient("", "key"); err == nil {
		t.Fatal("expected error for empty base url")
	}
	if _, err := NewClient("http://farm.test", "  "); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
