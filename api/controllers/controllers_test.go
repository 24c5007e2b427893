package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/kvstore"
)

var testCreds = auth.Credentials{Token: "tok", CustomerID: "cust-1"}

type stubFetcher struct {
	products []catalogue.Product
	err      error
}

func (s *stubFetcher) ListProducts(context.Context, auth.Credentials) ([]catalogue.Product, error) {
	return s.products, s.err
}

type stubResolver struct {
	mode enums.PriceMode
}

func (s stubResolver) Resolve(context.Context, auth.Credentials) enums.PriceMode {
	return s.mode
}

type stubCheckout struct {
	result *checkoutsvc.Result
	err    error
}

func (s stubCheckout) PlaceOrder(context.Context, auth.Credentials) (*checkoutsvc.Result, error) {
	return s.result, s.err
}

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

func newRegistry(t *testing.T) *cart.Registry {
	t.Helper()
	registry, err := cart.NewRegistry(kvstore.NewMemoryStore(), nil, nil, nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return registry
}

func authedRequest(method, target string, body io.Reader, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(middleware.WithCredentials(ctx, testCreds))
}

func itemRequest(method, target, productID, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	return authedRequest(method, target, reader, map[string]string{"productId": productID})
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, resp.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return payload.Error.Code
}

func TestCartIncreaseAndDecrease(t *testing.T) {
	registry := newRegistry(t)
	increase := CartIncrease(registry, nil, nil)
	decrease := CartDecrease(registry, enums.DecreasePolicyDeleteOnZero, nil)

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		increase.ServeHTTP(resp, itemRequest(http.MethodPost, "/api/v1/cart/items/5/increase", "5", ""))
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	decrease.ServeHTTP(resp, itemRequest(http.MethodPost, "/api/v1/cart/items/5/decrease", "5", ""))
	var out cartMutationResponse
	decodeData(t, resp, &out)
	if out.Quantity != 1 || out.ItemCount != 1 || out.UnitCount != 1 {
		t.Fatalf("unexpected response %+v", out)
	}

	resp = httptest.NewRecorder()
	decrease.ServeHTTP(resp, itemRequest(http.MethodPost, "/api/v1/cart/items/5/decrease?policy=clamp_at_one", "5", ""))
	decodeData(t, resp, &out)
	if out.Quantity != 1 {
		t.Fatalf("clamp policy should keep quantity at 1, got %d", out.Quantity)
	}

	resp = httptest.NewRecorder()
	decrease.ServeHTTP(resp, itemRequest(http.MethodPost, "/api/v1/cart/items/5/decrease", "5", ""))
	decodeData(t, resp, &out)
	if out.Quantity != 0 || out.ItemCount != 0 {
		t.Fatalf("delete policy should remove the line, got %+v", out)
	}
}

func TestCartIncreaseTagsCachedProduct(t *testing.T) {
	registry := newRegistry(t)
	cat, _ := catalogue.NewService(&stubFetcher{products: []catalogue.Product{{ID: 3, Name: "Oil", Price: decimal.NewFromInt(90)}}}, nil)
	if _, err := cat.Snapshot(context.Background(), testCreds); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	resp := httptest.NewRecorder()
	CartIncrease(registry, cat, nil).ServeHTTP(resp, itemRequest(http.MethodPost, "/api/v1/cart/items/3/increase", "3", ""))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	store, _ := registry.Session(context.Background(), testCreds.CustomerID)
	lines := store.Lines()
	if len(lines) != 1 || lines[0].Name != "Oil" || !lines[0].Price.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("expected entry tagged with cached product, got %+v", lines)
	}
}

func TestCartRejectsBadInput(t *testing.T) {
	registry := newRegistry(t)

	resp := httptest.NewRecorder()
	CartIncrease(registry, nil, nil).ServeHTTP(resp, itemRequest(http.MethodPost, "/", "abc", ""))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad product id, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	CartDecrease(registry, enums.DecreasePolicyDeleteOnZero, nil).ServeHTTP(resp, itemRequest(http.MethodPost, "/?policy=never", "1", ""))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad policy, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	CartSetQuantity(registry, nil).ServeHTTP(resp, itemRequest(http.MethodPut, "/", "1", `{}`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without value, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("productId", "1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	CartIncrease(registry, nil, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.Code)
	}
}

func TestCartEditThenCommit(t *testing.T) {
	registry := newRegistry(t)
	CartIncrease(registry, nil, nil).ServeHTTP(httptest.NewRecorder(), itemRequest(http.MethodPost, "/", "8", ""))

	resp := httptest.NewRecorder()
	CartSetQuantity(registry, nil).ServeHTTP(resp, itemRequest(http.MethodPut, "/", "8", `{"value":""}`))
	var edit cartEditResponse
	decodeData(t, resp, &edit)
	if !edit.Applied || edit.Quantity != 0 || edit.ItemCount != 0 {
		t.Fatalf("blank edit should hide the line, got %+v", edit)
	}

	resp = httptest.NewRecorder()
	CartSetQuantity(registry, nil).ServeHTTP(resp, itemRequest(http.MethodPut, "/", "8", `{"value":"abc"}`))
	decodeData(t, resp, &edit)
	if edit.Applied {
		t.Fatalf("unparsable edit should be ignored, got %+v", edit)
	}

	resp = httptest.NewRecorder()
	CartCommitQuantity(registry, nil).ServeHTTP(resp, itemRequest(http.MethodPost, "/", "8", `{"value":""}`))
	var out cartMutationResponse
	decodeData(t, resp, &out)
	if out.Quantity != 1 || out.ItemCount != 1 {
		t.Fatalf("commit of blank should revert to 1, got %+v", out)
	}

	resp = httptest.NewRecorder()
	CartCommitQuantity(registry, nil).ServeHTTP(resp, itemRequest(http.MethodPost, "/", "8", `{"value":"12"}`))
	decodeData(t, resp, &out)
	if out.Quantity != 12 || out.UnitCount != 12 {
		t.Fatalf("expected committed 12, got %+v", out)
	}
}

func TestCartRemoveAndClear(t *testing.T) {
	registry := newRegistry(t)
	increase := CartIncrease(registry, nil, nil)
	increase.ServeHTTP(httptest.NewRecorder(), itemRequest(http.MethodPost, "/", "1", ""))
	increase.ServeHTTP(httptest.NewRecorder(), itemRequest(http.MethodPost, "/", "2", ""))

	resp := httptest.NewRecorder()
	CartRemoveItem(registry, nil).ServeHTTP(resp, itemRequest(http.MethodDelete, "/", "1", ""))
	var out cartMutationResponse
	decodeData(t, resp, &out)
	if out.ItemCount != 1 {
		t.Fatalf("expected one remaining line, got %+v", out)
	}

	resp = httptest.NewRecorder()
	CartClear(registry, nil).ServeHTTP(resp, authedRequest(http.MethodDelete, "/", nil, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	store, _ := registry.Session(context.Background(), testCreds.CustomerID)
	if store.ItemCount() != 0 {
		t.Fatalf("expected empty cart, got %d lines", store.ItemCount())
	}
}

func TestProductListFiltersAndPrices(t *testing.T) {
	registry := newRegistry(t)
	cat, _ := catalogue.NewService(&stubFetcher{products: []catalogue.Product{
		{ID: 1, Name: "Basmati Rice", Category: "Grains", Brand: "Acme", Price: decimal.NewFromInt(120), DiscountPrice: decimal.NewNullDecimal(decimal.NewFromInt(100))},
		{ID: 2, Name: "Soap", Category: "Care", Brand: "Bubbles", Price: decimal.NewFromInt(40)},
	}}, nil)
	store, _ := registry.Session(context.Background(), testCreds.CustomerID)
	store.Increase(context.Background(), 1, nil)

	resp := httptest.NewRecorder()
	ProductList(cat, stubResolver{mode: enums.PriceModeSellingPrice}, registry, nil).
		ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/products?category=grains", nil, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data []productResponse `json:"data"`
		Meta catalogueMeta     `json:"meta"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(envelope.Data) != 1 || envelope.Data[0].ID != 1 || envelope.Data[0].InCart != 1 {
		t.Fatalf("unexpected products %+v", envelope.Data)
	}
	price := envelope.Data[0].Price
	if price.SellingPrice == nil || !price.SellingPrice.Equal(decimal.NewFromInt(100)) || price.MRP != nil {
		t.Fatalf("selling mode should show only the selling price, got %+v", price)
	}
	if envelope.Meta.Total != 2 || envelope.Meta.Count != 1 || envelope.Meta.PriceMode != "selling_price" {
		t.Fatalf("unexpected meta %+v", envelope.Meta)
	}
}

func TestProductListUpstreamFailure(t *testing.T) {
	cat, _ := catalogue.NewService(&stubFetcher{err: errors.New("down")}, nil)

	resp := httptest.NewRecorder()
	ProductList(cat, stubResolver{}, nil, nil).ServeHTTP(resp, authedRequest(http.MethodGet, "/", nil, nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeDependency) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestPricingMode(t *testing.T) {
	resp := httptest.NewRecorder()
	PricingMode(stubResolver{mode: enums.PriceModeBoth}, nil).ServeHTTP(resp, authedRequest(http.MethodGet, "/", nil, nil))

	var out map[string]string
	decodeData(t, resp, &out)
	if out["mode"] != "both" {
		t.Fatalf("unexpected mode %v", out)
	}
}

func TestCheckoutCreated(t *testing.T) {
	svc := stubCheckout{result: &checkoutsvc.Result{
		OrderRef: "ref-1",
		Message:  "Order placed",
		Order: orders.Composition{
			Payload:  orders.Payload{OrderType: enums.OrderTypeAM, TotalAmount: "350"},
			Warnings: []orders.Warning{},
		},
	}}

	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout", nil, nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	var out checkoutResponse
	decodeData(t, resp, &out)
	if out.OrderRef != "ref-1" || out.Payload.TotalAmount != "350" {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestCheckoutErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"empty cart", pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"), http.StatusBadRequest},
		{"rejected", pkgerrors.New(pkgerrors.CodeRejected, "out of stock"), http.StatusUnprocessableEntity},
		{"upstream", pkgerrors.New(pkgerrors.CodeDependency, "store api unavailable"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		resp := httptest.NewRecorder()
		Checkout(stubCheckout{err: tt.err}, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/", nil, nil))
		if resp.Code != tt.status {
			t.Fatalf("%s: expected %d got %d", tt.name, tt.status, resp.Code)
		}
	}
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	resp := httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{}, "redis": nil}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get(envHeader) != "dev" {
		t.Fatal("expected env header")
	}

	resp = httptest.NewRecorder()
	HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{err: errors.New("down")}}).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}
