package storeapi

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

	"github.com/angelmondragon/storefront-backend/internal/catalogue"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024

	endpointProducts    = "products"
	endpointOrders      = "orders"
	endpointPricingMode = "pricing_mode"
)

var errBaseURLRequired = errors.New("store api base url is required")

// Client talks to the upstream store REST API on behalf of a customer.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	productsPath    string
	ordersPath      string
	pricingModePath string
	metrics         *metrics.Metrics
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

// WithMetrics records call latency on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds a store API client from configuration.
func NewClient(cfg config.StoreAPIConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse store api base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient:      &http.Client{Timeout: timeout},
		baseURL:         base,
		productsPath:    orDefault(cfg.ProductsPath, "/products"),
		ordersPath:      orDefault(cfg.OrdersPath, "/orders"),
		pricingModePath: orDefault(cfg.PricingModePath, "/customers/{customerId}/price-mode"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ListProducts fetches the full catalogue. The body may be a bare array or an
// object wrapping it under "data" or "products".
func (c *Client) ListProducts(ctx context.Context, creds auth.Credentials) ([]catalogue.Product, error) {
	var raw json.RawMessage
	if err := c.do(ctx, endpointProducts, http.MethodGet, c.productsPath, creds, nil, &raw); err != nil {
		return nil, err
	}

	products, err := decodeProducts(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode products response")
	}
	return products, nil
}

func decodeProducts(raw json.RawMessage) ([]catalogue.Product, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var products []catalogue.Product
		if err := json.Unmarshal(trimmed, &products); err != nil {
			return nil, err
		}
		return products, nil
	}

	var wrapped struct {
		Data     []catalogue.Product `json:"data"`
		Products []catalogue.Product `json:"products"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Products != nil {
		return wrapped.Products, nil
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	return nil, errors.New("no product list in response")
}

// FetchPriceMode returns the raw price-mode string configured for the customer.
func (c *Client) FetchPriceMode(ctx context.Context, creds auth.Credentials) (string, error) {
	path := strings.ReplaceAll(c.pricingModePath, "{customerId}", url.PathEscape(creds.CustomerID))

	var raw json.RawMessage
	if err := c.do(ctx, endpointPricingMode, http.MethodGet, path, creds, nil, &raw); err != nil {
		return "", err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var mode string
		if err := json.Unmarshal(trimmed, &mode); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode pricing mode response")
		}
		return mode, nil
	}

	var body struct {
		Mode      string `json:"mode"`
		PriceMode string `json:"priceMode"`
		Legacy    string `json:"price_mode"`
	}
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode pricing mode response")
	}
	for _, v := range []string{body.Mode, body.PriceMode, body.Legacy} {
		if strings.TrimSpace(v) != "" {
			return v, nil
		}
	}
	return "", nil
}

// PlaceResult is the store API verdict on an order.
type PlaceResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PlaceOrder submits payload. A transport failure or non-2xx status returns a
// DEPENDENCY_ERROR; a well-formed {success:false} returns ORDER_REJECTED carrying
// the upstream message. Nothing is retried. Errors raised before the request
// left are marked with pkgerrors.MarkNotSent; any other failure may have reached
// the store.
func (c *Client) PlaceOrder(ctx context.Context, creds auth.Credentials, payload orders.Payload) (*PlaceResult, error) {
	var result PlaceResult
	if err := c.do(ctx, endpointOrders, http.MethodPost, c.ordersPath, creds, payload, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		msg := strings.TrimSpace(result.Message)
		if msg == "" {
			msg = "order was not accepted"
		}
		return &result, pkgerrors.New(pkgerrors.CodeRejected, msg).WithDetails(map[string]any{"upstream_message": result.Message})
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, creds auth.Credentials, body any, out any) (err error) {
	if c == nil {
		return pkgerrors.MarkNotSent(pkgerrors.New(pkgerrors.CodeDependency, "store api client not configured"))
	}
	if !creds.Valid() {
		return pkgerrors.MarkNotSent(pkgerrors.New(pkgerrors.CodeUnauthorized, "login required"))
	}

	start := time.Now()
	defer func() { c.metrics.ObserveUpstream(endpoint, err, time.Since(start)) }()

	var reader io.Reader
	if body != nil {
		payload, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return pkgerrors.MarkNotSent(pkgerrors.Wrap(pkgerrors.CodeInternal, marshalErr, "marshal "+endpoint+" request"))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.MarkNotSent(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+endpoint+" request"))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", creds.BearerHeader())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+endpoint+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "store api rejected credentials")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), endpoint+" request failed")
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+endpoint+" response")
	}
	return nil
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
