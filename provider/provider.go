// Package provider talks to the payment provider's REST API. Only the two
// calls the backend functions need are covered: creating a payment from a
// card token and paging through orders for reconciliation.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"storefront-checkout/guard"
	"storefront-checkout/monitoring"
)

const (
	SandboxBaseURL    = "https://connect.squareupsandbox.com"
	ProductionBaseURL = "https://connect.squareup.com"
)

// BaseURLFor returns the API host of env.
func BaseURLFor(env guard.Environment) string {
	if env == guard.Production {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// Money is an amount in the smallest denomination of currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Address struct {
	AddressLine1                 string `json:"address_line_1,omitempty"`
	Locality                     string `json:"locality,omitempty"`
	AdministrativeDistrictLevel1 string `json:"administrative_district_level_1,omitempty"`
	PostalCode                   string `json:"postal_code,omitempty"`
	Country                      string `json:"country,omitempty"`
}

// CreatePaymentRequest charges a tokenized card.
type CreatePaymentRequest struct {
	SourceID          string   `json:"source_id"`
	IdempotencyKey    string   `json:"idempotency_key"`
	AmountMoney       Money    `json:"amount_money"`
	LocationID        string   `json:"location_id"`
	BuyerEmailAddress string   `json:"buyer_email_address,omitempty"`
	BillingAddress    *Address `json:"billing_address,omitempty"`
	ShippingAddress   *Address `json:"shipping_address,omitempty"`
	Note              string   `json:"note,omitempty"`
}

type Payment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	OrderID     string `json:"order_id"`
	AmountMoney Money  `json:"amount_money"`
	CreatedAt   string `json:"created_at"`
}

type OrderLineItem struct {
	CatalogObjectID string `json:"catalog_object_id,omitempty"`
	Name            string `json:"name"`
	Quantity        string `json:"quantity"`
	BasePriceMoney  Money  `json:"base_price_money"`
}

type Tender struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
}

type Order struct {
	ID            string          `json:"id"`
	LocationID    string          `json:"location_id"`
	State         string          `json:"state"`
	LineItems     []OrderLineItem `json:"line_items"`
	Tenders       []Tender        `json:"tenders"`
	TotalMoney    Money           `json:"total_money"`
	TotalTaxMoney Money           `json:"total_tax_money"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OrdersPage is one page of a SearchOrders result. An empty Cursor means
// there are no further pages.
type OrdersPage struct {
	Orders []Order `json:"orders"`
	Cursor string  `json:"cursor,omitempty"`
}

// Error is a failure reported by the provider itself, as opposed to a
// transport failure.
type Error struct {
	StatusCode int
	Category   string
	Code       string
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("payment provider: status %d: %s: %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("payment provider: status %d: %s", e.StatusCode, e.Code)
}

// AsError extracts a provider-reported failure from err.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

type apiError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

// Client is a payment provider API client.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for baseURL authenticated with accessToken.
func NewClient(baseURL, accessToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreatePayment charges req.SourceID. A decline is returned as *Error.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	var out struct {
		Payment *Payment `json:"payment"`
	}
	if err := c.do(ctx, "create_payment", http.MethodPost, "/v2/payments", req, &out); err != nil {
		return nil, err
	}
	if out.Payment == nil {
		return nil, errors.New("payment provider: response carried no payment")
	}
	return out.Payment, nil
}

// SearchOrders returns one page of orders at locationID, oldest first.
// Pass the previous page's Cursor to continue.
func (c *Client) SearchOrders(ctx context.Context, locationID, cursor string, limit int) (*OrdersPage, error) {
	body := map[string]any{
		"location_ids": []string{locationID},
		"query": map[string]any{
			"sort": map[string]string{"sort_field": "CREATED_AT", "sort_order": "ASC"},
		},
	}
	if cursor != "" {
		body["cursor"] = cursor
	}
	if limit > 0 {
		body["limit"] = limit
	}
	var page OrdersPage
	if err := c.do(ctx, "search_orders", http.MethodPost, "/v2/orders/search", body, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("external.service", "payment-provider"),
		attribute.String("external.operation", op),
	)

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("payment provider: encode %s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("payment provider: build %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		c.record(ctx, op, "error", duration)
		span.SetAttributes(attribute.String("external.status", "error"))
		return fmt.Errorf("payment provider: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		c.record(ctx, op, "failed", duration)
		span.SetAttributes(
			attribute.Int("external.status_code", resp.StatusCode),
			attribute.String("external.status", "failed"),
		)
		var body struct {
			Errors []apiError `json:"errors"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		perr := &Error{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		if len(body.Errors) > 0 {
			perr.Category = body.Errors[0].Category
			perr.Code = body.Errors[0].Code
			perr.Detail = body.Errors[0].Detail
		}
		return perr
	}

	c.record(ctx, op, "success", duration)
	span.SetAttributes(attribute.String("external.status", "success"))
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("payment provider: decode %s: %w", op, err)
	}
	return nil
}

func (c *Client) record(ctx context.Context, op, status string, seconds float64) {
	monitoring.ExternalCallDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("status", status),
		),
	)
}
