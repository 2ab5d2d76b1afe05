// Package client calls the checkout backend functions over HTTP. It is the
// Backend a checkout session submits payments through.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"storefront-checkout/models"
)

const idempotencyHeader = "Idempotency-Key"

// Client talks to the backend at baseURL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client with an instrumented transport.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
}

// ProcessPayment posts req once. Failures the backend answered with a
// result body, such as a decline, come back as an unsuccessful result; only
// transport problems and unreadable answers are errors.
func (c *Client) ProcessPayment(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResult, error) {
	headers := map[string]string{}
	if req.IdempotencyKey != "" {
		headers[idempotencyHeader] = req.IdempotencyKey
	}
	var res models.PaymentResult
	status, err := c.do(ctx, http.MethodPost, "/api/payments/process", req, headers, &res)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && res.Success {
		return nil, fmt.Errorf("payment function: status %d with a successful body", status)
	}
	if status != http.StatusOK && res.Error == "" && res.ErrorCode == "" {
		return nil, fmt.Errorf("payment function: status %d", status)
	}
	return &res, nil
}

// SyncOrders runs backend order reconciliation.
func (c *Client) SyncOrders(ctx context.Context) (*models.SyncResult, error) {
	var res struct {
		models.SyncResult
		Error string `json:"error"`
	}
	status, err := c.do(ctx, http.MethodPost, "/api/orders/sync", nil, nil, &res)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &res.SyncResult, fmt.Errorf("order sync: status %d: %s", status, res.Error)
	}
	return &res.SyncResult, nil
}

// FetchConfig loads the public checkout configuration.
func (c *Client) FetchConfig(ctx context.Context) (*models.CheckoutConfig, error) {
	var cfg models.CheckoutConfig
	status, err := c.do(ctx, http.MethodGet, "/api/checkout/config", nil, nil, &cfg)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("checkout config: status %d", status)
	}
	return &cfg, nil
}

// do sends in as JSON and decodes any JSON answer into out, whatever the
// status. The status is returned for the caller to judge.
func (c *Client) do(ctx context.Context, method, path string, in any, headers map[string]string, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("build %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s (status %d): %w", path, resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}
