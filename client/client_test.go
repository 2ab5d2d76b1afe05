package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/checkout"
	"storefront-checkout/models"
)

var _ checkout.Backend = (*Client)(nil)

func server(t *testing.T, status int, body string, inspect func(r *http.Request)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, 0)
}

func TestProcessPayment_Success(t *testing.T) {
	var got models.PaymentRequest
	c := server(t, http.StatusOK, `{"success":true,"orderId":"o-1","paymentId":"pay-1"}`, func(r *http.Request) {
		assert.Equal(t, "/api/payments/process", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	})

	res, err := c.ProcessPayment(context.Background(), &models.PaymentRequest{Token: "cnon:ok", IdempotencyKey: "key-1", AmountMinorUnits: 4487})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "o-1", res.OrderID)
	assert.Equal(t, int64(4487), got.AmountMinorUnits)
}

func TestProcessPayment_DeclineIsAResult(t *testing.T) {
	c := server(t, http.StatusPaymentRequired, `{"success":false,"error":"Insufficient funds","errorCode":"INSUFFICIENT_FUNDS"}`, nil)

	res, err := c.ProcessPayment(context.Background(), &models.PaymentRequest{})

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "INSUFFICIENT_FUNDS", res.ErrorCode)
}

func TestProcessPayment_UnreadableFailure(t *testing.T) {
	c := server(t, http.StatusInternalServerError, `<html>oops</html>`, nil)

	_, err := c.ProcessPayment(context.Background(), &models.PaymentRequest{})

	assert.ErrorContains(t, err, "status 500")
}

func TestProcessPayment_EmptyFailure(t *testing.T) {
	c := server(t, http.StatusBadGateway, ``, nil)

	_, err := c.ProcessPayment(context.Background(), &models.PaymentRequest{})

	assert.ErrorContains(t, err, "status 502")
}

func TestProcessPayment_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(srv.URL, 0).ProcessPayment(context.Background(), &models.PaymentRequest{})

	assert.Error(t, err)
}

func TestSyncOrders(t *testing.T) {
	c := server(t, http.StatusOK, `{"syncedCount":2}`, func(r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/orders/sync", r.URL.Path)
	})

	res, err := c.SyncOrders(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, res.SyncedCount)
}

func TestSyncOrders_Failure(t *testing.T) {
	c := server(t, http.StatusInternalServerError, `{"error":"Order sync failed","syncedCount":1}`, nil)

	res, err := c.SyncOrders(context.Background())

	assert.ErrorContains(t, err, "Order sync failed")
	assert.Equal(t, 1, res.SyncedCount)
}

func TestFetchConfig(t *testing.T) {
	c := server(t, http.StatusOK, `{"applicationId":"sandbox-sq0idb-x","locationId":"L1","environment":"sandbox","currency":"USD"}`, nil)

	cfg, err := c.FetchConfig(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.CheckoutConfig{ApplicationID: "sandbox-sq0idb-x", LocationID: "L1", Environment: "sandbox", Currency: "USD"}, *cfg)
}

func TestFetchConfig_Forbidden(t *testing.T) {
	c := server(t, http.StatusForbidden, `{"error":"Payments require a secure (HTTPS) connection"}`, nil)

	_, err := c.FetchConfig(context.Background())

	assert.ErrorContains(t, err, "status 403")
}
