package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/models"
)

func validInput() SubmitInput {
	return SubmitInput{
		Customer:       models.CustomerInfo{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "555-0100"},
		Shipping:       models.Address{Address: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701", Country: "US"},
		SameAsShipping: true,
	}
}

func mounted(t *testing.T, mutate ...func(h *harness)) *harness {
	t.Helper()
	h := newHarness(t, testConfig(), mutate...)
	require.NoError(t, h.session.Mount(context.Background()))
	return h
}

func TestSubmit_BeforeMountIsNotInitialized(t *testing.T) {
	h := newHarness(t, testConfig())

	_, err := h.session.Submit(context.Background(), validInput())

	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, SubmissionIdle, h.session.SubmissionState())
	assert.Equal(t, 0, h.backend.Calls())
}

func TestSubmit_AfterBootstrapFailureIsNotInitialized(t *testing.T) {
	h := newHarness(t, testConfig(), func(h *harness) { h.locator.container = nil })
	require.Error(t, h.session.Mount(context.Background()))

	_, err := h.session.Submit(context.Background(), validInput())

	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, 0, h.backend.Calls())
}

func TestSubmit_ValidationErrorsStopBeforeProcessing(t *testing.T) {
	h := mounted(t)
	in := validInput()
	in.Customer.FirstName = ""
	in.Customer.LastName = ""
	in.Customer.Email = "nope"

	_, err := h.session.Submit(context.Background(), in)

	cerr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, cerr.Kind)
	assert.Len(t, cerr.Details, 3)
	assert.Equal(t, "Please correct 3 issue(s): First name is required; Last name is required (and 1 more)", cerr.Message)
	assert.Equal(t, SubmissionIdle, h.session.SubmissionState())
	assert.Equal(t, 0, h.client.cards[0].tokenizeCalls)
	assert.Equal(t, 0, h.backend.Calls())
}

func TestSubmit_EmptyCart(t *testing.T) {
	h := mounted(t, func(h *harness) { h.cart.items = nil })

	_, err := h.session.Submit(context.Background(), validInput())

	cerr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Your cart is empty"}, cerr.Details)
}

func TestSubmit_TokenizeFailureNeverCallsBackend(t *testing.T) {
	h := mounted(t, func(h *harness) {
		h.client.token = TokenResult{Status: "Invalid", Errors: []string{"card number is invalid"}}
	})

	_, err := h.session.Submit(context.Background(), validInput())

	cerr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindSubmission, cerr.Kind)
	assert.Equal(t, tokenizeFailedMessage, cerr.Message)
	assert.Equal(t, SubmissionError, h.session.SubmissionState())
	assert.Equal(t, 0, h.backend.Calls())
	assert.Equal(t, 3, h.cart.Count())
}

func TestSubmit_TokenizeErrorNeverCallsBackend(t *testing.T) {
	h := mounted(t, func(h *harness) { h.client.tokenErr = errBoom })

	_, err := h.session.Submit(context.Background(), validInput())

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, h.backend.Calls())
}

func TestSubmit_SuccessClearsCartAndSendsMinorUnits(t *testing.T) {
	h := mounted(t, func(h *harness) {
		h.backend.results = []*models.PaymentResult{{Success: true, OrderID: "order-1"}}
	})

	res, err := h.session.Submit(context.Background(), validInput())

	require.NoError(t, err)
	assert.Equal(t, "order-1", res.OrderID)
	assert.Equal(t, SubmissionSuccess, h.session.SubmissionState())
	assert.Equal(t, 0, h.cart.Count())
	require.Len(t, h.successes, 1)

	require.Equal(t, 1, h.backend.Calls())
	req := h.backend.requests[0]
	assert.Equal(t, "cnon:card-nonce-ok", req.Token)
	assert.Equal(t, int64(4487), req.AmountMinorUnits)
	assert.Equal(t, models.Breakdown{Subtotal: 3600, Shipping: 599, Tax: 288, Total: 4487}, req.Breakdown)
	assert.Equal(t, "USD", req.Currency)
	assert.Equal(t, "SAVE10", req.CouponCode)
	assert.Equal(t, models.Credentials{ApplicationID: "sandbox-sq0idb-test", LocationID: "L1", Environment: "sandbox"}, req.Credentials)
	assert.Equal(t, req.ShippingAddress, req.BillingAddress)
	assert.Equal(t, []models.LineItem{
		{ProductID: "p-1", Name: "Candle", Quantity: 2, UnitPriceMinor: 1500},
		{ProductID: "p-2", Name: "Soap", Quantity: 1, UnitPriceMinor: 1000},
	}, req.Items)
}

func TestSubmit_SeparateBillingAddressIsSent(t *testing.T) {
	h := mounted(t, func(h *harness) {
		h.backend.results = []*models.PaymentResult{{Success: true}}
	})
	in := validInput()
	in.SameAsShipping = false
	in.Billing = models.Address{Address: "9 Bank Rd", City: "Peoria", State: "IL", ZipCode: "61602", Country: "US"}

	_, err := h.session.Submit(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, in.Billing, h.backend.requests[0].BillingAddress)
}

func TestSubmit_DeclineKeepsCartAndAllowsResubmit(t *testing.T) {
	h := mounted(t, func(h *harness) {
		h.backend.results = []*models.PaymentResult{
			{Success: false, Error: "Card declined", ErrorCode: "INSUFFICIENT_FUNDS"},
			{Success: true, OrderID: "order-2"},
		}
	})

	res, err := h.session.Submit(context.Background(), validInput())

	cerr, ok := AsError(err)
	require.True(t, ok)
	assert.False(t, res.Success)
	assert.Equal(t, KindSubmission, cerr.Kind)
	assert.True(t, cerr.Retryable())
	assert.Equal(t, paymentRules[0].message, cerr.Message)
	assert.Equal(t, SubmissionError, h.session.SubmissionState())
	assert.Equal(t, 3, h.cart.Count())
	assert.Empty(t, h.successes)
	assert.True(t, h.session.CanSubmit())

	res, err = h.session.Submit(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "order-2", res.OrderID)
	assert.Equal(t, 0, h.cart.Count())
	assert.Equal(t, "key-1", h.backend.requests[0].IdempotencyKey)
	assert.Equal(t, "key-2", h.backend.requests[1].IdempotencyKey, "a declined card is retried under a new key")
}

func TestSubmit_UnsettledFailureKeepsKey(t *testing.T) {
	for _, code := range []string{
		models.ErrorCodeInFlight,
		models.ErrorCodeProviderUnavailable,
		models.ErrorCodeInternal,
		models.ErrorCodeRateLimited,
	} {
		t.Run(code, func(t *testing.T) {
			h := mounted(t, func(h *harness) {
				h.backend.results = []*models.PaymentResult{
					{Success: false, Error: "try again", ErrorCode: code},
					{Success: true, OrderID: "order-2"},
				}
			})

			_, err := h.session.Submit(context.Background(), validInput())
			require.Error(t, err)
			_, err = h.session.Submit(context.Background(), validInput())
			require.NoError(t, err)

			assert.Equal(t, "key-1", h.backend.requests[0].IdempotencyKey)
			assert.Equal(t, "key-1", h.backend.requests[1].IdempotencyKey)
		})
	}
}

func TestSubmit_TransportErrorKeepsKey(t *testing.T) {
	h := mounted(t, func(h *harness) {
		h.backend.errs = []error{errors.New("connection reset"), nil}
		h.backend.results = []*models.PaymentResult{nil, {Success: true, OrderID: "order-1"}}
	})

	_, err := h.session.Submit(context.Background(), validInput())
	require.Error(t, err)
	_, err = h.session.Submit(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, h.backend.requests[0].IdempotencyKey, h.backend.requests[1].IdempotencyKey)
}

func TestSubmit_TransportErrorIsNotRetried(t *testing.T) {
	h := mounted(t, func(h *harness) {
		h.backend.errs = []error{errors.New("network timeout while contacting server")}
	})

	_, err := h.session.Submit(context.Background(), validInput())

	cerr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, paymentRules[7].message, cerr.Message)
	assert.Equal(t, 1, h.backend.Calls())
	assert.Equal(t, 3, h.cart.Count())
	assert.Equal(t, SubmissionError, h.session.SubmissionState())
}

func TestSubmit_EmptyResponseIsAFailure(t *testing.T) {
	h := mounted(t)

	_, err := h.session.Submit(context.Background(), validInput())

	cerr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, genericPaymentMessage, cerr.Message)
	assert.Equal(t, 3, h.cart.Count())
}

func TestSubmit_IdempotencyKeyRotatesAfterSuccess(t *testing.T) {
	h := mounted(t, func(h *harness) {
		h.backend.results = []*models.PaymentResult{{Success: true}, {Success: true}}
	})

	_, err := h.session.Submit(context.Background(), validInput())
	require.NoError(t, err)

	h.cart.mu.Lock()
	h.cart.items = scenarioCart().items
	h.cart.mu.Unlock()
	_, err = h.session.Submit(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEqual(t, h.backend.requests[0].IdempotencyKey, h.backend.requests[1].IdempotencyKey)
}

func TestSubmit_ConcurrentSubmitRejected(t *testing.T) {
	h := mounted(t, func(h *harness) {
		h.backend.results = []*models.PaymentResult{{Success: true}}
		h.backend.gate = make(chan struct{})
		h.backend.entered = make(chan struct{}, 1)
	})

	done := make(chan error, 1)
	go func() {
		_, err := h.session.Submit(context.Background(), validInput())
		done <- err
	}()
	<-h.backend.entered

	assert.Equal(t, SubmissionProcessing, h.session.SubmissionState())
	assert.False(t, h.session.CanSubmit())
	_, err := h.session.Submit(context.Background(), validInput())
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	close(h.backend.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, h.backend.Calls())
}

func TestSubmit_ResponseAfterUnmountIsDiscarded(t *testing.T) {
	h := mounted(t, func(h *harness) {
		h.backend.results = []*models.PaymentResult{{Success: true, OrderID: "late"}}
		h.backend.gate = make(chan struct{})
		h.backend.entered = make(chan struct{}, 1)
	})

	done := make(chan error, 1)
	go func() {
		_, err := h.session.Submit(context.Background(), validInput())
		done <- err
	}()
	<-h.backend.entered

	h.session.Unmount(context.Background())
	close(h.backend.gate)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrUnmounted)
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not return")
	}
	assert.Empty(t, h.successes)
	assert.Equal(t, SubmissionIdle, h.session.SubmissionState())
	assert.Equal(t, 0, h.cart.Count(), "the payment went through")
}

func TestSubmit_CartClearFailureStillReportsSuccess(t *testing.T) {
	h := mounted(t, func(h *harness) {
		h.backend.results = []*models.PaymentResult{{Success: true, OrderID: "order-3"}}
		h.cart.clearErr = errBoom
	})

	res, err := h.session.Submit(context.Background(), validInput())

	require.NoError(t, err)
	assert.Equal(t, "order-3", res.OrderID)
	assert.Equal(t, 1, h.logs.FilterMessage("Payment succeeded but the cart could not be cleared").Len())
}
