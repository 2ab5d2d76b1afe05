package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storefront-checkout/idempotency"
	"storefront-checkout/logging"
	"storefront-checkout/models"
	"storefront-checkout/service"
)

// IdempotencyHeader carries the submission key; it wins over the body field.
const IdempotencyHeader = "Idempotency-Key"

// PaymentProcessor runs the backend payment function.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResult, error)
}

// OrderSyncer runs the backend reconciliation function.
type OrderSyncer interface {
	SyncOrders(ctx context.Context) (*models.SyncResult, error)
}

// PaymentHandler handles HTTP requests for payments
type PaymentHandler struct {
	payments PaymentProcessor
	syncer   OrderSyncer
	config   models.CheckoutConfig
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentProcessor, syncer OrderSyncer, cfg models.CheckoutConfig) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		syncer:   syncer,
		config:   cfg,
	}
}

// ProcessPayment handles payment processing requests. Declines answer 402
// with the provider's code so the client can word its message.
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	ctx := c.Request.Context()
	span := trace.SpanFromContext(ctx)

	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.PaymentResult{Error: err.Error(), ErrorCode: models.ErrorCodeBadRequest})
		return
	}
	if key := c.GetHeader(IdempotencyHeader); key != "" {
		req.IdempotencyKey = key
	}

	result, err := h.payments.ProcessPayment(ctx, &req)
	if err != nil {
		status, code := paymentErrorStatus(err)
		logger := logging.WithTraceContext(span)
		logger.Error("Payment processing failed",
			zap.Error(err),
			zap.Int("status", status),
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("amount_minor", req.AmountMinorUnits),
		)
		c.JSON(status, models.PaymentResult{Error: err.Error(), ErrorCode: code})
		return
	}
	if !result.Success {
		span.AddEvent("payment_declined")
		c.JSON(http.StatusPaymentRequired, result)
		return
	}

	span.AddEvent("payment_processed_successfully")
	c.JSON(http.StatusOK, result)
}

func paymentErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, models.ErrorCodeInvalidRequest
	case errors.Is(err, idempotency.ErrInFlight):
		return http.StatusConflict, models.ErrorCodeInFlight
	case errors.Is(err, service.ErrProviderUnavailable):
		return http.StatusBadGateway, models.ErrorCodeProviderUnavailable
	}
	return http.StatusInternalServerError, models.ErrorCodeInternal
}

// SyncOrders runs order reconciliation on demand.
func (h *PaymentHandler) SyncOrders(c *gin.Context) {
	ctx := c.Request.Context()

	res, err := h.syncer.SyncOrders(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("Order sync failed", zap.Error(err))
		body := gin.H{"error": "Order sync failed"}
		if res != nil {
			body["syncedCount"] = res.SyncedCount
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CheckoutConfig serves the public settings the checkout bootstraps from.
func (h *PaymentHandler) CheckoutConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.config)
}

// HealthCheck handles health check requests
func (h *PaymentHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
