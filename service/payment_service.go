package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storefront-checkout/idempotency"
	"storefront-checkout/logging"
	"storefront-checkout/models"
	"storefront-checkout/monitoring"
	"storefront-checkout/provider"
	"storefront-checkout/repository"
)

var (
	// ErrInvalidRequest marks requests rejected before the provider is called.
	ErrInvalidRequest = errors.New("invalid payment request")
	// ErrProviderUnavailable marks transport failures talking to the provider.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// PaymentProvider charges tokenized cards.
type PaymentProvider interface {
	CreatePayment(ctx context.Context, req provider.CreatePaymentRequest) (*provider.Payment, error)
}

// PaymentService handles payment processing logic
type PaymentService struct {
	tracer     trace.Tracer
	provider   PaymentProvider
	orders     repository.OrderRepository
	keys       idempotency.Store
	locationID string
	currency   string
}

// NewPaymentService creates a new payment service
func NewPaymentService(tracer trace.Tracer, p PaymentProvider, orders repository.OrderRepository, keys idempotency.Store, locationID, currency string) *PaymentService {
	return &PaymentService{
		tracer:     tracer,
		provider:   p,
		orders:     orders,
		keys:       keys,
		locationID: locationID,
		currency:   currency,
	}
}

// ProcessPayment charges the card behind req.Token once per idempotency key.
// A provider decline is not an error: it comes back as an unsuccessful
// result carrying the provider's code and detail.
func (s *PaymentService) ProcessPayment(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResult, error) {
	ctx, span := s.tracer.Start(ctx, "process_payment")
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	span.SetAttributes(
		attribute.String("payment.idempotency_key", req.IdempotencyKey),
		attribute.Int64("payment.amount_minor", req.AmountMinorUnits),
		attribute.String("payment.currency", req.Currency),
		attribute.Int("payment.items", len(req.Items)),
	)

	logger := logging.WithTraceContext(span).With(zap.String("idempotency_key", req.IdempotencyKey))

	if err := s.validate(req); err != nil {
		logger.Warn("Rejected payment request", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	cached, err := s.keys.Reserve(ctx, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, idempotency.ErrInFlight) {
			logger.Warn("Duplicate payment request while the first is in flight")
		}
		return nil, err
	}
	if cached != nil {
		logger.Info("Replaying completed payment", zap.String("order_id", cached.OrderID))
		span.SetAttributes(attribute.Bool("payment.replayed", true))
		return cached, nil
	}

	logger.Info("Processing payment",
		zap.Int64("amount_minor", req.AmountMinorUnits),
		zap.String("currency", req.Currency),
		zap.String("customer_email", req.CustomerInfo.Email),
	)

	payment, err := s.provider.CreatePayment(ctx, s.providerRequest(req))
	if err != nil {
		if rerr := s.keys.Release(ctx, req.IdempotencyKey); rerr != nil {
			logger.Error("Failed to release idempotency key", zap.Error(rerr))
		}
		s.countPayment(ctx, req, "failed")
		span.SetAttributes(attribute.String("payment.status", "failed"))

		if perr, ok := provider.AsError(err); ok && perr.StatusCode < http.StatusInternalServerError {
			logger.Warn("Payment declined",
				zap.Int("status_code", perr.StatusCode),
				zap.String("error_code", perr.Code),
				zap.String("detail", perr.Detail),
			)
			detail := perr.Detail
			if detail == "" {
				detail = "Payment failed"
			}
			return &models.PaymentResult{Success: false, Error: detail, ErrorCode: perr.Code}, nil
		}
		logger.Error("Payment failed", zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	order := s.orderFor(req, payment)
	orderID := order.ID.String()
	if err := s.orders.Create(ctx, order); err != nil {
		// The card is charged; reconciliation copies the provider order later.
		logger.Error("Failed to persist order",
			zap.String("payment_id", payment.ID),
			zap.String("provider_order_id", order.ProviderOrderID),
			zap.Error(err),
		)
		orderID = order.ProviderOrderID
	}

	result := &models.PaymentResult{Success: true, OrderID: orderID, PaymentID: payment.ID}
	if err := s.keys.Complete(ctx, req.IdempotencyKey, result); err != nil {
		logger.Error("Failed to store idempotency result", zap.Error(err))
	}

	s.countPayment(ctx, req, "success")
	monitoring.PaymentAmount.Record(ctx, req.AmountMinorUnits,
		metric.WithAttributes(attribute.String("currency", req.Currency)),
	)
	span.SetAttributes(
		attribute.String("payment.id", payment.ID),
		attribute.String("payment.status", "success"),
	)
	logger.Info("Payment completed",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", result.OrderID),
	)
	return result, nil
}

func (s *PaymentService) validate(req *models.PaymentRequest) error {
	var problems []string
	if strings.TrimSpace(req.Token) == "" {
		problems = append(problems, "token is required")
	}
	if len(req.Items) == 0 {
		problems = append(problems, "at least one item is required")
	}
	b := req.Breakdown
	if b.Subtotal+b.Shipping+b.Tax != b.Total {
		problems = append(problems, "breakdown does not add up to its total")
	}
	if req.AmountMinorUnits != b.Total {
		problems = append(problems, "amount does not match breakdown total")
	}
	if req.AmountMinorUnits <= 0 {
		problems = append(problems, "amount must be positive")
	}
	if req.Currency != "" && !strings.EqualFold(req.Currency, s.currency) {
		problems = append(problems, fmt.Sprintf("currency %s is not accepted", req.Currency))
	}
	if loc := req.Credentials.LocationID; loc != "" && loc != s.locationID {
		problems = append(problems, "location does not match this store")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

func (s *PaymentService) providerRequest(req *models.PaymentRequest) provider.CreatePaymentRequest {
	out := provider.CreatePaymentRequest{
		SourceID:          req.Token,
		IdempotencyKey:    providerKey(req.IdempotencyKey, req.Token),
		AmountMoney:       provider.Money{Amount: req.AmountMinorUnits, Currency: strings.ToUpper(s.currency)},
		LocationID:        s.locationID,
		BuyerEmailAddress: req.CustomerInfo.Email,
		BillingAddress:    providerAddress(req.BillingAddress),
		ShippingAddress:   providerAddress(req.ShippingAddress),
	}
	if req.CouponCode != "" {
		out.Note = "Coupon " + req.CouponCode
	}
	return out
}

// providerKey derives the key sent to the provider from the checkout key
// and the card token. A retry with the same token after a lost response
// reuses the provider key and cannot charge twice; a new token (the shopper
// re-entered a card after a decline) gets a fresh one, which the provider
// requires because its keys are bound to the original request body.
func providerKey(checkoutKey, token string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(checkoutKey+"\x00"+token)).String()
}

func providerAddress(a models.Address) *provider.Address {
	if a == (models.Address{}) {
		return nil
	}
	return &provider.Address{
		AddressLine1:                 a.Address,
		Locality:                     a.City,
		AdministrativeDistrictLevel1: a.State,
		PostalCode:                   a.ZipCode,
		Country:                      a.Country,
	}
}

func (s *PaymentService) orderFor(req *models.PaymentRequest, p *provider.Payment) *models.Order {
	// Without an order the row is keyed by the payment id until
	// reconciliation links it to the provider order that carries the payment.
	providerOrderID := p.OrderID
	if providerOrderID == "" {
		providerOrderID = p.ID
	}
	paymentID := p.ID
	key := req.IdempotencyKey
	c := req.CustomerInfo
	return &models.Order{
		ID:                uuid.New(),
		ProviderOrderID:   providerOrderID,
		ProviderPaymentID: &paymentID,
		IdempotencyKey:    &key,
		Status:            models.OrderStatusPaid,
		CustomerName:      strings.TrimSpace(c.FirstName + " " + c.LastName),
		CustomerEmail:     c.Email,
		CustomerPhone:     c.Phone,
		ShippingAddress:   req.ShippingAddress,
		Items:             req.Items,
		Currency:          strings.ToUpper(s.currency),
		SubtotalMinor:     req.Breakdown.Subtotal,
		ShippingMinor:     req.Breakdown.Shipping,
		TaxMinor:          req.Breakdown.Tax,
		TotalMinor:        req.Breakdown.Total,
	}
}

func (s *PaymentService) countPayment(ctx context.Context, req *models.PaymentRequest, status string) {
	monitoring.PaymentCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("currency", req.Currency),
			attribute.String("status", status),
		),
	)
}
