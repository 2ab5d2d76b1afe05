package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storefront-checkout/models"
	"storefront-checkout/pricing"
	"storefront-checkout/validation"
)

// SubmitInput is the order form as entered by the shopper.
type SubmitInput struct {
	Customer       models.CustomerInfo
	Shipping       models.Address
	Billing        models.Address
	SameAsShipping bool
}

// Submit validates the form, tokenizes the card and calls the backend
// payment function exactly once. The cart is cleared only when the backend
// reports success. Failures are returned as *Error and leave the cart as it was.
func (s *Session) Submit(ctx context.Context, in SubmitInput) (*models.PaymentResult, error) {
	s.mu.Lock()
	if s.submission == SubmissionProcessing {
		s.mu.Unlock()
		return nil, ErrSubmissionInProgress
	}
	if !s.mounted || s.sdkState != SDKReady || s.card == nil {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}

	items := s.deps.Cart.Items()
	if errs := validation.Validate(validation.Form{
		Customer:       in.Customer,
		Shipping:       in.Shipping,
		Billing:        in.Billing,
		SameAsShipping: in.SameAsShipping,
		CartItemCount:  itemCount(items),
	}); len(errs) > 0 {
		verr := &Error{Kind: KindValidation, Message: validationPreview(errs), Details: errs}
		s.lastErr = verr
		s.mu.Unlock()
		return nil, verr
	}

	s.submission = SubmissionProcessing
	s.lastErr = nil
	card, cfg, gen, key := s.card, s.cfg, s.generation, s.idemKey
	s.mu.Unlock()

	tok, err := card.Tokenize(ctx)
	if err != nil || tok.Status != TokenStatusOK {
		if err == nil {
			err = fmt.Errorf("tokenization status %s: %s", tok.Status, strings.Join(tok.Errors, "; "))
		}
		return nil, s.fail(gen, &Error{Kind: KindSubmission, Message: tokenizeFailedMessage, Err: err})
	}

	req := buildPaymentRequest(tok.Token, key, in, items, s.deps.Cart, cfg)

	log := s.log.With(zap.String("idempotency_key", key), zap.Int64("amount_minor", req.AmountMinorUnits))
	log.Info("Submitting payment")

	result, err := s.deps.Backend.ProcessPayment(ctx, req)
	switch {
	case err != nil:
		log.Warn("Payment request failed", zap.Error(err))
		return nil, s.fail(gen, &Error{Kind: KindSubmission, Message: ClassifyPaymentError("", err.Error()), Err: err})
	case result == nil:
		return nil, s.fail(gen, &Error{Kind: KindSubmission, Message: genericPaymentMessage, Err: errors.New("empty payment response")})
	case !result.Success:
		log.Warn("Payment declined", zap.String("error_code", result.ErrorCode), zap.String("error", result.Error))
		if settled(result.ErrorCode) {
			s.rotateKey(gen)
		}
		return result, s.fail(gen, &Error{
			Kind:    KindSubmission,
			Message: ClassifyPaymentError(result.ErrorCode, result.Error),
			Err:     fmt.Errorf("payment failed: %s", result.Error),
		})
	}

	if err := s.deps.Cart.Clear(ctx); err != nil {
		log.Error("Payment succeeded but the cart could not be cleared", zap.String("order_id", result.OrderID), zap.Error(err))
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		log.Info("Payment completed after checkout was unmounted", zap.String("order_id", result.OrderID))
		return result, ErrUnmounted
	}
	s.submission = SubmissionSuccess
	s.idemKey = s.newKey()
	onSuccess := s.onSuccess
	s.mu.Unlock()

	log.Info("Payment succeeded", zap.String("order_id", result.OrderID))
	if onSuccess != nil {
		onSuccess(result)
	}
	return result, nil
}

// settled reports whether a failed result is final, so no charge can still
// be pending under its idempotency key. Declines and rejected requests are
// final; the next attempt carries a new card token and needs a new key.
// Outcomes the backend could not determine, or that never reached the
// provider, keep the key so a resubmission is deduplicated against a charge
// that may have gone through.
func settled(code string) bool {
	switch code {
	case models.ErrorCodeInFlight, models.ErrorCodeProviderUnavailable, models.ErrorCodeInternal, models.ErrorCodeRateLimited:
		return false
	}
	return true
}

func (s *Session) rotateKey(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation {
		s.idemKey = s.newKey()
	}
}

// fail records a submission failure unless the session moved on meanwhile.
func (s *Session) fail(gen uint64, cerr *Error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return ErrUnmounted
	}
	s.submission = SubmissionError
	s.lastErr = cerr
	return cerr
}

func itemCount(items []CartItem) int {
	n := 0
	for _, it := range items {
		if it.Quantity > 0 {
			n += it.Quantity
		}
	}
	return n
}

// validationPreview shows the first two problems and how many there are.
func validationPreview(errs []string) string {
	shown := errs
	if len(shown) > 2 {
		shown = shown[:2]
	}
	msg := fmt.Sprintf("Please correct %d issue(s): %s", len(errs), strings.Join(shown, "; "))
	if rest := len(errs) - len(shown); rest > 0 {
		msg += fmt.Sprintf(" (and %d more)", rest)
	}
	return msg
}

// buildPaymentRequest prices the cart afresh and converts every amount to
// minor units. Decimal currency never leaves this function.
func buildPaymentRequest(token, key string, in SubmitInput, items []CartItem, cart Cart, cfg Config) *models.PaymentRequest {
	quote := pricing.Quote(cart.Subtotal(), cart.DiscountedSubtotal(), cfg.Rates)

	breakdown := models.Breakdown{
		Subtotal: pricing.ToMinorUnits(quote.Subtotal),
		Shipping: pricing.ToMinorUnits(quote.ShippingCost),
		Tax:      pricing.ToMinorUnits(quote.Tax),
	}
	breakdown.Total = breakdown.Subtotal + breakdown.Shipping + breakdown.Tax

	lines := make([]models.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, models.LineItem{
			ProductID:      it.ProductID,
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitPriceMinor: pricing.ToMinorUnits(it.UnitPrice),
		})
	}

	billing := in.Billing
	if in.SameAsShipping {
		billing = in.Shipping
	}

	req := &models.PaymentRequest{
		Token:            token,
		IdempotencyKey:   key,
		CustomerInfo:     in.Customer,
		ShippingAddress:  in.Shipping,
		BillingAddress:   billing,
		Items:            lines,
		Currency:         cfg.Currency,
		AmountMinorUnits: breakdown.Total,
		Breakdown:        breakdown,
		Credentials: models.Credentials{
			ApplicationID: cfg.ApplicationID,
			LocationID:    cfg.LocationID,
			Environment:   cfg.Environment.String(),
		},
	}
	if c := cart.Coupon(); c != nil {
		req.CouponCode = c.Code
	}
	return req
}
