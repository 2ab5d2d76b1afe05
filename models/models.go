package models

// CustomerInfo is the contact block of the checkout form.
type CustomerInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Address is a postal address as entered on the checkout form.
type Address struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// LineItem is one cart row priced in minor currency units.
type LineItem struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceMinor int64  `json:"unitPriceMinor"`
}

// Breakdown carries the order totals in minor currency units.
type Breakdown struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// Credentials identifies the merchant account a payment is taken for.
type Credentials struct {
	ApplicationID string `json:"applicationId"`
	LocationID    string `json:"locationId"`
	Environment   string `json:"environment"`
}

// PaymentRequest is sent once per user-initiated submission.
type PaymentRequest struct {
	Token            string       `json:"token"`
	IdempotencyKey   string       `json:"idempotencyKey"`
	CustomerInfo     CustomerInfo `json:"customerInfo"`
	ShippingAddress  Address      `json:"shippingAddress"`
	BillingAddress   Address      `json:"billingAddress"`
	Items            []LineItem   `json:"items"`
	Currency         string       `json:"currency"`
	AmountMinorUnits int64        `json:"amountMinorUnits"`
	Breakdown        Breakdown    `json:"breakdown"`
	CouponCode       string       `json:"couponCode,omitempty"`
	Credentials      Credentials  `json:"credentials"`
}

// Error codes the backend payment function sets on failures of its own.
// Provider decline codes are passed through unchanged.
const (
	ErrorCodeBadRequest          = "BAD_REQUEST"
	ErrorCodeInvalidRequest      = "INVALID_REQUEST"
	ErrorCodeInFlight            = "IDEMPOTENCY_IN_FLIGHT"
	ErrorCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrorCodeInternal            = "INTERNAL"
	ErrorCodeRateLimited         = "RATE_LIMITED"
)

// PaymentResult is the structured answer of the backend payment function.
type PaymentResult struct {
	Success   bool   `json:"success"`
	OrderID   string `json:"orderId,omitempty"`
	PaymentID string `json:"paymentId,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// SyncResult is the answer of the backend reconciliation function.
type SyncResult struct {
	SyncedCount int `json:"syncedCount"`
}

// CheckoutConfig is the public configuration the client bootstraps from.
type CheckoutConfig struct {
	ApplicationID string `json:"applicationId"`
	LocationID    string `json:"locationId"`
	Environment   string `json:"environment"`
	Currency      string `json:"currency"`
}
