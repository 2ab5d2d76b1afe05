package checkout

import (
	"context"

	"github.com/shopspring/decimal"

	"storefront-checkout/guard"
	"storefront-checkout/models"
	"storefront-checkout/pricing"
)

// SDKState tracks the hosted payment SDK bootstrap.
type SDKState int

const (
	SDKLoading SDKState = iota
	SDKReady
	SDKError
)

func (s SDKState) String() string {
	switch s {
	case SDKLoading:
		return "loading"
	case SDKReady:
		return "ready"
	case SDKError:
		return "error"
	}
	return "unknown"
}

// SubmissionState tracks a payment submission.
type SubmissionState int

const (
	SubmissionIdle SubmissionState = iota
	SubmissionProcessing
	SubmissionSuccess
	SubmissionError
)

func (s SubmissionState) String() string {
	switch s {
	case SubmissionIdle:
		return "idle"
	case SubmissionProcessing:
		return "processing"
	case SubmissionSuccess:
		return "success"
	case SubmissionError:
		return "error"
	}
	return "unknown"
}

// ClientConfig is handed to the hosted SDK's payments constructor.
type ClientConfig struct {
	ApplicationID string
	LocationID    string
	Environment   guard.Environment
}

// ScriptLoader exposes the hosted SDK's global entry point once the
// script has loaded.
type ScriptLoader interface {
	Payments() (PaymentsSDK, bool)
}

// PaymentsSDK constructs payments clients.
type PaymentsSDK interface {
	NewPayments(cfg ClientConfig) (PaymentsClient, error)
}

// PaymentsClient is bound to one merchant application and location.
type PaymentsClient interface {
	Card(ctx context.Context) (CardField, error)
}

// CardField is a hosted card-entry element. It must not be used after Destroy.
type CardField interface {
	Attach(ctx context.Context, c Container) error
	Tokenize(ctx context.Context) (TokenResult, error)
	Destroy(ctx context.Context) error
}

// TokenStatusOK is the only tokenization status that yields a usable token.
const TokenStatusOK = "OK"

// TokenResult is the outcome of tokenizing the card held by a CardField.
type TokenResult struct {
	Status string
	Token  string
	Errors []string
}

// Container is the element a hosted card field is mounted into.
type Container interface {
	Clear()
	MarkProviderOwned()
}

// ContainerLocator finds a mounted container by id. ok is false while the
// container is not mounted yet.
type ContainerLocator interface {
	Find(id string) (c Container, ok bool)
}

// CartItem is one line of the shopping cart.
type CartItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Cart is the pricing collaborator checkout reads from. Its figures are
// authoritative; totals are recomputed from them on every submission.
type Cart interface {
	Items() []CartItem
	Subtotal() decimal.Decimal
	DiscountedSubtotal() decimal.Decimal
	Coupon() *pricing.Coupon
	Clear(ctx context.Context) error
}

// Backend is the server side of checkout.
type Backend interface {
	ProcessPayment(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResult, error)
	OrderSyncer
}

// OrderSyncer triggers order reconciliation.
type OrderSyncer interface {
	SyncOrders(ctx context.Context) (*models.SyncResult, error)
}
