package checkout

import (
	"errors"
	"fmt"
)

// Kind groups checkout failures by what they block.
type Kind int

const (
	// KindEnvironment: insecure transport or missing credentials. Blocks the view.
	KindEnvironment Kind = iota + 1
	// KindBootstrap: SDK unavailable or client construction failed. Blocks the view.
	KindBootstrap
	// KindAttachment: the card field could not be mounted. Blocks submission.
	KindAttachment
	// KindValidation: user-correctable form problems.
	KindValidation
	// KindSubmission: tokenization, decline or transport failure. Resubmission allowed.
	KindSubmission
)

func (k Kind) String() string {
	switch k {
	case KindEnvironment:
		return "environment"
	case KindBootstrap:
		return "bootstrap"
	case KindAttachment:
		return "attachment"
	case KindValidation:
		return "validation"
	case KindSubmission:
		return "submission"
	}
	return "unknown"
}

// Error is a classified checkout failure. Message is safe to show to a shopper.
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BlocksCheckout reports whether the whole checkout view is unusable.
func (e *Error) BlocksCheckout() bool {
	return e.Kind == KindEnvironment || e.Kind == KindBootstrap
}

// Retryable reports whether the shopper may simply try again.
func (e *Error) Retryable() bool {
	return e.Kind == KindValidation || e.Kind == KindSubmission
}

var (
	ErrNotInitialized       = errors.New("checkout: payment form is not initialized")
	ErrSubmissionInProgress = errors.New("checkout: a payment is already being processed")
	ErrUnmounted            = errors.New("checkout: session was unmounted")
	ErrAlreadyMounted       = errors.New("checkout: session is already mounted")

	errSDKUnavailable   = errors.New("payment SDK entry point not available")
	errContainerMissing = errors.New("card container not mounted")
)

// AsError extracts a classified checkout error from err.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
