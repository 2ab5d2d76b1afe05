package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"storefront-checkout/guard"
)

// linearBackOff waits attempt × base between attempts.
type linearBackOff struct {
	base    time.Duration
	attempt int64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.base
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// bootstrap runs guard → SDK load → credential checks → client → card.
// It never touches session state; run applies the outcome.
func (s *Session) bootstrap(ctx context.Context, cfg Config) (PaymentsClient, CardField, BootstrapReport, *Error) {
	var report BootstrapReport

	if !guard.CheckSecureContext(cfg.Origin) {
		return nil, nil, report, &Error{Kind: KindEnvironment, Message: secureContextMessage}
	}

	sdk, err := s.loadSDK(ctx, cfg, &report)
	if err != nil {
		return nil, nil, report, &Error{Kind: KindBootstrap, Message: sdkUnavailableMessage, Err: err}
	}

	if strings.TrimSpace(cfg.ApplicationID) == "" || strings.TrimSpace(cfg.LocationID) == "" {
		return nil, nil, report, &Error{
			Kind:    KindEnvironment,
			Message: missingCredentials,
			Err:     errors.New("application id and location id are required"),
		}
	}

	if !guard.ValidateCredentialEnvironment(cfg.ApplicationID, cfg.Environment) {
		s.log.Warn("Application id does not look like it belongs to the payment environment",
			zap.String("environment", cfg.Environment.String()),
		)
	}

	client, err := s.newPaymentsClient(sdk, cfg)
	if err != nil {
		return nil, nil, report, &Error{Kind: KindBootstrap, Message: ClassifyBootstrapError(err), Err: err}
	}

	card, err := s.attachCard(ctx, client, cfg, &report)
	if err != nil {
		return nil, nil, report, &Error{Kind: KindAttachment, Message: attachFailedMessage, Err: err}
	}
	return client, card, report, nil
}

// loadSDK polls for the SDK entry point with a linearly growing delay.
func (s *Session) loadSDK(ctx context.Context, cfg Config, report *BootstrapReport) (PaymentsSDK, error) {
	var sdk PaymentsSDK
	poll := func() error {
		report.SDKAttempts++
		p, ok := s.deps.Loader.Payments()
		if !ok || p == nil {
			return errSDKUnavailable
		}
		sdk = p
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{base: cfg.SDKBaseDelay}, uint64(cfg.MaxSDKAttempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		s.log.Debug("Payment SDK not loaded yet, retrying",
			zap.Int("attempt", report.SDKAttempts),
			zap.Duration("wait", wait),
		)
	}
	if err := backoff.RetryNotifyWithTimer(poll, policy, notify, s.newTimer()); err != nil {
		return nil, err
	}
	return sdk, nil
}

// newPaymentsClient turns a panicking constructor into an error.
func (s *Session) newPaymentsClient(sdk PaymentsSDK, cfg Config) (client PaymentsClient, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{r}
		}
	}()
	return sdk.NewPayments(ClientConfig{
		ApplicationID: cfg.ApplicationID,
		LocationID:    cfg.LocationID,
		Environment:   cfg.Environment,
	})
}

type panicError struct{ v any }

func (p panicError) Error() string {
	if err, ok := p.v.(error); ok {
		return err.Error()
	}
	if s, ok := p.v.(string); ok {
		return s
	}
	return "payments constructor panicked"
}
