// Package checkout runs the shopper-facing payment flow: it bootstraps the
// hosted card SDK, mounts the card field, validates the order form, tokenizes
// the card and submits the payment to the backend.
//
// A Session owns the payments client and the card field for as long as it is
// mounted. Nothing else may hold them, and Unmount releases both.
package checkout

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront-checkout/guard"
	"storefront-checkout/logging"
	"storefront-checkout/models"
	"storefront-checkout/pricing"
)

// Config is the per-view checkout configuration.
type Config struct {
	ApplicationID string
	LocationID    string
	Environment   guard.Environment
	Currency      string
	Rates         pricing.Rates

	// Origin is the page the checkout is served from.
	Origin *url.URL
	// ContainerID names the element the card field is mounted into.
	ContainerID string

	MaxSDKAttempts    int
	SDKBaseDelay      time.Duration
	MaxAttachAttempts int
	AttachInterval    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSDKAttempts <= 0 {
		c.MaxSDKAttempts = 5
	}
	if c.SDKBaseDelay <= 0 {
		c.SDKBaseDelay = 500 * time.Millisecond
	}
	if c.MaxAttachAttempts <= 0 {
		c.MaxAttachAttempts = 3
	}
	if c.AttachInterval <= 0 {
		c.AttachInterval = 100 * time.Millisecond
	}
	if c.ContainerID == "" {
		c.ContainerID = "card-container"
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	return c
}

// Deps are the collaborators a Session drives.
type Deps struct {
	Loader     ScriptLoader
	Containers ContainerLocator
	Cart       Cart
	Backend    Backend
}

// Option customises a Session.
type Option func(*Session)

// WithLogger sets the logger. The package logger is used otherwise.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithTimer replaces the timer used between retries.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(s *Session) { s.newTimer = newTimer }
}

// WithOnSuccess registers a callback invoked after a successful payment.
func WithOnSuccess(fn func(*models.PaymentResult)) Option {
	return func(s *Session) { s.onSuccess = fn }
}

// WithIdempotencyKeys replaces the idempotency key generator.
func WithIdempotencyKeys(fn func() string) Option {
	return func(s *Session) { s.newKey = fn }
}

// BootstrapReport counts the work a bootstrap did.
type BootstrapReport struct {
	SDKAttempts    int
	AttachAttempts int
}

// Session is one mounted checkout view.
type Session struct {
	deps      Deps
	log       *zap.Logger
	newTimer  func() backoff.Timer
	onSuccess func(*models.PaymentResult)
	newKey    func() string

	mu         sync.Mutex
	cfg        Config
	mounted    bool
	generation uint64
	cancel     context.CancelFunc
	sdkState   SDKState
	sdkErr     *Error
	submission SubmissionState
	lastErr    *Error
	client     PaymentsClient
	card       CardField
	report     BootstrapReport
	idemKey    string
}

// NewSession creates an unmounted session.
func NewSession(cfg Config, deps Deps, opts ...Option) *Session {
	s := &Session{
		deps:     deps,
		cfg:      cfg.withDefaults(),
		newTimer: func() backoff.Timer { return nil },
		newKey:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.GetLogger()
	}
	s.idemKey = s.newKey()
	return s
}

// Mount bootstraps the SDK and attaches the card field. It blocks until the
// session is ready, has failed, or ctx is cancelled. The returned error is a
// *Error for environment, bootstrap and attachment failures.
func (s *Session) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return ErrAlreadyMounted
	}
	s.mounted = true
	gen, runCtx, cfg := s.beginLocked(ctx)
	s.mu.Unlock()

	return s.run(runCtx, gen, cfg)
}

// Remount tears down the current card field and bootstraps again with cfg,
// for example after a credential rotation.
func (s *Session) Remount(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return ErrUnmounted
	}
	old := s.releaseLocked()
	s.cfg = cfg.withDefaults()
	gen, runCtx, runCfg := s.beginLocked(ctx)
	s.mu.Unlock()

	s.destroyCard(ctx, old)
	return s.run(runCtx, gen, runCfg)
}

// Unmount cancels pending retries and destroys the card field. A payment
// response that arrives afterwards is discarded.
func (s *Session) Unmount(ctx context.Context) {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = false
	old := s.releaseLocked()
	s.mu.Unlock()

	s.destroyCard(ctx, old)
}

// beginLocked starts a new bootstrap generation. Callers hold s.mu.
func (s *Session) beginLocked(parent context.Context) (uint64, context.Context, Config) {
	s.generation++
	runCtx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.sdkState = SDKLoading
	s.sdkErr = nil
	s.submission = SubmissionIdle
	s.lastErr = nil
	s.report = BootstrapReport{}
	return s.generation, runCtx, s.cfg
}

// releaseLocked invalidates the current generation and hands back the card
// field for destruction. Callers hold s.mu.
func (s *Session) releaseLocked() CardField {
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	card := s.card
	s.card = nil
	s.client = nil
	s.submission = SubmissionIdle
	return card
}

func (s *Session) run(ctx context.Context, gen uint64, cfg Config) error {
	client, card, report, err := s.bootstrap(ctx, cfg)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.destroyCard(context.Background(), card)
		return ErrUnmounted
	}
	s.report = report
	if err != nil {
		s.sdkState = SDKError
		s.sdkErr = err
		s.mu.Unlock()
		s.log.Error("Checkout bootstrap failed",
			zap.String("kind", err.Kind.String()),
			zap.String("message", err.Message),
			zap.Int("sdk_attempts", report.SDKAttempts),
			zap.Int("attach_attempts", report.AttachAttempts),
			zap.Error(err.Err),
		)
		return err
	}
	s.client = client
	s.card = card
	s.sdkState = SDKReady
	s.mu.Unlock()

	s.log.Info("Checkout ready",
		zap.String("environment", cfg.Environment.String()),
		zap.Int("sdk_attempts", report.SDKAttempts),
		zap.Int("attach_attempts", report.AttachAttempts),
	)
	return nil
}

// destroyCard releases a card field. Failures are logged, never returned:
// a failed teardown must not block reinitialisation.
func (s *Session) destroyCard(ctx context.Context, card CardField) {
	if card == nil {
		return
	}
	if err := card.Destroy(ctx); err != nil {
		s.log.Warn("Failed to destroy card field", zap.Error(err))
	}
}

// SDKState returns the bootstrap state.
func (s *Session) SDKState() SDKState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sdkState
}

// SDKError returns the bootstrap failure, if any.
func (s *Session) SDKError() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sdkErr
}

// SubmissionState returns the state of the latest submission.
func (s *Session) SubmissionState() SubmissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submission
}

// LastError returns the failure of the latest submission attempt.
func (s *Session) LastError() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Report returns attempt counters of the latest bootstrap.
func (s *Session) Report() BootstrapReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// CanSubmit reports whether the pay action should be enabled.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted && s.sdkState == SDKReady && s.card != nil && s.submission != SubmissionProcessing
}
