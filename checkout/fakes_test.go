package checkout

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"storefront-checkout/guard"
	"storefront-checkout/models"
	"storefront-checkout/pricing"
)

// events records the order in which fakes were touched.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

type fakeLoader struct {
	mu         sync.Mutex
	sdk        PaymentsSDK
	readyAfter int
	calls      int
}

func (l *fakeLoader) Payments() (PaymentsSDK, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.sdk == nil || l.calls <= l.readyAfter {
		return nil, false
	}
	return l.sdk, true
}

func (l *fakeLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type fakeSDK struct {
	client    *fakeClient
	err       error
	panicWith any
	calls     int
	got       ClientConfig
}

func (s *fakeSDK) NewPayments(cfg ClientConfig) (PaymentsClient, error) {
	s.calls++
	s.got = cfg
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.client, nil
}

type fakeClient struct {
	ev         *events
	cardErr    error
	attachErr  error
	token      TokenResult
	tokenErr   error
	destroyErr error
	cards      []*fakeCard
}

func (c *fakeClient) Card(context.Context) (CardField, error) {
	if c.cardErr != nil {
		return nil, c.cardErr
	}
	card := &fakeCard{
		id:         len(c.cards) + 1,
		ev:         c.ev,
		attachErr:  c.attachErr,
		token:      c.token,
		tokenErr:   c.tokenErr,
		destroyErr: c.destroyErr,
	}
	c.cards = append(c.cards, card)
	c.ev.add("card.create")
	return card, nil
}

type fakeCard struct {
	id         int
	ev         *events
	attachErr  error
	token      TokenResult
	tokenErr   error
	destroyErr error

	mu            sync.Mutex
	attachedTo    Container
	tokenizeCalls int
	destroyed     bool
}

func (c *fakeCard) Attach(_ context.Context, ct Container) error {
	if c.attachErr != nil {
		return c.attachErr
	}
	c.attachedTo = ct
	c.ev.add("card.attach")
	return nil
}

func (c *fakeCard) Tokenize(context.Context) (TokenResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		panic("tokenize called on destroyed card field")
	}
	c.tokenizeCalls++
	return c.token, c.tokenErr
}

func (c *fakeCard) Destroy(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
	c.ev.add("card.destroy")
	return c.destroyErr
}

type fakeContainer struct {
	cleared int
	owned   int
}

func (c *fakeContainer) Clear()             { c.cleared++ }
func (c *fakeContainer) MarkProviderOwned() { c.owned++ }

type fakeLocator struct {
	container      *fakeContainer
	availableAfter int
	calls          int
}

func (l *fakeLocator) Find(string) (Container, bool) {
	l.calls++
	if l.container == nil || l.calls <= l.availableAfter {
		return nil, false
	}
	return l.container, true
}

type fakeCart struct {
	mu         sync.Mutex
	items      []CartItem
	subtotal   decimal.Decimal
	discounted decimal.Decimal
	coupon     *pricing.Coupon
	clearErr   error
	clears     int
}

func (c *fakeCart) Items() []CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CartItem(nil), c.items...)
}

func (c *fakeCart) Subtotal() decimal.Decimal           { return c.subtotal }
func (c *fakeCart) DiscountedSubtotal() decimal.Decimal { return c.discounted }
func (c *fakeCart) Coupon() *pricing.Coupon             { return c.coupon }

func (c *fakeCart) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
	if c.clearErr != nil {
		return c.clearErr
	}
	c.items = nil
	return nil
}

func (c *fakeCart) Count() int {
	return itemCount(c.Items())
}

type fakeBackend struct {
	mu       sync.Mutex
	results  []*models.PaymentResult
	errs     []error
	requests []*models.PaymentRequest
	gate     chan struct{}
	entered  chan struct{}
	synced   *models.SyncResult
	syncErr  error
}

func (b *fakeBackend) ProcessPayment(_ context.Context, req *models.PaymentRequest) (*models.PaymentResult, error) {
	b.mu.Lock()
	i := len(b.requests)
	b.requests = append(b.requests, req)
	gate, entered := b.gate, b.entered
	b.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	var res *models.PaymentResult
	var err error
	if i < len(b.results) {
		res = b.results[i]
	}
	if i < len(b.errs) {
		err = b.errs[i]
	}
	return res, err
}

func (b *fakeBackend) SyncOrders(context.Context) (*models.SyncResult, error) {
	return b.synced, b.syncErr
}

func (b *fakeBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// instantTimer fires immediately and remembers every requested wait.
type instantTimer struct {
	c     chan time.Time
	waits *[]time.Duration
}

func (t *instantTimer) Start(d time.Duration) {
	*t.waits = append(*t.waits, d)
	t.c <- time.Now()
}
func (t *instantTimer) Stop()                 {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

func instantTimers(waits *[]time.Duration) func() backoff.Timer {
	return func() backoff.Timer {
		return &instantTimer{c: make(chan time.Time, 1), waits: waits}
	}
}

// stuckTimer never fires; started is signalled on every Start.
type stuckTimer struct {
	c       chan time.Time
	started chan struct{}
}

func (t *stuckTimer) Start(time.Duration) { t.started <- struct{}{} }
func (t *stuckTimer) Stop()               {}
func (t *stuckTimer) C() <-chan time.Time { return t.c }

type harness struct {
	session   *Session
	loader    *fakeLoader
	sdk       *fakeSDK
	client    *fakeClient
	locator   *fakeLocator
	container *fakeContainer
	cart      *fakeCart
	backend   *fakeBackend
	ev        *events
	waits     []time.Duration
	logs      *observer.ObservedLogs
	successes []*models.PaymentResult
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig() Config {
	origin, _ := url.Parse("https://shop.example.com")
	return Config{
		ApplicationID:     "sandbox-sq0idb-test",
		LocationID:        "L1",
		Environment:       guard.Sandbox,
		Currency:          "USD",
		Rates:             pricing.Rates{ShippingFlatRate: d("5.99"), TaxRate: d("0.08")},
		Origin:            origin,
		ContainerID:       "card-container",
		MaxSDKAttempts:    5,
		SDKBaseDelay:      100 * time.Millisecond,
		MaxAttachAttempts: 3,
		AttachInterval:    50 * time.Millisecond,
	}
}

// scenarioCart is $40.00 of goods with a 10% coupon applied.
func scenarioCart() *fakeCart {
	coupon := &pricing.Coupon{Code: "SAVE10", DiscountFraction: d("0.10")}
	return &fakeCart{
		items: []CartItem{
			{ProductID: "p-1", Name: "Candle", Quantity: 2, UnitPrice: d("15.00")},
			{ProductID: "p-2", Name: "Soap", Quantity: 1, UnitPrice: d("10.00")},
		},
		subtotal:   d("40.00"),
		discounted: d("36.00"),
		coupon:     coupon,
	}
}

func newHarness(t *testing.T, cfg Config, mutate ...func(h *harness)) *harness {
	t.Helper()
	ev := &events{}
	h := &harness{ev: ev}
	h.client = &fakeClient{ev: ev, token: TokenResult{Status: TokenStatusOK, Token: "cnon:card-nonce-ok"}}
	h.sdk = &fakeSDK{client: h.client}
	h.loader = &fakeLoader{sdk: h.sdk}
	h.container = &fakeContainer{}
	h.locator = &fakeLocator{container: h.container}
	h.cart = scenarioCart()
	h.backend = &fakeBackend{}
	for _, m := range mutate {
		m(h)
	}

	core, logs := observer.New(zap.DebugLevel)
	h.logs = logs
	keys := 0
	h.session = NewSession(cfg, Deps{
		Loader:     h.loader,
		Containers: h.locator,
		Cart:       h.cart,
		Backend:    h.backend,
	},
		WithLogger(zap.New(core)),
		WithTimer(instantTimers(&h.waits)),
		WithOnSuccess(func(r *models.PaymentResult) { h.successes = append(h.successes, r) }),
		WithIdempotencyKeys(func() string {
			keys++
			return "key-" + string(rune('0'+keys))
		}),
	)
	return h
}

var errBoom = errors.New("boom")
