package service

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace/noop"

	"storefront-checkout/models"
	"storefront-checkout/provider"
)

var tracer = noop.NewTracerProvider().Tracer("test")

type fakeProvider struct {
	payment *provider.Payment
	err     error
	calls   []provider.CreatePaymentRequest
}

func (p *fakeProvider) CreatePayment(_ context.Context, req provider.CreatePaymentRequest) (*provider.Payment, error) {
	p.calls = append(p.calls, req)
	return p.payment, p.err
}

// fakeOrders is an in-memory OrderRepository keyed by provider order id.
type fakeOrders struct {
	mu        sync.Mutex
	byID      map[string]*models.Order
	createErr error
	insertErr error
	inserts   int
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{byID: map[string]*models.Order{}}
}

func (r *fakeOrders) Create(_ context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.byID[o.ProviderOrderID] = o
	return nil
}

func (r *fakeOrders) InsertIfAbsent(_ context.Context, o *models.Order) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if r.insertErr != nil {
		return false, r.insertErr
	}
	if _, ok := r.byID[o.ProviderOrderID]; ok {
		return false, nil
	}
	r.byID[o.ProviderOrderID] = o
	return true, nil
}

func (r *fakeOrders) ExistingProviderIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := map[string]struct{}{}
	for _, id := range ids {
		if _, ok := r.byID[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func (r *fakeOrders) ExistingPaymentIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := map[string]struct{}{}
	for _, o := range r.byID {
		for _, id := range ids {
			if o.ProviderPaymentID != nil && *o.ProviderPaymentID == id {
				found[id] = struct{}{}
			}
		}
	}
	return found, nil
}

func (r *fakeOrders) LinkProviderOrder(_ context.Context, paymentID, providerOrderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, o := range r.byID {
		if o.ProviderPaymentID != nil && *o.ProviderPaymentID == paymentID {
			delete(r.byID, key)
			o.ProviderOrderID = providerOrderID
			r.byID[providerOrderID] = o
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeOrders) get(id string) *models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

func (r *fakeOrders) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// fakeSource serves pages keyed by the cursor that requests them.
type fakeSource struct {
	pages   map[string]*provider.OrdersPage
	err     error
	cursors []string
}

func (s *fakeSource) SearchOrders(_ context.Context, _, cursor string, _ int) (*provider.OrdersPage, error) {
	s.cursors = append(s.cursors, cursor)
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.pages[cursor]; ok {
		return p, nil
	}
	return &provider.OrdersPage{}, nil
}
