package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storefront-checkout/logging"
	"storefront-checkout/models"
	"storefront-checkout/monitoring"
	"storefront-checkout/provider"
	"storefront-checkout/repository"
)

const defaultPageSize = 100

// OrderSource pages through the provider's orders.
type OrderSource interface {
	SearchOrders(ctx context.Context, locationID, cursor string, limit int) (*provider.OrdersPage, error)
}

// SyncService copies provider orders that are missing from the local store.
type SyncService struct {
	tracer     trace.Tracer
	source     OrderSource
	orders     repository.OrderRepository
	locationID string
	pageSize   int
}

// NewSyncService creates a new reconciliation service
func NewSyncService(tracer trace.Tracer, source OrderSource, orders repository.OrderRepository, locationID string) *SyncService {
	return &SyncService{
		tracer:     tracer,
		source:     source,
		orders:     orders,
		locationID: locationID,
		pageSize:   defaultPageSize,
	}
}

// SyncOrders walks every page of provider orders and inserts the ones not
// stored yet. Only rows actually written are counted, so a run right after
// another reports zero. Pages are not applied atomically: on error the
// count of what was inserted so far is returned with it, and a rerun
// carries on from the dedup key.
func (s *SyncService) SyncOrders(ctx context.Context) (*models.SyncResult, error) {
	ctx, span := s.tracer.Start(ctx, "sync_orders")
	defer span.End()
	logger := logging.WithTraceContext(span)

	synced, pages := 0, 0
	cursor := ""
	seen := map[string]bool{}
	for {
		page, err := s.source.SearchOrders(ctx, s.locationID, cursor, s.pageSize)
		if err != nil {
			return s.finish(ctx, span, logger, synced, fmt.Errorf("search orders: %w", err))
		}
		pages++

		ids := make([]string, 0, len(page.Orders))
		paymentIDs := make([]string, 0, len(page.Orders))
		for _, o := range page.Orders {
			ids = append(ids, o.ID)
			if pid := paymentID(o); pid != "" {
				paymentIDs = append(paymentIDs, pid)
			}
		}
		existing, err := s.orders.ExistingProviderIDs(ctx, ids)
		if err != nil {
			return s.finish(ctx, span, logger, synced, fmt.Errorf("load existing orders: %w", err))
		}
		paid, err := s.orders.ExistingPaymentIDs(ctx, paymentIDs)
		if err != nil {
			return s.finish(ctx, span, logger, synced, fmt.Errorf("load existing payments: %w", err))
		}

		for _, o := range page.Orders {
			if _, ok := existing[o.ID]; ok || o.ID == "" {
				continue
			}
			// Checkout recorded this payment before its order was known.
			if pid := paymentID(o); pid != "" {
				if _, ok := paid[pid]; ok {
					if _, err := s.orders.LinkProviderOrder(ctx, pid, o.ID); err != nil {
						return s.finish(ctx, span, logger, synced, fmt.Errorf("link order %s: %w", o.ID, err))
					}
					logger.Info("Linked stored payment to provider order",
						zap.String("payment_id", pid),
						zap.String("provider_order_id", o.ID),
					)
					continue
				}
			}
			inserted, err := s.orders.InsertIfAbsent(ctx, orderFromProvider(o))
			if err != nil {
				return s.finish(ctx, span, logger, synced, fmt.Errorf("insert order %s: %w", o.ID, err))
			}
			if inserted {
				synced++
			}
		}

		if page.Cursor == "" || seen[page.Cursor] {
			break
		}
		seen[page.Cursor] = true
		cursor = page.Cursor
	}

	span.SetAttributes(attribute.Int("sync.pages", pages))
	return s.finish(ctx, span, logger, synced, nil)
}

func (s *SyncService) finish(ctx context.Context, span trace.Span, logger *zap.Logger, synced int, err error) (*models.SyncResult, error) {
	monitoring.OrdersSynced.Add(ctx, int64(synced), metric.WithAttributes(attribute.String("location_id", s.locationID)))
	span.SetAttributes(attribute.Int("sync.synced_count", synced))
	res := &models.SyncResult{SyncedCount: synced}
	if err != nil {
		logger.Error("Order sync failed", zap.Int("synced_count", synced), zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	logger.Info("Order sync completed", zap.Int("synced_count", synced))
	return res, nil
}

func orderStatus(o provider.Order) models.OrderStatus {
	switch strings.ToUpper(o.State) {
	case "COMPLETED":
		return models.OrderStatusFulfilled
	case "CANCELED", "CANCELLED":
		return models.OrderStatusCancelled
	}
	if len(o.Tenders) > 0 {
		return models.OrderStatusPaid
	}
	return models.OrderStatusPending
}

func orderFromProvider(o provider.Order) *models.Order {
	items := make([]models.LineItem, 0, len(o.LineItems))
	var subtotal int64
	for _, li := range o.LineItems {
		qty := 0
		if d, err := decimal.NewFromString(li.Quantity); err == nil {
			qty = int(d.IntPart())
		}
		items = append(items, models.LineItem{
			ProductID:      li.CatalogObjectID,
			Name:           li.Name,
			Quantity:       qty,
			UnitPriceMinor: li.BasePriceMoney.Amount,
		})
		subtotal += li.BasePriceMoney.Amount * int64(qty)
	}

	total := o.TotalMoney.Amount
	tax := o.TotalTaxMoney.Amount
	shipping := total - subtotal - tax
	if shipping < 0 {
		shipping = 0
	}

	order := &models.Order{
		ProviderOrderID: o.ID,
		Status:          orderStatus(o),
		Items:           items,
		Currency:        o.TotalMoney.Currency,
		SubtotalMinor:   subtotal,
		ShippingMinor:   shipping,
		TaxMinor:        tax,
		TotalMinor:      total,
		CreatedAt:       o.CreatedAt,
	}
	if pid := paymentID(o); pid != "" {
		order.ProviderPaymentID = &pid
	}
	return order
}

// paymentID is the payment behind the order's first tender, if any.
func paymentID(o provider.Order) string {
	if len(o.Tenders) == 0 {
		return ""
	}
	return o.Tenders[0].PaymentID
}
