package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-checkout/models"
)

// OrderRepository defines data-access operations for orders.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	InsertIfAbsent(ctx context.Context, order *models.Order) (bool, error)
	ExistingProviderIDs(ctx context.Context, providerOrderIDs []string) (map[string]struct{}, error)
	ExistingPaymentIDs(ctx context.Context, providerPaymentIDs []string) (map[string]struct{}, error)
	LinkProviderOrder(ctx context.Context, providerPaymentID, providerOrderID string) (bool, error)
}

// GormOrderRepository implements OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository.
func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(order).Error
}

// InsertIfAbsent inserts order unless one with the same provider order id
// exists. It reports whether a row was written.
func (r *GormOrderRepository) InsertIfAbsent(ctx context.Context, order *models.Order) (bool, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_order_id"}},
			DoNothing: true,
		}).
		Create(order)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ExistingProviderIDs returns the subset of providerOrderIDs already stored.
func (r *GormOrderRepository) ExistingProviderIDs(ctx context.Context, providerOrderIDs []string) (map[string]struct{}, error) {
	return r.pluckExisting(ctx, "provider_order_id", providerOrderIDs)
}

// ExistingPaymentIDs returns the subset of providerPaymentIDs already stored.
func (r *GormOrderRepository) ExistingPaymentIDs(ctx context.Context, providerPaymentIDs []string) (map[string]struct{}, error) {
	return r.pluckExisting(ctx, "provider_payment_id", providerPaymentIDs)
}

// LinkProviderOrder re-keys the order recorded for a payment to the provider
// order that carries it. It reports whether such an order was found.
func (r *GormOrderRepository) LinkProviderOrder(ctx context.Context, providerPaymentID, providerOrderID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("provider_payment_id = ?", providerPaymentID).
		Update("provider_order_id", providerOrderID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormOrderRepository) pluckExisting(ctx context.Context, column string, values []string) (map[string]struct{}, error) {
	found := make(map[string]struct{}, len(values))
	if len(values) == 0 {
		return found, nil
	}
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where(column+" IN ?", values).
		Pluck(column, &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		found[id] = struct{}{}
	}
	return found, nil
}
