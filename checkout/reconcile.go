package checkout

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"storefront-checkout/logging"
)

// ReconciliationResult reports one reconciliation run.
type ReconciliationResult struct {
	SyncedCount int
}

// ReconcileOrders asks the backend to copy provider orders missing from the
// local store. It is safe to call repeatedly; a run that finds nothing new
// reports zero. A failed run may have synced some orders; calling again
// picks up the rest.
func ReconcileOrders(ctx context.Context, syncer OrderSyncer, log *zap.Logger) (ReconciliationResult, error) {
	if log == nil {
		log = logging.GetLogger()
	}
	res, err := syncer.SyncOrders(ctx)
	if err != nil {
		log.Error("Order reconciliation failed", zap.Error(err))
		return ReconciliationResult{}, fmt.Errorf("sync orders: %w", err)
	}
	if res == nil {
		return ReconciliationResult{}, nil
	}
	log.Info("Order reconciliation finished", zap.Int("synced_count", res.SyncedCount))
	return ReconciliationResult{SyncedCount: res.SyncedCount}, nil
}
