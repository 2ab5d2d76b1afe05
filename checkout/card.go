package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// attachCard waits for the card container at a fixed interval, then mounts
// a fresh card field into it. The container is cleared first so attaching
// twice leaves a single field.
func (s *Session) attachCard(ctx context.Context, client PaymentsClient, cfg Config, report *BootstrapReport) (CardField, error) {
	var container Container
	find := func() error {
		report.AttachAttempts++
		c, ok := s.deps.Containers.Find(cfg.ContainerID)
		if !ok || c == nil {
			return errContainerMissing
		}
		container = c
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.AttachInterval), uint64(cfg.MaxAttachAttempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		s.log.Debug("Card container not mounted yet, retrying",
			zap.String("container_id", cfg.ContainerID),
			zap.Int("attempt", report.AttachAttempts),
		)
	}
	if err := backoff.RetryNotifyWithTimer(find, policy, notify, s.newTimer()); err != nil {
		return nil, fmt.Errorf("container %q: %w", cfg.ContainerID, err)
	}

	container.Clear()
	container.MarkProviderOwned()

	card, err := client.Card(ctx)
	if err != nil {
		return nil, fmt.Errorf("create card field: %w", err)
	}
	if err := card.Attach(ctx, container); err != nil {
		s.destroyCard(ctx, card)
		return nil, fmt.Errorf("attach card field: %w", err)
	}
	return card, nil
}
