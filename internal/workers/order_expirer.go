package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/sand/whitetriangle/backend/internal/entities"
)

type OrderExpiryService interface {
	ExpireOrders(ctx context.Context, olderThan time.Duration) ([]entities.Order, error)
}

// OrderExpirer worker cancels PENDING orders nobody paid for in time
type OrderExpirer struct {
	logger       *slog.Logger
	orderService OrderExpiryService

	// Age after which an unpaid order is cancelled
	expiration time.Duration

	// How often to look for stale orders
	checkInterval time.Duration
}

func NewOrderExpirer(
	logger *slog.Logger,
	orderService OrderExpiryService,
	expiration time.Duration,
	checkInterval time.Duration,
) *OrderExpirer {
	return &OrderExpirer{
		logger:        logger,
		orderService:  orderService,
		expiration:    expiration,
		checkInterval: checkInterval,
	}
}

// Start runs one pass immediately, then one per checkInterval until ctx is done.
func (oe *OrderExpirer) Start(ctx context.Context) {
	oe.logger.Info("Starting order expiry worker",
		"expiration", oe.expiration.String(),
		"check_interval", oe.checkInterval.String())

	if err := oe.expireStaleOrders(ctx); err != nil {
		oe.logger.Error("Initial order expiry failed", "error", err)
	}

	ticker := time.NewTicker(oe.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			oe.logger.Info("Order expiry worker stopped")
			return
		case <-ticker.C:
			if err := oe.expireStaleOrders(ctx); err != nil {
				oe.logger.Error("Order expiry failed", "error", err)
			}
		}
	}
}

func (oe *OrderExpirer) expireStaleOrders(ctx context.Context) error {
	oe.logger.Debug("Looking for stale orders", "older_than", oe.expiration.String())

	expired, err := oe.orderService.ExpireOrders(ctx, oe.expiration)
	if err != nil {
		return err
	}

	if len(expired) > 0 {
		ids := make([]string, 0, len(expired))
		for _, o := range expired {
			ids = append(ids, o.ID)
		}
		oe.logger.Info("Cancelled stale orders", "count", len(expired), "order_ids", ids, "older_than", oe.expiration.String())
	} else {
		oe.logger.Debug("No stale orders")
	}

	return nil
}
