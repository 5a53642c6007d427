package repository

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sand/whitetriangle/backend/internal/entities"
)

// MemoryOrdersRepository keeps orders in process memory, newest first.
// Nothing survives a restart.
type MemoryOrdersRepository struct {
	logger *slog.Logger

	mu     sync.RWMutex
	orders []entities.Order
}

func NewMemoryOrdersRepository(logger *slog.Logger) *MemoryOrdersRepository {
	return &MemoryOrdersRepository{logger: logger}
}

func (r *MemoryOrdersRepository) InsertOrder(_ context.Context, order entities.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(order.ID) >= 0 {
		return entities.ErrOrderExists
	}

	r.orders = append([]entities.Order{order}, r.orders...)
	return nil
}

func (r *MemoryOrdersRepository) FindOrder(_ context.Context, orderID string) (entities.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(orderID)
	if i < 0 {
		return entities.Order{}, entities.ErrOrderNotFound
	}
	return r.orders[i], nil
}

func (r *MemoryOrdersRepository) FindOrders(_ context.Context, filter entities.OrderFilter) ([]entities.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]entities.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if filter.Match(o) {
			result = append(result, o)
		}
	}
	return result, nil
}

// FindOrdersCreatedBefore returns matches oldest first.
func (r *MemoryOrdersRepository) FindOrdersCreatedBefore(_ context.Context, status entities.OrderStatus, before time.Time) ([]entities.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []entities.Order
	for i := len(r.orders) - 1; i >= 0; i-- {
		o := r.orders[i]
		if o.Status == status && o.CreatedAt.Before(before) {
			result = append(result, o)
		}
	}
	return result, nil
}

func (r *MemoryOrdersRepository) UpdateOrderStatus(_ context.Context, orderID string, action entities.OrderAction) (entities.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(orderID)
	if i < 0 {
		return entities.Order{}, entities.ErrOrderNotFound
	}

	next, err := entities.NextStatus(r.orders[i].Status, action)
	if err != nil {
		return entities.Order{}, err
	}

	r.orders[i].Status = next
	r.orders[i].UpdatedAt = time.Now()

	r.logger.Debug("Order status updated", "order_id", orderID, "action", action, "status", next)
	return r.orders[i], nil
}

func (r *MemoryOrdersRepository) indexOf(orderID string) int {
	for i := range r.orders {
		if r.orders[i].ID == orderID {
			return i
		}
	}
	return -1
}

func (r *MemoryOrdersRepository) OrderStats(_ context.Context) (entities.OrderStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := entities.NewOrderStats()
	for _, o := range r.orders {
		stats.Add(o.Status, 1, o.Amount)
	}
	return stats, nil
}
