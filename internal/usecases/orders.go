package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sand/whitetriangle/backend/internal/core/ports"
	"github.com/sand/whitetriangle/backend/internal/entities"
)

var (
	ErrInvalidOrder         = errors.New("invalid order")
	ErrForbidden            = errors.New("forbidden")
	ErrEscrowLockInProgress = errors.New("escrow lock already in progress")
)

type OrdersRepository interface {
	InsertOrder(ctx context.Context, order entities.Order) error
	FindOrder(ctx context.Context, orderID string) (entities.Order, error)
	FindOrders(ctx context.Context, filter entities.OrderFilter) ([]entities.Order, error)
	FindOrdersCreatedBefore(ctx context.Context, status entities.OrderStatus, before time.Time) ([]entities.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, action entities.OrderAction) (entities.Order, error)
	OrderStats(ctx context.Context) (entities.OrderStats, error)
}

var _ ports.OrderService = (*OrderService)(nil)

type OrderService struct {
	logger    *slog.Logger
	repo      OrdersRepository
	publisher ports.OrderEventPublisher

	feeRate   decimal.Decimal
	lockDelay time.Duration
	now       func() time.Time

	lockMu  sync.Mutex
	locking map[string]struct{}
}

type OrderOption func(*OrderService)

// WithFeeRate overrides ports.DefaultFeeRate.
func WithFeeRate(rate decimal.Decimal) OrderOption {
	return func(s *OrderService) { s.feeRate = rate }
}

// WithLockDelay sets how long the simulated payment confirmation takes.
func WithLockDelay(d time.Duration) OrderOption {
	return func(s *OrderService) { s.lockDelay = d }
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) OrderOption {
	return func(s *OrderService) { s.now = now }
}

func NewOrderService(logger *slog.Logger, repo OrdersRepository, publisher ports.OrderEventPublisher, opts ...OrderOption) *OrderService {
	s := &OrderService{
		logger:    logger,
		repo:      repo,
		publisher: publisher,
		feeRate:   decimal.RequireFromString(ports.DefaultFeeRate),
		lockDelay: ports.DefaultLockDelay,
		now:       time.Now,
		locking:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FeeRate is the commission rate applied to new orders.
func (s *OrderService) FeeRate() decimal.Decimal {
	return s.feeRate
}

// CreateOrder lists a new PENDING order for creator. Commission and total are
// computed here once and never recomputed.
func (s *OrderService) CreateOrder(ctx context.Context, creator *entities.User, orderType entities.OrderType, amount decimal.Decimal, currency string, price decimal.Decimal) (entities.Order, error) {
	if creator == nil {
		return entities.Order{}, ErrForbidden
	}
	if !orderType.Valid() {
		return entities.Order{}, fmt.Errorf("%w: unknown type %q", ErrInvalidOrder, orderType)
	}
	if !amount.IsPositive() {
		return entities.Order{}, fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	}
	if !amount.Equal(amount.Round(entities.MoneyPrecision)) {
		return entities.Order{}, fmt.Errorf("%w: amount has more than %d decimal places", ErrInvalidOrder, entities.MoneyPrecision)
	}
	if price.IsNegative() {
		return entities.Order{}, fmt.Errorf("%w: price must not be negative", ErrInvalidOrder)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return entities.Order{}, fmt.Errorf("%w: currency is required", ErrInvalidOrder)
	}

	now := s.now()
	commission, total := entities.ComputeCommission(amount, s.feeRate)
	order := entities.Order{
		ID:           newOrderID(),
		Type:         orderType,
		Amount:       amount,
		Currency:     currency,
		Price:        price.Round(entities.MoneyPrecision),
		Commission:   commission,
		TotalAmount:  total,
		Status:       entities.OrderStatusPending,
		CreatorID:    creator.ID,
		CreatorEmail: creator.Email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.InsertOrder(ctx, order); err != nil {
		return entities.Order{}, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.InfoContext(ctx, "Order created",
		"order_id", order.ID,
		"type", order.Type,
		"amount", order.Amount.String(),
		"currency", order.Currency,
		"commission", order.Commission.String(),
		"creator_id", order.CreatorID)

	s.publish(entities.OrderEventCreated, order)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (entities.Order, error) {
	return s.repo.FindOrder(ctx, orderID)
}

func (s *OrderService) ListOrders(ctx context.Context, filter entities.OrderFilter) ([]entities.Order, error) {
	return s.repo.FindOrders(ctx, filter)
}

// Stats reports volume and per-status counts across every order.
func (s *OrderService) Stats(ctx context.Context) (entities.OrderStats, error) {
	stats, err := s.repo.OrderStats(ctx)
	if err != nil {
		return entities.OrderStats{}, fmt.Errorf("failed to load order stats: %w", err)
	}
	return stats, nil
}

// LockEscrow simulates the buyer's PayPal payment into escrow. The order must
// be PENDING; after the confirmation delay it becomes ESCROW_LOCKED. A second
// call for the same order while the first one waits is rejected.
func (s *OrderService) LockEscrow(ctx context.Context, orderID string) (entities.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}
	if _, err = entities.NextStatus(order.Status, entities.ActionLockEscrow); err != nil {
		return entities.Order{}, err
	}

	if !s.beginLock(orderID) {
		return entities.Order{}, ErrEscrowLockInProgress
	}
	defer s.endLock(orderID)

	s.logger.InfoContext(ctx, "Initiating PayPal escrow payment", "order_id", orderID, "delay", s.lockDelay.String())

	timer := time.NewTimer(s.lockDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Escrow payment aborted", "order_id", orderID, "error", ctx.Err())
		return entities.Order{}, ctx.Err()
	case <-timer.C:
	}

	updated, err := s.transition(ctx, orderID, entities.ActionLockEscrow)
	if err != nil {
		return entities.Order{}, err
	}

	s.logger.InfoContext(ctx, "Payment locked in escrow, waiting for seller delivery", "order_id", orderID)
	return updated, nil
}

// Verify releases escrow after delivery. Only ESCROW_LOCKED orders qualify.
func (s *OrderService) Verify(ctx context.Context, orderID string) (entities.Order, error) {
	return s.transition(ctx, orderID, entities.ActionVerify)
}

// Dispute freezes an ESCROW_LOCKED order for manual review.
func (s *OrderService) Dispute(ctx context.Context, orderID string) (entities.Order, error) {
	return s.transition(ctx, orderID, entities.ActionDispute)
}

// CancelOrder withdraws a PENDING order. Only its creator or an admin may do so.
func (s *OrderService) CancelOrder(ctx context.Context, requester *entities.User, orderID string) (entities.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}
	if requester == nil || (requester.ID != order.CreatorID && !requester.IsAdmin()) {
		return entities.Order{}, ErrForbidden
	}
	if s.isLocking(orderID) {
		return entities.Order{}, ErrEscrowLockInProgress
	}

	return s.transition(ctx, orderID, entities.ActionCancel)
}

// ExpireOrders cancels PENDING orders created more than olderThan ago. Orders
// with a payment in flight are skipped.
func (s *OrderService) ExpireOrders(ctx context.Context, olderThan time.Duration) ([]entities.Order, error) {
	stale, err := s.repo.FindOrdersCreatedBefore(ctx, entities.OrderStatusPending, s.now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("failed to find stale orders: %w", err)
	}

	expired := make([]entities.Order, 0, len(stale))
	for _, o := range stale {
		if s.isLocking(o.ID) {
			continue
		}

		updated, err := s.transition(ctx, o.ID, entities.ActionExpire)
		if errors.Is(err, entities.ErrInvalidTransition) || errors.Is(err, entities.ErrOrderNotFound) {
			// moved on since the scan
			continue
		}
		if err != nil {
			return expired, err
		}
		expired = append(expired, updated)
	}

	return expired, nil
}

func (s *OrderService) transition(ctx context.Context, orderID string, action entities.OrderAction) (entities.Order, error) {
	updated, err := s.repo.UpdateOrderStatus(ctx, orderID, action)
	if err != nil {
		s.logger.WarnContext(ctx, "Order transition rejected", "order_id", orderID, "action", action, "error", err)
		return entities.Order{}, err
	}

	s.logger.InfoContext(ctx, "Order status changed", "order_id", orderID, "action", action, "status", updated.Status)
	s.publish(entities.OrderEventStatusChanged, updated)
	return updated, nil
}

func (s *OrderService) publish(eventType entities.OrderEventType, order entities.Order) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(entities.OrderEvent{Type: eventType, Order: order})
}

func (s *OrderService) beginLock(orderID string) bool {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if _, busy := s.locking[orderID]; busy {
		return false
	}
	s.locking[orderID] = struct{}{}
	return true
}

func (s *OrderService) endLock(orderID string) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	delete(s.locking, orderID)
}

func (s *OrderService) isLocking(orderID string) bool {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	_, busy := s.locking[orderID]
	return busy
}

func newOrderID() string {
	return "ord_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
