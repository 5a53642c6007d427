package usecases

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.openly.dev/pointy"

	"github.com/sand/whitetriangle/backend/internal/entities"
	"github.com/sand/whitetriangle/backend/internal/usecases/mocked"
	"github.com/sand/whitetriangle/backend/internal/usecases/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []entities.OrderEvent
}

func (p *recordingPublisher) Publish(event entities.OrderEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []entities.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entities.OrderEvent(nil), p.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	feeRate = decimal.RequireFromString("0.008")
	seller  = &entities.User{ID: "user_2", Email: "seller_example@mail.com", Role: entities.RoleUser}
	buyer   = &entities.User{ID: "user_9", Email: "buyer@mail.com", Role: entities.RoleUser}
	admin   = &entities.User{ID: "admin_1", Email: "admin@whitetriangle.io", Role: entities.RoleAdmin}
)

func newSeededService(t *testing.T, opts ...OrderOption) (*OrderService, *repository.MemoryOrdersRepository, *recordingPublisher) {
	t.Helper()

	logger := discardLogger()
	repo := repository.NewMemoryOrdersRepository(logger)
	_, err := mocked.SeedOrders(context.Background(), repo, feeRate, time.Now())
	require.NoError(t, err)

	pub := &recordingPublisher{}
	opts = append([]OrderOption{WithLockDelay(10 * time.Millisecond)}, opts...)
	return NewOrderService(logger, repo, pub, opts...), repo, pub
}

func TestCreateOrderComputesCommission(t *testing.T) {
	svc, _, pub := newSeededService(t)
	ctx := context.Background()

	tests := []struct {
		amount     string
		commission string
		total      string
	}{
		{"250", "2", "252"},
		{"1500", "12", "1512"},
		{"0.5", "0.004", "0.504"},
		{"0.00000001", "0", "0.00000001"},
		{"123.45678901", "0.98765431", "124.44444332"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			order, err := svc.CreateOrder(ctx, buyer, entities.OrderTypeBuy, decimal.RequireFromString(tt.amount), "usdt", decimal.RequireFromString("1.00"))
			require.NoError(t, err)

			assert.Equal(t, entities.OrderStatusPending, order.Status)
			assert.Equal(t, "USDT", order.Currency)
			assert.Equal(t, buyer.ID, order.CreatorID)
			assert.Equal(t, buyer.Email, order.CreatorEmail)
			assert.Regexp(t, `^ord_[0-9a-f]{8}$`, order.ID)
			assert.True(t, decimal.RequireFromString(tt.commission).Equal(order.Commission), "commission %s", order.Commission)
			assert.True(t, decimal.RequireFromString(tt.total).Equal(order.TotalAmount), "total %s", order.TotalAmount)
			assert.True(t, order.Amount.Add(order.Commission).Equal(order.TotalAmount))
		})
	}

	events := pub.Events()
	require.Len(t, events, len(tests))
	assert.Equal(t, entities.OrderEventCreated, events[0].Type)
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _, _ := newSeededService(t)
	ctx := context.Background()
	one := decimal.NewFromInt(1)

	tests := []struct {
		name      string
		creator   *entities.User
		orderType entities.OrderType
		amount    decimal.Decimal
		currency  string
		price     decimal.Decimal
		wantErr   error
	}{
		{"anonymous", nil, entities.OrderTypeBuy, one, "USDT", one, ErrForbidden},
		{"zero amount", buyer, entities.OrderTypeBuy, decimal.Zero, "USDT", one, ErrInvalidOrder},
		{"negative amount", buyer, entities.OrderTypeSell, decimal.NewFromInt(-5), "USDT", one, ErrInvalidOrder},
		{"too precise", buyer, entities.OrderTypeSell, decimal.RequireFromString("0.000000001"), "USDT", one, ErrInvalidOrder},
		{"unknown type", buyer, entities.OrderType("HOLD"), one, "USDT", one, ErrInvalidOrder},
		{"blank currency", buyer, entities.OrderTypeBuy, one, "  ", one, ErrInvalidOrder},
		{"negative price", buyer, entities.OrderTypeBuy, one, "BTC", decimal.NewFromInt(-1), ErrInvalidOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(ctx, tt.creator, tt.orderType, tt.amount, tt.currency, tt.price)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCommissionIsNotRecomputed(t *testing.T) {
	svc, _, _ := newSeededService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, buyer, entities.OrderTypeBuy, decimal.NewFromInt(1000), "USDT", decimal.NewFromInt(1))
	require.NoError(t, err)

	_, err = svc.LockEscrow(ctx, created.ID)
	require.NoError(t, err)
	verified, err := svc.Verify(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, entities.OrderStatusCompleted, verified.Status)
	assert.True(t, created.Commission.Equal(verified.Commission))
	assert.True(t, created.TotalAmount.Equal(verified.TotalAmount))
	assert.True(t, created.Amount.Equal(verified.Amount))
	assert.Equal(t, created.CreatedAt, verified.CreatedAt)
}

func TestLockEscrowSeededOrders(t *testing.T) {
	svc, _, pub := newSeededService(t)
	ctx := context.Background()

	before, err := svc.GetOrder(ctx, "ord_2")
	require.NoError(t, err)

	locked, err := svc.LockEscrow(ctx, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusEscrowLocked, locked.Status)

	got, err := svc.GetOrder(ctx, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusEscrowLocked, got.Status)

	after, err := svc.GetOrder(ctx, "ord_2")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, entities.OrderEventStatusChanged, events[0].Type)
	assert.Equal(t, "ord_1", events[0].Order.ID)
}

func TestLockEscrowRequiresPending(t *testing.T) {
	svc, _, pub := newSeededService(t)
	ctx := context.Background()

	_, err := svc.LockEscrow(ctx, "ord_2")
	require.ErrorIs(t, err, entities.ErrInvalidTransition)

	got, err := svc.GetOrder(ctx, "ord_2")
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusEscrowLocked, got.Status)
	assert.Empty(t, pub.Events())

	_, err = svc.LockEscrow(ctx, "ord_missing")
	assert.ErrorIs(t, err, entities.ErrOrderNotFound)
}

func TestLockEscrowRejectsConcurrentDuplicate(t *testing.T) {
	svc, _, pub := newSeededService(t, WithLockDelay(200*time.Millisecond))
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := svc.LockEscrow(ctx, "ord_1")
		first <- err
	}()

	require.Eventually(t, func() bool { return svc.isLocking("ord_1") }, time.Second, 5*time.Millisecond)

	_, err := svc.LockEscrow(ctx, "ord_1")
	assert.ErrorIs(t, err, ErrEscrowLockInProgress)

	_, err = svc.CancelOrder(ctx, seller, "ord_1")
	assert.ErrorIs(t, err, ErrEscrowLockInProgress)

	require.NoError(t, <-first)
	assert.Len(t, pub.Events(), 1)
}

func TestLockEscrowHonoursContext(t *testing.T) {
	svc, _, _ := newSeededService(t, WithLockDelay(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.LockEscrow(ctx, "ord_1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := svc.GetOrder(context.Background(), "ord_1")
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusPending, got.Status)
	assert.False(t, svc.isLocking("ord_1"))
}

func TestVerifyAndDisputeRequireEscrowLocked(t *testing.T) {
	svc, _, _ := newSeededService(t)
	ctx := context.Background()

	_, err := svc.Verify(ctx, "ord_1")
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
	_, err = svc.Dispute(ctx, "ord_1")
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)

	disputed, err := svc.Dispute(ctx, "ord_2")
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusDisputed, disputed.Status)

	_, err = svc.Verify(ctx, "ord_2")
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)
}

func TestCancelOrder(t *testing.T) {
	svc, _, _ := newSeededService(t)
	ctx := context.Background()

	_, err := svc.CancelOrder(ctx, buyer, "ord_1")
	assert.ErrorIs(t, err, ErrForbidden)

	cancelled, err := svc.CancelOrder(ctx, seller, "ord_1")
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusCancelled, cancelled.Status)

	_, err = svc.CancelOrder(ctx, admin, "ord_2")
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)

	_, err = svc.CancelOrder(ctx, seller, "ord_none")
	assert.ErrorIs(t, err, entities.ErrOrderNotFound)
}

func TestListOrdersFilters(t *testing.T) {
	svc, _, _ := newSeededService(t)
	ctx := context.Background()

	all, err := svc.ListOrders(ctx, entities.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ord_1", all[0].ID)
	assert.Equal(t, "ord_2", all[1].ID)

	buys, err := svc.ListOrders(ctx, entities.OrderFilter{Type: pointy.Pointer(entities.OrderTypeBuy)})
	require.NoError(t, err)
	require.Len(t, buys, 1)
	assert.Equal(t, "ord_2", buys[0].ID)

	mine, err := svc.CreateOrder(ctx, buyer, entities.OrderTypeBuy, decimal.NewFromInt(250), "USDT", decimal.NewFromInt(1))
	require.NoError(t, err)

	buys, err = svc.ListOrders(ctx, entities.OrderFilter{Type: pointy.Pointer(entities.OrderTypeBuy)})
	require.NoError(t, err)
	require.Len(t, buys, 2)
	assert.Equal(t, []string{mine.ID, "ord_2"}, []string{buys[0].ID, buys[1].ID})

	dashboard, err := svc.ListOrders(ctx, entities.OrderFilter{CreatorID: pointy.String(buyer.ID)})
	require.NoError(t, err)
	require.Len(t, dashboard, 1)
	assert.Equal(t, mine.ID, dashboard[0].ID)

	combined, err := svc.ListOrders(ctx, entities.OrderFilter{
		Type:     pointy.Pointer(entities.OrderTypeBuy),
		Currency: pointy.String("BTC"),
		Status:   pointy.Pointer(entities.OrderStatusEscrowLocked),
	})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, "ord_2", combined[0].ID)

	none, err := svc.ListOrders(ctx, entities.OrderFilter{Currency: pointy.String("EUR")})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExpireOrders(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	svc, _, pub := newSeededService(t, WithClock(clock))
	ctx := context.Background()

	fresh, err := svc.CreateOrder(ctx, buyer, entities.OrderTypeBuy, decimal.NewFromInt(10), "USDT", decimal.NewFromInt(1))
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	expired, err := svc.ExpireOrders(ctx, 90*time.Minute)
	require.NoError(t, err)

	ids := make([]string, 0, len(expired))
	for _, o := range expired {
		assert.Equal(t, entities.OrderStatusCancelled, o.Status)
		ids = append(ids, o.ID)
	}
	// ord_2 is ESCROW_LOCKED and stays
	assert.ElementsMatch(t, []string{"ord_1", fresh.ID}, ids)

	locked, err := svc.GetOrder(ctx, "ord_2")
	require.NoError(t, err)
	assert.Equal(t, entities.OrderStatusEscrowLocked, locked.Status)

	again, err := svc.ExpireOrders(ctx, 90*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, pub.Events(), 3)
}

func TestStats(t *testing.T) {
	svc, _, _ := newSeededService(t)
	ctx := context.Background()

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2000", stats.TotalVolume.String())
	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, 1, stats.ActiveEscrows)
	assert.Equal(t, 0, stats.Completed)
	assert.Equal(t, 0, stats.Disputed)
	assert.Equal(t, 1, stats.ByStatus[entities.OrderStatusPending])
	assert.Equal(t, 0, stats.ByStatus[entities.OrderStatusCancelled])

	_, err = svc.Verify(ctx, "ord_2")
	require.NoError(t, err)
	created, err := svc.CreateOrder(ctx, buyer, entities.OrderTypeBuy, decimal.RequireFromString("0.5"), "USDT", decimal.RequireFromString("1"))
	require.NoError(t, err)
	_, err = svc.CancelOrder(ctx, buyer, created.ID)
	require.NoError(t, err)

	stats, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2000.5", stats.TotalVolume.String())
	assert.Equal(t, 3, stats.TotalOrders)
	assert.Equal(t, 0, stats.ActiveEscrows)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.ByStatus[entities.OrderStatusCancelled])
	assert.True(t, feeRate.Equal(svc.FeeRate()))
}
