package repository

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.openly.dev/pointy"

	"github.com/sand/whitetriangle/backend/internal/entities"
	"github.com/sand/whitetriangle/backend/pkg/database"
)

type orderStore interface {
	InsertOrder(ctx context.Context, order entities.Order) error
	FindOrder(ctx context.Context, orderID string) (entities.Order, error)
	FindOrders(ctx context.Context, filter entities.OrderFilter) ([]entities.Order, error)
	FindOrdersCreatedBefore(ctx context.Context, status entities.OrderStatus, before time.Time) ([]entities.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, action entities.OrderAction) (entities.Order, error)
	OrderStats(ctx context.Context) (entities.OrderStats, error)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrder(creatorID string, orderType entities.OrderType, amount string, createdAt time.Time) entities.Order {
	a := decimal.RequireFromString(amount)
	commission, total := entities.ComputeCommission(a, decimal.RequireFromString("0.008"))
	return entities.Order{
		ID:           "ord_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Type:         orderType,
		Amount:       a,
		Currency:     "USDT",
		Price:        decimal.RequireFromString("1.01"),
		Commission:   commission,
		TotalAmount:  total,
		Status:       entities.OrderStatusPending,
		CreatorID:    creatorID,
		CreatorEmail: creatorID + "@mail.com",
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func exerciseOrderStore(t *testing.T, store orderStore) {
	ctx := context.Background()
	creator := "user_" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	before, err := store.OrderStats(ctx)
	require.NoError(t, err)

	older := newOrder(creator, entities.OrderTypeSell, "123.45678901", now.Add(-48*time.Hour))
	newer := newOrder(creator, entities.OrderTypeBuy, "250", now)

	require.NoError(t, store.InsertOrder(ctx, older))
	require.NoError(t, store.InsertOrder(ctx, newer))
	assert.ErrorIs(t, store.InsertOrder(ctx, newer), entities.ErrOrderExists)

	t.Run("find keeps money precision", func(t *testing.T) {
		got, err := store.FindOrder(ctx, older.ID)
		require.NoError(t, err)
		assert.True(t, older.Amount.Equal(got.Amount))
		assert.True(t, older.Commission.Equal(got.Commission))
		assert.True(t, older.TotalAmount.Equal(got.TotalAmount))
		assert.Equal(t, entities.OrderStatusPending, got.Status)

		_, err = store.FindOrder(ctx, "ord_missing")
		assert.ErrorIs(t, err, entities.ErrOrderNotFound)
	})

	t.Run("list newest first with filters", func(t *testing.T) {
		mine, err := store.FindOrders(ctx, entities.OrderFilter{CreatorID: pointy.String(creator)})
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, newer.ID, mine[0].ID)
		assert.Equal(t, older.ID, mine[1].ID)

		buyType := entities.OrderTypeBuy
		buys, err := store.FindOrders(ctx, entities.OrderFilter{CreatorID: pointy.String(creator), Type: &buyType})
		require.NoError(t, err)
		require.Len(t, buys, 1)
		assert.Equal(t, newer.ID, buys[0].ID)
	})

	t.Run("stale pending orders", func(t *testing.T) {
		stale, err := store.FindOrdersCreatedBefore(ctx, entities.OrderStatusPending, now.Add(-24*time.Hour))
		require.NoError(t, err)

		var ids []string
		for _, o := range stale {
			ids = append(ids, o.ID)
		}
		assert.Contains(t, ids, older.ID)
		assert.NotContains(t, ids, newer.ID)
	})

	t.Run("guarded transitions", func(t *testing.T) {
		locked, err := store.UpdateOrderStatus(ctx, newer.ID, entities.ActionLockEscrow)
		require.NoError(t, err)
		assert.Equal(t, entities.OrderStatusEscrowLocked, locked.Status)
		assert.True(t, newer.Amount.Equal(locked.Amount))

		_, err = store.UpdateOrderStatus(ctx, newer.ID, entities.ActionCancel)
		assert.ErrorIs(t, err, entities.ErrInvalidTransition)

		got, err := store.FindOrder(ctx, newer.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.OrderStatusEscrowLocked, got.Status)

		_, err = store.UpdateOrderStatus(ctx, "ord_missing", entities.ActionVerify)
		assert.ErrorIs(t, err, entities.ErrOrderNotFound)
	})

	t.Run("stats aggregate volume and statuses", func(t *testing.T) {
		after, err := store.OrderStats(ctx)
		require.NoError(t, err)

		added := after.TotalVolume.Sub(before.TotalVolume)
		assert.Equal(t, "373.45678901", added.String())
		assert.Equal(t, before.TotalOrders+2, after.TotalOrders)
		assert.Equal(t, before.ActiveEscrows+1, after.ActiveEscrows)
		assert.Equal(t, before.ByStatus[entities.OrderStatusPending]+1, after.ByStatus[entities.OrderStatusPending])
	})

	t.Run("concurrent transitions apply once", func(t *testing.T) {
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.UpdateOrderStatus(ctx, older.ID, entities.ActionLockEscrow); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, successes)
	})
}

func TestMemoryOrdersRepository(t *testing.T) {
	exerciseOrderStore(t, NewMemoryOrdersRepository(discardLogger()))
}

func TestPostgresOrdersRepository(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("TEST_DATABASE_URL not set")
	}

	logger := discardLogger()
	require.NoError(t, database.RunMigrations(logger, url, "../../../migrations"))

	pg, err := database.New(context.Background(), url)
	require.NoError(t, err)
	defer pg.Close()

	exerciseOrderStore(t, NewOrdersRepository(logger, pg))
}
