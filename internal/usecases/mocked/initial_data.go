package mocked

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sand/whitetriangle/backend/internal/entities"
)

// OrderInserter is the write side of an order store.
type OrderInserter interface {
	InsertOrder(ctx context.Context, order entities.Order) error
}

// DemoOrders returns the marketplace listing shown to every new visitor,
// in display order.
func DemoOrders(feeRate decimal.Decimal, now time.Time) []entities.Order {
	seed := []struct {
		id, creatorID, creatorEmail string
		orderType                   entities.OrderType
		amount, price               string
		currency                    string
		status                      entities.OrderStatus
	}{
		{"ord_1", "user_2", "seller_example@mail.com", entities.OrderTypeSell, "1500", "1.01", "USDT", entities.OrderStatusPending},
		{"ord_2", "user_3", "crypto_whale@mail.com", entities.OrderTypeBuy, "500", "65000", "BTC", entities.OrderStatusEscrowLocked},
	}

	orders := make([]entities.Order, 0, len(seed))
	for _, s := range seed {
		amount := decimal.RequireFromString(s.amount)
		commission, total := entities.ComputeCommission(amount, feeRate)
		orders = append(orders, entities.Order{
			ID:           s.id,
			Type:         s.orderType,
			Amount:       amount,
			Currency:     s.currency,
			Price:        decimal.RequireFromString(s.price),
			Commission:   commission,
			TotalAmount:  total,
			Status:       s.status,
			CreatorID:    s.creatorID,
			CreatorEmail: s.creatorEmail,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return orders
}

// SeedOrders inserts DemoOrders so that a newest-first store lists them in
// display order. Orders that already exist are left alone.
func SeedOrders(ctx context.Context, repo OrderInserter, feeRate decimal.Decimal, now time.Time) (int, error) {
	orders := DemoOrders(feeRate, now)

	inserted := 0
	for i := len(orders) - 1; i >= 0; i-- {
		err := repo.InsertOrder(ctx, orders[i])
		if errors.Is(err, entities.ErrOrderExists) {
			continue
		}
		if err != nil {
			return inserted, fmt.Errorf("failed to seed order %s: %w", orders[i].ID, err)
		}
		inserted++
	}
	return inserted, nil
}
