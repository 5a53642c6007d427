package entities

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// OrderType is the side of a P2P order.
type OrderType string

const (
	OrderTypeBuy  OrderType = "BUY"
	OrderTypeSell OrderType = "SELL"
)

// Valid reports whether t is a known order side.
func (t OrderType) Valid() bool {
	return t == OrderTypeBuy || t == OrderTypeSell
}

// OrderStatus is the escrow lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "PENDING"
	OrderStatusEscrowLocked OrderStatus = "ESCROW_LOCKED"
	OrderStatusCompleted    OrderStatus = "COMPLETED"
	OrderStatusDisputed     OrderStatus = "DISPUTED"
	OrderStatusCancelled    OrderStatus = "CANCELLED"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusEscrowLocked,
	OrderStatusCompleted,
	OrderStatusDisputed,
	OrderStatusCancelled,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	return slices.Contains(orderStatuses, s)
}

// Terminal reports whether no action leads out of s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusDisputed || s == OrderStatusCancelled
}

// Order is a P2P trade listing. Everything except Status and UpdatedAt is
// fixed at creation.
type Order struct {
	ID           string          `json:"id"           db:"id"`
	Type         OrderType       `json:"type"         db:"type"`
	Amount       decimal.Decimal `json:"amount"       db:"amount"`
	Currency     string          `json:"currency"     db:"currency"`
	Price        decimal.Decimal `json:"price"        db:"price"`
	Commission   decimal.Decimal `json:"commission"   db:"commission"`
	TotalAmount  decimal.Decimal `json:"totalAmount"  db:"total_amount"`
	Status       OrderStatus     `json:"status"       db:"status"`
	CreatorID    string          `json:"creatorId"    db:"creator_id"`
	CreatorEmail string          `json:"creatorEmail" db:"creator_email"`
	CreatedAt    time.Time       `json:"createdAt"    db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt"    db:"updated_at"`
}

// OrderFilter narrows an order listing. A nil field means no filter on it;
// set fields are combined with AND.
type OrderFilter struct {
	Type      *OrderType
	Currency  *string
	Status    *OrderStatus
	CreatorID *string
}

// Match reports whether o passes every set field of f.
func (f OrderFilter) Match(o Order) bool {
	if f.Type != nil && o.Type != *f.Type {
		return false
	}
	if f.Currency != nil && o.Currency != *f.Currency {
		return false
	}
	if f.Status != nil && o.Status != *f.Status {
		return false
	}
	if f.CreatorID != nil && o.CreatorID != *f.CreatorID {
		return false
	}
	return true
}

// OrderStats summarises the whole order book for the admin dashboard.
// TotalVolume sums Amount over every order regardless of status.
type OrderStats struct {
	TotalVolume   decimal.Decimal     `json:"totalVolume"`
	TotalOrders   int                 `json:"totalOrders"`
	ActiveEscrows int                 `json:"activeEscrows"`
	Completed     int                 `json:"completed"`
	Disputed      int                 `json:"disputed"`
	ByStatus      map[OrderStatus]int `json:"byStatus"`
}

// NewOrderStats returns stats with a zero count for every known status.
func NewOrderStats() OrderStats {
	stats := OrderStats{TotalVolume: decimal.Zero, ByStatus: make(map[OrderStatus]int, len(orderStatuses))}
	for _, s := range orderStatuses {
		stats.ByStatus[s] = 0
	}
	return stats
}

// Add folds count orders of status worth volume into s.
func (s *OrderStats) Add(status OrderStatus, count int, volume decimal.Decimal) {
	s.TotalVolume = s.TotalVolume.Add(volume)
	s.TotalOrders += count
	s.ByStatus[status] += count

	switch status {
	case OrderStatusEscrowLocked:
		s.ActiveEscrows += count
	case OrderStatusCompleted:
		s.Completed += count
	case OrderStatusDisputed:
		s.Disputed += count
	}
}
