package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sand/whitetriangle/backend/internal/entities"
)

// OrderService defines the interface for order operations.
type OrderService interface {
	CreateOrder(ctx context.Context, creator *entities.User, orderType entities.OrderType, amount decimal.Decimal, currency string, price decimal.Decimal) (entities.Order, error)
	GetOrder(ctx context.Context, orderID string) (entities.Order, error)
	ListOrders(ctx context.Context, filter entities.OrderFilter) ([]entities.Order, error)
	LockEscrow(ctx context.Context, orderID string) (entities.Order, error)
	Verify(ctx context.Context, orderID string) (entities.Order, error)
	Dispute(ctx context.Context, orderID string) (entities.Order, error)
	CancelOrder(ctx context.Context, requester *entities.User, orderID string) (entities.Order, error)
	ExpireOrders(ctx context.Context, olderThan time.Duration) ([]entities.Order, error)
	Stats(ctx context.Context) (entities.OrderStats, error)
	FeeRate() decimal.Decimal
}

// AuthService defines the interface for the mock login flows and account security.
type AuthService interface {
	Login(ctx context.Context, email string, client entities.ClientInfo) (*entities.User, string, error)
	StartLogin(ctx context.Context, email string) (string, error)
	VerifyLogin(ctx context.Context, challengeID, code string, client entities.ClientInfo) (*entities.User, string, error)
	Authenticate(ctx context.Context, token string) (*entities.User, string, error)
	Logout(ctx context.Context, userID, sessionID string) error
	Toggle2FA(ctx context.Context, userID string) (*entities.User, error)
	RevokeSession(ctx context.Context, userID, sessionID string) (*entities.User, error)
}

// OrderEventPublisher receives every successful order write.
type OrderEventPublisher interface {
	Publish(event entities.OrderEvent)
}
