package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/sand/whitetriangle/backend/internal/entities"
	"github.com/sand/whitetriangle/backend/pkg/database"
)

const uniqueViolation = "23505"

// Money columns are NUMERIC and read back as text so decimal keeps full precision.
var orderColumns = []string{
	"id", "type", "amount::text", "currency", "price::text", "commission::text",
	"total_amount::text", "status", "creator_id", "creator_email", "created_at", "updated_at",
}

// OrdersRepository stores orders in Postgres. Listing order is newest first.
type OrdersRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
	builder    sq.StatementBuilderType
}

func NewOrdersRepository(logger *slog.Logger, pg *database.Postgres) *OrdersRepository {
	return &OrdersRepository{
		logger:     logger,
		db:         pg.DBGetter,
		transactor: pg.Transactor,
		builder:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *OrdersRepository) InsertOrder(ctx context.Context, order entities.Order) error {
	query, args, err := r.builder.Insert("orders").
		Columns("id", "type", "amount", "currency", "price", "commission", "total_amount",
			"status", "creator_id", "creator_email", "created_at", "updated_at").
		Values(order.ID, string(order.Type), order.Amount.String(), order.Currency, order.Price.String(),
			order.Commission.String(), order.TotalAmount.String(), string(order.Status),
			order.CreatorID, order.CreatorEmail, order.CreatedAt, order.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return entities.ErrOrderExists
		}
		return fmt.Errorf("failed to insert order %s: %w", order.ID, err)
	}

	return nil
}

func (r *OrdersRepository) FindOrder(ctx context.Context, orderID string) (entities.Order, error) {
	query, args, err := r.builder.Select(orderColumns...).From("orders").Where(sq.Eq{"id": orderID}).ToSql()
	if err != nil {
		return entities.Order{}, fmt.Errorf("failed to build select: %w", err)
	}

	order, err := scanOrder(r.db(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return entities.Order{}, entities.ErrOrderNotFound
	}
	if err != nil {
		return entities.Order{}, fmt.Errorf("failed to find order %s: %w", orderID, err)
	}

	return order, nil
}

func (r *OrdersRepository) FindOrders(ctx context.Context, filter entities.OrderFilter) ([]entities.Order, error) {
	sel := r.builder.Select(orderColumns...).From("orders").OrderBy("seq DESC")
	if filter.Type != nil {
		sel = sel.Where(sq.Eq{"type": string(*filter.Type)})
	}
	if filter.Currency != nil {
		sel = sel.Where(sq.Eq{"currency": *filter.Currency})
	}
	if filter.Status != nil {
		sel = sel.Where(sq.Eq{"status": string(*filter.Status)})
	}
	if filter.CreatorID != nil {
		sel = sel.Where(sq.Eq{"creator_id": *filter.CreatorID})
	}

	return r.collect(ctx, sel)
}

func (r *OrdersRepository) FindOrdersCreatedBefore(ctx context.Context, status entities.OrderStatus, before time.Time) ([]entities.Order, error) {
	sel := r.builder.Select(orderColumns...).From("orders").
		Where(sq.Eq{"status": string(status)}).
		Where(sq.Lt{"created_at": before}).
		OrderBy("seq")

	return r.collect(ctx, sel)
}

// UpdateOrderStatus applies action to the locked row and returns the updated order.
func (r *OrdersRepository) UpdateOrderStatus(ctx context.Context, orderID string, action entities.OrderAction) (entities.Order, error) {
	var updated entities.Order

	err := r.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var current string
		err := r.db(ctx).QueryRow(ctx, "SELECT status FROM orders WHERE id = $1 FOR UPDATE", orderID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return entities.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock order %s: %w", orderID, err)
		}

		next, err := entities.NextStatus(entities.OrderStatus(current), action)
		if err != nil {
			return err
		}

		query, args, err := r.builder.Update("orders").
			Set("status", string(next)).
			Set("updated_at", time.Now()).
			Where(sq.Eq{"id": orderID}).
			Suffix("RETURNING " + strings.Join(orderColumns, ", ")).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build update: %w", err)
		}

		updated, err = scanOrder(r.db(ctx).QueryRow(ctx, query, args...))
		if err != nil {
			return fmt.Errorf("failed to update order %s: %w", orderID, err)
		}
		return nil
	})
	if err != nil {
		return entities.Order{}, err
	}

	r.logger.DebugContext(ctx, "Order status updated", "order_id", orderID, "action", action, "status", updated.Status)
	return updated, nil
}

// OrderStats aggregates counts and volume per status in one pass.
func (r *OrdersRepository) OrderStats(ctx context.Context) (entities.OrderStats, error) {
	query, args, err := r.builder.Select("status", "COUNT(*)", "COALESCE(SUM(amount), 0)::text").
		From("orders").
		GroupBy("status").
		ToSql()
	if err != nil {
		return entities.OrderStats{}, fmt.Errorf("failed to build stats select: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return entities.OrderStats{}, fmt.Errorf("failed to query order stats: %w", err)
	}
	defer rows.Close()

	stats := entities.NewOrderStats()
	for rows.Next() {
		var (
			status, volume string
			count          int
		)
		if err = rows.Scan(&status, &count, &volume); err != nil {
			return entities.OrderStats{}, fmt.Errorf("failed to scan order stats: %w", err)
		}

		v, err := decimal.NewFromString(volume)
		if err != nil {
			return entities.OrderStats{}, fmt.Errorf("invalid volume format in database for status %s: %w", status, err)
		}
		stats.Add(entities.OrderStatus(status), count, v)
	}
	if err = rows.Err(); err != nil {
		return entities.OrderStats{}, fmt.Errorf("failed to read order stats: %w", err)
	}

	return stats, nil
}

func (r *OrdersRepository) collect(ctx context.Context, sel sq.SelectBuilder) ([]entities.Order, error) {
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entities.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		r.logger.Error("failed to collect orders rows", "error", err)
		return nil, err
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (entities.Order, error) {
	var (
		o                                    entities.Order
		orderType, status                    string
		amount, price, commission, totalAmnt string
	)

	err := row.Scan(&o.ID, &orderType, &amount, &o.Currency, &price, &commission, &totalAmnt,
		&status, &o.CreatorID, &o.CreatorEmail, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return entities.Order{}, err
	}

	o.Type = entities.OrderType(orderType)
	o.Status = entities.OrderStatus(status)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&o.Amount, amount},
		{&o.Price, price},
		{&o.Commission, commission},
		{&o.TotalAmount, totalAmnt},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return entities.Order{}, fmt.Errorf("invalid money format in database for order %s: %w", o.ID, err)
		}
	}

	return o, nil
}
