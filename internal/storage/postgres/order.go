package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EmilioM092611/KantarEs-sub000/internal/domain/order"
)

const (
	getOrderSQL = `SELECT id, customer_id, subtotal, tax_amount, tip,
		applied_promotion_id, discount_percentage, discount_amount, total
		FROM orders WHERE id = $1`

	getOrderLinesSQL = `SELECT id, product_id, category_id, quantity, unit_price, line_total
		FROM order_items WHERE order_id = $1 ORDER BY id`
)

var _ order.Repository = (*OrderStore)(nil)

// OrderStore implements order.Repository backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// GetWithLines fetches an order and its lines.
// Returns order.ErrNotFound when the id does not resolve.
func (s *OrderStore) GetWithLines(ctx context.Context, id int64) (*order.Order, error) {
	return getOrderWithLines(ctx, s.pool, id, getOrderSQL)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same order
// loading code serves plain reads and row-locked transactional reads.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getOrderWithLines(ctx context.Context, q querier, id int64, orderSQL string) (*order.Order, error) {
	rows, err := q.Query(ctx, orderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding order %d: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %d: %w", id, err)
	}

	lineRows, err := q.Query(ctx, getOrderLinesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading lines for order %d: %w", id, err)
	}

	o.Lines, err = pgx.CollectRows(lineRows, scanLine)
	if err != nil {
		return nil, fmt.Errorf("loading lines for order %d: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Subtotal, &o.TaxAmount, &o.Tip,
		&o.AppliedPromotionID, &o.DiscountPercentage, &o.DiscountAmount, &o.Total,
	)
	return o, err
}

func scanLine(row pgx.CollectableRow) (order.Line, error) {
	var ln order.Line
	err := row.Scan(
		&ln.ID, &ln.ProductID, &ln.CategoryID, &ln.Quantity,
		&ln.UnitPrice, &ln.LineTotal,
	)
	return ln, err
}
