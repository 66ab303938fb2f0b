package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EmilioM092611/KantarEs-sub000/internal/domain/order"
	"github.com/EmilioM092611/KantarEs-sub000/internal/domain/promotion"
)

const (
	getOrderForUpdateSQL = `SELECT id, customer_id, subtotal, tax_amount, tip,
		applied_promotion_id, discount_percentage, discount_amount, total
		FROM orders WHERE id = $1 FOR UPDATE`

	updateOrderDiscountSQL = `UPDATE orders SET
		applied_promotion_id = $2,
		discount_percentage = $3,
		discount_amount = $4,
		total = $5
		WHERE id = $1`

	getPromotionForUpdateSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE id = $1 FOR UPDATE`

	incrementUsageSQL = `UPDATE promotions SET usage_count = usage_count + 1 WHERE id = $1`

	getCustomerUsesForUpdateSQL = `SELECT use_count FROM promotion_usages
		WHERE promotion_id = $1 AND customer_id = $2 FOR UPDATE`

	incrementCustomerUsesSQL = `INSERT INTO promotion_usages (promotion_id, customer_id, use_count, last_used_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (promotion_id, customer_id)
		DO UPDATE SET use_count = promotion_usages.use_count + 1, last_used_at = NOW()`
)

var _ promotion.TxRunner = (*TxRunner)(nil)

// TxRunner runs apply/remove mutations inside a single pgx transaction so the
// order update and the usage counter increments commit or roll back together.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner returns a TxRunner that uses the given pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// InTx begins a transaction, runs fn against a row-locking view of the
// stores, and commits when fn succeeds. Any error rolls everything back.
func (r *TxRunner) InTx(ctx context.Context, fn func(tx promotion.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&storeTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

var _ promotion.Tx = (*storeTx)(nil)

type storeTx struct {
	tx pgx.Tx
}

// OrderForUpdate fetches the order with its lines, locking the order row for
// the rest of the transaction.
func (t *storeTx) OrderForUpdate(ctx context.Context, orderID int64) (*order.Order, error) {
	return getOrderWithLines(ctx, t.tx, orderID, getOrderForUpdateSQL)
}

// UpdateOrderDiscount writes the order's mutable discount fields and total.
func (t *storeTx) UpdateOrderDiscount(ctx context.Context, o *order.Order) error {
	_, err := t.tx.Exec(ctx, updateOrderDiscountSQL,
		o.ID, o.AppliedPromotionID, o.DiscountPercentage, o.DiscountAmount, o.Total,
	)
	if err != nil {
		return fmt.Errorf("updating totals for order %d: %w", o.ID, err)
	}
	return nil
}

// PromotionForUpdate fetches and locks the promotion row so a usage-cap
// check and the following increment cannot race another apply.
func (t *storeTx) PromotionForUpdate(ctx context.Context, id int64) (*promotion.Promotion, error) {
	rows, err := t.tx.Query(ctx, getPromotionForUpdateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("locking promotion %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("locking promotion %d: %w", id, err)
	}
	return &p, nil
}

// IncrementUsage bumps the promotion's global usage counter.
func (t *storeTx) IncrementUsage(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, incrementUsageSQL, id)
	if err != nil {
		return fmt.Errorf("incrementing usage for promotion %d: %w", id, err)
	}
	return nil
}

// CustomerUsesForUpdate reads the per-customer use count, locking the ledger
// row when it exists. A missing row means zero uses; the row is created by
// IncrementCustomerUses.
func (t *storeTx) CustomerUsesForUpdate(ctx context.Context, promotionID int64, customerID string) (int, error) {
	var uses int
	err := t.tx.QueryRow(ctx, getCustomerUsesForUpdateSQL, promotionID, customerID).Scan(&uses)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("locking usage ledger for promotion %d: %w", promotionID, err)
	}
	return uses, nil
}

// IncrementCustomerUses upserts the per-customer ledger row.
func (t *storeTx) IncrementCustomerUses(ctx context.Context, promotionID int64, customerID string) error {
	_, err := t.tx.Exec(ctx, incrementCustomerUsesSQL, promotionID, customerID)
	if err != nil {
		return fmt.Errorf("incrementing usage ledger for promotion %d: %w", promotionID, err)
	}
	return nil
}
