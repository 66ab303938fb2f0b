// Command seed-db loads a demo menu, a set of promotions, and an open order
// into the database so the API can be exercised locally.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/EmilioM092611/KantarEs-sub000/internal/storage/postgres"
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedMenu(ctx, pool); err != nil {
		return errors.Wrap(err, "seed menu")
	}

	if err := seedPromotions(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	if err := seedOrder(ctx, pool); err != nil {
		return errors.Wrap(err, "seed order")
	}

	return nil
}

type productSeed struct {
	id       int64
	name     string
	category int64
	price    decimal.Decimal
}

func seedMenu(ctx context.Context, pool *pgxpool.Pool) error {
	categories := map[int64]string{
		1: "Drinks",
		2: "Mains",
		3: "Desserts",
	}
	for id, name := range categories {
		if _, err := pool.Exec(ctx, `
			INSERT INTO categories (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
			id, name,
		); err != nil {
			return errors.Wrapf(err, "upsert category %d", id)
		}
	}

	products := []productSeed{
		{1, "House Lemonade", 1, decimal.NewFromFloat(3.50)},
		{2, "Cold Brew", 1, decimal.NewFromFloat(4.75)},
		{3, "Smash Burger", 2, decimal.NewFromFloat(12.90)},
		{4, "Margherita Pizza", 2, decimal.NewFromFloat(14.50)},
		{5, "Caesar Salad", 2, decimal.NewFromFloat(10.00)},
		{6, "Tres Leches", 3, decimal.NewFromFloat(6.25)},
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, `
			INSERT INTO products (id, name, category_id, price) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, category_id = EXCLUDED.category_id, price = EXCLUDED.price`,
			p.id, p.name, p.category, p.price,
		); err != nil {
			return errors.Wrapf(err, "upsert product %d", p.id)
		}

		slog.Info("upserted product", slog.Int64("id", p.id), slog.String("name", p.name))
	}

	return nil
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo promotions")

	now := time.Now().UTC()
	start := now.AddDate(0, -1, 0)

	type promoSeed struct {
		id          int64
		name        string
		promoType   string
		scope       string
		value       decimal.Decimal
		startMinute *int
		endMinute   *int
		weekdays    []int32
		minQuantity int
		minAmount   decimal.Decimal
		maxUses     int
		perCustomer int
		requires    bool
		code        *string
	}

	ptr := func(v int) *int { return &v }
	str := func(v string) *string { return &v }

	promos := []promoSeed{
		{
			id: 1, name: "Happy Hour 20% Off Drinks",
			promoType: "percentage", scope: "category", value: decimal.NewFromInt(20),
			startMinute: ptr(16 * 60), endMinute: ptr(18*60 + 59),
			minQuantity: 1, minAmount: decimal.Zero,
		},
		{
			id: 2, name: "Buy 2 Get 1 Lemonade",
			promoType: "buy_2_get_1", scope: "product", value: decimal.Zero,
			minQuantity: 3, minAmount: decimal.Zero,
		},
		{
			id: 3, name: "Weekend $5 Off Orders Over $30",
			promoType: "fixed_amount", scope: "order", value: decimal.NewFromInt(5),
			weekdays:    []int32{0, 6},
			minQuantity: 1, minAmount: decimal.NewFromInt(30),
		},
		{
			id: 4, name: "Pizza Tuesday Special Price",
			promoType: "fixed_price", scope: "product", value: decimal.Zero,
			weekdays:    []int32{2},
			minQuantity: 1, minAmount: decimal.Zero,
		},
		{
			id: 5, name: "WELCOME10",
			promoType: "percentage", scope: "order", value: decimal.NewFromInt(10),
			minQuantity: 1, minAmount: decimal.Zero,
			maxUses: 500, perCustomer: 1, requires: true, code: str("WELCOME10"),
		},
	}

	for _, p := range promos {
		if _, err := pool.Exec(ctx, `
			INSERT INTO promotions (
				id, name, promo_type, scope, value, starts_at, ends_at,
				start_minute, end_minute, weekdays, min_quantity, min_amount,
				max_uses, max_uses_per_customer, requires_code, code, active
			) VALUES ($1, $2, $3, $4, $5, $6, NULL, $7, $8, $9, $10, $11, $12, $13, $14, $15, TRUE)
			ON CONFLICT (id) DO NOTHING`,
			p.id, p.name, p.promoType, p.scope, p.value, start,
			p.startMinute, p.endMinute, p.weekdays, p.minQuantity, p.minAmount,
			p.maxUses, p.perCustomer, p.requires, p.code,
		); err != nil {
			return errors.Wrapf(err, "insert promotion %d", p.id)
		}

		slog.Info("seeded promotion", slog.Int64("id", p.id), slog.String("name", p.name))
	}

	targets := []struct {
		promotionID int64
		productID   *int64
		categoryID  *int64
		special     *decimal.Decimal
	}{
		{promotionID: 1, categoryID: int64Ptr(1)},
		{promotionID: 2, productID: int64Ptr(1)},
		{promotionID: 4, productID: int64Ptr(4), special: decimalPtr(decimal.NewFromInt(10))},
	}

	for _, t := range targets {
		if _, err := pool.Exec(ctx, `
			INSERT INTO promotion_targets (promotion_id, product_id, category_id, special_price)
			SELECT $1, $2, $3, $4
			WHERE NOT EXISTS (
				SELECT 1 FROM promotion_targets
				WHERE promotion_id = $1
				  AND product_id IS NOT DISTINCT FROM $2
				  AND category_id IS NOT DISTINCT FROM $3
			)`,
			t.promotionID, t.productID, t.categoryID, t.special,
		); err != nil {
			return errors.Wrapf(err, "insert target for promotion %d", t.promotionID)
		}
	}

	// Seeded rows use fixed ids, keep the sequence ahead of them.
	if _, err := pool.Exec(ctx,
		`SELECT setval('promotions_id_seq', (SELECT MAX(id) FROM promotions))`,
	); err != nil {
		return errors.Wrap(err, "advance promotions sequence")
	}

	return nil
}

func seedOrder(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo order")

	if _, err := pool.Exec(ctx, `
		INSERT INTO orders (id, status, customer_id, subtotal, tax_amount, tip, total)
		VALUES (1, 'open', 'walk-in-1', 33.40, 5.34, 0, 38.74)
		ON CONFLICT (id) DO NOTHING`,
	); err != nil {
		return errors.Wrap(err, "insert order")
	}

	lines := []struct {
		productID  int64
		categoryID int64
		quantity   int
		unitPrice  decimal.Decimal
	}{
		{1, 1, 3, decimal.NewFromFloat(3.50)},
		{3, 2, 1, decimal.NewFromFloat(12.90)},
		{5, 2, 1, decimal.NewFromFloat(10.00)},
	}

	for _, ln := range lines {
		lineTotal := ln.unitPrice.Mul(decimal.NewFromInt(int64(ln.quantity)))
		if _, err := pool.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, category_id, quantity, unit_price, line_total)
			SELECT 1, $1, $2, $3, $4, $5
			WHERE NOT EXISTS (
				SELECT 1 FROM order_items WHERE order_id = 1 AND product_id = $1
			)`,
			ln.productID, ln.categoryID, ln.quantity, ln.unitPrice, lineTotal,
		); err != nil {
			return errors.Wrapf(err, "insert order line for product %d", ln.productID)
		}
	}

	if _, err := pool.Exec(ctx,
		`SELECT setval('orders_id_seq', (SELECT MAX(id) FROM orders))`,
	); err != nil {
		return errors.Wrap(err, "advance orders sequence")
	}

	return nil
}

func int64Ptr(v int64) *int64 { return &v }

func decimalPtr(v decimal.Decimal) *decimal.Decimal { return &v }
