// Command seed-db loads a small demonstration catalog: two stacking
// percentage rules, a flat markdown rule, and one open cart with two lines.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/webdna/commerce-multi-coupon/internal/storage/postgres"
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

type seedDiscount struct {
	name            string
	code            string
	percentDiscount decimal.Decimal
	perItemDiscount decimal.Decimal
	subject         string
	baseDiscount    decimal.Decimal
	baseType        string
	sortOrder       int
	stopProcessing  bool
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	discounts := []seedDiscount{
		{
			name:            "Spring sale 10% off",
			code:            "SPRING10",
			percentDiscount: decimal.RequireFromString("0.10"),
			subject:         "discounted",
			sortOrder:       1,
		},
		{
			name:            "Newsletter 10% off",
			code:            "NEWS10",
			percentDiscount: decimal.RequireFromString("0.10"),
			subject:         "discounted",
			sortOrder:       2,
		},
		{
			name:            "Five off every unit",
			code:            "FIVER",
			perItemDiscount: decimal.NewFromInt(-5),
			subject:         "discounted",
			baseDiscount:    decimal.NewFromInt(-2),
			baseType:        "value",
			sortOrder:       3,
		},
	}

	for _, d := range discounts {
		if err := seedOne(ctx, pool, d); err != nil {
			return errors.Wrapf(err, "seed discount %q", d.name)
		}
	}

	if err := seedOrder(ctx, pool); err != nil {
		return errors.Wrap(err, "seed order")
	}

	return nil
}

func seedOne(ctx context.Context, pool *pgxpool.Pool, d seedDiscount) error {
	subject := d.subject
	if subject == "" {
		subject = "discounted"
	}
	baseType := d.baseType
	if baseType == "" {
		baseType = "value"
	}

	var id int64
	err := pool.QueryRow(ctx, `INSERT INTO discounts
		(name, enabled, require_coupon_code, percent_discount, per_item_discount,
		 percentage_off_subject, base_discount, base_discount_type, sort_order, stop_processing)
		VALUES ($1, TRUE, TRUE, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		d.name, d.percentDiscount, d.perItemDiscount, subject,
		d.baseDiscount, baseType, d.sortOrder, d.stopProcessing,
	).Scan(&id)
	if err != nil {
		return errors.Wrap(err, "insert discount")
	}

	_, err = pool.Exec(ctx, `INSERT INTO coupons (discount_id, code) VALUES ($1, $2)`, id, d.code)
	if err != nil {
		return errors.Wrap(err, "insert coupon")
	}

	slog.Info("seeded discount", slog.String("name", d.name), slog.Int64("id", id), slog.String("code", d.code))
	return nil
}

func seedOrder(ctx context.Context, pool *pgxpool.Pool) error {
	orderID := uuid.New().String()

	_, err := pool.Exec(ctx, `INSERT INTO orders (id, email) VALUES ($1, $2)`,
		orderID, "demo@example.com")
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	lines := []struct {
		purchasableID int64
		qty           int
		salePrice     decimal.Decimal
	}{
		{purchasableID: 101, qty: 1, salePrice: decimal.NewFromInt(100)},
		{purchasableID: 102, qty: 2, salePrice: decimal.RequireFromString("24.50")},
	}

	for i, l := range lines {
		_, err := pool.Exec(ctx, `INSERT INTO line_items
			(id, order_id, purchasable_id, qty, sale_price, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New().String(), orderID, l.purchasableID, l.qty, l.salePrice, i,
		)
		if err != nil {
			return errors.Wrapf(err, "insert line item %d", i)
		}
	}

	slog.Info("seeded order", slog.String("id", orderID))
	return nil
}
