package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webdna/commerce-multi-coupon/internal/domain/discount"
	"github.com/webdna/commerce-multi-coupon/internal/domain/order"
)

var _ order.CouponAttachments = (*CouponAttachmentRepository)(nil)

// CouponAttachmentRepository persists coupon-code attachments, one code per
// discount per order.
type CouponAttachmentRepository struct {
	pool *pgxpool.Pool
}

// NewCouponAttachmentRepository returns a CouponAttachmentRepository that
// uses the given pool.
func NewCouponAttachmentRepository(pool *pgxpool.Pool) *CouponAttachmentRepository {
	return &CouponAttachmentRepository{pool: pool}
}

const getCodesSQL = `SELECT code FROM order_coupon_codes WHERE order_id = $1 ORDER BY code`

const attachCodeSQL = `INSERT INTO order_coupon_codes (code, discount_id, order_id)
	VALUES ($1, $2, $3)
	ON CONFLICT (discount_id, order_id) DO UPDATE SET code = EXCLUDED.code`

const removeCodesSQL = `DELETE FROM order_coupon_codes
	WHERE order_id = $1 AND UPPER(code) = ANY($2)`

// Codes returns all coupon codes attached to the order.
func (r *CouponAttachmentRepository) Codes(ctx context.Context, orderID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, getCodesSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("loading coupon codes for order %q: %w", orderID, err)
	}

	codes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var code string
		err := row.Scan(&code)
		return code, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning coupon codes for order %q: %w", orderID, err)
	}

	return codes, nil
}

// Attach records a validated code on the order. A second code for the same
// discount replaces the first: a rule can only be unlocked once per order.
func (r *CouponAttachmentRepository) Attach(ctx context.Context, orderID string, discountID int64, code string) error {
	_, err := r.pool.Exec(ctx, attachCodeSQL, code, discountID, orderID)
	if err != nil {
		return fmt.Errorf("attaching code to order %q: %w", orderID, err)
	}
	return nil
}

// Remove deletes the given code attachments from the order,
// case-insensitively.
func (r *CouponAttachmentRepository) Remove(ctx context.Context, orderID string, codes []string) error {
	normalized := make([]string, len(codes))
	for i, c := range codes {
		normalized[i] = discount.NormalizeCode(c)
	}

	_, err := r.pool.Exec(ctx, removeCodesSQL, orderID, normalized)
	if err != nil {
		return fmt.Errorf("removing codes from order %q: %w", orderID, err)
	}
	return nil
}
