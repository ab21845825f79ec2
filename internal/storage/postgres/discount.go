package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webdna/commerce-multi-coupon/internal/domain/discount"
)

var _ discount.Catalog = (*DiscountCatalog)(nil)

// DiscountCatalog implements discount.Catalog backed by PostgreSQL.
//
// ActiveDiscounts applies the coarse, index-friendly pre-filter. All of the
// order-dependent conditions here are lenient: the query may return rules
// the matcher later rejects, but it must never drop a rule the matcher
// would accept.
type DiscountCatalog struct {
	pool *pgxpool.Pool
}

// NewDiscountCatalog returns a DiscountCatalog that uses the given pool.
func NewDiscountCatalog(pool *pgxpool.Pool) *DiscountCatalog {
	return &DiscountCatalog{pool: pool}
}

const discountColumns = `
	d.id, d.store_id, d.name, d.description, d.enabled,
	d.date_from, d.date_to, d.require_coupon_code,
	d.all_purchasables, d.all_categories, d.category_relation,
	d.purchase_total, d.purchase_qty, d.max_purchase_qty,
	d.per_item_discount, d.percent_discount, d.percentage_off_subject,
	d.base_discount, d.base_discount_type,
	d.total_discount_use_limit, d.total_discount_uses,
	d.per_user_limit, d.per_email_limit,
	d.order_condition, d.customer_condition,
	d.billing_address_condition, d.shipping_address_condition,
	d.order_condition_formula,
	d.stop_processing, d.sort_order, d.exclude_on_promotion,
	COALESCE((SELECT array_agg(dp.purchasable_id) FROM discount_purchasables dp WHERE dp.discount_id = d.id), '{}') AS purchasable_ids,
	COALESCE((SELECT array_agg(dc.category_id) FROM discount_categories dc WHERE dc.discount_id = d.id), '{}') AS category_ids`

// ActiveDiscounts returns candidate rules for the query, ascending by
// sort order, with their coupons attached.
func (c *DiscountCatalog) ActiveDiscounts(ctx context.Context, q discount.CatalogQuery) ([]*discount.Rule, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where, "d.enabled = TRUE")
	where = append(where, "d.store_id = "+arg(q.StoreID))

	instant := arg(q.Instant)
	where = append(where, "(d.date_from IS NULL OR d.date_from <= "+instant+")")
	where = append(where, "(d.date_to IS NULL OR d.date_to >= "+instant+")")
	where = append(where, "(d.total_discount_use_limit = 0 OR d.total_discount_uses < d.total_discount_use_limit)")

	if q.HasOrder {
		// Lenient per-email pre-check.
		if q.Email != "" {
			where = append(where, `(d.per_email_limit = 0 OR d.per_email_limit > (
				SELECT COALESCE(SUM(edu.uses), 0) FROM email_discount_uses edu
				WHERE edu.discount_id = d.id AND edu.email = `+arg(q.Email)+`))`)
		} else {
			where = append(where, "d.per_email_limit = 0")
		}

		// Threshold pre-checks only bind when the rule scope is the whole
		// order; scoped rules are re-checked against their matched subset.
		where = append(where, `(d.purchase_total = 0
			OR (d.all_purchasables AND d.all_categories AND d.purchase_total <= `+arg(q.ItemSubtotal)+`)
			OR NOT d.all_purchasables OR NOT d.all_categories)`)

		totalQty := arg(q.TotalQty)
		where = append(where, `((d.purchase_qty = 0 AND d.max_purchase_qty = 0)
			OR (d.all_purchasables AND d.all_categories
				AND (d.purchase_qty = 0 OR d.purchase_qty <= `+totalQty+`)
				AND (d.max_purchase_qty = 0 OR d.max_purchase_qty >= `+totalQty+`))
			OR NOT d.all_purchasables OR NOT d.all_categories)`)

		if len(q.CouponCodes) > 0 {
			codes := arg(normalizeAll(q.CouponCodes))
			where = append(where, `(EXISTS (
				SELECT 1 FROM coupons c WHERE c.discount_id = d.id
					AND UPPER(c.code) = ANY(`+codes+`)
					AND (c.max_uses IS NULL OR c.uses < c.max_uses))
				OR NOT EXISTS (SELECT 1 FROM coupons c WHERE c.discount_id = d.id))`)
		} else {
			where = append(where, `NOT EXISTS (SELECT 1 FROM coupons c WHERE c.discount_id = d.id)`)
		}

		if len(q.PurchasableIDs) > 0 {
			where = append(where, `(d.all_purchasables OR EXISTS (
				SELECT 1 FROM discount_purchasables sdp
				WHERE sdp.discount_id = d.id AND sdp.purchasable_id = ANY(`+arg(q.PurchasableIDs)+`)))`)
		}
	}

	sql := "SELECT" + discountColumns + "\nFROM discounts d\nWHERE " +
		strings.Join(where, "\nAND ") + "\nORDER BY d.sort_order ASC, d.id ASC"

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying active discounts: %w", err)
	}

	rules, err := pgx.CollectRows(rows, scanRule)
	if err != nil {
		return nil, fmt.Errorf("scanning active discounts: %w", err)
	}

	if err := c.attachCoupons(ctx, rules); err != nil {
		return nil, err
	}

	return rules, nil
}

const getCouponsSQL = `SELECT id, discount_id, code, max_uses, uses
	FROM coupons WHERE discount_id = ANY($1) ORDER BY id`

// attachCoupons loads the coupon sets for the given rules in one query.
func (c *DiscountCatalog) attachCoupons(ctx context.Context, rules []*discount.Rule) error {
	if len(rules) == 0 {
		return nil
	}

	byID := make(map[int64]*discount.Rule, len(rules))
	ids := make([]int64, len(rules))
	for i, r := range rules {
		byID[r.ID] = r
		ids[i] = r.ID
	}

	rows, err := c.pool.Query(ctx, getCouponsSQL, ids)
	if err != nil {
		return fmt.Errorf("querying coupons: %w", err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return fmt.Errorf("scanning coupons: %w", err)
	}

	for _, cp := range coupons {
		if r, ok := byID[cp.DiscountID]; ok {
			r.Coupons = append(r.Coupons, cp)
		}
	}

	return nil
}

const customerUsesSQL = `SELECT COALESCE(SUM(uses), 0) FROM customer_discount_uses
	WHERE discount_id = $1 AND customer_id = $2`

// CustomerUses returns the recorded usage count for (discount, customer).
func (c *DiscountCatalog) CustomerUses(ctx context.Context, discountID, customerID int64) (int, error) {
	var uses int
	err := c.pool.QueryRow(ctx, customerUsesSQL, discountID, customerID).Scan(&uses)
	if err != nil {
		return 0, fmt.Errorf("querying customer uses: %w", err)
	}
	return uses, nil
}

const emailUsesSQL = `SELECT COALESCE(SUM(uses), 0) FROM email_discount_uses
	WHERE discount_id = $1 AND email = $2`

// EmailUses returns the recorded usage count for (discount, email).
func (c *DiscountCatalog) EmailUses(ctx context.Context, discountID int64, email string) (int, error) {
	var uses int
	err := c.pool.QueryRow(ctx, emailUsesSQL, discountID, email).Scan(&uses)
	if err != nil {
		return 0, fmt.Errorf("querying email uses: %w", err)
	}
	return uses, nil
}

func scanRule(row pgx.CollectableRow) (*discount.Rule, error) {
	var (
		r        discount.Rule
		relation string
		subject  string
		baseType string
	)
	err := row.Scan(
		&r.ID, &r.StoreID, &r.Name, &r.Description, &r.Enabled,
		&r.DateFrom, &r.DateTo, &r.RequireCouponCode,
		&r.AllPurchasables, &r.AllCategories, &relation,
		&r.PurchaseTotal, &r.PurchaseQty, &r.MaxPurchaseQty,
		&r.PerItemDiscount, &r.PercentDiscount, &subject,
		&r.BaseDiscount, &baseType,
		&r.TotalDiscountUseLimit, &r.TotalDiscountUses,
		&r.PerUserLimit, &r.PerEmailLimit,
		&r.OrderCondition, &r.CustomerCondition,
		&r.BillingAddressCondition, &r.ShippingAddressCondition,
		&r.OrderConditionFormula,
		&r.StopProcessing, &r.SortOrder, &r.ExcludeOnPromotion,
		&r.PurchasableIDs, &r.CategoryIDs,
	)
	r.CategoryRelation = discount.CategoryRelation(relation)
	r.PercentageOffSubject = discount.PercentageOffSubject(subject)
	r.BaseDiscountType = discount.BaseDiscountType(baseType)
	return &r, err
}

func scanCoupon(row pgx.CollectableRow) (discount.Coupon, error) {
	var cp discount.Coupon
	err := row.Scan(&cp.ID, &cp.DiscountID, &cp.Code, &cp.MaxUses, &cp.Uses)
	return cp, err
}

func normalizeAll(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = discount.NormalizeCode(c)
	}
	return out
}
