package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/webdna/commerce-multi-coupon/internal/domain/discount"
	"github.com/webdna/commerce-multi-coupon/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. It
// assembles the read model the engine evaluates, including the aggregates
// derived from line items.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const getOrderSQL = `SELECT id, store_id, email, customer_id,
	billing_address_id, shipping_address_id, date_ordered,
	total_shipping_cost, custom_fields
	FROM orders WHERE id = $1`

const getLineItemsSQL = `SELECT id, purchasable_id, qty, sale_price,
	promotable, on_promotion
	FROM line_items WHERE order_id = $1 ORDER BY sort_order, id`

// GetByID loads an order with its line items. Returns
// discount.ErrOrderNotFound when the id does not resolve.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	var (
		o            order.Order
		customFields []byte
	)
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.StoreID, &o.Email, &o.CustomerID,
		&o.BillingAddressID, &o.ShippingAddressID, &o.DateOrdered,
		&o.TotalShippingCost, &customFields,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrOrderNotFound
		}
		return nil, fmt.Errorf("loading order %q: %w", id, err)
	}

	if len(customFields) > 0 {
		if err := json.Unmarshal(customFields, &o.CustomFields); err != nil {
			return nil, fmt.Errorf("decoding custom fields for order %q: %w", id, err)
		}
	}

	rows, err := r.pool.Query(ctx, getLineItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("loading line items for order %q: %w", id, err)
	}

	items, err := pgx.CollectRows(rows, scanLineItem)
	if err != nil {
		return nil, fmt.Errorf("scanning line items for order %q: %w", id, err)
	}
	o.LineItems = items

	subtotal := decimal.Zero
	qty := 0
	for i := range o.LineItems {
		item := &o.LineItems[i]
		item.Subtotal = item.SalePrice.Mul(decimal.NewFromInt(int64(item.Qty))).Round(2)
		subtotal = subtotal.Add(item.Subtotal)
		qty += item.Qty
	}
	o.ItemSubtotal = subtotal
	o.TotalQty = qty

	return &o, nil
}

func scanLineItem(row pgx.CollectableRow) (order.LineItem, error) {
	var item order.LineItem
	err := row.Scan(&item.ID, &item.PurchasableID, &item.Qty, &item.SalePrice,
		&item.Promotable, &item.OnPromotion)
	return item, err
}
