package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the read model the discount engine evaluates. It is assembled by
// the host platform (or the postgres repository here) and is never mutated
// by the engine, with one exception: the single pending coupon code is
// cleared once it has been absorbed into the attached set.
type Order struct {
	ID      string
	StoreID int64

	// PendingCouponCode is the single staged code awaiting attachment.
	PendingCouponCode string
	// CouponCodes are all codes attached to the order, compared
	// case-insensitively everywhere.
	CouponCodes []string

	CustomerID        *int64
	Email             string
	BillingAddressID  *int64
	ShippingAddressID *int64

	// DateOrdered is nil while the order is still a cart.
	DateOrdered *time.Time

	LineItems []LineItem

	ItemSubtotal      decimal.Decimal
	TotalQty          int
	TotalShippingCost decimal.Decimal

	// CustomFields feeds the free-form order condition formula.
	CustomFields map[string]any
}

// Completed reports whether the order has been placed.
func (o *Order) Completed() bool {
	return o.DateOrdered != nil
}

// PurchasableIDs returns the distinct purchasable ids across line items,
// in first-seen order. Lines without a purchasable are skipped.
func (o *Order) PurchasableIDs() []int64 {
	seen := make(map[int64]struct{}, len(o.LineItems))
	ids := make([]int64, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		if item.PurchasableID == nil {
			continue
		}
		if _, ok := seen[*item.PurchasableID]; ok {
			continue
		}
		seen[*item.PurchasableID] = struct{}{}
		ids = append(ids, *item.PurchasableID)
	}
	return ids
}

// LineItem is a single order line. ID is stable for the lifetime of one
// evaluation pass; the compounding calculator keys its running unit price
// state on it.
type LineItem struct {
	ID string
	// PurchasableID is nil for non-product lines (custom charges etc).
	PurchasableID *int64
	Qty           int
	SalePrice     decimal.Decimal
	Promotable    bool
	OnPromotion   bool
	Subtotal      decimal.Decimal
}

// Repository supplies orders to the evaluation entry points.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
}

// CouponAttachments persists which coupon codes are attached to which order.
type CouponAttachments interface {
	Codes(ctx context.Context, orderID string) ([]string, error)
	Attach(ctx context.Context, orderID string, discountID int64, code string) error
	Remove(ctx context.Context, orderID string, codes []string) error
}
