package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/webdna/commerce-multi-coupon/internal/domain/order"
)

// PercentageOffSubject selects which price the percentage discount is taken
// from when several rules stack on the same line item.
type PercentageOffSubject string

const (
	// SubjectOriginalPrice applies the percentage to the item's original
	// sale price regardless of earlier rules.
	SubjectOriginalPrice PercentageOffSubject = "original"
	// SubjectCompoundedPrice applies the percentage to the unit price
	// carried over from earlier rules in the same pass. This is the
	// defining stacking behaviour.
	SubjectCompoundedPrice PercentageOffSubject = "discounted"
)

// BaseDiscountType selects how a rule's order-level base amount is resolved.
type BaseDiscountType string

const (
	BaseValue                  BaseDiscountType = "value"
	BasePercentTotal           BaseDiscountType = "percentTotal"
	BasePercentTotalDiscounted BaseDiscountType = "percentTotalDiscounted"
	BasePercentItemsDiscounted BaseDiscountType = "percentItemsDiscounted"
)

// CategoryRelation is the relationship direction used when resolving a
// purchasable's related category or entry ids.
type CategoryRelation string

const (
	RelationSource CategoryRelation = "sourceElement"
	RelationTarget CategoryRelation = "targetElement"
	RelationBoth   CategoryRelation = "element"
)

// Sentinel errors surfaced by the engine.
var (
	// ErrCouponNotFound is returned when no active rule carries a usable
	// coupon matching the presented code.
	ErrCouponNotFound = errors.New("coupon code not found")
	// ErrOrderNotFound is returned by entry points when the order id does
	// not resolve.
	ErrOrderNotFound = errors.New("order not found")
)

// Coupon is a single redeemable code owned by exactly one rule.
type Coupon struct {
	ID         int64
	DiscountID int64
	Code       string
	// MaxUses is nil for unlimited.
	MaxUses *int
	Uses    int
}

// Usable reports whether the coupon has redemptions remaining.
func (c Coupon) Usable() bool {
	return c.MaxUses == nil || c.Uses < *c.MaxUses
}

// Rule is a promotional discount rule. Field semantics follow the catalog
// row: zero threshold and limit values mean unconstrained.
type Rule struct {
	ID          int64
	StoreID     int64
	Name        string
	Description string
	Enabled     bool

	DateFrom *time.Time
	DateTo   *time.Time

	RequireCouponCode bool
	Coupons           []Coupon

	AllPurchasables  bool
	AllCategories    bool
	PurchasableIDs   []int64
	CategoryIDs      []int64
	CategoryRelation CategoryRelation

	PurchaseTotal  decimal.Decimal
	PurchaseQty    int
	MaxPurchaseQty int

	// PerItemDiscount is a flat signed amount added to the unit price;
	// reductions are negative.
	PerItemDiscount decimal.Decimal
	// PercentDiscount is a positive fraction (0.10 = 10% off) subtracted
	// from the subject price.
	PercentDiscount      decimal.Decimal
	PercentageOffSubject PercentageOffSubject

	BaseDiscount     decimal.Decimal
	BaseDiscountType BaseDiscountType

	TotalDiscountUseLimit int
	TotalDiscountUses     int
	PerUserLimit          int
	PerEmailLimit         int

	OrderCondition           string
	CustomerCondition        string
	BillingAddressCondition  string
	ShippingAddressCondition string
	OrderConditionFormula    string

	StopProcessing     bool
	SortOrder          int
	ExcludeOnPromotion bool
}

// UsableCouponFor returns the rule's first usable coupon matching the given
// attached code, or nil.
func (r *Rule) UsableCouponFor(code string) *Coupon {
	for i := range r.Coupons {
		c := &r.Coupons[i]
		if CodesEqual(c.Code, code) && c.Usable() {
			return c
		}
	}
	return nil
}

// Snapshot captures the rule's descriptive fields on an adjustment at apply
// time, so later catalog edits do not rewrite order history.
type Snapshot struct {
	DiscountID           int64                `json:"discountId"`
	Name                 string               `json:"name"`
	Description          string               `json:"description"`
	PerItemDiscount      decimal.Decimal      `json:"perItemDiscount"`
	PercentDiscount      decimal.Decimal      `json:"percentDiscount"`
	PercentageOffSubject PercentageOffSubject `json:"percentageOffSubject"`
	BaseDiscount         decimal.Decimal      `json:"baseDiscount"`
	BaseDiscountType     BaseDiscountType     `json:"baseDiscountType"`
	StopProcessing       bool                 `json:"stopProcessing"`
	SortOrder            int                  `json:"sortOrder"`
}

// Adjustment is one computed monetary adjustment. LineItemID is empty for
// order-level (base) adjustments.
type Adjustment struct {
	DiscountID int64
	LineItemID string
	Amount     decimal.Decimal
	Snapshot   Snapshot
}

// CatalogQuery carries the coarse pre-filter parameters for ActiveDiscounts.
type CatalogQuery struct {
	StoreID int64
	Instant time.Time
	// HasOrder distinguishes a catalog-wide scan (CouponValidator) from an
	// order-scoped one; the lenient order pre-checks below only apply when
	// true.
	HasOrder       bool
	CouponCodes    []string
	Email          string
	ItemSubtotal   decimal.Decimal
	TotalQty       int
	PurchasableIDs []int64
}

// Catalog supplies filtered discount rows and usage counters. The coarse
// filter behind ActiveDiscounts may admit extra candidates the matcher later
// rejects, but must never exclude a rule the matcher would accept.
type Catalog interface {
	ActiveDiscounts(ctx context.Context, q CatalogQuery) ([]*Rule, error)
	CustomerUses(ctx context.Context, discountID, customerID int64) (int, error)
	EmailUses(ctx context.Context, discountID int64, email string) (int, error)
}

// ConditionEvaluator evaluates stored boolean expressions against model
// snapshots. Implementations fail closed: a malformed expression matches
// nothing and never aborts evaluation.
type ConditionEvaluator interface {
	MatchOrder(ctx context.Context, condition string, o *order.Order) bool
	MatchCustomer(ctx context.Context, condition string, customerID int64) bool
	MatchAddress(ctx context.Context, condition string, addressID int64) bool
	// MatchFormula evaluates the free-form order condition formula against
	// an order-plus-custom-fields map.
	MatchFormula(ctx context.Context, formula string, snapshot map[string]any) bool
}

// CategoryResolver returns the category/entry ids related to a purchasable.
// This is the most expensive call in the hot per-item loop and is memoized
// per evaluation session.
type CategoryResolver interface {
	RelatedIDs(ctx context.Context, rel CategoryRelation, purchasableID int64) ([]int64, error)
}

// MatchHook is a final synchronous veto invoked at a fixed point after the
// built-in predicate chain. A nil hook never vetoes.
type MatchHook interface {
	MatchLineItem(item order.LineItem, rule *Rule) bool
	MatchOrder(o *order.Order, rule *Rule) bool
}
