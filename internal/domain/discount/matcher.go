package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/webdna/commerce-multi-coupon/internal/domain/order"
	"github.com/webdna/commerce-multi-coupon/internal/session"
)

// Matcher decides whether a rule applies to an order or to an individual
// line item. It is read-only: the only state it touches is the per-session
// category memoization cache.
type Matcher struct {
	usage      Catalog
	conditions ConditionEvaluator
	categories CategoryResolver
	hook       MatchHook
	now        func() time.Time
}

// NewMatcher creates a Matcher. hook may be nil.
func NewMatcher(usage Catalog, conditions ConditionEvaluator, categories CategoryResolver, hook MatchHook) *Matcher {
	return &Matcher{
		usage:      usage,
		conditions: conditions,
		categories: categories,
		hook:       hook,
		now:        time.Now,
	}
}

// MatchOrder reports whether rule applies to the order as a whole. Each
// predicate fails closed and short-circuits the rest. An error is returned
// only when a usage counter read fails; condition evaluation failures match
// false instead.
func (m *Matcher) MatchOrder(ctx context.Context, sess *session.Session, o *order.Order, rule *Rule) (bool, error) {
	if !rule.Enabled {
		return false, nil
	}

	if rule.OrderCondition != "" && !m.conditions.MatchOrder(ctx, rule.OrderCondition, o) {
		return false, nil
	}

	if rule.CustomerCondition != "" {
		if o.CustomerID == nil {
			return false, nil
		}
		if !m.conditions.MatchCustomer(ctx, rule.CustomerCondition, *o.CustomerID) {
			return false, nil
		}
	}

	if rule.ShippingAddressCondition != "" {
		if o.ShippingAddressID == nil || !m.conditions.MatchAddress(ctx, rule.ShippingAddressCondition, *o.ShippingAddressID) {
			return false, nil
		}
	}
	if rule.BillingAddressCondition != "" {
		if o.BillingAddressID == nil || !m.conditions.MatchAddress(ctx, rule.BillingAddressCondition, *o.BillingAddressID) {
			return false, nil
		}
	}

	if rule.RequireCouponCode && !orderUnlocksRule(o, rule) {
		return false, nil
	}

	// Completed orders are evaluated at their placement instant so a rule
	// expiring later never retroactively drops off the order.
	now := m.now()
	if o.Completed() {
		now = *o.DateOrdered
	}
	if rule.DateFrom != nil && rule.DateFrom.After(now) {
		return false, nil
	}
	if rule.DateTo != nil && rule.DateTo.Before(now) {
		return false, nil
	}

	if rule.TotalDiscountUseLimit > 0 && rule.TotalDiscountUses >= rule.TotalDiscountUseLimit {
		return false, nil
	}

	if rule.PerUserLimit > 0 {
		if o.CustomerID == nil {
			return false, nil
		}
		uses, err := m.usage.CustomerUses(ctx, rule.ID, *o.CustomerID)
		if err != nil {
			return false, fmt.Errorf("customer uses for discount %d: %w", rule.ID, err)
		}
		if uses >= rule.PerUserLimit {
			return false, nil
		}
	}

	if rule.PerEmailLimit > 0 {
		if o.Email == "" {
			return false, nil
		}
		uses, err := m.usage.EmailUses(ctx, rule.ID, o.Email)
		if err != nil {
			return false, fmt.Errorf("email uses for discount %d: %w", rule.ID, err)
		}
		if uses >= rule.PerEmailLimit {
			return false, nil
		}
	}

	if rule.OrderConditionFormula != "" && !m.conditions.MatchFormula(ctx, rule.OrderConditionFormula, OrderSnapshot(o)) {
		return false, nil
	}

	if rule.AllPurchasables && rule.AllCategories {
		if !meetsThresholds(rule, o.ItemSubtotal, o.TotalQty) {
			return false, nil
		}
	} else {
		// Scoped rule: thresholds apply to the matching subset only.
		qty := 0
		subtotal := decimal.Zero
		for _, item := range o.LineItems {
			ok, err := m.MatchLineItem(ctx, sess, o, item, rule, false)
			if err != nil {
				return false, err
			}
			if ok {
				qty += item.Qty
				subtotal = subtotal.Add(item.Subtotal)
			}
		}
		if qty == 0 {
			return false, nil
		}
		if !meetsThresholds(rule, subtotal, qty) {
			return false, nil
		}
	}

	if m.hook != nil && !m.hook.MatchOrder(o, rule) {
		return false, nil
	}

	return true, nil
}

// MatchLineItem reports whether rule applies to one line item. When
// recheckOrder is set the order-level match is re-verified first. Category
// resolution is memoized in the session per (relation, purchasable id);
// resolution failures exclude the item for this rule without aborting the
// rest of the order.
func (m *Matcher) MatchLineItem(ctx context.Context, sess *session.Session, o *order.Order, item order.LineItem, rule *Rule, recheckOrder bool) (bool, error) {
	if recheckOrder {
		ok, err := m.MatchOrder(ctx, sess, o, rule)
		if err != nil || !ok {
			return false, err
		}
	}

	if item.OnPromotion && rule.ExcludeOnPromotion {
		return false, nil
	}
	if !item.Promotable {
		return false, nil
	}

	if !rule.AllPurchasables {
		if item.PurchasableID == nil || !containsID(rule.PurchasableIDs, *item.PurchasableID) {
			return false, nil
		}
	}

	if !rule.AllCategories {
		if item.PurchasableID == nil {
			return false, nil
		}
		related, ok := m.relatedIDs(ctx, sess, rule.CategoryRelation, *item.PurchasableID)
		if !ok || !intersects(related, rule.CategoryIDs) {
			return false, nil
		}
	}

	if m.hook != nil && !m.hook.MatchLineItem(item, rule) {
		return false, nil
	}

	return true, nil
}

// relatedIDs resolves a purchasable's related category/entry ids through the
// session memo. The second return is false when resolution failed.
func (m *Matcher) relatedIDs(ctx context.Context, sess *session.Session, rel CategoryRelation, purchasableID int64) ([]int64, bool) {
	key := fmt.Sprintf("categories:%s:%d", rel, purchasableID)
	if v, ok := sess.Get(key); ok {
		ids, ok := v.([]int64)
		return ids, ok
	}

	ids, err := m.categories.RelatedIDs(ctx, rel, purchasableID)
	if err != nil {
		zctx.From(ctx).Warn("category resolution failed, excluding line item",
			zap.Int64("purchasable_id", purchasableID),
			zap.Error(err),
		)
		return nil, false
	}

	sess.Set(key, ids)
	return ids, true
}

// orderUnlocksRule reports whether any of the order's attached codes matches
// a usable coupon on the rule.
func orderUnlocksRule(o *order.Order, rule *Rule) bool {
	for _, code := range o.CouponCodes {
		if rule.UsableCouponFor(code) != nil {
			return true
		}
	}
	return false
}

// meetsThresholds applies the purchaseTotal/purchaseQty/maxPurchaseQty
// gates. Zero values are unconstrained.
func meetsThresholds(rule *Rule, subtotal decimal.Decimal, qty int) bool {
	if rule.PurchaseTotal.IsPositive() && subtotal.LessThan(rule.PurchaseTotal) {
		return false
	}
	if rule.PurchaseQty > 0 && qty < rule.PurchaseQty {
		return false
	}
	if rule.MaxPurchaseQty > 0 && qty > rule.MaxPurchaseQty {
		return false
	}
	return true
}

// OrderSnapshot serializes the order and its custom fields into the map the
// free-form condition formula is evaluated against.
func OrderSnapshot(o *order.Order) map[string]any {
	snapshot := map[string]any{
		"id":                o.ID,
		"storeId":           o.StoreID,
		"email":             o.Email,
		"couponCodes":       o.CouponCodes,
		"itemSubtotal":      o.ItemSubtotal.InexactFloat64(),
		"totalQty":          o.TotalQty,
		"totalShippingCost": o.TotalShippingCost.InexactFloat64(),
		"completed":         o.Completed(),
	}
	for k, v := range o.CustomFields {
		snapshot[k] = v
	}
	return snapshot
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func intersects(a, b []int64) bool {
	for _, v := range a {
		if containsID(b, v) {
			return true
		}
	}
	return false
}
