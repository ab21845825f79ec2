package discount

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/webdna/commerce-multi-coupon/internal/domain/order"
)

// mockCatalog implements Catalog in memory for matcher and adjuster tests.
type mockCatalog struct {
	rules        []*Rule
	err          error
	customerUses map[string]int // "discountID:customerID"
	emailUses    map[string]int // "discountID:email"
	usageErr     error

	activeCalls int
	lastQuery   CatalogQuery
}

func (m *mockCatalog) ActiveDiscounts(_ context.Context, q CatalogQuery) ([]*Rule, error) {
	m.activeCalls++
	m.lastQuery = q
	if m.err != nil {
		return nil, m.err
	}
	return m.rules, nil
}

func (m *mockCatalog) CustomerUses(_ context.Context, discountID, customerID int64) (int, error) {
	if m.usageErr != nil {
		return 0, m.usageErr
	}
	return m.customerUses[usageKey(discountID, customerID)], nil
}

func (m *mockCatalog) EmailUses(_ context.Context, discountID int64, email string) (int, error) {
	if m.usageErr != nil {
		return 0, m.usageErr
	}
	return m.emailUses[emailKey(discountID, email)], nil
}

func usageKey(discountID, customerID int64) string {
	return strconv.FormatInt(discountID, 10) + ":" + strconv.FormatInt(customerID, 10)
}

func emailKey(discountID int64, email string) string {
	return strconv.FormatInt(discountID, 10) + ":" + email
}

// stubConditions returns fixed answers per condition string.
type stubConditions struct {
	results map[string]bool
}

func (s *stubConditions) MatchOrder(_ context.Context, cond string, _ *order.Order) bool {
	return s.results[cond]
}

func (s *stubConditions) MatchCustomer(_ context.Context, cond string, _ int64) bool {
	return s.results[cond]
}

func (s *stubConditions) MatchAddress(_ context.Context, cond string, _ int64) bool {
	return s.results[cond]
}

func (s *stubConditions) MatchFormula(_ context.Context, formula string, _ map[string]any) bool {
	return s.results[formula]
}

// stubResolver maps purchasable ids to related category ids and counts
// calls so memoization is observable.
type stubResolver struct {
	related map[int64][]int64
	err     error
	calls   int
}

func (s *stubResolver) RelatedIDs(_ context.Context, _ CategoryRelation, purchasableID int64) ([]int64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.related[purchasableID], nil
}

// vetoHook rejects everything; nil hooks accept everything.
type vetoHook struct{}

func (vetoHook) MatchLineItem(order.LineItem, *Rule) bool { return false }
func (vetoHook) MatchOrder(*order.Order, *Rule) bool      { return false }

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

// testOrder builds a single-store order with the given line items and
// attached codes, with aggregates derived the way the repository derives
// them.
func testOrder(codes []string, items ...order.LineItem) *order.Order {
	o := &order.Order{
		ID:          "order-1",
		StoreID:     1,
		CouponCodes: codes,
		LineItems:   items,
	}
	subtotal := decimal.Zero
	for i := range o.LineItems {
		item := &o.LineItems[i]
		item.Subtotal = item.SalePrice.Mul(decimal.NewFromInt(int64(item.Qty))).Round(2)
		subtotal = subtotal.Add(item.Subtotal)
		o.TotalQty += item.Qty
	}
	o.ItemSubtotal = subtotal
	return o
}

// promotableItem builds a promotable line with the given id, purchasable,
// qty and unit price.
func promotableItem(id string, purchasableID int64, qty int, price string) order.LineItem {
	return order.LineItem{
		ID:            id,
		PurchasableID: int64Ptr(purchasableID),
		Qty:           qty,
		SalePrice:     dec(price),
		Promotable:    true,
	}
}

// couponRule builds an enabled rule unlocked by the given code.
func couponRule(id int64, sortOrder int, code string) *Rule {
	return &Rule{
		ID:                   id,
		StoreID:              1,
		Name:                 "rule",
		Enabled:              true,
		RequireCouponCode:    true,
		Coupons:              []Coupon{{ID: id * 10, DiscountID: id, Code: code}},
		AllPurchasables:      true,
		AllCategories:        true,
		PercentageOffSubject: SubjectCompoundedPrice,
		BaseDiscountType:     BaseValue,
		SortOrder:            sortOrder,
	}
}

func newTestMatcher(catalog Catalog, conditions ConditionEvaluator, resolver CategoryResolver, hook MatchHook, now time.Time) *Matcher {
	if conditions == nil {
		conditions = &stubConditions{results: map[string]bool{}}
	}
	if resolver == nil {
		resolver = &stubResolver{related: map[int64][]int64{}}
	}
	m := NewMatcher(catalog, conditions, resolver, hook)
	m.now = func() time.Time { return now }
	return m
}
