package discount

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/webdna/commerce-multi-coupon/internal/domain/order"
	"github.com/webdna/commerce-multi-coupon/internal/session"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Adjuster computes the final, compounded, ordered list of monetary
// adjustments for an order carrying multiple attached coupon codes.
//
// Rules with no coupons at all belong to the platform's ordinary discount
// path and are never unlocked here.
type Adjuster struct {
	catalog *CatalogService
	matcher *Matcher
}

// NewAdjuster creates an Adjuster.
func NewAdjuster(catalog *CatalogService, matcher *Matcher) *Adjuster {
	return &Adjuster{catalog: catalog, matcher: matcher}
}

// pass carries the mutable state of one adjustment pass: the running unit
// price per line item (keyed by the item's stable id) and the cumulative
// discount total.
type pass struct {
	unitPrices    map[string]decimal.Decimal
	discountTotal decimal.Decimal
}

// Adjust evaluates every unlocked rule against the order in ascending
// sortOrder and returns the resulting adjustments in processing order.
func (a *Adjuster) Adjust(ctx context.Context, sess *session.Session, o *order.Order) ([]Adjustment, error) {
	candidates, err := a.catalog.ActiveDiscounts(ctx, sess, o, o.StoreID)
	if err != nil {
		return nil, err
	}

	unlocked := make([]*Rule, 0, len(candidates))
	for _, rule := range candidates {
		if len(rule.Coupons) == 0 {
			continue
		}
		if orderUnlocksRule(o, rule) {
			unlocked = append(unlocked, rule)
		}
	}

	p := &pass{
		unitPrices:    make(map[string]decimal.Decimal, len(o.LineItems)),
		discountTotal: zero,
	}

	var adjustments []Adjustment
	for _, rule := range unlocked {
		ruleAdjustments, err := a.applyRule(ctx, sess, p, o, rule)
		if err != nil {
			return nil, err
		}
		if len(ruleAdjustments) == 0 {
			continue
		}
		adjustments = append(adjustments, ruleAdjustments...)

		if rule.StopProcessing {
			break
		}
	}

	// The pending code has been absorbed into the attached set by now.
	o.PendingCouponCode = ""

	return adjustments, nil
}

// applyRule produces the rule's per-item and base adjustments, advancing the
// compounding state as it goes. It returns nil when the rule produced
// neither.
func (a *Adjuster) applyRule(ctx context.Context, sess *session.Session, p *pass, o *order.Order, rule *Rule) ([]Adjustment, error) {
	ok, err := a.matcher.MatchOrder(ctx, sess, o, rule)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var adjustments []Adjustment

	for _, item := range o.LineItems {
		ok, err := a.matcher.MatchLineItem(ctx, sess, o, item, rule, false)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		amount := a.adjustLineItem(p, item, rule)
		if amount.IsZero() {
			continue
		}

		p.discountTotal = p.discountTotal.Add(amount)
		adjustments = append(adjustments, Adjustment{
			DiscountID: rule.ID,
			LineItemID: item.ID,
			Amount:     amount,
			Snapshot:   snapshotRule(rule),
		})
	}

	if !rule.BaseDiscount.IsZero() {
		amount := a.baseDiscountAmount(p, o, rule)
		p.discountTotal = p.discountTotal.Add(amount)
		adjustments = append(adjustments, Adjustment{
			DiscountID: rule.ID,
			Amount:     amount,
			Snapshot:   snapshotRule(rule),
		})
	}

	return adjustments, nil
}

// adjustLineItem computes one item's adjustment amount under rule and
// updates the running unit price for later rules in the pass.
func (a *Adjuster) adjustLineItem(p *pass, item order.LineItem, rule *Rule) decimal.Decimal {
	qty := decimal.NewFromInt(int64(item.Qty))
	flat := rule.PerItemDiscount.Round(2)

	unitPrice, ok := p.unitPrices[item.ID]
	if !ok {
		unitPrice = item.SalePrice
	}

	// Subtotal still owed on this line before the rule applies.
	lineSubtotal := unitPrice.Mul(qty).Round(2)

	unitPrice = unitPrice.Add(flat)
	if unitPrice.IsNegative() {
		unitPrice = zero
	}

	if unitPrice.IsZero() {
		// The flat component consumed the whole line.
		p.unitPrices[item.ID] = zero
		return lineSubtotal.Neg()
	}

	subject := unitPrice
	if rule.PercentageOffSubject == SubjectOriginalPrice {
		subject = item.SalePrice
	}

	discountedUnitPrice := unitPrice.Sub(rule.PercentDiscount.Mul(subject))
	if discountedUnitPrice.IsNegative() {
		discountedUnitPrice = zero
	}
	p.unitPrices[item.ID] = discountedUnitPrice

	discountedSubtotal := discountedUnitPrice.Mul(qty).Round(2)

	return discountedSubtotal.Sub(lineSubtotal)
}

// baseDiscountAmount resolves the rule's order-level amount.
func (a *Adjuster) baseDiscountAmount(p *pass, o *order.Order, rule *Rule) decimal.Decimal {
	switch rule.BaseDiscountType {
	case BasePercentTotal:
		return o.ItemSubtotal.Div(hundred).Mul(rule.BaseDiscount).Round(2)
	case BasePercentTotalDiscounted, BasePercentItemsDiscounted:
		total := o.ItemSubtotal.Add(p.discountTotal).Add(o.TotalShippingCost)
		return total.Div(hundred).Mul(rule.BaseDiscount).Round(2)
	default:
		return rule.BaseDiscount.Round(2)
	}
}

func snapshotRule(rule *Rule) Snapshot {
	return Snapshot{
		DiscountID:           rule.ID,
		Name:                 rule.Name,
		Description:          rule.Description,
		PerItemDiscount:      rule.PerItemDiscount,
		PercentDiscount:      rule.PercentDiscount,
		PercentageOffSubject: rule.PercentageOffSubject,
		BaseDiscount:         rule.BaseDiscount,
		BaseDiscountType:     rule.BaseDiscountType,
		StopProcessing:       rule.StopProcessing,
		SortOrder:            rule.SortOrder,
	}
}
