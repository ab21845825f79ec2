package discount

import (
	"context"

	"github.com/webdna/commerce-multi-coupon/internal/session"
)

// Validator answers whether a literal code string currently identifies a
// usable coupon anywhere in the catalog. It runs when a code is staged for
// attachment, not during adjustment computation.
type Validator struct {
	catalog *CatalogService
}

// NewValidator creates a Validator backed by the given catalog service.
func NewValidator(catalog *CatalogService) *Validator {
	return &Validator{catalog: catalog}
}

// LookupCouponDiscount scans the store's active rules in catalog order for
// one whose coupon set contains a case-insensitive match with remaining
// uses. Returns ErrCouponNotFound when no rule qualifies.
func (v *Validator) LookupCouponDiscount(ctx context.Context, storeID int64, code string) (*Rule, error) {
	rules, err := v.catalog.ActiveDiscounts(ctx, session.New(), nil, storeID)
	if err != nil {
		return nil, err
	}

	for _, rule := range rules {
		if len(rule.Coupons) == 0 {
			continue
		}
		if rule.UsableCouponFor(code) != nil {
			return rule, nil
		}
	}

	return nil, ErrCouponNotFound
}
