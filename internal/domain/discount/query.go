package discount

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/webdna/commerce-multi-coupon/internal/domain/order"
	"github.com/webdna/commerce-multi-coupon/internal/session"
)

// CatalogService retrieves the coarse candidate set of active rules for an
// order and memoizes it in the evaluation session. The underlying catalog
// filter may admit candidates the matcher later rejects, but never excludes
// a rule the matcher would accept.
type CatalogService struct {
	catalog Catalog
	now     func() time.Time
}

// NewCatalogService creates a CatalogService backed by the given catalog.
func NewCatalogService(catalog Catalog) *CatalogService {
	return &CatalogService{catalog: catalog, now: time.Now}
}

// ActiveDiscounts returns the candidate rules for the order, ascending by
// sortOrder. Pass a nil order for a catalog-wide scan (coupon lookup).
func (s *CatalogService) ActiveDiscounts(ctx context.Context, sess *session.Session, o *order.Order, storeID int64) ([]*Rule, error) {
	instant := s.evaluationInstant(o)

	q := CatalogQuery{
		StoreID: storeID,
		Instant: instant,
	}
	if o != nil {
		q.HasOrder = true
		q.CouponCodes = normalizedCodes(o.CouponCodes)
		q.Email = o.Email
		q.ItemSubtotal = o.ItemSubtotal
		q.TotalQty = o.TotalQty
		q.PurchasableIDs = o.PurchasableIDs()
	}

	key := cacheKey(q)
	if v, ok := sess.Get(key); ok {
		if rules, ok := v.([]*Rule); ok {
			return rules, nil
		}
	}

	rules, err := s.catalog.ActiveDiscounts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("active discounts: %w", err)
	}

	sess.Set(key, rules)
	return rules, nil
}

// evaluationInstant is the order's placement time when completed, otherwise
// the current time rounded down to the minute so repeated lookups within one
// pass share a cache key.
func (s *CatalogService) evaluationInstant(o *order.Order) time.Time {
	if o != nil && o.Completed() {
		return o.DateOrdered.Truncate(time.Minute)
	}
	return s.now().Truncate(time.Minute)
}

// cacheKey builds the session memo key: instant, attached-code set (or a
// wildcard), purchasable fingerprint, store.
func cacheKey(q CatalogQuery) string {
	codes := "*"
	if len(q.CouponCodes) > 0 {
		sorted := append([]string(nil), q.CouponCodes...)
		sort.Strings(sorted)
		codes = strings.Join(sorted, ",")
	}

	parts := []string{
		"discounts",
		q.Instant.UTC().Format(time.RFC3339),
		codes,
		purchasableFingerprint(q.PurchasableIDs),
		fmt.Sprintf("%d", q.StoreID),
	}
	return strings.Join(parts, ":")
}

// purchasableFingerprint hashes the distinct purchasable ids so the key
// stays bounded for large carts.
func purchasableFingerprint(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var b strings.Builder
	for _, id := range sorted {
		fmt.Fprintf(&b, "%d,", id)
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func normalizedCodes(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = NormalizeCode(c)
	}
	return out
}
