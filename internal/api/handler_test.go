package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webdna/commerce-multi-coupon/internal/domain/discount"
	"github.com/webdna/commerce-multi-coupon/internal/domain/order"
)

type fakeCatalog struct {
	rules []*discount.Rule
}

func (f *fakeCatalog) ActiveDiscounts(context.Context, discount.CatalogQuery) ([]*discount.Rule, error) {
	return f.rules, nil
}

func (f *fakeCatalog) CustomerUses(context.Context, int64, int64) (int, error) { return 0, nil }

func (f *fakeCatalog) EmailUses(context.Context, int64, string) (int, error) { return 0, nil }

type fakeOrders struct {
	orders map[string]*order.Order
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, discount.ErrOrderNotFound
	}
	return o, nil
}

type fakeAttachments struct {
	codes    map[string][]string
	attached []string
	removed  []string
}

func (f *fakeAttachments) Codes(_ context.Context, orderID string) ([]string, error) {
	return f.codes[orderID], nil
}

func (f *fakeAttachments) Attach(_ context.Context, orderID string, discountID int64, code string) error {
	f.attached = append(f.attached, code)
	return nil
}

func (f *fakeAttachments) Remove(_ context.Context, orderID string, codes []string) error {
	f.removed = append(f.removed, codes...)
	return nil
}

type allowAll struct{}

func (allowAll) MatchOrder(context.Context, string, *order.Order) bool    { return true }
func (allowAll) MatchCustomer(context.Context, string, int64) bool        { return true }
func (allowAll) MatchAddress(context.Context, string, int64) bool         { return true }
func (allowAll) MatchFormula(context.Context, string, map[string]any) bool { return true }

type noCategories struct{}

func (noCategories) RelatedIDs(context.Context, discount.CategoryRelation, int64) ([]int64, error) {
	return nil, nil
}

func i64(v int64) *int64 { return &v }

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestServer(t *testing.T, catalog *fakeCatalog, orders *fakeOrders, attachments *fakeAttachments) *httptest.Server {
	t.Helper()

	catalogSvc := discount.NewCatalogService(catalog)
	matcher := discount.NewMatcher(catalog, allowAll{}, noCategories{}, nil)
	svc := discount.NewService(
		orders,
		attachments,
		catalogSvc,
		discount.NewAdjuster(catalogSvc, matcher),
		discount.NewValidator(catalogSvc),
	)

	mux := http.NewServeMux()
	NewHandler(svc, 1).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testRule() *discount.Rule {
	return &discount.Rule{
		ID:                   1,
		StoreID:              1,
		Name:                 "Spring promo",
		Enabled:              true,
		RequireCouponCode:    true,
		Coupons:              []discount.Coupon{{ID: 10, DiscountID: 1, Code: "SAVE10"}},
		AllPurchasables:      true,
		AllCategories:        true,
		PercentDiscount:      mustDecimal("0.10"),
		PercentageOffSubject: discount.SubjectCompoundedPrice,
		BaseDiscountType:     discount.BaseValue,
		SortOrder:            1,
	}
}

func testOrderFixture() *order.Order {
	o := &order.Order{
		ID:      "order-1",
		StoreID: 1,
		LineItems: []order.LineItem{{
			ID:            "li-1",
			PurchasableID: i64(101),
			Qty:           1,
			SalePrice:     mustDecimal("100.00"),
			Promotable:    true,
			Subtotal:      mustDecimal("100.00"),
		}},
		ItemSubtotal: mustDecimal("100.00"),
		TotalQty:     1,
	}
	return o
}

func TestLookupCoupon(t *testing.T) {
	srv := newTestServer(t,
		&fakeCatalog{rules: []*discount.Rule{testRule()}},
		&fakeOrders{},
		&fakeAttachments{},
	)

	t.Run("known code", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/coupons/save10")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var body struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, int64(1), body.ID)
		assert.Equal(t, "Spring promo", body.Name)
	})

	t.Run("unknown code", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/coupons/NOPE")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAttachCoupon(t *testing.T) {
	attachments := &fakeAttachments{}
	srv := newTestServer(t,
		&fakeCatalog{rules: []*discount.Rule{testRule()}},
		&fakeOrders{orders: map[string]*order.Order{"order-1": testOrderFixture()}},
		attachments,
	)

	t.Run("valid code", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/orders/order-1/coupons", "application/json",
			strings.NewReader(`{"code":"SAVE10"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, []string{"SAVE10"}, attachments.attached)
	})

	t.Run("missing code field", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/orders/order-1/coupons", "application/json",
			strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown order", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/orders/missing/coupons", "application/json",
			strings.NewReader(`{"code":"SAVE10"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRemoveCoupon(t *testing.T) {
	attachments := &fakeAttachments{}
	srv := newTestServer(t,
		&fakeCatalog{},
		&fakeOrders{orders: map[string]*order.Order{"order-1": testOrderFixture()}},
		attachments,
	)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/orders/order-1/coupons/SAVE10", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"SAVE10"}, attachments.removed)
}

func TestAdjustments(t *testing.T) {
	srv := newTestServer(t,
		&fakeCatalog{rules: []*discount.Rule{testRule()}},
		&fakeOrders{orders: map[string]*order.Order{"order-1": testOrderFixture()}},
		&fakeAttachments{codes: map[string][]string{"order-1": {"SAVE10"}}},
	)

	resp, err := http.Get(srv.URL + "/api/orders/order-1/adjustments")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		OrderID     string `json:"orderId"`
		Adjustments []struct {
			DiscountID int64  `json:"discountId"`
			LineItemID string `json:"lineItemId"`
			Amount     string `json:"amount"`
		} `json:"adjustments"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, "order-1", body.OrderID)
	require.Len(t, body.Adjustments, 1)
	assert.Equal(t, int64(1), body.Adjustments[0].DiscountID)
	assert.Equal(t, "li-1", body.Adjustments[0].LineItemID)
	assert.Equal(t, "-10.00", body.Adjustments[0].Amount)
}
