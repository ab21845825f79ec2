// Package api exposes the engine's entry points over HTTP: coupon lookup,
// code attachment and removal, and adjustment evaluation.
package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/webdna/commerce-multi-coupon/internal/domain/discount"
)

// Handler serves the coupon and adjustment endpoints.
type Handler struct {
	service *discount.Service
	storeID int64
}

// NewHandler creates a Handler. storeID scopes coupon lookups for requests
// that do not carry an order.
func NewHandler(service *discount.Service, storeID int64) *Handler {
	return &Handler{service: service, storeID: storeID}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/coupons/{code}", h.LookupCoupon)
	mux.HandleFunc("POST /api/orders/{id}/coupons", h.AttachCoupon)
	mux.HandleFunc("DELETE /api/orders/{id}/coupons/{code}", h.RemoveCoupon)
	mux.HandleFunc("GET /api/orders/{id}/adjustments", h.Adjustments)
}

// writeJSON writes the encoder's buffer with the given status.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError maps domain errors to HTTP status codes. Storage failures are
// 500s: an empty discount response must never stand in for a failed lookup.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, discount.ErrCouponNotFound):
		status = http.StatusNotFound
		message = "coupon code not found"
	case errors.Is(err, discount.ErrOrderNotFound):
		status = http.StatusNotFound
		message = "order not found"
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

func encodeRule(e *jx.Encoder, rule *discount.Rule) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(rule.ID)
	e.FieldStart("name")
	e.Str(rule.Name)
	e.FieldStart("description")
	e.Str(rule.Description)
	e.FieldStart("perItemDiscount")
	e.Str(rule.PerItemDiscount.String())
	e.FieldStart("percentDiscount")
	e.Str(rule.PercentDiscount.String())
	e.FieldStart("percentageOffSubject")
	e.Str(string(rule.PercentageOffSubject))
	e.FieldStart("baseDiscount")
	e.Str(rule.BaseDiscount.String())
	e.FieldStart("baseDiscountType")
	e.Str(string(rule.BaseDiscountType))
	e.FieldStart("stopProcessing")
	e.Bool(rule.StopProcessing)
	e.FieldStart("sortOrder")
	e.Int(rule.SortOrder)
	e.ObjEnd()
}
