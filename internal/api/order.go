package api

import (
	"net/http"

	"github.com/go-faster/jx"
)

// Adjustments runs one evaluation pass over the order and returns the
// computed adjustments in processing order.
func (h *Handler) Adjustments(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	adjustments, err := h.service.EvaluateOrderAdjustments(r.Context(), orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(orderID)
	e.FieldStart("adjustments")
	e.ArrStart()
	for _, adj := range adjustments {
		e.ObjStart()
		e.FieldStart("discountId")
		e.Int64(adj.DiscountID)
		if adj.LineItemID != "" {
			e.FieldStart("lineItemId")
			e.Str(adj.LineItemID)
		}
		e.FieldStart("amount")
		e.Str(adj.Amount.StringFixed(2))
		e.FieldStart("name")
		e.Str(adj.Snapshot.Name)
		e.FieldStart("description")
		e.Str(adj.Snapshot.Description)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}
