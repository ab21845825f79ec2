package api

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"
)

// LookupCoupon reports the discount rule a code would unlock.
func (h *Handler) LookupCoupon(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	rule, err := h.service.LookupCouponDiscount(r.Context(), h.storeID, code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeRule(&e, rule)
	writeJSON(w, http.StatusOK, &e)
}

// AttachCoupon validates a staged code and records its attachment to the
// order.
func (h *Handler) AttachCoupon(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	code, err := decodeCodeBody(body)
	if err != nil || code == "" {
		http.Error(w, "field \"code\" is required", http.StatusBadRequest)
		return
	}

	rule, err := h.service.AttachCode(r.Context(), orderID, code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(code)
	e.FieldStart("discount")
	encodeRule(&e, rule)
	e.ObjEnd()
	writeJSON(w, http.StatusCreated, &e)
}

// RemoveCoupon deletes one code attachment from the order.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	code := r.PathValue("code")

	if err := h.service.RemoveCodes(r.Context(), orderID, []string{code}); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeCodeBody extracts the "code" field from a JSON request body.
func decodeCodeBody(body []byte) (string, error) {
	var code string
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		v, err := d.Str()
		code = v
		return err
	}); err != nil {
		return "", err
	}
	return code, nil
}
