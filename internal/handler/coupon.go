package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

type couponCheckRequest struct {
	ProductID int64
	Code      string
}

func decodeCouponCheckRequest(data []byte) (req couponCheckRequest, _ error) {
	d := jx.DecodeBytes(data)
	return req, d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product_id":
			v, err := d.Int64()
			req.ProductID = v
			return err
		case "code":
			v, err := d.Str()
			req.Code = v
			return err
		default:
			return d.Skip()
		}
	})
}

// CheckCoupon handles POST /api/coupon/check. It previews a coupon against a
// product without committing anything; use counts are untouched.
func (h *Handler) CheckCoupon(w http.ResponseWriter, r *http.Request) {
	usr, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}
	req, err := decodeCouponCheckRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	p, err := h.products.GetByID(r.Context(), req.ProductID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	res, err := h.coupons.Validate(r.Context(), req.Code, p, usr)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("code")
	e.Str(res.Coupon.Code)
	e.FieldStart("discount")
	e.Str(res.Discount.String())
	e.FieldStart("final_price")
	e.Str(res.FinalPrice.String())
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}
