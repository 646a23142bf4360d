package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/panel-commerce/internal/domain/coupon"
	"github.com/xenking/panel-commerce/internal/domain/order"
	"github.com/xenking/panel-commerce/internal/domain/product"
)

type purchaseRequest struct {
	ProductID  int64
	CouponCode string
}

func decodePurchaseRequest(data []byte) (req purchaseRequest, _ error) {
	d := jx.DecodeBytes(data)
	return req, d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product_id":
			v, err := d.Int64()
			req.ProductID = v
			return err
		case "coupon_code":
			v, err := d.Str()
			req.CouponCode = v
			return err
		default:
			return d.Skip()
		}
	})
}

func decodeTopupRequest(data []byte) (amount decimal.Decimal, _ error) {
	d := jx.DecodeBytes(data)
	return amount, d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "amount":
			// Accepts both a JSON number and a string-encoded number.
			n, err := d.Num()
			if err != nil {
				return err
			}
			amount, err = decimal.NewFromString(strings.Trim(n.String(), `"`))
			return err
		default:
			return d.Skip()
		}
	})
}

// Purchase handles POST /api/purchase.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
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
	req, err := decodePurchaseRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	invoiceID, err := h.service.Purchase(r.Context(), usr, order.PurchaseRequest{
		ProductID:  req.ProductID,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeInvoiceCreated(w, invoiceID)
}

// Topup handles POST /api/topup.
func (h *Handler) Topup(w http.ResponseWriter, r *http.Request) {
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
	amount, err := decodeTopupRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed topup amount")
		return
	}

	invoiceID, err := h.service.Topup(r.Context(), usr, amount)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeInvoiceCreated(w, invoiceID)
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	usr, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.orders.ListByUser(r.Context(), usr.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e)
}

// GetOrder handles GET /api/orders/{id}, returning the order together with
// its invoice.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	usr, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed order id")
		return
	}

	o, err := h.orders.GetByID(r.Context(), usr.ID, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	inv, err := h.orders.GetInvoiceByOrderID(r.Context(), o.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("order")
	encodeOrder(e, o)
	e.FieldStart("invoice")
	encodeInvoice(e, inv)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}

func writeInvoiceCreated(w http.ResponseWriter, invoiceID int64) {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("invoice_id")
	e.Int64(invoiceID)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, e)
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("product_id")
	e.Int64(o.ProductID)
	e.FieldStart("product_type")
	e.Str(o.ProductType)
	e.FieldStart("product_name")
	e.Str(o.ProductName)
	e.FieldStart("coupon_code")
	e.Str(o.CouponCode)
	e.FieldStart("price")
	e.Str(o.Price.String())
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("create_time")
	e.Int64(o.CreateTime)
	e.FieldStart("update_time")
	e.Int64(o.UpdateTime)
	e.ObjEnd()
}

func encodeInvoice(e *jx.Encoder, inv *order.Invoice) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(inv.ID)
	e.FieldStart("order_id")
	e.Int64(inv.OrderID)
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range inv.Items {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(item.Name)
		e.FieldStart("price")
		e.Str(item.Price.String())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("price")
	e.Str(inv.Price.String())
	e.FieldStart("status")
	e.Str(string(inv.Status))
	e.FieldStart("type")
	e.Str(inv.Type)
	e.FieldStart("create_time")
	e.Int64(inv.CreateTime)
	e.FieldStart("update_time")
	e.Int64(inv.UpdateTime)
	e.FieldStart("pay_time")
	e.Int64(inv.PayTime)
	e.ObjEnd()
}

// rejections lists every user-facing rejection reason. Reported with the
// sentinel's own message, so internal wrapping never leaks to clients.
var rejections = []error{
	order.ErrUnavailable,
	order.ErrClassTooLow,
	order.ErrWrongNodeGroup,
	order.ErrNewUsersOnly,
	coupon.ErrCodeRequired,
	coupon.ErrNotFound,
	coupon.ErrExpired,
	coupon.ErrDisabled,
	coupon.ErrNotApplicable,
	coupon.ErrNewUsersOnly,
	coupon.ErrPerUserLimit,
	coupon.ErrTotalLimit,
}

// writeDomainError maps domain errors to HTTP responses. Validation and
// eligibility failures carry their reason; anything unexpected is logged and
// reported as a plain 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, order.ErrInvalidAmount.Error())
		return
	case errors.Is(err, order.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, order.ErrOrderNotFound.Error())
		return
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, product.ErrNotFound.Error())
		return
	}

	for _, sentinel := range rejections {
		if errors.Is(err, sentinel) {
			writeError(w, http.StatusUnprocessableEntity, sentinel.Error())
			return
		}
	}

	zctx.From(r.Context()).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
