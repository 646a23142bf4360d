package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/panel-commerce/internal/domain/product"
)

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	e := &jx.Encoder{}
	e.ArrStart()
	for i := range products {
		encodeProduct(e, &products[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e)
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("type")
	e.Str(p.Type)
	// Money goes over the wire as a decimal string so clients never see
	// float rounding.
	e.FieldStart("price")
	e.Str(p.Price.String())
	e.FieldStart("stock")
	e.Int32(p.Stock)
	e.FieldStart("sale_count")
	e.Int64(p.SaleCount)
	e.ObjEnd()
}
