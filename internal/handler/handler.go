// Package handler exposes the commerce engine over HTTP. The surface is
// deliberately thin: decode, resolve the user context, delegate to the
// domain, map errors. All request and response bodies are JSON.
package handler

import (
	"net/http"

	"github.com/xenking/panel-commerce/internal/domain/coupon"
	"github.com/xenking/panel-commerce/internal/domain/order"
	"github.com/xenking/panel-commerce/internal/domain/product"
	"github.com/xenking/panel-commerce/internal/domain/user"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// APIKeyPepper is the HMAC-SHA256 key used to hash client API keys
	// before lookup.
	APIKeyPepper string
}

// Handler wires the HTTP routes to the domain services.
type Handler struct {
	products product.Repository
	coupons  coupon.Validator
	service  *order.Service
	orders   order.Repository
	users    user.Repository
	pepper   []byte
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	coupons coupon.Validator,
	service *order.Service,
	orders order.Repository,
	users user.Repository,
) *Handler {
	return &Handler{
		products: products,
		coupons:  coupons,
		service:  service,
		orders:   orders,
		users:    users,
		pepper:   []byte(cfg.APIKeyPepper),
	}
}

// Routes returns the API route tree. Every route requires an authenticated
// user context.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("POST /api/purchase", h.Purchase)
	mux.HandleFunc("POST /api/topup", h.Topup)
	mux.HandleFunc("POST /api/coupon/check", h.CheckCoupon)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	return h.authenticate(mux)
}
