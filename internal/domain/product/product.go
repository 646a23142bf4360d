package product

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// StockUnlimited is the sentinel stock value meaning the product has no
// finite inventory. Zero means sold out; positive values are finite counts
// decremented once per sale.
const StockUnlimited = -1

// Product represents a time-limited access product (or any other sellable
// item) from the catalog.
type Product struct {
	ID        int64
	Name      string
	Type      string
	Price     decimal.Decimal
	Stock     int32
	SaleCount int64
	Limit     LimitRules

	// Content is an opaque payload copied verbatim onto every order made
	// for this product. The engine never interprets it.
	Content json.RawMessage
}

// LimitRules gates who may purchase a product. The zero value imposes no
// restrictions. Decoded once when the product is loaded, never re-parsed
// per check.
type LimitRules struct {
	// ClassRequired is the minimum account class, 0 meaning no minimum.
	ClassRequired int `json:"class_required,omitempty"`
	// NodeGroupRequired restricts the purchase to one node group,
	// 0 meaning any group.
	NodeGroupRequired int `json:"node_group_required,omitempty"`
	// NewUserRequired restricts the purchase to accounts with no prior
	// orders of any status.
	NewUserRequired bool `json:"new_user_required,omitempty"`
}

// InStock reports whether at least one unit can still be sold.
func (p *Product) InStock() bool {
	return p.Stock == StockUnlimited || p.Stock > 0
}

// FiniteStock reports whether sales must decrement the stock counter.
func (p *Product) FiniteStock() bool {
	return p.Stock != StockUnlimited
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
}
