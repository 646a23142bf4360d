// Package order holds the commerce engine: order and invoice records, the
// purchase eligibility rules, and the service orchestrating purchases and
// balance top-ups.
package order

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Status is the closed set of order states. The engine only ever writes
// StatusPendingPayment or StatusPendingActivation; later transitions are
// driven by the payment and activation collaborators.
type Status string

const (
	// StatusPendingPayment means the order awaits payment of its invoice.
	StatusPendingPayment Status = "pending_payment"
	// StatusPendingActivation means the order was fully covered by a
	// discount and awaits activation without any payment.
	StatusPendingActivation Status = "pending_activation"
	// StatusActivated is the terminal success state.
	StatusActivated Status = "activated"
	// StatusCancelled is the terminal failure state.
	StatusCancelled Status = "cancelled"
)

var orderTransitions = map[Status][]Status{
	StatusPendingPayment:    {StatusPendingActivation, StatusCancelled},
	StatusPendingActivation: {StatusActivated, StatusCancelled},
	StatusActivated:         {},
	StatusCancelled:         {},
}

// CanTransitionTo reports whether next is a legal successor state. Orders are
// append-only audit records: states never regress.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range orderTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// InvoiceStatus is the closed set of invoice states. The engine only writes
// InvoiceUnpaid or InvoicePaidGateway.
type InvoiceStatus string

const (
	// InvoiceUnpaid is the initial state of any invoice with a positive price.
	InvoiceUnpaid InvoiceStatus = "unpaid"
	// InvoicePaidGateway means no payment is due: the purchase was fully
	// covered by discount and is considered paid without gateway interaction.
	InvoicePaidGateway InvoiceStatus = "paid_gateway"
	// InvoicePaidBalance means the invoice was settled from account balance.
	InvoicePaidBalance InvoiceStatus = "paid_balance"
	// InvoiceCancelled is the terminal failure state.
	InvoiceCancelled InvoiceStatus = "cancelled"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceUnpaid:      {InvoicePaidGateway, InvoicePaidBalance, InvoiceCancelled},
	InvoicePaidGateway: {},
	InvoicePaidBalance: {},
	InvoiceCancelled:   {},
}

// CanTransitionTo reports whether next is a legal successor state.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, t := range invoiceTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Order is the audit record of a purchase or top-up attempt. Product fields
// are snapshots taken at purchase time and immutable afterwards; only Status
// (and UpdateTime) advance later.
type Order struct {
	ID     int64
	UserID int64

	// ProductID is 0 for balance top-ups.
	ProductID      int64
	ProductType    string
	ProductName    string
	ProductContent json.RawMessage

	// CouponCode is empty when no coupon was applied.
	CouponCode string

	// Price is the amount actually charged, after any discount.
	Price decimal.Decimal

	Status     Status
	CreateTime int64
	UpdateTime int64
}

// LineItem is one entry on an invoice. Discount lines carry a negative price.
type LineItem struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Invoice is the payable record created 1:1 with its order, in the same
// transaction. Its price always equals the order's price at creation.
type Invoice struct {
	ID      int64
	UserID  int64
	OrderID int64
	Items   []LineItem
	Price   decimal.Decimal
	Status  InvoiceStatus

	// Type is "product" or "topup".
	Type string

	CreateTime int64
	UpdateTime int64
	// PayTime stays 0 until the invoice is paid.
	PayTime int64
}

// PurchaseEffects lists the counter mutations that must commit atomically
// with the order and invoice inserts.
type PurchaseEffects struct {
	ProductID int64
	// DecrementStock requires stock > 0 at commit time and decrements it by
	// exactly one; false for unlimited-stock products, which only count the
	// sale. Losing the race fails the whole transaction.
	DecrementStock bool
	// CouponCode, when non-empty, increments the coupon's use count, guarded
	// by its total limit.
	CouponCode string
	// CouponPerUserLimit, when positive, is re-checked against the user's
	// committed orders inside the transaction.
	CouponPerUserLimit int
}

// Repository persists orders and invoices. The Create methods are atomic:
// either every insert and counter mutation commits, or none do.
type Repository interface {
	// CreatePurchase inserts the order and invoice and applies the effects
	// in one transaction, returning the new invoice ID. It fails with
	// ErrUnavailable when the conditional stock decrement finds no stock,
	// and with the coupon usage-limit errors when the guarded use-count
	// increment or per-user recheck fails.
	CreatePurchase(ctx context.Context, o *Order, inv *Invoice, eff PurchaseEffects) (invoiceID int64, err error)

	// CreateTopup inserts the order and invoice in one transaction and
	// returns the new invoice ID. No counters are touched.
	CreateTopup(ctx context.Context, o *Order, inv *Invoice) (invoiceID int64, err error)

	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	// GetByID returns the user's order, or ErrOrderNotFound.
	GetByID(ctx context.Context, userID, id int64) (*Order, error)
	// GetInvoiceByOrderID returns the order's invoice.
	GetInvoiceByOrderID(ctx context.Context, orderID int64) (*Invoice, error)

	// CountByUser counts the user's orders across all statuses.
	CountByUser(ctx context.Context, userID int64) (int64, error)
	// CountByUserAndCoupon counts the user's orders carrying the given code.
	CountByUserAndCoupon(ctx context.Context, userID int64, code string) (int64, error)
}
