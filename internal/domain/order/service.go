package order

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/panel-commerce/internal/domain/coupon"
	"github.com/xenking/panel-commerce/internal/domain/product"
	"github.com/xenking/panel-commerce/internal/domain/user"
)

// ErrInvalidAmount is returned for top-ups with a non-positive amount.
var ErrInvalidAmount = errors.New("topup amount must be positive")

// topupName labels balance top-up orders and their invoice line.
const topupName = "Balance top-up"

// PurchaseRequest holds the input for a product purchase.
type PurchaseRequest struct {
	ProductID  int64
	CouponCode string
}

// Service is the commerce engine. It gates the request, validates the coupon,
// derives the final price, and hands the resulting order and invoice to the
// repository for the atomic commit.
type Service struct {
	products product.Repository
	coupons  coupon.Validator
	orders   Repository
	now      func() time.Time
}

// NewService creates a Service with the required domain dependencies.
func NewService(products product.Repository, coupons coupon.Validator, orders Repository) *Service {
	return &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		now:      time.Now,
	}
}

// Purchase runs the full product purchase flow and returns the ID of the
// created invoice. Nothing is written unless every check passes; the writes
// and counter mutations commit atomically or not at all.
func (s *Service) Purchase(ctx context.Context, usr *user.User, req PurchaseRequest) (int64, error) {
	p, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return 0, ErrUnavailable
		}
		return 0, errors.Wrap(err, "get product")
	}

	var priorOrders int64
	if p.Limit.NewUserRequired {
		priorOrders, err = s.orders.CountByUser(ctx, usr.ID)
		if err != nil {
			return 0, errors.Wrap(err, "count user orders")
		}
	}

	if err := CheckEligibility(p, usr, priorOrders); err != nil {
		return 0, err
	}

	price := p.Price
	discount := decimal.Zero

	var res *coupon.Result
	if req.CouponCode != "" {
		res, err = s.coupons.Validate(ctx, req.CouponCode, p, usr)
		if err != nil {
			return 0, err
		}
		discount = res.Discount
		price = res.FinalPrice
	}

	orderStatus := StatusPendingPayment
	invoiceStatus := InvoiceUnpaid
	if price.IsZero() {
		// Fully covered by discount: nothing to pay, skip the gateway.
		orderStatus = StatusPendingActivation
		invoiceStatus = InvoicePaidGateway
	}

	now := s.now().Unix()

	o := &Order{
		UserID:         usr.ID,
		ProductID:      p.ID,
		ProductType:    p.Type,
		ProductName:    p.Name,
		ProductContent: p.Content,
		CouponCode:     req.CouponCode,
		Price:          price,
		Status:         orderStatus,
		CreateTime:     now,
		UpdateTime:     now,
	}

	items := []LineItem{{Name: p.Name, Price: p.Price}}
	if res != nil {
		items = append(items, LineItem{
			Name:  "Coupon " + res.Coupon.Code,
			Price: discount.Neg(),
		})
	}

	inv := &Invoice{
		UserID:     usr.ID,
		Items:      items,
		Price:      price,
		Status:     invoiceStatus,
		Type:       "product",
		CreateTime: now,
		UpdateTime: now,
		PayTime:    0,
	}

	eff := PurchaseEffects{
		ProductID:      p.ID,
		DecrementStock: p.FiniteStock(),
	}
	if res != nil {
		eff.CouponCode = res.Coupon.Code
		eff.CouponPerUserLimit = res.Coupon.Limit.PerUserLimit
	}

	invoiceID, err := s.orders.CreatePurchase(ctx, o, inv, eff)
	if err != nil {
		return 0, errors.Wrap(err, "commit purchase")
	}
	return invoiceID, nil
}

// Topup creates an order and invoice for a balance top-up of the given
// amount. The amount must be positive; it is rounded to two decimal places.
func (s *Service) Topup(ctx context.Context, usr *user.User, amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}

	content, err := json.Marshal(map[string]decimal.Decimal{"amount": amount})
	if err != nil {
		return 0, errors.Wrap(err, "marshal topup content")
	}

	now := s.now().Unix()

	o := &Order{
		UserID:         usr.ID,
		ProductID:      0,
		ProductType:    "topup",
		ProductName:    topupName,
		ProductContent: content,
		Price:          amount,
		Status:         StatusPendingPayment,
		CreateTime:     now,
		UpdateTime:     now,
	}

	inv := &Invoice{
		UserID:     usr.ID,
		Items:      []LineItem{{Name: topupName, Price: amount}},
		Price:      amount,
		Status:     InvoiceUnpaid,
		Type:       "topup",
		CreateTime: now,
		UpdateTime: now,
		PayTime:    0,
	}

	invoiceID, err := s.orders.CreateTopup(ctx, o, inv)
	if err != nil {
		return 0, errors.Wrap(err, "commit topup")
	}
	return invoiceID, nil
}
