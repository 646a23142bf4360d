package coupon

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/panel-commerce/internal/domain/product"
	"github.com/xenking/panel-commerce/internal/domain/user"
)

// Result is the outcome of a successful validation: the coupon itself plus
// the discount it grants on the product it was validated against.
type Result struct {
	Coupon     *Coupon
	Discount   decimal.Decimal
	FinalPrice decimal.Decimal
}

// Validator validates a coupon code against a product and a user and returns
// the discount it would grant. Validation is read-only: it never increments
// use counters, so repeated calls return identical results.
type Validator interface {
	Validate(ctx context.Context, code string, p *product.Product, usr *user.User) (*Result, error)
}

// RepoValidator implements Validator on top of a coupon Repository and the
// order counts from a UsageCounter.
type RepoValidator struct {
	coupons Repository
	orders  UsageCounter
	now     func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given repositories.
func NewRepoValidator(coupons Repository, orders UsageCounter) *RepoValidator {
	return &RepoValidator{
		coupons: coupons,
		orders:  orders,
		now:     time.Now,
	}
}

// Validate runs the eligibility and usage checks in a fixed order; the first
// failure wins and determines the returned error. On success it computes the
// clamped discount for the product's price.
func (v *RepoValidator) Validate(ctx context.Context, code string, p *product.Product, usr *user.User) (*Result, error) {
	if code == "" {
		return nil, ErrCodeRequired
	}

	c, err := v.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if c.ExpireTime != 0 && c.ExpireTime < v.now().Unix() {
		return nil, ErrExpired
	}

	if c.Limit.Disabled {
		return nil, ErrDisabled
	}

	if len(c.Limit.AllowedProductIDs) > 0 {
		id := strconv.FormatInt(p.ID, 10)
		if !slices.Contains(c.Limit.AllowedProductIDs, id) {
			return nil, ErrNotApplicable
		}
	}

	if c.Limit.NewUserOnly {
		// Counts orders of every status, including unpaid and abandoned
		// ones. An abandoned checkout still disqualifies the account.
		n, err := v.orders.CountByUser(ctx, usr.ID)
		if err != nil {
			return nil, errors.Wrap(err, "count user orders")
		}
		if n > 0 {
			return nil, ErrNewUsersOnly
		}
	}

	if c.Limit.PerUserLimit > 0 {
		n, err := v.orders.CountByUserAndCoupon(ctx, usr.ID, c.Code)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon uses by user")
		}
		if n >= int64(c.Limit.PerUserLimit) {
			return nil, ErrPerUserLimit
		}
	}

	if c.Limit.TotalLimit > 0 && c.UseCount >= int64(c.Limit.TotalLimit) {
		return nil, ErrTotalLimit
	}

	discount, final := Compute(p.Price, c.Discount)

	return &Result{
		Coupon:     c,
		Discount:   discount,
		FinalPrice: final,
	}, nil
}
