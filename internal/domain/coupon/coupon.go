package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage discounts a percentage of the product price.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed discounts a fixed amount, capped at the product price.
	DiscountFixed DiscountType = "fixed"
)

// Validation failures, in the order the checks run. The first failing check
// determines the reported reason.
var (
	// ErrCodeRequired is returned when no code was supplied at all.
	// Deliberately distinct from ErrNotFound.
	ErrCodeRequired = errors.New("coupon code required")
	// ErrNotFound is returned when the code does not match any coupon.
	ErrNotFound = errors.New("coupon not found")
	// ErrExpired is returned when the coupon's expiry time has passed.
	ErrExpired = errors.New("coupon expired")
	// ErrDisabled is returned when the coupon has been disabled.
	ErrDisabled = errors.New("coupon disabled")
	// ErrNotApplicable is returned when the coupon is scoped to other products.
	ErrNotApplicable = errors.New("coupon not applicable to this product")
	// ErrNewUsersOnly is returned when the coupon is restricted to accounts
	// without prior orders.
	ErrNewUsersOnly = errors.New("coupon is for new users only")
	// ErrPerUserLimit is returned when the user has already used the coupon
	// the maximum permitted number of times.
	ErrPerUserLimit = errors.New("coupon per-user use limit reached")
	// ErrTotalLimit is returned when the coupon has no uses left overall.
	ErrTotalLimit = errors.New("coupon total use limit reached")
)

// IsUsageLimit reports whether err is one of the usage-limit failures, as
// opposed to an eligibility failure.
func IsUsageLimit(err error) bool {
	return errors.Is(err, ErrPerUserLimit) || errors.Is(err, ErrTotalLimit)
}

// Coupon is a discount code with eligibility constraints and usage counters.
type Coupon struct {
	ID   int64
	Code string

	// ExpireTime is a unix timestamp; 0 means the coupon never expires.
	ExpireTime int64

	Limit    LimitRules
	Discount DiscountRule

	// UseCount only ever increases, and only as a result of a completed
	// purchase. Validation alone never touches it.
	UseCount int64
}

// LimitRules constrains who may redeem a coupon and how often.
// The zero value allows unrestricted use.
type LimitRules struct {
	Disabled bool
	// AllowedProductIDs scopes the coupon to specific products.
	// Empty means applicable to every product.
	AllowedProductIDs []string
	NewUserOnly       bool
	// PerUserLimit caps uses per user; 0 means unlimited.
	PerUserLimit int
	// TotalLimit caps uses across all users; 0 means unlimited.
	TotalLimit int
}

// DiscountRule describes how a coupon reduces the product price.
type DiscountRule struct {
	Type  DiscountType
	Value decimal.Decimal
}

// Repository provides coupon lookups. Usage counting happens inside the
// purchase transaction, not here.
type Repository interface {
	// FindByCode returns the coupon for the given code, or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// UsageCounter exposes the order counts the validator's new-user and
// per-user checks read. Implemented by the order repository.
type UsageCounter interface {
	// CountByUser counts the user's orders across all statuses.
	CountByUser(ctx context.Context, userID int64) (int64, error)
	// CountByUserAndCoupon counts the user's orders carrying the given code.
	CountByUserAndCoupon(ctx context.Context, userID int64, code string) (int64, error)
}
