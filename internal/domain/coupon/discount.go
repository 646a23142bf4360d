package coupon

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Compute calculates the discount a rule grants on the given product price
// and the resulting final price. It is pure and side-effect free, so it can
// back both real purchases and display-only previews.
//
// The discount is always clamped to [0, price], which guarantees the final
// price never goes negative. Unknown discount types yield a zero discount.
func Compute(price decimal.Decimal, rule DiscountRule) (discount, finalPrice decimal.Decimal) {
	switch rule.Type {
	case DiscountPercentage:
		discount = price.Mul(rule.Value).Div(hundred)
	case DiscountFixed:
		discount = rule.Value
	default:
		discount = decimal.Zero
	}

	discount = discount.Round(2)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(price) {
		discount = price
	}

	return discount, price.Sub(discount)
}
