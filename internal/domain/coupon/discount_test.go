package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name         string
		price        string
		rule         DiscountRule
		wantDiscount string
		wantFinal    string
	}{
		{
			name:         "percentage",
			price:        "100",
			rule:         DiscountRule{Type: DiscountPercentage, Value: decimal.NewFromInt(20)},
			wantDiscount: "20",
			wantFinal:    "80",
		},
		{
			name:         "fixed",
			price:        "100",
			rule:         DiscountRule{Type: DiscountFixed, Value: decimal.NewFromInt(15)},
			wantDiscount: "15",
			wantFinal:    "85",
		},
		{
			name:         "fixed clamped to price",
			price:        "50",
			rule:         DiscountRule{Type: DiscountFixed, Value: decimal.NewFromInt(80)},
			wantDiscount: "50",
			wantFinal:    "0",
		},
		{
			name:         "hundred percent",
			price:        "9.99",
			rule:         DiscountRule{Type: DiscountPercentage, Value: decimal.NewFromInt(100)},
			wantDiscount: "9.99",
			wantFinal:    "0",
		},
		{
			name:         "percentage rounds to cents",
			price:        "9.99",
			rule:         DiscountRule{Type: DiscountPercentage, Value: decimal.NewFromInt(33)},
			wantDiscount: "3.30",
			wantFinal:    "6.69",
		},
		{
			name:         "negative value clamped to zero",
			price:        "100",
			rule:         DiscountRule{Type: DiscountFixed, Value: decimal.NewFromInt(-5)},
			wantDiscount: "0",
			wantFinal:    "100",
		},
		{
			name:         "unknown type yields no discount",
			price:        "100",
			rule:         DiscountRule{Type: "bogus", Value: decimal.NewFromInt(50)},
			wantDiscount: "0",
			wantFinal:    "100",
		},
		{
			name:         "zero price",
			price:        "0",
			rule:         DiscountRule{Type: DiscountPercentage, Value: decimal.NewFromInt(50)},
			wantDiscount: "0",
			wantFinal:    "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price := decimal.RequireFromString(tt.price)
			discount, final := Compute(price, tt.rule)

			assert.True(t, decimal.RequireFromString(tt.wantDiscount).Equal(discount),
				"discount: want %s, got %s", tt.wantDiscount, discount)
			assert.True(t, decimal.RequireFromString(tt.wantFinal).Equal(final),
				"final: want %s, got %s", tt.wantFinal, final)
		})
	}
}

// Whatever the rule, the discount stays within [0, price] and the final price
// never goes negative.
func TestCompute_Bounds(t *testing.T) {
	prices := []string{"0", "0.01", "9.99", "50", "100", "12345.67"}
	rules := []DiscountRule{
		{Type: DiscountPercentage, Value: decimal.NewFromInt(0)},
		{Type: DiscountPercentage, Value: decimal.NewFromInt(50)},
		{Type: DiscountPercentage, Value: decimal.NewFromInt(100)},
		{Type: DiscountPercentage, Value: decimal.NewFromInt(250)},
		{Type: DiscountPercentage, Value: decimal.NewFromInt(-10)},
		{Type: DiscountFixed, Value: decimal.NewFromInt(0)},
		{Type: DiscountFixed, Value: decimal.RequireFromString("49.99")},
		{Type: DiscountFixed, Value: decimal.NewFromInt(1000000)},
		{Type: DiscountFixed, Value: decimal.NewFromInt(-3)},
	}

	for _, ps := range prices {
		price := decimal.RequireFromString(ps)
		for _, rule := range rules {
			discount, final := Compute(price, rule)

			assert.False(t, discount.IsNegative(),
				"price %s rule %+v: negative discount %s", ps, rule, discount)
			assert.True(t, discount.LessThanOrEqual(price),
				"price %s rule %+v: discount %s exceeds price", ps, rule, discount)
			assert.False(t, final.IsNegative(),
				"price %s rule %+v: negative final %s", ps, rule, final)
			assert.True(t, price.Sub(discount).Equal(final),
				"price %s rule %+v: final %s != price-discount", ps, rule, final)
		}
	}
}
