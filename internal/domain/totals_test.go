package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testLoyalty = LoyaltySettings{PointValue: 10, EarnPoints: 1, EarnPerAmount: 100}

func TestCalculateTotals(t *testing.T) {
	tests := []struct {
		name string
		in   TotalsInput
		want Totals
	}{
		{
			name: "plain order",
			in:   TotalsInput{Subtotal: 10000, ShippingCost: 500},
			want: Totals{Subtotal: 10000, Shipping: 500, Total: 10500, LoyaltyPointsEarned: 105},
		},
		{
			name: "coupon and shipping",
			in:   TotalsInput{Subtotal: 10000, CouponDiscount: 800, ShippingCost: 500},
			want: Totals{Subtotal: 10000, Discount: 800, Shipping: 500, Total: 9700, LoyaltyPointsEarned: 97},
		},
		{
			name: "free shipping coupon zeroes shipping",
			in:   TotalsInput{Subtotal: 10000, FreeShipping: true, ShippingCost: 500},
			want: Totals{Subtotal: 10000, Total: 10000, LoyaltyPointsEarned: 100},
		},
		{
			name: "redemption clamped to balance",
			in:   TotalsInput{Subtotal: 10000, RequestedPoints: 10000, PointBalance: 30},
			want: Totals{Subtotal: 10000, LoyaltyPointsRedeemed: 30, LoyaltyDiscount: 300, Total: 9700, LoyaltyPointsEarned: 97},
		},
		{
			name: "redemption never pays for shipping",
			in:   TotalsInput{Subtotal: 1000, CouponDiscount: 400, ShippingCost: 500, RequestedPoints: 500, PointBalance: 500},
			want: Totals{Subtotal: 1000, Discount: 400, Shipping: 500, LoyaltyPointsRedeemed: 60, LoyaltyDiscount: 600, Total: 500, LoyaltyPointsEarned: 5},
		},
		{
			name: "coupon larger than subtotal",
			in:   TotalsInput{Subtotal: 300, CouponDiscount: 900, RequestedPoints: 10, PointBalance: 10},
			want: Totals{Subtotal: 300, Discount: 300},
		},
		{
			name: "negative request ignored",
			in:   TotalsInput{Subtotal: 1000, RequestedPoints: -5, PointBalance: 50},
			want: Totals{Subtotal: 1000, Total: 1000, LoyaltyPointsEarned: 10},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateTotals(tt.in, testLoyalty)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Reconciles())
		})
	}
}

func TestCalculateTotals_PartialPointValue(t *testing.T) {
	// headroom of 95 only buys 9 whole points at 10 per point
	got := CalculateTotals(TotalsInput{Subtotal: 95, RequestedPoints: 100, PointBalance: 100}, testLoyalty)

	assert.Equal(t, int64(9), got.LoyaltyPointsRedeemed)
	assert.Equal(t, int64(90), got.LoyaltyDiscount)
	assert.Equal(t, int64(5), got.Total)
}

func TestCalculateTotals_AlwaysReconciles(t *testing.T) {
	for _, subtotal := range []int64{0, 1, 99, 1000, 123456} {
		for _, discount := range []int64{0, 50, 1000, 200000} {
			for _, points := range []int64{0, 3, 1000} {
				got := CalculateTotals(TotalsInput{
					Subtotal: subtotal, CouponDiscount: discount, ShippingCost: 299,
					RequestedPoints: points, PointBalance: 500,
				}, testLoyalty)
				assert.True(t, got.Reconciles(), "%+v", got)
				assert.GreaterOrEqual(t, got.Total, int64(0))
			}
		}
	}
}

func TestPointsEarned(t *testing.T) {
	assert.Equal(t, int64(0), PointsEarned(1000, LoyaltySettings{}))
	assert.Equal(t, int64(12), PointsEarned(1299, testLoyalty))
	assert.Equal(t, int64(0), PointsEarned(-10, testLoyalty))
	// 1500 * 3 / 1000 floors once, after multiplying
	assert.Equal(t, int64(4), PointsEarned(1500, LoyaltySettings{EarnPoints: 3, EarnPerAmount: 1000}))
}
