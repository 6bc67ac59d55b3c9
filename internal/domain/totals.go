package domain

// LoyaltySettings configures point redemption and accrual. PointValue is the
// minor-unit value of one point; EarnPoints points are earned per
// EarnPerAmount minor units of final total.
type LoyaltySettings struct {
	PointValue    int64
	EarnPoints    int64
	EarnPerAmount int64
}

// TotalsInput carries the amounts that feed CalculateTotals.
type TotalsInput struct {
	Subtotal        int64
	CouponDiscount  int64
	FreeShipping    bool
	ShippingCost    int64
	RequestedPoints int64
	PointBalance    int64
}

// Totals are the money figures of an order.
type Totals struct {
	Subtotal              int64 `json:"subtotal"`
	Discount              int64 `json:"discount"`
	Shipping              int64 `json:"shipping"`
	LoyaltyPointsRedeemed int64 `json:"loyalty_points_redeemed"`
	LoyaltyDiscount       int64 `json:"loyalty_discount"`
	Total                 int64 `json:"total"`
	LoyaltyPointsEarned   int64 `json:"loyalty_points_earned"`
}

// CalculateTotals combines subtotal, coupon discount, shipping and loyalty
// redemption. Redemption is clamped to the balance and then to the item
// value left after the coupon, so points never pay for shipping.
func CalculateTotals(in TotalsInput, s LoyaltySettings) Totals {
	subtotal := max(in.Subtotal, 0)
	t := Totals{
		Subtotal: subtotal,
		Discount: min(max(in.CouponDiscount, 0), subtotal),
	}
	if !in.FreeShipping {
		t.Shipping = max(in.ShippingCost, 0)
	}

	points := min(max(in.RequestedPoints, 0), max(in.PointBalance, 0))
	if s.PointValue > 0 && points > 0 {
		headroom := subtotal - t.Discount
		if points*s.PointValue > headroom {
			points = headroom / s.PointValue
		}
		t.LoyaltyPointsRedeemed = points
		t.LoyaltyDiscount = points * s.PointValue
	}

	t.Total = max(t.Subtotal-t.Discount+t.Shipping-t.LoyaltyDiscount, 0)
	t.LoyaltyPointsEarned = PointsEarned(t.Total, s)
	return t
}

// PointsEarned floors total * EarnPoints / EarnPerAmount.
func PointsEarned(total int64, s LoyaltySettings) int64 {
	if s.EarnPerAmount <= 0 || s.EarnPoints <= 0 || total <= 0 {
		return 0
	}
	return total * s.EarnPoints / s.EarnPerAmount
}

// Reconciles reports whether the figures satisfy
// total = max(0, subtotal - discount + shipping - loyalty_discount).
func (t Totals) Reconciles() bool {
	return t.Total == max(t.Subtotal-t.Discount+t.Shipping-t.LoyaltyDiscount, 0) &&
		t.Discount <= t.Subtotal &&
		t.LoyaltyDiscount <= t.Subtotal-t.Discount
}
