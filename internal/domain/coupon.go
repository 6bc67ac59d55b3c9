package domain

import (
	"fmt"
	"strings"
	"time"
)

// Coupon discount types.
const (
	CouponPercentage   = "percentage"
	CouponFixed        = "fixed"
	CouponFreeShipping = "free_shipping"
)

// Coupon is a redeemable discount code. Value is a whole percent for
// percentage coupons and an amount in minor units for fixed coupons.
type Coupon struct {
	ID             string     `json:"id"`
	Code           string     `json:"code"`
	Type           string     `json:"type"`
	Value          int64      `json:"value"`
	MinOrderAmount *int64     `json:"min_order_amount,omitempty"`
	MaxDiscount    *int64     `json:"max_discount,omitempty"`
	UsageLimit     *int       `json:"usage_limit,omitempty"`
	PerUserLimit   *int       `json:"per_user_limit,omitempty"`
	FirstOrderOnly bool       `json:"first_order_only"`
	IsActive       bool       `json:"is_active"`
	StartsAt       *time.Time `json:"starts_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	TimesUsed      int        `json:"times_used"`
}

// CouponUsage records one redemption.
type CouponUsage struct {
	ID        string    `json:"id"`
	CouponID  string    `json:"coupon_id"`
	UserID    string    `json:"user_id,omitempty"`
	OrderID   string    `json:"order_id"`
	Discount  int64     `json:"discount"`
	CreatedAt time.Time `json:"created_at"`
}

// CouponContext is everything the validator needs besides the coupon.
type CouponContext struct {
	Subtotal       int64
	UserID         string
	UserUsageCount int
	UserOrderCount int
	Now            time.Time
}

// CouponValidation is the outcome of Validate.
type CouponValidation struct {
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// Err returns the failure as a *Violation, or nil when valid.
func (v CouponValidation) Err() error {
	if v.Valid {
		return nil
	}
	return violation(v.Reason, v.Message)
}

// NormalizeCouponCode trims and upper-cases a code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func rejected(reason, msg string) CouponValidation {
	return CouponValidation{Reason: reason, Message: msg}
}

// Validate checks the coupon rules in order and stops at the first failure.
func (c *Coupon) Validate(cc CouponContext) CouponValidation {
	switch {
	case !c.IsActive:
		return rejected(ReasonCouponInactive, "coupon is not active")
	case c.StartsAt != nil && cc.Now.Before(*c.StartsAt):
		return rejected(ReasonCouponNotStarted, "coupon is not valid yet")
	case c.ExpiresAt != nil && cc.Now.After(*c.ExpiresAt):
		return rejected(ReasonCouponExpired, "coupon has expired")
	case c.UsageLimit != nil && c.TimesUsed >= *c.UsageLimit:
		return rejected(ReasonCouponExhausted, "coupon usage limit reached")
	case c.PerUserLimit != nil && cc.UserID != "" && cc.UserUsageCount >= *c.PerUserLimit:
		return rejected(ReasonCouponUserLimit, "you have already used this coupon")
	case c.MinOrderAmount != nil && cc.Subtotal < *c.MinOrderAmount:
		return rejected(ReasonCouponMinOrder, fmt.Sprintf("minimum order amount is %d", *c.MinOrderAmount))
	case c.FirstOrderOnly && cc.UserID != "" && cc.UserOrderCount > 0:
		return rejected(ReasonCouponFirstOrder, "coupon is only valid on your first order")
	}
	return CouponValidation{Valid: true, Message: "coupon applied"}
}

// CalculateDiscount returns the product discount for subtotal, capped by
// MaxDiscount and by the subtotal itself.
func (c *Coupon) CalculateDiscount(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	var discount int64
	switch c.Type {
	case CouponPercentage:
		discount = subtotal * min(max(c.Value, 0), 100) / 100
	case CouponFixed:
		discount = max(c.Value, 0)
	default:
		return 0
	}
	if c.MaxDiscount != nil {
		discount = min(discount, *c.MaxDiscount)
	}
	return min(discount, subtotal)
}

// GrantsFreeShipping reports whether the coupon zeroes shipping.
func (c *Coupon) GrantsFreeShipping() bool {
	return c.Type == CouponFreeShipping
}
