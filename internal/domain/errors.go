package domain

import (
	"errors"
	"strings"
)

// Reason codes carried by Violation.
const (
	ReasonEmptyCart          = "empty_cart"
	ReasonItemUnavailable    = "item_unavailable"
	ReasonInsufficientStock  = "insufficient_stock"
	ReasonBundleUnavailable  = "bundle_unavailable"
	ReasonBundleSoldOut      = "bundle_sold_out"
	ReasonBundleLineLocked   = "bundle_line_locked"
	ReasonCouponNotFound     = "coupon_not_found"
	ReasonCouponInactive     = "coupon_inactive"
	ReasonCouponNotStarted   = "coupon_not_started"
	ReasonCouponExpired      = "coupon_expired"
	ReasonCouponExhausted    = "coupon_exhausted"
	ReasonCouponUserLimit    = "coupon_user_limit"
	ReasonCouponMinOrder     = "coupon_min_order"
	ReasonCouponFirstOrder   = "coupon_first_order_only"
	ReasonInvalidTransition  = "invalid_transition"
	ReasonPaymentNotSettled  = "payment_not_settled"
	ReasonInsufficientPoints = "insufficient_points"
)

// ErrCartItemNotFound is returned when a cart line id does not exist.
var ErrCartItemNotFound = errors.New("cart item not found")

// Violation is a business rule failure with a machine readable reason.
type Violation struct {
	Reason  string
	Message string
}

func (v *Violation) Error() string {
	return v.Reason + ": " + v.Message
}

func violation(reason, message string) *Violation {
	return &Violation{Reason: reason, Message: message}
}

// SelectionError lists every problem found in a bundle selection.
type SelectionError struct {
	Errors []string
}

func (e *SelectionError) Error() string {
	return "invalid bundle selection: " + strings.Join(e.Errors, "; ")
}
