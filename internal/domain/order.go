package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Order status constants.
const (
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusProcessing     = "processing"
	OrderStatusShipped        = "shipped"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
	OrderStatusReturned       = "returned"
	OrderStatusRefunded       = "refunded"
)

// Payment status constants.
const (
	PaymentStatusPending          = "pending"
	PaymentStatusAwaitingTransfer = "awaiting_transfer"
	PaymentStatusPaid             = "paid"
	PaymentStatusFailed           = "failed"
	PaymentStatusRefunded         = "refunded"
)

// Payment methods.
const (
	PaymentMethodCOD          = "cod"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCard         = "card"
)

// Order is the immutable financial record of a purchase. Only the status
// fields change after creation.
type Order struct {
	ID                    string          `json:"id"`
	Number                string          `json:"number"`
	UserID                string          `json:"user_id,omitempty"`
	SessionToken          string          `json:"-"`
	Email                 string          `json:"email"`
	Status                string          `json:"status"`
	PaymentStatus         string          `json:"payment_status"`
	PaymentMethod         string          `json:"payment_method"`
	PaymentReference      string          `json:"payment_reference,omitempty"`
	Currency              string          `json:"currency"`
	Subtotal              int64           `json:"subtotal"`
	Discount              int64           `json:"discount"`
	Shipping              int64           `json:"shipping"`
	LoyaltyDiscount       int64           `json:"loyalty_discount"`
	LoyaltyPointsRedeemed int64           `json:"loyalty_points_redeemed"`
	LoyaltyPointsEarned   int64           `json:"loyalty_points_earned"`
	LoyaltyPointsCredited bool            `json:"loyalty_points_credited"`
	Total                 int64           `json:"total"`
	CouponCode            string          `json:"coupon_code,omitempty"`
	CouponID              string          `json:"coupon_id,omitempty"`
	ShippingMethod        string          `json:"shipping_method"`
	ShippingAddress       Address         `json:"shipping_address"`
	EstimatedDelivery     string          `json:"estimated_delivery,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	IdempotencyKey        string          `json:"-"`
	Items                 []OrderItem     `json:"items"`
	History               []StatusHistory `json:"history,omitempty"`
	ShippedAt             *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt           *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt           *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Address is a shipping address.
type Address struct {
	FullName    string `json:"full_name" validate:"required,max=120"`
	Phone       string `json:"phone" validate:"required,max=32"`
	AddressLine string `json:"address_line" validate:"required,max=255"`
	District    string `json:"district,omitempty" validate:"max=120"`
	City        string `json:"city" validate:"required,max=120"`
	PostalCode  string `json:"postal_code,omitempty" validate:"max=20"`
	Country     string `json:"country" validate:"required,len=2"`
}

// OrderItem is a frozen snapshot of a purchased line.
type OrderItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id,omitempty"`
	VariantID      string `json:"variant_id,omitempty"`
	ProductName    string `json:"product_name"`
	SKU            string `json:"sku,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	UnitPrice      int64  `json:"unit_price"`
	Quantity       int    `json:"quantity"`
	BundleID       string `json:"bundle_id,omitempty"`
	IsBundleAnchor bool   `json:"is_bundle_anchor,omitempty"`
	ParentItemID   string `json:"parent_item_id,omitempty"`
	BundleUnits    int    `json:"bundle_units,omitempty"`
	BundleDiscount int64  `json:"bundle_discount,omitempty"`
}

// LineTotal returns the total price for this line.
func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice*int64(i.Quantity) - i.BundleDiscount
}

// StatusHistory is one append-only entry of the order's status log.
type StatusHistory struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	Note       string    `json:"note,omitempty"`
	ChangedBy  string    `json:"changed_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidStatuses returns all valid order statuses.
func ValidStatuses() []string {
	return []string{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusOutForDelivery,
		OrderStatusDelivered,
		OrderStatusCancelled,
		OrderStatusReturned,
		OrderStatusRefunded,
	}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	return slices.Contains(ValidStatuses(), status)
}

// AllowedTransitions defines which status transitions are valid.
func AllowedTransitions() map[string][]string {
	return map[string][]string{
		OrderStatusPending:        {OrderStatusConfirmed, OrderStatusCancelled},
		OrderStatusConfirmed:      {OrderStatusProcessing, OrderStatusCancelled},
		OrderStatusProcessing:     {OrderStatusShipped, OrderStatusCancelled},
		OrderStatusShipped:        {OrderStatusOutForDelivery},
		OrderStatusOutForDelivery: {OrderStatusDelivered},
		OrderStatusDelivered:      {OrderStatusReturned, OrderStatusRefunded},
		OrderStatusCancelled:      {},
		OrderStatusReturned:       {},
		OrderStatusRefunded:       {},
	}
}

// CanTransitionTo checks if the order can transition to the target status.
// Returns and refunds additionally need a settled payment.
func (o *Order) CanTransitionTo(target string) bool {
	if !slices.Contains(AllowedTransitions()[o.Status], target) {
		return false
	}
	if target == OrderStatusReturned || target == OrderStatusRefunded {
		return o.PaymentStatus == PaymentStatusPaid
	}
	return true
}

// IsCancellable reports whether the order may still be cancelled.
func (o *Order) IsCancellable() bool {
	return o.CanTransitionTo(OrderStatusCancelled)
}

// Transition moves the order to next and appends a history entry. Moving to
// the current status is a no-op and reports changed=false.
func (o *Order) Transition(next, note, changedBy string, now time.Time) (bool, error) {
	if next == o.Status {
		return false, nil
	}
	if !IsValidStatus(next) {
		return false, violation(ReasonInvalidTransition, fmt.Sprintf("unknown order status %q", next))
	}
	if !slices.Contains(AllowedTransitions()[o.Status], next) {
		return false, violation(ReasonInvalidTransition,
			fmt.Sprintf("cannot transition order from %s to %s", o.Status, next))
	}
	if !o.CanTransitionTo(next) {
		return false, violation(ReasonPaymentNotSettled,
			fmt.Sprintf("order must be paid before it can be %s", next))
	}

	o.History = append(o.History, StatusHistory{
		ID:         uuid.NewString(),
		OrderID:    o.ID,
		FromStatus: o.Status,
		ToStatus:   next,
		Note:       note,
		ChangedBy:  changedBy,
		CreatedAt:  now,
	})
	o.Status = next
	o.UpdatedAt = now

	switch next {
	case OrderStatusShipped:
		if o.ShippedAt == nil {
			o.ShippedAt = &now
		}
	case OrderStatusDelivered:
		if o.DeliveredAt == nil {
			o.DeliveredAt = &now
		}
	case OrderStatusCancelled:
		o.CancelledAt = &now
	case OrderStatusRefunded:
		o.PaymentStatus = PaymentStatusRefunded
	}
	return true, nil
}

// LastHistory returns the most recent history entry, if any.
func (o *Order) LastHistory() (StatusHistory, bool) {
	if len(o.History) == 0 {
		return StatusHistory{}, false
	}
	return o.History[len(o.History)-1], true
}

// StockDemands returns the product quantities the order consumed.
func (o *Order) StockDemands() []StockDemand {
	out := make([]StockDemand, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, StockDemand{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity})
	}
	return MergeDemands(out)
}

// BundleUnits returns how many units of each bundle the order sold.
func (o *Order) BundleUnits() map[string]int {
	out := map[string]int{}
	for _, it := range o.Items {
		switch {
		case it.IsBundleAnchor:
			out[it.BundleID] += it.Quantity
		case it.BundleUnits > 0:
			out[it.BundleID] += it.BundleUnits
		}
	}
	return out
}

// BundleRevenue returns what each bundle earned: anchor line totals plus the
// individual-mode items sold as part of a bundle.
func (o *Order) BundleRevenue() map[string]int64 {
	out := map[string]int64{}
	for _, it := range o.Items {
		if it.IsBundleAnchor || (it.BundleID != "" && it.ParentItemID == "") {
			out[it.BundleID] += it.LineTotal()
		}
	}
	return out
}

// NewOrderNumber returns a human readable order number such as
// ORD-20260115-9F3A21C4.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + now.UTC().Format("20060102") + "-" + suffix
}

// IsValidPaymentMethod reports whether m is a supported payment method.
func IsValidPaymentMethod(m string) bool {
	return m == PaymentMethodCOD || m == PaymentMethodBankTransfer || m == PaymentMethodCard
}
