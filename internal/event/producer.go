package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Kafka topics the storefront publishes to or consumes from.
var (
	TopicOrderCreated       = pkgkafka.Topic("order", "created")
	TopicOrderStatusChanged = pkgkafka.Topic("order", "status_changed")
	TopicOrderCancelled     = pkgkafka.Topic("order", "cancelled")
	TopicOrderPaid          = pkgkafka.Topic("order", "paid")
	TopicBundleAdded        = pkgkafka.Topic("cart", "bundle_added")
	TopicOrderConfirmation  = pkgkafka.Topic("notification", "order_confirmation")
	TopicAdminOrderAlert    = pkgkafka.Topic("notification", "admin_order_alert")
	TopicPaymentSucceeded   = pkgkafka.Topic("payment", "succeeded")
	TopicPaymentFailed      = pkgkafka.Topic("payment", "failed")
)

// Aggregate types.
const (
	AggregateTypeOrder = "order"
	AggregateTypeCart  = "cart"
)

// OrderCreatedData is the payload for an order.created event.
type OrderCreatedData struct {
	ID                    string          `json:"id"`
	Number                string          `json:"number"`
	UserID                string          `json:"user_id,omitempty"`
	Email                 string          `json:"email"`
	Status                string          `json:"status"`
	PaymentMethod         string          `json:"payment_method"`
	PaymentStatus         string          `json:"payment_status"`
	Items                 []OrderItemData `json:"items"`
	Subtotal              int64           `json:"subtotal"`
	Discount              int64           `json:"discount"`
	Shipping              int64           `json:"shipping"`
	LoyaltyDiscount       int64           `json:"loyalty_discount"`
	Total                 int64           `json:"total"`
	Currency              string          `json:"currency"`
	CouponCode            string          `json:"coupon_code,omitempty"`
	LoyaltyPointsRedeemed int64           `json:"loyalty_points_redeemed"`
	CreatedAt             time.Time       `json:"created_at"`
}

// OrderItemData is the event payload for an order item.
type OrderItemData struct {
	ProductID      string `json:"product_id,omitempty"`
	VariantID      string `json:"variant_id,omitempty"`
	BundleID       string `json:"bundle_id,omitempty"`
	Name           string `json:"name"`
	UnitPrice      int64  `json:"unit_price"`
	Quantity       int    `json:"quantity"`
	BundleDiscount int64  `json:"bundle_discount,omitempty"`
}

// OrderStatusChangedData is the payload for an order.status_changed event.
type OrderStatusChangedData struct {
	OrderID   string `json:"order_id"`
	Number    string `json:"number"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Note      string `json:"note,omitempty"`
}

// OrderCancelledData is the payload for an order.cancelled event.
type OrderCancelledData struct {
	OrderID        string `json:"order_id"`
	Number         string `json:"number"`
	Reason         string `json:"reason,omitempty"`
	PointsRestored int64  `json:"points_restored"`
}

// OrderPaidData is the payload for an order.paid event.
type OrderPaidData struct {
	OrderID        string `json:"order_id"`
	Number         string `json:"number"`
	Reference      string `json:"reference,omitempty"`
	Total          int64  `json:"total"`
	PointsCredited int64  `json:"points_credited"`
}

// BundleAddedData is the payload for a cart.bundle_added event.
type BundleAddedData struct {
	CartID   string `json:"cart_id"`
	BundleID string `json:"bundle_id"`
	Quantity int    `json:"quantity"`
	Lines    int    `json:"lines"`
}

// NotificationData is the payload for notification events.
type NotificationData struct {
	Recipient string `json:"recipient,omitempty"`
	OrderID   string `json:"order_id"`
	Number    string `json:"number"`
	Total     int64  `json:"total"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	ItemCount int    `json:"item_count"`
}

// Producer publishes storefront domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateType, aggregateID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateType, aggregateID, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if userID := logger.UserIDFromContext(ctx); userID != "" {
		event.WithMetadata("actor_user_id", userID)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// PublishOrderCreated publishes an order.created event with the order snapshot.
func (p *Producer) PublishOrderCreated(ctx context.Context, o *domain.Order) error {
	items := make([]OrderItemData, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemData{
			ProductID:      it.ProductID,
			VariantID:      it.VariantID,
			BundleID:       it.BundleID,
			Name:           it.ProductName,
			UnitPrice:      it.UnitPrice,
			Quantity:       it.Quantity,
			BundleDiscount: it.BundleDiscount,
		}
	}

	return p.publish(ctx, TopicOrderCreated, AggregateTypeOrder, o.ID, OrderCreatedData{
		ID:                    o.ID,
		Number:                o.Number,
		UserID:                o.UserID,
		Email:                 o.Email,
		Status:                o.Status,
		PaymentMethod:         o.PaymentMethod,
		PaymentStatus:         o.PaymentStatus,
		Items:                 items,
		Subtotal:              o.Subtotal,
		Discount:              o.Discount,
		Shipping:              o.Shipping,
		LoyaltyDiscount:       o.LoyaltyDiscount,
		Total:                 o.Total,
		Currency:              o.Currency,
		CouponCode:            o.CouponCode,
		LoyaltyPointsRedeemed: o.LoyaltyPointsRedeemed,
		CreatedAt:             o.CreatedAt,
	})
}

// PublishOrderStatusChanged publishes an order.status_changed event.
func (p *Producer) PublishOrderStatusChanged(ctx context.Context, o *domain.Order, oldStatus, note string) error {
	return p.publish(ctx, TopicOrderStatusChanged, AggregateTypeOrder, o.ID, OrderStatusChangedData{
		OrderID:   o.ID,
		Number:    o.Number,
		OldStatus: oldStatus,
		NewStatus: o.Status,
		Note:      note,
	})
}

// PublishOrderCancelled publishes an order.cancelled event.
func (p *Producer) PublishOrderCancelled(ctx context.Context, o *domain.Order, reason string, pointsRestored int64) error {
	return p.publish(ctx, TopicOrderCancelled, AggregateTypeOrder, o.ID, OrderCancelledData{
		OrderID:        o.ID,
		Number:         o.Number,
		Reason:         reason,
		PointsRestored: pointsRestored,
	})
}

// PublishOrderPaid publishes an order.paid event.
func (p *Producer) PublishOrderPaid(ctx context.Context, o *domain.Order, pointsCredited int64) error {
	return p.publish(ctx, TopicOrderPaid, AggregateTypeOrder, o.ID, OrderPaidData{
		OrderID:        o.ID,
		Number:         o.Number,
		Reference:      o.PaymentReference,
		Total:          o.Total,
		PointsCredited: pointsCredited,
	})
}

// PublishBundleAdded publishes a cart.bundle_added event.
func (p *Producer) PublishBundleAdded(ctx context.Context, cartID, bundleID string, qty int, res domain.BundleAddResult) error {
	return p.publish(ctx, TopicBundleAdded, AggregateTypeCart, cartID, BundleAddedData{
		CartID:   cartID,
		BundleID: bundleID,
		Quantity: qty,
		Lines:    len(res.Lines),
	})
}

// SendOrderConfirmation asks the notification pipeline to email the customer.
func (p *Producer) SendOrderConfirmation(ctx context.Context, o *domain.Order) error {
	return p.publish(ctx, TopicOrderConfirmation, AggregateTypeOrder, o.ID, notification(o, o.Email))
}

// SendAdminOrderAlert notifies back office staff of a new order.
func (p *Producer) SendAdminOrderAlert(ctx context.Context, o *domain.Order) error {
	return p.publish(ctx, TopicAdminOrderAlert, AggregateTypeOrder, o.ID, notification(o, ""))
}

func notification(o *domain.Order, recipient string) NotificationData {
	count := 0
	for _, it := range o.Items {
		if it.ParentItemID == "" {
			count += it.Quantity
		}
	}
	return NotificationData{
		Recipient: recipient,
		OrderID:   o.ID,
		Number:    o.Number,
		Total:     o.Total,
		Currency:  o.Currency,
		Status:    o.Status,
		ItemCount: count,
	}
}
