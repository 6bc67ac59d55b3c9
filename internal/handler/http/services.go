package http

import (
	"context"

	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/pagination"
)

// CartService is the cart behaviour the HTTP layer depends on.
type CartService interface {
	GetCart(ctx context.Context, actor domain.Actor) (*service.CartView, error)
	AddItem(ctx context.Context, actor domain.Actor, input service.AddItemInput) (*service.CartView, error)
	UpdateItemQuantity(ctx context.Context, actor domain.Actor, itemID string, qty int) (*service.CartView, error)
	RemoveItem(ctx context.Context, actor domain.Actor, itemID string) (*service.CartView, error)
	ClearCart(ctx context.Context, actor domain.Actor) (*service.CartView, error)
	ApplyCoupon(ctx context.Context, actor domain.Actor, code string) (*service.CartView, error)
	RemoveCoupon(ctx context.Context, actor domain.Actor) (*service.CartView, error)
	MergeFromSession(ctx context.Context, actor domain.Actor) (*service.CartView, error)
	AddBundle(ctx context.Context, actor domain.Actor, input service.AddBundleInput) (*service.CartView, error)
	RemoveBundle(ctx context.Context, actor domain.Actor, bundleID string) (*service.CartView, error)
	QuoteBundle(ctx context.Context, bundleID string, sel domain.Selection) (*service.BundleQuote, error)
}

// CheckoutService is the checkout behaviour the HTTP layer depends on.
type CheckoutService interface {
	ShippingMethods(ctx context.Context, actor domain.Actor, city string) ([]service.ShippingOption, error)
	Preview(ctx context.Context, actor domain.Actor, input service.PreviewInput) (*service.Preview, error)
	PlaceOrder(ctx context.Context, actor domain.Actor, input service.PlaceOrderInput, idempotencyKey string) (*service.PlaceOrderResult, error)
}

// OrderService is the order behaviour the HTTP layer depends on.
type OrderService interface {
	GetOrder(ctx context.Context, actor domain.Actor, number string) (*domain.Order, error)
	ListOrders(ctx context.Context, actor domain.Actor, p pagination.Params) ([]domain.Order, int, error)
	CancelOrder(ctx context.Context, actor domain.Actor, number, reason string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, number, next, note, changedBy string) (*domain.Order, error)
	ConfirmPayment(ctx context.Context, number, reference string) (*domain.Order, error)
	FailPayment(ctx context.Context, number, reason string) (*domain.Order, error)
	HandlePaymentCallback(ctx context.Context, method string, payload []byte, signature string) (*client.CallbackResult, error)
}

// LoyaltyService is the loyalty behaviour the HTTP layer depends on.
type LoyaltyService interface {
	History(ctx context.Context, userID string, p pagination.Params) (*service.LoyaltySummary, error)
}

var (
	_ CartService     = (*service.CartService)(nil)
	_ CheckoutService = (*service.CheckoutService)(nil)
	_ OrderService    = (*service.OrderService)(nil)
	_ LoyaltyService  = (*service.LoyaltyService)(nil)
)
