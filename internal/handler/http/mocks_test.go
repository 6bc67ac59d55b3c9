package http

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/pagination"
)

// ============================================================================
// Mock CartService
// ============================================================================

type mockCartService struct {
	mock.Mock
}

func (m *mockCartService) view(args mock.Arguments) (*service.CartView, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.CartView), args.Error(1)
}

func (m *mockCartService) GetCart(ctx context.Context, actor domain.Actor) (*service.CartView, error) {
	return m.view(m.Called(ctx, actor))
}

func (m *mockCartService) AddItem(ctx context.Context, actor domain.Actor, input service.AddItemInput) (*service.CartView, error) {
	return m.view(m.Called(ctx, actor, input))
}

func (m *mockCartService) UpdateItemQuantity(ctx context.Context, actor domain.Actor, itemID string, qty int) (*service.CartView, error) {
	return m.view(m.Called(ctx, actor, itemID, qty))
}

func (m *mockCartService) RemoveItem(ctx context.Context, actor domain.Actor, itemID string) (*service.CartView, error) {
	return m.view(m.Called(ctx, actor, itemID))
}

func (m *mockCartService) ClearCart(ctx context.Context, actor domain.Actor) (*service.CartView, error) {
	return m.view(m.Called(ctx, actor))
}

func (m *mockCartService) ApplyCoupon(ctx context.Context, actor domain.Actor, code string) (*service.CartView, error) {
	return m.view(m.Called(ctx, actor, code))
}

func (m *mockCartService) RemoveCoupon(ctx context.Context, actor domain.Actor) (*service.CartView, error) {
	return m.view(m.Called(ctx, actor))
}

func (m *mockCartService) MergeFromSession(ctx context.Context, actor domain.Actor) (*service.CartView, error) {
	return m.view(m.Called(ctx, actor))
}

func (m *mockCartService) AddBundle(ctx context.Context, actor domain.Actor, input service.AddBundleInput) (*service.CartView, error) {
	return m.view(m.Called(ctx, actor, input))
}

func (m *mockCartService) RemoveBundle(ctx context.Context, actor domain.Actor, bundleID string) (*service.CartView, error) {
	return m.view(m.Called(ctx, actor, bundleID))
}

func (m *mockCartService) QuoteBundle(ctx context.Context, bundleID string, sel domain.Selection) (*service.BundleQuote, error) {
	args := m.Called(ctx, bundleID, sel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BundleQuote), args.Error(1)
}

// ============================================================================
// Mock CheckoutService
// ============================================================================

type mockCheckoutService struct {
	mock.Mock
}

func (m *mockCheckoutService) ShippingMethods(ctx context.Context, actor domain.Actor, city string) ([]service.ShippingOption, error) {
	args := m.Called(ctx, actor, city)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.ShippingOption), args.Error(1)
}

func (m *mockCheckoutService) Preview(ctx context.Context, actor domain.Actor, input service.PreviewInput) (*service.Preview, error) {
	args := m.Called(ctx, actor, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Preview), args.Error(1)
}

func (m *mockCheckoutService) PlaceOrder(ctx context.Context, actor domain.Actor, input service.PlaceOrderInput, key string) (*service.PlaceOrderResult, error) {
	args := m.Called(ctx, actor, input, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PlaceOrderResult), args.Error(1)
}

// ============================================================================
// Mock OrderService
// ============================================================================

type mockOrderService struct {
	mock.Mock
}

func (m *mockOrderService) order(args mock.Arguments) (*domain.Order, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderService) GetOrder(ctx context.Context, actor domain.Actor, number string) (*domain.Order, error) {
	return m.order(m.Called(ctx, actor, number))
}

func (m *mockOrderService) ListOrders(ctx context.Context, actor domain.Actor, p pagination.Params) ([]domain.Order, int, error) {
	args := m.Called(ctx, actor, p)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderService) CancelOrder(ctx context.Context, actor domain.Actor, number, reason string) (*domain.Order, error) {
	return m.order(m.Called(ctx, actor, number, reason))
}

func (m *mockOrderService) UpdateStatus(ctx context.Context, number, next, note, changedBy string) (*domain.Order, error) {
	return m.order(m.Called(ctx, number, next, note, changedBy))
}

func (m *mockOrderService) ConfirmPayment(ctx context.Context, number, reference string) (*domain.Order, error) {
	return m.order(m.Called(ctx, number, reference))
}

func (m *mockOrderService) FailPayment(ctx context.Context, number, reason string) (*domain.Order, error) {
	return m.order(m.Called(ctx, number, reason))
}

func (m *mockOrderService) HandlePaymentCallback(ctx context.Context, method string, payload []byte, signature string) (*client.CallbackResult, error) {
	args := m.Called(ctx, method, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.CallbackResult), args.Error(1)
}

// ============================================================================
// Mock LoyaltyService
// ============================================================================

type mockLoyaltyService struct {
	mock.Mock
}

func (m *mockLoyaltyService) History(ctx context.Context, userID string, p pagination.Params) (*service.LoyaltySummary, error) {
	args := m.Called(ctx, userID, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.LoyaltySummary), args.Error(1)
}
