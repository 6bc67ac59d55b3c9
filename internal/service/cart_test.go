package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

type cartFixture struct {
	carts   *mockCartRepository
	catalog *mockCatalogRepository
	bundles *mockBundleRepository
	coupons *mockCouponRepository
	writer  *recordingWriter
	svc     *CartService
}

func newCartFixture() *cartFixture {
	f := &cartFixture{
		carts:   new(mockCartRepository),
		catalog: new(mockCatalogRepository),
		bundles: new(mockBundleRepository),
		coupons: new(mockCouponRepository),
		writer:  &recordingWriter{},
	}
	f.svc = NewCartService(f.carts, f.catalog, f.bundles, f.coupons, newTestProducer(f.writer), newTestLogger())
	f.svc.now = fixedClock
	return f
}

var (
	guest  = domain.Actor{SessionToken: "sess-1"}
	member = domain.Actor{UserID: "u-1"}
)

func appCode(t *testing.T, err error) *apperrors.AppError {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr
}

func TestGetCart_MissingCartIsEmpty(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	f.carts.On("GetByUser", ctx, "u-1").Return(nil, apperrors.NotFound("cart", "u-1"))

	view, err := f.svc.GetCart(ctx, member)

	require.NoError(t, err)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "u-1", view.UserID)
	assert.Empty(t, view.Lines)
	assert.Zero(t, view.Subtotal)
	f.carts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestGetCart_RequiresActor(t *testing.T) {
	f := newCartFixture()

	_, err := f.svc.GetCart(context.Background(), domain.Actor{})

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestGetCart_PricesLinesFromCatalog(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	c := cartWith(guest, domain.CartItem{ID: "i-1", ProductID: "p-shirt", Quantity: 2})
	f.carts.On("GetBySession", ctx, "sess-1").Return(c, nil)
	f.catalog.On("GetProducts", ctx, []string{"p-shirt"}).Return([]*domain.Product{shirt()}, nil)

	view, err := f.svc.GetCart(ctx, guest)

	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, int64(2000), view.Lines[0].UnitPrice)
	assert.Equal(t, int64(4000), view.Subtotal)
	assert.Equal(t, 2, view.ItemCount)
	assert.Equal(t, int64(600), view.TotalWeight)
	assert.True(t, view.Lines[0].Available)
}

func TestAddItem_MergesIntoExistingLine(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	c := cartWith(member, domain.CartItem{ID: "i-1", ProductID: "p-shirt", Quantity: 1})
	f.carts.On("GetByUser", ctx, "u-1").Return(c, nil)
	f.catalog.On("GetProducts", ctx, []string{"p-shirt"}).Return([]*domain.Product{shirt()}, nil)
	f.carts.On("Save", ctx, mock.MatchedBy(func(c *domain.Cart) bool {
		return len(c.Items) == 1 && c.Items[0].Quantity == 3
	})).Return(nil).Once()

	view, err := f.svc.AddItem(ctx, member, AddItemInput{ProductID: "p-shirt", Quantity: 2})

	require.NoError(t, err)
	assert.Equal(t, int64(6000), view.Subtotal)
	f.carts.AssertExpectations(t)
}

func TestAddItem_Rejections(t *testing.T) {
	inactive := shirt()
	inactive.IsActive = false

	tests := []struct {
		name       string
		inCart     int
		products   []*domain.Product
		variants   []*domain.Variant
		input      AddItemInput
		wantErr    error
		wantReason string
	}{
		{
			name:     "unknown product",
			products: []*domain.Product{},
			input:    AddItemInput{ProductID: "p-shirt", Quantity: 1},
			wantErr:  apperrors.ErrNotFound,
		},
		{
			name:       "inactive product",
			products:   []*domain.Product{inactive},
			input:      AddItemInput{ProductID: "p-shirt", Quantity: 1},
			wantErr:    apperrors.ErrBusinessRule,
			wantReason: domain.ReasonItemUnavailable,
		},
		{
			name:       "more than stock including cart",
			inCart:     9,
			products:   []*domain.Product{shirt()},
			input:      AddItemInput{ProductID: "p-shirt", Quantity: 2},
			wantErr:    apperrors.ErrBusinessRule,
			wantReason: domain.ReasonInsufficientStock,
		},
		{
			name:     "variant of another product",
			products: []*domain.Product{shirt()},
			variants: []*domain.Variant{{ID: "v-1", ProductID: "p-belt", IsActive: true}},
			input:    AddItemInput{ProductID: "p-shirt", VariantID: "v-1", Quantity: 1},
			wantErr:  apperrors.ErrNotFound,
		},
		{
			name:    "quantity out of range",
			input:   AddItemInput{ProductID: "p-shirt", Quantity: 100},
			wantErr: apperrors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCartFixture()
			ctx := context.Background()
			c := cartWith(member)
			if tt.inCart > 0 {
				c.Items = []domain.CartItem{{ID: "i-1", ProductID: "p-shirt", Quantity: tt.inCart}}
			}
			f.carts.On("GetByUser", ctx, "u-1").Return(c, nil)
			f.catalog.On("GetProducts", ctx, []string{"p-shirt"}).Return(tt.products, nil)
			f.catalog.On("GetVariants", ctx, []string{"v-1"}).Return(tt.variants, nil)

			_, err := f.svc.AddItem(ctx, member, tt.input)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, apperrors.ReasonOf(err))
			}
			f.carts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		})
	}
}

func TestUpdateItemQuantity_ZeroRemovesLine(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	c := cartWith(guest,
		domain.CartItem{ID: "i-1", ProductID: "p-shirt", Quantity: 2},
		domain.CartItem{ID: "i-2", ProductID: "p-belt", Quantity: 1},
	)
	f.carts.On("GetBySession", ctx, "sess-1").Return(c, nil)
	f.carts.On("Save", ctx, mock.Anything).Return(nil)
	f.catalog.On("GetProducts", ctx, []string{"p-belt"}).Return([]*domain.Product{belt()}, nil)

	view, err := f.svc.UpdateItemQuantity(ctx, guest, "i-1", 0)

	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, "p-belt", view.Lines[0].ProductID)
	assert.Equal(t, int64(1500), view.Subtotal)
}

func TestRemoveItem_UnknownLine(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	f.carts.On("GetBySession", ctx, "sess-1").Return(cartWith(guest), nil)

	_, err := f.svc.RemoveItem(ctx, guest, "missing")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	f.carts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestClearCart_DropsCoupon(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	c := cartWith(guest, domain.CartItem{ID: "i-1", ProductID: "p-shirt", Quantity: 2})
	c.CouponCode = "SAVE10"
	f.carts.On("GetBySession", ctx, "sess-1").Return(c, nil)
	f.carts.On("Save", ctx, mock.Anything).Return(nil)

	view, err := f.svc.ClearCart(ctx, guest)

	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Empty(t, view.CouponCode)
}

func save10() *domain.Coupon {
	return &domain.Coupon{
		ID: "cp-1", Code: "SAVE10", Type: domain.CouponPercentage, Value: 10,
		MinOrderAmount: ptr(int64(5000)), MaxDiscount: ptr(int64(800)), IsActive: true,
	}
}

func TestApplyCoupon_DiscountIsCapped(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	c := cartWith(guest, domain.CartItem{ID: "i-1", ProductID: "p-shirt", Quantity: 5})
	f.carts.On("GetBySession", ctx, "sess-1").Return(c, nil)
	f.catalog.On("GetProducts", ctx, []string{"p-shirt"}).Return([]*domain.Product{shirt()}, nil)
	f.coupons.On("GetByCode", ctx, " save10 ").Return(save10(), nil)
	f.coupons.On("GetByCode", ctx, "SAVE10").Return(save10(), nil)
	f.carts.On("Save", ctx, mock.MatchedBy(func(c *domain.Cart) bool { return c.CouponCode == "SAVE10" })).Return(nil)

	view, err := f.svc.ApplyCoupon(ctx, guest, " save10 ")

	require.NoError(t, err)
	assert.Equal(t, int64(10000), view.Subtotal)
	assert.Equal(t, int64(800), view.Discount)
	assert.True(t, view.CouponValid)
	f.coupons.AssertNotCalled(t, "CountUsageByUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyCoupon_Rejections(t *testing.T) {
	expired := save10()
	expired.ExpiresAt = ptr(testNow.Add(-1))
	firstOrder := save10()
	firstOrder.FirstOrderOnly = true

	tests := []struct {
		name       string
		coupon     *domain.Coupon
		findErr    error
		orders     int
		wantReason string
	}{
		{"not found", nil, apperrors.NotFound("coupon", "SAVE10"), 0, domain.ReasonCouponNotFound},
		{"expired", expired, nil, 0, domain.ReasonCouponExpired},
		{"first order only", firstOrder, nil, 2, domain.ReasonCouponFirstOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCartFixture()
			ctx := context.Background()
			c := cartWith(member, domain.CartItem{ID: "i-1", ProductID: "p-shirt", Quantity: 5})
			f.carts.On("GetByUser", ctx, "u-1").Return(c, nil)
			f.catalog.On("GetProducts", ctx, []string{"p-shirt"}).Return([]*domain.Product{shirt()}, nil)
			f.coupons.On("GetByCode", ctx, "SAVE10").Return(tt.coupon, tt.findErr)
			f.coupons.On("CountUsageByUser", ctx, "cp-1", "u-1").Return(0, nil)
			f.coupons.On("CountOrdersByUser", ctx, "u-1").Return(tt.orders, nil)

			_, err := f.svc.ApplyCoupon(ctx, member, "SAVE10")

			assert.ErrorIs(t, err, apperrors.ErrBusinessRule)
			assert.Equal(t, tt.wantReason, apperrors.ReasonOf(err))
			f.carts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		})
	}
}

func TestApplyCoupon_EmptyCart(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	f.carts.On("GetBySession", ctx, "sess-1").Return(nil, apperrors.NotFound("cart", "sess-1"))

	_, err := f.svc.ApplyCoupon(ctx, guest, "SAVE10")

	assert.Equal(t, domain.ReasonEmptyCart, apperrors.ReasonOf(err))
}

func TestMergeFromSession_IsIdempotent(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	actor := domain.Actor{UserID: "u-1", SessionToken: "sess-1"}

	userCart := cartWith(member, domain.CartItem{ID: "i-1", ProductID: "p-shirt", Quantity: 1})
	sessionCart := cartWith(guest,
		domain.CartItem{ID: "s-1", ProductID: "p-shirt", Quantity: 2},
		domain.CartItem{ID: "s-2", ProductID: "p-belt", Quantity: 1},
	)
	sessionCart.ID = "cart-guest"

	f.carts.On("GetByUser", ctx, "u-1").Return(userCart, nil)
	f.carts.On("GetBySession", ctx, "sess-1").Return(sessionCart, nil).Once()
	f.carts.On("GetBySession", ctx, "sess-1").Return(nil, apperrors.NotFound("cart", "sess-1"))
	f.carts.On("Save", ctx, userCart).Return(nil).Once()
	f.carts.On("Delete", ctx, "cart-guest").Return(nil).Once()
	f.catalog.On("GetProducts", ctx, []string{"p-shirt", "p-belt"}).Return([]*domain.Product{shirt(), belt()}, nil)

	first, err := f.svc.MergeFromSession(ctx, actor)
	require.NoError(t, err)
	second, err := f.svc.MergeFromSession(ctx, actor)
	require.NoError(t, err)

	assert.Equal(t, first.Lines, second.Lines)
	assert.Equal(t, first.Subtotal, second.Subtotal)
	require.Len(t, second.Lines, 2)
	assert.Equal(t, 3, second.Lines[0].Quantity)
	assert.Equal(t, int64(7500), second.Subtotal)
	f.carts.AssertExpectations(t)
}

func TestMergeFromSession_RequiresUser(t *testing.T) {
	f := newCartFixture()

	_, err := f.svc.MergeFromSession(context.Background(), guest)

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestGetCart_SignedInActorAdoptsGuestCart(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	actor := domain.Actor{UserID: "u-1", SessionToken: "sess-1"}

	userCart := cartWith(member, domain.CartItem{ID: "i-1", ProductID: "p-shirt", Quantity: 1})
	sessionCart := cartWith(guest, domain.CartItem{ID: "s-1", ProductID: "p-belt", Quantity: 1})
	sessionCart.ID = "cart-guest"

	f.carts.On("GetByUser", ctx, "u-1").Return(userCart, nil)
	f.carts.On("GetBySession", ctx, "sess-1").Return(sessionCart, nil).Once()
	f.carts.On("Save", ctx, userCart).Return(nil).Once()
	f.carts.On("Delete", ctx, "cart-guest").Return(nil).Once()
	f.catalog.On("GetProducts", ctx, []string{"p-shirt", "p-belt"}).Return([]*domain.Product{shirt(), belt()}, nil)

	view, err := f.svc.GetCart(ctx, actor)

	require.NoError(t, err)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, "p-belt", view.Lines[1].ProductID)
	assert.Equal(t, int64(3500), view.Subtotal)
	f.carts.AssertExpectations(t)
}

func TestGetCart_SignedInActorWithoutGuestCart(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	actor := domain.Actor{UserID: "u-1", SessionToken: "sess-1"}

	f.carts.On("GetByUser", ctx, "u-1").Return(cartWith(member), nil)
	f.carts.On("GetBySession", ctx, "sess-1").Return(nil, apperrors.NotFound("cart", "sess-1"))

	view, err := f.svc.GetCart(ctx, actor)

	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	f.carts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	f.carts.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func starterBundle() *domain.Bundle {
	return &domain.Bundle{
		ID: "b-1", Name: "Starter", Type: domain.BundleTypeFixed,
		DiscountType: domain.DiscountPercentage, DiscountValue: 20,
		DisplayMode: domain.DisplaySingleItem, IsActive: true,
		Items: []domain.BundleItem{
			{ProductID: "p-shirt", Quantity: 1},
			{ProductID: "p-belt", Quantity: 1},
		},
	}
}

func TestAddBundle_SingleItemReAddIsNoOp(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	c := cartWith(guest)
	b := starterBundle()
	f.carts.On("GetBySession", ctx, "sess-1").Return(c, nil)
	f.bundles.On("GetByID", ctx, "b-1").Return(b, nil)
	f.bundles.On("GetByIDs", ctx, []string{"b-1"}).Return([]*domain.Bundle{b}, nil)
	f.bundles.On("IncrementAddToCart", ctx, "b-1").Return(nil)
	f.catalog.On("GetProducts", ctx, []string{"p-shirt", "p-belt"}).Return([]*domain.Product{shirt(), belt()}, nil)
	f.carts.On("Save", ctx, c).Return(nil).Once()

	first, err := f.svc.AddBundle(ctx, guest, AddBundleInput{BundleID: "b-1", Quantity: 1})
	require.NoError(t, err)
	second, err := f.svc.AddBundle(ctx, guest, AddBundleInput{BundleID: "b-1", Quantity: 1})
	require.NoError(t, err)

	require.Len(t, second.Lines, 1)
	assert.True(t, second.Lines[0].IsBundleAnchor)
	assert.Equal(t, int64(2800), second.Subtotal)
	assert.Equal(t, first.Lines, second.Lines)
	f.bundles.AssertNumberOfCalls(t, "IncrementAddToCart", 2)
	f.carts.AssertExpectations(t)
	assert.Equal(t, []string{event.TopicBundleAdded}, f.writer.topics())
}

func TestAddBundle_Rejections(t *testing.T) {
	soldOut := starterBundle()
	soldOut.StockLimit = ptr(5)
	soldOut.StockSold = 5

	configurable := &domain.Bundle{
		ID: "b-1", Name: "Pick one", Type: domain.BundleTypeConfigurable,
		DiscountType: domain.DiscountFixedPrice, DiscountValue: 1800,
		DisplayMode: domain.DisplayGrouped, IsActive: true,
		Slots: []domain.BundleSlot{{
			ID: "s-1", Name: "Top", MinSelections: 1, MaxSelections: 1, IsRequired: true,
			Products: []domain.SlotProduct{{ProductID: "p-a"}, {ProductID: "p-b"}},
		}},
	}

	tests := []struct {
		name       string
		bundle     *domain.Bundle
		selection  domain.Selection
		wantErr    error
		wantReason string
	}{
		{"sold out", soldOut, nil, apperrors.ErrBusinessRule, domain.ReasonBundleUnavailable},
		{"missing required slot", configurable, nil, apperrors.ErrInvalidInput, ""},
		{"product outside slot", configurable, domain.Selection{{SlotID: "s-1", ProductIDs: []string{"p-z"}}}, apperrors.ErrInvalidInput, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCartFixture()
			ctx := context.Background()
			f.carts.On("GetBySession", ctx, "sess-1").Return(cartWith(guest), nil)
			f.bundles.On("GetByID", ctx, "b-1").Return(tt.bundle, nil)

			_, err := f.svc.AddBundle(ctx, guest, AddBundleInput{BundleID: "b-1", Selection: tt.selection})

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantReason, apperrors.ReasonOf(err))
			f.carts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
			f.bundles.AssertNotCalled(t, "IncrementAddToCart", mock.Anything, mock.Anything)
		})
	}
}

func TestAddBundle_SelectionErrorsAreFieldLevel(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	b := &domain.Bundle{
		ID: "b-1", Name: "Pick one", Type: domain.BundleTypeConfigurable,
		DiscountType: domain.DiscountFixedPrice, DiscountValue: 1800,
		DisplayMode: domain.DisplaySingleItem, IsActive: true,
		Slots: []domain.BundleSlot{{ID: "s-1", Name: "Top", MinSelections: 1, MaxSelections: 1, IsRequired: true}},
	}
	f.carts.On("GetBySession", ctx, "sess-1").Return(cartWith(guest), nil)
	f.bundles.On("GetByID", ctx, "b-1").Return(b, nil)

	_, err := f.svc.AddBundle(ctx, guest, AddBundleInput{BundleID: "b-1"})

	appErr := appCode(t, err)
	assert.Equal(t, "slot \"Top\" is required", appErr.Fields["selection[0]"])
}

func TestRemoveBundle_NotInCart(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	f.carts.On("GetBySession", ctx, "sess-1").Return(cartWith(guest), nil)

	_, err := f.svc.RemoveBundle(ctx, guest, "b-1")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestQuoteBundle_FixedPriceConfigurable(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	b := &domain.Bundle{
		ID: "b-2", Name: "Pick one", Type: domain.BundleTypeConfigurable,
		DiscountType: domain.DiscountFixedPrice, DiscountValue: 1800,
		DisplayMode: domain.DisplaySingleItem, IsActive: true,
		Slots: []domain.BundleSlot{{
			ID: "s-1", Name: "Top", MinSelections: 1, MaxSelections: 1, IsRequired: true,
			Products: []domain.SlotProduct{{ProductID: "p-a"}, {ProductID: "p-b"}},
		}},
	}
	f.bundles.On("GetByID", ctx, "b-2").Return(b, nil)
	f.catalog.On("GetProducts", ctx, []string{"p-b"}).Return([]*domain.Product{
		{ID: "p-b", Name: "Premium", Price: 2500, IsActive: true},
	}, nil)

	q, err := f.svc.QuoteBundle(ctx, "b-2", domain.Selection{{SlotID: "s-1", ProductIDs: []string{"p-b"}}})

	require.NoError(t, err)
	assert.True(t, q.Available)
	assert.Empty(t, q.Errors)
	assert.Equal(t, int64(2500), q.OriginalPrice)
	assert.Equal(t, int64(1800), q.DiscountedPrice)
	assert.Equal(t, int64(700), q.Savings)
	assert.Equal(t, 28.0, q.SavingsPercentage)
	f.catalog.AssertNotCalled(t, "GetVariants", mock.Anything, mock.Anything)
}
