package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

const orderNumber = "ORD-20260115-AB12CD34"

type orderFixture struct {
	orders   *mockOrderRepository
	tx       *mockTx
	runner   *txRunner
	payments *mockPayments
	writer   *recordingWriter
	svc      *OrderService
}

func newOrderFixture() *orderFixture {
	f := &orderFixture{
		orders:   new(mockOrderRepository),
		tx:       new(mockTx),
		payments: new(mockPayments),
		writer:   &recordingWriter{},
	}
	f.runner = &txRunner{tx: f.tx}
	f.svc = NewOrderService(f.orders, f.runner, f.payments, newTestProducer(f.writer), newTestLogger())
	f.svc.now = fixedClock
	return f
}

func placedOrder(status, payment string) *domain.Order {
	return &domain.Order{
		ID: "o-1", Number: orderNumber, UserID: "u-1", Email: "ada@example.com",
		Status: status, PaymentStatus: payment, PaymentMethod: domain.PaymentMethodCOD,
		Subtotal: 5500, Total: 5500, LoyaltyPointsEarned: 55,
		Items: []domain.OrderItem{
			{ID: "oi-1", OrderID: "o-1", ProductID: "p-shirt", ProductName: "Shirt", UnitPrice: 2000, Quantity: 2},
			{ID: "oi-2", OrderID: "o-1", ProductID: "p-belt", ProductName: "Belt", UnitPrice: 1500, Quantity: 1},
		},
		History: []domain.StatusHistory{{ID: "h-1", OrderID: "o-1", ToStatus: domain.OrderStatusPending}},
	}
}

func appendedTo(status string) any {
	return mock.MatchedBy(func(h []domain.StatusHistory) bool {
		return len(h) == 1 && h[0].ToStatus == status
	})
}

func (f *orderFixture) expectStockRestored(ctx context.Context) {
	f.tx.On("AdjustProductStock", ctx, "p-belt", 1).Return(nil).Once()
	f.tx.On("AdjustProductStock", ctx, "p-shirt", 2).Return(nil).Once()
}

func TestCancelOrder_RestoresStockAndRedeemedPoints(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	o := placedOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPending)
	o.LoyaltyPointsRedeemed = 50
	o.LoyaltyDiscount = 50
	f.orders.On("GetByNumber", ctx, orderNumber).Return(o, nil)
	f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)
	f.expectStockRestored(ctx)
	f.tx.On("LockLoyaltyBalance", ctx, "u-1").Return(int64(10), nil)
	f.tx.On("AppendLoyalty", ctx, mock.MatchedBy(func(e domain.LoyaltyTransaction) bool {
		return e.Type == domain.LoyaltyAdjusted && e.Points == 50 && e.BalanceAfter == 60 && e.OrderID == "o-1"
	})).Return(nil).Once()
	f.tx.On("SaveOrderStatus", ctx, o, appendedTo(domain.OrderStatusCancelled)).Return(nil).Once()

	got, err := f.svc.CancelOrder(ctx, member, orderNumber, "changed my mind")

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	last, _ := got.LastHistory()
	assert.Equal(t, "changed my mind", last.Note)
	assert.Equal(t, "u-1", last.ChangedBy)
	f.tx.AssertExpectations(t)
	f.tx.AssertNumberOfCalls(t, "AppendLoyalty", 1)
	assert.Equal(t, []string{event.TopicOrderCancelled, event.TopicOrderStatusChanged}, f.writer.topics())
}

func TestCancelOrder_ReversesBundleSale(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	o := placedOrder(domain.OrderStatusPending, domain.PaymentStatusPending)
	o.UserID = ""
	o.SessionToken = "sess-1"
	o.Items = []domain.OrderItem{
		{ID: "oi-a", BundleID: "b-1", IsBundleAnchor: true, ProductName: "Starter", UnitPrice: 2800, Quantity: 2},
		{ID: "oi-1", BundleID: "b-1", ParentItemID: "oi-a", ProductID: "p-shirt", Quantity: 2},
		{ID: "oi-2", BundleID: "b-1", ParentItemID: "oi-a", ProductID: "p-belt", Quantity: 2},
	}
	f.orders.On("GetByNumber", ctx, orderNumber).Return(o, nil)
	f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)
	f.tx.On("AdjustProductStock", ctx, "p-belt", 2).Return(nil).Once()
	f.tx.On("AdjustProductStock", ctx, "p-shirt", 2).Return(nil).Once()
	f.tx.On("RecordBundleSale", ctx, "b-1", -2, int64(-5600)).Return(nil).Once()
	f.tx.On("SaveOrderStatus", ctx, o, appendedTo(domain.OrderStatusCancelled)).Return(nil)

	got, err := f.svc.CancelOrder(ctx, guest, orderNumber, "")

	require.NoError(t, err)
	last, _ := got.LastHistory()
	assert.Equal(t, "cancelled", last.Note)
	assert.Equal(t, "guest", last.ChangedBy)
	f.tx.AssertExpectations(t)
	f.tx.AssertNotCalled(t, "LockLoyaltyBalance", mock.Anything, mock.Anything)
}

func TestUpdateStatus_CancelClawsBackCreditedPoints(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	o := placedOrder(domain.OrderStatusProcessing, domain.PaymentStatusPaid)
	o.LoyaltyPointsCredited = true
	f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)
	f.expectStockRestored(ctx)
	f.tx.On("LockLoyaltyBalance", ctx, "u-1").Return(int64(40), nil)
	f.tx.On("AppendLoyalty", ctx, mock.MatchedBy(func(e domain.LoyaltyTransaction) bool {
		return e.Type == domain.LoyaltyAdjusted && e.Points == -40 && e.BalanceAfter == 0
	})).Return(nil).Once()
	f.tx.On("SaveOrderStatus", ctx, o, appendedTo(domain.OrderStatusCancelled)).Return(nil)

	got, err := f.svc.UpdateStatus(ctx, orderNumber, domain.OrderStatusCancelled, "warehouse issue", "admin-1")

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, got.Status)
	assert.False(t, got.LoyaltyPointsCredited)
	f.tx.AssertExpectations(t)
}

func TestCancelOrder_Rejections(t *testing.T) {
	t.Run("shipped order", func(t *testing.T) {
		f := newOrderFixture()
		ctx := context.Background()
		o := placedOrder(domain.OrderStatusShipped, domain.PaymentStatusPaid)
		f.orders.On("GetByNumber", ctx, orderNumber).Return(o, nil)
		f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)

		_, err := f.svc.CancelOrder(ctx, member, orderNumber, "too late")

		assert.ErrorIs(t, err, apperrors.ErrBusinessRule)
		assert.Equal(t, domain.ReasonInvalidTransition, apperrors.ReasonOf(err))
		assert.Equal(t, domain.OrderStatusShipped, o.Status)
		f.tx.AssertNotCalled(t, "AdjustProductStock", mock.Anything, mock.Anything, mock.Anything)
		f.tx.AssertNotCalled(t, "SaveOrderStatus", mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, f.writer.topics())
	})

	t.Run("someone else's order", func(t *testing.T) {
		f := newOrderFixture()
		ctx := context.Background()
		f.orders.On("GetByNumber", ctx, orderNumber).Return(placedOrder(domain.OrderStatusPending, domain.PaymentStatusPending), nil)

		_, err := f.svc.CancelOrder(ctx, domain.Actor{UserID: "u-2"}, orderNumber, "")

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.Empty(t, f.tx.Calls)
	})

	t.Run("already cancelled", func(t *testing.T) {
		f := newOrderFixture()
		ctx := context.Background()
		o := placedOrder(domain.OrderStatusCancelled, domain.PaymentStatusPending)
		f.orders.On("GetByNumber", ctx, orderNumber).Return(o, nil)
		f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)

		got, err := f.svc.CancelOrder(ctx, member, orderNumber, "")

		require.NoError(t, err)
		assert.Same(t, o, got)
		assert.Len(t, got.History, 1)
		assert.Empty(t, f.writer.topics())
	})
}

func TestUpdateStatus_Transitions(t *testing.T) {
	tests := []struct {
		name       string
		from       string
		payment    string
		to         string
		wantErr    error
		wantReason string
		wantSave   bool
	}{
		{"forward", domain.OrderStatusProcessing, domain.PaymentStatusPaid, domain.OrderStatusShipped, nil, "", true},
		{"same status", domain.OrderStatusConfirmed, domain.PaymentStatusPending, domain.OrderStatusConfirmed, nil, "", false},
		{"skipping a step", domain.OrderStatusConfirmed, domain.PaymentStatusPending, domain.OrderStatusShipped, apperrors.ErrBusinessRule, domain.ReasonInvalidTransition, false},
		{"backwards", domain.OrderStatusShipped, domain.PaymentStatusPaid, domain.OrderStatusProcessing, apperrors.ErrBusinessRule, domain.ReasonInvalidTransition, false},
		{"refund unpaid", domain.OrderStatusDelivered, domain.PaymentStatusPending, domain.OrderStatusRefunded, apperrors.ErrBusinessRule, domain.ReasonPaymentNotSettled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrderFixture()
			ctx := context.Background()
			o := placedOrder(tt.from, tt.payment)
			f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)
			f.tx.On("SaveOrderStatus", ctx, o, appendedTo(tt.to)).Return(nil)

			got, err := f.svc.UpdateStatus(ctx, orderNumber, tt.to, "", "admin-1")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.wantReason, apperrors.ReasonOf(err))
				assert.Equal(t, tt.from, o.Status)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.to, got.Status)
			}
			if tt.wantSave {
				f.tx.AssertNumberOfCalls(t, "SaveOrderStatus", 1)
				assert.Equal(t, []string{event.TopicOrderStatusChanged}, f.writer.topics())
			} else {
				f.tx.AssertNotCalled(t, "SaveOrderStatus", mock.Anything, mock.Anything, mock.Anything)
				assert.Empty(t, f.writer.topics())
			}
		})
	}
}

func TestUpdateStatus_ShippedStampsTime(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	o := placedOrder(domain.OrderStatusProcessing, domain.PaymentStatusPaid)
	f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)
	f.tx.On("SaveOrderStatus", ctx, o, appendedTo(domain.OrderStatusShipped)).Return(nil)

	got, err := f.svc.UpdateStatus(ctx, orderNumber, domain.OrderStatusShipped, "handed to carrier", "admin-1")

	require.NoError(t, err)
	require.NotNil(t, got.ShippedAt)
	assert.Equal(t, testNow, *got.ShippedAt)
	last, _ := got.LastHistory()
	assert.Equal(t, domain.OrderStatusProcessing, last.FromStatus)
	assert.Equal(t, "admin-1", last.ChangedBy)
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	f := newOrderFixture()

	_, err := f.svc.UpdateStatus(context.Background(), orderNumber, "lost", "", "admin-1")

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, f.tx.Calls)
}

func TestConfirmPayment_CreditsEarnedPoints(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	o := placedOrder(domain.OrderStatusPending, domain.PaymentStatusPending)
	f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)
	f.tx.On("LockLoyaltyBalance", ctx, "u-1").Return(int64(100), nil)
	f.tx.On("AppendLoyalty", ctx, mock.MatchedBy(func(e domain.LoyaltyTransaction) bool {
		return e.Type == domain.LoyaltyEarned && e.Points == 55 && e.BalanceAfter == 155
	})).Return(nil).Once()
	f.tx.On("SaveOrderStatus", ctx, o, appendedTo(domain.OrderStatusConfirmed)).Return(nil).Once()

	got, err := f.svc.ConfirmPayment(ctx, orderNumber, "pi_123")

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, domain.OrderStatusConfirmed, got.Status)
	assert.Equal(t, "pi_123", got.PaymentReference)
	assert.True(t, got.LoyaltyPointsCredited)
	last, _ := got.LastHistory()
	assert.Equal(t, actorSystem, last.ChangedBy)
	assert.Equal(t, "payment received", last.Note)
	f.tx.AssertExpectations(t)
	assert.Equal(t, []string{event.TopicOrderPaid, event.TopicOrderStatusChanged}, f.writer.topics())
}

func TestConfirmPayment_AlreadyPaidIsNoOp(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	o := placedOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPaid)
	o.LoyaltyPointsCredited = true
	f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)

	got, err := f.svc.ConfirmPayment(ctx, orderNumber, "pi_123")

	require.NoError(t, err)
	assert.Same(t, o, got)
	f.tx.AssertNotCalled(t, "AppendLoyalty", mock.Anything, mock.Anything)
	f.tx.AssertNotCalled(t, "SaveOrderStatus", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.writer.topics())
}

func TestConfirmPayment_ProcessingOrderKeepsStatus(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	o := placedOrder(domain.OrderStatusProcessing, domain.PaymentStatusPending)
	o.UserID = ""
	f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)
	f.tx.On("SaveOrderStatus", ctx, o, []domain.StatusHistory{}).Return(nil)

	got, err := f.svc.ConfirmPayment(ctx, orderNumber, "")

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, got.Status)
	assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)
	assert.False(t, got.LoyaltyPointsCredited)
	assert.Equal(t, []string{event.TopicOrderPaid}, f.writer.topics())
}

func TestConfirmPayment_CancelledOrder(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(placedOrder(domain.OrderStatusCancelled, domain.PaymentStatusPending), nil)

	_, err := f.svc.ConfirmPayment(ctx, orderNumber, "pi_123")

	assert.Equal(t, domain.ReasonInvalidTransition, apperrors.ReasonOf(err))
	f.tx.AssertNotCalled(t, "SaveOrderStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestFailPayment(t *testing.T) {
	t.Run("pending payment fails", func(t *testing.T) {
		f := newOrderFixture()
		ctx := context.Background()
		o := placedOrder(domain.OrderStatusPending, domain.PaymentStatusPending)
		f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)
		f.tx.On("SaveOrderStatus", ctx, o, []domain.StatusHistory(nil)).Return(nil).Once()

		got, err := f.svc.FailPayment(ctx, orderNumber, "card declined")

		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusFailed, got.PaymentStatus)
		assert.Equal(t, domain.OrderStatusPending, got.Status)
		f.tx.AssertExpectations(t)
	})

	t.Run("paid order untouched", func(t *testing.T) {
		f := newOrderFixture()
		ctx := context.Background()
		o := placedOrder(domain.OrderStatusConfirmed, domain.PaymentStatusPaid)
		f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)

		got, err := f.svc.FailPayment(ctx, orderNumber, "late failure")

		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)
		f.tx.AssertNotCalled(t, "SaveOrderStatus", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestHandlePaymentCallback(t *testing.T) {
	payload := []byte(`{"type":"payment_intent.succeeded"}`)

	t.Run("success confirms the order", func(t *testing.T) {
		f := newOrderFixture()
		ctx := context.Background()
		o := placedOrder(domain.OrderStatusPending, domain.PaymentStatusPending)
		o.UserID = ""
		f.payments.On("HandleCallback", ctx, domain.PaymentMethodCard, payload, "sig").Return(&client.CallbackResult{
			Success: true, OrderNumber: orderNumber, TransactionRef: "pi_9",
		}, nil)
		f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)
		f.tx.On("SaveOrderStatus", ctx, o, appendedTo(domain.OrderStatusConfirmed)).Return(nil)

		res, err := f.svc.HandlePaymentCallback(ctx, domain.PaymentMethodCard, payload, "sig")

		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, domain.PaymentStatusPaid, o.PaymentStatus)
		assert.Equal(t, "pi_9", o.PaymentReference)
	})

	t.Run("failure marks payment failed", func(t *testing.T) {
		f := newOrderFixture()
		ctx := context.Background()
		o := placedOrder(domain.OrderStatusPending, domain.PaymentStatusPending)
		f.payments.On("HandleCallback", ctx, domain.PaymentMethodCard, payload, "sig").Return(&client.CallbackResult{
			Success: false, OrderNumber: orderNumber, Message: "insufficient funds",
		}, nil)
		f.tx.On("LockOrderByNumber", ctx, orderNumber).Return(o, nil)
		f.tx.On("SaveOrderStatus", ctx, o, []domain.StatusHistory(nil)).Return(nil)

		_, err := f.svc.HandlePaymentCallback(ctx, domain.PaymentMethodCard, payload, "sig")

		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusFailed, o.PaymentStatus)
	})

	t.Run("ignored event", func(t *testing.T) {
		f := newOrderFixture()
		ctx := context.Background()
		f.payments.On("HandleCallback", ctx, domain.PaymentMethodCard, payload, "sig").Return(&client.CallbackResult{Ignored: true}, nil)

		res, err := f.svc.HandlePaymentCallback(ctx, domain.PaymentMethodCard, payload, "sig")

		require.NoError(t, err)
		assert.True(t, res.Ignored)
		assert.Empty(t, f.tx.Calls)
	})

	t.Run("bad signature", func(t *testing.T) {
		f := newOrderFixture()
		ctx := context.Background()
		f.payments.On("HandleCallback", ctx, domain.PaymentMethodCard, payload, "bad").
			Return(nil, apperrors.Unauthorized("invalid webhook signature"))

		_, err := f.svc.HandlePaymentCallback(ctx, domain.PaymentMethodCard, payload, "bad")

		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
		assert.Empty(t, f.tx.Calls)
	})
}

func TestGetOrder_Ownership(t *testing.T) {
	guestOrder := placedOrder(domain.OrderStatusPending, domain.PaymentStatusPending)
	guestOrder.UserID = ""
	guestOrder.SessionToken = "sess-1"

	tests := []struct {
		name    string
		order   *domain.Order
		actor   domain.Actor
		wantErr error
	}{
		{"owner", placedOrder(domain.OrderStatusPending, domain.PaymentStatusPending), member, nil},
		{"other user", placedOrder(domain.OrderStatusPending, domain.PaymentStatusPending), domain.Actor{UserID: "u-2"}, apperrors.ErrNotFound},
		{"session of a user order", placedOrder(domain.OrderStatusPending, domain.PaymentStatusPending), guest, apperrors.ErrNotFound},
		{"guest session", guestOrder, guest, nil},
		{"other session", guestOrder, domain.Actor{SessionToken: "sess-2"}, apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrderFixture()
			ctx := context.Background()
			f.orders.On("GetByNumber", ctx, orderNumber).Return(tt.order, nil)

			got, err := f.svc.GetOrder(ctx, tt.actor, orderNumber)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, orderNumber, got.Number)
		})
	}
}

func TestListOrders(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	p := pagination.Params{Page: 1, PerPage: 20}
	f.orders.On("ListByUser", ctx, "u-1", p).Return([]domain.Order{*placedOrder(domain.OrderStatusPending, domain.PaymentStatusPending)}, 1, nil)

	orders, total, err := f.svc.ListOrders(ctx, member, p)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Equal(t, 1, total)

	_, _, err = f.svc.ListOrders(ctx, guest, p)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
