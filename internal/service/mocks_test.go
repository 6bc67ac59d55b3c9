package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"

	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/repository"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/pagination"
)

// --- Mock Repositories ---

type mockCartRepository struct {
	mock.Mock
}

func (m *mockCartRepository) GetByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartRepository) GetBySession(ctx context.Context, sessionToken string) (*domain.Cart, error) {
	args := m.Called(ctx, sessionToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	return m.Called(ctx, cart).Error(0)
}

func (m *mockCartRepository) Delete(ctx context.Context, cartID string) error {
	return m.Called(ctx, cartID).Error(0)
}

type mockCatalogRepository struct {
	mock.Mock
}

func (m *mockCatalogRepository) GetProducts(ctx context.Context, ids []string) ([]*domain.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Product), args.Error(1)
}

func (m *mockCatalogRepository) GetVariants(ctx context.Context, ids []string) ([]*domain.Variant, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Variant), args.Error(1)
}

type mockBundleRepository struct {
	mock.Mock
}

func (m *mockBundleRepository) GetByID(ctx context.Context, id string) (*domain.Bundle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Bundle), args.Error(1)
}

func (m *mockBundleRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Bundle, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Bundle), args.Error(1)
}

func (m *mockBundleRepository) IncrementAddToCart(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockCouponRepository struct {
	mock.Mock
}

func (m *mockCouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Coupon), args.Error(1)
}

func (m *mockCouponRepository) CountUsageByUser(ctx context.Context, couponID, userID string) (int, error) {
	args := m.Called(ctx, couponID, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockCouponRepository) CountOrdersByUser(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type mockLoyaltyRepository struct {
	mock.Mock
}

func (m *mockLoyaltyRepository) Balance(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLoyaltyRepository) ListTransactions(ctx context.Context, userID string, p pagination.Params) ([]domain.LoyaltyTransaction, int, error) {
	args := m.Called(ctx, userID, p)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.LoyaltyTransaction), args.Int(1), args.Error(2)
}

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) ListByUser(ctx context.Context, userID string, p pagination.Params) ([]domain.Order, int, error) {
	args := m.Called(ctx, userID, p)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

type mockIdempotencyStore struct {
	mock.Mock
}

func (m *mockIdempotencyStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockIdempotencyStore) Complete(ctx context.Context, key, orderNumber string, ttl time.Duration) error {
	return m.Called(ctx, key, orderNumber, ttl).Error(0)
}

func (m *mockIdempotencyStore) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockIdempotencyStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

// --- Mock Transaction ---

type mockTx struct {
	mock.Mock
}

func (m *mockTx) LockProduct(ctx context.Context, productID string) (domain.StockRecord, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(domain.StockRecord), args.Error(1)
}

func (m *mockTx) LockVariant(ctx context.Context, productID, variantID string) (domain.StockRecord, error) {
	args := m.Called(ctx, productID, variantID)
	return args.Get(0).(domain.StockRecord), args.Error(1)
}

func (m *mockTx) LockBundle(ctx context.Context, bundleID string) (*domain.Bundle, error) {
	args := m.Called(ctx, bundleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Bundle), args.Error(1)
}

func (m *mockTx) AdjustProductStock(ctx context.Context, productID string, delta int) error {
	return m.Called(ctx, productID, delta).Error(0)
}

func (m *mockTx) AdjustVariantStock(ctx context.Context, variantID string, delta int) error {
	return m.Called(ctx, variantID, delta).Error(0)
}

func (m *mockTx) RecordBundleSale(ctx context.Context, bundleID string, units int, revenue int64) error {
	return m.Called(ctx, bundleID, units, revenue).Error(0)
}

func (m *mockTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *mockTx) RedeemCoupon(ctx context.Context, usage domain.CouponUsage) error {
	return m.Called(ctx, usage).Error(0)
}

func (m *mockTx) LockLoyaltyBalance(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTx) AppendLoyalty(ctx context.Context, entry domain.LoyaltyTransaction) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockTx) DeleteCart(ctx context.Context, cartID string) error {
	return m.Called(ctx, cartID).Error(0)
}

func (m *mockTx) LockOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockTx) SaveOrderStatus(ctx context.Context, order *domain.Order, history []domain.StatusHistory) error {
	return m.Called(ctx, order, history).Error(0)
}

// txRunner runs every unit of work against the same mockTx and records
// whether the last one committed.
type txRunner struct {
	tx        *mockTx
	committed bool
}

func (r *txRunner) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	err := fn(ctx, r.tx)
	r.committed = err == nil
	return err
}

// --- Mock Collaborators ---

type mockShipping struct {
	mock.Mock
}

func (m *mockShipping) FindZone(ctx context.Context, city string) (*client.ShippingZone, error) {
	args := m.Called(ctx, city)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.ShippingZone), args.Error(1)
}

func (m *mockShipping) ListMethods(ctx context.Context, zoneID string) ([]client.ShippingMethod, error) {
	args := m.Called(ctx, zoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]client.ShippingMethod), args.Error(1)
}

func (m *mockShipping) CalculateCost(ctx context.Context, req client.CostRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockShipping) EstimatedDelivery(ctx context.Context, methodID, zoneID string) (string, error) {
	args := m.Called(ctx, methodID, zoneID)
	return args.String(0), args.Error(1)
}

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) CreatePayment(ctx context.Context, req client.PaymentRequest) (*client.PaymentInitiation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.PaymentInitiation), args.Error(1)
}

func (m *mockPayments) HandleCallback(ctx context.Context, method string, payload []byte, signature string) (*client.CallbackResult, error) {
	args := m.Called(ctx, method, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.CallbackResult), args.Error(1)
}

// --- Test Helpers ---

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func (w *recordingWriter) topics() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.msgs))
	for _, m := range w.msgs {
		out = append(out, m.Topic)
	}
	return out
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestProducer(w *recordingWriter) *event.Producer {
	logger := newTestLogger()
	return event.NewProducer(pkgkafka.NewProducerWithWriter(w, "storefront", logger), logger)
}

var testNow = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func ptr[T any](v T) *T { return &v }

func shirt() *domain.Product {
	return &domain.Product{
		ID: "p-shirt", Name: "Shirt", SKU: "SH-1", Price: 2000, StockQuantity: 10,
		IsActive: true, TrackInventory: true, Weight: 300,
	}
}

func belt() *domain.Product {
	return &domain.Product{
		ID: "p-belt", Name: "Belt", SKU: "BE-1", Price: 1500, StockQuantity: 5,
		IsActive: true, TrackInventory: true, Weight: 200,
	}
}

func cartWith(actor domain.Actor, items ...domain.CartItem) *domain.Cart {
	c := domain.NewCart(actor, testNow)
	c.ID = "cart-1"
	c.Items = items
	return c
}
