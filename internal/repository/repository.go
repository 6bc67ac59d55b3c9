package repository

import (
	"context"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/pagination"
)

// CartRepository persists carts and their lines. Writes are last-write-wins.
type CartRepository interface {
	// GetByUser returns the cart owned by a signed-in user.
	GetByUser(ctx context.Context, userID string) (*domain.Cart, error)

	// GetBySession returns the cart owned by an anonymous session.
	GetBySession(ctx context.Context, sessionToken string) (*domain.Cart, error)

	// Save upserts the cart row and replaces its lines.
	Save(ctx context.Context, cart *domain.Cart) error

	// Delete removes a cart and its lines. Deleting a missing cart is not an error.
	Delete(ctx context.Context, cartID string) error
}

// CatalogRepository reads the product catalog. Missing ids are omitted.
type CatalogRepository interface {
	GetProducts(ctx context.Context, ids []string) ([]*domain.Product, error)
	GetVariants(ctx context.Context, ids []string) ([]*domain.Variant, error)
}

// BundleRepository reads bundles with their items and slots.
type BundleRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Bundle, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Bundle, error)

	// IncrementAddToCart bumps the add-to-cart counter by one.
	IncrementAddToCart(ctx context.Context, id string) error
}

// CouponRepository reads coupons and redemption history.
type CouponRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	CountUsageByUser(ctx context.Context, couponID, userID string) (int, error)

	// CountOrdersByUser counts the user's orders that were not cancelled.
	CountOrdersByUser(ctx context.Context, userID string) (int, error)
}

// LoyaltyRepository reads loyalty balances and ledgers.
type LoyaltyRepository interface {
	Balance(ctx context.Context, userID string) (int64, error)
	ListTransactions(ctx context.Context, userID string, p pagination.Params) ([]domain.LoyaltyTransaction, int, error)
}

// OrderRepository reads orders with their items and history.
type OrderRepository interface {
	GetByNumber(ctx context.Context, number string) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string, p pagination.Params) ([]domain.Order, int, error)
}

// Tx is the set of writes that must happen atomically. Lock* methods take
// row locks held until the transaction ends.
type Tx interface {
	LockProduct(ctx context.Context, productID string) (domain.StockRecord, error)
	LockVariant(ctx context.Context, productID, variantID string) (domain.StockRecord, error)
	LockBundle(ctx context.Context, bundleID string) (*domain.Bundle, error)

	// AdjustProductStock adds delta (negative to take) to a product's stock.
	AdjustProductStock(ctx context.Context, productID string, delta int) error
	AdjustVariantStock(ctx context.Context, variantID string, delta int) error

	// RecordBundleSale adds units to stock_sold and purchase telemetry.
	// Negative units reverse a sale.
	RecordBundleSale(ctx context.Context, bundleID string, units int, revenue int64) error

	// InsertOrder writes the order, its items and its history.
	InsertOrder(ctx context.Context, order *domain.Order) error

	// RedeemCoupon increments times_used while it is below the usage limit
	// and records the usage. It returns a conflict when the limit is hit.
	RedeemCoupon(ctx context.Context, usage domain.CouponUsage) error

	LockLoyaltyBalance(ctx context.Context, userID string) (int64, error)

	// AppendLoyalty inserts the ledger entry and sets the account balance to
	// entry.BalanceAfter.
	AppendLoyalty(ctx context.Context, entry domain.LoyaltyTransaction) error

	DeleteCart(ctx context.Context, cartID string) error

	LockOrderByNumber(ctx context.Context, number string) (*domain.Order, error)

	// SaveOrderStatus persists status, payment and timestamp fields and
	// appends the given history entries.
	SaveOrderStatus(ctx context.Context, order *domain.Order, history []domain.StatusHistory) error
}

// UnitOfWork runs fn in one transaction, committing only if fn returns nil.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// IdempotencyStore guards place-order requests carrying an Idempotency-Key.
type IdempotencyStore interface {
	// Acquire claims key for ttl. It returns false when another request
	// holds or has completed the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Complete records the order number produced for key.
	Complete(ctx context.Context, key, orderNumber string, ttl time.Duration) error

	// Release drops an in-flight claim so the client can retry.
	Release(ctx context.Context, key string) error

	// Lookup returns the order number recorded for key. The bool is false
	// while the key is unknown or still in flight.
	Lookup(ctx context.Context, key string) (string, bool, error)
}
