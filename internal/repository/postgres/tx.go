package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// ReasonLockTimeout is returned when a row lock could not be taken in time.
const ReasonLockTimeout = "lock_timeout"

const constraintOrderIdempotencyKey = "orders_idempotency_key_key"

// UnitOfWork runs checkout and order lifecycle writes in one READ COMMITTED
// transaction with a bounded lock wait.
type UnitOfWork struct {
	db          database.DBTX
	lockTimeout time.Duration
}

// NewUnitOfWork creates a unit of work. A zero lockTimeout waits forever.
func NewUnitOfWork(db database.DBTX, lockTimeout time.Duration) *UnitOfWork {
	return &UnitOfWork{db: db, lockTimeout: lockTimeout}
}

// WithinTx implements repository.UnitOfWork.
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	return database.WithinTx(ctx, u.db, opts, func(tx pgx.Tx) error {
		if u.lockTimeout > 0 {
			timeout := fmt.Sprintf("%dms", u.lockTimeout.Milliseconds())
			if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
				return fmt.Errorf("set lock timeout: %w", err)
			}
		}
		return fn(ctx, &pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

var _ repository.Tx = (*pgTx)(nil)

func lockError(err error, what string) error {
	if database.IsLockNotAvailable(err) {
		return apperrors.Conflict(ReasonLockTimeout, what+" is busy, please try again")
	}
	return err
}

func (t *pgTx) LockProduct(ctx context.Context, productID string) (rec domain.StockRecord, err error) {
	query := `
		SELECT name, stock_quantity, is_active AND deleted_at IS NULL, track_inventory, allow_backorders
		FROM products
		WHERE id = $1
		FOR UPDATE`
	ctx, end := database.TraceQuery(ctx, "LockProduct", query)
	defer func() { end(err) }()

	err = t.tx.QueryRow(ctx, query, productID).Scan(
		&rec.Name, &rec.Available, &rec.Purchasable, &rec.TrackInventory, &rec.AllowBackorders,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StockRecord{Name: "product " + productID}, nil
	}
	if err != nil {
		return rec, fmt.Errorf("lock product: %w", lockError(err, "product"))
	}
	return rec, nil
}

func (t *pgTx) LockVariant(ctx context.Context, productID, variantID string) (rec domain.StockRecord, err error) {
	query := `
		SELECT p.name || ' - ' || v.name, v.stock_quantity,
			v.is_active AND p.is_active AND p.deleted_at IS NULL,
			p.track_inventory, p.allow_backorders
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1 AND v.product_id = $2
		FOR UPDATE OF v`
	ctx, end := database.TraceQuery(ctx, "LockVariant", query)
	defer func() { end(err) }()

	err = t.tx.QueryRow(ctx, query, variantID, productID).Scan(
		&rec.Name, &rec.Available, &rec.Purchasable, &rec.TrackInventory, &rec.AllowBackorders,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StockRecord{Name: "variant " + variantID}, nil
	}
	if err != nil {
		return rec, fmt.Errorf("lock variant: %w", lockError(err, "variant"))
	}
	return rec, nil
}

func (t *pgTx) LockBundle(ctx context.Context, bundleID string) (*domain.Bundle, error) {
	b, err := scanBundle(t.tx.QueryRow(ctx, `SELECT `+bundleColumns+` FROM bundles WHERE id = $1 FOR UPDATE`, bundleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("bundle", bundleID)
		}
		return nil, fmt.Errorf("lock bundle: %w", lockError(err, "bundle"))
	}
	return b, nil
}

func (t *pgTx) AdjustProductStock(ctx context.Context, productID string, delta int) (err error) {
	query := `UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = NOW() WHERE id = $1`
	ctx, end := database.TraceQuery(ctx, "AdjustProductStock", query)
	defer func() { end(err) }()

	if _, err = t.tx.Exec(ctx, query, productID, delta); err != nil {
		return fmt.Errorf("adjust product stock: %w", err)
	}
	return nil
}

func (t *pgTx) AdjustVariantStock(ctx context.Context, variantID string, delta int) (err error) {
	query := `UPDATE product_variants SET stock_quantity = stock_quantity + $2, updated_at = NOW() WHERE id = $1`
	ctx, end := database.TraceQuery(ctx, "AdjustVariantStock", query)
	defer func() { end(err) }()

	if _, err = t.tx.Exec(ctx, query, variantID, delta); err != nil {
		return fmt.Errorf("adjust variant stock: %w", err)
	}
	return nil
}

func (t *pgTx) RecordBundleSale(ctx context.Context, bundleID string, units int, revenue int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE bundles
		SET stock_sold = GREATEST(stock_sold + $2::int, 0),
			purchases = purchases + GREATEST($2::int, 0),
			revenue = revenue + GREATEST($3::bigint, 0),
			updated_at = NOW()
		WHERE id = $1`, bundleID, units, revenue)
	if err != nil {
		return fmt.Errorf("record bundle sale: %w", err)
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) (err error) {
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	query := `
		INSERT INTO orders (id, number, user_id, session_token, email, status, payment_status, payment_method,
			payment_reference, currency, subtotal, discount, shipping, loyalty_discount,
			loyalty_points_redeemed, loyalty_points_earned, loyalty_points_credited, total,
			coupon_code, coupon_id, shipping_method, shipping_address, estimated_delivery, notes,
			idempotency_key, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, NULLIF($20, '')::uuid, $21, $22, $23, $24, NULLIF($25, ''), $26, $27)`
	ctx, end := database.TraceQuery(ctx, "InsertOrder", query)
	defer func() { end(err) }()

	_, err = t.tx.Exec(ctx, query,
		o.ID, o.Number, o.UserID, o.SessionToken, o.Email, o.Status, o.PaymentStatus, o.PaymentMethod,
		o.PaymentReference, o.Currency, o.Subtotal, o.Discount, o.Shipping, o.LoyaltyDiscount,
		o.LoyaltyPointsRedeemed, o.LoyaltyPointsEarned, o.LoyaltyPointsCredited, o.Total,
		o.CouponCode, o.CouponID, o.ShippingMethod, address, o.EstimatedDelivery, o.Notes,
		o.IdempotencyKey, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, constraintOrderIdempotencyKey) {
			return apperrors.AlreadyExists("order", "idempotency_key", o.IdempotencyKey)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, variant_id, product_name, sku, image_url,
			unit_price, quantity, line_total, bundle_id, is_bundle_anchor, parent_item_id,
			bundle_units, bundle_discount, position)
		VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9, $10,
			NULLIF($11, '')::uuid, $12, NULLIF($13, '')::uuid, $14, $15, $16)`

	for i, it := range o.Items {
		if _, err = t.tx.Exec(ctx, itemQuery,
			it.ID, o.ID, it.ProductID, it.VariantID, it.ProductName, it.SKU, it.ImageURL,
			it.UnitPrice, it.Quantity, it.LineTotal(), it.BundleID, it.IsBundleAnchor, it.ParentItemID,
			it.BundleUnits, it.BundleDiscount, i,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return t.insertHistory(ctx, o.History)
}

func (t *pgTx) insertHistory(ctx context.Context, history []domain.StatusHistory) error {
	for _, h := range history {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_status_history (id, order_id, from_status, to_status, note, changed_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			h.ID, h.OrderID, h.FromStatus, h.ToStatus, h.Note, h.ChangedBy, h.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order history: %w", err)
		}
	}
	return nil
}

func (t *pgTx) RedeemCoupon(ctx context.Context, u domain.CouponUsage) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE coupons
		SET times_used = times_used + 1, updated_at = NOW()
		WHERE id = $1 AND (usage_limit IS NULL OR times_used < usage_limit)`, u.CouponID)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Conflict(domain.ReasonCouponExhausted, "coupon usage limit reached, please review your cart")
	}

	if _, err := t.tx.Exec(ctx, `
		INSERT INTO coupon_usages (id, coupon_id, user_id, order_id, discount, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)`,
		u.ID, u.CouponID, u.UserID, u.OrderID, u.Discount, u.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert coupon usage: %w", err)
	}
	return nil
}

func (t *pgTx) LockLoyaltyBalance(ctx context.Context, userID string) (int64, error) {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO loyalty_accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID,
	); err != nil {
		return 0, fmt.Errorf("ensure loyalty account: %w", err)
	}

	var balance int64
	if err := t.tx.QueryRow(ctx,
		`SELECT balance FROM loyalty_accounts WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&balance); err != nil {
		return 0, fmt.Errorf("lock loyalty balance: %w", lockError(err, "loyalty account"))
	}
	return balance, nil
}

func (t *pgTx) AppendLoyalty(ctx context.Context, e domain.LoyaltyTransaction) error {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO loyalty_transactions (id, user_id, type, points, balance_after, order_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, $7, $8)`,
		e.ID, e.UserID, e.Type, e.Points, e.BalanceAfter, e.OrderID, e.Description, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert loyalty transaction: %w", err)
	}

	if _, err := t.tx.Exec(ctx,
		`UPDATE loyalty_accounts SET balance = $2, updated_at = $3 WHERE user_id = $1`,
		e.UserID, e.BalanceAfter, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("update loyalty balance: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteCart(ctx context.Context, cartID string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (t *pgTx) LockOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE number = $1 FOR UPDATE`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", number)
		}
		return nil, fmt.Errorf("lock order: %w", lockError(err, "order"))
	}

	items, err := loadOrderItems(ctx, t.tx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (t *pgTx) SaveOrderStatus(ctx context.Context, o *domain.Order, history []domain.StatusHistory) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, payment_reference = $4, loyalty_points_credited = $5,
			shipped_at = $6, delivered_at = $7, cancelled_at = $8, updated_at = $9
		WHERE id = $1`,
		o.ID, o.Status, o.PaymentStatus, o.PaymentReference, o.LoyaltyPointsCredited,
		o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("order", o.Number)
	}
	return t.insertHistory(ctx, history)
}
