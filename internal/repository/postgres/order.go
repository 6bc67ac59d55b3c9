package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

// OrderRepository reads orders with their items and history.
type OrderRepository struct {
	db database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(db database.DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `
	id, number, COALESCE(user_id, ''), COALESCE(session_token, ''), email, status, payment_status,
	payment_method, payment_reference, currency, subtotal, discount, shipping, loyalty_discount,
	loyalty_points_redeemed, loyalty_points_earned, loyalty_points_credited, total, coupon_code,
	COALESCE(coupon_id::text, ''), shipping_method, shipping_address, estimated_delivery, notes,
	COALESCE(idempotency_key, ''), shipped_at, delivered_at, cancelled_at, created_at, updated_at`

func scanOrder(row scanner, extra ...any) (*domain.Order, error) {
	var (
		o       domain.Order
		address []byte
	)
	dest := []any{
		&o.ID, &o.Number, &o.UserID, &o.SessionToken, &o.Email, &o.Status, &o.PaymentStatus,
		&o.PaymentMethod, &o.PaymentReference, &o.Currency, &o.Subtotal, &o.Discount, &o.Shipping, &o.LoyaltyDiscount,
		&o.LoyaltyPointsRedeemed, &o.LoyaltyPointsEarned, &o.LoyaltyPointsCredited, &o.Total, &o.CouponCode,
		&o.CouponID, &o.ShippingMethod, &address, &o.EstimatedDelivery, &o.Notes,
		&o.IdempotencyKey, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt, &o.CreatedAt, &o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address: %w", err)
		}
	}
	return &o, nil
}

// GetByNumber returns an order with its items and status history.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return r.getBy(ctx, "number", number)
}

// GetByIdempotencyKey returns the order placed with key.
func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return r.getBy(ctx, "idempotency_key", key)
}

func (r *OrderRepository) getBy(ctx context.Context, column, value string) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s = $1`, orderColumns, column)

	o, err := scanOrder(r.db.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", value)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := loadOrderItems(ctx, r.db, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []domain.OrderItem{}
	}

	if o.History, err = r.loadHistory(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

// ListByUser returns a page of the user's orders, newest first, with items.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, p pagination.Params) ([]domain.Order, int, error) {
	query := `SELECT ` + orderColumns + `, count(*) OVER() AS total_count
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, p.Limit(), p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var total int
	orders := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, total, nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := loadOrderItems(ctx, r.db, ids...)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []domain.OrderItem{}
		}
	}
	return orders, total, nil
}

// loadOrderItems batch-loads items for the given orders, grouped by order id.
func loadOrderItems(ctx context.Context, q database.Querier, orderIDs ...string) (map[string][]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, COALESCE(product_id::text, ''), COALESCE(variant_id::text, ''), product_name,
			sku, image_url, unit_price, quantity, COALESCE(bundle_id::text, ''), is_bundle_anchor,
			COALESCE(parent_item_id::text, ''), bundle_units, bundle_discount
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position`

	rows, err := q.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	byOrder := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.ProductName,
			&it.SKU, &it.ImageURL, &it.UnitPrice, &it.Quantity, &it.BundleID, &it.IsBundleAnchor,
			&it.ParentItemID, &it.BundleUnits, &it.BundleDiscount,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item rows: %w", err)
	}
	return byOrder, nil
}

func (r *OrderRepository) loadHistory(ctx context.Context, orderID string) ([]domain.StatusHistory, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, from_status, to_status, note, changed_by, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order history: %w", err)
	}
	defer rows.Close()

	var history []domain.StatusHistory
	for rows.Next() {
		var h domain.StatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.ToStatus, &h.Note, &h.ChangedBy, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order history: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order history rows: %w", err)
	}
	return history, nil
}
