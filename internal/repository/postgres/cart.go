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
)

// CartRepository implements repository.CartRepository using PostgreSQL.
type CartRepository struct {
	db database.DBTX
}

// NewCartRepository creates a new PostgreSQL-backed cart repository.
func NewCartRepository(db database.DBTX) *CartRepository {
	return &CartRepository{db: db}
}

const cartColumns = `id, COALESCE(user_id, ''), COALESCE(session_token, ''), coupon_code, created_at, updated_at`

// GetByUser returns the cart owned by userID.
func (r *CartRepository) GetByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	return r.getBy(ctx, "user_id", userID)
}

// GetBySession returns the cart owned by an anonymous session.
func (r *CartRepository) GetBySession(ctx context.Context, sessionToken string) (*domain.Cart, error) {
	return r.getBy(ctx, "session_token", sessionToken)
}

func (r *CartRepository) getBy(ctx context.Context, column, value string) (*domain.Cart, error) {
	query := fmt.Sprintf(`SELECT %s FROM carts WHERE %s = $1`, cartColumns, column)

	var c domain.Cart
	err := r.db.QueryRow(ctx, query, value).Scan(
		&c.ID, &c.UserID, &c.SessionToken, &c.CouponCode, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("cart", value)
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	items, err := r.loadItems(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Items = items
	return &c, nil
}

func (r *CartRepository) loadItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	query := `
		SELECT id, COALESCE(product_id::text, ''), COALESCE(variant_id::text, ''), quantity,
			COALESCE(bundle_id::text, ''), is_bundle_anchor, COALESCE(parent_item_id::text, ''),
			bundle_selection, bundle_quantity, created_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY position`

	rows, err := r.db.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		var (
			it        domain.CartItem
			selection []byte
		)
		if err := rows.Scan(
			&it.ID, &it.ProductID, &it.VariantID, &it.Quantity,
			&it.BundleID, &it.IsBundleAnchor, &it.ParentItemID,
			&selection, &it.BundleQuantity, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		if len(selection) > 0 && string(selection) != "null" {
			if err := json.Unmarshal(selection, &it.BundleSelection); err != nil {
				return nil, fmt.Errorf("unmarshal bundle selection: %w", err)
			}
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart item rows: %w", err)
	}
	return items, nil
}

// Save upserts the cart and replaces all of its lines in one transaction.
func (r *CartRepository) Save(ctx context.Context, c *domain.Cart) error {
	return database.WithinTx(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO carts (id, user_id, session_token, coupon_code, created_at, updated_at)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6)
			ON CONFLICT (id) DO UPDATE
			SET user_id = EXCLUDED.user_id,
				session_token = EXCLUDED.session_token,
				coupon_code = EXCLUDED.coupon_code,
				updated_at = EXCLUDED.updated_at`,
			c.ID, c.UserID, c.SessionToken, c.CouponCode, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert cart: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, c.ID); err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}

		itemQuery := `
			INSERT INTO cart_items (id, cart_id, product_id, variant_id, quantity, bundle_id,
				is_bundle_anchor, parent_item_id, bundle_selection, bundle_quantity, position, created_at)
			VALUES ($1, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, NULLIF($6, '')::uuid,
				$7, NULLIF($8, '')::uuid, $9, $10, $11, $12)`

		for i, it := range c.Items {
			var selection []byte
			if len(it.BundleSelection) > 0 {
				selection, err = json.Marshal(it.BundleSelection)
				if err != nil {
					return fmt.Errorf("marshal bundle selection: %w", err)
				}
			}
			if _, err := tx.Exec(ctx, itemQuery,
				it.ID, c.ID, it.ProductID, it.VariantID, it.Quantity, it.BundleID,
				it.IsBundleAnchor, it.ParentItemID, selection, it.BundleQuantity, i, it.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert cart item: %w", err)
			}
		}
		return nil
	})
}

// Delete removes a cart; its lines cascade.
func (r *CartRepository) Delete(ctx context.Context, cartID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM carts WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
