package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// CouponRepository reads coupons and their usage.
type CouponRepository struct {
	db database.DBTX
}

// NewCouponRepository creates a new PostgreSQL-backed coupon repository.
func NewCouponRepository(db database.DBTX) *CouponRepository {
	return &CouponRepository{db: db}
}

// GetByCode returns the coupon with the normalized code.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `
		SELECT id, code, type, value, min_order_amount, max_discount, usage_limit, per_user_limit,
			first_order_only, is_active, starts_at, expires_at, times_used
		FROM coupons
		WHERE code = $1`

	var c domain.Coupon
	err := r.db.QueryRow(ctx, query, domain.NormalizeCouponCode(code)).Scan(
		&c.ID, &c.Code, &c.Type, &c.Value, &c.MinOrderAmount, &c.MaxDiscount, &c.UsageLimit, &c.PerUserLimit,
		&c.FirstOrderOnly, &c.IsActive, &c.StartsAt, &c.ExpiresAt, &c.TimesUsed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("coupon", code)
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return &c, nil
}

// CountUsageByUser counts how often userID redeemed the coupon.
func (r *CouponRepository) CountUsageByUser(ctx context.Context, couponID, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`, couponID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count coupon usage: %w", err)
	}
	return n, nil
}

// CountOrdersByUser counts the user's orders that were not cancelled.
func (r *CouponRepository) CountOrdersByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status <> $2`, userID, domain.OrderStatusCancelled,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count user orders: %w", err)
	}
	return n, nil
}
