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

// BundleRepository reads bundles with their items and slots.
type BundleRepository struct {
	db database.DBTX
}

// NewBundleRepository creates a new PostgreSQL-backed bundle repository.
func NewBundleRepository(db database.DBTX) *BundleRepository {
	return &BundleRepository{db: db}
}

const bundleColumns = `
	id, name, slug, description, type, discount_type, discount_value, display_mode,
	is_active, starts_at, ends_at, stock_limit, stock_sold,
	views, add_to_carts, purchases, revenue, created_at, updated_at`

func scanBundle(row scanner) (*domain.Bundle, error) {
	var b domain.Bundle
	err := row.Scan(
		&b.ID, &b.Name, &b.Slug, &b.Description, &b.Type, &b.DiscountType, &b.DiscountValue, &b.DisplayMode,
		&b.IsActive, &b.StartsAt, &b.EndsAt, &b.StockLimit, &b.StockSold,
		&b.Stats.Views, &b.Stats.AddToCarts, &b.Stats.Purchases, &b.Stats.Revenue, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetByID returns a bundle with its items and slots.
func (r *BundleRepository) GetByID(ctx context.Context, id string) (*domain.Bundle, error) {
	b, err := scanBundle(r.db.QueryRow(ctx, `SELECT `+bundleColumns+` FROM bundles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("bundle", id)
		}
		return nil, fmt.Errorf("get bundle: %w", err)
	}
	if err := r.loadParts(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GetByIDs returns the bundles that exist among ids.
func (r *BundleRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Bundle, error) {
	bundles := make([]*domain.Bundle, 0, len(ids))
	for _, id := range ids {
		b, err := r.GetByID(ctx, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, b)
	}
	return bundles, nil
}

func (r *BundleRepository) loadParts(ctx context.Context, b *domain.Bundle) error {
	rows, err := r.db.Query(ctx, `
		SELECT product_id, COALESCE(variant_id::text, ''), quantity, price_override
		FROM bundle_items
		WHERE bundle_id = $1
		ORDER BY position`, b.ID)
	if err != nil {
		return fmt.Errorf("query bundle items: %w", err)
	}
	for rows.Next() {
		var it domain.BundleItem
		if err := rows.Scan(&it.ProductID, &it.VariantID, &it.Quantity, &it.PriceOverride); err != nil {
			rows.Close()
			return fmt.Errorf("scan bundle item: %w", err)
		}
		b.Items = append(b.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate bundle item rows: %w", err)
	}

	if b.Type != domain.BundleTypeConfigurable {
		return nil
	}

	rows, err = r.db.Query(ctx, `
		SELECT s.id, s.name, s.position, s.min_selections, s.max_selections, s.is_required,
			sp.product_id, sp.price_override
		FROM bundle_slots s
		LEFT JOIN bundle_slot_products sp ON sp.slot_id = s.id
		WHERE s.bundle_id = $1
		ORDER BY s.position, sp.position`, b.ID)
	if err != nil {
		return fmt.Errorf("query bundle slots: %w", err)
	}
	defer rows.Close()

	index := map[string]int{}
	for rows.Next() {
		var (
			slot      domain.BundleSlot
			productID *string
			override  *int64
		)
		if err := rows.Scan(
			&slot.ID, &slot.Name, &slot.Position, &slot.MinSelections, &slot.MaxSelections, &slot.IsRequired,
			&productID, &override,
		); err != nil {
			return fmt.Errorf("scan bundle slot: %w", err)
		}
		i, ok := index[slot.ID]
		if !ok {
			i = len(b.Slots)
			index[slot.ID] = i
			b.Slots = append(b.Slots, slot)
		}
		if productID != nil {
			b.Slots[i].Products = append(b.Slots[i].Products, domain.SlotProduct{ProductID: *productID, PriceOverride: override})
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate bundle slot rows: %w", err)
	}
	return nil
}

// IncrementAddToCart bumps the add-to-cart counter.
func (r *BundleRepository) IncrementAddToCart(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `UPDATE bundles SET add_to_carts = add_to_carts + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("increment bundle add to cart: %w", err)
	}
	return nil
}
