package postgres

import (
	"context"
	"fmt"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
)

// CatalogRepository reads products and variants.
type CatalogRepository struct {
	db database.DBTX
}

// NewCatalogRepository creates a new PostgreSQL-backed catalog repository.
func NewCatalogRepository(db database.DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetProducts returns the products with the given ids, soft-deleted ones
// included so carts can flag them as unavailable.
func (r *CatalogRepository) GetProducts(ctx context.Context, ids []string) ([]*domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, name, sku, image_url, price, stock_quantity, is_active,
			track_inventory, allow_backorders, weight, deleted_at
		FROM products
		WHERE id = ANY($1::uuid[])`

	ctx, end := database.TraceQuery(ctx, "GetProducts", query)
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		end(err)
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID, &p.Name, &p.SKU, &p.ImageURL, &p.Price, &p.StockQuantity, &p.IsActive,
			&p.TrackInventory, &p.AllowBackorders, &p.Weight, &p.DeletedAt,
		); err != nil {
			end(err)
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, &p)
	}
	err = rows.Err()
	end(err)
	if err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

// GetVariants returns the variants with the given ids.
func (r *CatalogRepository) GetVariants(ctx context.Context, ids []string) ([]*domain.Variant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, product_id, name, sku, price, stock_quantity, is_active, weight
		FROM product_variants
		WHERE id = ANY($1::uuid[])`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	var variants []*domain.Variant
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(
			&v.ID, &v.ProductID, &v.Name, &v.SKU, &v.Price, &v.StockQuantity, &v.IsActive, &v.Weight,
		); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variant rows: %w", err)
	}
	return variants, nil
}
