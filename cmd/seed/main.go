// Package main populates a storefront database with a small demo catalog:
// products with variants, one fixed and one configurable bundle, and a
// handful of coupons. Rows get deterministic ids so reruns are no-ops.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/migrations"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/logger"
)

// seedNamespace derives stable UUIDs from human-readable keys.
var seedNamespace = uuid.MustParse("6f1c2b8e-5d3a-4c71-9e0b-2a4f8d7c1e90")

func id(key string) string {
	return uuid.NewSHA1(seedNamespace, []byte(key)).String()
}

// --------------------------------------------------------------------------
// Seed data definitions
// --------------------------------------------------------------------------

type variantDef struct {
	key   string
	name  string
	sku   string
	price *int64
	stock int
}

type productDef struct {
	key      string
	name     string
	sku      string
	price    int64
	stock    int
	weight   int64
	variants []variantDef
}

func ptr[T any](v T) *T { return &v }

var products = []productDef{
	{key: "tee", name: "Basic Tee", sku: "TEE-001", price: 24900, stock: 0, weight: 200, variants: []variantDef{
		{key: "tee-s", name: "Small", sku: "TEE-001-S", stock: 40},
		{key: "tee-m", name: "Medium", sku: "TEE-001-M", stock: 60},
		{key: "tee-l", name: "Large", sku: "TEE-001-L", price: ptr(int64(26900)), stock: 25},
	}},
	{key: "jeans", name: "Slim Jeans", sku: "JNS-001", price: 79900, stock: 30, weight: 650},
	{key: "cap", name: "Canvas Cap", sku: "CAP-001", price: 14900, stock: 80, weight: 120},
	{key: "socks", name: "Sport Socks 3-Pack", sku: "SCK-001", price: 9900, stock: 200, weight: 90},
	{key: "sneaker", name: "Runner Sneaker", sku: "SNK-001", price: 189900, stock: 12, weight: 900},
	{key: "hoodie", name: "Zip Hoodie", sku: "HOD-001", price: 64900, stock: 3, weight: 700},
}

type couponDef struct {
	code           string
	kind           string
	value          int64
	minOrder       *int64
	maxDiscount    *int64
	usageLimit     *int
	perUserLimit   *int
	firstOrderOnly bool
}

var coupons = []couponDef{
	{code: "WELCOME10", kind: "percentage", value: 10, maxDiscount: ptr(int64(20000)), firstOrderOnly: true, perUserLimit: ptr(1)},
	{code: "SAVE50", kind: "fixed", value: 5000, minOrder: ptr(int64(30000)), usageLimit: ptr(500)},
	{code: "FREESHIP", kind: "free_shipping", minOrder: ptr(int64(15000))},
}

// --------------------------------------------------------------------------
// Seeding
// --------------------------------------------------------------------------

func seedCatalog(ctx context.Context, tx pgx.Tx) error {
	for _, p := range products {
		_, err := tx.Exec(ctx, `
			INSERT INTO products (id, name, sku, price, stock_quantity, weight)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			id(p.key), p.name, p.sku, p.price, p.stock, p.weight,
		)
		if err != nil {
			return fmt.Errorf("insert product %s: %w", p.sku, err)
		}
		for _, v := range p.variants {
			_, err := tx.Exec(ctx, `
				INSERT INTO product_variants (id, product_id, name, sku, price, stock_quantity)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO NOTHING`,
				id(v.key), id(p.key), v.name, v.sku, v.price, v.stock,
			)
			if err != nil {
				return fmt.Errorf("insert variant %s: %w", v.sku, err)
			}
		}
	}
	return nil
}

func seedBundles(ctx context.Context, tx pgx.Tx) error {
	// Fixed bundle: tee (medium) + cap at 15% off.
	_, err := tx.Exec(ctx, `
		INSERT INTO bundles (id, name, slug, description, type, discount_type, discount_value, display_mode, stock_limit)
		VALUES ($1, 'Summer Starter', 'summer-starter', 'A tee and a cap for the beach.', 'fixed', 'percentage', 15, 'grouped', 100)
		ON CONFLICT (id) DO NOTHING`, id("bundle-summer"))
	if err != nil {
		return fmt.Errorf("insert fixed bundle: %w", err)
	}
	items := []struct {
		key, product, variant string
		qty                   int
	}{
		{"bi-summer-tee", "tee", "tee-m", 1},
		{"bi-summer-cap", "cap", "", 1},
	}
	for pos, it := range items {
		var variantID *string
		if it.variant != "" {
			variantID = ptr(id(it.variant))
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO bundle_items (id, bundle_id, product_id, variant_id, quantity, position)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			id(it.key), id("bundle-summer"), id(it.product), variantID, it.qty, pos,
		)
		if err != nil {
			return fmt.Errorf("insert bundle item %s: %w", it.key, err)
		}
	}

	// Configurable bundle: pick a bottom and one or two accessories for a fixed price.
	_, err = tx.Exec(ctx, `
		INSERT INTO bundles (id, name, slug, description, type, discount_type, discount_value, display_mode)
		VALUES ($1, 'Build Your Outfit', 'build-your-outfit', 'Choose a bottom and accessories.', 'configurable', 'fixed_price', 89900, 'individual')
		ON CONFLICT (id) DO NOTHING`, id("bundle-outfit"))
	if err != nil {
		return fmt.Errorf("insert configurable bundle: %w", err)
	}
	slots := []struct {
		key, name   string
		min, max    int
		required    bool
		productKeys []string
	}{
		{"slot-bottom", "Bottom", 1, 1, true, []string{"jeans"}},
		{"slot-accessory", "Accessories", 1, 2, true, []string{"cap", "socks"}},
		{"slot-extra", "Extra", 0, 1, false, []string{"hoodie"}},
	}
	for pos, s := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO bundle_slots (id, bundle_id, name, position, min_selections, max_selections, is_required)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			id(s.key), id("bundle-outfit"), s.name, pos, s.min, s.max, s.required,
		)
		if err != nil {
			return fmt.Errorf("insert slot %s: %w", s.name, err)
		}
		for i, pk := range s.productKeys {
			_, err := tx.Exec(ctx, `
				INSERT INTO bundle_slot_products (slot_id, product_id, position)
				VALUES ($1, $2, $3)
				ON CONFLICT (slot_id, product_id) DO NOTHING`,
				id(s.key), id(pk), i,
			)
			if err != nil {
				return fmt.Errorf("insert slot product %s/%s: %w", s.name, pk, err)
			}
		}
	}
	return nil
}

func seedCoupons(ctx context.Context, tx pgx.Tx) error {
	expires := time.Now().AddDate(0, 3, 0)
	for _, c := range coupons {
		_, err := tx.Exec(ctx, `
			INSERT INTO coupons (id, code, type, value, min_order_amount, max_discount,
			                     usage_limit, per_user_limit, first_order_only, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (code) DO NOTHING`,
			id("coupon-"+c.code), c.code, c.kind, c.value, c.minOrder, c.maxDiscount,
			c.usageLimit, c.perUserLimit, c.firstOrderOnly, expires,
		)
		if err != nil {
			return fmt.Errorf("insert coupon %s: %w", c.code, err)
		}
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("storefront-seed", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), log)
	if err != nil {
		log.Error("failed to connect to postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = database.WithinTx(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := seedCatalog(ctx, tx); err != nil {
			return err
		}
		if err := seedBundles(ctx, tx); err != nil {
			return err
		}
		return seedCoupons(ctx, tx)
	})
	if err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("seed complete",
		slog.Int("products", len(products)),
		slog.Int("bundles", 2),
		slog.Int("coupons", len(coupons)),
	)
}
