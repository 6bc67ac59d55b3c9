package postgres

import (
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/pkg/database"
)

var testNow = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var orderColumnNames = []string{
	"id", "number", "user_id", "session_token", "email", "status", "payment_status",
	"payment_method", "payment_reference", "currency", "subtotal", "discount", "shipping", "loyalty_discount",
	"loyalty_points_redeemed", "loyalty_points_earned", "loyalty_points_credited", "total", "coupon_code",
	"coupon_id", "shipping_method", "shipping_address", "estimated_delivery", "notes",
	"idempotency_key", "shipped_at", "delivered_at", "cancelled_at", "created_at", "updated_at",
}

var orderItemColumnNames = []string{
	"id", "order_id", "product_id", "variant_id", "product_name", "sku", "image_url",
	"unit_price", "quantity", "bundle_id", "is_bundle_anchor", "parent_item_id",
	"bundle_units", "bundle_discount",
}

func orderRowValues(id, number, status string) []any {
	return []any{
		id, number, "u-1", "", "ayse@example.com", status, "paid",
		"card", "pi_123", "TRY", int64(5000), int64(500), int64(0), int64(100),
		int64(10), int64(44), false, int64(4400), "WELCOME10",
		"", "standard", []byte(`{"full_name":"Ayse Yilmaz","city":"Izmir","country":"TR"}`), "2-4 days", "",
		"key-1", (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil), testNow, testNow,
	}
}

func orderItemRow(rows *pgxmock.Rows, id, orderID, productID string, qty int) *pgxmock.Rows {
	return rows.AddRow(id, orderID, productID, "", "Shirt", "SKU-1", "", int64(2000), qty, "", false, "", 0, int64(0))
}
