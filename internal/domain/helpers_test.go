package domain

import "time"

var testNow = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func testBook() *PriceBook {
	return NewPriceBook(
		[]*Product{
			{ID: "p-shirt", Name: "Shirt", SKU: "SH-1", Price: 2000, StockQuantity: 10, IsActive: true, TrackInventory: true, Weight: 200},
			{ID: "p-jeans", Name: "Jeans", SKU: "JN-1", Price: 2500, StockQuantity: 5, IsActive: true, TrackInventory: true, Weight: 600},
			{ID: "p-belt", Name: "Belt", SKU: "BT-1", Price: 1000, StockQuantity: 3, IsActive: true, TrackInventory: true, Weight: 150},
			{ID: "p-cap", Name: "Cap", SKU: "CP-1", Price: 800, IsActive: false, Weight: 100},
		},
		[]*Variant{
			{ID: "v-shirt-xl", ProductID: "p-shirt", Name: "XL", SKU: "SH-1-XL", Price: ptr(int64(2200)), StockQuantity: 4, IsActive: true},
			{ID: "v-jeans-32", ProductID: "p-jeans", Name: "32", SKU: "JN-1-32", StockQuantity: 2, IsActive: true, Weight: ptr(int64(650))},
		},
	)
}

// outfitBundle is configurable: one required top slot and an optional
// accessory slot.
func outfitBundle(mode string) *Bundle {
	return &Bundle{
		ID:            "b-outfit",
		Name:          "Outfit",
		Type:          BundleTypeConfigurable,
		DiscountType:  DiscountFixedPrice,
		DiscountValue: 1800,
		DisplayMode:   mode,
		IsActive:      true,
		Slots: []BundleSlot{
			{
				ID: "s-top", Name: "Top", MinSelections: 1, MaxSelections: 1, IsRequired: true,
				Products: []SlotProduct{{ProductID: "p-shirt"}, {ProductID: "p-jeans"}},
			},
			{
				ID: "s-extra", Name: "Extra", MaxSelections: 1,
				Products: []SlotProduct{{ProductID: "p-belt", PriceOverride: ptr(int64(700))}},
			},
		},
	}
}

// starterBundle is a fixed bundle of two shirts and a belt at 10% off.
func starterBundle(mode string) *Bundle {
	return &Bundle{
		ID:            "b-starter",
		Name:          "Starter",
		Type:          BundleTypeFixed,
		DiscountType:  DiscountPercentage,
		DiscountValue: 10,
		DisplayMode:   mode,
		IsActive:      true,
		Items: []BundleItem{
			{ProductID: "p-shirt", Quantity: 2},
			{ProductID: "p-belt", Quantity: 1},
		},
	}
}
