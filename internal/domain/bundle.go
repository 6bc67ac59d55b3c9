package domain

import (
	"slices"
	"strings"
	"time"
)

// Bundle types.
const (
	BundleTypeFixed        = "fixed"
	BundleTypeConfigurable = "configurable"
)

// Bundle discount types. A percentage value is a whole percent; a fixed_price
// value is the final bundle price in minor units.
const (
	DiscountPercentage = "percentage"
	DiscountFixedPrice = "fixed_price"
)

// Bundle display modes decide how a bundle is laid out in the cart.
const (
	DisplaySingleItem = "single_item"
	DisplayGrouped    = "grouped"
	DisplayIndividual = "individual"
)

// Bundle is a priced group of products sold together.
type Bundle struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Slug          string       `json:"slug"`
	Description   string       `json:"description,omitempty"`
	Type          string       `json:"type"`
	DiscountType  string       `json:"discount_type"`
	DiscountValue int64        `json:"discount_value"`
	DisplayMode   string       `json:"display_mode"`
	IsActive      bool         `json:"is_active"`
	StartsAt      *time.Time   `json:"starts_at,omitempty"`
	EndsAt        *time.Time   `json:"ends_at,omitempty"`
	StockLimit    *int         `json:"stock_limit,omitempty"`
	StockSold     int          `json:"stock_sold"`
	Items         []BundleItem `json:"items,omitempty"`
	Slots         []BundleSlot `json:"slots,omitempty"`
	Stats         BundleStats  `json:"stats"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// BundleItem is a fixed component of a fixed bundle.
type BundleItem struct {
	ProductID     string `json:"product_id"`
	VariantID     string `json:"variant_id,omitempty"`
	Quantity      int    `json:"quantity"`
	PriceOverride *int64 `json:"price_override,omitempty"`
}

// BundleSlot is a choice group of a configurable bundle.
type BundleSlot struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Position      int           `json:"position"`
	MinSelections int           `json:"min_selections"`
	MaxSelections int           `json:"max_selections"`
	IsRequired    bool          `json:"is_required"`
	Products      []SlotProduct `json:"products"`
}

// SlotProduct is a product a customer may pick for a slot.
type SlotProduct struct {
	ProductID     string `json:"product_id"`
	PriceOverride *int64 `json:"price_override,omitempty"`
}

// SlotSelection is the customer's choice for one slot.
type SlotSelection struct {
	SlotID     string   `json:"slot_id" validate:"required"`
	ProductIDs []string `json:"product_ids" validate:"required,dive,required"`
}

// Selection is the full set of slot choices for a configurable bundle.
type Selection []SlotSelection

// key is an order-independent identity of the selection.
func (s Selection) key() string {
	parts := make([]string, 0, len(s))
	for _, slot := range s {
		ids := slices.Clone(slot.ProductIDs)
		slices.Sort(ids)
		parts = append(parts, slot.SlotID+"="+strings.Join(ids, ","))
	}
	slices.Sort(parts)
	return strings.Join(parts, ";")
}

// BundleStats holds per-bundle counters.
type BundleStats struct {
	Views      int64 `json:"views"`
	AddToCarts int64 `json:"add_to_carts"`
	Purchases  int64 `json:"purchases"`
	Revenue    int64 `json:"revenue"`
}

// IsConfigurable reports whether the customer picks the components.
func (b *Bundle) IsConfigurable() bool {
	return b.Type == BundleTypeConfigurable
}

// IsAvailable reports whether the bundle is active, inside its schedule and
// not sold out at now.
func (b *Bundle) IsAvailable(now time.Time) bool {
	if !b.IsActive {
		return false
	}
	if b.StartsAt != nil && now.Before(*b.StartsAt) {
		return false
	}
	if b.EndsAt != nil && now.After(*b.EndsAt) {
		return false
	}
	if remaining, limited := b.RemainingStock(); limited && remaining <= 0 {
		return false
	}
	return true
}

// RemainingStock returns how many more bundles may be sold. The second
// result is false when the bundle has no stock limit.
func (b *Bundle) RemainingStock() (int, bool) {
	if b.StockLimit == nil {
		return 0, false
	}
	return max(*b.StockLimit-b.StockSold, 0), true
}

// Slot finds a slot by id.
func (b *Bundle) Slot(id string) (*BundleSlot, bool) {
	for i := range b.Slots {
		if b.Slots[i].ID == id {
			return &b.Slots[i], true
		}
	}
	return nil, false
}

// Allows returns the slot entry for productID if it may be chosen.
func (s *BundleSlot) Allows(productID string) (*SlotProduct, bool) {
	for i := range s.Products {
		if s.Products[i].ProductID == productID {
			return &s.Products[i], true
		}
	}
	return nil, false
}

// ProductIDs returns every product a bundle may contain, for catalog loading.
func (b *Bundle) ProductIDs() []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, it := range b.Items {
		add(it.ProductID)
	}
	for _, s := range b.Slots {
		for _, p := range s.Products {
			add(p.ProductID)
		}
	}
	return ids
}

// Component is one product unit set a bundle contributes to the cart.
type Component struct {
	ProductID     string
	VariantID     string
	Quantity      int
	PriceOverride *int64
}

// Components expands a bundle and selection into the products it consumes
// for a single bundle unit. Configurable choices outside their slot's
// allowed set are ignored.
func (b *Bundle) Components(sel Selection) []Component {
	if !b.IsConfigurable() {
		out := make([]Component, 0, len(b.Items))
		for _, it := range b.Items {
			out = append(out, Component{
				ProductID:     it.ProductID,
				VariantID:     it.VariantID,
				Quantity:      max(it.Quantity, 1),
				PriceOverride: it.PriceOverride,
			})
		}
		return out
	}

	var out []Component
	for _, s := range sel {
		slot, ok := b.Slot(s.SlotID)
		if !ok {
			continue
		}
		for _, pid := range s.ProductIDs {
			sp, ok := slot.Allows(pid)
			if !ok {
				continue
			}
			out = append(out, Component{ProductID: pid, Quantity: 1, PriceOverride: sp.PriceOverride})
		}
	}
	return out
}
