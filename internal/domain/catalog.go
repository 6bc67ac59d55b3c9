package domain

import (
	"fmt"
	"sort"
	"time"
)

// Product is the catalog view of a sellable product. Prices are in minor
// currency units and weights in grams.
type Product struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	SKU             string     `json:"sku"`
	ImageURL        string     `json:"image_url,omitempty"`
	Price           int64      `json:"price"`
	StockQuantity   int        `json:"stock_quantity"`
	IsActive        bool       `json:"is_active"`
	TrackInventory  bool       `json:"track_inventory"`
	AllowBackorders bool       `json:"allow_backorders"`
	Weight          int64      `json:"weight"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// IsPurchasable reports whether the product can be added to a cart or order.
func (p *Product) IsPurchasable() bool {
	return p.IsActive && p.DeletedAt == nil
}

// Variant is a purchasable variation of a product. Nil Price and Weight
// fall back to the product's values.
type Variant struct {
	ID            string `json:"id"`
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	SKU           string `json:"sku"`
	Price         *int64 `json:"price,omitempty"`
	StockQuantity int    `json:"stock_quantity"`
	IsActive      bool   `json:"is_active"`
	Weight        *int64 `json:"weight,omitempty"`
}

// EffectivePrice returns the variant price, or the product price if unset.
func (v *Variant) EffectivePrice(p *Product) int64 {
	if v.Price != nil {
		return *v.Price
	}
	return p.Price
}

// EffectiveWeight returns the variant weight, or the product weight if unset.
func (v *Variant) EffectiveWeight(p *Product) int64 {
	if v.Weight != nil {
		return *v.Weight
	}
	return p.Weight
}

// PriceBook is a point-in-time snapshot of the catalog rows a cart needs.
type PriceBook struct {
	products map[string]*Product
	variants map[string]*Variant
}

// NewPriceBook indexes products and variants by id.
func NewPriceBook(products []*Product, variants []*Variant) *PriceBook {
	b := &PriceBook{
		products: make(map[string]*Product, len(products)),
		variants: make(map[string]*Variant, len(variants)),
	}
	for _, p := range products {
		b.products[p.ID] = p
	}
	for _, v := range variants {
		b.variants[v.ID] = v
	}
	return b
}

// Product looks up a product.
func (b *PriceBook) Product(id string) (*Product, bool) {
	p, ok := b.products[id]
	return p, ok
}

// Variant looks up a variant that belongs to productID.
func (b *PriceBook) Variant(productID, variantID string) (*Variant, bool) {
	v, ok := b.variants[variantID]
	if !ok || v.ProductID != productID {
		return nil, false
	}
	return v, true
}

// UnitPrice returns the current price of a product or one of its variants.
func (b *PriceBook) UnitPrice(productID, variantID string) (int64, bool) {
	p, ok := b.Product(productID)
	if !ok {
		return 0, false
	}
	if variantID == "" {
		return p.Price, true
	}
	v, ok := b.Variant(productID, variantID)
	if !ok {
		return 0, false
	}
	return v.EffectivePrice(p), true
}

// UnitWeight returns variant weight, else product weight, else 0.
func (b *PriceBook) UnitWeight(productID, variantID string) int64 {
	p, ok := b.Product(productID)
	if !ok {
		return 0
	}
	if variantID != "" {
		if v, ok := b.Variant(productID, variantID); ok {
			return v.EffectiveWeight(p)
		}
	}
	return p.Weight
}

// StockDemand is the quantity of one product or variant an order consumes.
type StockDemand struct {
	ProductID string
	VariantID string
	Quantity  int
}

// StockRecord is a product or variant row read under an exclusive lock.
// For variants, Purchasable already folds in the parent product's state and
// the tracking flags come from the parent product.
type StockRecord struct {
	Name            string
	Available       int
	Purchasable     bool
	TrackInventory  bool
	AllowBackorders bool
}

// CheckStock verifies that qty units can be taken from rec.
func CheckStock(rec StockRecord, qty int) error {
	if !rec.Purchasable {
		return violation(ReasonItemUnavailable, fmt.Sprintf("%s is no longer available", rec.Name))
	}
	if rec.TrackInventory && !rec.AllowBackorders && qty > rec.Available {
		return violation(ReasonInsufficientStock,
			fmt.Sprintf("insufficient stock for %s: requested %d, available %d", rec.Name, qty, max(rec.Available, 0)))
	}
	return nil
}

// MergeDemands sums quantities per product/variant pair and returns them in
// a stable order so concurrent transactions lock rows in the same sequence.
func MergeDemands(demands []StockDemand) []StockDemand {
	index := make(map[[2]string]int, len(demands))
	var out []StockDemand
	for _, d := range demands {
		if d.ProductID == "" || d.Quantity <= 0 {
			continue
		}
		key := [2]string{d.ProductID, d.VariantID}
		if i, ok := index[key]; ok {
			out[i].Quantity += d.Quantity
			continue
		}
		index[key] = len(out)
		out = append(out, d)
	}
	sortDemands(out)
	return out
}

func sortDemands(d []StockDemand) {
	sort.Slice(d, func(i, j int) bool {
		if d[i].ProductID != d[j].ProductID {
			return d[i].ProductID < d[j].ProductID
		}
		return d[i].VariantID < d[j].VariantID
	})
}
