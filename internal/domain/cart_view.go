package domain

import "time"

// CartCatalog is the catalog snapshot used to price a cart.
type CartCatalog struct {
	Book    *PriceBook
	Bundles map[string]*Bundle
}

// CartLine is a cart line priced against the current catalog.
// BundleDiscount is the line's share of an individual-mode bundle discount
// and is already taken off LineTotal.
type CartLine struct {
	CartItem
	Name           string `json:"name"`
	SKU            string `json:"sku,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	UnitPrice      int64  `json:"unit_price"`
	LineTotal      int64  `json:"line_total"`
	UnitWeight     int64  `json:"unit_weight"`
	Available      bool   `json:"available"`
	BundleDiscount int64  `json:"bundle_discount,omitempty"`
	BundleUnits    int    `json:"bundle_units,omitempty"`

	bundlePortion int
	bundleLead    bool
}

// CartSummary is the priced projection of a cart.
type CartSummary struct {
	Lines         []CartLine `json:"lines"`
	Subtotal      int64      `json:"subtotal"`
	BundleSavings int64      `json:"bundle_savings"`
	ItemCount     int        `json:"item_count"`
	TotalWeight   int64      `json:"total_weight"`
}

// Summarize prices every line of the cart.
//
// single_item anchors cost the bundle's discounted price and weigh as much
// as their components. grouped anchors carry the price while their children
// cost nothing and carry the weight. individual lines use catalog prices,
// less their share of the bundle discount for every complete bundle unit.
func (c *Cart) Summarize(cat CartCatalog, now time.Time) CartSummary {
	sum := CartSummary{Lines: make([]CartLine, 0, len(c.Items))}
	for _, it := range c.Items {
		sum.Lines = append(sum.Lines, priceLine(it, cat, now))
	}
	for _, g := range c.bundleGroups(cat.Bundles) {
		g.applyDiscount(sum.Lines, cat.Book)
	}
	for _, line := range sum.Lines {
		sum.Subtotal += line.LineTotal
		sum.BundleSavings += line.BundleDiscount
		sum.TotalWeight += line.UnitWeight * int64(line.Quantity)
		sum.ItemCount += line.Quantity
	}
	return sum
}

func priceLine(it CartItem, cat CartCatalog, now time.Time) CartLine {
	line := CartLine{CartItem: it}

	if it.IsBundleAnchor {
		b, ok := cat.Bundles[it.BundleID]
		if !ok {
			return line
		}
		line.Name = b.Name
		line.Available = b.IsActive && withinSchedule(b, now)
		line.UnitPrice = PriceBundle(b, it.BundleSelection, cat.Book).DiscountedPrice
		if b.DisplayMode == DisplaySingleItem {
			for _, comp := range b.Components(it.BundleSelection) {
				line.UnitWeight += cat.Book.UnitWeight(comp.ProductID, comp.VariantID) * int64(comp.Quantity)
			}
		}
		line.LineTotal = line.UnitPrice * int64(it.Quantity)
		return line
	}

	p, ok := cat.Book.Product(it.ProductID)
	if !ok {
		return line
	}
	line.Name = p.Name
	line.SKU = p.SKU
	line.ImageURL = p.ImageURL
	line.Available = p.IsPurchasable()
	line.UnitWeight = cat.Book.UnitWeight(it.ProductID, it.VariantID)
	if it.VariantID != "" {
		v, ok := cat.Book.Variant(it.ProductID, it.VariantID)
		if !ok {
			line.Available = false
			return line
		}
		line.Name = p.Name + " - " + v.Name
		line.SKU = v.SKU
		line.Available = line.Available && v.IsActive
	}

	if it.ParentItemID == "" {
		line.UnitPrice, _ = cat.Book.UnitPrice(it.ProductID, it.VariantID)
	}
	line.LineTotal = line.UnitPrice * int64(it.Quantity)
	return line
}

func withinSchedule(b *Bundle, now time.Time) bool {
	if b.StartsAt != nil && now.Before(*b.StartsAt) {
		return false
	}
	return b.EndsAt == nil || !now.After(*b.EndsAt)
}

// StockDemands returns the product quantities the cart consumes. single_item
// anchors expand into their components; grouped anchors consume nothing
// themselves because their children carry the stock.
func (c *Cart) StockDemands(bundles map[string]*Bundle) []StockDemand {
	var out []StockDemand
	for _, it := range c.Items {
		if it.IsBundleAnchor {
			b, ok := bundles[it.BundleID]
			if !ok || b.DisplayMode != DisplaySingleItem {
				continue
			}
			for _, comp := range b.Components(it.BundleSelection) {
				out = append(out, StockDemand{
					ProductID: comp.ProductID,
					VariantID: comp.VariantID,
					Quantity:  comp.Quantity * it.Quantity,
				})
			}
			continue
		}
		out = append(out, StockDemand{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity})
	}
	return MergeDemands(out)
}

// BundleUnits returns how many units of each bundle the cart holds: anchor
// quantities plus the complete units of individual-mode bundles.
func (c *Cart) BundleUnits(bundles map[string]*Bundle) map[string]int {
	out := map[string]int{}
	for _, it := range c.Items {
		if it.IsBundleAnchor {
			out[it.BundleID] += it.Quantity
		}
	}
	for _, g := range c.bundleGroups(bundles) {
		if g.units > 0 {
			out[g.bundle.ID] += g.units
		}
	}
	return out
}

// bundleGroup is an individual-mode bundle spread over ordinary lines that
// share the bundle and selection.
type bundleGroup struct {
	bundle *Bundle
	sel    Selection
	needs  []Component
	lines  map[string]int // product/variant -> index in Cart.Items
	units  int
}

func (c *Cart) bundleGroups(bundles map[string]*Bundle) []*bundleGroup {
	var groups []*bundleGroup
	byKey := map[string]*bundleGroup{}
	for i := range c.Items {
		it := &c.Items[i]
		if !it.isIndividual() || it.BundleQuantity <= 0 {
			continue
		}
		b, ok := bundles[it.BundleID]
		if !ok {
			continue
		}
		key := it.BundleID + "|" + it.BundleSelection.key()
		g, ok := byKey[key]
		if !ok {
			g = &bundleGroup{
				bundle: b,
				sel:    it.BundleSelection,
				needs:  unitNeeds(b, it.BundleSelection),
				lines:  map[string]int{},
			}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.lines[it.ProductID+"/"+it.VariantID] = i
	}
	for _, g := range groups {
		g.units = g.completeUnits(c.Items)
	}
	return groups
}

// completeUnits is the number of whole bundle units the group's lines still
// cover. A missing component leaves none.
func (g *bundleGroup) completeUnits(items []CartItem) int {
	if len(g.needs) == 0 {
		return 0
	}
	units := -1
	for _, need := range g.needs {
		i, ok := g.lines[need.ProductID+"/"+need.VariantID]
		if !ok {
			return 0
		}
		n := min(items[i].BundleQuantity, items[i].Quantity) / max(need.Quantity, 1)
		if units < 0 || n < units {
			units = n
		}
	}
	return units
}

// applyDiscount prices the group's complete units at the bundle's discounted
// price. The difference to catalog price is spread over the lines in
// proportion to their catalog value.
func (g *bundleGroup) applyDiscount(lines []CartLine, book *PriceBook) {
	if g.units == 0 {
		return
	}
	type share struct {
		idx     int
		portion int
		value   int64
	}
	shares := make([]share, 0, len(g.needs))
	var catalogValue int64
	for _, need := range g.needs {
		i := g.lines[need.ProductID+"/"+need.VariantID]
		portion := need.Quantity * g.units
		value := lines[i].UnitPrice * int64(portion)
		shares = append(shares, share{idx: i, portion: portion, value: value})
		catalogValue += value
	}

	discounted := PriceBundle(g.bundle, g.sel, book).DiscountedPrice * int64(g.units)
	discount := max(catalogValue-discounted, 0)

	var given int64
	for _, s := range shares {
		var d int64
		if catalogValue > 0 {
			d = discount * s.value / catalogValue
		}
		lines[s.idx].BundleDiscount = d
		given += d
	}
	// rounding leftovers
	for _, s := range shares {
		if given >= discount {
			break
		}
		extra := min(s.value-lines[s.idx].BundleDiscount, discount-given)
		lines[s.idx].BundleDiscount += extra
		given += extra
	}

	for n, s := range shares {
		line := &lines[s.idx]
		line.BundleUnits = g.units
		line.bundlePortion = s.portion
		line.bundleLead = n == 0
		line.LineTotal = line.UnitPrice*int64(line.Quantity) - line.BundleDiscount
	}
}
