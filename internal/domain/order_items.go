package domain

import (
	"time"

	"github.com/google/uuid"
)

// SnapshotItems freezes the priced cart into order items. A single_item
// bundle becomes its priced anchor followed by zero-priced component items
// so the order records exactly which stock it consumed. An individual-mode
// line is split into the part sold with its bundle and a plain remainder.
func SnapshotItems(orderID string, c *Cart, cat CartCatalog, now time.Time) []OrderItem {
	sum := c.Summarize(cat, now)
	anchors := make(map[string]string, len(sum.Lines))
	items := make([]OrderItem, 0, len(sum.Lines))

	for _, line := range sum.Lines {
		if line.isIndividual() {
			items = append(items, splitIndividual(orderID, line)...)
			continue
		}
		item := OrderItem{
			ID:             uuid.NewString(),
			OrderID:        orderID,
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			ProductName:    line.Name,
			SKU:            line.SKU,
			ImageURL:       line.ImageURL,
			UnitPrice:      line.UnitPrice,
			Quantity:       line.Quantity,
			BundleID:       line.BundleID,
			IsBundleAnchor: line.IsBundleAnchor,
		}
		if line.ParentItemID != "" {
			item.ParentItemID = anchors[line.ParentItemID]
		}
		items = append(items, item)

		if !line.IsBundleAnchor {
			continue
		}
		anchors[line.ID] = item.ID
		b, ok := cat.Bundles[line.BundleID]
		if !ok || b.DisplayMode != DisplaySingleItem {
			continue
		}
		for _, comp := range b.Components(line.BundleSelection) {
			child := OrderItem{
				ID:           uuid.NewString(),
				OrderID:      orderID,
				ProductID:    comp.ProductID,
				VariantID:    comp.VariantID,
				Quantity:     comp.Quantity * line.Quantity,
				BundleID:     b.ID,
				ParentItemID: item.ID,
			}
			if p, ok := cat.Book.Product(comp.ProductID); ok {
				child.ProductName = p.Name
				child.SKU = p.SKU
				child.ImageURL = p.ImageURL
			}
			items = append(items, child)
		}
	}
	return items
}

func splitIndividual(orderID string, line CartLine) []OrderItem {
	base := OrderItem{
		OrderID:     orderID,
		ProductID:   line.ProductID,
		VariantID:   line.VariantID,
		ProductName: line.Name,
		SKU:         line.SKU,
		ImageURL:    line.ImageURL,
		UnitPrice:   line.UnitPrice,
	}
	var out []OrderItem
	if line.bundlePortion > 0 {
		it := base
		it.ID = uuid.NewString()
		it.Quantity = line.bundlePortion
		it.BundleID = line.BundleID
		it.BundleDiscount = line.BundleDiscount
		if line.bundleLead {
			it.BundleUnits = line.BundleUnits
		}
		out = append(out, it)
	}
	if rest := line.Quantity - line.bundlePortion; rest > 0 {
		it := base
		it.ID = uuid.NewString()
		it.Quantity = rest
		out = append(out, it)
	}
	return out
}
