package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BundleAddResult describes what adding a bundle changed in a cart.
type BundleAddResult struct {
	Lines []CartItem `json:"lines"`
	NoOp  bool       `json:"no_op"`
}

// AddBundleToCart validates sel against b and lays the bundle out in c
// according to its display mode.
func AddBundleToCart(c *Cart, b *Bundle, sel Selection, qty int, now time.Time) (BundleAddResult, error) {
	if qty <= 0 {
		qty = 1
	}
	if !b.IsAvailable(now) {
		return BundleAddResult{}, violation(ReasonBundleUnavailable, fmt.Sprintf("bundle %s is not available", b.Name))
	}
	if remaining, limited := b.RemainingStock(); limited && remaining < qty {
		return BundleAddResult{}, violation(ReasonBundleSoldOut,
			fmt.Sprintf("only %d of bundle %s left", remaining, b.Name))
	}
	if errs := ValidateSelection(b, sel); len(errs) > 0 {
		return BundleAddResult{}, &SelectionError{Errors: errs}
	}
	if !b.IsConfigurable() {
		sel = nil
	}

	var res BundleAddResult
	switch b.DisplayMode {
	case DisplayGrouped:
		res = addGrouped(c, b, sel, qty, now)
	case DisplayIndividual:
		res = addIndividual(c, b, sel, qty, now)
	default:
		res = addSingleItem(c, b, sel, qty, now)
	}
	if !res.NoOp {
		c.UpdatedAt = now
	}
	return res, nil
}

func addSingleItem(c *Cart, b *Bundle, sel Selection, qty int, now time.Time) BundleAddResult {
	if c.HasBundleAnchor(b.ID) {
		return BundleAddResult{NoOp: true}
	}
	anchor := CartItem{
		ID:              uuid.NewString(),
		Quantity:        qty,
		BundleID:        b.ID,
		IsBundleAnchor:  true,
		BundleSelection: sel,
		CreatedAt:       now,
	}
	c.Items = append(c.Items, anchor)
	return BundleAddResult{Lines: []CartItem{anchor}}
}

func addGrouped(c *Cart, b *Bundle, sel Selection, qty int, now time.Time) BundleAddResult {
	anchor := CartItem{
		ID:              uuid.NewString(),
		Quantity:        qty,
		BundleID:        b.ID,
		IsBundleAnchor:  true,
		BundleSelection: sel,
		CreatedAt:       now,
	}
	lines := []CartItem{anchor}
	for _, comp := range b.Components(sel) {
		lines = append(lines, CartItem{
			ID:           uuid.NewString(),
			ProductID:    comp.ProductID,
			VariantID:    comp.VariantID,
			Quantity:     comp.Quantity * qty,
			BundleID:     b.ID,
			ParentItemID: anchor.ID,
			CreatedAt:    now,
		})
	}
	c.Items = append(c.Items, lines...)
	return BundleAddResult{Lines: lines}
}

// addIndividual merges the components into ordinary lines: first into a
// line already holding this bundle and selection, then into a plain line for
// the product, otherwise into a new line. No anchor is created.
func addIndividual(c *Cart, b *Bundle, sel Selection, qty int, now time.Time) BundleAddResult {
	var lines []CartItem
	for _, need := range unitNeeds(b, sel) {
		n := need.Quantity * qty
		line := c.individualLine(b.ID, sel, need.ProductID, need.VariantID)
		if line == nil {
			if line = c.plainLine(need.ProductID, need.VariantID); line != nil {
				line.BundleID = b.ID
				line.BundleSelection = sel
			}
		}
		if line != nil {
			line.Quantity += n
			line.BundleQuantity += n
			lines = append(lines, *line)
			continue
		}
		created := CartItem{
			ID:              uuid.NewString(),
			ProductID:       need.ProductID,
			VariantID:       need.VariantID,
			Quantity:        n,
			BundleID:        b.ID,
			BundleSelection: sel,
			BundleQuantity:  n,
			CreatedAt:       now,
		}
		c.Items = append(c.Items, created)
		lines = append(lines, created)
	}
	return BundleAddResult{Lines: lines}
}

// unitNeeds is Components with repeated products folded into one entry.
func unitNeeds(b *Bundle, sel Selection) []Component {
	var out []Component
	at := map[string]int{}
	for _, comp := range b.Components(sel) {
		k := comp.ProductID + "/" + comp.VariantID
		if i, ok := at[k]; ok {
			out[i].Quantity += comp.Quantity
			continue
		}
		at[k] = len(out)
		out = append(out, comp)
	}
	return out
}
