package domain

import (
	"fmt"
	"math"
)

// Quote is the priced result for a bundle and selection.
type Quote struct {
	OriginalPrice     int64    `json:"original_price"`
	DiscountedPrice   int64    `json:"discounted_price"`
	Savings           int64    `json:"savings"`
	SavingsPercentage float64  `json:"savings_percentage"`
	Errors            []string `json:"errors,omitempty"`
}

// OriginalPrice sums the component prices of one bundle unit. Overrides win
// over catalog prices. Components without a price are skipped.
func OriginalPrice(b *Bundle, sel Selection, book *PriceBook) int64 {
	var total int64
	for _, c := range b.Components(sel) {
		price, ok := componentPrice(c, book)
		if !ok {
			continue
		}
		total += price * int64(c.Quantity)
	}
	return total
}

func componentPrice(c Component, book *PriceBook) (int64, bool) {
	if c.PriceOverride != nil {
		return *c.PriceOverride, true
	}
	return book.UnitPrice(c.ProductID, c.VariantID)
}

// DiscountedPrice applies the bundle discount to original. A fixed_price
// bundle costs its configured value but never more than its parts.
func DiscountedPrice(b *Bundle, original int64) int64 {
	switch b.DiscountType {
	case DiscountPercentage:
		pct := min(max(b.DiscountValue, 0), 100)
		return max(original-original*pct/100, 0)
	case DiscountFixedPrice:
		return min(max(b.DiscountValue, 0), original)
	default:
		return original
	}
}

// Savings is the non-negative difference between original and discounted.
func Savings(original, discounted int64) int64 {
	return max(original-discounted, 0)
}

// SavingsPercentage returns savings as a percentage of original rounded to
// two decimals, or 0 when original is 0.
func SavingsPercentage(original, savings int64) float64 {
	if original <= 0 {
		return 0
	}
	return math.Round(float64(savings)/float64(original)*10000) / 100
}

// PriceBundle validates a selection and prices one bundle unit.
func PriceBundle(b *Bundle, sel Selection, book *PriceBook) Quote {
	original := OriginalPrice(b, sel, book)
	discounted := DiscountedPrice(b, original)
	savings := Savings(original, discounted)
	return Quote{
		OriginalPrice:     original,
		DiscountedPrice:   discounted,
		Savings:           savings,
		SavingsPercentage: SavingsPercentage(original, savings),
		Errors:            ValidateSelection(b, sel),
	}
}

// ValidateSelection returns one message per problem in sel. Fixed bundles
// always validate.
func ValidateSelection(b *Bundle, sel Selection) []string {
	if !b.IsConfigurable() {
		return nil
	}

	var errs []string
	chosen := make(map[string][]string, len(sel))
	for _, s := range sel {
		if _, ok := b.Slot(s.SlotID); !ok {
			errs = append(errs, fmt.Sprintf("unknown slot %s", s.SlotID))
			continue
		}
		chosen[s.SlotID] = append(chosen[s.SlotID], s.ProductIDs...)
	}

	for i := range b.Slots {
		slot := &b.Slots[i]
		picks, present := chosen[slot.ID]
		if !present {
			if slot.IsRequired {
				errs = append(errs, fmt.Sprintf("slot %q is required", slot.Name))
			}
			continue
		}
		if len(picks) < slot.MinSelections {
			errs = append(errs, fmt.Sprintf("slot %q requires at least %d selection(s)", slot.Name, slot.MinSelections))
			continue
		}
		for _, pid := range picks {
			if _, ok := slot.Allows(pid); !ok {
				errs = append(errs, fmt.Sprintf("product %s is not allowed in slot %q", pid, slot.Name))
			}
		}
		if slot.MaxSelections > 0 && len(picks) > slot.MaxSelections {
			errs = append(errs, fmt.Sprintf("slot %q allows at most %d selection(s)", slot.Name, slot.MaxSelections))
		}
	}
	return errs
}
