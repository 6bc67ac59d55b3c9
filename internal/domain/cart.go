package domain

import (
	"time"

	"github.com/google/uuid"
)

// Actor identifies who is acting on a cart: a signed-in user, an anonymous
// session, or both during login.
type Actor struct {
	UserID       string
	SessionToken string
}

// IsAnonymous reports whether the actor has no user id.
func (a Actor) IsAnonymous() bool { return a.UserID == "" }

// Valid reports whether the actor can own a cart.
func (a Actor) Valid() bool { return a.UserID != "" || a.SessionToken != "" }

// Cart is owned by exactly one user or one anonymous session. Lines carry no
// price; prices are resolved from the catalog every time the cart is read.
type Cart struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id,omitempty"`
	SessionToken string     `json:"-"`
	CouponCode   string     `json:"coupon_code,omitempty"`
	Items        []CartItem `json:"items"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CartItem is a cart line. Bundle lines carry BundleID; the anchor of a
// single_item or grouped bundle has no product, and grouped children point
// at their anchor through ParentItemID. On an individual-mode line,
// BundleQuantity is the part of Quantity the bundle added.
type CartItem struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id,omitempty"`
	VariantID       string    `json:"variant_id,omitempty"`
	Quantity        int       `json:"quantity"`
	BundleID        string    `json:"bundle_id,omitempty"`
	IsBundleAnchor  bool      `json:"is_bundle_anchor,omitempty"`
	ParentItemID    string    `json:"parent_item_id,omitempty"`
	BundleSelection Selection `json:"bundle_selection,omitempty"`
	BundleQuantity  int       `json:"bundle_quantity,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// IsBundleLine reports whether the line came from a bundle.
func (i *CartItem) IsBundleLine() bool { return i.BundleID != "" }

// isIndividual reports whether the line is an individual-mode bundle line:
// tagged with a bundle but neither an anchor nor an anchor's child.
func (i *CartItem) isIndividual() bool {
	return i.BundleID != "" && !i.IsBundleAnchor && i.ParentItemID == ""
}

// NewCart creates an empty cart for the actor. A signed-in actor owns the
// cart by user id only.
func NewCart(actor Actor, now time.Time) *Cart {
	c := &Cart{
		ID:        uuid.NewString(),
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if actor.UserID != "" {
		c.UserID = actor.UserID
	} else {
		c.SessionToken = actor.SessionToken
	}
	return c
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Item returns a line by id.
func (c *Cart) Item(id string) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// AddItem adds qty of a product, merging into an existing line for the same
// product and variant that did not come from a bundle.
func (c *Cart) AddItem(productID, variantID string, qty int, now time.Time) *CartItem {
	c.UpdatedAt = now
	if existing := c.plainLine(productID, variantID); existing != nil {
		existing.Quantity += qty
		return existing
	}
	c.Items = append(c.Items, CartItem{
		ID:        uuid.NewString(),
		ProductID: productID,
		VariantID: variantID,
		Quantity:  qty,
		CreatedAt: now,
	})
	return &c.Items[len(c.Items)-1]
}

func (c *Cart) plainLine(productID, variantID string) *CartItem {
	for i := range c.Items {
		it := &c.Items[i]
		if !it.IsBundleLine() && it.ProductID == productID && it.VariantID == variantID {
			return it
		}
	}
	return nil
}

// individualLine finds the individual-mode line of a bundle and selection
// for a product and variant.
func (c *Cart) individualLine(bundleID string, sel Selection, productID, variantID string) *CartItem {
	key := sel.key()
	for i := range c.Items {
		it := &c.Items[i]
		if it.isIndividual() && it.BundleID == bundleID && it.ProductID == productID &&
			it.VariantID == variantID && it.BundleSelection.key() == key {
			return it
		}
	}
	return nil
}

// UpdateItemQuantity sets the quantity of a line. Quantity 0 removes the
// line. Changing a bundle anchor scales its grouped children; grouped
// children cannot be changed on their own.
func (c *Cart) UpdateItemQuantity(itemID string, qty int, now time.Time) error {
	it, ok := c.Item(itemID)
	if !ok {
		return ErrCartItemNotFound
	}
	if qty <= 0 {
		return c.RemoveItem(itemID, now)
	}
	if it.ParentItemID != "" {
		return violation(ReasonBundleLineLocked, "bundle components change with their bundle")
	}
	if it.IsBundleAnchor {
		old := it.Quantity
		for i := range c.Items {
			child := &c.Items[i]
			if child.ParentItemID == it.ID && old > 0 {
				child.Quantity = child.Quantity / old * qty
			}
		}
	}
	it.Quantity = qty
	it.BundleQuantity = min(it.BundleQuantity, qty)
	c.UpdatedAt = now
	return nil
}

// RemoveItem deletes a line. Removing any part of a single_item or grouped
// bundle removes the whole bundle.
func (c *Cart) RemoveItem(itemID string, now time.Time) error {
	it, ok := c.Item(itemID)
	if !ok {
		return ErrCartItemNotFound
	}
	if it.IsBundleAnchor || it.ParentItemID != "" {
		anchor := it.ID
		if it.ParentItemID != "" {
			anchor = it.ParentItemID
		}
		c.removeWhere(func(x *CartItem) bool { return x.ID == anchor || x.ParentItemID == anchor })
	} else {
		c.removeWhere(func(x *CartItem) bool { return x.ID == itemID })
	}
	c.UpdatedAt = now
	return nil
}

// RemoveBundle deletes every line carrying the bundle reference and returns
// how many were removed. Quantity an individual-mode line held before the
// bundle was merged into it goes back to a plain line.
func (c *Cart) RemoveBundle(bundleID string, now time.Time) int {
	var rest []CartItem
	for _, it := range c.Items {
		if it.BundleID == bundleID && it.isIndividual() && it.Quantity > it.BundleQuantity {
			rest = append(rest, it)
		}
	}
	n := c.removeWhere(func(x *CartItem) bool { return x.BundleID == bundleID })
	for _, it := range rest {
		c.AddItem(it.ProductID, it.VariantID, it.Quantity-it.BundleQuantity, now)
	}
	if n > 0 {
		c.UpdatedAt = now
	}
	return n
}

func (c *Cart) removeWhere(drop func(*CartItem) bool) int {
	kept := c.Items[:0]
	removed := 0
	for i := range c.Items {
		if drop(&c.Items[i]) {
			removed++
			continue
		}
		kept = append(kept, c.Items[i])
	}
	c.Items = kept
	return removed
}

// Clear empties the cart and drops its coupon.
func (c *Cart) Clear(now time.Time) {
	c.Items = []CartItem{}
	c.CouponCode = ""
	c.UpdatedAt = now
}

// ApplyCoupon stores a normalized coupon code on the cart.
func (c *Cart) ApplyCoupon(code string, now time.Time) {
	c.CouponCode = NormalizeCouponCode(code)
	c.UpdatedAt = now
}

// RemoveCoupon clears the coupon.
func (c *Cart) RemoveCoupon(now time.Time) {
	c.CouponCode = ""
	c.UpdatedAt = now
}

// MergeFrom replays every line of src into c. Plain lines merge by product
// and individual bundle lines by bundle, selection and product; anchored bundles are copied as a group unless c
// already holds that single_item bundle. The coupon is carried over when c
// has none.
func (c *Cart) MergeFrom(src *Cart, now time.Time) {
	for _, it := range src.Items {
		switch {
		case it.ParentItemID != "":
			// copied with its anchor
		case it.IsBundleAnchor:
			c.copyBundleGroup(src, it, now)
		case it.IsBundleLine():
			target := c.individualLine(it.BundleID, it.BundleSelection, it.ProductID, it.VariantID)
			if target == nil {
				if target = c.plainLine(it.ProductID, it.VariantID); target != nil {
					target.BundleID = it.BundleID
					target.BundleSelection = it.BundleSelection
				}
			}
			if target != nil {
				target.Quantity += it.Quantity
				target.BundleQuantity += it.BundleQuantity
				continue
			}
			line := it
			line.ID = uuid.NewString()
			line.CreatedAt = now
			c.Items = append(c.Items, line)
		default:
			c.AddItem(it.ProductID, it.VariantID, it.Quantity, now)
		}
	}
	if c.CouponCode == "" {
		c.CouponCode = src.CouponCode
	}
	c.UpdatedAt = now
}

func (c *Cart) copyBundleGroup(src *Cart, anchor CartItem, now time.Time) {
	var children []CartItem
	for _, it := range src.Items {
		if it.ParentItemID == anchor.ID {
			children = append(children, it)
		}
	}
	if len(children) == 0 && c.HasBundleAnchor(anchor.BundleID) {
		return
	}

	newAnchor := anchor
	newAnchor.ID = uuid.NewString()
	newAnchor.CreatedAt = now
	c.Items = append(c.Items, newAnchor)
	for _, ch := range children {
		ch.ID = uuid.NewString()
		ch.ParentItemID = newAnchor.ID
		ch.CreatedAt = now
		c.Items = append(c.Items, ch)
	}
}

// HasBundleAnchor reports whether the cart already holds an anchor line for
// the bundle.
func (c *Cart) HasBundleAnchor(bundleID string) bool {
	for i := range c.Items {
		if c.Items[i].IsBundleAnchor && c.Items[i].BundleID == bundleID {
			return true
		}
	}
	return false
}

// ProductRefs returns the product and variant ids the cart references,
// bundle components included, for catalog loading.
func (c *Cart) ProductRefs(bundles map[string]*Bundle) (productIDs, variantIDs, bundleIDs []string) {
	seenP, seenV, seenB := map[string]bool{}, map[string]bool{}, map[string]bool{}
	addP := func(id string) {
		if id != "" && !seenP[id] {
			seenP[id] = true
			productIDs = append(productIDs, id)
		}
	}
	addV := func(id string) {
		if id != "" && !seenV[id] {
			seenV[id] = true
			variantIDs = append(variantIDs, id)
		}
	}
	for _, it := range c.Items {
		addP(it.ProductID)
		addV(it.VariantID)
		if it.BundleID != "" && !seenB[it.BundleID] {
			seenB[it.BundleID] = true
			bundleIDs = append(bundleIDs, it.BundleID)
		}
		if b, ok := bundles[it.BundleID]; ok && it.IsBundleAnchor {
			for _, comp := range b.Components(it.BundleSelection) {
				addP(comp.ProductID)
				addV(comp.VariantID)
			}
		}
	}
	return productIDs, variantIDs, bundleIDs
}
