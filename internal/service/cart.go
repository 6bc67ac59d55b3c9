package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity = 99

// CartView is the priced cart returned to clients. Prices are derived from
// the catalog on every read.
type CartView struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id,omitempty"`
	Lines         []domain.CartLine `json:"lines"`
	Subtotal      int64             `json:"subtotal"`
	BundleSavings int64             `json:"bundle_savings"`
	ItemCount     int               `json:"item_count"`
	TotalWeight   int64             `json:"total_weight"`
	CouponCode    string            `json:"coupon_code,omitempty"`
	CouponValid   bool              `json:"coupon_valid"`
	CouponMessage string            `json:"coupon_message,omitempty"`
	Discount      int64             `json:"discount"`
	FreeShipping  bool              `json:"free_shipping"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// AddItemInput holds the parameters for adding a product to the cart.
type AddItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity" validate:"required,gt=0,lte=99"`
}

// AddBundleInput holds the parameters for adding a bundle to the cart.
type AddBundleInput struct {
	BundleID  string           `json:"bundle_id" validate:"required"`
	Selection domain.Selection `json:"selection" validate:"omitempty,dive"`
	Quantity  int              `json:"quantity" validate:"gte=0,lte=99"`
}

// BundleQuote prices a bundle selection without touching the cart.
type BundleQuote struct {
	BundleID  string `json:"bundle_id"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
	domain.Quote
}

// CartService implements the cart operations for guests and signed-in users.
type CartService struct {
	reader   cartReader
	producer *event.Producer
	logger   *slog.Logger
	now      Clock
}

// NewCartService creates a new cart service.
func NewCartService(
	carts repository.CartRepository,
	catalog repository.CatalogRepository,
	bundles repository.BundleRepository,
	coupons repository.CouponRepository,
	producer *event.Producer,
	logger *slog.Logger,
) *CartService {
	return &CartService{
		reader:   cartReader{carts: carts, catalog: catalog, bundles: bundles, coupons: coupons, logger: logger},
		producer: producer,
		logger:   logger,
		now:      systemClock,
	}
}

// GetCart returns the actor's priced cart. A missing cart is reported as an
// empty one and is not persisted.
func (s *CartService) GetCart(ctx context.Context, actor domain.Actor) (*CartView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	c, err := s.reader.load(ctx, actor, s.now())
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c)
}

// AddItem adds a product to the cart. The stock read here is advisory; the
// authoritative check runs under lock at checkout.
func (s *CartService) AddItem(ctx context.Context, actor domain.Actor, input AddItemInput) (*CartView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if input.ProductID == "" {
		return nil, apperrors.InvalidInput("product_id is required")
	}
	if input.Quantity <= 0 || input.Quantity > MaxLineQuantity {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must be between 1 and %d", MaxLineQuantity))
	}

	now := s.now()
	c, err := s.reader.load(ctx, actor, now)
	if err != nil {
		return nil, err
	}

	rec, err := s.stockRecord(ctx, input.ProductID, input.VariantID)
	if err != nil {
		return nil, err
	}
	inCart := 0
	for _, d := range c.StockDemands(nil) {
		if d.ProductID == input.ProductID && d.VariantID == input.VariantID {
			inCart = d.Quantity
		}
	}
	if err := domain.CheckStock(rec, inCart+input.Quantity); err != nil {
		return nil, domainError(err)
	}

	c.AddItem(input.ProductID, input.VariantID, input.Quantity, now)
	if err := s.reader.carts.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("cart_id", c.ID),
		slog.String("product_id", input.ProductID),
		slog.Int("quantity", input.Quantity),
	)
	return s.view(ctx, c)
}

// stockRecord reads a product, or one of its variants, from the catalog.
func (s *CartService) stockRecord(ctx context.Context, productID, variantID string) (domain.StockRecord, error) {
	products, err := s.reader.catalog.GetProducts(ctx, []string{productID})
	if err != nil {
		return domain.StockRecord{}, fmt.Errorf("load product: %w", err)
	}
	if len(products) == 0 {
		return domain.StockRecord{}, apperrors.NotFound("product", productID)
	}
	p := products[0]
	rec := domain.StockRecord{
		Name:            p.Name,
		Available:       p.StockQuantity,
		Purchasable:     p.IsPurchasable(),
		TrackInventory:  p.TrackInventory,
		AllowBackorders: p.AllowBackorders,
	}
	if variantID == "" {
		return rec, nil
	}

	variants, err := s.reader.catalog.GetVariants(ctx, []string{variantID})
	if err != nil {
		return domain.StockRecord{}, fmt.Errorf("load variant: %w", err)
	}
	if len(variants) == 0 || variants[0].ProductID != productID {
		return domain.StockRecord{}, apperrors.NotFound("variant", variantID)
	}
	v := variants[0]
	rec.Name = p.Name + " - " + v.Name
	rec.Available = v.StockQuantity
	rec.Purchasable = rec.Purchasable && v.IsActive
	return rec, nil
}

// UpdateItemQuantity sets a line's quantity. Zero or less removes the line.
func (s *CartService) UpdateItemQuantity(ctx context.Context, actor domain.Actor, itemID string, qty int) (*CartView, error) {
	if qty > MaxLineQuantity {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must be at most %d", MaxLineQuantity))
	}
	return s.mutate(ctx, actor, func(c *domain.Cart, now time.Time) error {
		return c.UpdateItemQuantity(itemID, qty, now)
	})
}

// RemoveItem deletes a line. Bundle components take their bundle with them.
func (s *CartService) RemoveItem(ctx context.Context, actor domain.Actor, itemID string) (*CartView, error) {
	return s.mutate(ctx, actor, func(c *domain.Cart, now time.Time) error {
		return c.RemoveItem(itemID, now)
	})
}

// ClearCart empties the cart and drops its coupon.
func (s *CartService) ClearCart(ctx context.Context, actor domain.Actor) (*CartView, error) {
	return s.mutate(ctx, actor, func(c *domain.Cart, now time.Time) error {
		c.Clear(now)
		return nil
	})
}

// RemoveCoupon drops the applied coupon.
func (s *CartService) RemoveCoupon(ctx context.Context, actor domain.Actor) (*CartView, error) {
	return s.mutate(ctx, actor, func(c *domain.Cart, now time.Time) error {
		c.RemoveCoupon(now)
		return nil
	})
}

// RemoveBundle removes every line that came from the bundle.
func (s *CartService) RemoveBundle(ctx context.Context, actor domain.Actor, bundleID string) (*CartView, error) {
	return s.mutate(ctx, actor, func(c *domain.Cart, now time.Time) error {
		if c.RemoveBundle(bundleID, now) == 0 {
			return apperrors.NotFound("bundle in cart", bundleID)
		}
		return nil
	})
}

func (s *CartService) mutate(ctx context.Context, actor domain.Actor, fn func(*domain.Cart, time.Time) error) (*CartView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	now := s.now()
	c, err := s.reader.load(ctx, actor, now)
	if err != nil {
		return nil, err
	}
	if err := fn(c, now); err != nil {
		return nil, domainError(err)
	}
	if err := s.reader.carts.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return s.view(ctx, c)
}

// ApplyCoupon validates code against the current cart and stores it.
func (s *CartService) ApplyCoupon(ctx context.Context, actor domain.Actor, code string) (*CartView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if domain.NormalizeCouponCode(code) == "" {
		return nil, apperrors.InvalidInput("coupon code is required")
	}

	now := s.now()
	c, err := s.reader.load(ctx, actor, now)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, apperrors.BusinessRule(domain.ReasonEmptyCart, "add items before applying a coupon")
	}
	cat, err := s.reader.snapshot(ctx, c)
	if err != nil {
		return nil, err
	}

	check, err := s.reader.evaluateCoupon(ctx, code, c.Summarize(cat, now).Subtotal, actor.UserID, now)
	if err != nil {
		return nil, err
	}
	if verr := check.validation.Err(); verr != nil {
		return nil, domainError(verr)
	}

	c.ApplyCoupon(code, now)
	if err := s.reader.carts.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return s.buildView(ctx, c, cat, now)
}

// MergeFromSession moves the actor's guest cart into their user cart and
// deletes it. A missing guest cart is a no-op, so repeating the call is safe.
// Every other cart read for a signed-in actor with a session token merges
// the same way.
func (s *CartService) MergeFromSession(ctx context.Context, actor domain.Actor) (*CartView, error) {
	if actor.UserID == "" {
		return nil, apperrors.Unauthorized("sign in to merge a guest cart")
	}
	c, err := s.reader.load(ctx, actor, s.now())
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c)
}

// AddBundle adds a bundle using its display mode. Re-adding a single_item
// bundle succeeds without changing the cart.
func (s *CartService) AddBundle(ctx context.Context, actor domain.Actor, input AddBundleInput) (*CartView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if input.Quantity > MaxLineQuantity {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must be at most %d", MaxLineQuantity))
	}

	b, err := s.reader.bundles.GetByID(ctx, input.BundleID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	c, err := s.reader.load(ctx, actor, now)
	if err != nil {
		return nil, err
	}

	res, err := domain.AddBundleToCart(c, b, input.Selection, input.Quantity, now)
	if err != nil {
		return nil, domainError(err)
	}
	if !res.NoOp {
		if err := s.reader.carts.Save(ctx, c); err != nil {
			return nil, fmt.Errorf("save cart: %w", err)
		}
		if err := s.producer.PublishBundleAdded(ctx, c.ID, b.ID, input.Quantity, res); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish bundle added event",
				slog.String("bundle_id", b.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.reader.bundles.IncrementAddToCart(ctx, b.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to record bundle add-to-cart",
			slog.String("bundle_id", b.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "bundle added to cart",
		slog.String("cart_id", c.ID),
		slog.String("bundle_id", b.ID),
		slog.String("display_mode", b.DisplayMode),
		slog.Bool("no_op", res.NoOp),
	)
	return s.view(ctx, c)
}

// QuoteBundle prices a selection and reports its validation errors.
func (s *CartService) QuoteBundle(ctx context.Context, bundleID string, sel domain.Selection) (*BundleQuote, error) {
	b, err := s.reader.bundles.GetByID(ctx, bundleID)
	if err != nil {
		return nil, err
	}

	var productIDs, variantIDs []string
	for _, comp := range b.Components(sel) {
		productIDs = append(productIDs, comp.ProductID)
		if comp.VariantID != "" {
			variantIDs = append(variantIDs, comp.VariantID)
		}
	}
	book, err := s.reader.priceBook(ctx, productIDs, variantIDs)
	if err != nil {
		return nil, err
	}

	return &BundleQuote{
		BundleID:  b.ID,
		Name:      b.Name,
		Available: b.IsAvailable(s.now()),
		Quote:     domain.PriceBundle(b, sel, book),
	}, nil
}

func (s *CartService) view(ctx context.Context, c *domain.Cart) (*CartView, error) {
	cat, err := s.reader.snapshot(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, c, cat, s.now())
}

func (s *CartService) buildView(ctx context.Context, c *domain.Cart, cat domain.CartCatalog, now time.Time) (*CartView, error) {
	sum := c.Summarize(cat, now)
	v := &CartView{
		ID:            c.ID,
		UserID:        c.UserID,
		Lines:         sum.Lines,
		Subtotal:      sum.Subtotal,
		BundleSavings: sum.BundleSavings,
		ItemCount:     sum.ItemCount,
		TotalWeight:   sum.TotalWeight,
		CouponCode:    c.CouponCode,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.CouponCode == "" {
		return v, nil
	}

	check, err := s.reader.evaluateCoupon(ctx, c.CouponCode, sum.Subtotal, c.UserID, now)
	if err != nil {
		return nil, err
	}
	v.CouponValid = check.validation.Valid
	v.CouponMessage = check.validation.Message
	v.Discount = check.discount
	v.FreeShipping = check.validation.Valid && check.coupon.GrantsFreeShipping()
	return v, nil
}
