package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

var checkoutOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "storefront",
	Subsystem: "checkout",
	Name:      "orders_total",
	Help:      "Place-order attempts, by outcome.",
}, []string{"outcome"})

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// domainError converts domain failures into application errors.
func domainError(err error) error {
	var v *domain.Violation
	if errors.As(err, &v) {
		return apperrors.BusinessRule(v.Reason, v.Message)
	}
	var sel *domain.SelectionError
	if errors.As(err, &sel) {
		fields := make(map[string]string, len(sel.Errors))
		for i, msg := range sel.Errors {
			fields[fmt.Sprintf("selection[%d]", i)] = msg
		}
		return apperrors.ValidationFailed("invalid bundle selection", fields)
	}
	if errors.Is(err, domain.ErrCartItemNotFound) {
		return apperrors.NotFound("cart item", "")
	}
	return err
}

// conflictError converts a rule that failed under row locks into a retryable
// conflict. Anything else passes through.
func conflictError(err error) error {
	var v *domain.Violation
	if errors.As(err, &v) {
		return apperrors.Conflict(v.Reason, v.Message+", please review your cart")
	}
	return err
}

func requireActor(actor domain.Actor) error {
	if !actor.Valid() {
		return apperrors.Unauthorized("a session token or signed-in user is required")
	}
	return nil
}

// cartReader loads carts and the catalog snapshot needed to price them.
type cartReader struct {
	carts   repository.CartRepository
	catalog repository.CatalogRepository
	bundles repository.BundleRepository
	coupons repository.CouponRepository
	logger  *slog.Logger
}

// load returns the actor's cart. A missing cart is returned as a new,
// unsaved empty cart. A signed-in actor still holding a session token gets
// that guest cart folded into their own first, so a shopper never has two
// active carts.
func (r cartReader) load(ctx context.Context, actor domain.Actor, now time.Time) (*domain.Cart, error) {
	if actor.UserID == "" {
		c, err := r.carts.GetBySession(ctx, actor.SessionToken)
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.NewCart(actor, now), nil
		}
		if err != nil {
			return nil, fmt.Errorf("load cart: %w", err)
		}
		return c, nil
	}

	c, err := r.carts.GetByUser(ctx, actor.UserID)
	if errors.Is(err, apperrors.ErrNotFound) {
		c, err = domain.NewCart(actor, now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if actor.SessionToken != "" {
		if err := r.adopt(ctx, c, actor.SessionToken, now); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// adopt merges the guest cart held by token into c, saves c and deletes the
// guest cart. Without a guest cart it does nothing.
func (r cartReader) adopt(ctx context.Context, c *domain.Cart, token string, now time.Time) error {
	src, err := r.carts.GetBySession(ctx, token)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session cart: %w", err)
	}

	c.MergeFrom(src, now)
	if err := r.carts.Save(ctx, c); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if err := r.carts.Delete(ctx, src.ID); err != nil {
		return fmt.Errorf("delete session cart: %w", err)
	}

	r.logger.InfoContext(ctx, "session cart merged",
		slog.String("cart_id", c.ID),
		slog.String("session_cart_id", src.ID),
		slog.Int("lines", len(src.Items)),
	)
	return nil
}

// snapshot loads the bundles, products and variants a cart references.
func (r cartReader) snapshot(ctx context.Context, c *domain.Cart) (domain.CartCatalog, error) {
	bundles := map[string]*domain.Bundle{}
	if _, _, bundleIDs := c.ProductRefs(nil); len(bundleIDs) > 0 {
		found, err := r.bundles.GetByIDs(ctx, bundleIDs)
		if err != nil {
			return domain.CartCatalog{}, fmt.Errorf("load bundles: %w", err)
		}
		for _, b := range found {
			bundles[b.ID] = b
		}
	}

	productIDs, variantIDs, _ := c.ProductRefs(bundles)
	book, err := r.priceBook(ctx, productIDs, variantIDs)
	if err != nil {
		return domain.CartCatalog{}, err
	}
	return domain.CartCatalog{Book: book, Bundles: bundles}, nil
}

func (r cartReader) priceBook(ctx context.Context, productIDs, variantIDs []string) (*domain.PriceBook, error) {
	var (
		products []*domain.Product
		variants []*domain.Variant
		err      error
	)
	if len(productIDs) > 0 {
		if products, err = r.catalog.GetProducts(ctx, productIDs); err != nil {
			return nil, fmt.Errorf("load products: %w", err)
		}
	}
	if len(variantIDs) > 0 {
		if variants, err = r.catalog.GetVariants(ctx, variantIDs); err != nil {
			return nil, fmt.Errorf("load variants: %w", err)
		}
	}
	return domain.NewPriceBook(products, variants), nil
}

// couponCheck is the outcome of re-validating a cart's coupon.
type couponCheck struct {
	coupon     *domain.Coupon
	validation domain.CouponValidation
	discount   int64
}

// evaluateCoupon validates code against subtotal. A missing coupon is an
// invalid result rather than an error.
func (r cartReader) evaluateCoupon(ctx context.Context, code string, subtotal int64, userID string, now time.Time) (couponCheck, error) {
	coupon, err := r.coupons.GetByCode(ctx, code)
	if errors.Is(err, apperrors.ErrNotFound) {
		return couponCheck{validation: domain.CouponValidation{
			Reason:  domain.ReasonCouponNotFound,
			Message: fmt.Sprintf("coupon %s does not exist", domain.NormalizeCouponCode(code)),
		}}, nil
	}
	if err != nil {
		return couponCheck{}, fmt.Errorf("load coupon: %w", err)
	}

	cc := domain.CouponContext{Subtotal: subtotal, UserID: userID, Now: now}
	if userID != "" {
		if cc.UserUsageCount, err = r.coupons.CountUsageByUser(ctx, coupon.ID, userID); err != nil {
			return couponCheck{}, fmt.Errorf("count coupon usage: %w", err)
		}
		if coupon.FirstOrderOnly {
			if cc.UserOrderCount, err = r.coupons.CountOrdersByUser(ctx, userID); err != nil {
				return couponCheck{}, fmt.Errorf("count orders: %w", err)
			}
		}
	}

	res := couponCheck{coupon: coupon, validation: coupon.Validate(cc)}
	if res.validation.Valid {
		res.discount = coupon.CalculateDiscount(subtotal)
	}
	return res, nil
}
