package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// ShippingProvider looks up shipping zones, methods and rates.
// *client.ShippingClient satisfies it.
type ShippingProvider interface {
	FindZone(ctx context.Context, city string) (*client.ShippingZone, error)
	ListMethods(ctx context.Context, zoneID string) ([]client.ShippingMethod, error)
	CalculateCost(ctx context.Context, req client.CostRequest) (int64, error)
	EstimatedDelivery(ctx context.Context, methodID, zoneID string) (string, error)
}

// PaymentInitiator starts payments and verifies provider callbacks.
// *client.PaymentGateway satisfies it.
type PaymentInitiator interface {
	CreatePayment(ctx context.Context, req client.PaymentRequest) (*client.PaymentInitiation, error)
	HandleCallback(ctx context.Context, method string, payload []byte, signature string) (*client.CallbackResult, error)
}

// CheckoutConfig holds checkout settings.
type CheckoutConfig struct {
	Currency       string
	Loyalty        domain.LoyaltySettings
	IdempotencyTTL time.Duration
}

// ShippingOption is a shipping method priced for the current cart.
type ShippingOption struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Carrier               string `json:"carrier,omitempty"`
	Cost                  int64  `json:"cost"`
	FreeShippingThreshold *int64 `json:"free_shipping_threshold,omitempty"`
	EstimatedDelivery     string `json:"estimated_delivery,omitempty"`
}

// PreviewInput holds the parameters for a totals preview.
type PreviewInput struct {
	City             string `json:"city"`
	ShippingMethodID string `json:"shipping_method"`
	LoyaltyPoints    int64  `json:"loyalty_points" validate:"gte=0"`
}

// Preview is a non-binding totals estimate.
type Preview struct {
	domain.Totals
	Currency          string `json:"currency"`
	CouponCode        string `json:"coupon_code,omitempty"`
	CouponValid       bool   `json:"coupon_valid"`
	CouponMessage     string `json:"coupon_message,omitempty"`
	PointBalance      int64  `json:"point_balance"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`
}

// PlaceOrderInput holds the parameters for placing an order.
type PlaceOrderInput struct {
	Email            string         `json:"email" validate:"required,email"`
	ShippingAddress  domain.Address `json:"shipping_address"`
	ShippingMethodID string         `json:"shipping_method" validate:"required"`
	PaymentMethod    string         `json:"payment_method" validate:"required,oneof=cod bank_transfer card"`
	LoyaltyPoints    int64          `json:"loyalty_points" validate:"gte=0"`
	Notes            string         `json:"notes" validate:"max=1000"`
}

// PlaceOrderResult is the outcome of PlaceOrder. Payment is nil when
// initiation failed or the order was replayed.
type PlaceOrderResult struct {
	Order    *domain.Order             `json:"order"`
	Payment  *client.PaymentInitiation `json:"payment,omitempty"`
	Replayed bool                      `json:"replayed"`
}

// CheckoutService turns carts into orders.
type CheckoutService struct {
	reader   cartReader
	loyalty  repository.LoyaltyRepository
	orders   repository.OrderRepository
	uow      repository.UnitOfWork
	idem     repository.IdempotencyStore
	shipping ShippingProvider
	payments PaymentInitiator
	producer *event.Producer
	logger   *slog.Logger
	cfg      CheckoutConfig
	now      Clock
}

// CheckoutDeps groups the collaborators of CheckoutService.
type CheckoutDeps struct {
	Carts       repository.CartRepository
	Catalog     repository.CatalogRepository
	Bundles     repository.BundleRepository
	Coupons     repository.CouponRepository
	Loyalty     repository.LoyaltyRepository
	Orders      repository.OrderRepository
	UnitOfWork  repository.UnitOfWork
	Idempotency repository.IdempotencyStore
	Shipping    ShippingProvider
	Payments    PaymentInitiator
	Producer    *event.Producer
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(deps CheckoutDeps, cfg CheckoutConfig, logger *slog.Logger) *CheckoutService {
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &CheckoutService{
		reader: cartReader{
			carts:   deps.Carts,
			catalog: deps.Catalog,
			bundles: deps.Bundles,
			coupons: deps.Coupons,
			logger:  logger,
		},
		loyalty:  deps.Loyalty,
		orders:   deps.Orders,
		uow:      deps.UnitOfWork,
		idem:     deps.Idempotency,
		shipping: deps.Shipping,
		payments: deps.Payments,
		producer: deps.Producer,
		logger:   logger,
		cfg:      cfg,
		now:      systemClock,
	}
}

// ShippingMethods lists the methods serving city, priced for the actor's cart.
func (s *CheckoutService) ShippingMethods(ctx context.Context, actor domain.Actor, city string) ([]ShippingOption, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if city == "" {
		return nil, apperrors.InvalidInput("city is required")
	}

	now := s.now()
	c, err := s.reader.load(ctx, actor, now)
	if err != nil {
		return nil, err
	}
	cat, err := s.reader.snapshot(ctx, c)
	if err != nil {
		return nil, err
	}
	sum := c.Summarize(cat, now)

	zone, err := s.shipping.FindZone(ctx, city)
	if err != nil {
		return nil, err
	}
	methods, err := s.shipping.ListMethods(ctx, zone.ID)
	if err != nil {
		return nil, err
	}

	out := make([]ShippingOption, 0, len(methods))
	for _, m := range methods {
		cost, err := s.shipping.CalculateCost(ctx, client.CostRequest{
			MethodID:  m.ID,
			ZoneID:    zone.ID,
			Subtotal:  sum.Subtotal,
			Weight:    sum.TotalWeight,
			ItemCount: sum.ItemCount,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, ShippingOption{
			ID:                    m.ID,
			Name:                  m.Name,
			Carrier:               m.Carrier,
			Cost:                  cost,
			FreeShippingThreshold: m.FreeShippingThreshold,
			EstimatedDelivery:     s.estimate(ctx, m.ID, zone.ID),
		})
	}
	return out, nil
}

// estimate returns the delivery window, or "" when the lookup fails.
func (s *CheckoutService) estimate(ctx context.Context, methodID, zoneID string) string {
	eta, err := s.shipping.EstimatedDelivery(ctx, methodID, zoneID)
	if err != nil {
		s.logger.WarnContext(ctx, "delivery estimate unavailable",
			slog.String("method", methodID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return eta
}

// shippingQuote is a resolved shipping cost.
type shippingQuote struct {
	cost     int64
	estimate string
}

func (s *CheckoutService) quoteShipping(ctx context.Context, methodID, city string, sum domain.CartSummary) (shippingQuote, error) {
	zoneID := ""
	if city != "" {
		zone, err := s.shipping.FindZone(ctx, city)
		if err != nil {
			return shippingQuote{}, err
		}
		zoneID = zone.ID
	}
	cost, err := s.shipping.CalculateCost(ctx, client.CostRequest{
		MethodID:  methodID,
		ZoneID:    zoneID,
		Subtotal:  sum.Subtotal,
		Weight:    sum.TotalWeight,
		ItemCount: sum.ItemCount,
	})
	if err != nil {
		return shippingQuote{}, err
	}
	return shippingQuote{cost: cost, estimate: s.estimate(ctx, methodID, zoneID)}, nil
}

// Preview estimates totals for the actor's cart. An invalid coupon is
// reported rather than rejected, and no rows are locked.
func (s *CheckoutService) Preview(ctx context.Context, actor domain.Actor, input PreviewInput) (*Preview, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if input.LoyaltyPoints < 0 {
		return nil, apperrors.InvalidInput("loyalty_points must not be negative")
	}

	now := s.now()
	c, err := s.reader.load(ctx, actor, now)
	if err != nil {
		return nil, err
	}
	cat, err := s.reader.snapshot(ctx, c)
	if err != nil {
		return nil, err
	}
	sum := c.Summarize(cat, now)

	p := &Preview{Currency: s.cfg.Currency, CouponCode: c.CouponCode}
	in := domain.TotalsInput{Subtotal: sum.Subtotal, RequestedPoints: input.LoyaltyPoints}

	if c.CouponCode != "" {
		check, err := s.reader.evaluateCoupon(ctx, c.CouponCode, sum.Subtotal, actor.UserID, now)
		if err != nil {
			return nil, err
		}
		p.CouponValid = check.validation.Valid
		p.CouponMessage = check.validation.Message
		in.CouponDiscount = check.discount
		in.FreeShipping = check.validation.Valid && check.coupon.GrantsFreeShipping()
	}

	if input.ShippingMethodID != "" && !c.IsEmpty() {
		q, err := s.quoteShipping(ctx, input.ShippingMethodID, input.City, sum)
		if err != nil {
			return nil, err
		}
		in.ShippingCost = q.cost
		p.EstimatedDelivery = q.estimate
	}

	if actor.UserID != "" {
		if p.PointBalance, err = s.loyalty.Balance(ctx, actor.UserID); err != nil {
			return nil, fmt.Errorf("load loyalty balance: %w", err)
		}
		in.PointBalance = p.PointBalance
	} else {
		in.RequestedPoints = 0
	}

	p.Totals = domain.CalculateTotals(in, s.cfg.Loyalty)
	return p, nil
}

// PlaceOrder converts the actor's cart into an order.
//
// Stock, bundle ceilings, the coupon limit and the loyalty balance are
// re-checked under row locks in the same transaction that writes the order,
// decrements stock, records coupon usage, redeems points and deletes the
// cart. Events, notifications and payment initiation run after commit and
// their failures are logged only.
//
// A non-empty idempotencyKey makes the call replay the first order placed
// with that key by the same actor.
func (s *CheckoutService) PlaceOrder(ctx context.Context, actor domain.Actor, input PlaceOrderInput, idempotencyKey string) (*PlaceOrderResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !domain.IsValidPaymentMethod(input.PaymentMethod) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported payment method %q", input.PaymentMethod))
	}
	if input.LoyaltyPoints < 0 {
		return nil, apperrors.InvalidInput("loyalty_points must not be negative")
	}
	if input.LoyaltyPoints > 0 && actor.UserID == "" {
		return nil, apperrors.Unauthorized("sign in to redeem loyalty points")
	}

	key := scopeIdempotencyKey(actor, idempotencyKey)
	if key != "" {
		if res, err := s.replay(ctx, key); res != nil || err != nil {
			return res, err
		}
		acquired, err := s.idem.Acquire(ctx, key, s.cfg.IdempotencyTTL)
		switch {
		case err != nil:
			// The unique key on orders still guards against duplicates.
			s.logger.WarnContext(ctx, "idempotency store unavailable",
				slog.String("error", err.Error()),
			)
		case !acquired:
			if res, err := s.replay(ctx, key); res != nil || err != nil {
				return res, err
			}
			return nil, apperrors.Conflict("request_in_progress", "an identical order request is still being processed")
		default:
			defer func() {
				if err := s.idem.Release(context.WithoutCancel(ctx), key); err != nil {
					s.logger.WarnContext(ctx, "failed to release idempotency key", slog.String("error", err.Error()))
				}
			}()
		}
	}

	order, err := s.placeOrder(ctx, actor, input, key)
	if err != nil {
		if key != "" && errors.Is(err, apperrors.ErrAlreadyExists) {
			if res, rerr := s.replay(ctx, key); res != nil || rerr != nil {
				return res, rerr
			}
		}
		checkoutOutcomes.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}
	checkoutOutcomes.WithLabelValues("placed").Inc()

	if key != "" {
		if err := s.idem.Complete(ctx, key, order.Number, s.cfg.IdempotencyTTL); err != nil {
			s.logger.WarnContext(ctx, "failed to record idempotency key",
				slog.String("order_number", order.Number),
				slog.String("error", err.Error()),
			)
		}
	}

	return &PlaceOrderResult{Order: order, Payment: s.afterCommit(ctx, order)}, nil
}

func scopeIdempotencyKey(actor domain.Actor, key string) string {
	if key == "" {
		return ""
	}
	owner := actor.UserID
	if owner == "" {
		owner = "session:" + actor.SessionToken
	}
	return owner + ":" + key
}

// replay returns the order already placed under key, or nil when there is none.
func (s *CheckoutService) replay(ctx context.Context, key string) (*PlaceOrderResult, error) {
	number, done, err := s.idem.Lookup(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "idempotency lookup failed", slog.String("error", err.Error()))
	}

	var order *domain.Order
	if done {
		order, err = s.orders.GetByNumber(ctx, number)
	} else {
		order, err = s.orders.GetByIdempotencyKey(ctx, key)
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load replayed order: %w", err)
	}

	s.logger.InfoContext(ctx, "order request replayed", slog.String("order_number", order.Number))
	return &PlaceOrderResult{Order: order, Replayed: true}, nil
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrConflict):
		return "conflict"
	case errors.Is(err, apperrors.ErrBusinessRule):
		return "rejected"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

// placeOrder validates the cart, prices it and commits the order.
func (s *CheckoutService) placeOrder(ctx context.Context, actor domain.Actor, input PlaceOrderInput, key string) (*domain.Order, error) {
	now := s.now()
	c, err := s.reader.load(ctx, actor, now)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, apperrors.BusinessRule(domain.ReasonEmptyCart, "your cart is empty")
	}
	cat, err := s.reader.snapshot(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := validateLines(c, cat, now); err != nil {
		return nil, domainError(err)
	}
	sum := c.Summarize(cat, now)

	var coupon couponCheck
	if c.CouponCode != "" {
		if coupon, err = s.reader.evaluateCoupon(ctx, c.CouponCode, sum.Subtotal, actor.UserID, now); err != nil {
			return nil, err
		}
		if verr := coupon.validation.Err(); verr != nil {
			return nil, domainError(verr)
		}
	}

	ship, err := s.quoteShipping(ctx, input.ShippingMethodID, input.ShippingAddress.City, sum)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:                uuid.NewString(),
		Number:            domain.NewOrderNumber(now),
		UserID:            actor.UserID,
		SessionToken:      actor.SessionToken,
		Email:             input.Email,
		Status:            domain.OrderStatusPending,
		PaymentStatus:     domain.PaymentStatusPending,
		PaymentMethod:     input.PaymentMethod,
		Currency:          s.cfg.Currency,
		ShippingMethod:    input.ShippingMethodID,
		ShippingAddress:   input.ShippingAddress,
		EstimatedDelivery: ship.estimate,
		Notes:             input.Notes,
		IdempotencyKey:    key,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if actor.UserID != "" {
		order.SessionToken = ""
	}
	if input.PaymentMethod == domain.PaymentMethodBankTransfer {
		order.PaymentStatus = domain.PaymentStatusAwaitingTransfer
	}
	if coupon.coupon != nil {
		order.CouponCode = coupon.coupon.Code
		order.CouponID = coupon.coupon.ID
	}
	order.Items = domain.SnapshotItems(order.ID, c, cat, now)
	order.History = []domain.StatusHistory{{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		ToStatus:  domain.OrderStatusPending,
		Note:      "order placed",
		ChangedBy: actor.UserID,
		CreatedAt: now,
	}}

	totalsIn := domain.TotalsInput{
		Subtotal:        sum.Subtotal,
		CouponDiscount:  coupon.discount,
		FreeShipping:    coupon.coupon != nil && coupon.coupon.GrantsFreeShipping(),
		ShippingCost:    ship.cost,
		RequestedPoints: input.LoyaltyPoints,
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		demands := c.StockDemands(cat.Bundles)
		if err := reserveStock(ctx, tx, demands); err != nil {
			return err
		}
		bundleUnits := c.BundleUnits(cat.Bundles)
		if err := checkBundleCeilings(ctx, tx, bundleUnits, now); err != nil {
			return err
		}

		var balance int64
		if actor.UserID != "" && input.LoyaltyPoints > 0 {
			locked, err := tx.LockLoyaltyBalance(ctx, actor.UserID)
			if err != nil {
				return err
			}
			balance = locked
		}
		totalsIn.PointBalance = balance
		applyTotals(order, domain.CalculateTotals(totalsIn, s.cfg.Loyalty))

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		for _, d := range demands {
			if err := adjustStock(ctx, tx, d, -d.Quantity); err != nil {
				return err
			}
		}
		revenue := order.BundleRevenue()
		for _, id := range sortedKeys(bundleUnits) {
			if err := tx.RecordBundleSale(ctx, id, bundleUnits[id], revenue[id]); err != nil {
				return err
			}
		}

		if coupon.coupon != nil {
			if err := tx.RedeemCoupon(ctx, domain.CouponUsage{
				ID:        uuid.NewString(),
				CouponID:  coupon.coupon.ID,
				UserID:    actor.UserID,
				OrderID:   order.ID,
				Discount:  order.Discount,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		if order.LoyaltyPointsRedeemed > 0 {
			entry, err := domain.NewLedgerEntry(actor.UserID, domain.LoyaltyRedeemed, balance,
				-order.LoyaltyPointsRedeemed, order.ID, "redeemed on order "+order.Number, now)
			if err != nil {
				return conflictError(err)
			}
			if err := tx.AppendLoyalty(ctx, entry); err != nil {
				return err
			}
		}

		return tx.DeleteCart(ctx, c.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.String("order_number", order.Number),
		slog.Int64("total", order.Total),
		slog.String("payment_method", order.PaymentMethod),
	)
	return order, nil
}

// validateLines rejects carts holding unavailable products or bundles, or
// bundle selections that no longer validate.
func validateLines(c *domain.Cart, cat domain.CartCatalog, now time.Time) error {
	for _, it := range c.Items {
		if !it.IsBundleAnchor {
			continue
		}
		b, ok := cat.Bundles[it.BundleID]
		if !ok || !b.IsAvailable(now) {
			return &domain.Violation{Reason: domain.ReasonBundleUnavailable, Message: "a bundle in your cart is no longer available"}
		}
		if errs := domain.ValidateSelection(b, it.BundleSelection); len(errs) > 0 {
			return &domain.SelectionError{Errors: errs}
		}
	}
	for _, line := range c.Summarize(cat, now).Lines {
		if line.IsBundleAnchor {
			continue
		}
		if !line.Available {
			name := line.Name
			if name == "" {
				name = "product " + line.ProductID
			}
			return &domain.Violation{Reason: domain.ReasonItemUnavailable, Message: name + " is no longer available"}
		}
	}
	return nil
}

// reserveStock locks every demanded row, in id order, and checks it before
// any stock is written.
func reserveStock(ctx context.Context, tx repository.Tx, demands []domain.StockDemand) error {
	for _, d := range demands {
		var (
			rec domain.StockRecord
			err error
		)
		if d.VariantID != "" {
			rec, err = tx.LockVariant(ctx, d.ProductID, d.VariantID)
		} else {
			rec, err = tx.LockProduct(ctx, d.ProductID)
		}
		if err != nil {
			return err
		}
		if err := domain.CheckStock(rec, d.Quantity); err != nil {
			return conflictError(err)
		}
	}
	return nil
}

func adjustStock(ctx context.Context, tx repository.Tx, d domain.StockDemand, delta int) error {
	if d.VariantID != "" {
		return tx.AdjustVariantStock(ctx, d.VariantID, delta)
	}
	return tx.AdjustProductStock(ctx, d.ProductID, delta)
}

func checkBundleCeilings(ctx context.Context, tx repository.Tx, units map[string]int, now time.Time) error {
	for _, id := range sortedKeys(units) {
		b, err := tx.LockBundle(ctx, id)
		if err != nil {
			return err
		}
		if !b.IsAvailable(now) {
			return apperrors.Conflict(domain.ReasonBundleUnavailable,
				fmt.Sprintf("bundle %s is no longer available, please review your cart", b.Name))
		}
		if remaining, limited := b.RemainingStock(); limited && remaining < units[id] {
			return apperrors.Conflict(domain.ReasonBundleSoldOut,
				fmt.Sprintf("only %d of bundle %s left, please review your cart", remaining, b.Name))
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func applyTotals(o *domain.Order, t domain.Totals) {
	o.Subtotal = t.Subtotal
	o.Discount = t.Discount
	o.Shipping = t.Shipping
	o.LoyaltyPointsRedeemed = t.LoyaltyPointsRedeemed
	o.LoyaltyDiscount = t.LoyaltyDiscount
	o.Total = t.Total
	o.LoyaltyPointsEarned = t.LoyaltyPointsEarned
}

// afterCommit publishes the order, sends notifications and starts payment.
// None of these can fail the checkout.
func (s *CheckoutService) afterCommit(ctx context.Context, o *domain.Order) *client.PaymentInitiation {
	logFailure := func(what string, err error) {
		s.logger.ErrorContext(ctx, what,
			slog.String("order_number", o.Number),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishOrderCreated(ctx, o); err != nil {
		logFailure("failed to publish order created event", err)
	}
	if err := s.producer.SendOrderConfirmation(ctx, o); err != nil {
		logFailure("failed to send order confirmation", err)
	}
	if err := s.producer.SendAdminOrderAlert(ctx, o); err != nil {
		logFailure("failed to send admin order alert", err)
	}

	payment, err := s.payments.CreatePayment(ctx, client.PaymentRequest{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Email:       o.Email,
		Amount:      o.Total,
		Currency:    o.Currency,
		Method:      o.PaymentMethod,
	})
	if err != nil {
		logFailure("payment initiation failed", err)
		return nil
	}
	return payment
}
