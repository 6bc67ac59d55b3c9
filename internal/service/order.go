package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

// actorSystem marks history entries written by payment settlement.
const actorSystem = "system"

// OrderService implements order reads and the order lifecycle.
type OrderService struct {
	orders   repository.OrderRepository
	uow      repository.UnitOfWork
	payments PaymentInitiator
	producer *event.Producer
	logger   *slog.Logger
	now      Clock
}

// NewOrderService creates a new order service.
func NewOrderService(
	orders repository.OrderRepository,
	uow repository.UnitOfWork,
	payments PaymentInitiator,
	producer *event.Producer,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:   orders,
		uow:      uow,
		payments: payments,
		producer: producer,
		logger:   logger,
		now:      systemClock,
	}
}

// GetOrder returns an order owned by the actor. Orders of other owners are
// reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, actor domain.Actor, number string) (*domain.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	o, err := s.orders.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if !ownsOrder(actor, o) {
		return nil, apperrors.NotFound("order", number)
	}
	return o, nil
}

func ownsOrder(actor domain.Actor, o *domain.Order) bool {
	if o.UserID != "" {
		return actor.UserID == o.UserID
	}
	return actor.SessionToken != "" && actor.SessionToken == o.SessionToken
}

// ListOrders returns a page of the signed-in actor's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, actor domain.Actor, p pagination.Params) ([]domain.Order, int, error) {
	if actor.UserID == "" {
		return nil, 0, apperrors.Unauthorized("sign in to list orders")
	}
	return s.orders.ListByUser(ctx, actor.UserID, p)
}

// UpdateStatus moves an order along the status machine. Cancelling goes
// through the same reversal as CancelOrder. Moving to the current status is
// a no-op.
func (s *OrderService) UpdateStatus(ctx context.Context, number, next, note, changedBy string) (*domain.Order, error) {
	if !domain.IsValidStatus(next) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown order status %q", next))
	}
	if next == domain.OrderStatusCancelled {
		return s.cancel(ctx, number, note, changedBy)
	}

	now := s.now()
	var (
		order   *domain.Order
		old     string
		changed bool
	)
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOrderByNumber(ctx, number)
		if err != nil {
			return err
		}
		order, old = o, o.Status

		mark := len(o.History)
		if changed, err = o.Transition(next, note, changedBy, now); err != nil {
			return domainError(err)
		}
		if !changed {
			return nil
		}
		return tx.SaveOrderStatus(ctx, o, o.History[mark:])
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return order, nil
	}

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_number", number),
		slog.String("from", old),
		slog.String("to", next),
	)
	if err := s.producer.PublishOrderStatusChanged(ctx, order, old, note); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order status changed event",
			slog.String("order_number", number),
			slog.String("error", err.Error()),
		)
	}
	return order, nil
}

// CancelOrder cancels an order owned by the actor.
func (s *OrderService) CancelOrder(ctx context.Context, actor domain.Actor, number, reason string) (*domain.Order, error) {
	if _, err := s.GetOrder(ctx, actor, number); err != nil {
		return nil, err
	}
	by := actor.UserID
	if by == "" {
		by = "guest"
	}
	return s.cancel(ctx, number, reason, by)
}

// cancel cancels an order and reverses its effects in one transaction:
// stock comes back, the bundle sale is undone, redeemed points are restored
// and points credited at payment are clawed back as far as the balance
// allows. Cancelling a cancelled order is a no-op.
func (s *OrderService) cancel(ctx context.Context, number, reason, changedBy string) (*domain.Order, error) {
	if reason == "" {
		reason = "cancelled"
	}
	now := s.now()
	var (
		order    *domain.Order
		old      string
		restored int64
		changed  bool
	)
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOrderByNumber(ctx, number)
		if err != nil {
			return err
		}
		order, old = o, o.Status
		if o.Status == domain.OrderStatusCancelled {
			return nil
		}
		if !o.IsCancellable() {
			return apperrors.BusinessRule(domain.ReasonInvalidTransition,
				fmt.Sprintf("an order that is %s can no longer be cancelled", o.Status))
		}

		mark := len(o.History)
		if _, err := o.Transition(domain.OrderStatusCancelled, reason, changedBy, now); err != nil {
			return domainError(err)
		}
		changed = true

		for _, d := range o.StockDemands() {
			if err := adjustStock(ctx, tx, d, d.Quantity); err != nil {
				return err
			}
		}
		units, revenue := o.BundleUnits(), o.BundleRevenue()
		for _, id := range sortedKeys(units) {
			if err := tx.RecordBundleSale(ctx, id, -units[id], -revenue[id]); err != nil {
				return err
			}
		}

		if restored, err = reverseLoyalty(ctx, tx, o, now); err != nil {
			return err
		}
		return tx.SaveOrderStatus(ctx, o, o.History[mark:])
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return order, nil
	}

	s.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_number", number),
		slog.String("from", old),
		slog.Int64("points_restored", restored),
	)
	if err := s.producer.PublishOrderCancelled(ctx, order, reason, restored); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order cancelled event",
			slog.String("order_number", number),
			slog.String("error", err.Error()),
		)
	}
	if err := s.producer.PublishOrderStatusChanged(ctx, order, old, reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order status changed event",
			slog.String("order_number", number),
			slog.String("error", err.Error()),
		)
	}
	return order, nil
}

// reverseLoyalty restores redeemed points and claws back credited ones. It
// returns the number of points restored.
func reverseLoyalty(ctx context.Context, tx repository.Tx, o *domain.Order, now time.Time) (int64, error) {
	clawback := o.LoyaltyPointsCredited && o.LoyaltyPointsEarned > 0
	if o.UserID == "" || (o.LoyaltyPointsRedeemed <= 0 && !clawback) {
		return 0, nil
	}

	balance, err := tx.LockLoyaltyBalance(ctx, o.UserID)
	if err != nil {
		return 0, err
	}

	if o.LoyaltyPointsRedeemed > 0 {
		entry, err := domain.NewLedgerEntry(o.UserID, domain.LoyaltyAdjusted, balance, o.LoyaltyPointsRedeemed,
			o.ID, "restored from cancelled order "+o.Number, now)
		if err != nil {
			return 0, err
		}
		if err := tx.AppendLoyalty(ctx, entry); err != nil {
			return 0, err
		}
		balance = entry.BalanceAfter
	}

	if clawback {
		if points := min(o.LoyaltyPointsEarned, balance); points > 0 {
			entry, err := domain.NewLedgerEntry(o.UserID, domain.LoyaltyAdjusted, balance, -points,
				o.ID, "reversed for cancelled order "+o.Number, now)
			if err != nil {
				return 0, err
			}
			if err := tx.AppendLoyalty(ctx, entry); err != nil {
				return 0, err
			}
		}
		o.LoyaltyPointsCredited = false
	}
	return max(o.LoyaltyPointsRedeemed, 0), nil
}

// ConfirmPayment marks an order paid, credits its earned points and moves a
// pending order to confirmed. Confirming a paid order is a no-op.
func (s *OrderService) ConfirmPayment(ctx context.Context, number, reference string) (*domain.Order, error) {
	now := s.now()
	var (
		order    *domain.Order
		old      string
		changed  bool
		credited int64
	)
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOrderByNumber(ctx, number)
		if err != nil {
			return err
		}
		order, old = o, o.Status
		if o.PaymentStatus == domain.PaymentStatusPaid {
			return nil
		}
		if o.Status == domain.OrderStatusCancelled || o.PaymentStatus == domain.PaymentStatusRefunded {
			return apperrors.BusinessRule(domain.ReasonInvalidTransition,
				fmt.Sprintf("order %s is %s and cannot be paid", o.Number, o.Status))
		}

		mark := len(o.History)
		o.PaymentStatus = domain.PaymentStatusPaid
		o.UpdatedAt = now
		if reference != "" {
			o.PaymentReference = reference
		}
		if o.Status == domain.OrderStatusPending {
			if _, err := o.Transition(domain.OrderStatusConfirmed, "payment received", actorSystem, now); err != nil {
				return domainError(err)
			}
		}

		if o.UserID != "" && o.LoyaltyPointsEarned > 0 && !o.LoyaltyPointsCredited {
			balance, err := tx.LockLoyaltyBalance(ctx, o.UserID)
			if err != nil {
				return err
			}
			entry, err := domain.NewLedgerEntry(o.UserID, domain.LoyaltyEarned, balance, o.LoyaltyPointsEarned,
				o.ID, "earned on order "+o.Number, now)
			if err != nil {
				return err
			}
			if err := tx.AppendLoyalty(ctx, entry); err != nil {
				return err
			}
			o.LoyaltyPointsCredited = true
			credited = o.LoyaltyPointsEarned
		}

		changed = true
		return tx.SaveOrderStatus(ctx, o, o.History[mark:])
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return order, nil
	}

	s.logger.InfoContext(ctx, "order payment confirmed",
		slog.String("order_number", number),
		slog.Int64("points_credited", credited),
	)
	if err := s.producer.PublishOrderPaid(ctx, order, credited); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order paid event",
			slog.String("order_number", number),
			slog.String("error", err.Error()),
		)
	}
	if order.Status != old {
		if err := s.producer.PublishOrderStatusChanged(ctx, order, old, "payment received"); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish order status changed event",
				slog.String("order_number", number),
				slog.String("error", err.Error()),
			)
		}
	}
	return order, nil
}

// FailPayment records a failed payment. The order stays open so the
// customer can pay again; a paid order is left untouched.
func (s *OrderService) FailPayment(ctx context.Context, number, reason string) (*domain.Order, error) {
	now := s.now()
	var order *domain.Order
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOrderByNumber(ctx, number)
		if err != nil {
			return err
		}
		order = o
		switch o.PaymentStatus {
		case domain.PaymentStatusPaid, domain.PaymentStatusRefunded, domain.PaymentStatusFailed:
			return nil
		}
		o.PaymentStatus = domain.PaymentStatusFailed
		o.UpdatedAt = now
		return tx.SaveOrderStatus(ctx, o, nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WarnContext(ctx, "order payment failed",
		slog.String("order_number", number),
		slog.String("reason", reason),
	)
	return order, nil
}

// HandlePaymentCallback verifies a provider callback and settles the order
// it names.
func (s *OrderService) HandlePaymentCallback(ctx context.Context, method string, payload []byte, signature string) (*client.CallbackResult, error) {
	res, err := s.payments.HandleCallback(ctx, method, payload, signature)
	if err != nil {
		return nil, err
	}
	if res.Ignored {
		return res, nil
	}

	if res.Success {
		_, err = s.ConfirmPayment(ctx, res.OrderNumber, res.TransactionRef)
	} else {
		_, err = s.FailPayment(ctx, res.OrderNumber, res.Message)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "payment callback for unknown order",
				slog.String("order_number", res.OrderNumber),
			)
		}
		return nil, err
	}
	return res, nil
}
