package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
)

// PaymentResultData is the payload of payment.succeeded and payment.failed
// events emitted by the payment provider integration.
type PaymentResultData struct {
	OrderNumber string `json:"order_number"`
	Reference   string `json:"reference,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// PaymentSettler applies payment outcomes to orders.
type PaymentSettler interface {
	ConfirmPayment(ctx context.Context, number, reference string) (*domain.Order, error)
	FailPayment(ctx context.Context, number, reason string) (*domain.Order, error)
}

// NewPaymentHandler returns the handler for payment result events. Events
// that can never apply (unknown order, malformed payload, illegal state) are
// marked permanent so the consumer dead-letters them instead of retrying.
func NewPaymentHandler(settler PaymentSettler, logger *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, ev *pkgkafka.Event) error {
		var data PaymentResultData
		if err := ev.UnmarshalData(&data); err != nil || data.OrderNumber == "" {
			return fmt.Errorf("%w: invalid payment event payload", pkgkafka.ErrPermanent)
		}

		var err error
		switch ev.EventType {
		case TopicPaymentSucceeded, "payment.succeeded":
			_, err = settler.ConfirmPayment(ctx, data.OrderNumber, data.Reference)
		case TopicPaymentFailed, "payment.failed":
			_, err = settler.FailPayment(ctx, data.OrderNumber, data.Reason)
		default:
			logger.WarnContext(ctx, "ignoring unknown payment event",
				slog.String("event_type", ev.EventType),
				slog.String("event_id", ev.EventID),
			)
			return nil
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrBusinessRule) {
			return fmt.Errorf("%w: %w", pkgkafka.ErrPermanent, err)
		}
		return err
	}
}

// NewPaymentConsumer wires the payment result handler behind the processed
// event store and the dead-letter producer.
func NewPaymentConsumer(
	cfg pkgkafka.ConsumerConfig,
	settler PaymentSettler,
	store pkgkafka.IdempotencyStore,
	dlq pkgkafka.DeadLetterPublisher,
	logger *slog.Logger,
	opts ...pkgkafka.ConsumerOption,
) *pkgkafka.Consumer {
	cfg.Topics = []string{TopicPaymentSucceeded, TopicPaymentFailed}
	handler := pkgkafka.IdempotentHandler(store, NewPaymentHandler(settler, logger), logger)
	return pkgkafka.NewConsumer(cfg, handler, logger, append([]pkgkafka.ConsumerOption{pkgkafka.WithDLQ(dlq)}, opts...)...)
}
