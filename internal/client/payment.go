package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// PaymentRequest hands an order to the payment collaborator.
type PaymentRequest struct {
	OrderID     string
	OrderNumber string
	Email       string
	Amount      int64
	Currency    string
	Method      string
}

// PaymentInitiation tells the client how to complete payment.
type PaymentInitiation struct {
	Method        string `json:"method"`
	PaymentStatus string `json:"payment_status"`
	Reference     string `json:"reference,omitempty"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	ClientSecret  string `json:"client_secret,omitempty"`
	Instructions  string `json:"instructions,omitempty"`
}

// CallbackResult is the verified outcome of a provider callback.
type CallbackResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	OrderNumber    string `json:"order_number,omitempty"`
	TransactionRef string `json:"transaction_ref,omitempty"`
	Ignored        bool   `json:"ignored,omitempty"`
}

// BankTransferConfig holds the account customers transfer to.
type BankTransferConfig struct {
	AccountName string
	IBAN        string
}

// StripeConfig configures card payments.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	ReturnURL     string
}

type intentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// PaymentGateway routes payment initiation by method. Cash on delivery and
// bank transfer settle offline; cards go through Stripe PaymentIntents.
type PaymentGateway struct {
	intents intentCreator
	stripe  StripeConfig
	bank    BankTransferConfig
	logger  *slog.Logger
}

// NewPaymentGateway creates a gateway using the Stripe API backend.
func NewPaymentGateway(sc StripeConfig, bank BankTransferConfig, logger *slog.Logger) *PaymentGateway {
	return &PaymentGateway{
		intents: &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: sc.SecretKey},
		stripe:  sc,
		bank:    bank,
		logger:  logger,
	}
}

// CreatePayment starts payment for an order.
func (g *PaymentGateway) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentInitiation, error) {
	switch req.Method {
	case domain.PaymentMethodCOD:
		return &PaymentInitiation{Method: req.Method, PaymentStatus: domain.PaymentStatusPending}, nil

	case domain.PaymentMethodBankTransfer:
		return &PaymentInitiation{
			Method:        req.Method,
			PaymentStatus: domain.PaymentStatusAwaitingTransfer,
			Reference:     req.OrderNumber,
			Instructions: fmt.Sprintf("Transfer %s %s to %s (%s) quoting reference %s",
				formatAmount(req.Amount), req.Currency, g.bank.AccountName, g.bank.IBAN, req.OrderNumber),
		}, nil

	case domain.PaymentMethodCard:
		if g.stripe.SecretKey == "" {
			return nil, apperrors.Integration("payment", fmt.Errorf("card payments are not configured"))
		}
		params := &stripe.PaymentIntentParams{
			Amount:   stripe.Int64(req.Amount),
			Currency: stripe.String(strings.ToLower(req.Currency)),
			AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
				Enabled: stripe.Bool(true),
			},
			ReceiptEmail: stripe.String(req.Email),
			Metadata: map[string]string{
				"order_id":     req.OrderID,
				"order_number": req.OrderNumber,
			},
		}
		params.SetIdempotencyKey("order-" + req.OrderID)

		intent, err := g.intents.New(params)
		if err != nil {
			return nil, apperrors.Integration("payment", fmt.Errorf("create payment intent: %w", err))
		}
		return &PaymentInitiation{
			Method:        req.Method,
			PaymentStatus: domain.PaymentStatusPending,
			Reference:     intent.ID,
			ClientSecret:  intent.ClientSecret,
			RedirectURL:   g.stripe.ReturnURL + "?order=" + req.OrderNumber,
		}, nil
	}
	return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported payment method %q", req.Method))
}

// HandleCallback verifies and decodes a provider callback. Only card
// payments report back asynchronously.
func (g *PaymentGateway) HandleCallback(ctx context.Context, method string, payload []byte, signature string) (*CallbackResult, error) {
	if method != domain.PaymentMethodCard {
		return nil, apperrors.InvalidInput(fmt.Sprintf("payment method %q has no callbacks", method))
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.stripe.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, apperrors.Unauthorized("invalid payment callback signature")
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		g.logger.InfoContext(ctx, "ignoring payment callback", slog.String("type", string(event.Type)))
		return &CallbackResult{Ignored: true, Message: "event ignored"}, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, apperrors.InvalidInput("malformed payment intent payload")
	}
	number := pi.Metadata["order_number"]
	if number == "" {
		return nil, apperrors.InvalidInput("payment intent carries no order number")
	}

	res := &CallbackResult{OrderNumber: number, TransactionRef: pi.ID}
	if event.Type == "payment_intent.succeeded" {
		res.Success = true
		res.Message = "payment captured"
		return res, nil
	}
	res.Message = "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		res.Message = pi.LastPaymentError.Msg
	}
	return res, nil
}

func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
