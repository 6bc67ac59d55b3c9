package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const testWebhookSecret = "whsec_test_secret"

type fakeIntents struct {
	params *stripe.PaymentIntentParams
	err    error
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret"}, nil
}

func newTestGateway(intents intentCreator) *PaymentGateway {
	g := NewPaymentGateway(
		StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret, ReturnURL: "https://shop.example/checkout/return"},
		BankTransferConfig{AccountName: "Storefront Ltd", IBAN: "TR00 0000 0000 0000"},
		newTestLogger(),
	)
	g.intents = intents
	return g
}

func TestCreatePayment_OfflineMethods(t *testing.T) {
	g := newTestGateway(&fakeIntents{})
	req := PaymentRequest{OrderID: "o-1", OrderNumber: "ORD-1", Amount: 12550, Currency: "TRY"}

	req.Method = domain.PaymentMethodCOD
	cod, err := g.CreatePayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, cod.PaymentStatus)
	assert.Empty(t, cod.RedirectURL)

	req.Method = domain.PaymentMethodBankTransfer
	bank, err := g.CreatePayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusAwaitingTransfer, bank.PaymentStatus)
	assert.Equal(t, "ORD-1", bank.Reference)
	assert.Contains(t, bank.Instructions, "125.50 TRY")
	assert.Contains(t, bank.Instructions, "TR00 0000 0000 0000")
}

func TestCreatePayment_Card(t *testing.T) {
	intents := &fakeIntents{}
	g := newTestGateway(intents)

	res, err := g.CreatePayment(context.Background(), PaymentRequest{
		OrderID: "o-1", OrderNumber: "ORD-1", Email: "ayse@example.com", Amount: 4400, Currency: "TRY",
		Method: domain.PaymentMethodCard,
	})

	require.NoError(t, err)
	assert.Equal(t, "pi_123", res.Reference)
	assert.Equal(t, "pi_123_secret", res.ClientSecret)
	assert.Equal(t, "https://shop.example/checkout/return?order=ORD-1", res.RedirectURL)
	require.NotNil(t, intents.params)
	assert.Equal(t, int64(4400), *intents.params.Amount)
	assert.Equal(t, "try", *intents.params.Currency)
	assert.Equal(t, "ORD-1", intents.params.Metadata["order_number"])
}

func TestCreatePayment_CardFailureIsIntegrationError(t *testing.T) {
	g := newTestGateway(&fakeIntents{err: errors.New("card network down")})

	_, err := g.CreatePayment(context.Background(), PaymentRequest{OrderID: "o-1", Method: domain.PaymentMethodCard, Amount: 100, Currency: "TRY"})

	assert.ErrorIs(t, err, apperrors.ErrIntegration)
}

func TestCreatePayment_UnknownMethod(t *testing.T) {
	g := newTestGateway(&fakeIntents{})

	_, err := g.CreatePayment(context.Background(), PaymentRequest{Method: "barter"})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func signedEvent(t *testing.T, eventType, intentJSON string) ([]byte, string) {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"api_version":%q,"data":{"object":%s}}`,
		eventType, stripe.APIVersion, intentJSON))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestHandleCallback_Succeeded(t *testing.T) {
	g := newTestGateway(&fakeIntents{})
	payload, sig := signedEvent(t, "payment_intent.succeeded",
		`{"id":"pi_123","object":"payment_intent","metadata":{"order_number":"ORD-1"}}`)

	res, err := g.HandleCallback(context.Background(), domain.PaymentMethodCard, payload, sig)

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "ORD-1", res.OrderNumber)
	assert.Equal(t, "pi_123", res.TransactionRef)
}

func TestHandleCallback_Failed(t *testing.T) {
	g := newTestGateway(&fakeIntents{})
	payload, sig := signedEvent(t, "payment_intent.payment_failed",
		`{"id":"pi_123","object":"payment_intent","metadata":{"order_number":"ORD-1"},"last_payment_error":{"message":"Your card was declined."}}`)

	res, err := g.HandleCallback(context.Background(), domain.PaymentMethodCard, payload, sig)

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Your card was declined.", res.Message)
}

func TestHandleCallback_Rejections(t *testing.T) {
	g := newTestGateway(&fakeIntents{})
	payload, _ := signedEvent(t, "payment_intent.succeeded", `{"id":"pi_1","metadata":{"order_number":"ORD-1"}}`)

	_, err := g.HandleCallback(context.Background(), domain.PaymentMethodCard, payload, "t=1,v1=forged")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = g.HandleCallback(context.Background(), domain.PaymentMethodCOD, payload, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	other, sig := signedEvent(t, "charge.refunded", `{"id":"ch_1"}`)
	res, err := g.HandleCallback(context.Background(), domain.PaymentMethodCard, other, sig)
	require.NoError(t, err)
	assert.True(t, res.Ignored)
}
