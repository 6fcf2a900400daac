package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/testutils"
	"github.com/tarifly/backend/pkg/payment"
)

// paidIntent opens a Stripe payment for plan and marks it paid at the
// provider and in the store.
func (e *testEnv) paidIntent(t *testing.T, userID primitive.ObjectID, plan *domain.Plan) *domain.Payment {
	t.Helper()
	ctx := context.Background()
	resp, err := e.paymentSvc.CreateStripeIntent(ctx, userID, &domain.CreateIntentRequest{PlanID: plan.ID.Hex()})
	require.NoError(t, err)
	e.stripe.SetStatus(resp.PaymentIntentID, payment.StatusCompleted)
	p, err := e.paymentSvc.Status(ctx, userID, payment.Stripe, resp.PaymentIntentID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentCompleted, p.Status)
	return p
}

func TestCreateStripeIntent_DirectPurchase(t *testing.T) {
	e := newTestEnv(t)
	plans := e.seedPlans(t)
	e.activateStripe(t)
	user := e.newUser(t, "ada@example.com")
	ctx := context.Background()

	resp, err := e.paymentSvc.CreateStripeIntent(ctx, user.ID, &domain.CreateIntentRequest{PlanID: plans["Pro"].ID.Hex()})
	require.NoError(t, err)
	assert.Equal(t, "stripe_1", resp.PaymentIntentID)
	assert.Equal(t, "secret_1", resp.ClientSecret)
	assert.Equal(t, "pk_test_123", resp.PublishableKey)
	assert.InDelta(t, 199.0, resp.Amount, 0.001)
	assert.Equal(t, "EUR", resp.Currency)

	require.Len(t, e.stripe.Requests, 1)
	req := e.stripe.Requests[0]
	assert.NotEmpty(t, req.IdempotencyKey)
	assert.Equal(t, domain.ChangeNew, req.Metadata["type"])
	assert.Equal(t, resp.PaymentID, req.Metadata["paymentId"])
	assert.Equal(t, "Abonnement Pro", req.Description)

	p, err := e.payments.FindByExternalID(ctx, payment.Stripe, "stripe_1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, resp.PaymentID, p.ID.Hex())
	assert.Equal(t, domain.PaymentPending, p.Status)
}

func TestCreateStripeIntent_UsesSessionPayment(t *testing.T) {
	e := newTestEnv(t)
	plans := e.seedPlans(t)
	e.activateStripe(t)
	user := e.newUser(t, "ada@example.com")
	ctx := context.Background()

	sess, err := e.sessionSvc.Prepare(ctx, user.ID, &domain.ChangeRequest{
		Type:     domain.ChangeNew,
		PlanID:   plans["Business"].ID.Hex(),
		Provider: payment.Stripe,
	})
	require.NoError(t, err)

	resp, err := e.paymentSvc.CreateStripeIntent(ctx, user.ID, &domain.CreateIntentRequest{})
	require.NoError(t, err)
	assert.Equal(t, sess.PaymentID, resp.PaymentID)
	assert.InDelta(t, 120.99, resp.Amount, 0.001)

	all, _ := e.payments.List(ctx, "", "", 0)
	assert.Len(t, all, 1)

	stored, err := e.sessionSvc.Get(ctx, user.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, payment.Stripe, stored.Provider)
	assert.Equal(t, resp.PaymentID, stored.PaymentID)
}

func TestCreateStripeIntent_Errors(t *testing.T) {
	e := newTestEnv(t)
	plans := e.seedPlans(t)
	user := e.newUser(t, "ada@example.com")
	ctx := context.Background()

	_, err := e.paymentSvc.CreateStripeIntent(ctx, user.ID, &domain.CreateIntentRequest{})
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))
	assert.Contains(t, err.Error(), "no valid payment session")

	_, err = e.paymentSvc.CreateStripeIntent(ctx, user.ID, &domain.CreateIntentRequest{PlanID: plans["Pro"].ID.Hex()})
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))
	assert.Contains(t, err.Error(), "stripe gateway not configured")
}

func TestCreateStripeIntent_ProviderFailureMarksPaymentFailed(t *testing.T) {
	e := newTestEnv(t)
	plans := e.seedPlans(t)
	e.activateStripe(t)
	user := e.newUser(t, "ada@example.com")
	ctx := context.Background()
	e.stripe.CreateErr = errors.New("card_declined")

	_, err := e.paymentSvc.CreateStripeIntent(ctx, user.ID, &domain.CreateIntentRequest{PlanID: plans["Pro"].ID.Hex()})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, appCode(t, err))
	assert.Contains(t, err.Error(), "card_declined")

	failed, _ := e.payments.List(ctx, domain.PaymentFailed, payment.Stripe, 0)
	assert.Len(t, failed, 1)
}

func TestCreateMollieWithToken(t *testing.T) {
	e := newTestEnv(t)
	plans := e.seedPlans(t)
	user := e.newUser(t, "ada@example.com")
	ctx := context.Background()

	mollie := testutils.NewProvider(payment.Mollie)
	mollie.CheckoutURL = "https://mollie.test/3ds"
	stripeFactory, mollieFactory := e.stripe.Factory(), mollie.Factory()
	e.gatewaySvc.SetProviderFactory(func(name string, creds payment.Credentials) (payment.Provider, error) {
		if name == payment.Mollie {
			return mollieFactory(name, creds)
		}
		return stripeFactory(name, creds)
	})
	_, err := e.gatewaySvc.Create(ctx, &domain.GatewayRequest{
		Provider: domain.ProviderMollie,
		Name:     "Mollie",
		IsActive: true,
		Config:   domain.GatewayConfig{APIKey: "test_abcdefghijkl"},
	})
	require.NoError(t, err)

	resp, err := e.paymentSvc.CreateMollieWithToken(ctx, user.ID, &domain.MollieTokenRequest{
		CardToken: "tkn_123",
		PlanID:    plans["Essentiel"].ID.Hex(),
	})
	require.NoError(t, err)
	assert.Equal(t, "mollie_1", resp.MolliePaymentID)
	assert.Equal(t, "https://mollie.test/3ds", resp.CheckoutURL)
	assert.InDelta(t, 15.0, resp.Amount, 0.001)

	require.Len(t, mollie.Requests, 1)
	req := mollie.Requests[0]
	assert.Equal(t, "tkn_123", req.CardToken)
	assert.Equal(t, "https://example.com/payment/return?paymentId="+resp.PaymentID, req.RedirectURL)
	assert.Equal(t, "https://api.example.com/api/webhooks/mollie", req.WebhookURL)
	assert.Equal(t, "test_abcdefghijkl", mollie.Credentials.APIKey)
}

func TestWebhookURL_SkipsLocalhost(t *testing.T) {
	s := &PaymentService{cfg: PaymentConfig{PublicURL: "http://localhost:4001"}}
	assert.Empty(t, s.webhookURL(payment.Mollie))

	s.cfg.PublicURL = "https://api.example.com/"
	assert.Equal(t, "https://api.example.com/api/webhooks/stripe", s.webhookURL(payment.Stripe))
}

func TestPaymentStatus(t *testing.T) {
	e := newTestEnv(t)
	plans := e.seedPlans(t)
	e.activateStripe(t)
	user := e.newUser(t, "ada@example.com")
	other := e.newUser(t, "eve@example.com")
	ctx := context.Background()

	resp, err := e.paymentSvc.CreateStripeIntent(ctx, user.ID, &domain.CreateIntentRequest{PlanID: plans["Pro"].ID.Hex()})
	require.NoError(t, err)

	e.stripe.SetStatus(resp.PaymentIntentID, payment.StatusFailed)
	p, err := e.paymentSvc.Status(ctx, user.ID, payment.Stripe, resp.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, p.Status)

	// Provider outage falls back to the stored record.
	e.stripe.SetStatus(resp.PaymentIntentID, payment.StatusCompleted)
	e.stripe.GetErr = errors.New("stripe down")
	p, err = e.paymentSvc.Status(ctx, user.ID, payment.Stripe, resp.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, p.Status)

	_, err = e.paymentSvc.Status(ctx, other.ID, payment.Stripe, resp.PaymentIntentID)
	assert.Equal(t, http.StatusForbidden, appCode(t, err))

	_, err = e.paymentSvc.Status(ctx, user.ID, payment.Stripe, "pi_unknown")
	assert.Equal(t, http.StatusNotFound, appCode(t, err))
}

func TestPaymentHistory(t *testing.T) {
	e := newTestEnv(t)
	plans := e.seedPlans(t)
	e.activateStripe(t)
	user := e.newUser(t, "ada@example.com")
	ctx := context.Background()

	e.paidIntent(t, user.ID, plans["Essentiel"])
	e.paidIntent(t, user.ID, plans["Pro"])

	history, err := e.paymentSvc.History(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	completed, err := e.paymentSvc.AdminList(ctx, domain.PaymentCompleted, "")
	require.NoError(t, err)
	assert.Len(t, completed, 2)
}

func TestRefund(t *testing.T) {
	e := newTestEnv(t)
	plans := e.seedPlans(t)
	e.activateStripe(t)
	user := e.newUser(t, "ada@example.com")
	ctx := context.Background()

	p := e.paidIntent(t, user.ID, plans["Pro"])

	tooMuch := 500.0
	_, err := e.paymentSvc.Refund(ctx, p.ID.Hex(), &domain.RefundRequest{Amount: &tooMuch})
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))

	partial := 50.0
	got, err := e.paymentSvc.Refund(ctx, p.ID.Hex(), &domain.RefundRequest{Amount: &partial})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, got.Status, "partial refund keeps the payment completed")

	got, err = e.paymentSvc.Refund(ctx, p.ID.Hex(), &domain.RefundRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRefunded, got.Status)
	assert.Len(t, e.stripe.Refunds, 2)

	_, err = e.paymentSvc.Refund(ctx, p.ID.Hex(), &domain.RefundRequest{})
	assert.Equal(t, http.StatusBadRequest, appCode(t, err), "already refunded")
}

func TestListMethods_RequiresMollie(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.paymentSvc.ListMethods(context.Background(), 15)
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))
}
