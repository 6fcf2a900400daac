package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/testutils"
	"github.com/tarifly/backend/pkg/payment"
)

func webhookRequest(t *testing.T, secret string, body testutils.WebhookPayload) ([]byte, http.Header) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	h := http.Header{}
	h.Set(testutils.WebhookSignatureHeader, secret)
	return raw, h
}

func TestWebhook_CompletedPaymentActivatesSubscription(t *testing.T) {
	e := newTestEnv(t)
	plans := e.seedPlans(t)
	e.activateStripe(t)
	user := e.newUser(t, "ada@example.com")
	ctx := context.Background()

	resp, err := e.paymentSvc.CreateStripeIntent(ctx, user.ID, &domain.CreateIntentRequest{PlanID: plans["Pro"].ID.Hex()})
	require.NoError(t, err)

	payload, header := webhookRequest(t, "whsec_test_secret", testutils.WebhookPayload{
		ID: "evt_1", Type: "payment_intent.succeeded", PaymentID: resp.PaymentIntentID, Status: payment.StatusCompleted,
	})
	require.NoError(t, e.webhookSvc.Handle(ctx, payment.Stripe, payload, header))

	sub, err := e.subs.FindActiveByUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "Pro", sub.PlanName)
	assert.Equal(t, e.clock.Now().AddDate(0, 0, 730), sub.EndDate)

	p, err := e.payments.FindByExternalID(ctx, payment.Stripe, resp.PaymentIntentID)
	require.NoError(t, err)
	assert.True(t, p.IsProcessed)

	// Redelivery applies nothing twice.
	e.clock.Advance(time.Minute)
	require.NoError(t, e.webhookSvc.Handle(ctx, payment.Stripe, payload, header))
	again, err := e.subs.FindActiveByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.EndDate, again.EndDate)
}

func TestWebhook_SecondDirectPurchaseKeepsOneActiveSubscription(t *testing.T) {
	e := newTestEnv(t)
	plans := e.seedPlans(t)
	e.activateStripe(t)
	user := e.newUser(t, "ada@example.com")
	ctx := context.Background()

	pay := func(planID, eventID string) {
		t.Helper()
		resp, err := e.paymentSvc.CreateStripeIntent(ctx, user.ID, &domain.CreateIntentRequest{PlanID: planID})
		require.NoError(t, err)
		payload, header := webhookRequest(t, "whsec_test_secret", testutils.WebhookPayload{
			ID: eventID, Type: "payment_intent.succeeded", PaymentID: resp.PaymentIntentID, Status: payment.StatusCompleted,
		})
		require.NoError(t, e.webhookSvc.Handle(ctx, payment.Stripe, payload, header))
	}

	pay(plans["Pro"].ID.Hex(), "evt_1")

	_, err := e.paymentSvc.CreateStripeIntent(ctx, user.ID, &domain.CreateIntentRequest{PlanID: plans["Essentiel"].ID.Hex()})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))

	pay(plans["Pro"].ID.Hex(), "evt_2")

	active, err := e.subs.List(ctx, domain.SubscriptionActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Pro", active[0].PlanName)
	assert.Equal(t, e.clock.Now().AddDate(0, 0, 2*730), active[0].EndDate)
}

func TestWebhook_LateEventsNeverReopenSettledPayments(t *testing.T) {
	e := newTestEnv(t)
	plans := e.seedPlans(t)
	e.activateStripe(t)
	user := e.newUser(t, "ada@example.com")
	ctx := context.Background()

	resp, err := e.paymentSvc.CreateStripeIntent(ctx, user.ID, &domain.CreateIntentRequest{PlanID: plans["Pro"].ID.Hex()})
	require.NoError(t, err)
	deliver := func(eventID, eventType, status string) {
		t.Helper()
		payload, header := webhookRequest(t, "whsec_test_secret", testutils.WebhookPayload{
			ID: eventID, Type: eventType, PaymentID: resp.PaymentIntentID, Status: status,
		})
		require.NoError(t, e.webhookSvc.Handle(ctx, payment.Stripe, payload, header))
	}
	stored := func() *domain.Payment {
		t.Helper()
		p, err := e.payments.FindByExternalID(ctx, payment.Stripe, resp.PaymentIntentID)
		require.NoError(t, err)
		return p
	}

	deliver("evt_1", "payment_intent.succeeded", payment.StatusCompleted)
	deliver("evt_2", "payment_intent.processing", payment.StatusPending)
	p := stored()
	assert.Equal(t, domain.PaymentCompleted, p.Status)
	assert.True(t, p.IsProcessed)

	deliver("evt_3", "charge.refunded", payment.StatusRefunded)
	assert.Equal(t, domain.PaymentRefunded, stored().Status)

	deliver("evt_4", "payment_intent.succeeded", payment.StatusCompleted)
	deliver("evt_5", "payment_intent.canceled", payment.StatusCancelled)
	assert.Equal(t, domain.PaymentRefunded, stored().Status)
}

func TestWebhook_FailedPaymentOnlyUpdatesStatus(t *testing.T) {
	e := newTestEnv(t)
	plans := e.seedPlans(t)
	e.activateStripe(t)
	user := e.newUser(t, "ada@example.com")
	ctx := context.Background()

	resp, err := e.paymentSvc.CreateStripeIntent(ctx, user.ID, &domain.CreateIntentRequest{PlanID: plans["Pro"].ID.Hex()})
	require.NoError(t, err)

	payload, header := webhookRequest(t, "whsec_test_secret", testutils.WebhookPayload{
		ID: "evt_2", Type: "payment_intent.payment_failed", PaymentID: resp.PaymentIntentID, Status: payment.StatusFailed,
	})
	require.NoError(t, e.webhookSvc.Handle(ctx, payment.Stripe, payload, header))

	p, err := e.payments.FindByExternalID(ctx, payment.Stripe, resp.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, p.Status)

	sub, err := e.subs.FindActiveByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	e := newTestEnv(t)
	e.activateStripe(t)

	payload, header := webhookRequest(t, "forged", testutils.WebhookPayload{ID: "evt_3", PaymentID: "stripe_1"})
	err := e.webhookSvc.Handle(context.Background(), payment.Stripe, payload, header)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))
	assert.Contains(t, err.Error(), "invalid webhook signature")
}

func TestWebhook_UnknownPaymentIsAcknowledged(t *testing.T) {
	e := newTestEnv(t)
	e.activateStripe(t)

	payload, header := webhookRequest(t, "whsec_test_secret", testutils.WebhookPayload{
		ID: "evt_4", PaymentID: "pi_elsewhere", Status: payment.StatusCompleted,
	})
	assert.NoError(t, e.webhookSvc.Handle(context.Background(), payment.Stripe, payload, header))
}

func TestWebhook_EventWithoutPaymentIsIgnored(t *testing.T) {
	e := newTestEnv(t)
	e.activateStripe(t)

	payload, header := webhookRequest(t, "whsec_test_secret", testutils.WebhookPayload{ID: "evt_5", Type: "customer.created"})
	assert.NoError(t, e.webhookSvc.Handle(context.Background(), payment.Stripe, payload, header))
}

func TestWebhook_UnconfiguredProvider(t *testing.T) {
	e := newTestEnv(t)
	err := e.webhookSvc.Handle(context.Background(), payment.Stripe, []byte(`{}`), http.Header{})
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))
}
