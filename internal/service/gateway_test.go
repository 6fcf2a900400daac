package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/pkg/payment"
)

func TestGatewayCreate_EncryptsAndMasksSecrets(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	g := e.activateStripe(t)
	assert.Equal(t, "test", g.Mode)
	assert.Equal(t, "pk_test_123", g.Config.PublishableKey)
	assert.Equal(t, "sk_t****7890", g.Config.SecretKey)

	stored, err := e.gateways.FindByID(ctx, g.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "sk_test_1234567890", stored.Config.SecretKey)
	assert.NotEmpty(t, stored.Config.SecretKey)

	_, err = e.gatewaySvc.Provider(ctx, payment.Stripe)
	require.NoError(t, err)
	assert.Equal(t, "sk_test_1234567890", e.stripe.Credentials.SecretKey)
	assert.Equal(t, "whsec_test_secret", e.stripe.Credentials.WebhookSecret)

	public, err := e.gatewaySvc.PublicList(ctx)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "pk_test_123", public[0].PublishableKey)
}

func TestGatewayCreate_DuplicateProvider(t *testing.T) {
	e := newTestEnv(t)
	e.activateStripe(t)

	_, err := e.gatewaySvc.Create(context.Background(), &domain.GatewayRequest{
		Provider: domain.ProviderStripe,
		Name:     "Stripe again",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))
	assert.True(t, errors.Is(err, domain.ErrDuplicate))
}

func TestGatewayUpdate_KeepsMaskedSecrets(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	g := e.activateStripe(t)

	updated, err := e.gatewaySvc.Update(ctx, g.ID.Hex(), &domain.GatewayRequest{
		Provider: domain.ProviderStripe,
		Name:     "Stripe live",
		Mode:     "live",
		IsActive: true,
		Config: domain.GatewayConfig{
			PublishableKey: "pk_live_999",
			SecretKey:      g.Config.SecretKey,
			WebhookSecret:  "",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "live", updated.Mode)

	_, err = e.gatewaySvc.Provider(ctx, payment.Stripe)
	require.NoError(t, err)
	assert.Equal(t, "sk_test_1234567890", e.stripe.Credentials.SecretKey)
	assert.Equal(t, "whsec_test_secret", e.stripe.Credentials.WebhookSecret)
	assert.Equal(t, "pk_live_999", e.stripe.Credentials.PublishableKey)
}

func TestGatewayActivate_DemotesOthers(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	stripeGW := e.activateStripe(t)
	mollieGW, err := e.gatewaySvc.Create(ctx, &domain.GatewayRequest{
		Provider: domain.ProviderMollie,
		Name:     "Mollie",
		Config:   domain.GatewayConfig{APIKey: "test_abcdefghijkl"},
	})
	require.NoError(t, err)
	assert.False(t, mollieGW.IsActive)

	_, err = e.gatewaySvc.Activate(ctx, mollieGW.ID.Hex())
	require.NoError(t, err)

	got, err := e.gatewaySvc.Get(ctx, stripeGW.ID.Hex())
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = e.gatewaySvc.Provider(ctx, payment.Stripe)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appCode(t, err))
	assert.Contains(t, err.Error(), "stripe gateway not configured")

	active, err := e.gatewaySvc.PublicList(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.ProviderMollie, active[0].Provider)
}

func TestGatewayDeactivate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	g := e.activateStripe(t)

	off, err := e.gatewaySvc.Deactivate(ctx, g.ID.Hex())
	require.NoError(t, err)
	assert.False(t, off.IsActive)

	_, err = e.gatewaySvc.Provider(ctx, payment.Stripe)
	assert.Error(t, err)
}

func TestGatewayTest_PingsProvider(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	g := e.activateStripe(t)

	require.NoError(t, e.gatewaySvc.Test(ctx, g.ID.Hex()))

	e.stripe.PingErr = errors.New("invalid api key")
	err := e.gatewaySvc.Test(ctx, g.ID.Hex())
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, appCode(t, err))
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestGatewayDelete(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	g := e.activateStripe(t)

	require.NoError(t, e.gatewaySvc.Delete(ctx, g.ID.Hex()))
	err := e.gatewaySvc.Delete(ctx, g.ID.Hex())
	assert.Equal(t, http.StatusNotFound, appCode(t, err))

	err = e.gatewaySvc.Delete(ctx, "not-an-id")
	assert.Equal(t, http.StatusNotFound, appCode(t, err))
}
