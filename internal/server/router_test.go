package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/handler"
	"github.com/tarifly/backend/internal/mail"
	"github.com/tarifly/backend/internal/repository"
	"github.com/tarifly/backend/internal/service"
	"github.com/tarifly/backend/internal/testutils"
	"github.com/tarifly/backend/pkg/payment"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin-password"
	webhookSecret = "whsec_e2e"
)

type app struct {
	srv    *httptest.Server
	users  *testutils.UserStore
	subs   *testutils.SubscriptionStore
	stripe *testutils.Provider
	mailer *testutils.Mailer
	health map[string]handler.CheckFunc
}

func newApp(t *testing.T) *app {
	t.Helper()
	ctx := context.Background()

	a := &app{
		users:  testutils.NewUserStore(),
		subs:   testutils.NewSubscriptionStore(),
		stripe: testutils.NewProvider(payment.Stripe),
		mailer: &testutils.Mailer{},
		health: map[string]handler.CheckFunc{},
	}
	plans := testutils.NewPlanStore()
	payments := testutils.NewPaymentStore()
	contacts := testutils.NewContactStore()
	sessions := repository.NewMemorySessionStore()
	box := testutils.NewEncryptor()

	mailSvc := service.NewMailService(testutils.NewSmtpStore(), box, mail.Config{Host: "smtp.test", Port: 25, FromEmail: "no-reply@example.com"}, "team@example.com")
	mailSvc.SetSender(func(ctx context.Context, _ mail.Config, msg mail.Message) error {
		return a.mailer.Send(ctx, msg)
	})

	authSvc := service.NewAuthService(service.AuthConfig{
		JWTSecret:        "e2e-secret-e2e-secret-e2e-secret",
		TokenTTL:         24 * time.Hour,
		RememberMeTTL:    7 * 24 * time.Hour,
		RefreshTTL:       30 * 24 * time.Hour,
		MaxLoginAttempts: 5,
		LockDuration:     30 * time.Minute,
		AdminEmail:       adminEmail,
		AdminPassword:    adminPassword,
		FrontendURL:      "http://front.test",
	}, a.users, plans, a.subs, mailSvc)
	planSvc := service.NewPlanService(plans)
	gatewaySvc := service.NewGatewayService(testutils.NewGatewayStore(), box)
	gatewaySvc.SetProviderFactory(a.stripe.Factory())
	subSvc := service.NewSubscriptionService(a.subs, plans, payments, a.users, gatewaySvc, mailSvc, "EUR")
	sessionSvc := service.NewSessionService(sessions, subSvc, payments, time.Hour)
	paymentSvc := service.NewPaymentService(service.PaymentConfig{
		Currency:    "EUR",
		PublicURL:   "https://api.example.com",
		FrontendURL: "https://example.com",
	}, payments, sessionSvc, subSvc, gatewaySvc)

	require.NoError(t, authSvc.SeedAdmin(ctx))
	require.NoError(t, planSvc.SeedDefaults(ctx))

	router := NewRouter(Handlers{
		Auth:         handler.NewAuthHandler(authSvc, false, 30*24*time.Hour),
		Plans:        handler.NewPlansHandler(planSvc),
		Subscription: handler.NewSubscriptionHandler(subSvc, sessionSvc),
		Payment:      handler.NewPaymentHandler(paymentSvc, sessionSvc, gatewaySvc),
		Webhook:      handler.NewWebhookHandler(service.NewWebhookService(gatewaySvc, payments, subSvc)),
		Gateway:      handler.NewGatewayHandler(gatewaySvc),
		Smtp:         handler.NewSmtpHandler(mailSvc),
		Contact:      handler.NewContactHandler(service.NewContactService(contacts, mailSvc, "team@example.com")),
		Attribution:  handler.NewAttributionHandler(service.NewAttributionService(testutils.NewAttributionStore())),
		Affiliation:  handler.NewAffiliationHandler(authSvc),
		Admin:        handler.NewAdminHandler(service.NewAdminService(a.users, a.subs, payments, contacts), authSvc),
		Health:       handler.NewHealthHandler(a.health),
	}, authSvc, Options{
		CORSOrigins: []string{"http://front.test"},
		StrictLimit: func(next http.Handler) http.Handler { return next },
	})

	a.srv = httptest.NewServer(router)
	t.Cleanup(a.srv.Close)
	return a
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Details []domain.FieldError `json:"details"`
}

type call struct {
	method  string
	path    string
	token   string
	body    any
	raw     string
	headers map[string]string
}

func (a *app) do(t *testing.T, c call) (*http.Response, envelope) {
	t.Helper()
	var body io.Reader
	switch {
	case c.raw != "":
		body = strings.NewReader(c.raw)
	case c.body != nil:
		buf, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(c.method, a.srv.URL+c.path, body)
	require.NoError(t, err)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func (a *app) login(t *testing.T, email, password string) string {
	t.Helper()
	resp, env := a.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: map[string]any{"email": email, "password": password}})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	out := decode[struct {
		Token string `json:"token"`
	}](t, env.Data)
	require.NotEmpty(t, out.Token)
	return out.Token
}

func (a *app) registerCustomer(t *testing.T, email string) string {
	t.Helper()
	resp, env := a.do(t, call{method: http.MethodPost, path: "/api/auth/register", body: map[string]any{
		"email":     email,
		"password":  "customer-password",
		"firstName": "Jeanne",
		"lastName":  "Martin",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Error)
	return a.login(t, email, "customer-password")
}

// staffUser stores a support account with the "user" role.
func (a *app) staffUser(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("staff-password"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, a.users.Create(context.Background(), &domain.User{
		Email:     "staff@example.com",
		Password:  string(hash),
		Role:      domain.RoleUser,
		CreatedAt: time.Now(),
	}))
	return a.login(t, "staff@example.com", "staff-password")
}

func (a *app) configureStripe(t *testing.T, adminToken string) {
	t.Helper()
	resp, env := a.do(t, call{method: http.MethodPost, path: "/api/admin/settings/payment-gateways", token: adminToken, body: map[string]any{
		"provider": "stripe",
		"name":     "Stripe",
		"isActive": true,
		"config": map[string]any{
			"publishableKey": "pk_test_e2e",
			"secretKey":      "sk_test_e2e_secret",
			"webhookSecret":  webhookSecret,
		},
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Error)
}

func TestBillingFlow_EndToEnd(t *testing.T) {
	a := newApp(t)
	adminToken := a.login(t, adminEmail, adminPassword)
	a.configureStripe(t, adminToken)
	token := a.registerCustomer(t, "jeanne@example.com")

	resp, env := a.do(t, call{method: http.MethodGet, path: "/api/plans"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	plans := decode[[]domain.Plan](t, env.Data)
	require.Len(t, plans, 3)
	var pro domain.Plan
	for _, p := range plans {
		if p.Name == "Pro" {
			pro = p
		}
	}
	require.False(t, pro.ID.IsZero())

	resp, env = a.do(t, call{method: http.MethodPost, path: "/api/payments/session", token: token, body: map[string]any{
		"type":   "new",
		"planId": pro.ID.Hex(),
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	sess := decode[domain.PaymentSession](t, env.Data)
	assert.Equal(t, 199.0, sess.Amount)

	resp, env = a.do(t, call{method: http.MethodPost, path: "/api/payments/stripe/create-intent", token: token, body: map[string]any{}})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	intent := decode[domain.CreateIntentResponse](t, env.Data)
	assert.Equal(t, "pk_test_e2e", intent.PublishableKey)
	assert.Equal(t, 199.0, intent.Amount)
	require.NotEmpty(t, intent.PaymentIntentID)

	resp, env = a.do(t, call{
		method:  http.MethodPost,
		path:    "/api/webhooks/stripe",
		raw:     `{"id":"evt_1","type":"payment_intent.succeeded","paymentId":"` + intent.PaymentIntentID + `","status":"completed"}`,
		headers: map[string]string{testutils.WebhookSignatureHeader: webhookSecret},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)

	resp, env = a.do(t, call{method: http.MethodPost, path: "/api/subscriptions/upgrade/complete", token: token, body: map[string]any{
		"paymentIntentId": intent.PaymentIntentID,
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)

	resp, env = a.do(t, call{method: http.MethodGet, path: "/api/subscriptions/current", token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Error)
	sub := decode[domain.Subscription](t, env.Data)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)
	assert.Equal(t, "Pro", sub.PlanName)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 730), sub.EndDate, time.Minute)

	resp, env = a.do(t, call{method: http.MethodGet, path: "/api/payments/history", token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]domain.Payment](t, env.Data)
	require.Len(t, history, 1)
	assert.Equal(t, domain.PaymentCompleted, history[0].Status)
	assert.True(t, history[0].IsProcessed)

	// A receipt went out after activation.
	var receipts int
	for _, m := range a.mailer.Messages() {
		if m.To == "jeanne@example.com" && strings.Contains(strings.ToLower(m.Subject), "paiement") {
			receipts++
		}
	}
	assert.Equal(t, 1, receipts)
}

func TestRouter_Authorization(t *testing.T) {
	a := newApp(t)
	adminToken := a.login(t, adminEmail, adminPassword)
	customer := a.registerCustomer(t, "client@example.com")
	staff := a.staffUser(t)

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"anonymous admin stats", "/api/admin/stats", "", http.StatusUnauthorized},
		{"garbage token", "/api/admin/stats", "not-a-jwt", http.StatusUnauthorized},
		{"customer admin stats", "/api/admin/stats", customer, http.StatusForbidden},
		{"staff admin stats", "/api/admin/stats", staff, http.StatusForbidden},
		{"admin stats", "/api/admin/stats", adminToken, http.StatusOK},
		{"customer contacts", "/api/admin/contacts", customer, http.StatusForbidden},
		{"staff contacts", "/api/admin/contacts", staff, http.StatusOK},
		{"admin contacts", "/api/admin/contacts", adminToken, http.StatusOK},
		{"anonymous me", "/api/auth/me", "", http.StatusUnauthorized},
		{"customer me", "/api/auth/me", customer, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := a.do(t, call{method: http.MethodGet, path: tt.path, token: tt.token})
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.status == http.StatusOK, env.Success)
			if tt.status != http.StatusOK {
				assert.NotEmpty(t, env.Error)
			}
		})
	}
}

func TestRouter_LoginSetsCookies(t *testing.T) {
	a := newApp(t)
	resp, _ := a.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: map[string]any{
		"email": adminEmail, "password": adminPassword, "rememberMe": true,
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookies := map[string]*http.Cookie{}
	for _, c := range resp.Cookies() {
		cookies[c.Name] = c
	}
	access := cookies[handler.AuthCookie]
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), access.MaxAge)
	require.NotNil(t, cookies[handler.RefreshCookie])

	// The cookie alone authenticates.
	req, err := http.NewRequest(http.MethodGet, a.srv.URL+"/api/auth/me", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: handler.AuthCookie, Value: access.Value})
	me, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	me.Body.Close()
	assert.Equal(t, http.StatusOK, me.StatusCode)

	// Refresh with the refresh cookie issues a new access token.
	req, err = http.NewRequest(http.MethodPost, a.srv.URL+"/api/auth/refresh", nil)
	require.NoError(t, err)
	req.AddCookie(cookies[handler.RefreshCookie])
	refreshed, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	refreshed.Body.Close()
	assert.Equal(t, http.StatusOK, refreshed.StatusCode)

	resp, _ = a.do(t, call{method: http.MethodPost, path: "/api/auth/logout"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}
}

func TestRouter_PaymentSessionLifecycle(t *testing.T) {
	a := newApp(t)
	token := a.registerCustomer(t, "client@example.com")

	resp, env := a.do(t, call{method: http.MethodGet, path: "/api/payments/session", token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "null", string(env.Data))
	assert.Equal(t, "no valid session", env.Message)

	resp, env = a.do(t, call{method: http.MethodPost, path: "/api/payments/session", token: token, body: map[string]any{"type": "new"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotEmpty(t, env.Details)
	assert.Equal(t, "planId", env.Details[0].Field)

	resp, env = a.do(t, call{method: http.MethodPost, path: "/api/subscriptions/upgrade", token: token, body: map[string]any{
		"type": "new", "planId": "0123456789abcdef01234567",
	}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Len(t, env.Details, 1)
	assert.Equal(t, "type", env.Details[0].Field)

	resp, _ = a.do(t, call{method: http.MethodDelete, path: "/api/payments/session", token: token})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_WebhookRejectsBadSignature(t *testing.T) {
	a := newApp(t)
	a.configureStripe(t, a.login(t, adminEmail, adminPassword))

	resp, env := a.do(t, call{
		method:  http.MethodPost,
		path:    "/api/webhooks/stripe",
		raw:     `{"id":"evt_1","type":"payment_intent.succeeded","paymentId":"stripe_9","status":"completed"}`,
		headers: map[string]string{testutils.WebhookSignatureHeader: "wrong"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "invalid webhook signature", env.Error)
}

func TestRouter_PublicEndpoints(t *testing.T) {
	a := newApp(t)

	resp, env := a.do(t, call{method: http.MethodPost, path: "/api/contact", body: map[string]any{
		"name": "Jeanne", "email": "jeanne@example.com", "subject": "Tarifs", "message": "Bonjour, une question sur les tarifs.",
	}})
	assert.Equal(t, http.StatusCreated, resp.StatusCode, env.Error)

	resp, _ = a.do(t, call{method: http.MethodPost, path: "/api/marketing/attribution", body: map[string]any{
		"sessionId": "s-1", "step": "visit", "utmSource": "google",
	}})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, env = a.do(t, call{method: http.MethodGet, path: "/api/affiliation/9999"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]bool{"valid": false}, decode[map[string]bool](t, env.Data))

	resp, env = a.do(t, call{method: http.MethodGet, path: "/api/payments/gateways"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", string(env.Data))
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	a := newApp(t)
	a.health["database"] = func(context.Context) error { return nil }

	resp, _ := a.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	a.health["redis"] = func(context.Context) error { return errors.New("down") }
	resp, _ = a.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err := a.srv.Client().Get(a.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tarifly_http_requests_total")
	assert.Contains(t, string(body), `route="/health"`)
}
