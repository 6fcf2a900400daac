package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/mail"
	"github.com/tarifly/backend/internal/repository"
	"github.com/tarifly/backend/internal/testutils"
	"github.com/tarifly/backend/pkg/payment"
)

const testJWTSecret = "test-secret-test-secret-test-secret"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	clock *clock

	users        *testutils.UserStore
	plans        *testutils.PlanStore
	subs         *testutils.SubscriptionStore
	payments     *testutils.PaymentStore
	gateways     *testutils.GatewayStore
	contacts     *testutils.ContactStore
	smtp         *testutils.SmtpStore
	attributions *testutils.AttributionStore
	sessions     *repository.MemorySessionStore
	mailer       *testutils.Mailer
	stripe       *testutils.Provider

	auth        *AuthService
	planSvc     *PlanService
	subSvc      *SubscriptionService
	sessionSvc  *SessionService
	gatewaySvc  *GatewayService
	paymentSvc  *PaymentService
	webhookSvc  *WebhookService
	contactSvc  *ContactService
	attribution *AttributionService
	admin       *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		clock:        &clock{t: time.Now().Truncate(time.Second)},
		users:        testutils.NewUserStore(),
		plans:        testutils.NewPlanStore(),
		subs:         testutils.NewSubscriptionStore(),
		payments:     testutils.NewPaymentStore(),
		gateways:     testutils.NewGatewayStore(),
		contacts:     testutils.NewContactStore(),
		smtp:         testutils.NewSmtpStore(),
		attributions: testutils.NewAttributionStore(),
		sessions:     repository.NewMemorySessionStore(),
		mailer:       &testutils.Mailer{},
		stripe:       testutils.NewProvider(payment.Stripe),
	}
	box := testutils.NewEncryptor()

	e.gatewaySvc = NewGatewayService(e.gateways, box)
	e.gatewaySvc.SetProviderFactory(e.stripe.Factory())
	e.gatewaySvc.now = e.clock.Now

	e.auth = NewAuthService(AuthConfig{
		JWTSecret:        testJWTSecret,
		TokenTTL:         24 * time.Hour,
		RememberMeTTL:    7 * 24 * time.Hour,
		RefreshTTL:       30 * 24 * time.Hour,
		MaxLoginAttempts: 5,
		LockDuration:     30 * time.Minute,
		AdminEmail:       "admin@example.com",
		AdminPassword:    "admin-password",
		FrontendURL:      "http://front.test",
	}, e.users, e.plans, e.subs, e.mailer)
	e.auth.now = e.clock.Now

	e.planSvc = NewPlanService(e.plans)
	e.planSvc.now = e.clock.Now

	e.subSvc = NewSubscriptionService(e.subs, e.plans, e.payments, e.users, e.gatewaySvc, e.mailer, "EUR")
	e.subSvc.now = e.clock.Now

	e.sessionSvc = NewSessionService(e.sessions, e.subSvc, e.payments, time.Hour)
	e.sessionSvc.now = e.clock.Now

	e.paymentSvc = NewPaymentService(PaymentConfig{
		Currency:    "EUR",
		PublicURL:   "https://api.example.com",
		FrontendURL: "https://example.com",
	}, e.payments, e.sessionSvc, e.subSvc, e.gatewaySvc)
	e.paymentSvc.now = e.clock.Now

	e.webhookSvc = NewWebhookService(e.gatewaySvc, e.payments, e.subSvc)
	e.contactSvc = NewContactService(e.contacts, e.mailer, "team@example.com")
	e.contactSvc.now = e.clock.Now
	e.attribution = NewAttributionService(e.attributions)
	e.attribution.now = e.clock.Now
	e.admin = NewAdminService(e.users, e.subs, e.payments, e.contacts)
	return e
}

// seedPlans stores the default catalog and returns it by name.
func (e *testEnv) seedPlans(t *testing.T) map[string]*domain.Plan {
	t.Helper()
	require.NoError(t, e.planSvc.SeedDefaults(context.Background()))
	plans, err := e.planSvc.ListAll(context.Background())
	require.NoError(t, err)
	byName := map[string]*domain.Plan{}
	for _, p := range plans {
		byName[p.Name] = p
	}
	return byName
}

func (e *testEnv) newUser(t *testing.T, email string) *domain.User {
	t.Helper()
	u := &domain.User{Email: email, FirstName: "Test", Role: domain.RoleCustomer, CreatedAt: e.clock.Now()}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

// activeSubscription stores an active subscription on plan ending at end.
func (e *testEnv) activeSubscription(t *testing.T, userID primitive.ObjectID, plan *domain.Plan, end time.Time) *domain.Subscription {
	t.Helper()
	sub := &domain.Subscription{
		UserID:    userID,
		Status:    domain.SubscriptionActive,
		StartDate: end.AddDate(0, 0, -domain.PeriodDays(plan.Period)),
		EndDate:   end,
		CreatedAt: e.clock.Now(),
	}
	sub.ApplyPlan(plan)
	require.NoError(t, e.subs.Create(context.Background(), sub))
	return sub
}

// activateStripe configures an active Stripe gateway.
func (e *testEnv) activateStripe(t *testing.T) *domain.PaymentGateway {
	t.Helper()
	g, err := e.gatewaySvc.Create(context.Background(), &domain.GatewayRequest{
		Provider: domain.ProviderStripe,
		Name:     "Stripe",
		IsActive: true,
		Config: domain.GatewayConfig{
			PublishableKey: "pk_test_123",
			SecretKey:      "sk_test_1234567890",
			WebhookSecret:  "whsec_test_secret",
		},
	})
	require.NoError(t, err)
	return g
}

func (e *testEnv) sentTo(to string) []mail.Message {
	var out []mail.Message
	for _, m := range e.mailer.Messages() {
		if m.To == to {
			out = append(out, m)
		}
	}
	return out
}

func appCode(t *testing.T, err error) int {
	t.Helper()
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	return appErr.Code
}
