package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/logger"
	"github.com/tarifly/backend/internal/metrics"
	"github.com/tarifly/backend/pkg/payment"
)

// PaymentConfig holds the URLs handed to providers.
type PaymentConfig struct {
	Currency    string
	PublicURL   string // this API, for webhooks
	FrontendURL string // where customers return after 3-D Secure
}

// PaymentService opens provider payments for a checkout and reports on them.
type PaymentService struct {
	cfg      PaymentConfig
	payments PaymentStore
	sessions *SessionService
	subs     *SubscriptionService
	gateways *GatewayService
	validate *validator.Validate
	now      func() time.Time
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(cfg PaymentConfig, payments PaymentStore, sessions *SessionService, subs *SubscriptionService, gateways *GatewayService) *PaymentService {
	return &PaymentService{
		cfg:      cfg,
		payments: payments,
		sessions: sessions,
		subs:     subs,
		gateways: gateways,
		validate: newValidator(),
		now:      time.Now,
	}
}

// checkout returns what the caller is about to pay for: the pending payment
// session, or a direct purchase of planID when there is none. stored is
// false for the direct purchase.
func (s *PaymentService) checkout(ctx context.Context, userID primitive.ObjectID, planID string) (sess *domain.PaymentSession, stored bool, err error) {
	sess, err = s.sessions.Get(ctx, userID.Hex())
	if err != nil {
		return nil, false, err
	}
	if sess != nil && (planID == "" || planID == sess.PlanID) {
		return sess, true, nil
	}
	if planID == "" {
		return nil, false, domain.ErrBadRequest("no valid payment session")
	}
	change, err := s.subs.QuoteDirect(ctx, userID, planID)
	if err != nil {
		return nil, false, err
	}
	return sessionFor(userID, change, s.now(), 0), false, nil
}

// paymentFor reuses the pending payment the session already opened for
// provider, or creates one.
func (s *PaymentService) paymentFor(ctx context.Context, userID primitive.ObjectID, provider string, sess *domain.PaymentSession) (*domain.Payment, error) {
	if id := sess.PaymentObjectID(); !id.IsZero() && sess.Provider == provider {
		p, err := s.payments.FindByID(ctx, id)
		if err != nil {
			return nil, domain.ErrInternal("failed to find payment", err)
		}
		if p != nil && p.ExternalPaymentID == "" && p.Status == domain.PaymentPending {
			return p, nil
		}
	}
	p := pendingPayment(userID, provider, sess, s.now())
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, domain.ErrInternal("failed to create payment", err)
	}
	return p, nil
}

// CreateStripeIntent opens a PaymentIntent for the caller's checkout.
func (s *PaymentService) CreateStripeIntent(ctx context.Context, userID primitive.ObjectID, req *domain.CreateIntentRequest) (*domain.CreateIntentResponse, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	sess, stored, err := s.checkout(ctx, userID, req.PlanID)
	if err != nil {
		return nil, err
	}
	gw, provider, err := s.gateways.Active(ctx, payment.Stripe)
	if err != nil {
		return nil, err
	}
	p, err := s.paymentFor(ctx, userID, payment.Stripe, sess)
	if err != nil {
		return nil, err
	}

	intent, err := s.open(ctx, provider, p, payment.CreateRequest{})
	if err != nil {
		return nil, err
	}
	s.remember(ctx, sess, stored, payment.Stripe, p)

	return &domain.CreateIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ExternalID,
		PaymentID:       p.ID.Hex(),
		PublishableKey:  gw.Config.PublishableKey,
		Amount:          p.Amount.Value,
		Currency:        p.Amount.Currency,
	}, nil
}

// CreateMollieWithToken pays the checkout with a Mollie Components card
// token. The response carries a checkout URL when 3-D Secure is needed.
func (s *PaymentService) CreateMollieWithToken(ctx context.Context, userID primitive.ObjectID, req *domain.MollieTokenRequest) (*domain.MolliePaymentResponse, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	sess, stored, err := s.checkout(ctx, userID, req.PlanID)
	if err != nil {
		return nil, err
	}
	provider, err := s.gateways.Provider(ctx, payment.Mollie)
	if err != nil {
		return nil, err
	}
	p, err := s.paymentFor(ctx, userID, payment.Mollie, sess)
	if err != nil {
		return nil, err
	}

	intent, err := s.open(ctx, provider, p, payment.CreateRequest{
		CardToken:   req.CardToken,
		RedirectURL: fmt.Sprintf("%s/payment/return?paymentId=%s", s.cfg.FrontendURL, p.ID.Hex()),
		WebhookURL:  s.webhookURL(payment.Mollie),
	})
	if err != nil {
		return nil, err
	}
	s.remember(ctx, sess, stored, payment.Mollie, p)

	return &domain.MolliePaymentResponse{
		PaymentID:       p.ID.Hex(),
		MolliePaymentID: intent.ExternalID,
		Status:          p.Status,
		CheckoutURL:     intent.CheckoutURL,
		Amount:          p.Amount.Value,
		Currency:        p.Amount.Currency,
	}, nil
}

// open creates the provider payment for p and records its external id.
func (s *PaymentService) open(ctx context.Context, provider payment.Provider, p *domain.Payment, req payment.CreateRequest) (*payment.Intent, error) {
	req.Amount = p.Amount.Value
	req.Currency = p.Amount.Currency
	req.Description = p.Description
	req.IdempotencyKey = uuid.NewString()
	req.Metadata = map[string]string{
		"paymentId": p.ID.Hex(),
		"userId":    p.UserID.Hex(),
		"type":      p.Metadata.Type,
		"planId":    p.Metadata.PlanID,
	}
	if p.Metadata.SubscriptionID != "" {
		req.Metadata["subscriptionId"] = p.Metadata.SubscriptionID
	}
	if p.Metadata.AffiliationCode != "" {
		req.Metadata["affiliationCode"] = p.Metadata.AffiliationCode
	}

	name := provider.Name()
	log := logger.WithUser(p.UserID.Hex()).WithField("payment_id", p.ID.Hex())

	intent, err := provider.CreatePayment(ctx, req)
	if err != nil {
		log.WithError(err).Errorf("%s payment creation failed", name)
		if _, uerr := s.payments.UpdateStatus(ctx, p.ID, name, domain.PaymentFailed, nil); uerr != nil {
			log.WithError(uerr).Error("failed to mark payment failed")
		}
		return nil, domain.ErrProvider(name, err)
	}

	if err := s.payments.AttachExternal(ctx, p.ID, name, intent.ExternalID, p.Amount, intent.Raw); err != nil {
		return nil, domain.ErrInternal("failed to record provider payment", err)
	}
	p.ExternalPaymentID = intent.ExternalID
	if intent.Status != "" && intent.Status != p.Status {
		moved, err := s.payments.UpdateStatus(ctx, p.ID, name, intent.Status, intent.Raw)
		if err != nil {
			return nil, domain.ErrInternal("failed to record payment status", err)
		}
		if moved {
			p.Status = intent.Status
		}
	}

	metrics.PaymentsCreated.WithLabelValues(name).Inc()
	log.Infof("%s payment %s opened for %.2f %s", name, intent.ExternalID, p.Amount.Value, p.Amount.Currency)
	return intent, nil
}

// remember records the opened payment on a stored session so completion
// can find it.
func (s *PaymentService) remember(ctx context.Context, sess *domain.PaymentSession, stored bool, provider string, p *domain.Payment) {
	if !stored {
		return
	}
	sess.Provider = provider
	sess.PaymentID = p.ID.Hex()
	if err := s.sessions.Save(ctx, sess); err != nil {
		logger.WithUser(sess.UserID).WithError(err).Warn("failed to update payment session")
	}
}

func (s *PaymentService) webhookURL(provider string) string {
	// Providers refuse webhook URLs they cannot reach.
	if strings.Contains(s.cfg.PublicURL, "localhost") || strings.Contains(s.cfg.PublicURL, "127.0.0.1") {
		return ""
	}
	return fmt.Sprintf("%s/api/webhooks/%s", strings.TrimSuffix(s.cfg.PublicURL, "/"), provider)
}

// Status returns the caller's payment identified by its provider id, with
// the live provider status when the provider answers. A provider failure
// falls back to the stored record.
func (s *PaymentService) Status(ctx context.Context, userID primitive.ObjectID, provider, externalID string) (*domain.Payment, error) {
	p, err := s.payments.FindByExternalID(ctx, provider, externalID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find payment", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("payment not found")
	}
	if p.UserID != userID {
		return nil, domain.ErrForbidden("payment belongs to another user")
	}

	synced, err := syncPayment(ctx, s.gateways, s.payments, p)
	if err != nil {
		logger.WithUser(userID.Hex()).WithError(err).Warnf("%s status unavailable, serving stored payment", provider)
		return p, nil
	}
	return synced, nil
}

// ListMethods returns the Mollie payment methods enabled for amount.
func (s *PaymentService) ListMethods(ctx context.Context, amount float64) ([]payment.Method, error) {
	provider, err := s.gateways.Provider(ctx, payment.Mollie)
	if err != nil {
		return nil, err
	}
	lister, ok := provider.(payment.MethodLister)
	if !ok {
		return nil, domain.ErrBadRequest("provider does not list methods")
	}
	methods, err := lister.ListMethods(ctx, amount, s.cfg.Currency)
	if err != nil {
		return nil, domain.ErrProvider(payment.Mollie, err)
	}
	return methods, nil
}

// History returns the caller's payments, newest first.
func (s *PaymentService) History(ctx context.Context, userID primitive.ObjectID) ([]*domain.Payment, error) {
	payments, err := s.payments.ListByUser(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to list payments", err)
	}
	return payments, nil
}

const adminPaymentLimit = 500

func (s *PaymentService) AdminList(ctx context.Context, status, provider string) ([]*domain.Payment, error) {
	payments, err := s.payments.List(ctx, status, provider, adminPaymentLimit)
	if err != nil {
		return nil, domain.ErrInternal("failed to list payments", err)
	}
	return payments, nil
}

// Refund refunds a completed payment fully, or partially when an amount is
// given. Only a full refund moves the payment to refunded.
func (s *PaymentService) Refund(ctx context.Context, paymentID string, req *domain.RefundRequest) (*domain.Payment, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	id, err := parseID(paymentID, "payment")
	if err != nil {
		return nil, err
	}
	p, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find payment", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("payment not found")
	}
	if p.Status != domain.PaymentCompleted || p.ExternalPaymentID == "" {
		return nil, domain.ErrBadRequest("only completed payments can be refunded")
	}
	if req.Amount != nil && *req.Amount > p.Amount.Value {
		return nil, domain.ErrBadRequest("refund exceeds the payment amount")
	}

	provider, err := s.gateways.Provider(ctx, p.Provider)
	if err != nil {
		return nil, err
	}
	refund, err := provider.Refund(ctx, p.ExternalPaymentID, req.Amount, p.Amount.Currency)
	if err != nil {
		return nil, domain.ErrProvider(p.Provider, err)
	}
	logger.WithUser(p.UserID.Hex()).WithField("payment_id", p.ID.Hex()).
		Infof("refund %s of %.2f %s issued", refund.ExternalID, refund.Amount, p.Amount.Currency)

	if req.Amount == nil || *req.Amount >= p.Amount.Value {
		raw := map[string]any{"refundId": refund.ExternalID, "refundStatus": refund.Status}
		moved, err := s.payments.UpdateStatus(ctx, p.ID, p.Provider, domain.PaymentRefunded, raw)
		if err != nil {
			return nil, domain.ErrInternal("failed to record refund", err)
		}
		if moved {
			p.Status = domain.PaymentRefunded
		}
	}
	return p, nil
}

// syncPayment refreshes p from its provider and stores a changed status.
func syncPayment(ctx context.Context, providers ProviderResolver, payments PaymentStore, p *domain.Payment) (*domain.Payment, error) {
	if p.ExternalPaymentID == "" {
		return p, nil
	}
	provider, err := providers.Provider(ctx, p.Provider)
	if err != nil {
		return nil, err
	}
	intent, err := provider.GetPayment(ctx, p.ExternalPaymentID)
	if err != nil {
		return nil, domain.ErrProvider(p.Provider, err)
	}
	if intent.Status == p.Status || !domain.CanMovePayment(p.Status, intent.Status) {
		return p, nil
	}
	moved, err := payments.UpdateStatus(ctx, p.ID, p.Provider, intent.Status, intent.Raw)
	if err != nil {
		return nil, domain.ErrInternal("failed to update payment status", err)
	}
	if moved {
		p.Status = intent.Status
	}
	return p, nil
}

// pendingPayment builds the record for a payment about to be opened with
// provider for sess.
func pendingPayment(userID primitive.ObjectID, provider string, sess *domain.PaymentSession, now time.Time) *domain.Payment {
	return &domain.Payment{
		UserID:      userID,
		Provider:    provider,
		Amount:      domain.Amount{Value: sess.Amount, Currency: sess.Currency},
		Status:      domain.PaymentPending,
		Description: paymentDescription(sess),
		Metadata:    sess.Metadata(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func paymentDescription(sess *domain.PaymentSession) string {
	switch sess.Type {
	case domain.ChangeUpgrade:
		return "Passage à l'offre " + sess.PlanName
	case domain.ChangeRenewal:
		return "Renouvellement de l'offre " + sess.PlanName
	default:
		return "Abonnement " + sess.PlanName
	}
}
