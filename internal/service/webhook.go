package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/logger"
	"github.com/tarifly/backend/internal/metrics"
	"github.com/tarifly/backend/pkg/payment"
)

// WebhookService reconciles payments from provider callbacks.
type WebhookService struct {
	providers ProviderResolver
	payments  PaymentStore
	subs      *SubscriptionService
}

func NewWebhookService(providers ProviderResolver, payments PaymentStore, subs *SubscriptionService) *WebhookService {
	return &WebhookService{providers: providers, payments: payments, subs: subs}
}

// Handle verifies a callback from provider, stores the payment status it
// reports and applies the subscription change once the payment completed.
// Events about payments this service never opened are acknowledged.
func (s *WebhookService) Handle(ctx context.Context, provider string, payload []byte, header http.Header) error {
	log := logger.WithComponent("webhook").WithField("provider", provider)
	outcome := "error"
	defer func() { metrics.WebhooksReceived.WithLabelValues(provider, outcome).Inc() }()

	client, err := s.providers.Provider(ctx, provider)
	if err != nil {
		outcome = "unconfigured"
		return err
	}
	evt, err := client.ParseWebhook(ctx, payload, header)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) || errors.Is(err, payment.ErrMissingCredentials) {
			outcome = "rejected"
			log.WithError(err).Warn("webhook rejected")
			return domain.ErrBadRequest("invalid webhook signature")
		}
		return domain.ErrProvider(provider, err)
	}
	log = log.WithField("event", evt.Type)

	if evt.PaymentID == "" {
		outcome = "ignored"
		return nil
	}
	p, err := s.payments.FindByExternalID(ctx, provider, evt.PaymentID)
	if err != nil {
		return domain.ErrInternal("failed to find payment", err)
	}
	if p == nil {
		outcome = "unknown"
		log.Warnf("webhook for unknown payment %s", evt.PaymentID)
		return nil
	}

	if evt.Status != "" && evt.Status != p.Status {
		var raw map[string]any
		if evt.Intent != nil {
			raw = evt.Intent.Raw
		}
		moved, err := s.payments.UpdateStatus(ctx, p.ID, provider, evt.Status, raw)
		if err != nil {
			return domain.ErrInternal("failed to update payment status", err)
		}
		if moved {
			log.Infof("payment %s: %s -> %s", p.ID.Hex(), p.Status, evt.Status)
			p.Status = evt.Status
		} else {
			log.Infof("payment %s: stale %s ignored, staying %s", p.ID.Hex(), evt.Status, p.Status)
		}
	}

	if p.Status != domain.PaymentCompleted {
		outcome = "updated"
		return nil
	}
	if _, err := s.subs.ApplyPayment(ctx, p); err != nil {
		log.WithError(err).Errorf("failed to apply payment %s", p.ID.Hex())
		return err
	}
	outcome = "applied"
	return nil
}
