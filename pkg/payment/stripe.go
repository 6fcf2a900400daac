package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeAdapter talks to Stripe with the secret key of one gateway. It uses a
// dedicated client.API rather than the package-level stripe.Key so gateways
// can be switched without a restart.
type StripeAdapter struct {
	api   *client.API
	creds Credentials
}

var _ Provider = (*StripeAdapter)(nil)

func NewStripe(creds Credentials, o *options) *StripeAdapter {
	var backends *stripe.Backends
	if o != nil && (o.stripeURL != "" || o.httpClient != nil) {
		cfg := &stripe.BackendConfig{HTTPClient: o.httpClient}
		if o.stripeURL != "" {
			cfg.URL = stripe.String(o.stripeURL)
		}
		b := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
		backends = &stripe.Backends{API: b, Connect: b, Uploads: b, MeterEvents: b}
	}

	api := &client.API{}
	api.Init(creds.SecretKey, backends)
	return &StripeAdapter{api: api, creds: creds}
}

func (s *StripeAdapter) Name() string { return Stripe }

// CreatePayment creates a PaymentIntent with automatic payment methods.
func (s *StripeAdapter) CreatePayment(ctx context.Context, req CreateRequest) (*Intent, error) {
	currency := strings.ToLower(req.Currency)
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(ToMinorUnits(req.Amount, currency)),
		Currency:    stripe.String(currency),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return intentFromStripe(pi), nil
}

func (s *StripeAdapter) GetPayment(ctx context.Context, externalID string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(externalID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get payment intent %s: %w", externalID, err)
	}
	return intentFromStripe(pi), nil
}

func (s *StripeAdapter) Refund(ctx context.Context, externalID string, amount *float64, currency string) (*Refund, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(externalID)}
	params.Context = ctx
	if amount != nil {
		params.Amount = stripe.Int64(ToMinorUnits(*amount, currency))
	}
	r, err := s.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: refund %s: %w", externalID, err)
	}
	return &Refund{
		ExternalID: r.ID,
		Status:     string(r.Status),
		Amount:     FromMinorUnits(r.Amount, string(r.Currency)),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header against the gateway's
// webhook secret.
func (s *StripeAdapter) ParseWebhook(_ context.Context, payload []byte, header http.Header) (*Event, error) {
	if s.creds.WebhookSecret == "" {
		return nil, fmt.Errorf("stripe: webhook secret not configured: %w", ErrMissingCredentials)
	}
	evt, err := webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), s.creds.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return stripeEvent(evt)
}

func (s *StripeAdapter) Ping(ctx context.Context) error {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	if _, err := s.api.Balance.Get(params); err != nil {
		return fmt.Errorf("stripe: %w", err)
	}
	return nil
}

// stripeEvent maps the event types the billing flow cares about.
func stripeEvent(evt stripe.Event) (*Event, error) {
	out := &Event{ID: evt.ID, Type: string(evt.Type)}

	switch evt.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed",
		"payment_intent.canceled", "payment_intent.processing":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("stripe: decode payment intent: %w", err)
		}
		out.PaymentID = pi.ID
		out.Intent = intentFromStripe(&pi)
		switch evt.Type {
		case "payment_intent.succeeded":
			out.Status = StatusCompleted
		case "payment_intent.payment_failed":
			out.Status = StatusFailed
		case "payment_intent.canceled":
			out.Status = StatusCancelled
		default:
			out.Status = StatusPending
		}
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("stripe: decode charge: %w", err)
		}
		if ch.PaymentIntent != nil {
			out.PaymentID = ch.PaymentIntent.ID
		}
		// Partial refunds leave the payment completed.
		if ch.Refunded {
			out.Status = StatusRefunded
		}
	}
	return out, nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	currency := strings.ToUpper(string(pi.Currency))
	return &Intent{
		ExternalID:     pi.ID,
		Status:         stripeStatus(pi.Status),
		ProviderStatus: string(pi.Status),
		Amount:         FromMinorUnits(pi.Amount, currency),
		Currency:       currency,
		ClientSecret:   pi.ClientSecret,
		Metadata:       pi.Metadata,
		Raw: map[string]any{
			"paymentIntentId": pi.ID,
			"status":          string(pi.Status),
			"amount":          pi.Amount,
			"amountReceived":  pi.AmountReceived,
			"currency":        string(pi.Currency),
			"created":         pi.Created,
		},
	}
}

func stripeStatus(st stripe.PaymentIntentStatus) string {
	switch st {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusCompleted
	case stripe.PaymentIntentStatusCanceled:
		return StatusCancelled
	default:
		return StatusPending
	}
}
