// Package payment wraps the payment providers behind one interface. Every
// call is stateless: a Provider is built per request from the credentials of
// the currently active gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Provider names.
const (
	Stripe = "stripe"
	Mollie = "mollie"
)

// Normalized statuses, identical for every provider.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
	StatusRefunded  = "refunded"
)

var (
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
	ErrMissingCredentials  = errors.New("missing provider credentials")
)

// Provider is implemented by each payment provider adapter.
type Provider interface {
	Name() string
	// CreatePayment opens a payment the customer then confirms client side.
	CreatePayment(ctx context.Context, req CreateRequest) (*Intent, error)
	// GetPayment fetches the live state of a provider payment.
	GetPayment(ctx context.Context, externalID string) (*Intent, error)
	// Refund refunds amount, or the whole payment when amount is nil.
	Refund(ctx context.Context, externalID string, amount *float64, currency string) (*Refund, error)
	// ParseWebhook authenticates a callback and extracts the payment it is about.
	ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*Event, error)
	// Ping checks that the credentials are accepted.
	Ping(ctx context.Context) error
}

// MethodLister is implemented by providers that expose their enabled methods.
type MethodLister interface {
	ListMethods(ctx context.Context, amount float64, currency string) ([]Method, error)
}

// Credentials are the decrypted secrets of one gateway.
type Credentials struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	APIKey         string
	ProfileID      string
}

type CreateRequest struct {
	Amount         float64
	Currency       string
	Description    string
	Metadata       map[string]string
	CardToken      string // Mollie Components token
	RedirectURL    string
	WebhookURL     string
	IdempotencyKey string
}

// Intent is a provider payment mapped onto the shared vocabulary.
type Intent struct {
	ExternalID     string
	Status         string
	ProviderStatus string
	Amount         float64
	Currency       string
	ClientSecret   string // Stripe only
	CheckoutURL    string // Mollie only, set when 3-D Secure is required
	Metadata       map[string]string
	Raw            map[string]any
}

type Refund struct {
	ExternalID string
	Status     string
	Amount     float64
}

// Event is a verified webhook. PaymentID is empty for events that do not
// concern a payment; Status is empty when the event does not move it.
type Event struct {
	ID        string
	Type      string
	PaymentID string
	Status    string
	Intent    *Intent
}

type Method struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
}

// Option configures a provider built by New.
type Option func(*options)

type options struct {
	httpClient *http.Client
	mollieURL  string
	stripeURL  string
}

// WithHTTPClient replaces the HTTP client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithMollieBaseURL points the Mollie adapter at another API root.
func WithMollieBaseURL(u string) Option {
	return func(o *options) { o.mollieURL = u }
}

// WithStripeBaseURL points the Stripe adapter at another API root.
func WithStripeBaseURL(u string) Option {
	return func(o *options) { o.stripeURL = u }
}

// New builds the adapter for provider.
func New(provider string, creds Credentials, opts ...Option) (Provider, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case Stripe:
		if creds.SecretKey == "" {
			return nil, fmt.Errorf("stripe: %w", ErrMissingCredentials)
		}
		return NewStripe(creds, o), nil
	case Mollie:
		if creds.APIKey == "" {
			return nil, fmt.Errorf("mollie: %w", ErrMissingCredentials)
		}
		m, err := NewMollie(creds, o)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
}
