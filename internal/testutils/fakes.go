package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/tarifly/backend/internal/mail"
	"github.com/tarifly/backend/pkg/crypto"
	"github.com/tarifly/backend/pkg/payment"
)

// TestEncryptionKey is a 32-byte key for tests.
const TestEncryptionKey = "0123456789abcdef0123456789abcdef"

// NewEncryptor returns an encryptor keyed with TestEncryptionKey.
func NewEncryptor() *crypto.Encryptor {
	e, err := crypto.NewEncryptor(TestEncryptionKey)
	if err != nil {
		panic(err)
	}
	return e
}

// Mailer records every message instead of sending it.
type Mailer struct {
	mu   sync.Mutex
	Sent []mail.Message
	Err  error
}

func (m *Mailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (m *Mailer) Messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.Sent...)
}

// WebhookSignatureHeader carries the fake provider's webhook secret.
const WebhookSignatureHeader = "X-Test-Signature"

// WebhookPayload is the body the fake provider accepts on ParseWebhook.
type WebhookPayload struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

// Provider is a scriptable payment provider. Payments it creates start in
// CreateStatus and can be moved with SetStatus.
type Provider struct {
	ProviderName string
	Credentials  payment.Credentials
	CreateStatus string
	CheckoutURL  string
	CreateErr    error
	GetErr       error
	PingErr      error
	Methods      []payment.Method

	mu       sync.Mutex
	seq      int
	intents  map[string]*payment.Intent
	Requests []payment.CreateRequest
	Refunds  []string
}

// NewProvider returns a fake provider named name.
func NewProvider(name string) *Provider {
	return &Provider{ProviderName: name, CreateStatus: payment.StatusPending, intents: map[string]*payment.Intent{}}
}

// Factory returns a provider factory that always hands out p, remembering
// the credentials it was built with.
func (p *Provider) Factory() func(string, payment.Credentials) (payment.Provider, error) {
	return func(name string, creds payment.Credentials) (payment.Provider, error) {
		if name != p.ProviderName {
			return nil, fmt.Errorf("%w: %s", payment.ErrUnsupportedProvider, name)
		}
		p.mu.Lock()
		p.Credentials = creds
		p.mu.Unlock()
		return p, nil
	}
}

func (p *Provider) Name() string { return p.ProviderName }

func (p *Provider) CreatePayment(_ context.Context, req payment.CreateRequest) (*payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	p.seq++
	p.Requests = append(p.Requests, req)
	intent := &payment.Intent{
		ExternalID:     fmt.Sprintf("%s_%d", p.ProviderName, p.seq),
		Status:         p.CreateStatus,
		ProviderStatus: p.CreateStatus,
		Amount:         req.Amount,
		Currency:       req.Currency,
		ClientSecret:   fmt.Sprintf("secret_%d", p.seq),
		CheckoutURL:    p.CheckoutURL,
		Metadata:       req.Metadata,
		Raw:            map[string]any{"seq": p.seq},
	}
	p.intents[intent.ExternalID] = intent
	c := *intent
	return &c, nil
}

func (p *Provider) GetPayment(_ context.Context, externalID string) (*payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.GetErr != nil {
		return nil, p.GetErr
	}
	intent, ok := p.intents[externalID]
	if !ok {
		return nil, fmt.Errorf("no such payment %s", externalID)
	}
	c := *intent
	return &c, nil
}

// SetStatus moves a created payment to status.
func (p *Provider) SetStatus(externalID, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if intent, ok := p.intents[externalID]; ok {
		intent.Status = status
		intent.ProviderStatus = status
	}
}

func (p *Provider) Refund(_ context.Context, externalID string, amount *float64, _ string) (*payment.Refund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[externalID]
	if !ok {
		return nil, fmt.Errorf("no such payment %s", externalID)
	}
	value := intent.Amount
	if amount != nil {
		value = *amount
	}
	p.Refunds = append(p.Refunds, externalID)
	return &payment.Refund{ExternalID: "re_" + externalID, Status: "succeeded", Amount: value}, nil
}

// ParseWebhook accepts a JSON WebhookPayload signed by sending the gateway
// webhook secret in WebhookSignatureHeader.
func (p *Provider) ParseWebhook(_ context.Context, payload []byte, header http.Header) (*payment.Event, error) {
	p.mu.Lock()
	secret := p.Credentials.WebhookSecret
	p.mu.Unlock()
	if secret == "" || header.Get(WebhookSignatureHeader) != secret {
		return nil, payment.ErrInvalidSignature
	}
	var body WebhookPayload
	if err := json.NewDecoder(strings.NewReader(string(payload))).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrInvalidSignature, err)
	}
	if body.Status != "" && body.PaymentID != "" {
		p.SetStatus(body.PaymentID, body.Status)
	}
	return &payment.Event{ID: body.ID, Type: body.Type, PaymentID: body.PaymentID, Status: body.Status}, nil
}

func (p *Provider) Ping(context.Context) error { return p.PingErr }

func (p *Provider) ListMethods(context.Context, float64, string) ([]payment.Method, error) {
	return p.Methods, nil
}
