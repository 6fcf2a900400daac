package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/VictorAvelar/mollie-api-go/v4/mollie"
)

// MollieAdapter talks to the Mollie v2 API with the API key of one gateway.
type MollieAdapter struct {
	client *mollie.Client
}

var (
	_ Provider     = (*MollieAdapter)(nil)
	_ MethodLister = (*MollieAdapter)(nil)
)

func NewMollie(creds Credentials, o *options) (*MollieAdapter, error) {
	httpClient := &http.Client{Timeout: 20 * time.Second}
	if o != nil && o.httpClient != nil {
		httpClient = o.httpClient
	}

	client, err := mollie.NewClient(httpClient, mollie.NewAPIConfig(false))
	if err != nil {
		return nil, fmt.Errorf("mollie: create client: %w", err)
	}
	if err := client.WithAuthenticationValue(creds.APIKey); err != nil {
		return nil, fmt.Errorf("mollie: %w", err)
	}
	if o != nil && o.mollieURL != "" {
		base, err := url.Parse(strings.TrimRight(o.mollieURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("mollie: invalid base url: %w", err)
		}
		client.BaseURL = base
	}
	return &MollieAdapter{client: client}, nil
}

func (m *MollieAdapter) Name() string { return Mollie }

// CreatePayment creates a payment. With a card token it is a direct credit
// card charge and CheckoutURL is only set when 3-D Secure is needed.
func (m *MollieAdapter) CreatePayment(ctx context.Context, req CreateRequest) (*Intent, error) {
	currency := strings.ToUpper(req.Currency)
	body := mollie.CreatePayment{
		Amount:      &mollie.Amount{Currency: currency, Value: FormatDecimal(req.Amount, currency)},
		Description: req.Description,
		RedirectURL: req.RedirectURL,
		WebhookURL:  req.WebhookURL,
	}
	if len(req.Metadata) > 0 {
		body.Metadata = req.Metadata
	}
	if req.CardToken != "" {
		body.Method = []mollie.PaymentMethod{mollie.PaymentMethod("creditcard")}
		body.CardToken = req.CardToken
	}

	_, p, err := m.client.Payments.Create(ctx, body, nil)
	if err != nil {
		return nil, fmt.Errorf("mollie: create payment: %w", err)
	}
	return intentFromMollie(p), nil
}

func (m *MollieAdapter) GetPayment(ctx context.Context, externalID string) (*Intent, error) {
	_, p, err := m.client.Payments.Get(ctx, externalID, nil)
	if err != nil {
		return nil, fmt.Errorf("mollie: get payment %s: %w", externalID, err)
	}
	return intentFromMollie(p), nil
}

func (m *MollieAdapter) Refund(ctx context.Context, externalID string, amount *float64, currency string) (*Refund, error) {
	var value *mollie.Amount
	if amount != nil {
		cur := strings.ToUpper(currency)
		value = &mollie.Amount{Currency: cur, Value: FormatDecimal(*amount, cur)}
	} else {
		// Mollie requires the amount; fetch it to refund in full.
		p, err := m.GetPayment(ctx, externalID)
		if err != nil {
			return nil, err
		}
		value = &mollie.Amount{Currency: p.Currency, Value: FormatDecimal(p.Amount, p.Currency)}
	}

	_, r, err := m.client.Refunds.CreatePaymentRefund(ctx, externalID, mollie.CreatePaymentRefund{Amount: value}, nil)
	if err != nil {
		return nil, fmt.Errorf("mollie: refund %s: %w", externalID, err)
	}
	out := &Refund{ExternalID: r.ID, Status: string(r.Status)}
	if r.Amount != nil {
		out.Amount, _ = ParseDecimal(r.Amount.Value)
	}
	return out, nil
}

// ParseWebhook handles Mollie's form-encoded "id=tr_..." callback. Mollie
// does not sign webhooks; the payment is re-fetched with the API key instead,
// so a forged call can only trigger a status refresh.
func (m *MollieAdapter) ParseWebhook(ctx context.Context, payload []byte, _ http.Header) (*Event, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	id := values.Get("id")
	if id == "" || !strings.HasPrefix(id, "tr_") {
		return nil, fmt.Errorf("%w: missing payment id", ErrInvalidSignature)
	}

	intent, err := m.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        id,
		Type:      "payment.updated",
		PaymentID: id,
		Status:    intent.Status,
		Intent:    intent,
	}, nil
}

// ListMethods returns the methods enabled on the profile. A positive amount
// drops the methods whose limits exclude it.
func (m *MollieAdapter) ListMethods(ctx context.Context, amount float64, currency string) ([]Method, error) {
	_, list, err := m.client.PaymentMethods.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mollie: list methods: %w", err)
	}

	out := []Method{}
	if list == nil {
		return out, nil
	}
	for _, mt := range list.Embedded.Methods {
		if mt == nil || !withinLimits(amount, mt.MinimumAmount, mt.MaximumAmount) {
			continue
		}
		method := Method{ID: mt.ID, Description: mt.Description}
		if mt.Image != nil {
			method.Image = mt.Image.Svg
		}
		out = append(out, method)
	}
	return out, nil
}

func withinLimits(amount float64, lower, upper *mollie.Amount) bool {
	if amount <= 0 {
		return true
	}
	if lower != nil {
		if v, err := ParseDecimal(lower.Value); err == nil && amount < v {
			return false
		}
	}
	if upper != nil {
		if v, err := ParseDecimal(upper.Value); err == nil && v > 0 && amount > v {
			return false
		}
	}
	return true
}

func (m *MollieAdapter) Ping(ctx context.Context) error {
	_, err := m.ListMethods(ctx, 0, "")
	return err
}

func intentFromMollie(p *mollie.Payment) *Intent {
	in := &Intent{
		ExternalID:     p.ID,
		ProviderStatus: string(p.Status),
		Metadata:       mollieMetadata(p.Metadata),
		Raw: map[string]any{
			"molliePaymentId": p.ID,
			"status":          string(p.Status),
		},
	}
	if p.Amount != nil {
		in.Amount, _ = ParseDecimal(p.Amount.Value)
		in.Currency = p.Amount.Currency
		in.Raw["amount"] = p.Amount.Value
		in.Raw["currency"] = p.Amount.Currency
	}

	in.Status = mollieStatus(in.ProviderStatus)
	if in.Status == StatusCompleted && p.AmountRefunded != nil {
		if refunded, err := ParseDecimal(p.AmountRefunded.Value); err == nil && refunded >= in.Amount && in.Amount > 0 {
			in.Status = StatusRefunded
		}
	}
	if p.Links.Checkout != nil && p.Links.Checkout.Href != "" {
		in.CheckoutURL = p.Links.Checkout.Href
		in.Raw["checkoutUrl"] = p.Links.Checkout.Href
	}
	return in
}

// mollieMetadata flattens the decoded metadata object to strings.
func mollieMetadata(raw any) map[string]string {
	switch md := raw.(type) {
	case map[string]string:
		return md
	case map[string]any:
		out := make(map[string]string, len(md))
		for k, v := range md {
			out[k] = fmt.Sprint(v)
		}
		return out
	default:
		return nil
	}
}

func mollieStatus(st string) string {
	switch st {
	case "paid":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "canceled":
		return StatusCancelled
	case "expired":
		return StatusExpired
	default: // open, pending, authorized
		return StatusPending
	}
}
