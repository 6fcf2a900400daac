package handler

import (
	"io"
	"net/http"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/service"
)

// maxWebhookBytes matches Stripe's documented upper bound for event payloads.
const maxWebhookBytes = 64 << 10

// WebhookHandler receives provider callbacks. The raw body is passed through
// untouched because Stripe signs the exact bytes.
type WebhookHandler struct {
	webhooks *service.WebhookService
}

func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Stripe handles POST /api/webhooks/stripe.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, domain.ProviderStripe)
}

// Mollie handles POST /api/webhooks/mollie (form body "id=tr_...").
func (h *WebhookHandler) Mollie(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, domain.ProviderMollie)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, provider string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		Fail(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if err := h.webhooks.Handle(r.Context(), provider, body, r.Header); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"received": true})
}
