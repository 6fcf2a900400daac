package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/service"
)

type PaymentHandler struct {
	payments *service.PaymentService
	sessions *service.SessionService
	gateways *service.GatewayService
}

func NewPaymentHandler(payments *service.PaymentService, sessions *service.SessionService, gateways *service.GatewayService) *PaymentHandler {
	return &PaymentHandler{payments: payments, sessions: sessions, gateways: gateways}
}

// PrepareSession handles POST /api/payments/session.
func (h *PaymentHandler) PrepareSession(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		Error(w, err)
		return
	}
	var req domain.ChangeRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	sess, err := h.sessions.Prepare(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, sess)
}

// GetSession handles GET /api/payments/session.
func (h *PaymentHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		Error(w, err)
		return
	}
	sess, err := h.sessions.Get(r.Context(), userID.Hex())
	if err != nil {
		Error(w, err)
		return
	}
	if sess == nil {
		JSON(w, http.StatusOK, map[string]any{"success": true, "data": nil, "message": "no valid session"})
		return
	}
	OK(w, http.StatusOK, sess)
}

func (h *PaymentHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		Error(w, err)
		return
	}
	if err := h.sessions.Delete(r.Context(), userID.Hex()); err != nil {
		Error(w, err)
		return
	}
	Message(w, "session cleared", nil)
}

// CreateStripeIntent handles POST /api/payments/stripe/create-intent.
func (h *PaymentHandler) CreateStripeIntent(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		Error(w, err)
		return
	}
	var req domain.CreateIntentRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	resp, err := h.payments.CreateStripeIntent(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, resp)
}

// StripeStatus handles GET /api/payments/stripe/{id}.
func (h *PaymentHandler) StripeStatus(w http.ResponseWriter, r *http.Request) {
	h.status(w, r, domain.ProviderStripe)
}

// CreateMollieWithToken handles POST /api/payments/mollie/create-with-token.
func (h *PaymentHandler) CreateMollieWithToken(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		Error(w, err)
		return
	}
	var req domain.MollieTokenRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	resp, err := h.payments.CreateMollieWithToken(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, resp)
}

// MollieMethods handles GET /api/payments/mollie/methods?amount=.
func (h *PaymentHandler) MollieMethods(w http.ResponseWriter, r *http.Request) {
	var amount float64
	if raw := r.URL.Query().Get("amount"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			Error(w, domain.ErrBadRequest("invalid amount"))
			return
		}
		amount = v
	}
	methods, err := h.payments.ListMethods(r.Context(), amount)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, methods)
}

func (h *PaymentHandler) MollieStatus(w http.ResponseWriter, r *http.Request) {
	h.status(w, r, domain.ProviderMollie)
}

func (h *PaymentHandler) status(w http.ResponseWriter, r *http.Request, provider string) {
	userID, err := currentUserID(r)
	if err != nil {
		Error(w, err)
		return
	}
	p, err := h.payments.Status(r.Context(), userID, provider, chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, p)
}

// History handles GET /api/payments/history.
func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		Error(w, err)
		return
	}
	list, err := h.payments.History(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, list)
}

// Gateways handles GET /api/payments/gateways. Only public keys are exposed.
func (h *PaymentHandler) Gateways(w http.ResponseWriter, r *http.Request) {
	list, err := h.gateways.PublicList(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, list)
}

// AdminList handles GET /api/admin/payments?status=&provider=.
func (h *PaymentHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.payments.AdminList(r.Context(), q.Get("status"), q.Get("provider"))
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, list)
}

// Refund handles POST /api/admin/payments/{id}/refund. An empty body refunds
// the full amount.
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req domain.RefundRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	p, err := h.payments.Refund(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, p)
}
