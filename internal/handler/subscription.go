package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/service"
)

// SubscriptionHandler serves the customer's subscription and the admin views.
type SubscriptionHandler struct {
	subs     *service.SubscriptionService
	sessions *service.SessionService
}

func NewSubscriptionHandler(subs *service.SubscriptionService, sessions *service.SessionService) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, sessions: sessions}
}

// Current handles GET /api/subscriptions/current. Data is null when the user
// has no subscription.
func (h *SubscriptionHandler) Current(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		Error(w, err)
		return
	}
	sub, err := h.subs.Current(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}
	if sub == nil {
		JSON(w, http.StatusOK, map[string]any{"success": true, "data": nil})
		return
	}
	OK(w, http.StatusOK, sub)
}

// Upgrade handles POST /api/subscriptions/upgrade: it quotes the change and
// stores the payment session the checkout will pay for.
func (h *SubscriptionHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
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
	if req.Type != domain.ChangeUpgrade && req.Type != domain.ChangeRenewal {
		Error(w, domain.ErrValidation([]domain.FieldError{{Field: "type", Message: "must be one of: upgrade renewal"}}))
		return
	}

	sess, err := h.sessions.Prepare(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, sess)
}

// Complete handles POST /api/subscriptions/upgrade/complete.
func (h *SubscriptionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		Error(w, err)
		return
	}
	var req domain.CompleteRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	sub, err := h.subs.Complete(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, sub)
}

// AdminList handles GET /api/admin/subscriptions?status=.
func (h *SubscriptionHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subs.AdminList(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, subs)
}

func (h *SubscriptionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.SubscriptionStatusRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	sub, err := h.subs.UpdateStatus(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, sub)
}
