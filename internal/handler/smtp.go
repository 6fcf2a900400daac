package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/service"
)

type SmtpHandler struct {
	mail *service.MailService
}

func NewSmtpHandler(mail *service.MailService) *SmtpHandler {
	return &SmtpHandler{mail: mail}
}

func (h *SmtpHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.mail.List(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, list)
}

func (h *SmtpHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.SmtpRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	s, err := h.mail.Create(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusCreated, s)
}

func (h *SmtpHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.SmtpRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	s, err := h.mail.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, s)
}

func (h *SmtpHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.mail.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	Message(w, "smtp settings deleted", nil)
}

// Test sends a test email to body.to, or to the caller when it is empty.
func (h *SmtpHandler) Test(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		Error(w, err)
		return
	}
	var req domain.SmtpTestRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	to := req.To
	if to == "" {
		to = user.Email
	}
	if err := h.mail.Test(r.Context(), chi.URLParam(r, "id"), to); err != nil {
		Error(w, err)
		return
	}
	Message(w, "test email sent to "+to, nil)
}
