package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/service"
)

type ContactHandler struct {
	contacts *service.ContactService
}

func NewContactHandler(contacts *service.ContactService) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// Submit handles the public POST /api/contact form.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.ContactRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if _, err := h.contacts.Submit(r.Context(), &req, ClientIP(r), r.UserAgent()); err != nil {
		Error(w, err)
		return
	}
	// Spam is stored silently; the sender gets the same answer either way.
	JSON(w, http.StatusCreated, envelope{Success: true, Message: "message received"})
}

// List handles GET /api/admin/contacts?status=&search=&page=&limit=.
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	res, err := h.contacts.List(r.Context(), domain.ContactFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, res)
}

func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.contacts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, c)
}

func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.ContactUpdate
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	c, err := h.contacts.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, c)
}

func (h *ContactHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		Error(w, err)
		return
	}
	var req domain.ContactNoteRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	c, err := h.contacts.AddNote(r.Context(), chi.URLParam(r, "id"), user.Email, &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, c)
}

func (h *ContactHandler) Reply(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		Error(w, err)
		return
	}
	var req domain.ContactReplyRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	c, err := h.contacts.Reply(r.Context(), chi.URLParam(r, "id"), user.Email, &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, c)
}

func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.contacts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	Message(w, "contact deleted", nil)
}
