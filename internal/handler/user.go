package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tarifly/backend/internal/service"
)

// AffiliationHandler manages affiliate codes.
type AffiliationHandler struct {
	auth *service.AuthService
}

func NewAffiliationHandler(auth *service.AuthService) *AffiliationHandler {
	return &AffiliationHandler{auth: auth}
}

// AssignCode handles POST /api/admin/users/{id}/affiliation-code.
func (h *AffiliationHandler) AssignCode(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.AssignAffiliationCode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, user)
}

// Validate handles GET /api/affiliation/{code}. It only reveals whether the
// code exists.
func (h *AffiliationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	valid, err := h.auth.ValidateAffiliationCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, map[string]bool{"valid": valid})
}
