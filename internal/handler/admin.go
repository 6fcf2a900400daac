package handler

import (
	"net/http"

	"github.com/tarifly/backend/internal/service"
)

type AdminHandler struct {
	admin   *service.AdminService
	authSvc *service.AuthService
}

func NewAdminHandler(admin *service.AdminService, authSvc *service.AuthService) *AdminHandler {
	return &AdminHandler{admin: admin, authSvc: authSvc}
}

// GetStats returns the dashboard counters.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, stats)
}

// ListUsers returns all users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.authSvc.ListUsers(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, users)
}
