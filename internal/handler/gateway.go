package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/service"
)

// GatewayHandler administers payment gateway settings. Responses always carry
// masked secrets.
type GatewayHandler struct {
	gateways *service.GatewayService
}

func NewGatewayHandler(gateways *service.GatewayService) *GatewayHandler {
	return &GatewayHandler{gateways: gateways}
}

func (h *GatewayHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.gateways.List(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, list)
}

func (h *GatewayHandler) Get(w http.ResponseWriter, r *http.Request) {
	g, err := h.gateways.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, g)
}

func (h *GatewayHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.GatewayRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	g, err := h.gateways.Create(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusCreated, g)
}

func (h *GatewayHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.GatewayRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	g, err := h.gateways.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, g)
}

func (h *GatewayHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.gateways.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	Message(w, "gateway deleted", nil)
}

func (h *GatewayHandler) Activate(w http.ResponseWriter, r *http.Request) {
	g, err := h.gateways.Activate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, g)
}

func (h *GatewayHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	g, err := h.gateways.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, g)
}

// Test pings the provider with the stored credentials.
func (h *GatewayHandler) Test(w http.ResponseWriter, r *http.Request) {
	if err := h.gateways.Test(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	Message(w, "connection successful", nil)
}
