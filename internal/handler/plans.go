package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/service"
)

// PlansHandler handles plan-related endpoints.
type PlansHandler struct {
	plans *service.PlanService
}

// NewPlansHandler creates a new PlansHandler.
func NewPlansHandler(plans *service.PlanService) *PlansHandler {
	return &PlansHandler{plans: plans}
}

// List handles GET /api/plans.
func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.ListPublic(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, plans)
}

// AdminList handles GET /api/admin/plans, inactive plans included.
func (h *PlansHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.ListAll(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, plans)
}

func (h *PlansHandler) Get(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, plan)
}

func (h *PlansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.PlanRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	plan, err := h.plans.Create(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusCreated, plan)
}

func (h *PlansHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.PlanRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	plan, err := h.plans.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, plan)
}

func (h *PlansHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.plans.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	Message(w, "plan deleted", nil)
}
