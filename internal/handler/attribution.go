package handler

import (
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/service"
)

type AttributionHandler struct {
	attribution *service.AttributionService
}

func NewAttributionHandler(attribution *service.AttributionService) *AttributionHandler {
	return &AttributionHandler{attribution: attribution}
}

// Record handles POST /api/marketing/attribution. Runs behind OptionalAuth so
// events from logged-in visitors are tied to their account.
func (h *AttributionHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req domain.AttributionRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	var userID *primitive.ObjectID
	if u, err := currentUser(r); err == nil {
		id := u.ID
		userID = &id
	}
	a, err := h.attribution.Record(r.Context(), userID, &req)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusCreated, a)
}

// Stats handles GET /api/admin/marketing/attribution/stats?from=&to=. Dates
// are RFC 3339 or YYYY-MM-DD.
func (h *AttributionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	from, err := parseDateParam(r, "from")
	if err != nil {
		Error(w, err)
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		Error(w, err)
		return
	}
	stats, err := h.attribution.Stats(r.Context(), from, to)
	if err != nil {
		Error(w, err)
		return
	}
	OK(w, http.StatusOK, stats)
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, domain.ErrBadRequest("invalid " + name + " date")
	}
	return t, nil
}
