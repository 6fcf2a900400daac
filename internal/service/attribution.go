package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tarifly/backend/internal/domain"
)

const defaultAttributionWindow = 30 * 24 * time.Hour

// AttributionService records marketing funnel events and reports on them.
type AttributionService struct {
	events   AttributionStore
	validate *validator.Validate
	now      func() time.Time
}

func NewAttributionService(events AttributionStore) *AttributionService {
	return &AttributionService{events: events, validate: newValidator(), now: time.Now}
}

// Record appends one funnel event. userID is nil for anonymous visitors.
func (s *AttributionService) Record(ctx context.Context, userID *primitive.ObjectID, req *domain.AttributionRequest) (*domain.MarketingAttribution, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	a := &domain.MarketingAttribution{
		SessionID:   req.SessionID,
		UserID:      userID,
		Step:        req.Step,
		UTMSource:   req.UTMSource,
		UTMMedium:   req.UTMMedium,
		UTMCampaign: req.UTMCampaign,
		UTMTerm:     req.UTMTerm,
		UTMContent:  req.UTMContent,
		Referrer:    req.Referrer,
		LandingPage: req.LandingPage,
		CreatedAt:   s.now(),
	}
	if err := s.events.Create(ctx, a); err != nil {
		return nil, domain.ErrInternal("failed to record attribution", err)
	}
	return a, nil
}

// Stats counts events per (source, step) between from and to. A zero to
// means now and a zero from means thirty days before to.
func (s *AttributionService) Stats(ctx context.Context, from, to time.Time) ([]domain.AttributionStat, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-defaultAttributionWindow)
	}
	if from.After(to) {
		return nil, domain.ErrBadRequest("from must be before to")
	}
	stats, err := s.events.Stats(ctx, from, to)
	if err != nil {
		return nil, domain.ErrInternal("failed to compute attribution stats", err)
	}
	return stats, nil
}
