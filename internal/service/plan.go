package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/logger"
)

const maxSlugAttempts = 100

// PlanService manages the pricing catalog.
type PlanService struct {
	plans    PlanStore
	validate *validator.Validate
	now      func() time.Time

	seedMu sync.Mutex // serializes the count-then-insert of SeedDefaults
}

// NewPlanService creates a new PlanService.
func NewPlanService(plans PlanStore) *PlanService {
	return &PlanService{plans: plans, validate: newValidator(), now: time.Now}
}

// ListPublic returns active plans by display order, seeding the default
// catalog the first time the collection is found empty.
func (s *PlanService) ListPublic(ctx context.Context) ([]*domain.Plan, error) {
	if err := s.SeedDefaults(ctx); err != nil {
		return nil, err
	}
	plans, err := s.plans.List(ctx, true)
	if err != nil {
		return nil, domain.ErrInternal("failed to list plans", err)
	}
	return plans, nil
}

// SeedDefaults inserts the default plans when no plan exists.
func (s *PlanService) SeedDefaults(ctx context.Context) error {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()

	count, err := s.plans.Count(ctx)
	if err != nil {
		return domain.ErrInternal("failed to count plans", err)
	}
	if count > 0 {
		return nil
	}
	for _, p := range domain.DefaultPlans() {
		plan := p
		if err := s.create(ctx, &plan); err != nil {
			return err
		}
	}
	logger.WithComponent("plans").Info("default plans seeded")
	return nil
}

// ListAll returns every plan, active or not.
func (s *PlanService) ListAll(ctx context.Context) ([]*domain.Plan, error) {
	plans, err := s.plans.List(ctx, false)
	if err != nil {
		return nil, domain.ErrInternal("failed to list plans", err)
	}
	return plans, nil
}

func (s *PlanService) Get(ctx context.Context, planID string) (*domain.Plan, error) {
	id, err := parseID(planID, "plan")
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find plan", err)
	}
	if plan == nil {
		return nil, domain.ErrNotFound("plan not found")
	}
	return plan, nil
}

func (s *PlanService) Create(ctx context.Context, req *domain.PlanRequest) (*domain.Plan, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	plan := &domain.Plan{IsActive: true}
	applyPlanRequest(plan, req)
	if err := s.create(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *PlanService) create(ctx context.Context, plan *domain.Plan) error {
	slug, err := s.uniqueSlug(ctx, plan.Name, primitive.NilObjectID)
	if err != nil {
		return err
	}
	now := s.now()
	plan.Slug = slug
	plan.CreatedAt = now
	plan.UpdatedAt = now
	if err := s.plans.Create(ctx, plan); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return domain.ErrConflict("plan slug already exists")
		}
		return domain.ErrInternal("failed to create plan", err)
	}
	return nil
}

// Update replaces the editable fields. A renamed plan gets a fresh slug.
func (s *PlanService) Update(ctx context.Context, planID string, req *domain.PlanRequest) (*domain.Plan, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	plan, err := s.Get(ctx, planID)
	if err != nil {
		return nil, err
	}

	renamed := plan.Name != strings.TrimSpace(req.Name)
	applyPlanRequest(plan, req)
	if renamed {
		if plan.Slug, err = s.uniqueSlug(ctx, plan.Name, plan.ID); err != nil {
			return nil, err
		}
	}
	plan.UpdatedAt = s.now()
	if err := s.plans.Update(ctx, plan); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.ErrConflict("plan slug already exists")
		}
		return nil, domain.ErrInternal("failed to update plan", err)
	}
	return plan, nil
}

func (s *PlanService) Delete(ctx context.Context, planID string) error {
	id, err := parseID(planID, "plan")
	if err != nil {
		return err
	}
	deleted, err := s.plans.Delete(ctx, id)
	if err != nil {
		return domain.ErrInternal("failed to delete plan", err)
	}
	if !deleted {
		return domain.ErrNotFound("plan not found")
	}
	return nil
}

// uniqueSlug derives a slug from name and appends -1, -2, ... until it does
// not collide with another plan.
func (s *PlanService) uniqueSlug(ctx context.Context, name string, exclude primitive.ObjectID) (string, error) {
	base := domain.Slugify(name)
	slug := base
	for i := 1; i <= maxSlugAttempts; i++ {
		taken, err := s.plans.SlugExists(ctx, slug, exclude)
		if err != nil {
			return "", domain.ErrInternal("failed to check slug", err)
		}
		if !taken {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
	return "", domain.ErrConflict("no free slug for " + base)
}

func applyPlanRequest(p *domain.Plan, req *domain.PlanRequest) {
	p.Name = strings.TrimSpace(req.Name)
	p.Price = strings.TrimSpace(req.Price)
	p.Period = strings.TrimSpace(req.Period)
	p.Description = req.Description
	p.Features = req.Features
	if p.Features == nil {
		p.Features = []string{}
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	p.Highlight = req.Highlight
	p.Order = req.Order
}
