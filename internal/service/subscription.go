package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/logger"
	"github.com/tarifly/backend/internal/mail"
	"github.com/tarifly/backend/internal/metrics"
)

// SubscriptionService prices plan changes and applies them once paid.
type SubscriptionService struct {
	subs      SubscriptionStore
	plans     PlanStore
	payments  PaymentStore
	users     UserStore
	providers ProviderResolver
	mailer    Mailer
	currency  string
	validate  *validator.Validate
	now       func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(subs SubscriptionStore, plans PlanStore, payments PaymentStore, users UserStore, providers ProviderResolver, mailer Mailer, currency string) *SubscriptionService {
	return &SubscriptionService{
		subs:      subs,
		plans:     plans,
		payments:  payments,
		users:     users,
		providers: providers,
		mailer:    mailer,
		currency:  currency,
		validate:  newValidator(),
		now:       time.Now,
	}
}

// currentSubscription prefers the active subscription and falls back to the
// most recent one. Nil when the user never subscribed.
func currentSubscription(ctx context.Context, subs SubscriptionStore, userID primitive.ObjectID) (*domain.Subscription, error) {
	sub, err := subs.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find subscription", err)
	}
	if sub != nil {
		return sub, nil
	}
	sub, err = subs.FindLatestByUser(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find subscription", err)
	}
	return sub, nil
}

func (s *SubscriptionService) Current(ctx context.Context, userID primitive.ObjectID) (*domain.Subscription, error) {
	return currentSubscription(ctx, s.subs, userID)
}

// PlannedChange is a priced change together with the records it was priced
// from. Subscription is nil for a first purchase without a pending one.
type PlannedChange struct {
	Quote        *domain.Quote
	Plan         *domain.Plan
	Subscription *domain.Subscription
}

// QuoteChange validates a change request and prices it. The amount is always
// the full price of the target plan; days remaining are reported only.
func (s *SubscriptionService) QuoteChange(ctx context.Context, userID primitive.ObjectID, req *domain.ChangeRequest) (*PlannedChange, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}

	plan, err := s.findPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, domain.ErrNotFound("plan not found")
	}

	sub, err := s.resolveSubscription(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	target := plan.PriceValue()
	quote := &domain.Quote{
		Type:        req.Type,
		Amount:      target,
		Currency:    s.currency,
		TargetPrice: target,
	}

	if req.Type == domain.ChangeNew {
		if sub != nil && sub.Status == domain.SubscriptionActive {
			if domain.DaysRemaining(sub.EndDate, s.now()) > 0 {
				return nil, domain.ErrBadRequest("an active subscription exists, use upgrade or renewal")
			}
			// A lapsed subscription the sweeper has not expired yet is reused
			// so the user never holds two active rows.
			return &PlannedChange{Quote: quote, Plan: plan, Subscription: sub}, nil
		}
		if sub != nil && sub.Status != domain.SubscriptionPending {
			sub = nil
		}
		return &PlannedChange{Quote: quote, Plan: plan, Subscription: sub}, nil
	}

	if sub == nil {
		return nil, domain.ErrBadRequest("no subscription to " + req.Type)
	}
	quote.CurrentPrice = domain.ParsePrice(sub.PlanPrice)
	quote.DaysRemaining = domain.DaysRemaining(sub.EndDate, s.now())

	if req.Type == domain.ChangeUpgrade {
		if target <= quote.CurrentPrice {
			return nil, domain.ErrBadRequest("upgrade must target a more expensive plan")
		}
		if quote.DaysRemaining <= 0 {
			return nil, domain.ErrBadRequest("subscription has expired, renew it instead")
		}
	}
	return &PlannedChange{Quote: quote, Plan: plan, Subscription: sub}, nil
}

// QuoteDirect prices buying planID outright. A user with a running
// subscription renews it when planID is the plan held and upgrades otherwise.
func (s *SubscriptionService) QuoteDirect(ctx context.Context, userID primitive.ObjectID, planID string) (*PlannedChange, error) {
	sub, err := s.subs.FindActiveByUser(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find subscription", err)
	}
	req := &domain.ChangeRequest{Type: domain.ChangeNew, PlanID: planID}
	if sub != nil && domain.DaysRemaining(sub.EndDate, s.now()) > 0 {
		req.Type = domain.ChangeUpgrade
		if sub.PlanID.Hex() == planID {
			req.Type = domain.ChangeRenewal
		}
		req.SubscriptionID = sub.ID.Hex()
	}
	return s.QuoteChange(ctx, userID, req)
}

func (s *SubscriptionService) resolveSubscription(ctx context.Context, userID primitive.ObjectID, req *domain.ChangeRequest) (*domain.Subscription, error) {
	if req.SubscriptionID == "" {
		return currentSubscription(ctx, s.subs, userID)
	}
	id, err := parseID(req.SubscriptionID, "subscription")
	if err != nil {
		return nil, err
	}
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find subscription", err)
	}
	if sub == nil {
		return nil, domain.ErrNotFound("subscription not found")
	}
	if sub.UserID != userID {
		return nil, domain.ErrForbidden("subscription belongs to another user")
	}
	return sub, nil
}

func (s *SubscriptionService) findPlan(ctx context.Context, planID string) (*domain.Plan, error) {
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

// Complete applies the change paid for by a payment the caller owns. A
// payment that is neither completed nor processed is refreshed from its
// provider once before giving up.
func (s *SubscriptionService) Complete(ctx context.Context, userID primitive.ObjectID, req *domain.CompleteRequest) (*domain.Subscription, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}

	p, err := s.locatePayment(ctx, req)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrForbidden("payment belongs to another user")
	}

	if !p.IsProcessed && p.Status != domain.PaymentCompleted {
		if p, err = syncPayment(ctx, s.providers, s.payments, p); err != nil {
			return nil, err
		}
		if !p.IsProcessed && p.Status != domain.PaymentCompleted {
			return nil, domain.ErrBadRequest("payment is not completed (status: " + p.Status + ")")
		}
	}
	return s.ApplyPayment(ctx, p)
}

func (s *SubscriptionService) locatePayment(ctx context.Context, req *domain.CompleteRequest) (*domain.Payment, error) {
	var (
		p   *domain.Payment
		err error
	)
	switch {
	case req.PaymentID != "":
		id, perr := parseID(req.PaymentID, "payment")
		if perr != nil {
			return nil, perr
		}
		p, err = s.payments.FindByID(ctx, id)
	case req.PaymentIntentID != "":
		p, err = s.payments.FindByExternalID(ctx, domain.ProviderStripe, req.PaymentIntentID)
	case req.MolliePaymentID != "":
		p, err = s.payments.FindByExternalID(ctx, domain.ProviderMollie, req.MolliePaymentID)
	default:
		return nil, domain.ErrValidation([]domain.FieldError{{Field: "paymentId", Message: "paymentId, paymentIntentId or molliePaymentId is required"}})
	}
	if err != nil {
		return nil, domain.ErrInternal("failed to find payment", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("payment not found")
	}
	return p, nil
}

// ApplyPayment applies a completed payment to its subscription at most once.
// The payment is claimed with a conditional update first; whoever loses the
// claim, or finds it already processed, gets the current state back.
func (s *SubscriptionService) ApplyPayment(ctx context.Context, p *domain.Payment) (*domain.Subscription, error) {
	log := logger.WithUser(p.UserID.Hex()).WithField("payment_id", p.ID.Hex())

	if p.IsProcessed {
		return s.appliedState(ctx, p)
	}
	claimed, err := s.payments.ClaimProcessing(ctx, p.ID, s.now())
	if err != nil {
		return nil, domain.ErrInternal("failed to claim payment", err)
	}
	if !claimed {
		log.Info("payment already claimed, returning current subscription")
		return s.appliedState(ctx, p)
	}

	sub, err := s.apply(ctx, p)
	if err != nil {
		if rerr := s.payments.ReleaseProcessing(ctx, p.ID); rerr != nil {
			log.WithError(rerr).Error("failed to release payment claim")
		}
		return nil, err
	}

	changeType := p.Metadata.Type
	if changeType == "" {
		changeType = domain.ChangeNew
	}
	metrics.SubscriptionChanges.WithLabelValues(changeType).Inc()
	log.WithField("subscription_id", sub.ID.Hex()).Infof("subscription %s applied until %s", changeType, sub.EndDate.Format(time.DateOnly))

	s.sendReceipt(ctx, p, sub)
	return sub, nil
}

func (s *SubscriptionService) appliedState(ctx context.Context, p *domain.Payment) (*domain.Subscription, error) {
	if id, err := primitive.ObjectIDFromHex(p.Metadata.SubscriptionID); err == nil {
		sub, err := s.subs.FindByID(ctx, id)
		if err != nil {
			return nil, domain.ErrInternal("failed to find subscription", err)
		}
		if sub != nil {
			return sub, nil
		}
	}
	return currentSubscription(ctx, s.subs, p.UserID)
}

func (s *SubscriptionService) apply(ctx context.Context, p *domain.Payment) (*domain.Subscription, error) {
	plan, err := s.findPlan(ctx, p.Metadata.PlanID)
	if err != nil {
		return nil, err
	}

	var sub *domain.Subscription
	if id, perr := primitive.ObjectIDFromHex(p.Metadata.SubscriptionID); perr == nil {
		if sub, err = s.subs.FindByID(ctx, id); err != nil {
			return nil, domain.ErrInternal("failed to find subscription", err)
		}
		if sub != nil && sub.UserID != p.UserID {
			return nil, domain.ErrForbidden("subscription belongs to another user")
		}
	}

	now := s.now()
	isNew := sub == nil
	if isNew {
		sub = &domain.Subscription{UserID: p.UserID, CreatedAt: now}
	}

	base := now
	if p.Metadata.Type == domain.ChangeRenewal && !isNew && sub.EndDate.After(now) {
		base = sub.EndDate
	} else {
		sub.StartDate = now
	}

	sub.ApplyPlan(plan)
	sub.EndDate = domain.ComputeEndDate(base, plan.Period)
	sub.Status = domain.SubscriptionActive
	sub.LastPaymentID = &p.ID
	sub.UpdatedAt = now

	if sub.AffiliatedUserID == nil && p.Metadata.AffiliationCode != "" {
		affiliate, err := s.users.FindByAffiliationCode(ctx, p.Metadata.AffiliationCode)
		if err != nil {
			return nil, domain.ErrInternal("failed to resolve affiliation code", err)
		}
		if affiliate != nil && affiliate.ID != p.UserID {
			sub.AffiliationCode = affiliate.AffiliationCode
			sub.AffiliatedUserID = &affiliate.ID
		}
	}
	if sub.AffiliatedUserID != nil {
		sub.SaleValue = p.Amount.Value
	}

	if isNew {
		err = s.subs.Create(ctx, sub)
	} else {
		err = s.subs.Update(ctx, sub)
	}
	if err != nil {
		return nil, domain.ErrInternal("failed to save subscription", err)
	}
	return sub, nil
}

func (s *SubscriptionService) sendReceipt(ctx context.Context, p *domain.Payment, sub *domain.Subscription) {
	user, err := s.users.FindByID(ctx, p.UserID)
	if err != nil || user == nil {
		return
	}
	msg := mail.PaymentReceipt(user.Email, sub.PlanName, p.Amount.Value, p.Amount.Currency)
	if err := s.mailer.Send(ctx, msg); err != nil {
		logger.WithUser(user.ID.Hex()).WithError(err).Warn("payment receipt not sent")
	}
}

// AdminList returns subscriptions, optionally filtered by status.
func (s *SubscriptionService) AdminList(ctx context.Context, status string) ([]*domain.Subscription, error) {
	subs, err := s.subs.List(ctx, status)
	if err != nil {
		return nil, domain.ErrInternal("failed to list subscriptions", err)
	}
	return subs, nil
}

func (s *SubscriptionService) UpdateStatus(ctx context.Context, subID string, req *domain.SubscriptionStatusRequest) (*domain.Subscription, error) {
	if err := validate(s.validate, req); err != nil {
		return nil, err
	}
	id, err := parseID(subID, "subscription")
	if err != nil {
		return nil, err
	}
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find subscription", err)
	}
	if sub == nil {
		return nil, domain.ErrNotFound("subscription not found")
	}
	sub.Status = req.Status
	sub.UpdatedAt = s.now()
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, domain.ErrInternal("failed to update subscription", err)
	}
	return sub, nil
}

// ExpireEnded marks active subscriptions past their end date as expired.
func (s *SubscriptionService) ExpireEnded(ctx context.Context) (int64, error) {
	n, err := s.subs.ExpireEnded(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.SubscriptionsExpired.Add(float64(n))
	}
	return n, nil
}
