package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tarifly/backend/internal/domain"
	"github.com/tarifly/backend/internal/logger"
	"github.com/tarifly/backend/internal/metrics"
)

const DefaultSessionTTL = time.Hour

// SessionService bridges choosing a plan change and paying for it.
type SessionService struct {
	store    SessionStore
	subs     *SubscriptionService
	payments PaymentStore
	ttl      time.Duration
	validate *validator.Validate
	now      func() time.Time
}

// NewSessionService creates a new SessionService. A zero ttl means one hour.
func NewSessionService(store SessionStore, subs *SubscriptionService, payments PaymentStore, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionService{
		store:    store,
		subs:     subs,
		payments: payments,
		ttl:      ttl,
		validate: newValidator(),
		now:      time.Now,
	}
}

// Prepare prices the change and stores it as the caller's payment session,
// replacing any previous one. With a provider it also opens a pending
// payment record.
func (s *SessionService) Prepare(ctx context.Context, userID primitive.ObjectID, req *domain.ChangeRequest) (*domain.PaymentSession, error) {
	change, err := s.subs.QuoteChange(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := sessionFor(userID, change, now, s.ttl)

	if req.Provider != "" {
		p := pendingPayment(userID, req.Provider, sess, now)
		if err := s.payments.Create(ctx, p); err != nil {
			return nil, domain.ErrInternal("failed to create payment", err)
		}
		sess.Provider = req.Provider
		sess.PaymentID = p.ID.Hex()
	}

	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	logger.WithUser(userID.Hex()).Infof("payment session prepared: %s to %s for %.2f %s",
		sess.Type, sess.PlanName, sess.Amount, sess.Currency)
	return sess, nil
}

// Get returns the caller's session, or nil when there is none or it expired.
func (s *SessionService) Get(ctx context.Context, userID string) (*domain.PaymentSession, error) {
	sess, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to read payment session", err)
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Expired(s.now()) {
		_ = s.store.Delete(ctx, userID)
		return nil, nil
	}
	return sess, nil
}

func (s *SessionService) Save(ctx context.Context, sess *domain.PaymentSession) error {
	if err := s.store.Save(ctx, sess); err != nil {
		return domain.ErrInternal("failed to store payment session", err)
	}
	return nil
}

func (s *SessionService) Delete(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		return domain.ErrInternal("failed to delete payment session", err)
	}
	return nil
}

// sessionFor turns a priced change into a session expiring ttl after now.
func sessionFor(userID primitive.ObjectID, change *PlannedChange, now time.Time, ttl time.Duration) *domain.PaymentSession {
	sess := &domain.PaymentSession{
		UserID:        userID.Hex(),
		Type:          change.Quote.Type,
		PlanID:        change.Plan.ID.Hex(),
		PlanName:      change.Plan.Name,
		PlanPrice:     change.Plan.Price,
		PlanPeriod:    change.Plan.Period,
		Amount:        change.Quote.Amount,
		Currency:      change.Quote.Currency,
		DaysRemaining: change.Quote.DaysRemaining,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	if sub := change.Subscription; sub != nil {
		sess.SubscriptionID = sub.ID.Hex()
		sess.AffiliationCode = sub.AffiliationCode
	}
	return sess
}

// sweepable is implemented by session stores that do not expire entries on
// their own.
type sweepable interface {
	Sweep(now time.Time) int
}

// Sweeper periodically drops expired payment sessions and expires ended
// subscriptions.
type Sweeper struct {
	sessions SessionStore
	subs     *SubscriptionService
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a sweeper running every interval.
func NewSweeper(sessions SessionStore, subs *SubscriptionService, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Sweeper{sessions: sessions, subs: subs, interval: interval, now: time.Now}
}

// Start runs the sweep loop in a background goroutine until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	log := logger.WithComponent("sweeper")

	if store, ok := s.sessions.(sweepable); ok {
		if n := store.Sweep(s.now()); n > 0 {
			metrics.SessionsSwept.Add(float64(n))
			log.Infof("removed %d expired payment sessions", n)
		}
	}

	n, err := s.subs.ExpireEnded(ctx)
	if err != nil {
		log.WithError(err).Error("failed to expire ended subscriptions")
		return
	}
	if n > 0 {
		log.Infof("expired %d subscriptions", n)
	}
}
