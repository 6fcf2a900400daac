// Package testutils provides in-memory stores and fakes for service and
// handler tests.
package testutils

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tarifly/backend/internal/domain"
)

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func ensureID(id *primitive.ObjectID) {
	if id.IsZero() {
		*id = primitive.NewObjectID()
	}
}

// UserStore is an in-memory user store.
type UserStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: map[primitive.ObjectID]*domain.User{}}
}

func (s *UserStore) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if other.Email == u.Email {
			return domain.ErrDuplicate
		}
	}
	ensureID(&u.ID)
	s.users[u.ID] = clone(u)
	return nil
}

func (s *UserStore) findBy(match func(*domain.User) bool) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			return clone(u)
		}
	}
	return nil
}

func (s *UserStore) FindByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	return s.findBy(func(u *domain.User) bool { return u.ID == id }), nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return s.findBy(func(u *domain.User) bool { return u.Email == email }), nil
}

func (s *UserStore) FindByAffiliationCode(_ context.Context, code string) (*domain.User, error) {
	return s.findBy(func(u *domain.User) bool { return code != "" && u.AffiliationCode == code }), nil
}

func (s *UserStore) FindByResetToken(_ context.Context, hash string, now time.Time) (*domain.User, error) {
	return s.findBy(func(u *domain.User) bool {
		return hash != "" && u.ResetPasswordTokenHash == hash && u.ResetPasswordExpires != nil && u.ResetPasswordExpires.After(now)
	}), nil
}

func (s *UserStore) FindByVerificationToken(_ context.Context, hash string, now time.Time) (*domain.User, error) {
	return s.findBy(func(u *domain.User) bool {
		return hash != "" && u.VerificationTokenHash == hash && u.VerificationExpires != nil && u.VerificationExpires.After(now)
	}), nil
}

func (s *UserStore) Update(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.users {
		if id != u.ID && u.AffiliationCode != "" && other.AffiliationCode == u.AffiliationCode {
			return domain.ErrDuplicate
		}
	}
	s.users[u.ID] = clone(u)
	return nil
}

func (s *UserStore) List(_ context.Context) ([]*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, clone(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *UserStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

// PlanStore is an in-memory plan store with the single-highlight rule.
type PlanStore struct {
	mu    sync.Mutex
	plans map[primitive.ObjectID]*domain.Plan
}

func NewPlanStore() *PlanStore {
	return &PlanStore{plans: map[primitive.ObjectID]*domain.Plan{}}
}

func (s *PlanStore) List(_ context.Context, activeOnly bool) ([]*domain.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Plan{}
	for _, p := range s.plans {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *PlanStore) FindByID(_ context.Context, id primitive.ObjectID) (*domain.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.plans[id]), nil
}

func (s *PlanStore) SlugExists(_ context.Context, slug string, exclude primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.plans {
		if id != exclude && p.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *PlanStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.plans)), nil
}

func (s *PlanStore) Create(ctx context.Context, p *domain.Plan) error {
	ensureID(&p.ID)
	return s.save(p, true)
}

func (s *PlanStore) Update(_ context.Context, p *domain.Plan) error {
	return s.save(p, false)
}

func (s *PlanStore) save(p *domain.Plan, create bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.plans {
		if id != p.ID && other.Slug == p.Slug {
			return domain.ErrDuplicate
		}
	}
	if _, ok := s.plans[p.ID]; !ok && !create {
		return domain.ErrDuplicate
	}
	if p.Highlight {
		for id, other := range s.plans {
			if id != p.ID {
				other.Highlight = false
			}
		}
	}
	s.plans[p.ID] = clone(p)
	return nil
}

func (s *PlanStore) Delete(_ context.Context, id primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.plans[id]
	delete(s.plans, id)
	return ok, nil
}

// SubscriptionStore is an in-memory subscription store.
type SubscriptionStore struct {
	mu   sync.Mutex
	subs map[primitive.ObjectID]*domain.Subscription
}

func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{subs: map[primitive.ObjectID]*domain.Subscription{}}
}

func (s *SubscriptionStore) Create(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&sub.ID)
	sub.Normalize()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	s.subs[sub.ID] = clone(sub)
	return nil
}

func (s *SubscriptionStore) FindByID(_ context.Context, id primitive.ObjectID) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.subs[id]), nil
}

func (s *SubscriptionStore) latest(match func(*domain.Subscription) bool) *domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *domain.Subscription
	for _, sub := range s.subs {
		if match(sub) && (best == nil || sub.CreatedAt.After(best.CreatedAt)) {
			best = sub
		}
	}
	return clone(best)
}

func (s *SubscriptionStore) FindActiveByUser(_ context.Context, userID primitive.ObjectID) (*domain.Subscription, error) {
	return s.latest(func(sub *domain.Subscription) bool {
		return sub.UserID == userID && sub.Status == domain.SubscriptionActive
	}), nil
}

func (s *SubscriptionStore) FindLatestByUser(_ context.Context, userID primitive.ObjectID) (*domain.Subscription, error) {
	return s.latest(func(sub *domain.Subscription) bool { return sub.UserID == userID }), nil
}

func (s *SubscriptionStore) Update(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = clone(sub)
	return nil
}

func (s *SubscriptionStore) List(_ context.Context, status string) ([]*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Subscription{}
	for _, sub := range s.subs {
		if status == "" || sub.Status == status {
			out = append(out, clone(sub))
		}
	}
	return out, nil
}

func (s *SubscriptionStore) CountByStatus(ctx context.Context, status string) (int64, error) {
	list, _ := s.List(ctx, status)
	return int64(len(list)), nil
}

func (s *SubscriptionStore) ExpireEnded(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sub := range s.subs {
		if sub.Status == domain.SubscriptionActive && sub.EndDate.Before(now) {
			sub.Status = domain.SubscriptionExpired
			n++
		}
	}
	return n, nil
}

// PaymentStore is an in-memory payment store. ClaimProcessing is atomic.
type PaymentStore struct {
	mu       sync.Mutex
	payments map[primitive.ObjectID]*domain.Payment
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{payments: map[primitive.ObjectID]*domain.Payment{}}
}

func (s *PaymentStore) duplicate(id primitive.ObjectID, provider, externalID string) bool {
	if externalID == "" {
		return false
	}
	for otherID, p := range s.payments {
		if otherID != id && p.Provider == provider && p.ExternalPaymentID == externalID {
			return true
		}
	}
	return false
}

func (s *PaymentStore) Create(_ context.Context, p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&p.ID)
	if s.duplicate(p.ID, p.Provider, p.ExternalPaymentID) {
		return domain.ErrDuplicate
	}
	s.payments[p.ID] = clone(p)
	return nil
}

func (s *PaymentStore) FindByID(_ context.Context, id primitive.ObjectID) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.payments[id]), nil
}

func (s *PaymentStore) FindByExternalID(_ context.Context, provider, externalID string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.Provider == provider && p.ExternalPaymentID == externalID {
			return clone(p), nil
		}
	}
	return nil, nil
}

func (s *PaymentStore) AttachExternal(_ context.Context, id primitive.ObjectID, provider, externalID string, amount domain.Amount, raw map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return domain.ErrDuplicate
	}
	if s.duplicate(id, provider, externalID) {
		return domain.ErrDuplicate
	}
	p.Provider = provider
	p.ExternalPaymentID = externalID
	p.Amount = amount
	setRaw(p, provider, raw)
	return nil
}

func (s *PaymentStore) UpdateStatus(_ context.Context, id primitive.ObjectID, provider, status string, raw map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || !domain.CanMovePayment(p.Status, status) {
		return false, nil
	}
	p.Status = status
	setRaw(p, provider, raw)
	return true, nil
}

func setRaw(p *domain.Payment, provider string, raw map[string]any) {
	if raw == nil {
		return
	}
	switch provider {
	case domain.ProviderStripe:
		p.StripeData = raw
	case domain.ProviderMollie:
		p.MollieData = raw
	case domain.ProviderPaypal:
		p.PaypalData = raw
	}
}

func (s *PaymentStore) ClaimProcessing(_ context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.IsProcessed {
		return false, nil
	}
	p.IsProcessed = true
	p.ProcessedAt = &now
	return true, nil
}

func (s *PaymentStore) ReleaseProcessing(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.payments[id]; ok {
		p.IsProcessed = false
		p.ProcessedAt = nil
	}
	return nil
}

func (s *PaymentStore) ListByUser(_ context.Context, userID primitive.ObjectID) ([]*domain.Payment, error) {
	return s.filter(func(p *domain.Payment) bool { return p.UserID == userID }), nil
}

func (s *PaymentStore) List(_ context.Context, status, provider string, limit int64) ([]*domain.Payment, error) {
	out := s.filter(func(p *domain.Payment) bool {
		return (status == "" || p.Status == status) && (provider == "" || p.Provider == provider)
	})
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *PaymentStore) filter(match func(*domain.Payment) bool) []*domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Payment{}
	for _, p := range s.payments {
		if match(p) {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *PaymentStore) CompletedTotals(_ context.Context) (int64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		n     int64
		total float64
	)
	for _, p := range s.payments {
		if p.Status == domain.PaymentCompleted {
			n++
			total += p.Amount.Value
		}
	}
	return n, total, nil
}

// GatewayStore is an in-memory gateway store; saving an active or default
// gateway demotes the others.
type GatewayStore struct {
	mu       sync.Mutex
	gateways map[primitive.ObjectID]*domain.PaymentGateway
}

func NewGatewayStore() *GatewayStore {
	return &GatewayStore{gateways: map[primitive.ObjectID]*domain.PaymentGateway{}}
}

func (s *GatewayStore) list(match func(*domain.PaymentGateway) bool) []*domain.PaymentGateway {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.PaymentGateway{}
	for _, g := range s.gateways {
		if match(g) {
			out = append(out, clone(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

func (s *GatewayStore) List(_ context.Context) ([]*domain.PaymentGateway, error) {
	return s.list(func(*domain.PaymentGateway) bool { return true }), nil
}

func (s *GatewayStore) ListActive(_ context.Context) ([]*domain.PaymentGateway, error) {
	return s.list(func(g *domain.PaymentGateway) bool { return g.IsActive }), nil
}

func (s *GatewayStore) first(match func(*domain.PaymentGateway) bool) *domain.PaymentGateway {
	if l := s.list(match); len(l) > 0 {
		return l[0]
	}
	return nil
}

func (s *GatewayStore) FindByID(_ context.Context, id primitive.ObjectID) (*domain.PaymentGateway, error) {
	return s.first(func(g *domain.PaymentGateway) bool { return g.ID == id }), nil
}

func (s *GatewayStore) FindByProvider(_ context.Context, provider string) (*domain.PaymentGateway, error) {
	return s.first(func(g *domain.PaymentGateway) bool { return g.Provider == provider }), nil
}

func (s *GatewayStore) FindActive(_ context.Context, provider string) (*domain.PaymentGateway, error) {
	return s.first(func(g *domain.PaymentGateway) bool { return g.Provider == provider && g.IsActive }), nil
}

func (s *GatewayStore) Create(ctx context.Context, g *domain.PaymentGateway) error {
	ensureID(&g.ID)
	return s.Update(ctx, g)
}

func (s *GatewayStore) Update(_ context.Context, g *domain.PaymentGateway) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.gateways {
		if id == g.ID {
			continue
		}
		if other.Provider == g.Provider {
			return domain.ErrDuplicate
		}
		if g.IsActive {
			other.IsActive = false
		}
		if g.IsDefault {
			other.IsDefault = false
		}
	}
	s.gateways[g.ID] = clone(g)
	return nil
}

func (s *GatewayStore) Delete(_ context.Context, id primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.gateways[id]
	delete(s.gateways, id)
	return ok, nil
}

// ContactStore is an in-memory contact store.
type ContactStore struct {
	mu       sync.Mutex
	contacts map[primitive.ObjectID]*domain.Contact
}

func NewContactStore() *ContactStore {
	return &ContactStore{contacts: map[primitive.ObjectID]*domain.Contact{}}
}

func (s *ContactStore) Create(_ context.Context, c *domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&c.ID)
	s.contacts[c.ID] = clone(c)
	return nil
}

func (s *ContactStore) FindByID(_ context.Context, id primitive.ObjectID) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.contacts[id]), nil
}

func (s *ContactStore) matching(f domain.ContactFilter) []*domain.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	search := strings.ToLower(f.Search)
	out := []*domain.Contact{}
	for _, c := range s.contacts {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Name+" "+c.Email+" "+c.Subject+" "+c.Message), search) {
			continue
		}
		out = append(out, clone(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *ContactStore) List(_ context.Context, f domain.ContactFilter) ([]*domain.Contact, error) {
	all := s.matching(f)
	start := (f.Page - 1) * f.Limit
	if start < 0 || start >= len(all) {
		return []*domain.Contact{}, nil
	}
	end := start + f.Limit
	if f.Limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (s *ContactStore) Count(_ context.Context, f domain.ContactFilter) (int64, error) {
	return int64(len(s.matching(f))), nil
}

func (s *ContactStore) Update(_ context.Context, c *domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = clone(c)
	return nil
}

func (s *ContactStore) AddNote(_ context.Context, id primitive.ObjectID, note domain.ContactNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contacts[id]; ok {
		c.Notes = append(append([]domain.ContactNote{}, c.Notes...), note)
	}
	return nil
}

func (s *ContactStore) Delete(_ context.Context, id primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.contacts[id]
	delete(s.contacts, id)
	return ok, nil
}

// SmtpStore is an in-memory SMTP settings store.
type SmtpStore struct {
	mu       sync.Mutex
	settings map[primitive.ObjectID]*domain.SmtpSettings
}

func NewSmtpStore() *SmtpStore {
	return &SmtpStore{settings: map[primitive.ObjectID]*domain.SmtpSettings{}}
}

func (s *SmtpStore) List(_ context.Context) ([]*domain.SmtpSettings, error) {
	return s.all(func(*domain.SmtpSettings) bool { return true }), nil
}

func (s *SmtpStore) all(match func(*domain.SmtpSettings) bool) []*domain.SmtpSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.SmtpSettings{}
	for _, st := range s.settings {
		if match(st) {
			out = append(out, clone(st))
		}
	}
	return out
}

func (s *SmtpStore) one(match func(*domain.SmtpSettings) bool) *domain.SmtpSettings {
	if l := s.all(match); len(l) > 0 {
		return l[0]
	}
	return nil
}

func (s *SmtpStore) FindByID(_ context.Context, id primitive.ObjectID) (*domain.SmtpSettings, error) {
	return s.one(func(st *domain.SmtpSettings) bool { return st.ID == id }), nil
}

func (s *SmtpStore) FindActive(_ context.Context) (*domain.SmtpSettings, error) {
	return s.one(func(st *domain.SmtpSettings) bool { return st.IsActive }), nil
}

func (s *SmtpStore) FindDefault(_ context.Context) (*domain.SmtpSettings, error) {
	return s.one(func(st *domain.SmtpSettings) bool { return st.IsDefault }), nil
}

func (s *SmtpStore) Create(ctx context.Context, st *domain.SmtpSettings) error {
	ensureID(&st.ID)
	return s.Update(ctx, st)
}

func (s *SmtpStore) Update(_ context.Context, st *domain.SmtpSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.settings {
		if id == st.ID {
			continue
		}
		if st.IsActive {
			other.IsActive = false
		}
		if st.IsDefault {
			other.IsDefault = false
		}
	}
	s.settings[st.ID] = clone(st)
	return nil
}

func (s *SmtpStore) Delete(_ context.Context, id primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.settings[id]
	delete(s.settings, id)
	return ok, nil
}

// AttributionStore is an in-memory attribution log.
type AttributionStore struct {
	mu     sync.Mutex
	Events []domain.MarketingAttribution
}

func NewAttributionStore() *AttributionStore {
	return &AttributionStore{}
}

func (s *AttributionStore) Create(_ context.Context, a *domain.MarketingAttribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ensureID(&a.ID)
	s.Events = append(s.Events, *a)
	return nil
}

func (s *AttributionStore) Stats(_ context.Context, from, to time.Time) ([]domain.AttributionStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[[2]string]int64{}
	for _, a := range s.Events {
		if a.CreatedAt.Before(from) || !a.CreatedAt.Before(to) {
			continue
		}
		source := a.UTMSource
		if source == "" {
			source = "direct"
		}
		counts[[2]string{source, a.Step}]++
	}
	out := make([]domain.AttributionStat, 0, len(counts))
	for k, n := range counts {
		out = append(out, domain.AttributionStat{Source: k[0], Step: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Step < out[j].Step
	})
	return out, nil
}
