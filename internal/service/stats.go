package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tarifly/backend/internal/domain"
)

// AdminService builds the back-office dashboard.
type AdminService struct {
	users    UserStore
	subs     SubscriptionStore
	payments PaymentStore
	contacts ContactStore
}

func NewAdminService(users UserStore, subs SubscriptionStore, payments PaymentStore, contacts ContactStore) *AdminService {
	return &AdminService{users: users, subs: subs, payments: payments, contacts: contacts}
}

// Stats gathers the dashboard counters concurrently.
func (s *AdminService) Stats(ctx context.Context) (*domain.AdminStats, error) {
	var stats domain.AdminStats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		stats.Users, err = s.users.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveSubscriptions, err = s.subs.CountByStatus(gctx, domain.SubscriptionActive)
		return err
	})
	g.Go(func() (err error) {
		stats.CompletedPayments, stats.Revenue, err = s.payments.CompletedTotals(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.NewContacts, err = s.contacts.Count(gctx, domain.ContactFilter{Status: domain.ContactNew})
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, domain.ErrInternal("failed to compute stats", err)
	}
	return &stats, nil
}
