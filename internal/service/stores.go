package service

import (
	"context"
	"time"

	"github.com/tarifly/backend/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Storage contracts consumed by the services. The repository package
// provides the MongoDB implementations; finders return (nil, nil) when
// nothing matches.

type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByAffiliationCode(ctx context.Context, code string) (*domain.User, error)
	FindByResetToken(ctx context.Context, hash string, now time.Time) (*domain.User, error)
	FindByVerificationToken(ctx context.Context, hash string, now time.Time) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) error
	List(ctx context.Context) ([]*domain.User, error)
	Count(ctx context.Context) (int64, error)
}

type PlanStore interface {
	List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Plan, error)
	SlugExists(ctx context.Context, slug string, exclude primitive.ObjectID) (bool, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, p *domain.Plan) error
	Update(ctx context.Context, p *domain.Plan) error
	Delete(ctx context.Context, id primitive.ObjectID) (bool, error)
}

type SubscriptionStore interface {
	Create(ctx context.Context, s *domain.Subscription) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Subscription, error)
	FindActiveByUser(ctx context.Context, userID primitive.ObjectID) (*domain.Subscription, error)
	FindLatestByUser(ctx context.Context, userID primitive.ObjectID) (*domain.Subscription, error)
	Update(ctx context.Context, s *domain.Subscription) error
	List(ctx context.Context, status string) ([]*domain.Subscription, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
	ExpireEnded(ctx context.Context, now time.Time) (int64, error)
}

type PaymentStore interface {
	Create(ctx context.Context, p *domain.Payment) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Payment, error)
	FindByExternalID(ctx context.Context, provider, externalID string) (*domain.Payment, error)
	AttachExternal(ctx context.Context, id primitive.ObjectID, provider, externalID string, amount domain.Amount, raw map[string]any) error
	UpdateStatus(ctx context.Context, id primitive.ObjectID, provider, status string, raw map[string]any) (bool, error)
	ClaimProcessing(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error)
	ReleaseProcessing(ctx context.Context, id primitive.ObjectID) error
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*domain.Payment, error)
	List(ctx context.Context, status, provider string, limit int64) ([]*domain.Payment, error)
	CompletedTotals(ctx context.Context) (int64, float64, error)
}

type GatewayStore interface {
	List(ctx context.Context) ([]*domain.PaymentGateway, error)
	ListActive(ctx context.Context) ([]*domain.PaymentGateway, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.PaymentGateway, error)
	FindByProvider(ctx context.Context, provider string) (*domain.PaymentGateway, error)
	FindActive(ctx context.Context, provider string) (*domain.PaymentGateway, error)
	Create(ctx context.Context, g *domain.PaymentGateway) error
	Update(ctx context.Context, g *domain.PaymentGateway) error
	Delete(ctx context.Context, id primitive.ObjectID) (bool, error)
}

type ContactStore interface {
	Create(ctx context.Context, c *domain.Contact) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Contact, error)
	List(ctx context.Context, f domain.ContactFilter) ([]*domain.Contact, error)
	Count(ctx context.Context, f domain.ContactFilter) (int64, error)
	Update(ctx context.Context, c *domain.Contact) error
	AddNote(ctx context.Context, id primitive.ObjectID, note domain.ContactNote) error
	Delete(ctx context.Context, id primitive.ObjectID) (bool, error)
}

type SmtpStore interface {
	List(ctx context.Context) ([]*domain.SmtpSettings, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.SmtpSettings, error)
	FindActive(ctx context.Context) (*domain.SmtpSettings, error)
	FindDefault(ctx context.Context) (*domain.SmtpSettings, error)
	Create(ctx context.Context, s *domain.SmtpSettings) error
	Update(ctx context.Context, s *domain.SmtpSettings) error
	Delete(ctx context.Context, id primitive.ObjectID) (bool, error)
}

type AttributionStore interface {
	Create(ctx context.Context, a *domain.MarketingAttribution) error
	Stats(ctx context.Context, from, to time.Time) ([]domain.AttributionStat, error)
}

// SessionStore holds payment sessions keyed by user. Get returns nil for
// missing or expired sessions.
type SessionStore interface {
	Save(ctx context.Context, s *domain.PaymentSession) error
	Get(ctx context.Context, userID string) (*domain.PaymentSession, error)
	Delete(ctx context.Context, userID string) error
}

// SecretBox seals credentials stored in the database.
type SecretBox interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}
