package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/tarifly/backend/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SubscriptionRepository handles database operations for subscriptions.
type SubscriptionRepository struct {
	col *mongo.Collection
}

func NewSubscriptionRepository(db *mongo.Database) *SubscriptionRepository {
	return &SubscriptionRepository{col: db.Collection(colSubscriptions)}
}

// Create inserts a subscription, deriving EndDate from the plan period when unset.
func (r *SubscriptionRepository) Create(ctx context.Context, s *domain.Subscription) error {
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	s.Normalize()

	_, err := r.col.InsertOne(ctx, s)
	return wrapWrite("create subscription", err)
}

func (r *SubscriptionRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*domain.Subscription, error) {
	var s domain.Subscription
	if err := r.col.FindOne(ctx, filter, opts...).Decode(&s); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return &s, nil
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Subscription, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindActiveByUser returns the user's active subscription ending last.
func (r *SubscriptionRepository) FindActiveByUser(ctx context.Context, userID primitive.ObjectID) (*domain.Subscription, error) {
	return r.findOne(ctx,
		bson.M{"userId": userID, "status": domain.SubscriptionActive},
		options.FindOne().SetSort(bson.D{{Key: "endDate", Value: -1}}),
	)
}

// FindLatestByUser returns the user's most recently created subscription.
func (r *SubscriptionRepository) FindLatestByUser(ctx context.Context, userID primitive.ObjectID) (*domain.Subscription, error) {
	return r.findOne(ctx,
		bson.M{"userId": userID},
		options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
}

// Update replaces the stored subscription.
func (r *SubscriptionRepository) Update(ctx context.Context, s *domain.Subscription) error {
	s.UpdatedAt = time.Now()
	s.Normalize()
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": s.ID}, s)
	if err != nil {
		return wrapWrite("update subscription", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to update subscription %s: not found", s.ID.Hex())
	}
	return nil
}

// List returns subscriptions, optionally filtered by status, newest first.
func (r *SubscriptionRepository) List(ctx context.Context, status string) ([]*domain.Subscription, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	subs := []*domain.Subscription{}
	if err := cur.All(ctx, &subs); err != nil {
		return nil, fmt.Errorf("failed to decode subscriptions: %w", err)
	}
	return subs, nil
}

func (r *SubscriptionRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"status": status})
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}

// ExpireEnded flips active subscriptions whose endDate has passed to expired.
func (r *SubscriptionRepository) ExpireEnded(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"status": domain.SubscriptionActive, "endDate": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"status": domain.SubscriptionExpired, "updatedAt": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	return res.ModifiedCount, nil
}
