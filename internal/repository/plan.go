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

// PlanRepository handles database operations for plans.
type PlanRepository struct {
	col *mongo.Collection
}

func NewPlanRepository(db *mongo.Database) *PlanRepository {
	return &PlanRepository{col: db.Collection(colPlans)}
}

// List returns plans sorted by display order.
func (r *PlanRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	filter := bson.M{}
	if activeOnly {
		filter["isActive"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "createdAt", Value: 1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	plans := []*domain.Plan{}
	if err := cur.All(ctx, &plans); err != nil {
		return nil, fmt.Errorf("failed to decode plans: %w", err)
	}
	return plans, nil
}

func (r *PlanRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Plan, error) {
	var p domain.Plan
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	return &p, nil
}

// SlugExists reports whether another plan than exclude already uses slug.
func (r *PlanRepository) SlugExists(ctx context.Context, slug string, exclude primitive.ObjectID) (bool, error) {
	filter := bson.M{"slug": slug}
	if !exclude.IsZero() {
		filter["_id"] = bson.M{"$ne": exclude}
	}
	n, err := r.col.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return n > 0, nil
}

func (r *PlanRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count plans: %w", err)
	}
	return n, nil
}

// Create inserts a plan. A highlighted plan takes the highlight from every
// other plan.
func (r *PlanRepository) Create(ctx context.Context, p *domain.Plan) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now

	if err := r.beforeSave(ctx, p); err != nil {
		return err
	}
	_, err := r.col.InsertOne(ctx, p)
	return wrapWrite("create plan", err)
}

// Update replaces a plan, applying the same highlight rule as Create.
func (r *PlanRepository) Update(ctx context.Context, p *domain.Plan) error {
	p.UpdatedAt = time.Now()
	if err := r.beforeSave(ctx, p); err != nil {
		return err
	}
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return wrapWrite("update plan", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to update plan %s: not found", p.ID.Hex())
	}
	return nil
}

// Delete removes a plan. Subscriptions keep their own copy of its fields.
func (r *PlanRepository) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete plan: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (r *PlanRepository) beforeSave(ctx context.Context, p *domain.Plan) error {
	if !p.Highlight {
		return nil
	}
	_, err := r.col.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$ne": p.ID}, "highlight": true},
		bson.M{"$set": bson.M{"highlight": false, "updatedAt": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to clear plan highlight: %w", err)
	}
	return nil
}
