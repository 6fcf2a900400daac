package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/tarifly/backend/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// AttributionRepository appends marketing attribution events. Events are
// never updated.
type AttributionRepository struct {
	col *mongo.Collection
}

func NewAttributionRepository(db *mongo.Database) *AttributionRepository {
	return &AttributionRepository{col: db.Collection(colAttributions)}
}

func (r *AttributionRepository) Create(ctx context.Context, a *domain.MarketingAttribution) error {
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := r.col.InsertOne(ctx, a)
	return wrapWrite("create attribution", err)
}

// Stats counts events per (utmSource, step) within [from, to). Events
// without a source are grouped under "direct".
func (r *AttributionRepository) Stats(ctx context.Context, from, to time.Time) ([]domain.AttributionStat, error) {
	match := bson.M{}
	created := bson.M{}
	if !from.IsZero() {
		created["$gte"] = from
	}
	if !to.IsZero() {
		created["$lt"] = to
	}
	if len(created) > 0 {
		match["createdAt"] = created
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"source": bson.M{"$ifNull": bson.A{"$utmSource", "direct"}},
				"step":   "$step",
			},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":    0,
			"source": "$_id.source",
			"step":   "$_id.step",
			"count":  1,
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "source", Value: 1}, {Key: "step", Value: 1}}}},
	}

	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate attributions: %w", err)
	}
	stats := []domain.AttributionStat{}
	if err := cur.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode attribution stats: %w", err)
	}
	return stats, nil
}
