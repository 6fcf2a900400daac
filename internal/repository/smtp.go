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

// SmtpRepository stores outbound mail transports, with the same
// single-active and single-default rule as payment gateways.
type SmtpRepository struct {
	col *mongo.Collection
}

func NewSmtpRepository(db *mongo.Database) *SmtpRepository {
	return &SmtpRepository{col: db.Collection(colSmtp)}
}

func (r *SmtpRepository) List(ctx context.Context) ([]*domain.SmtpSettings, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list smtp settings: %w", err)
	}
	out := []*domain.SmtpSettings{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode smtp settings: %w", err)
	}
	return out, nil
}

func (r *SmtpRepository) findOne(ctx context.Context, filter bson.M) (*domain.SmtpSettings, error) {
	var s domain.SmtpSettings
	if err := r.col.FindOne(ctx, filter).Decode(&s); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find smtp settings: %w", err)
	}
	return &s, nil
}

func (r *SmtpRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.SmtpSettings, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *SmtpRepository) FindActive(ctx context.Context) (*domain.SmtpSettings, error) {
	return r.findOne(ctx, bson.M{"isActive": true})
}

func (r *SmtpRepository) FindDefault(ctx context.Context) (*domain.SmtpSettings, error) {
	return r.findOne(ctx, bson.M{"isDefault": true})
}

func (r *SmtpRepository) Create(ctx context.Context, s *domain.SmtpSettings) error {
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now

	if err := demoteOthers(ctx, r.col, s.ID, s.IsActive, s.IsDefault); err != nil {
		return err
	}
	_, err := r.col.InsertOne(ctx, s)
	return wrapWrite("create smtp settings", err)
}

func (r *SmtpRepository) Update(ctx context.Context, s *domain.SmtpSettings) error {
	s.UpdatedAt = time.Now()
	if err := demoteOthers(ctx, r.col, s.ID, s.IsActive, s.IsDefault); err != nil {
		return err
	}
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": s.ID}, s)
	if err != nil {
		return wrapWrite("update smtp settings", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to update smtp settings %s: not found", s.ID.Hex())
	}
	return nil
}

func (r *SmtpRepository) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete smtp settings: %w", err)
	}
	return res.DeletedCount > 0, nil
}
