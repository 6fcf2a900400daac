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

// GatewayRepository stores payment gateway configurations. Saving a gateway
// as active or default demotes every other gateway, so both flags are held
// by at most one document whichever path wrote them.
type GatewayRepository struct {
	col *mongo.Collection
}

func NewGatewayRepository(db *mongo.Database) *GatewayRepository {
	return &GatewayRepository{col: db.Collection(colGateways)}
}

func (r *GatewayRepository) List(ctx context.Context) ([]*domain.PaymentGateway, error) {
	return r.find(ctx, bson.M{})
}

// ListActive returns the gateways visitors may pay with.
func (r *GatewayRepository) ListActive(ctx context.Context) ([]*domain.PaymentGateway, error) {
	return r.find(ctx, bson.M{"isActive": true})
}

func (r *GatewayRepository) find(ctx context.Context, filter bson.M) ([]*domain.PaymentGateway, error) {
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list gateways: %w", err)
	}
	gateways := []*domain.PaymentGateway{}
	if err := cur.All(ctx, &gateways); err != nil {
		return nil, fmt.Errorf("failed to decode gateways: %w", err)
	}
	return gateways, nil
}

func (r *GatewayRepository) findOne(ctx context.Context, filter bson.M) (*domain.PaymentGateway, error) {
	var g domain.PaymentGateway
	if err := r.col.FindOne(ctx, filter).Decode(&g); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find gateway: %w", err)
	}
	return &g, nil
}

func (r *GatewayRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.PaymentGateway, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *GatewayRepository) FindByProvider(ctx context.Context, provider string) (*domain.PaymentGateway, error) {
	return r.findOne(ctx, bson.M{"provider": provider})
}

// FindActive returns the provider's gateway if it is the active one.
func (r *GatewayRepository) FindActive(ctx context.Context, provider string) (*domain.PaymentGateway, error) {
	return r.findOne(ctx, bson.M{"provider": provider, "isActive": true})
}

// Create inserts a gateway. One gateway per provider; a second yields
// domain.ErrDuplicate.
func (r *GatewayRepository) Create(ctx context.Context, g *domain.PaymentGateway) error {
	if g.ID.IsZero() {
		g.ID = primitive.NewObjectID()
	}
	now := time.Now()
	g.CreatedAt, g.UpdatedAt = now, now

	if err := r.beforeSave(ctx, g); err != nil {
		return err
	}
	_, err := r.col.InsertOne(ctx, g)
	return wrapWrite("create gateway", err)
}

func (r *GatewayRepository) Update(ctx context.Context, g *domain.PaymentGateway) error {
	g.UpdatedAt = time.Now()
	if err := r.beforeSave(ctx, g); err != nil {
		return err
	}
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": g.ID}, g)
	if err != nil {
		return wrapWrite("update gateway", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to update gateway %s: not found", g.ID.Hex())
	}
	return nil
}

func (r *GatewayRepository) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete gateway: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (r *GatewayRepository) beforeSave(ctx context.Context, g *domain.PaymentGateway) error {
	return demoteOthers(ctx, r.col, g.ID, g.IsActive, g.IsDefault)
}

// demoteOthers clears isActive and/or isDefault on every document but id.
func demoteOthers(ctx context.Context, col *mongo.Collection, id primitive.ObjectID, active, isDefault bool) error {
	set := bson.M{}
	if active {
		set["isActive"] = false
	}
	if isDefault {
		set["isDefault"] = false
	}
	if len(set) == 0 {
		return nil
	}
	set["updatedAt"] = time.Now()

	or := bson.A{}
	if active {
		or = append(or, bson.M{"isActive": true})
	}
	if isDefault {
		or = append(or, bson.M{"isDefault": true})
	}
	_, err := col.UpdateMany(ctx, bson.M{"_id": bson.M{"$ne": id}, "$or": or}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to demote %s: %w", col.Name(), err)
	}
	return nil
}
