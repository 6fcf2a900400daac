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

// PaymentRepository handles database operations for payments. Writes after
// creation are field-level $set updates so a status refresh can never undo
// a concurrent processing claim.
type PaymentRepository struct {
	col *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) *PaymentRepository {
	return &PaymentRepository{col: db.Collection(colPayments)}
}

// Create inserts a payment. A second payment for the same provider
// transaction yields domain.ErrDuplicate.
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.col.InsertOne(ctx, p)
	return wrapWrite("create payment", err)
}

func (r *PaymentRepository) findOne(ctx context.Context, filter bson.M) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.col.FindOne(ctx, filter).Decode(&p); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return &p, nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Payment, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByExternalID looks a payment up by the provider's own identifier.
func (r *PaymentRepository) FindByExternalID(ctx context.Context, provider, externalID string) (*domain.Payment, error) {
	return r.findOne(ctx, bson.M{"provider": provider, "externalPaymentId": externalID})
}

// AttachExternal records the provider id and amount once the provider has
// created its side of a pending payment.
func (r *PaymentRepository) AttachExternal(ctx context.Context, id primitive.ObjectID, provider, externalID string, amount domain.Amount, raw map[string]any) error {
	set := bson.M{
		"provider":          provider,
		"externalPaymentId": externalID,
		"amount":            amount,
		"updatedAt":         time.Now(),
	}
	if field := dataField(provider); field != "" && raw != nil {
		set[field] = raw
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return wrapWrite("attach external payment id", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to attach external id to payment %s: not found", id.Hex())
	}
	return nil
}

// UpdateStatus sets the normalized status and the provider snapshot when the
// stored status may move to status. It reports false when the payment is
// missing or already past that point.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, provider, status string, raw map[string]any) (bool, error) {
	set := bson.M{"status": status, "updatedAt": time.Now()}
	if field := dataField(provider); field != "" && raw != nil {
		set[field] = raw
	}
	filter := bson.M{"_id": id, "status": bson.M{"$in": domain.PaymentStatusSources(status)}}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// ClaimProcessing atomically flips isProcessed from false to true. Exactly
// one caller gets true for a given payment.
func (r *PaymentRepository) ClaimProcessing(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "isProcessed": false},
		bson.M{"$set": bson.M{"isProcessed": true, "processedAt": now, "updatedAt": now}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim payment: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// ReleaseProcessing undoes a claim whose side effect could not be applied.
func (r *PaymentRepository) ReleaseProcessing(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"isProcessed": false, "updatedAt": time.Now()}, "$unset": bson.M{"processedAt": ""}},
	)
	if err != nil {
		return fmt.Errorf("failed to release payment claim: %w", err)
	}
	return nil
}

// ListByUser returns a user's payments, newest first.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*domain.Payment, error) {
	return r.list(ctx, bson.M{"userId": userID}, 0)
}

// List returns payments filtered by status and provider when set.
func (r *PaymentRepository) List(ctx context.Context, status, provider string, limit int64) ([]*domain.Payment, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	if provider != "" {
		filter["provider"] = provider
	}
	return r.list(ctx, filter, limit)
}

func (r *PaymentRepository) list(ctx context.Context, filter bson.M, limit int64) ([]*domain.Payment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	payments := []*domain.Payment{}
	if err := cur.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("failed to decode payments: %w", err)
	}
	return payments, nil
}

// CompletedTotals returns the number and summed value of completed payments.
func (r *PaymentRepository) CompletedTotals(ctx context.Context) (int64, float64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": domain.PaymentCompleted}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"count": bson.M{"$sum": 1},
			"total": bson.M{"$sum": "$amount.value"},
		}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to aggregate payments: %w", err)
	}
	var rows []struct {
		Count int64   `bson:"count"`
		Total float64 `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, 0, fmt.Errorf("failed to decode payment totals: %w", err)
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return rows[0].Count, rows[0].Total, nil
}

func dataField(provider string) string {
	switch provider {
	case domain.ProviderStripe:
		return "stripeData"
	case domain.ProviderMollie:
		return "mollieData"
	case domain.ProviderPaypal:
		return "paypalData"
	default:
		return ""
	}
}
