package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tarifly/backend/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	colUsers         = "users"
	colPlans         = "plans"
	colSubscriptions = "subscriptions"
	colPayments      = "payments"
	colGateways      = "payment_gateways"
	colContacts      = "contacts"
	colAttributions  = "marketing_attributions"
	colSmtp          = "smtp_settings"
)

// NewDB connects to MongoDB and returns the client and application database.
func NewDB(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetMinPoolSize(2).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return client, client.Database(database), nil
}

// EnsureIndexes creates the unique and lookup indexes every collection relies on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "affiliationCode", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "resetPasswordTokenHash", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "verificationTokenHash", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		colPlans: {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "order", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "endDate", Value: 1}}},
		},
		colPayments: {
			{
				Keys: bson.D{{Key: "provider", Value: 1}, {Key: "externalPaymentId", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
					"externalPaymentId": bson.M{"$type": "string"},
				}),
			},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		colGateways: {
			{Keys: bson.D{{Key: "provider", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colContacts: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		colAttributions: {
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "sessionId", Value: 1}}},
		},
	}

	for col, models := range specs {
		if _, err := db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", col, err)
		}
	}
	return nil
}

// notFound reports whether err means "no document matched".
func notFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// wrapWrite maps unique index violations onto domain.ErrDuplicate.
func wrapWrite(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to %s: %w", op, domain.ErrDuplicate)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
