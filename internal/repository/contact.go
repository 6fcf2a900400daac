package repository

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/tarifly/backend/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ContactRepository handles database operations for contact messages.
type ContactRepository struct {
	col *mongo.Collection
}

func NewContactRepository(db *mongo.Database) *ContactRepository {
	return &ContactRepository{col: db.Collection(colContacts)}
}

func (r *ContactRepository) Create(ctx context.Context, c *domain.Contact) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := r.col.InsertOne(ctx, c)
	return wrapWrite("create contact", err)
}

func (r *ContactRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Contact, error) {
	var c domain.Contact
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}
	return &c, nil
}

func contactFilter(f domain.ContactFilter) bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"email": re},
			bson.M{"subject": re},
			bson.M{"company": re},
		}
	}
	return filter
}

// List returns one page of contacts, newest first.
func (r *ContactRepository) List(ctx context.Context, f domain.ContactFilter) ([]*domain.Contact, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((f.Page - 1) * f.Limit)).
		SetLimit(int64(f.Limit))

	cur, err := r.col.Find(ctx, contactFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	contacts := []*domain.Contact{}
	if err := cur.All(ctx, &contacts); err != nil {
		return nil, fmt.Errorf("failed to decode contacts: %w", err)
	}
	return contacts, nil
}

// Count returns how many contacts match f, ignoring pagination.
func (r *ContactRepository) Count(ctx context.Context, f domain.ContactFilter) (int64, error) {
	n, err := r.col.CountDocuments(ctx, contactFilter(f))
	if err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}
	return n, nil
}

func (r *ContactRepository) Update(ctx context.Context, c *domain.Contact) error {
	c.UpdatedAt = time.Now()
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": c.ID}, c)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to update contact %s: not found", c.ID.Hex())
	}
	return nil
}

// AddNote appends a note without rewriting the rest of the document.
func (r *ContactRepository) AddNote(ctx context.Context, id primitive.ObjectID, note domain.ContactNote) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"notes": note},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to add contact note: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to add note to contact %s: not found", id.Hex())
	}
	return nil
}

func (r *ContactRepository) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete contact: %w", err)
	}
	return res.DeletedCount > 0, nil
}
