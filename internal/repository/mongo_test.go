package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarifly/backend/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestPaymentRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("duplicate provider transaction", func(mt *mtest.T) {
		repo := NewPaymentRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "E11000 duplicate key error collection: payments",
		}))

		err := repo.Create(context.Background(), &domain.Payment{
			Provider: domain.ProviderStripe, ExternalPaymentID: "pi_1", Status: domain.PaymentPending,
		})
		assert.ErrorIs(t, err, domain.ErrDuplicate)
	})

	mt.Run("claim wins once", func(mt *mtest.T) {
		repo := NewPaymentRepository(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)

		first, err := repo.ClaimProcessing(context.Background(), id, time.Now())
		require.NoError(t, err)
		assert.True(t, first)

		second, err := repo.ClaimProcessing(context.Background(), id, time.Now())
		require.NoError(t, err)
		assert.False(t, second)

		started := mt.GetStartedEvent()
		require.NotNil(t, started)
		assert.Equal(t, "update", started.CommandName)
		q := started.Command.Lookup("updates").Array().Index(0).Value().Document().Lookup("q").Document()
		assert.False(t, q.Lookup("isProcessed").Boolean(), "claim must be conditional on isProcessed=false")
	})

	mt.Run("status update is conditional on the stored status", func(mt *mtest.T) {
		repo := NewPaymentRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		moved, err := repo.UpdateStatus(context.Background(), primitive.NewObjectID(), domain.ProviderStripe, domain.PaymentPending, nil)
		require.NoError(t, err)
		assert.False(t, moved)

		started := mt.GetStartedEvent()
		require.NotNil(t, started)
		q := started.Command.Lookup("updates").Array().Index(0).Value().Document().Lookup("q").Document()
		sources := q.Lookup("status", "$in").Array()
		values, err := sources.Values()
		require.NoError(t, err)
		require.Len(t, values, 1)
		assert.Equal(t, domain.PaymentPending, values[0].StringValue())
	})

	mt.Run("missing payment is nil", func(mt *mtest.T) {
		repo := NewPaymentRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.payments", mtest.FirstBatch))

		p, err := repo.FindByExternalID(context.Background(), domain.ProviderMollie, "tr_none")
		require.NoError(t, err)
		assert.Nil(t, p)
	})
}

func TestPlanRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("highlight clears others before insert", func(mt *mtest.T) {
		repo := NewPlanRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(),
		)

		p := &domain.Plan{Name: "Pro", Slug: "pro", Highlight: true}
		require.NoError(t, repo.Create(context.Background(), p))
		assert.False(t, p.ID.IsZero())

		events := mt.GetAllStartedEvents()
		require.Len(t, events, 2)
		assert.Equal(t, "update", events[0].CommandName)
		assert.Equal(t, "insert", events[1].CommandName)

		upd := events[0].Command.Lookup("updates").Array().Index(0).Value().Document()
		assert.True(t, upd.Lookup("multi").Boolean())
		set := upd.Lookup("u").Document().Lookup("$set").Document()
		assert.False(t, set.Lookup("highlight").Boolean())
	})

	mt.Run("plain plan does not touch others", func(mt *mtest.T) {
		repo := NewPlanRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(t, repo.Create(context.Background(), &domain.Plan{Name: "Essentiel", Slug: "essentiel"}))
		events := mt.GetAllStartedEvents()
		require.Len(t, events, 1)
		assert.Equal(t, "insert", events[0].CommandName)
	})

	mt.Run("slug exists", func(mt *mtest.T) {
		repo := NewPlanRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.plans", mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}))

		taken, err := repo.SlugExists(context.Background(), "pro", primitive.NilObjectID)
		require.NoError(t, err)
		assert.True(t, taken)
	})
}

func TestGatewayRepositoryDemotesOnActivate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("active and default", func(mt *mtest.T) {
		repo := NewGatewayRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		g := &domain.PaymentGateway{ID: primitive.NewObjectID(), Provider: domain.ProviderMollie, IsActive: true, IsDefault: true}
		require.NoError(t, repo.Update(context.Background(), g))

		events := mt.GetAllStartedEvents()
		require.Len(t, events, 2)
		assert.Equal(t, "update", events[0].CommandName)
		set := events[0].Command.Lookup("updates").Array().Index(0).Value().Document().
			Lookup("u").Document().Lookup("$set").Document()
		assert.False(t, set.Lookup("isActive").Boolean())
		assert.False(t, set.Lookup("isDefault").Boolean())
	})
}
