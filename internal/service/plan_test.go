package service

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarifly/backend/internal/domain"
)

func TestListPublic_SeedsDefaultsOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	plans, err := e.planSvc.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, []string{"essentiel", "business", "pro"}, []string{plans[0].Slug, plans[1].Slug, plans[2].Slug})

	plans, err = e.planSvc.ListPublic(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 3)
}

func TestListPublic_ConcurrentFirstRequestsSeedOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.planSvc.ListPublic(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	plans, err := e.planSvc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	highlighted := 0
	for _, p := range plans {
		assert.NotContains(t, p.Slug, "-", "slug %s", p.Slug)
		if p.Highlight {
			highlighted++
		}
	}
	assert.Equal(t, 1, highlighted)
}

func TestListPublic_HidesInactivePlans(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	inactive := false
	_, err := e.planSvc.Create(ctx, &domain.PlanRequest{Name: "Ancienne offre", Price: "9€", Period: "mois", IsActive: &inactive})
	require.NoError(t, err)

	plans, err := e.planSvc.ListPublic(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans, "catalog is not seeded once any plan exists")
}

func TestCreatePlan_SlugCollisionsGetSuffix(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	var slugs []string
	for i := 0; i < 3; i++ {
		p, err := e.planSvc.Create(ctx, &domain.PlanRequest{Name: "Offre Été", Price: "10€", Period: "mois"})
		require.NoError(t, err)
		slugs = append(slugs, p.Slug)
	}
	assert.Equal(t, []string{"offre-ete", "offre-ete-1", "offre-ete-2"}, slugs)
}

func TestUpdatePlan_RenameKeepsSlugUnique(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a, err := e.planSvc.Create(ctx, &domain.PlanRequest{Name: "Starter", Price: "10€", Period: "mois"})
	require.NoError(t, err)
	b, err := e.planSvc.Create(ctx, &domain.PlanRequest{Name: "Other", Price: "10€", Period: "mois"})
	require.NoError(t, err)

	b, err = e.planSvc.Update(ctx, b.ID.Hex(), &domain.PlanRequest{Name: "Starter", Price: "12€", Period: "mois"})
	require.NoError(t, err)
	assert.Equal(t, "starter-1", b.Slug)

	a, err = e.planSvc.Update(ctx, a.ID.Hex(), &domain.PlanRequest{Name: "Starter", Price: "11€", Period: "mois"})
	require.NoError(t, err)
	assert.Equal(t, "starter", a.Slug, "unchanged name keeps its slug")
}

func TestSavePlan_SingleHighlight(t *testing.T) {
	e := newTestEnv(t)
	plans := e.seedPlans(t)
	ctx := context.Background()
	require.True(t, plans["Pro"].Highlight)

	_, err := e.planSvc.Update(ctx, plans["Business"].ID.Hex(), &domain.PlanRequest{
		Name: "Business", Price: "120,99€", Period: "12 mois", Highlight: true,
	})
	require.NoError(t, err)

	all, err := e.planSvc.ListAll(ctx)
	require.NoError(t, err)
	var highlighted []string
	for _, p := range all {
		if p.Highlight {
			highlighted = append(highlighted, p.Name)
		}
	}
	assert.Equal(t, []string{"Business"}, highlighted)
}

func TestPlanValidationAndNotFound(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.planSvc.Create(ctx, &domain.PlanRequest{Price: "10€", Period: "mois"})
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
	require.Len(t, appErr.Details, 1)
	assert.Equal(t, "name", appErr.Details[0].Field)

	_, err = e.planSvc.Get(ctx, "not-an-id")
	assert.Equal(t, http.StatusNotFound, appCode(t, err))

	err = e.planSvc.Delete(ctx, "65f000000000000000000000")
	assert.Equal(t, http.StatusNotFound, appCode(t, err))
}
