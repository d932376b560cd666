package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/rebill/internal/clock"
	"github.com/smallbiznis/rebill/internal/config"
	plandomain "github.com/smallbiznis/rebill/internal/plan/domain"
	planrepository "github.com/smallbiznis/rebill/internal/plan/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (plandomain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&plandomain.Plan{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Repo:    planrepository.Provide(),
	})
	return svc, db
}

func TestCreateValidation(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, plandomain.CreatePlanRequest{Name: " ", RateCents: 100, IntervalMonths: 1})
	assert.ErrorIs(t, err, plandomain.ErrInvalidName)

	_, err = svc.Create(ctx, plandomain.CreatePlanRequest{Name: "basic", RateCents: -1, IntervalMonths: 1})
	assert.ErrorIs(t, err, plandomain.ErrInvalidRate)

	_, err = svc.Create(ctx, plandomain.CreatePlanRequest{Name: "basic", RateCents: 100, IntervalMonths: 0})
	assert.ErrorIs(t, err, plandomain.ErrInvalidInterval)

	plan, err := svc.Create(ctx, plandomain.CreatePlanRequest{Name: "basic", RateCents: 1000, IntervalMonths: 1})
	require.NoError(t, err)
	assert.Equal(t, "EUR", plan.Currency)

	_, err = svc.Create(ctx, plandomain.CreatePlanRequest{Name: "basic", RateCents: 2000, IntervalMonths: 1})
	assert.ErrorIs(t, err, plandomain.ErrDuplicateName)
}

func TestDefaultPlanByConfiguredName(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, plandomain.CreatePlanRequest{Name: "free", RateCents: 0, IntervalMonths: 1})
	require.NoError(t, err)

	resolved, err := svc.DefaultPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.ID, resolved.ID)
}

func TestDefaultPlanFallsBackToCheapestFree(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, plandomain.CreatePlanRequest{Name: "paid", RateCents: 1000, IntervalMonths: 1})
	require.NoError(t, err)
	gratis, err := svc.Create(ctx, plandomain.CreatePlanRequest{Name: "starter", RateCents: 0, IntervalMonths: 1})
	require.NoError(t, err)

	resolved, err := svc.DefaultPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, gratis.ID, resolved.ID)
}

func TestDefaultPlanBootstrapsFreePlan(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()

	resolved, err := svc.DefaultPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "free", resolved.Name)
	assert.True(t, resolved.Free())

	// Second resolution reuses the bootstrapped row.
	again, err := svc.DefaultPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, resolved.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&plandomain.Plan{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
