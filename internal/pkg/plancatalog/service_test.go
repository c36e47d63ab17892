package plancatalog

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nkoenig/assetvault/app/models"
	"github.com/nkoenig/assetvault/app/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.SubscriptionPlan{},
		&models.UserSubscription{},
	))
	return db
}

// memStore is an in-process cache standing in for Redis.
type memStore struct {
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (m *memStore) Get(key string) (string, error) {
	return m.data[key], nil
}

func (m *memStore) Set(key, value string, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memStore) Delete(key string) error {
	delete(m.data, key)
	return nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	repos := repository.NewRepositories(db)
	return NewService(repos.Plan, repos.Subscription, nil), db
}

func validInput() CreatePlanInput {
	return CreatePlanInput{
		Name:               "Pro",
		Description:        "For professionals",
		BasePrice:          19.99,
		BillingCycle:       models.BillingCycleMonthly,
		YearlyDiscount:     20,
		DailyDownloadLimit: 25,
		Features:           []string{"priority support", "early access"},
	}
}

func TestCreateAndGetPlan(t *testing.T) {
	svc, _ := newTestService(t)

	plan, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotZero(t, plan.ID)
	assert.True(t, plan.IsActive)
	assert.Equal(t, []string{"priority support", "early access"}, plan.Features())

	got, err := svc.Get(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", got.Name)
	assert.Equal(t, 19.99, got.BasePrice)
}

func TestCreatePlanValidation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name   string
		mutate func(*CreatePlanInput)
	}{
		{"empty name", func(in *CreatePlanInput) { in.Name = "" }},
		{"negative price", func(in *CreatePlanInput) { in.BasePrice = -1 }},
		{"bad billing cycle", func(in *CreatePlanInput) { in.BillingCycle = "DAILY" }},
		{"discount above 100", func(in *CreatePlanInput) { in.YearlyDiscount = 120 }},
		{"negative limit", func(in *CreatePlanInput) { in.DailyDownloadLimit = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), in)
			assert.Error(t, err)
		})
	}
}

func TestGetUnknownPlan(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestUpdatePlanAppliesPartialPatch(t *testing.T) {
	svc, _ := newTestService(t)
	plan, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	newPrice := 24.99
	updated, err := svc.Update(context.Background(), plan.ID, UpdatePlanInput{BasePrice: &newPrice})
	require.NoError(t, err)
	assert.Equal(t, 24.99, updated.BasePrice)
	assert.Equal(t, "Pro", updated.Name)
	assert.Equal(t, 25, updated.DailyDownloadLimit)
}

func TestUpdatePlanRejectsInvalidPatch(t *testing.T) {
	svc, _ := newTestService(t)
	plan, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	badCycle := "HOURLY"
	_, err = svc.Update(context.Background(), plan.ID, UpdatePlanInput{BillingCycle: &badCycle})
	assert.Error(t, err)

	// The stored plan keeps its previous cycle.
	got, err := svc.Get(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillingCycleMonthly, got.BillingCycle)
}

func TestDeactivateHidesPlanFromListing(t *testing.T) {
	svc, _ := newTestService(t)
	plan, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.Deactivate(context.Background(), plan.ID)
	require.NoError(t, err)

	visible, err := svc.List(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := svc.List(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeletePlanBlockedByReferences(t *testing.T) {
	svc, db := newTestService(t)
	plan, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	user := &models.User{
		Name:     "Holder",
		Email:    "holder@example.com",
		Password: "hashed-password",
		Role:     models.ROLE_USER,
		Status:   models.STATUS_ACTIVE,
	}
	require.NoError(t, db.Create(user).Error)

	// Even a fully expired subscription keeps the plan referenced.
	sub := &models.UserSubscription{
		UserID:    user.ID,
		PlanID:    plan.ID,
		StartDate: time.Now().AddDate(0, -2, 0),
		EndDate:   time.Now().AddDate(0, -1, 0),
		IsActive:  false,
	}
	require.NoError(t, db.Create(sub).Error)

	err = svc.Delete(context.Background(), plan.ID)
	assert.ErrorIs(t, err, ErrPlanInUse)

	_, err = svc.Get(context.Background(), plan.ID)
	assert.NoError(t, err)
}

func TestDeleteUnreferencedPlan(t *testing.T) {
	svc, _ := newTestService(t)
	plan, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), plan.ID))

	_, err = svc.Get(context.Background(), plan.ID)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestListUsesCacheForActivePlans(t *testing.T) {
	db := newTestDB(t)
	repos := repository.NewRepositories(db)
	store := newMemStore()
	svc := NewService(repos.Plan, repos.Subscription, store)

	_, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	plans, err := svc.List(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, plans, 1)
	assert.NotEmpty(t, store.data[activePlansCacheKey])

	// A write invalidates the cached listing.
	in := validInput()
	in.Name = "Elite"
	_, err = svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, store.data[activePlansCacheKey])

	plans, err = svc.List(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}
