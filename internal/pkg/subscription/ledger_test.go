package subscription

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
		&models.Activity{},
	))
	return db
}

func newTestLedger(t *testing.T) (*Ledger, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	repos := repository.NewRepositories(db)
	return NewLedger(repos.Subscription, repos.Plan, repos.User, nil), db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		Name:     "Test User",
		Email:    email,
		Password: "hashed-password",
		Role:     models.ROLE_USER,
		Status:   models.STATUS_ACTIVE,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedPlan(t *testing.T, db *gorm.DB, name, cycle string, limit int) *models.SubscriptionPlan {
	t.Helper()
	plan := &models.SubscriptionPlan{
		Name:               name,
		BasePrice:          19.99,
		BillingCycle:       cycle,
		DailyDownloadLimit: limit,
		IsActive:           true,
	}
	require.NoError(t, db.Create(plan).Error)
	return plan
}

func TestCycleEndDate(t *testing.T) {
	start := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		cycle string
		want  time.Time
	}{
		{models.BillingCycleWeekly, start.AddDate(0, 0, 7)},
		{models.BillingCycleMonthly, start.AddDate(0, 1, 0)},
		{models.BillingCycleYearly, start.AddDate(1, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.cycle, func(t *testing.T) {
			assert.Equal(t, tt.want, CycleEndDate(start, tt.cycle))
		})
	}
}

func TestAssignCreatesActiveSubscription(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := seedUser(t, db, "assign@example.com")
	plan := seedPlan(t, db, "Pro", models.BillingCycleMonthly, 10)

	sub, err := ledger.Assign(context.Background(), user.ID, plan.ID, nil)
	require.NoError(t, err)
	assert.True(t, sub.IsActive)
	assert.Equal(t, plan.ID, sub.PlanID)
	assert.Equal(t, sub.StartDate.AddDate(0, 1, 0), sub.EndDate)

	active, err := ledger.GetActive(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, sub.ID, active.ID)
	assert.Equal(t, "Pro", active.Plan.Name)
}

func TestActiveSlotIsUniquePerUser(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := seedUser(t, db, "slot@example.com")
	plan := seedPlan(t, db, "Pro", models.BillingCycleMonthly, 10)

	sub, err := ledger.Assign(context.Background(), user.ID, plan.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, sub.ActiveUserID)
	assert.Equal(t, user.ID, *sub.ActiveUserID)

	// A second activation that skips the replace transaction is rejected by
	// the database itself, not just by application logic.
	rogue := &models.UserSubscription{
		UserID:       user.ID,
		PlanID:       plan.ID,
		StartDate:    time.Now(),
		EndDate:      time.Now().AddDate(0, 1, 0),
		IsActive:     true,
		ActiveUserID: &user.ID,
	}
	err = db.Create(rogue).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// Cancelling releases the slot for the next activation.
	_, err = ledger.Cancel(context.Background(), sub.ID)
	require.NoError(t, err)
	next, err := ledger.Assign(context.Background(), user.ID, plan.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, next.ActiveUserID)
}

func TestAssignReplacesPreviousSubscription(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := seedUser(t, db, "replace@example.com")
	basic := seedPlan(t, db, "Basic", models.BillingCycleMonthly, 5)
	pro := seedPlan(t, db, "Pro", models.BillingCycleMonthly, 50)

	first, err := ledger.Assign(context.Background(), user.ID, basic.ID, nil)
	require.NoError(t, err)
	second, err := ledger.Assign(context.Background(), user.ID, pro.ID, nil)
	require.NoError(t, err)

	active, err := ledger.GetActive(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)

	var old models.UserSubscription
	require.NoError(t, db.First(&old, first.ID).Error)
	assert.False(t, old.IsActive)

	history, err := ledger.History(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestAssignRejectsInactivePlan(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := seedUser(t, db, "inactiveplan@example.com")
	plan := seedPlan(t, db, "Old", models.BillingCycleMonthly, 5)
	require.NoError(t, db.Model(plan).Update("is_active", false).Error)

	_, err := ledger.Assign(context.Background(), user.ID, plan.ID, nil)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestAssignRejectsInactiveUser(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := seedUser(t, db, "inactiveuser@example.com")
	require.NoError(t, db.Model(user).Update("status", models.STATUS_DISABLED).Error)
	plan := seedPlan(t, db, "Pro", models.BillingCycleMonthly, 5)

	_, err := ledger.Assign(context.Background(), user.ID, plan.ID, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAssignUnknownIDs(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := seedUser(t, db, "unknown@example.com")
	plan := seedPlan(t, db, "Pro", models.BillingCycleMonthly, 5)

	_, err := ledger.Assign(context.Background(), user.ID, plan.ID+999, nil)
	assert.ErrorIs(t, err, ErrPlanNotFound)

	_, err = ledger.Assign(context.Background(), user.ID+999, plan.ID, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAssignWithPeriodIsIdempotent(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := seedUser(t, db, "period@example.com")
	plan := seedPlan(t, db, "Pro", models.BillingCycleMonthly, 5)

	start := time.Now()
	end := start.AddDate(0, 1, 0)

	first, created, err := ledger.AssignWithPeriod(context.Background(), user.ID, plan.ID, start, end, "sub_123")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := ledger.AssignWithPeriod(context.Background(), user.ID, plan.ID, start, end, "sub_123")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.UserSubscription{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRenewOnlyMovesForward(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := seedUser(t, db, "renew@example.com")
	plan := seedPlan(t, db, "Pro", models.BillingCycleMonthly, 5)

	sub, err := ledger.Assign(context.Background(), user.ID, plan.ID, nil)
	require.NoError(t, err)

	later := sub.EndDate.AddDate(0, 1, 0)
	renewed, err := ledger.Renew(context.Background(), sub.ID, later)
	require.NoError(t, err)
	assert.WithinDuration(t, later, renewed.EndDate, time.Second)

	// A stale renewal must not pull the boundary back.
	stale := later.AddDate(0, -2, 0)
	unchanged, err := ledger.Renew(context.Background(), sub.ID, stale)
	require.NoError(t, err)
	assert.WithinDuration(t, later, unchanged.EndDate, time.Second)
}

func TestRenewUnknownSubscription(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.Renew(context.Background(), 12345, time.Now().AddDate(0, 1, 0))
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestRenewByExternalID(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := seedUser(t, db, "renewext@example.com")
	plan := seedPlan(t, db, "Pro", models.BillingCycleMonthly, 5)

	start := time.Now()
	sub, _, err := ledger.AssignWithPeriod(context.Background(), user.ID, plan.ID, start, start.AddDate(0, 1, 0), "sub_renew")
	require.NoError(t, err)

	newEnd := start.AddDate(0, 2, 0)
	found, err := ledger.RenewByExternalID(context.Background(), "sub_renew", newEnd)
	require.NoError(t, err)
	assert.True(t, found)

	reloaded, err := ledger.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, newEnd, reloaded.EndDate, time.Second)

	found, err = ledger.RenewByExternalID(context.Background(), "sub_missing", newEnd)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCancelIsIdempotent(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := seedUser(t, db, "cancel@example.com")
	plan := seedPlan(t, db, "Pro", models.BillingCycleMonthly, 5)

	sub, err := ledger.Assign(context.Background(), user.ID, plan.ID, nil)
	require.NoError(t, err)

	cancelled, err := ledger.Cancel(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.False(t, cancelled.IsActive)

	again, err := ledger.Cancel(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.False(t, again.IsActive)

	active, err := ledger.GetActive(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestDeactivateByExternalID(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := seedUser(t, db, "deactivate@example.com")
	plan := seedPlan(t, db, "Pro", models.BillingCycleMonthly, 5)

	start := time.Now()
	_, _, err := ledger.AssignWithPeriod(context.Background(), user.ID, plan.ID, start, start.AddDate(0, 1, 0), "sub_del")
	require.NoError(t, err)

	found, err := ledger.DeactivateByExternalID(context.Background(), "sub_del")
	require.NoError(t, err)
	assert.True(t, found)

	active, err := ledger.GetActive(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	found, err = ledger.DeactivateByExternalID(context.Background(), "sub_missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetActiveIgnoresExpired(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := seedUser(t, db, "expired@example.com")
	plan := seedPlan(t, db, "Pro", models.BillingCycleMonthly, 5)

	expired := &models.UserSubscription{
		UserID:    user.ID,
		PlanID:    plan.ID,
		StartDate: time.Now().AddDate(0, -2, 0),
		EndDate:   time.Now().AddDate(0, -1, 0),
		IsActive:  true,
	}
	require.NoError(t, db.Create(expired).Error)

	active, err := ledger.GetActive(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	has, err := ledger.HasActive(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, has)
}
