package analytics

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
		&models.Category{},
		&models.Asset{},
		&models.SubscriptionPlan{},
		&models.UserSubscription{},
		&models.Download{},
		&models.Activity{},
	))
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	repos := repository.NewRepositories(db)
	return NewService(repos.User, repos.Asset, repos.Download, repos.Subscription, repos.Activity, "usd"), db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		Name:     "Stats User",
		Email:    email,
		Password: "hashed-password",
		Role:     models.ROLE_USER,
		Status:   models.STATUS_ACTIVE,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedAsset(t *testing.T, db *gorm.DB, name string) *models.Asset {
	t.Helper()
	asset := &models.Asset{Name: name, FileKey: "assets/" + name + ".zip", IsActive: true}
	require.NoError(t, db.Create(asset).Error)
	return asset
}

func seedPlan(t *testing.T, db *gorm.DB, name, cycle string, price, discount float64) *models.SubscriptionPlan {
	t.Helper()
	plan := &models.SubscriptionPlan{
		Name:           name,
		BasePrice:      price,
		BillingCycle:   cycle,
		YearlyDiscount: discount,
		IsActive:       true,
	}
	require.NoError(t, db.Create(plan).Error)
	return plan
}

func seedDownload(t *testing.T, db *gorm.DB, userID, assetID uint, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.Download{UserID: userID, AssetID: assetID, DownloadedAt: at}).Error)
}

func TestDashboardCountsAndRevenue(t *testing.T) {
	svc, db := newTestService(t)

	alice := seedUser(t, db, "alice@example.com")
	bob := seedUser(t, db, "bob@example.com")
	asset := seedAsset(t, db, "shader-pack")

	monthly := seedPlan(t, db, "Pro", models.BillingCycleMonthly, 19.99, 0)
	yearly := seedPlan(t, db, "Pro Annual", models.BillingCycleYearly, 19.99, 20)

	now := time.Now()
	require.NoError(t, db.Create(&models.UserSubscription{
		UserID: alice.ID, PlanID: monthly.ID,
		StartDate: now, EndDate: now.AddDate(0, 1, 0), IsActive: true,
	}).Error)
	require.NoError(t, db.Create(&models.UserSubscription{
		UserID: bob.ID, PlanID: yearly.ID,
		StartDate: now, EndDate: now.AddDate(1, 0, 0), IsActive: true,
	}).Error)
	// A lapsed subscription was still paid for and keeps counting.
	require.NoError(t, db.Create(&models.UserSubscription{
		UserID: alice.ID, PlanID: monthly.ID,
		StartDate: now.AddDate(0, -3, 0), EndDate: now.AddDate(0, -2, 0), IsActive: false,
	}).Error)

	seedDownload(t, db, alice.ID, asset.ID, now)
	seedDownload(t, db, bob.ID, asset.ID, now)
	seedDownload(t, db, alice.ID, asset.ID, now.AddDate(0, 0, -2))

	stats, err := svc.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(2), stats.ActiveUsers)
	assert.Equal(t, int64(1), stats.TotalAssets)
	assert.Equal(t, int64(3), stats.TotalDownloads)
	assert.Equal(t, int64(2), stats.DownloadsToday)
	assert.Equal(t, int64(2), stats.ActiveSubscriptions)
	assert.Equal(t, int64(1), stats.LapsedSubscriptions)

	// Two 19.99 monthly terms plus 19.99 yearly at 20 percent off:
	// 19.99 + 19.99 + 191.90.
	assert.InDelta(t, 231.88, stats.Revenue.TotalRevenue, 0.001)
	assert.Equal(t, "usd", stats.Revenue.Currency)

	require.Len(t, stats.DailyDownloads, 7)
	assert.Equal(t, int64(2), stats.DailyDownloads[6].Count)
	assert.Equal(t, int64(1), stats.DailyDownloads[4].Count)
	assert.Equal(t, int64(0), stats.DailyDownloads[0].Count)

	require.Len(t, stats.TopAssets, 1)
	assert.Equal(t, asset.ID, stats.TopAssets[0].Asset.ID)
	assert.Equal(t, int64(3), stats.TopAssets[0].Downloads)
}

func TestRevenueCountsCancelledSubscriptions(t *testing.T) {
	svc, db := newTestService(t)

	user := seedUser(t, db, "erin@example.com")
	plan := seedPlan(t, db, "Pro", models.BillingCycleMonthly, 19.99, 0)

	now := time.Now()
	require.NoError(t, db.Create(&models.UserSubscription{
		UserID: user.ID, PlanID: plan.ID,
		StartDate: now.AddDate(0, 0, -2), EndDate: now.AddDate(0, 1, -2), IsActive: false,
	}).Error)

	stats, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.ActiveSubscriptions)
	assert.InDelta(t, 19.99, stats.Revenue.TotalRevenue, 0.001)
}

func TestDashboardOnEmptyDatabase(t *testing.T) {
	svc, _ := newTestService(t)

	stats, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalUsers)
	assert.Zero(t, stats.Revenue.TotalRevenue)
	assert.Len(t, stats.DailyDownloads, 7)
	for _, day := range stats.DailyDownloads {
		assert.Zero(t, day.Count)
	}
}

func TestUserStats(t *testing.T) {
	svc, db := newTestService(t)

	user := seedUser(t, db, "carol@example.com")
	other := seedUser(t, db, "dave@example.com")
	asset := seedAsset(t, db, "texture-pack")
	plan := seedPlan(t, db, "Basic", models.BillingCycleMonthly, 4.99, 0)

	now := time.Now()
	require.NoError(t, db.Create(&models.UserSubscription{
		UserID: user.ID, PlanID: plan.ID,
		StartDate: now, EndDate: now.AddDate(0, 1, 0), IsActive: true,
	}).Error)

	seedDownload(t, db, user.ID, asset.ID, now)
	seedDownload(t, db, user.ID, asset.ID, now.AddDate(0, 0, -1))
	seedDownload(t, db, other.ID, asset.ID, now)

	stats, err := svc.UserStats(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalDownloads)
	assert.Equal(t, int64(1), stats.DownloadsToday)
	assert.Len(t, stats.RecentDownloads, 2)
	require.Len(t, stats.Subscriptions, 1)
	assert.Equal(t, "Basic", stats.Subscriptions[0].Plan.Name)
}
