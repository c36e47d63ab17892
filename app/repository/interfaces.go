package repository

import (
	"time"

	"github.com/nkoenig/assetvault/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	Count() (int64, error)
	CountActive() (int64, error)
}

// PlanRepository defines the interface for subscription plan operations
type PlanRepository interface {
	Create(plan *models.SubscriptionPlan) error
	GetByID(id uint) (*models.SubscriptionPlan, error)
	List(includeInactive bool) ([]models.SubscriptionPlan, error)
	Update(plan *models.SubscriptionPlan) error
	Delete(id uint) error
}

// SubscriptionRepository defines the interface for user subscription
// operations. ReplaceActive is the single transactional write used by both
// plan assignment and webhook reconciliation: it deactivates whatever is
// currently active for the user and inserts the new record, so no concurrent
// reader ever observes two active subscriptions for the same user.
type SubscriptionRepository interface {
	GetByID(id uint) (*models.UserSubscription, error)
	GetActiveByUser(userID uint, now time.Time) (*models.UserSubscription, error)
	GetByExternalID(externalID string) (*models.UserSubscription, error)
	ReplaceActive(sub *models.UserSubscription) error
	Save(sub *models.UserSubscription) error
	RenewIfLater(id uint, newEndDate time.Time) (bool, error)
	DeactivateByExternalID(externalID string) (int64, error)
	HistoryByUser(userID uint) ([]models.UserSubscription, error)
	List(offset, limit int) ([]models.UserSubscription, error)
	Count() (int64, error)
	CountByPlan(planID uint) (int64, error)
	CountCurrent(now time.Time) (int64, error)
	CountLapsed(now time.Time) (int64, error)
	ListWithPlans() ([]models.UserSubscription, error)
}

// DownloadRepository defines the interface for download consumption records
type DownloadRepository interface {
	ConsumeUnderLimit(d *models.Download, limit int, windowStart, windowEnd time.Time) (consumed, assetDownloads int64, ok bool, err error)
	CountForUserBetween(userID uint, start, end time.Time) (int64, error)
	CountForUser(userID uint) (int64, error)
	Count() (int64, error)
	CountBetween(start, end time.Time) (int64, error)
	HistoryByUser(userID uint, offset, limit int) ([]models.Download, error)
	TopAssets(limit int) ([]AssetDownloadCount, error)
}

// AssetRepository defines the interface for asset catalog lookups
type AssetRepository interface {
	Create(asset *models.Asset) error
	GetByID(id uint) (*models.Asset, error)
	GetByUUID(uuid string) (*models.Asset, error)
	Update(asset *models.Asset) error
	CountActive() (int64, error)
}

// ActivityRepository defines the interface for activity log entries
type ActivityRepository interface {
	Create(activity *models.Activity) error
	Recent(limit int) ([]models.Activity, error)
	RecentForUser(userID uint, limit int) ([]models.Activity, error)
}

// WebhookEventRepository defines the interface for the payment event
// deduplication store
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
}

// AssetDownloadCount pairs an asset with its total download count.
type AssetDownloadCount struct {
	Asset     models.Asset `json:"asset"`
	Downloads int64        `json:"downloads"`
}

// Repositories bundles all repository implementations
type Repositories struct {
	User         UserRepository
	Plan         PlanRepository
	Subscription SubscriptionRepository
	Download     DownloadRepository
	Asset        AssetRepository
	Activity     ActivityRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates all repositories backed by the given DB handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Plan:         NewPlanRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Download:     NewDownloadRepository(db),
		Asset:        NewAssetRepository(db),
		Activity:     NewActivityRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}
