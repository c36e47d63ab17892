package repository

import (
	"time"

	"github.com/nkoenig/assetvault/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// GetByID retrieves a subscription by its ID with the plan preloaded
func (r *subscriptionRepository) GetByID(id uint) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Preload("Plan").First(&sub, id).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetActiveByUser returns the user's single active, unexpired subscription
func (r *subscriptionRepository) GetActiveByUser(userID uint, now time.Time) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Preload("Plan").
		Where("user_id = ? AND is_active = ? AND end_date > ?", userID, true, now).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByExternalID retrieves a subscription by its provider subscription id
func (r *subscriptionRepository) GetByExternalID(externalID string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Where("external_subscription_id = ?", externalID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ReplaceActive deactivates any active subscription for the user and inserts
// the new record in a single transaction. The new record takes the user's
// unique active slot; when two transactions race for it, the second insert
// aborts with gorm.ErrDuplicatedKey and leaves its user's previous state
// untouched. A duplicate external subscription id aborts the same way.
func (r *subscriptionRepository) ReplaceActive(sub *models.UserSubscription) error {
	if sub.IsActive {
		userID := sub.UserID
		sub.ActiveUserID = &userID
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.UserSubscription{}).
			Where("user_id = ? AND is_active = ?", sub.UserID, true).
			Updates(map[string]interface{}{"is_active": false, "active_user_id": nil}).Error; err != nil {
			return err
		}
		return tx.Create(sub).Error
	})
}

// Save persists changes to an existing subscription
func (r *subscriptionRepository) Save(sub *models.UserSubscription) error {
	return r.db.Save(sub).Error
}

// RenewIfLater extends the subscription's end date, but only forward. A
// stale or duplicate renewal event can therefore never regress the boundary.
// Returns whether a row was updated.
func (r *subscriptionRepository) RenewIfLater(id uint, newEndDate time.Time) (bool, error) {
	tx := r.db.Model(&models.UserSubscription{}).
		Where("id = ? AND end_date < ?", id, newEndDate).
		Update("end_date", newEndDate)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// DeactivateByExternalID deactivates all subscriptions carrying the given
// provider subscription id and returns the number of affected rows
func (r *subscriptionRepository) DeactivateByExternalID(externalID string) (int64, error) {
	tx := r.db.Model(&models.UserSubscription{}).
		Where("external_subscription_id = ? AND is_active = ?", externalID, true).
		Updates(map[string]interface{}{"is_active": false, "active_user_id": nil})
	return tx.RowsAffected, tx.Error
}

// HistoryByUser returns all subscriptions of a user, newest first
func (r *subscriptionRepository) HistoryByUser(userID uint) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

// List returns a paginated list of all subscriptions, newest first
func (r *subscriptionRepository) List(offset, limit int) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.Preload("Plan").Preload("User").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&subs).Error
	return subs, err
}

// Count returns the total number of subscription records
func (r *subscriptionRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.UserSubscription{}).Count(&count).Error
	return count, err
}

// CountByPlan counts all subscriptions, active or historical, referencing
// the given plan
func (r *subscriptionRepository) CountByPlan(planID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserSubscription{}).Where("plan_id = ?", planID).Count(&count).Error
	return count, err
}

// CountCurrent counts active, unexpired subscriptions
func (r *subscriptionRepository) CountCurrent(now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserSubscription{}).
		Where("is_active = ? AND end_date > ?", true, now).
		Count(&count).Error
	return count, err
}

// CountLapsed counts subscriptions that are cancelled or expired
func (r *subscriptionRepository) CountLapsed(now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserSubscription{}).
		Where("is_active = ? OR end_date <= ?", false, now).
		Count(&count).Error
	return count, err
}

// ListWithPlans returns every subscription record with its plan preloaded,
// for revenue aggregation
func (r *subscriptionRepository) ListWithPlans() ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.Preload("Plan").Find(&subs).Error
	return subs, err
}
