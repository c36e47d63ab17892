package repository

import (
	"github.com/nkoenig/assetvault/app/models"
	"gorm.io/gorm"
)

// activityRepository implements the ActivityRepository interface
type activityRepository struct {
	db *gorm.DB
}

// NewActivityRepository creates a new activity repository instance
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

// Create appends an activity entry
func (r *activityRepository) Create(activity *models.Activity) error {
	return r.db.Create(activity).Error
}

// Recent returns the latest activity entries, newest first
func (r *activityRepository) Recent(limit int) ([]models.Activity, error) {
	var activities []models.Activity
	err := r.db.Order("created_at DESC").Limit(limit).Find(&activities).Error
	return activities, err
}

// RecentForUser returns the latest activity entries of one user
func (r *activityRepository) RecentForUser(userID uint, limit int) ([]models.Activity, error) {
	var activities []models.Activity
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).
		Find(&activities).Error
	return activities, err
}
