package models

import "time"

// UserSubscription is one granted subscription period. At most one record per
// user may be active with an end date in the future; assignment and webhook
// reconciliation both deactivate the previous active record before inserting
// a new one. ActiveUserID mirrors UserID while the record is active and is
// NULL otherwise, so the unique index on it lets the database itself reject a
// second concurrent activation. ExternalSubscriptionID carries the payment
// provider's subscription id and is unique when present, which is what makes
// concurrent duplicate webhook deliveries collapse into a single row.
type UserSubscription struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	UserID                 uint      `gorm:"not null;index:idx_user_subscriptions_user_active,priority:1" json:"user_id"`
	PlanID                 uint      `gorm:"not null;index" json:"plan_id"`
	StartDate              time.Time `gorm:"not null" json:"start_date"`
	EndDate                time.Time `gorm:"not null;index" json:"end_date"`
	IsActive               bool      `gorm:"not null;default:true;index:idx_user_subscriptions_user_active,priority:2" json:"is_active"`
	ActiveUserID           *uint     `gorm:"uniqueIndex:ux_user_subscriptions_active_user" json:"-"`
	ExternalSubscriptionID *string   `gorm:"type:varchar(191);uniqueIndex:ux_user_subscriptions_external_id" json:"external_subscription_id,omitempty"`
	CreatedAt              time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	User User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Plan SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

// IsCurrent reports whether the subscription entitles the user at the given
// instant (active flag set and end date strictly in the future).
func (s *UserSubscription) IsCurrent(now time.Time) bool {
	return s.IsActive && s.EndDate.After(now)
}
