package models

import "time"

// Activity event kinds recorded by the activity log.
const (
	ActivityPlanAssigned    = "PLAN_ASSIGNED"
	ActivityPlanCancelled   = "PLAN_CANCELLED"
	ActivityAssetDownloaded = "ASSET_DOWNLOADED"
	ActivityAssetMilestone  = "ASSET_MILESTONE"
)

// Activity is an append-only audit entry. Recording is fire-and-forget:
// failures are logged and never fail the operation that produced them.
type Activity struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Type      string    `gorm:"type:varchar(50);not null;index" json:"type"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	AssetID   *uint     `gorm:"index" json:"asset_id,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
