package models

import "time"

// Download is an immutable consumption record. The number of rows for a user
// within [server-local midnight, next midnight) is the day's quota usage.
type Download struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index:idx_downloads_user_day,priority:1" json:"user_id"`
	AssetID      uint      `gorm:"not null;index" json:"asset_id"`
	DownloadedAt time.Time `gorm:"not null;autoCreateTime;index:idx_downloads_user_day,priority:2" json:"downloaded_at"`
	IPAddress    string    `gorm:"type:varchar(45);default:''" json:"ip_address,omitempty"`
	UserAgent    string    `gorm:"type:varchar(255);default:''" json:"user_agent,omitempty"`

	User  User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Asset Asset `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
}
