package models

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Billing cycle constants for subscription plans.
const (
	BillingCycleWeekly  = "WEEKLY"
	BillingCycleMonthly = "MONTHLY"
	BillingCycleYearly  = "YEARLY"
)

// IsValidBillingCycle reports whether cycle is one of the known values.
func IsValidBillingCycle(cycle string) bool {
	switch cycle {
	case BillingCycleWeekly, BillingCycleMonthly, BillingCycleYearly:
		return true
	}
	return false
}

// SubscriptionPlan is the purchasable tier definition. BasePrice is the
// monthly USD price; weekly and yearly checkout prices are derived from it.
// A DailyDownloadLimit of 0 means unlimited and is only honored for admins.
type SubscriptionPlan struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Name               string         `gorm:"type:varchar(100);not null" json:"name" validate:"required,min=2,max=100"`
	Description        string         `gorm:"type:text" json:"description"`
	BasePrice          float64        `gorm:"not null" json:"base_price" validate:"gte=0"`
	BillingCycle       string         `gorm:"type:varchar(16);not null;default:'MONTHLY'" json:"billing_cycle" validate:"oneof=WEEKLY MONTHLY YEARLY"`
	YearlyDiscount     float64        `gorm:"not null;default:0" json:"yearly_discount" validate:"gte=0,lte=100"`
	DailyDownloadLimit int            `gorm:"not null;default:0" json:"daily_download_limit" validate:"gte=0"`
	FeaturesJSON       string         `gorm:"type:text" json:"-"`
	IsActive           bool           `gorm:"default:true;index" json:"is_active"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *SubscriptionPlan) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// Features returns the ordered feature list decoded from FeaturesJSON.
func (p *SubscriptionPlan) Features() []string {
	if p.FeaturesJSON == "" {
		return nil
	}
	var features []string
	if err := json.Unmarshal([]byte(p.FeaturesJSON), &features); err != nil {
		return nil
	}
	return features
}

// SetFeatures encodes the ordered feature list into FeaturesJSON.
func (p *SubscriptionPlan) SetFeatures(features []string) error {
	if len(features) == 0 {
		p.FeaturesJSON = ""
		return nil
	}
	raw, err := json.Marshal(features)
	if err != nil {
		return err
	}
	p.FeaturesJSON = string(raw)
	return nil
}
