package activitylog

import (
	"fmt"
	"log"

	"github.com/nkoenig/assetvault/app/models"
	"github.com/nkoenig/assetvault/app/repository"
)

// Service appends audit entries for notable events. Recording is best-effort:
// a failed insert is logged and never propagated to the caller.
type Service struct {
	repo repository.ActivityRepository
}

// NewService creates an activity log service from an injected repository.
func NewService(repo repository.ActivityRepository) *Service {
	return &Service{repo: repo}
}

// Record appends an activity entry, swallowing any storage error.
func (s *Service) Record(activityType, message string, userID, assetID *uint) {
	entry := &models.Activity{
		Type:    activityType,
		Message: message,
		UserID:  userID,
		AssetID: assetID,
	}
	if err := s.repo.Create(entry); err != nil {
		log.Printf("activity log: failed to record %s: %v", activityType, err)
	}
}

// RecordPlanAssigned logs a plan assignment for a user.
func (s *Service) RecordPlanAssigned(userID uint, planName string) {
	s.Record(models.ActivityPlanAssigned, fmt.Sprintf("Plan '%s' assigned", planName), &userID, nil)
}

// RecordPlanCancelled logs a subscription cancellation.
func (s *Service) RecordPlanCancelled(userID uint, planName string) {
	s.Record(models.ActivityPlanCancelled, fmt.Sprintf("Plan '%s' cancelled", planName), &userID, nil)
}

// RecordAssetMilestone logs a download-count milestone for an asset.
func (s *Service) RecordAssetMilestone(assetID uint, assetName string, downloads int64) {
	s.Record(models.ActivityAssetMilestone,
		fmt.Sprintf("Asset '%s' reached %d downloads", assetName, downloads), nil, &assetID)
}

// Recent returns the latest entries, newest first.
func (s *Service) Recent(limit int) ([]models.Activity, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.repo.Recent(limit)
}
