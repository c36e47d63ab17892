package plancatalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nkoenig/assetvault/app/models"
	"github.com/nkoenig/assetvault/app/repository"
	"github.com/nkoenig/assetvault/internal/pkg/cache"
	"gorm.io/gorm"
)

var (
	// ErrPlanNotFound is returned when the requested plan does not exist.
	ErrPlanNotFound = errors.New("subscription plan not found")
	// ErrPlanInUse is returned when deleting a plan that any subscription,
	// active or historical, still references. Deactivate instead.
	ErrPlanInUse = errors.New("plan is referenced by subscriptions and can only be deactivated")
)

const (
	activePlansCacheKey = "plans:active"
	plansCacheTTL       = 5 * time.Minute
)

// CreatePlanInput carries the fields for a new plan.
type CreatePlanInput struct {
	Name               string   `json:"name" validate:"required,min=2,max=100"`
	Description        string   `json:"description"`
	BasePrice          float64  `json:"base_price" validate:"gte=0"`
	BillingCycle       string   `json:"billing_cycle" validate:"oneof=WEEKLY MONTHLY YEARLY"`
	YearlyDiscount     float64  `json:"yearly_discount" validate:"gte=0,lte=100"`
	DailyDownloadLimit int      `json:"daily_download_limit" validate:"gte=0"`
	Features           []string `json:"features"`
}

// UpdatePlanInput is a partial patch; nil fields are left unchanged.
type UpdatePlanInput struct {
	Name               *string  `json:"name"`
	Description        *string  `json:"description"`
	BasePrice          *float64 `json:"base_price"`
	BillingCycle       *string  `json:"billing_cycle"`
	YearlyDiscount     *float64 `json:"yearly_discount"`
	DailyDownloadLimit *int     `json:"daily_download_limit"`
	Features           []string `json:"features"`
	IsActive           *bool    `json:"is_active"`
}

// Service owns the plan catalog. Money and quota validation happens here, at
// write time, never at consumption time.
type Service struct {
	plans repository.PlanRepository
	subs  repository.SubscriptionRepository
	cache cache.Store
}

// NewService creates a plan catalog service. The cache store may be nil to
// disable listing caching.
func NewService(plans repository.PlanRepository, subs repository.SubscriptionRepository, store cache.Store) *Service {
	return &Service{plans: plans, subs: subs, cache: store}
}

// List returns plans, optionally including deactivated ones. The active-only
// listing is served from cache when possible; cache failures fall through to
// the database.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]models.SubscriptionPlan, error) {
	_ = ctx
	if !includeInactive && s.cache != nil {
		if raw, err := s.cache.Get(activePlansCacheKey); err == nil && raw != "" {
			var plans []models.SubscriptionPlan
			if err := json.Unmarshal([]byte(raw), &plans); err == nil {
				return plans, nil
			}
		}
	}

	plans, err := s.plans.List(includeInactive)
	if err != nil {
		return nil, err
	}

	if !includeInactive && s.cache != nil {
		if raw, err := json.Marshal(plans); err == nil {
			if err := s.cache.Set(activePlansCacheKey, string(raw), plansCacheTTL); err != nil {
				log.Printf("plan catalog: cache set failed: %v", err)
			}
		}
	}
	return plans, nil
}

// Get returns a plan by id.
func (s *Service) Get(ctx context.Context, id uint) (*models.SubscriptionPlan, error) {
	_ = ctx
	plan, err := s.plans.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// Create validates and stores a new plan.
func (s *Service) Create(ctx context.Context, in CreatePlanInput) (*models.SubscriptionPlan, error) {
	_ = ctx
	plan := &models.SubscriptionPlan{
		Name:               in.Name,
		Description:        in.Description,
		BasePrice:          in.BasePrice,
		BillingCycle:       in.BillingCycle,
		YearlyDiscount:     in.YearlyDiscount,
		DailyDownloadLimit: in.DailyDownloadLimit,
		IsActive:           true,
	}
	if err := plan.SetFeatures(in.Features); err != nil {
		return nil, fmt.Errorf("invalid feature list: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := s.plans.Create(plan); err != nil {
		return nil, err
	}
	s.invalidateCache()
	return plan, nil
}

// Update applies a partial patch to an existing plan.
func (s *Service) Update(ctx context.Context, id uint, in UpdatePlanInput) (*models.SubscriptionPlan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		plan.Name = *in.Name
	}
	if in.Description != nil {
		plan.Description = *in.Description
	}
	if in.BasePrice != nil {
		plan.BasePrice = *in.BasePrice
	}
	if in.BillingCycle != nil {
		plan.BillingCycle = *in.BillingCycle
	}
	if in.YearlyDiscount != nil {
		plan.YearlyDiscount = *in.YearlyDiscount
	}
	if in.DailyDownloadLimit != nil {
		plan.DailyDownloadLimit = *in.DailyDownloadLimit
	}
	if in.Features != nil {
		if err := plan.SetFeatures(in.Features); err != nil {
			return nil, fmt.Errorf("invalid feature list: %w", err)
		}
	}
	if in.IsActive != nil {
		plan.IsActive = *in.IsActive
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := s.plans.Update(plan); err != nil {
		return nil, err
	}
	s.invalidateCache()
	return plan, nil
}

// Deactivate soft-disables a plan without touching existing subscriptions.
func (s *Service) Deactivate(ctx context.Context, id uint) (*models.SubscriptionPlan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	plan.IsActive = false
	if err := s.plans.Update(plan); err != nil {
		return nil, err
	}
	s.invalidateCache()
	return plan, nil
}

// Delete removes a plan. Any referencing subscription, even a fully expired
// one, blocks deletion so historical records keep a valid plan to point at.
func (s *Service) Delete(ctx context.Context, id uint) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	refs, err := s.subs.CountByPlan(id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return ErrPlanInUse
	}
	if err := s.plans.Delete(id); err != nil {
		return err
	}
	s.invalidateCache()
	return nil
}

func (s *Service) invalidateCache() {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(activePlansCacheKey); err != nil {
		log.Printf("plan catalog: cache invalidation failed: %v", err)
	}
}
