package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/nkoenig/assetvault/app/models"
	"github.com/nkoenig/assetvault/app/repository"
	"github.com/nkoenig/assetvault/internal/pkg/activitylog"
	"gorm.io/gorm"
)

var (
	// ErrPlanNotFound is returned when the plan does not exist or is inactive.
	ErrPlanNotFound = errors.New("plan not found or inactive")
	// ErrUserNotFound is returned when the user does not exist or is inactive.
	ErrUserNotFound = errors.New("user not found or inactive")
	// ErrSubscriptionNotFound is returned when the subscription id is unknown.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Ledger owns subscription records and the invariant that a user holds at
// most one active, unexpired subscription at any instant.
type Ledger struct {
	subs     repository.SubscriptionRepository
	plans    repository.PlanRepository
	users    repository.UserRepository
	activity *activitylog.Service
	now      func() time.Time
}

// NewLedger creates a subscription ledger over the given repositories. The
// activity service may be nil to disable audit records.
func NewLedger(subs repository.SubscriptionRepository, plans repository.PlanRepository, users repository.UserRepository, activity *activitylog.Service) *Ledger {
	return &Ledger{
		subs:     subs,
		plans:    plans,
		users:    users,
		activity: activity,
		now:      time.Now,
	}
}

// CycleEndDate computes the exclusive end of a billing period starting at
// start: 7 days for WEEKLY, one calendar month for MONTHLY, one calendar
// year for YEARLY.
func CycleEndDate(start time.Time, billingCycle string) time.Time {
	switch billingCycle {
	case models.BillingCycleWeekly:
		return start.AddDate(0, 0, 7)
	case models.BillingCycleYearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// Assign grants a plan to a user starting at startDate (now when nil). Any
// previously active subscription is deactivated in the same transaction as
// the insert of the new one.
func (l *Ledger) Assign(ctx context.Context, userID, planID uint, startDate *time.Time) (*models.UserSubscription, error) {
	_ = ctx
	plan, err := l.plans.GetByID(planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanNotFound
	}

	user, err := l.users.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.Status != models.STATUS_ACTIVE {
		return nil, ErrUserNotFound
	}

	start := l.now()
	if startDate != nil {
		start = *startDate
	}

	sub := &models.UserSubscription{
		UserID:    userID,
		PlanID:    planID,
		StartDate: start,
		EndDate:   CycleEndDate(start, plan.BillingCycle),
		IsActive:  true,
	}
	if err := l.subs.ReplaceActive(sub); err != nil {
		return nil, err
	}

	if l.activity != nil {
		l.activity.RecordPlanAssigned(userID, plan.Name)
	}
	sub.Plan = *plan
	return sub, nil
}

// AssignWithPeriod grants a plan with explicit, provider-supplied period
// bounds and tags the record with the provider's subscription id. Called by
// webhook reconciliation, so a duplicate external id means the event was
// already applied: the existing record is returned and created is false.
func (l *Ledger) AssignWithPeriod(ctx context.Context, userID, planID uint, start, end time.Time, externalID string) (*models.UserSubscription, bool, error) {
	_ = ctx
	plan, err := l.plans.GetByID(planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrPlanNotFound
		}
		return nil, false, err
	}
	if _, err := l.users.GetByID(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, err
	}

	if existing, err := l.subs.GetByExternalID(externalID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	sub := &models.UserSubscription{
		UserID:                 userID,
		PlanID:                 planID,
		StartDate:              start,
		EndDate:                end,
		IsActive:               true,
		ExternalSubscriptionID: &externalID,
	}
	if err := l.subs.ReplaceActive(sub); err != nil {
		// A concurrent delivery of the same event won the insert race; its
		// row is the authoritative one.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, lookupErr := l.subs.GetByExternalID(externalID)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	if l.activity != nil {
		l.activity.RecordPlanAssigned(userID, plan.Name)
	}
	sub.Plan = *plan
	return sub, true, nil
}

// Get returns a subscription by id with its plan preloaded.
func (l *Ledger) Get(ctx context.Context, subscriptionID uint) (*models.UserSubscription, error) {
	_ = ctx
	sub, err := l.subs.GetByID(subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// GetActive returns the user's active, unexpired subscription or nil when
// the user holds none.
func (l *Ledger) GetActive(ctx context.Context, userID uint) (*models.UserSubscription, error) {
	_ = ctx
	sub, err := l.subs.GetActiveByUser(userID, l.now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// HasActive reports whether the user currently holds an active, unexpired
// subscription. Used to block administrative user deletion.
func (l *Ledger) HasActive(ctx context.Context, userID uint) (bool, error) {
	sub, err := l.GetActive(ctx, userID)
	if err != nil {
		return false, err
	}
	return sub != nil, nil
}

// Cancel deactivates a subscription. Cancelling an already-inactive
// subscription succeeds and returns it unchanged.
func (l *Ledger) Cancel(ctx context.Context, subscriptionID uint) (*models.UserSubscription, error) {
	_ = ctx
	sub, err := l.subs.GetByID(subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	if !sub.IsActive {
		return sub, nil
	}

	sub.IsActive = false
	sub.ActiveUserID = nil
	if err := l.subs.Save(sub); err != nil {
		return nil, err
	}
	if l.activity != nil {
		l.activity.RecordPlanCancelled(sub.UserID, sub.Plan.Name)
	}
	return sub, nil
}

// Renew extends a subscription's end date in place. The extension only moves
// forward, so delivering a stale renewal after a newer one is a no-op.
func (l *Ledger) Renew(ctx context.Context, subscriptionID uint, newEndDate time.Time) (*models.UserSubscription, error) {
	_ = ctx
	if _, err := l.subs.GetByID(subscriptionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	if _, err := l.subs.RenewIfLater(subscriptionID, newEndDate); err != nil {
		return nil, err
	}
	return l.subs.GetByID(subscriptionID)
}

// RenewByExternalID renews the subscription carrying the provider's
// subscription id. Returns false when no such subscription is registered.
func (l *Ledger) RenewByExternalID(ctx context.Context, externalID string, newEndDate time.Time) (bool, error) {
	sub, err := l.subs.GetByExternalID(externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := l.Renew(ctx, sub.ID, newEndDate); err != nil {
		return false, err
	}
	return true, nil
}

// DeactivateByExternalID deactivates the subscription carrying the
// provider's subscription id. Returns false when none is registered.
func (l *Ledger) DeactivateByExternalID(ctx context.Context, externalID string) (bool, error) {
	_ = ctx
	rows, err := l.subs.DeactivateByExternalID(externalID)
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// History returns all subscriptions of a user, newest first.
func (l *Ledger) History(ctx context.Context, userID uint) ([]models.UserSubscription, error) {
	_ = ctx
	return l.subs.HistoryByUser(userID)
}

// List returns a page of all subscription records plus the total count.
func (l *Ledger) List(ctx context.Context, page, limit int) ([]models.UserSubscription, int64, error) {
	_ = ctx
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	subs, err := l.subs.List((page-1)*limit, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := l.subs.Count()
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}
