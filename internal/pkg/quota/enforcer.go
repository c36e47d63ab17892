package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nkoenig/assetvault/app/models"
	"github.com/nkoenig/assetvault/app/repository"
	"github.com/nkoenig/assetvault/internal/pkg/activitylog"
	"github.com/nkoenig/assetvault/internal/pkg/subscription"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound is returned when the requesting user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrAssetNotFound is returned when the asset does not exist or is inactive.
	ErrAssetNotFound = errors.New("asset not found or not available")
)

// UnlimitedRemaining is the sentinel remaining count for privileged users.
const UnlimitedRemaining = -1

// Download-count milestones are logged every milestoneStep downloads.
const milestoneStep = 100

// Result is the outcome of a consumption attempt. A denial carries a
// human-readable reason and zero remaining; it is not an error.
type Result struct {
	Allowed   bool             `json:"allowed"`
	Remaining int              `json:"remaining_downloads"`
	Reason    string           `json:"reason,omitempty"`
	Download  *models.Download `json:"download,omitempty"`
}

// Status is a read-only snapshot of a user's quota for the current day.
type Status struct {
	HasActiveSubscription bool       `json:"has_active_subscription"`
	PlanName              string     `json:"plan_name,omitempty"`
	DailyLimit            int        `json:"daily_limit"`
	DownloadsToday        int64      `json:"downloads_today"`
	RemainingDownloads    int        `json:"remaining_downloads"`
	SubscriptionEndDate   *time.Time `json:"subscription_end_date,omitempty"`
}

// Enforcer decides whether a download is allowed and records consumption.
// The check-then-insert sequence is serialized per user with a keyed mutex
// held across the storage transaction, so two concurrent requests can never
// both be admitted when only one slot remains.
type Enforcer struct {
	users     repository.UserRepository
	assets    repository.AssetRepository
	downloads repository.DownloadRepository
	ledger    *subscription.Ledger
	activity  *activitylog.Service
	now       func() time.Time

	mu        sync.Mutex
	userLocks map[uint]*sync.Mutex
}

// NewEnforcer creates a quota enforcer. The activity service may be nil.
func NewEnforcer(users repository.UserRepository, assets repository.AssetRepository, downloads repository.DownloadRepository, ledger *subscription.Ledger, activity *activitylog.Service) *Enforcer {
	return &Enforcer{
		users:     users,
		assets:    assets,
		downloads: downloads,
		ledger:    ledger,
		activity:  activity,
		now:       time.Now,
		userLocks: make(map[uint]*sync.Mutex),
	}
}

func (e *Enforcer) lockFor(userID uint) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.userLocks[userID] = lock
	}
	return lock
}

// dayWindow returns [server-local midnight, next midnight) around now. The
// quota day is the server's wall-clock day, not the user's.
func (e *Enforcer) dayWindow() (time.Time, time.Time) {
	now := e.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return midnight, midnight.AddDate(0, 0, 1)
}

// CheckAndConsume admits or denies one download and, when admitted, records
// it. Admins are always admitted with unlimited remaining.
func (e *Enforcer) CheckAndConsume(ctx context.Context, userID, assetID uint, ipAddress, userAgent string) (*Result, error) {
	user, err := e.users.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	asset, err := e.assets.GetByID(assetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}
	if !asset.IsActive {
		return nil, ErrAssetNotFound
	}

	windowStart, windowEnd := e.dayWindow()
	record := &models.Download{
		UserID:       userID,
		AssetID:      assetID,
		DownloadedAt: e.now(),
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
	}

	if user.IsAdmin() {
		// Limit 0 is unlimited here and only here.
		_, assetDownloads, ok, err := e.downloads.ConsumeUnderLimit(record, 0, windowStart, windowEnd)
		if err != nil || !ok {
			if err == nil {
				err = fmt.Errorf("failed to record admin download")
			}
			return nil, err
		}
		e.recordMilestone(asset, assetDownloads)
		return &Result{Allowed: true, Remaining: UnlimitedRemaining, Download: record}, nil
	}

	sub, err := e.ledger.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &Result{Allowed: false, Remaining: 0, Reason: "No active subscription found"}, nil
	}

	limit := sub.Plan.DailyDownloadLimit
	if limit <= 0 {
		// Unlimited plans are reserved for admins; a zero limit on a
		// regular user's plan admits nothing.
		return &Result{Allowed: false, Remaining: 0, Reason: deniedReason(limit)}, nil
	}

	lock := e.lockFor(userID)
	lock.Lock()
	consumed, assetDownloads, ok, err := e.downloads.ConsumeUnderLimit(record, limit, windowStart, windowEnd)
	lock.Unlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Result{Allowed: false, Remaining: 0, Reason: deniedReason(limit)}, nil
	}

	e.recordMilestone(asset, assetDownloads)
	return &Result{
		Allowed:   true,
		Remaining: limit - int(consumed) - 1,
		Download:  record,
	}, nil
}

// Status returns a read-only snapshot of the user's quota for the current
// day window without consuming anything.
func (e *Enforcer) Status(ctx context.Context, userID uint) (*Status, error) {
	user, err := e.users.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	windowStart, windowEnd := e.dayWindow()
	downloadsToday, err := e.downloads.CountForUserBetween(userID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	sub, err := e.ledger.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &Status{
		DownloadsToday: downloadsToday,
	}
	if sub != nil {
		status.HasActiveSubscription = true
		status.PlanName = sub.Plan.Name
		status.DailyLimit = sub.Plan.DailyDownloadLimit
		endDate := sub.EndDate
		status.SubscriptionEndDate = &endDate
		if remaining := status.DailyLimit - int(downloadsToday); remaining > 0 {
			status.RemainingDownloads = remaining
		}
	}
	if user.IsAdmin() {
		status.RemainingDownloads = UnlimitedRemaining
	}
	return status, nil
}

// Asset returns an active asset by id.
func (e *Enforcer) Asset(ctx context.Context, assetID uint) (*models.Asset, error) {
	_ = ctx
	asset, err := e.assets.GetByID(assetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}
	if !asset.IsActive {
		return nil, ErrAssetNotFound
	}
	return asset, nil
}

// AssetByUUID returns an active asset by its public uuid.
func (e *Enforcer) AssetByUUID(ctx context.Context, uuid string) (*models.Asset, error) {
	_ = ctx
	asset, err := e.assets.GetByUUID(uuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}
	if !asset.IsActive {
		return nil, ErrAssetNotFound
	}
	return asset, nil
}

// History returns a page of the user's download records, newest first.
func (e *Enforcer) History(ctx context.Context, userID uint, offset, limit int) ([]models.Download, error) {
	_ = ctx
	return e.downloads.HistoryByUser(userID, offset, limit)
}

// recordMilestone logs a milestone when the committed counter value lands
// exactly on a step boundary. downloadCount comes out of the consumption
// transaction, so concurrent downloads each see a distinct value.
func (e *Enforcer) recordMilestone(asset *models.Asset, downloadCount int64) {
	if e.activity == nil {
		return
	}
	if downloadCount > 0 && downloadCount%milestoneStep == 0 {
		e.activity.RecordAssetMilestone(asset.ID, asset.Name, downloadCount)
	}
}

func deniedReason(limit int) string {
	return fmt.Sprintf("Daily download limit of %d reached. Limit resets at midnight.", limit)
}
