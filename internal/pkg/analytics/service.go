package analytics

import (
	"context"
	"time"

	"github.com/nkoenig/assetvault/app/models"
	"github.com/nkoenig/assetvault/app/repository"
	"github.com/nkoenig/assetvault/internal/pkg/payments"
)

const (
	dailyWindowDays = 7
	topAssetsLimit  = 10
	recentActivity  = 20
)

// DailyCount is the number of downloads on one calendar day.
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// RevenueStats aggregates revenue over all subscriptions created to date,
// cancelled and expired ones included. Each subscription contributes its
// plan's current cycle price, rounded to cents per subscription the same way
// the provider charge was.
type RevenueStats struct {
	TotalRevenue   float64 `json:"total_revenue"`
	MonthlyRevenue float64 `json:"monthly_revenue"`
	Currency       string  `json:"currency"`
}

// DashboardStats is the admin overview.
type DashboardStats struct {
	TotalUsers          int64                           `json:"total_users"`
	ActiveUsers         int64                           `json:"active_users"`
	TotalAssets         int64                           `json:"total_assets"`
	TotalDownloads      int64                           `json:"total_downloads"`
	DownloadsToday      int64                           `json:"downloads_today"`
	ActiveSubscriptions int64                           `json:"active_subscriptions"`
	LapsedSubscriptions int64                           `json:"lapsed_subscriptions"`
	Revenue             RevenueStats                    `json:"revenue"`
	DailyDownloads      []DailyCount                    `json:"daily_downloads"`
	TopAssets           []repository.AssetDownloadCount `json:"top_assets"`
	RecentActivity      []models.Activity               `json:"recent_activity"`
}

// UserStats is the per-user usage view.
type UserStats struct {
	TotalDownloads  int64                     `json:"total_downloads"`
	DownloadsToday  int64                     `json:"downloads_today"`
	RecentDownloads []models.Download         `json:"recent_downloads"`
	Subscriptions   []models.UserSubscription `json:"subscriptions"`
	RecentActivity  []models.Activity         `json:"recent_activity,omitempty"`
}

// Service aggregates usage and revenue figures for dashboards. It only
// reads; nothing here mutates state.
type Service struct {
	users     repository.UserRepository
	assets    repository.AssetRepository
	downloads repository.DownloadRepository
	subs      repository.SubscriptionRepository
	activity  repository.ActivityRepository
	currency  string
	now       func() time.Time
}

// NewService creates an analytics service.
func NewService(users repository.UserRepository, assets repository.AssetRepository, downloads repository.DownloadRepository, subs repository.SubscriptionRepository, activity repository.ActivityRepository, currency string) *Service {
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		users:     users,
		assets:    assets,
		downloads: downloads,
		subs:      subs,
		activity:  activity,
		currency:  currency,
		now:       time.Now,
	}
}

// Dashboard assembles the admin overview.
func (s *Service) Dashboard(ctx context.Context) (*DashboardStats, error) {
	_ = ctx
	now := s.now()
	midnight := startOfDay(now)

	stats := &DashboardStats{}
	var err error

	if stats.TotalUsers, err = s.users.Count(); err != nil {
		return nil, err
	}
	if stats.ActiveUsers, err = s.users.CountActive(); err != nil {
		return nil, err
	}
	if stats.TotalAssets, err = s.assets.CountActive(); err != nil {
		return nil, err
	}
	if stats.TotalDownloads, err = s.downloads.Count(); err != nil {
		return nil, err
	}
	if stats.DownloadsToday, err = s.downloads.CountBetween(midnight, midnight.AddDate(0, 0, 1)); err != nil {
		return nil, err
	}
	if stats.ActiveSubscriptions, err = s.subs.CountCurrent(now); err != nil {
		return nil, err
	}
	if stats.LapsedSubscriptions, err = s.subs.CountLapsed(now); err != nil {
		return nil, err
	}
	if stats.Revenue, err = s.revenue(now); err != nil {
		return nil, err
	}
	if stats.DailyDownloads, err = s.dailyDownloads(midnight); err != nil {
		return nil, err
	}
	if stats.TopAssets, err = s.downloads.TopAssets(topAssetsLimit); err != nil {
		return nil, err
	}
	if s.activity != nil {
		if stats.RecentActivity, err = s.activity.Recent(recentActivity); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// UserStats assembles the usage view for one user.
func (s *Service) UserStats(ctx context.Context, userID uint) (*UserStats, error) {
	_ = ctx
	midnight := startOfDay(s.now())

	stats := &UserStats{}
	var err error

	if stats.TotalDownloads, err = s.downloads.CountForUser(userID); err != nil {
		return nil, err
	}
	if stats.DownloadsToday, err = s.downloads.CountForUserBetween(userID, midnight, midnight.AddDate(0, 0, 1)); err != nil {
		return nil, err
	}
	if stats.RecentDownloads, err = s.downloads.HistoryByUser(userID, 0, 10); err != nil {
		return nil, err
	}
	if stats.Subscriptions, err = s.subs.HistoryByUser(userID); err != nil {
		return nil, err
	}
	if s.activity != nil {
		if stats.RecentActivity, err = s.activity.RecentForUser(userID, 10); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// revenue sums the cycle price of every subscription ever created, plus the
// same figure restricted to subscriptions created this calendar month. A
// cancelled or expired subscription was still paid for, so it keeps counting.
// Prices come from the plan as it is configured now, not from what was
// historically charged.
func (s *Service) revenue(now time.Time) (RevenueStats, error) {
	subs, err := s.subs.ListWithPlans()
	if err != nil {
		return RevenueStats{}, err
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	var totalCents, monthCents int64
	for _, sub := range subs {
		cents := payments.PriceCents(sub.Plan.BasePrice, sub.Plan.BillingCycle, sub.Plan.YearlyDiscount)
		totalCents += cents
		if !sub.CreatedAt.Before(monthStart) {
			monthCents += cents
		}
	}
	return RevenueStats{
		TotalRevenue:   float64(totalCents) / 100,
		MonthlyRevenue: float64(monthCents) / 100,
		Currency:       s.currency,
	}, nil
}

// dailyDownloads buckets download counts per calendar day over the trailing
// week, zero-filling days without traffic.
func (s *Service) dailyDownloads(today time.Time) ([]DailyCount, error) {
	out := make([]DailyCount, 0, dailyWindowDays)
	for i := dailyWindowDays - 1; i >= 0; i-- {
		dayStart := today.AddDate(0, 0, -i)
		count, err := s.downloads.CountBetween(dayStart, dayStart.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}
		out = append(out, DailyCount{Date: dayStart.Format("2006-01-02"), Count: count})
	}
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
