package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
	"github.com/noah-isme/scholarship-intake-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-intake-api/pkg/errors"
)

const (
	statsCacheKey     = "stats:applications"
	statsCachePattern = "stats:*"
	statsMonths       = 6
)

type statsStore interface {
	CountBy(ctx context.Context, column repository.GroupColumn) ([]models.CountBucket, error)
	GradeBuckets(ctx context.Context) ([]models.CountBucket, error)
	MonthlySubmissions(ctx context.Context, since time.Time) ([]models.MonthlyCount, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// StatsService builds the dashboard aggregate and caches it between mutations.
type StatsService struct {
	repo   statsStore
	cache  statsCache
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewStatsService constructs the service. cache may be nil.
func NewStatsService(repo statsStore, cache statsCache, ttl time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{repo: repo, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

// Summary returns the aggregate and whether it came from the cache. Cache failures fall
// through to the database.
func (s *StatsService) Summary(ctx context.Context) (*models.ApplicationStats, bool, error) {
	if cached, hit := s.tryCache(ctx); hit {
		return cached, true, nil
	}
	stats, err := s.compose(ctx)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, stats)
	return stats, false, nil
}

// Invalidate drops cached aggregates after a mutation.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, statsCachePattern); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

func (s *StatsService) compose(ctx context.Context) (*models.ApplicationStats, error) {
	byStatus, err := s.repo.CountBy(ctx, repository.GroupByStatus)
	if err != nil {
		return nil, s.wrap(err)
	}
	stats := &models.ApplicationStats{Totals: statusTotals(byStatus), GeneratedAt: s.now().UTC()}

	groups := []struct {
		column repository.GroupColumn
		dest   *[]models.CountBucket
	}{
		{repository.GroupByCategory, &stats.ByCategory},
		{repository.GroupByProvince, &stats.ByProvince},
		{repository.GroupByGender, &stats.ByGender},
		{repository.GroupByUniversity, &stats.ByUniversity},
	}
	for _, group := range groups {
		buckets, err := s.repo.CountBy(ctx, group.column)
		if err != nil {
			return nil, s.wrap(err)
		}
		*group.dest = buckets
	}

	if stats.GradeBuckets, err = s.repo.GradeBuckets(ctx); err != nil {
		return nil, s.wrap(err)
	}
	monthly, err := s.repo.MonthlySubmissions(ctx, monthsAgo(s.now(), statsMonths-1))
	if err != nil {
		return nil, s.wrap(err)
	}
	stats.Monthly = fillMonths(s.now(), statsMonths, monthly)
	return stats, nil
}

func (s *StatsService) tryCache(ctx context.Context) (*models.ApplicationStats, bool) {
	if s.cache == nil {
		return nil, false
	}
	var cached models.ApplicationStats
	hit, err := s.cache.Get(ctx, statsCacheKey, &cached)
	if err != nil || !hit {
		return nil, false
	}
	return &cached, true
}

func (s *StatsService) persistCache(ctx context.Context, stats *models.ApplicationStats) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, statsCacheKey, stats, s.ttl); err != nil {
		s.logger.Warn("stats cache write failed", zap.Error(err))
	}
}

func (s *StatsService) wrap(err error) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute statistics")
}

func statusTotals(buckets []models.CountBucket) models.StatusTotals {
	var totals models.StatusTotals
	for _, bucket := range buckets {
		totals.Total += bucket.Count
		switch models.ApplicationStatus(bucket.Label) {
		case models.StatusPending:
			totals.Pending = bucket.Count
		case models.StatusUnderReview:
			totals.UnderReview = bucket.Count
		case models.StatusApproved:
			totals.Approved = bucket.Count
		case models.StatusRejected:
			totals.Rejected = bucket.Count
		}
	}
	return totals
}

// monthsAgo returns the first instant of the month n months before now.
func monthsAgo(now time.Time, n int) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month()-time.Month(n), 1, 0, 0, 0, 0, time.UTC)
}

// fillMonths returns one entry per month, oldest first, with zero for months without submissions.
func fillMonths(now time.Time, months int, counts []models.MonthlyCount) []models.MonthlyCount {
	byMonth := make(map[string]int, len(counts))
	for _, c := range counts {
		byMonth[c.Month] = c.Count
	}
	out := make([]models.MonthlyCount, 0, months)
	for i := months - 1; i >= 0; i-- {
		label := monthsAgo(now, i).Format("2006-01")
		out = append(out, models.MonthlyCount{Month: label, Count: byMonth[label]})
	}
	return out
}
