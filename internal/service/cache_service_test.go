package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-intake-api/internal/models"
)

type slowCacheRepo struct {
	memoryCacheRepo
	deadlineSeen bool
}

func (s *slowCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	_, s.deadlineSeen = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

type cacheMetricsStub struct {
	hits, misses, writes int
}

func (c *cacheMetricsStub) RecordCacheOperation(hit bool, _ time.Duration) {
	if hit {
		c.hits++
		return
	}
	c.misses++
}

func (c *cacheMetricsStub) ObserveCacheWrite(time.Duration) {
	c.writes++
}

func TestCacheServiceNamespacesKeys(t *testing.T) {
	repo := newMemoryCacheRepo()
	metrics := &cacheMetricsStub{}
	svc := NewCacheService(repo, metrics, nil, CacheOptions{Enabled: true, Namespace: "test:"})

	var stats models.ApplicationStats
	hit, err := svc.Get(context.Background(), "stats:applications", &stats)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(context.Background(), "stats:applications", &models.ApplicationStats{Totals: models.StatusTotals{Total: 2}}, 0))
	assert.Contains(t, repo.values, "test:stats:applications")

	hit, err = svc.Get(context.Background(), "stats:applications", &stats)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 2, stats.Totals.Total)
	assert.Equal(t, cacheMetricsStub{hits: 1, misses: 1, writes: 1}, *metrics)
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, nil, CacheOptions{Enabled: false})

	require.NoError(t, svc.Set(context.Background(), "k", &models.ApplicationStats{}, time.Minute))
	assert.Empty(t, repo.values)
	hit, err := svc.Get(context.Background(), "k", &models.ApplicationStats{})
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, (*CacheService)(nil).Enabled())
}

func TestCacheServiceBoundsSlowBackend(t *testing.T) {
	repo := &slowCacheRepo{memoryCacheRepo: *newMemoryCacheRepo()}
	svc := NewCacheService(repo, nil, nil, CacheOptions{Enabled: true, OpTimeout: 10 * time.Millisecond})

	start := time.Now()
	hit, err := svc.Get(context.Background(), "stats:applications", &models.ApplicationStats{})
	assert.False(t, hit)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, repo.deadlineSeen)
	assert.Less(t, time.Since(start), time.Second)
}
