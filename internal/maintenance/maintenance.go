// Package maintenance runs the periodic backend sweeps: purging expired
// sessions, refreshing the popular-posts cache from the data layer,
// reclaiming stale rate-limit counters, and generating the daily metrics
// report. None of these are required for correctness (backend TTLs do
// the real eviction), so every failure is logged, counted, and reported,
// and the loop keeps running.
package maintenance

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/wayfarer-social/backend/internal/cachemanager"
	"github.com/wayfarer-social/backend/internal/errorreporting"
	"github.com/wayfarer-social/backend/internal/kvstore"
	"github.com/wayfarer-social/backend/internal/logger"
	"github.com/wayfarer-social/backend/internal/metrics"
	"github.com/wayfarer-social/backend/internal/ratelimit"
	"github.com/wayfarer-social/backend/internal/session"
)

// PopularPostsFetcher loads the current popular posts from the data
// layer for the refresh sweep.
type PopularPostsFetcher func(ctx context.Context) ([]map[string]any, error)

// Intervals configures the sweep schedule.
type Intervals struct {
	SessionPurge   time.Duration // default 1h
	PopularRefresh time.Duration // default 15m
	RateLimitPurge time.Duration // default 6h
	DailyReport    time.Duration // default 24h
}

func (i *Intervals) applyDefaults() {
	if i.SessionPurge == 0 {
		i.SessionPurge = time.Hour
	}
	if i.PopularRefresh == 0 {
		i.PopularRefresh = 15 * time.Minute
	}
	if i.RateLimitPurge == 0 {
		i.RateLimitPurge = 6 * time.Hour
	}
	if i.DailyReport == 0 {
		i.DailyReport = 24 * time.Hour
	}
}

// Service drives the maintenance sweeps.
type Service struct {
	sessions     *session.Store
	limits       *ratelimit.Limiter
	recorder     *metrics.Recorder
	manager      *cachemanager.Manager
	fetchPopular PopularPostsFetcher
	intervals    Intervals
}

// New creates a maintenance service over the backend. Purge sweeps run
// through a rate-paced view of the store so bulk deletes cannot saturate
// the backend; sweepRPS bounds the round-trips per second (0 disables
// pacing).
func New(kv kvstore.Store, recorder *metrics.Recorder, manager *cachemanager.Manager, fetchPopular PopularPostsFetcher, intervals Intervals, sweepRPS float64) *Service {
	intervals.applyDefaults()
	swept := kv
	if sweepRPS > 0 {
		swept = &pacedStore{
			Store: kv,
			pace:  rate.NewLimiter(rate.Limit(sweepRPS), 1),
		}
	}
	return &Service{
		sessions:     session.New(swept),
		limits:       ratelimit.New(swept),
		recorder:     recorder,
		manager:      manager,
		fetchPopular: fetchPopular,
		intervals:    intervals,
	}
}

// Run executes every sweep once, then drives them on their intervals
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.RunOnce(ctx)

	sessionTick := time.NewTicker(s.intervals.SessionPurge)
	popularTick := time.NewTicker(s.intervals.PopularRefresh)
	rateTick := time.NewTicker(s.intervals.RateLimitPurge)
	reportTick := time.NewTicker(s.intervals.DailyReport)
	defer sessionTick.Stop()
	defer popularTick.Stop()
	defer rateTick.Stop()
	defer reportTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sessionTick.C:
			s.PurgeSessions(ctx)
		case <-popularTick.C:
			s.RefreshPopularPosts(ctx)
		case <-rateTick.C:
			s.PurgeRateLimits(ctx)
		case <-reportTick.C:
			s.GenerateReport(ctx)
		}
	}
}

// RunOnce executes each sweep a single time.
func (s *Service) RunOnce(ctx context.Context) {
	s.PurgeSessions(ctx)
	s.RefreshPopularPosts(ctx)
	s.PurgeRateLimits(ctx)
	s.GenerateReport(ctx)
}

// PurgeSessions removes session keys without a live TTL.
func (s *Service) PurgeSessions(ctx context.Context) {
	done := track("sessions")
	purged, err := s.sessions.PurgeExpired(ctx)
	done()
	if err != nil {
		sweepFailed("sessions", err)
		return
	}
	metrics.SessionsPurged.Add(float64(purged))
	logger.Info("purged expired sessions", "count", purged)
}

// RefreshPopularPosts reloads the popular-posts list from the data layer
// and writes it through the cache.
func (s *Service) RefreshPopularPosts(ctx context.Context) {
	if s.fetchPopular == nil {
		return
	}
	done := track("popular_posts")
	defer done()
	posts, err := s.fetchPopular(ctx)
	if err != nil {
		sweepFailed("popular_posts", err)
		return
	}
	if err := s.manager.UpdatePopularPosts(ctx, posts); err != nil {
		sweepFailed("popular_posts", err)
		return
	}
	logger.Info("refreshed popular posts cache", "count", len(posts))
}

// PurgeRateLimits removes rate-limit counters without a live TTL.
func (s *Service) PurgeRateLimits(ctx context.Context) {
	done := track("rate_limits")
	purged, err := s.limits.PurgeStale(ctx)
	done()
	if err != nil {
		sweepFailed("rate_limits", err)
		return
	}
	metrics.RateLimitKeysPurged.Add(float64(purged))
	logger.Info("purged stale rate limit counters", "count", purged)
}

// GenerateReport produces and persists the daily metrics report.
func (s *Service) GenerateReport(ctx context.Context) {
	done := track("daily_report")
	defer done()
	report := s.recorder.GenerateDailyReport(ctx)
	logger.Info("generated daily report", "timestamp", report.Timestamp)
}

func track(sweep string) func() {
	start := time.Now()
	return func() {
		metrics.SweepDuration.WithLabelValues(sweep).Observe(time.Since(start).Seconds())
	}
}

func sweepFailed(sweep string, err error) {
	logger.Error("maintenance sweep failed", "sweep", sweep, "error", err)
	metrics.SweepErrors.WithLabelValues(sweep).Inc()
	errorreporting.CaptureError(err)
}

// pacedStore throttles mutating sweep traffic through a token-bucket
// limiter shared across all sweeps.
type pacedStore struct {
	kvstore.Store
	pace *rate.Limiter
}

func (p *pacedStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := p.pace.Wait(ctx); err != nil {
		return false, err
	}
	return p.Store.Delete(ctx, key)
}
