// Package cachemanager orchestrates the cache store, session store, rate
// limiter, and metrics recorder behind the read-through caching API the
// application layer consumes.
package cachemanager

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wayfarer-social/backend/internal/cachestore"
	"github.com/wayfarer-social/backend/internal/logger"
	"github.com/wayfarer-social/backend/internal/metrics"
	"github.com/wayfarer-social/backend/internal/ratelimit"
	"github.com/wayfarer-social/backend/internal/session"
	"github.com/wayfarer-social/backend/internal/tracing"
)

// SessionMaxAge is the validity horizon for the lazy expiry check applied
// on top of backend TTL eviction.
const SessionMaxAge = 24 * time.Hour

// PostFetcher loads a post from the source of truth on a cache miss.
// Returning a nil map with a nil error means the post does not exist.
type PostFetcher func(ctx context.Context, postID int64) (map[string]any, error)

// CommentsFetcher loads a post's comments from the source of truth.
type CommentsFetcher func(ctx context.Context, postID int64) ([]map[string]any, error)

// Manager is the single ownership root for the cache subsystem. All
// collaborators are injected at construction; there is no package-level
// backend state.
type Manager struct {
	cache           *cachestore.Store
	sessions        *session.Store
	limiter         *ratelimit.Limiter
	recorder        *metrics.Recorder
	rateLimitWindow time.Duration
	now             func() time.Time
}

// New assembles a Manager from its collaborators.
func New(cache *cachestore.Store, sessions *session.Store, limiter *ratelimit.Limiter, recorder *metrics.Recorder) *Manager {
	return &Manager{
		cache:           cache,
		sessions:        sessions,
		limiter:         limiter,
		recorder:        recorder,
		rateLimitWindow: ratelimit.DefaultWindow,
		now:             time.Now,
	}
}

// SetRateLimitWindow overrides the window applied by CheckRateLimit.
// Zero keeps the current setting.
func (m *Manager) SetRateLimitWindow(window time.Duration) {
	if window > 0 {
		m.rateLimitWindow = window
	}
}

// SetClock overrides the manager's clock, for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// GetOrCachePost returns the post from cache, or fetches and caches it on
// a miss. A nil fetch result is returned uncached: there is no negative
// caching, so absent posts are re-fetched on every call. Two concurrent
// misses may both fetch and both write (last write wins); population is
// not single-flight.
func (m *Manager) GetOrCachePost(ctx context.Context, postID int64, fetch PostFetcher) (map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "cachemanager.GetOrCachePost")
	defer span.End()
	span.SetAttributes(attribute.Int64("post.id", postID))

	cached, err := m.cache.GetCachedPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		m.recordHit(ctx, "posts")
		return cached, nil
	}

	m.recordMiss(ctx, "posts")
	data, err := fetch(ctx, postID)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := m.cache.CachePost(ctx, postID, data, 0); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// GetPostComments returns a post's comments from cache, fetching and
// caching them on a miss. An empty fetch result is returned uncached.
func (m *Manager) GetPostComments(ctx context.Context, postID int64, fetch CommentsFetcher) ([]map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "cachemanager.GetPostComments")
	defer span.End()
	span.SetAttributes(attribute.Int64("post.id", postID))

	cached, err := m.cache.GetCachedComments(ctx, postID)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		m.recordHit(ctx, "comments")
		return cached, nil
	}

	m.recordMiss(ctx, "comments")
	comments, err := fetch(ctx, postID)
	if err != nil {
		return nil, err
	}
	if len(comments) > 0 {
		if err := m.cache.CacheComments(ctx, postID, comments, 0); err != nil {
			return nil, err
		}
	}
	return comments, nil
}

// UpdatePopularPosts writes through the popular-posts list.
func (m *Manager) UpdatePopularPosts(ctx context.Context, posts []map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "cachemanager.UpdatePopularPosts")
	defer span.End()
	return m.cache.SetPopularPosts(ctx, posts, 0)
}

// ManageUserSession creates (or replaces) the user's session record,
// counting the write in the sessions category.
func (m *Manager) ManageUserSession(ctx context.Context, userID int64, data map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "cachemanager.ManageUserSession")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	if err := m.sessions.Create(ctx, userID, data, 0); err != nil {
		m.recordMiss(ctx, "sessions")
		return err
	}
	metrics.SessionsCreated.Inc()
	m.recordHit(ctx, "sessions")
	return nil
}

// ValidateSession returns the user's session if it exists and is younger
// than SessionMaxAge. A stale session found during validation is deleted
// before nil is returned (lazy expiry on top of backend TTL).
func (m *Manager) ValidateSession(ctx context.Context, userID int64) (map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "cachemanager.ValidateSession")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	sess, err := m.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	createdAt, ok := session.CreatedAt(sess)
	if !ok || m.now().UTC().Sub(createdAt) > SessionMaxAge {
		metrics.SessionsExpiredLazily.Inc()
		if _, err := m.sessions.Delete(ctx, userID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return sess, nil
}

// DeleteSession removes a user's session (logout).
func (m *Manager) DeleteSession(ctx context.Context, userID int64) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "cachemanager.DeleteSession")
	defer span.End()
	return m.sessions.Delete(ctx, userID)
}

// CheckRateLimit reports whether the subject may perform the action
// within the configured window (one hour unless overridden). Backend
// failures propagate so the caller can distinguish "denied" from
// "couldn't check".
func (m *Manager) CheckRateLimit(ctx context.Context, subject, action string, limit int) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "cachemanager.CheckRateLimit")
	defer span.End()

	allowed, err := m.limiter.Allow(ctx, subject, action, limit, m.rateLimitWindow)
	if err != nil {
		return false, err
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	metrics.RateLimitDecisions.WithLabelValues(action, outcome).Inc()
	return allowed, nil
}

// InvalidatePost expires a post's cache entry by overwriting it with a
// null payload carrying a one-second TTL. Expedited expiry, not an
// atomic delete.
func (m *Manager) InvalidatePost(ctx context.Context, postID int64) error {
	ctx, span := tracing.StartSpan(ctx, "cachemanager.InvalidatePost")
	defer span.End()
	span.SetAttributes(attribute.Int64("post.id", postID))
	return m.cache.CachePost(ctx, postID, nil, time.Second)
}

// Statistics is the aggregate view returned by CacheStatistics.
type Statistics struct {
	GeneralStats  *metrics.DailyReport `json:"general_stats"`
	MemoryUsage   map[string]string    `json:"memory_usage"`
	KeyStatistics map[string]int       `json:"key_statistics"`
}

// CacheStatistics aggregates the recorder's outputs for reporting. The
// embedded daily report is best-effort; memory and key statistics
// propagate backend failures.
func (m *Manager) CacheStatistics(ctx context.Context) (*Statistics, error) {
	ctx, span := tracing.StartSpan(ctx, "cachemanager.CacheStatistics")
	defer span.End()

	memory, err := m.recorder.MemoryUsage(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := m.recorder.KeyStatistics(ctx)
	if err != nil {
		return nil, err
	}
	return &Statistics{
		GeneralStats:  m.recorder.GenerateDailyReport(ctx),
		MemoryUsage:   memory,
		KeyStatistics: keys,
	}, nil
}

// recordHit counts a hit without letting a metrics failure disturb the
// request path.
func (m *Manager) recordHit(ctx context.Context, category string) {
	if err := m.recorder.RecordHit(ctx, category); err != nil {
		logError(ctx, category, "hit", err)
	}
}

func (m *Manager) recordMiss(ctx context.Context, category string) {
	if err := m.recorder.RecordMiss(ctx, category); err != nil {
		logError(ctx, category, "miss", err)
	}
}

func logError(ctx context.Context, category, event string, err error) {
	logger.ErrorContext(ctx, "failed to record cache event",
		"category", category, "event", event, "error", err)
}
