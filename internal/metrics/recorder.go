// Package metrics records cache hit/miss events into daily UTC-dated
// counters in the key-value backend and mirrors them to Prometheus. It
// also aggregates those buckets into reports. The backend buckets are the
// source for reporting; the Prometheus side feeds the ops /metrics
// endpoint.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wayfarer-social/backend/internal/codec"
	"github.com/wayfarer-social/backend/internal/errorreporting"
	"github.com/wayfarer-social/backend/internal/kvstore"
	"github.com/wayfarer-social/backend/internal/logger"
)

const (
	// CounterTTL is how long a daily hit/miss bucket is retained.
	CounterTTL = 7 * 24 * time.Hour

	// ReportTTL is how long a persisted daily report is retained.
	ReportTTL = 30 * 24 * time.Hour

	dateLayout = "2006-01-02"
)

// reportCategories are the cache categories included in the daily report.
var reportCategories = []string{"posts", "comments", "sessions"}

// DayStats is one calendar day's hit/miss bucket for a category.
type DayStats struct {
	Date   string  `json:"date"`
	Hits   int64   `json:"hits"`
	Misses int64   `json:"misses"`
	Ratio  float64 `json:"ratio"`
}

// CacheStats aggregates trailing daily buckets for a category.
type CacheStats struct {
	Category    string     `json:"cache_type"`
	TotalHits   int64      `json:"total_hits"`
	TotalMisses int64      `json:"total_misses"`
	HitRatio    float64    `json:"hit_ratio"`
	DailyStats  []DayStats `json:"daily_stats"`
}

// DailyReport is a best-effort snapshot of backend usage. It is a cache
// of cache metrics, never a source of truth.
type DailyReport struct {
	Timestamp     string                 `json:"timestamp"`
	MemoryUsage   map[string]string      `json:"memory_usage"`
	KeyStatistics map[string]int         `json:"key_statistics"`
	CacheStats    map[string]*CacheStats `json:"cache_stats"`
}

// Recorder tracks cache events and produces aggregate statistics.
type Recorder struct {
	kv         kvstore.Store
	counterTTL time.Duration
	reportTTL  time.Duration
	now        func() time.Time
}

// NewRecorder creates a Recorder over the given backend with the default
// retention windows.
func NewRecorder(kv kvstore.Store) *Recorder {
	return &Recorder{kv: kv, counterTTL: CounterTTL, reportTTL: ReportTTL, now: time.Now}
}

// SetRetention overrides the counter and report retention windows.
// Zero values keep the current setting.
func (r *Recorder) SetRetention(counter, report time.Duration) {
	if counter > 0 {
		r.counterTTL = counter
	}
	if report > 0 {
		r.reportTTL = report
	}
}

// SetClock overrides the recorder's clock, for tests.
func (r *Recorder) SetClock(now func() time.Time) { r.now = now }

func (r *Recorder) today() string { return r.now().UTC().Format(dateLayout) }

func hitsKey(category, date string) string {
	return fmt.Sprintf("metrics:hits:%s:%s", category, date)
}

func missesKey(category, date string) string {
	return fmt.Sprintf("metrics:misses:%s:%s", category, date)
}

// RecordHit counts a cache hit for the category in today's bucket,
// refreshing the bucket's retention TTL.
func (r *Recorder) RecordHit(ctx context.Context, category string) error {
	CacheHits.WithLabelValues(category).Inc()
	return r.bump(ctx, hitsKey(category, r.today()))
}

// RecordMiss counts a cache miss for the category in today's bucket,
// refreshing the bucket's retention TTL.
func (r *Recorder) RecordMiss(ctx context.Context, category string) error {
	CacheMisses.WithLabelValues(category).Inc()
	return r.bump(ctx, missesKey(category, r.today()))
}

func (r *Recorder) bump(ctx context.Context, key string) error {
	if _, err := r.kv.Incr(ctx, key); err != nil {
		return err
	}
	_, err := r.kv.Expire(ctx, key, r.counterTTL)
	return err
}

// CacheStats aggregates the trailing `days` daily buckets for a category,
// today inclusive. Missing buckets count as zero; ratios guard
// divide-by-zero.
func (r *Recorder) CacheStats(ctx context.Context, category string, days int) (*CacheStats, error) {
	stats := &CacheStats{
		Category:   category,
		DailyStats: make([]DayStats, 0, days),
	}
	today := r.now().UTC()
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i).Format(dateLayout)
		hits, err := r.counter(ctx, hitsKey(category, date))
		if err != nil {
			return nil, err
		}
		misses, err := r.counter(ctx, missesKey(category, date))
		if err != nil {
			return nil, err
		}
		stats.TotalHits += hits
		stats.TotalMisses += misses
		stats.DailyStats = append(stats.DailyStats, DayStats{
			Date:   date,
			Hits:   hits,
			Misses: misses,
			Ratio:  ratio(hits, misses),
		})
	}
	stats.HitRatio = ratio(stats.TotalHits, stats.TotalMisses)
	return stats, nil
}

func (r *Recorder) counter(ctx context.Context, key string) (int64, error) {
	raw, found, err := r.kv.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func ratio(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// KeyStatistics scans the full key space and counts keys per known
// namespace. Matching is anchored at the key prefix so a session key that
// merely contains "post:" somewhere is not miscounted. Keys outside the
// known namespaces are excluded.
func (r *Recorder) KeyStatistics(ctx context.Context) (map[string]int, error) {
	stats := map[string]int{
		"posts":       0,
		"comments":    0,
		"sessions":    0,
		"rate_limits": 0,
	}
	prefixes := []struct {
		prefix string
		bucket string
	}{
		{"post:", "posts"},
		{"comments:", "comments"},
		{"session:", "sessions"},
		{"rate_limit:", "rate_limits"},
	}
	err := r.kv.Scan(ctx, "*", func(key string) error {
		for _, p := range prefixes {
			if strings.HasPrefix(key, p.prefix) {
				stats[p.bucket]++
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// MemoryUsage reports backend memory figures from INFO.
func (r *Recorder) MemoryUsage(ctx context.Context) (map[string]string, error) {
	info, err := r.kv.Info(ctx, "memory")
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"used_memory":         info["used_memory_human"],
		"peak_memory":         info["used_memory_peak_human"],
		"fragmentation_ratio": info["mem_fragmentation_ratio"],
	}, nil
}

// GenerateDailyReport composes memory usage, key statistics, and one-day
// cache stats for the report categories, and persists the result under
// "metrics:daily_report:<date>". Report generation is best-effort: any
// failure is logged and reported, and an empty report is returned rather
// than an error.
func (r *Recorder) GenerateDailyReport(ctx context.Context) *DailyReport {
	report, err := r.buildReport(ctx)
	if err != nil {
		logger.Error("daily report generation failed", "error", err)
		errorreporting.CaptureError(err)
		DailyReportFailures.Inc()
		return &DailyReport{}
	}
	return report
}

func (r *Recorder) buildReport(ctx context.Context) (*DailyReport, error) {
	memory, err := r.MemoryUsage(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := r.KeyStatistics(ctx)
	if err != nil {
		return nil, err
	}
	report := &DailyReport{
		Timestamp:     r.now().UTC().Format(time.RFC3339),
		MemoryUsage:   memory,
		KeyStatistics: keys,
		CacheStats:    make(map[string]*CacheStats, len(reportCategories)),
	}
	for _, category := range reportCategories {
		stats, err := r.CacheStats(ctx, category, 1)
		if err != nil {
			return nil, err
		}
		report.CacheStats[category] = stats
	}

	payload, err := codec.Marshal(report)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("metrics:daily_report:%s", r.today())
	if err := r.kv.SetWithExpiry(ctx, key, payload, r.reportTTL); err != nil {
		return nil, err
	}
	return report, nil
}
