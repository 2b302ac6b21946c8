package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/wayfarer-social/backend/internal/kvstore"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRecordAndCacheStats(t *testing.T) {
	kv := kvstore.NewMemory()
	rec := NewRecorder(kv)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	rec.SetClock(fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := rec.RecordHit(ctx, "posts"); err != nil {
			t.Fatalf("RecordHit failed: %v", err)
		}
	}
	if err := rec.RecordMiss(ctx, "posts"); err != nil {
		t.Fatalf("RecordMiss failed: %v", err)
	}

	stats, err := rec.CacheStats(ctx, "posts", 1)
	if err != nil {
		t.Fatalf("CacheStats failed: %v", err)
	}
	if stats.Category != "posts" {
		t.Errorf("category = %q, want posts", stats.Category)
	}
	if stats.TotalHits != 2 || stats.TotalMisses != 1 {
		t.Errorf("totals = %d/%d, want 2/1", stats.TotalHits, stats.TotalMisses)
	}
	want := 2.0 / 3.0
	if diff := stats.HitRatio - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("hit ratio = %v, want %v", stats.HitRatio, want)
	}
	if len(stats.DailyStats) != 1 || stats.DailyStats[0].Date != "2026-08-31" {
		t.Errorf("unexpected daily stats: %#v", stats.DailyStats)
	}
}

func TestCacheStatsMissingDays(t *testing.T) {
	kv := kvstore.NewMemory()
	rec := NewRecorder(kv)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	rec.SetClock(fixedClock(now))
	ctx := context.Background()

	// One hit yesterday, nothing today.
	kv.SetWithoutTTL("metrics:hits:comments:2026-08-30", "5")

	stats, err := rec.CacheStats(ctx, "comments", 3)
	if err != nil {
		t.Fatalf("CacheStats failed: %v", err)
	}
	if len(stats.DailyStats) != 3 {
		t.Fatalf("got %d days, want 3", len(stats.DailyStats))
	}
	// Today first, then walking backwards; absent buckets read as zero.
	if stats.DailyStats[0].Date != "2026-08-31" || stats.DailyStats[0].Hits != 0 {
		t.Errorf("day 0 = %#v, want empty 2026-08-31", stats.DailyStats[0])
	}
	if stats.DailyStats[1].Date != "2026-08-30" || stats.DailyStats[1].Hits != 5 {
		t.Errorf("day 1 = %#v, want 5 hits on 2026-08-30", stats.DailyStats[1])
	}
	if stats.TotalHits != 5 || stats.TotalMisses != 0 {
		t.Errorf("totals = %d/%d, want 5/0", stats.TotalHits, stats.TotalMisses)
	}
	if stats.HitRatio != 1.0 {
		t.Errorf("hit ratio = %v, want 1.0", stats.HitRatio)
	}
}

func TestCacheStatsEmptyRatio(t *testing.T) {
	rec := NewRecorder(kvstore.NewMemory())

	stats, err := rec.CacheStats(context.Background(), "posts", 7)
	if err != nil {
		t.Fatalf("CacheStats failed: %v", err)
	}
	if stats.HitRatio != 0 {
		t.Errorf("hit ratio with no traffic = %v, want 0", stats.HitRatio)
	}
	for _, day := range stats.DailyStats {
		if day.Ratio != 0 {
			t.Errorf("day %s ratio = %v, want 0", day.Date, day.Ratio)
		}
	}
}

func TestRecordRefreshesRetention(t *testing.T) {
	kv := kvstore.NewMemory()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	kv.Now = fixedClock(now)
	rec := NewRecorder(kv)
	rec.SetClock(fixedClock(now))
	rec.SetRetention(48*time.Hour, 0)
	ctx := context.Background()

	if err := rec.RecordHit(ctx, "posts"); err != nil {
		t.Fatalf("RecordHit failed: %v", err)
	}

	ttl, live, err := kv.TTL(ctx, "metrics:hits:posts:2026-08-31")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if !live || ttl != 48*time.Hour {
		t.Errorf("bucket TTL = %v live=%v, want 48h", ttl, live)
	}
}

func TestKeyStatisticsPrefixAnchored(t *testing.T) {
	kv := kvstore.NewMemory()
	rec := NewRecorder(kv)
	ctx := context.Background()

	for _, key := range []string{
		"post:1",
		"post:2",
		"comments:1",
		"session:5",
		"rate_limit:5:post",
		// Contains "post:" mid-string; must not count as a post.
		"metrics:hits:post:2026-08-31",
		"popular_posts",
	} {
		kv.SetWithoutTTL(key, "x")
	}

	stats, err := rec.KeyStatistics(ctx)
	if err != nil {
		t.Fatalf("KeyStatistics failed: %v", err)
	}
	want := map[string]int{
		"posts":       2,
		"comments":    1,
		"sessions":    1,
		"rate_limits": 1,
	}
	for bucket, n := range want {
		if stats[bucket] != n {
			t.Errorf("%s = %d, want %d", bucket, stats[bucket], n)
		}
	}
}

func TestMemoryUsage(t *testing.T) {
	kv := kvstore.NewMemory()
	kv.InfoData = map[string]map[string]string{
		"memory": {
			"used_memory_human":       "1.2M",
			"used_memory_peak_human":  "2.5M",
			"mem_fragmentation_ratio": "1.03",
		},
	}
	rec := NewRecorder(kv)

	usage, err := rec.MemoryUsage(context.Background())
	if err != nil {
		t.Fatalf("MemoryUsage failed: %v", err)
	}
	if usage["used_memory"] != "1.2M" || usage["peak_memory"] != "2.5M" || usage["fragmentation_ratio"] != "1.03" {
		t.Errorf("unexpected usage: %#v", usage)
	}
}

func TestGenerateDailyReport(t *testing.T) {
	kv := kvstore.NewMemory()
	now := time.Date(2026, 8, 31, 23, 55, 0, 0, time.UTC)
	kv.Now = fixedClock(now)
	rec := NewRecorder(kv)
	rec.SetClock(fixedClock(now))
	ctx := context.Background()

	kv.InfoData = map[string]map[string]string{
		"memory": {"used_memory_human": "900K"},
	}
	if err := rec.RecordHit(ctx, "posts"); err != nil {
		t.Fatalf("RecordHit failed: %v", err)
	}
	if err := rec.RecordMiss(ctx, "sessions"); err != nil {
		t.Fatalf("RecordMiss failed: %v", err)
	}

	report := rec.GenerateDailyReport(ctx)
	if report.Timestamp != "2026-08-31T23:55:00Z" {
		t.Errorf("timestamp = %q", report.Timestamp)
	}
	if report.MemoryUsage["used_memory"] != "900K" {
		t.Errorf("memory usage = %#v", report.MemoryUsage)
	}
	if got := report.CacheStats["posts"]; got == nil || got.TotalHits != 1 {
		t.Errorf("posts stats = %#v", got)
	}
	if got := report.CacheStats["sessions"]; got == nil || got.TotalMisses != 1 {
		t.Errorf("sessions stats = %#v", got)
	}
	if _, ok := report.CacheStats["comments"]; !ok {
		t.Error("report should cover the comments category")
	}

	// The report is persisted for later retrieval with its own retention.
	_, found, err := kv.Get(ctx, "metrics:daily_report:2026-08-31")
	if err != nil || !found {
		t.Fatalf("persisted report missing: found=%v err=%v", found, err)
	}
	ttl, live, err := kv.TTL(ctx, "metrics:daily_report:2026-08-31")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if !live || ttl != ReportTTL {
		t.Errorf("report TTL = %v live=%v, want %v", ttl, live, ReportTTL)
	}
}

func TestGenerateDailyReportBestEffort(t *testing.T) {
	kv := kvstore.NewMemory()
	kv.Fail = true
	rec := NewRecorder(kv)

	report := rec.GenerateDailyReport(context.Background())
	if report == nil {
		t.Fatal("expected an empty report, not nil")
	}
	if report.Timestamp != "" || report.MemoryUsage != nil || report.CacheStats != nil {
		t.Errorf("expected zero-value report, got %#v", report)
	}
}
