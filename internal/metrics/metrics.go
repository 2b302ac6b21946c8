package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache hit/miss accounting, mirrored to Prometheus alongside the
	// daily buckets kept in the backend.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"category"}, // category: posts, comments, sessions
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"category"},
	)

	// Rate limiting
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Total number of rate limit checks by outcome",
		},
		[]string{"action", "outcome"}, // outcome: allowed, denied
	)

	// Session lifecycle
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	SessionsExpiredLazily = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_expired_lazily_total",
			Help: "Total number of sessions deleted by the validation-time expiry check",
		},
	)

	// Maintenance sweeps
	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maintenance_sweep_duration_seconds",
			Help:    "Duration of maintenance sweeps in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"sweep"}, // sweep: sessions, rate_limits, popular_posts, daily_report
	)

	SweepErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_sweep_errors_total",
			Help: "Total number of maintenance sweep failures",
		},
		[]string{"sweep"},
	)

	SessionsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_purged_total",
			Help: "Total number of session keys removed by the purge sweep",
		},
	)

	RateLimitKeysPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_keys_purged_total",
			Help: "Total number of stale rate limit keys removed by the purge sweep",
		},
	)

	// Daily report generation
	DailyReportFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "daily_report_failures_total",
			Help: "Total number of daily report generations that degraded to an empty report",
		},
	)

	// Circuit breaker around the relational source of truth
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	BreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips to open",
		},
		[]string{"name"},
	)
)
