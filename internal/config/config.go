package config

import (
	"os"
	"strings"
	"time"

	"github.com/wayfarer-social/backend/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	// Backend connections
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string
	// Cache TTLs
	CacheDefaultTTL time.Duration // content caches (posts, comments, popular)
	SessionTTL      time.Duration
	// Rate limiting
	RateLimitWindow time.Duration
	// Metrics retention
	MetricsRetention time.Duration // daily hit/miss counters
	ReportRetention  time.Duration // persisted daily reports
	// Maintenance scheduling
	SessionPurgeInterval   time.Duration
	PopularRefreshInterval time.Duration
	RateLimitPurgeInterval time.Duration
	DailyReportInterval    time.Duration
	MaintenanceSweepRPS    float64 // round-trips per second during purge sweeps (0 = unpaced)
	PopularPostsLimit      int     // rows fetched on a popular-posts refresh
	// Ops listener
	OpsListenAddr string
	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string  // Sentry DSN for error reporting
	SentryEnvironment string  // Sentry environment (dev, staging, production)
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	cached = &Config{
		RedisAddr:     utils.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       utils.GetEnvAsInt("REDIS_DB", 0),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),

		CacheDefaultTTL: secondsEnv("CACHE_DEFAULT_TTL_S", 3600),
		SessionTTL:      secondsEnv("SESSION_TTL_S", 86400),
		RateLimitWindow: secondsEnv("RATE_LIMIT_WINDOW_S", 3600),

		MetricsRetention: 24 * time.Hour * time.Duration(utils.GetEnvAsInt("METRICS_RETENTION_DAYS", 7)),
		ReportRetention:  24 * time.Hour * time.Duration(utils.GetEnvAsInt("REPORT_RETENTION_DAYS", 30)),

		SessionPurgeInterval:   minutesEnv("SESSION_PURGE_INTERVAL_MIN", 60),
		PopularRefreshInterval: minutesEnv("POPULAR_REFRESH_INTERVAL_MIN", 15),
		RateLimitPurgeInterval: minutesEnv("RATE_LIMIT_PURGE_INTERVAL_MIN", 360),
		DailyReportInterval:    minutesEnv("DAILY_REPORT_INTERVAL_MIN", 1440),
		MaintenanceSweepRPS:    utils.GetEnvAsFloat("MAINTENANCE_SWEEP_RPS", 100.0),
		PopularPostsLimit:      utils.GetEnvAsInt("POPULAR_POSTS_LIMIT", 20),

		OpsListenAddr: utils.GetEnv("OPS_LISTEN_ADDR", ":9090"),

		LogLevel:          strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
	}
	if cached.LogLevel == "" {
		cached.LogLevel = "info"
	}
	if cached.SentryEnvironment == "" {
		if env := os.Getenv("ENV"); env != "" {
			cached.SentryEnvironment = env
		} else {
			cached.SentryEnvironment = "development"
		}
	}
	return cached
}

func secondsEnv(name string, defaultVal int) time.Duration {
	return time.Duration(utils.GetEnvAsInt(name, defaultVal)) * time.Second
}

func minutesEnv(name string, defaultVal int) time.Duration {
	return time.Duration(utils.GetEnvAsInt(name, defaultVal)) * time.Minute
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }
