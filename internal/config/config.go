package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/bookstore-storefront/internal/obs"
	"github.com/noah-isme/bookstore-storefront/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string
	CurrencyCode       string

	UpstreamBaseURL     string
	UpstreamTimeout     time.Duration
	UpstreamMaxAttempts int
	UpstreamRetryBase   time.Duration
	UpstreamRetryJitter float64
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
	BreakerWindow       time.Duration

	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	JWTClockSkew time.Duration

	CartTTL          time.Duration
	CartLockTTL      time.Duration
	LoyaltyCacheTTL  time.Duration
	CatalogCacheTTL  time.Duration
	CatalogPageLimit int
	CatalogMaxLimit  int
	IdempotencyTTL   time.Duration

	Pricing pricing.Policy

	RateLimitWindow       time.Duration
	RateLimitMax          int
	CheckoutRateLimit     string
	BodyLimitBytes        int64
	SecurityHeaders       bool
	HSTSEnabled           bool
	ShutdownGracePeriod   time.Duration
	ReadinessProbeTimeout time.Duration

	TaskQueueEnabled  bool
	WorkerConcurrency int
	PushEndpointURL   string
	PushSecret        string
	PushReplayTTL     time.Duration
	PushMaxRetry      int
	KafkaBrokers      []string
	KafkaTopic        string

	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsBuckets   []float64
	TracingExporter  string
	TracingEndpoint  string
	TracingSampling  float64
	PprofEnabled     bool
	PprofUser        string
	PprofPass        string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CurrencyCode:       valueOrDefault(k.String("CURRENCY_CODE"), "USD"),

		UpstreamBaseURL:     strings.TrimRight(strings.TrimSpace(k.String("UPSTREAM_BASE_URL")), "/"),
		UpstreamTimeout:     parseDuration(k.String("UPSTREAM_TIMEOUT"), "3s"),
		UpstreamMaxAttempts: parseInt(k.String("UPSTREAM_MAX_ATTEMPTS"), 3),
		UpstreamRetryBase:   parseDuration(k.String("UPSTREAM_RETRY_BASE"), "100ms"),
		UpstreamRetryJitter: parseFloat(k.String("UPSTREAM_RETRY_JITTER"), 0.2),
		BreakerMinRequests:  parseInt(k.String("BREAKER_MIN_REQUESTS"), 10),
		BreakerFailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
		BreakerWindow:       parseDuration(k.String("BREAKER_WINDOW"), "30s"),

		JWTSecret:    k.String("JWT_SECRET"),
		JWTIssuer:    strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:  strings.TrimSpace(k.String("JWT_AUDIENCE")),
		JWTClockSkew: parseDuration(k.String("JWT_CLOCK_SKEW"), "30s"),

		CartTTL:          parseDuration(k.String("CART_TTL"), "168h"),
		CartLockTTL:      parseDuration(k.String("CART_LOCK_TTL"), "5s"),
		LoyaltyCacheTTL:  parseDuration(k.String("LOYALTY_CACHE_TTL"), "5m"),
		CatalogCacheTTL:  parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		CatalogPageLimit: parseInt(k.String("CATALOG_DEFAULT_LIMIT"), 20),
		CatalogMaxLimit:  parseInt(k.String("CATALOG_MAX_LIMIT"), 100),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		RateLimitWindow:       parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:          parseInt(k.String("RATE_LIMIT_MAX"), 300),
		CheckoutRateLimit:     valueOrDefault(k.String("CHECKOUT_RATE_LIMIT"), "10-M"),
		BodyLimitBytes:        int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeaders:       parseBoolDefault(k.String("SECURITY_HEADERS"), true),
		HSTSEnabled:           parseBool(k.String("SECURITY_HSTS")),
		ShutdownGracePeriod:   parseDuration(k.String("SHUTDOWN_GRACE_PERIOD"), "10s"),
		ReadinessProbeTimeout: parseDuration(k.String("READINESS_PROBE_TIMEOUT"), "500ms"),

		TaskQueueEnabled:  parseBoolDefault(k.String("TASK_QUEUE_ENABLED"), true),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 4),
		PushEndpointURL:   strings.TrimSpace(k.String("PUSH_ENDPOINT_URL")),
		PushSecret:        k.String("PUSH_SECRET"),
		PushReplayTTL:     parseDuration(k.String("PUSH_REPLAY_TTL"), "24h"),
		PushMaxRetry:      parseInt(k.String("PUSH_MAX_RETRY"), 8),
		KafkaBrokers:      splitAndTrim(k.String("KAFKA_BROKERS")),
		KafkaTopic:        valueOrDefault(k.String("KAFKA_TOPIC"), "storefront.events"),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "storefront"),
		MetricsBuckets:   obs.ParseBucketsCSV(k.String("OBS_HTTP_BUCKETS_MS")),
		TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "none"),
		TracingEndpoint:  strings.TrimSpace(k.String("OBS_TRACING_ENDPOINT")),
		TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLE_RATIO"), 1),
		PprofEnabled:     parseBool(k.String("OBS_ENABLE_PPROF")),
		PprofUser:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
	}

	policy, err := loadPolicy(k)
	if err != nil {
		return nil, err
	}
	cfg.Pricing = policy

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.UpstreamBaseURL == "" {
		return nil, errors.New("UPSTREAM_BASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

func loadPolicy(k *koanf.Koanf) (pricing.Policy, error) {
	policy := pricing.DefaultPolicy()
	policy.VolumeThreshold = parseInt(k.String("PRICING_VOLUME_THRESHOLD"), policy.VolumeThreshold)
	policy.VolumeRate = int64(parseInt(k.String("PRICING_VOLUME_RATE_BPS"), int(policy.VolumeRate)))
	policy.LoyaltyThreshold = parseInt(k.String("PRICING_LOYALTY_THRESHOLD"), policy.LoyaltyThreshold)
	policy.LoyaltyRate = int64(parseInt(k.String("PRICING_LOYALTY_RATE_BPS"), int(policy.LoyaltyRate)))
	policy.TaxRate = int64(parseInt(k.String("PRICING_TAX_RATE_BPS"), int(policy.TaxRate)))
	policy.Shipping = int64(parseInt(k.String("PRICING_SHIPPING_FLAT"), int(policy.Shipping)))
	policy.RequireMembership = parseBool(k.String("PRICING_REQUIRE_MEMBERSHIP"))
	stacking, err := pricing.ParseStacking(strings.ToLower(strings.TrimSpace(k.String("PRICING_STACKING"))))
	if err != nil {
		return pricing.Policy{}, err
	}
	policy.Stacking = stacking
	if err := policy.Validate(); err != nil {
		return pricing.Policy{}, fmt.Errorf("pricing policy: %w", err)
	}
	return policy, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
