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
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string
	Currency           string

	Cart     CartConfig
	Lookup   LookupConfig
	Limits   RateLimitConfig
	Kafka    KafkaConfig
	Obs      ObsConfig
	IdemTTL  time.Duration
	BodySize int64
}

// CartConfig bounds cart sessions and sets the flat shipping fees.
type CartConfig struct {
	TTL                 time.Duration
	LockTTL             time.Duration
	MaxLines            int
	MaxQtyPerLine       int
	ShippingFeeStandard int64
	ShippingFeeExpress  int64
}

// LookupConfig tunes catalog and voucher lookups.
type LookupConfig struct {
	CatalogCacheTTL     time.Duration
	VoucherCacheTTL     time.Duration
	Timeout             time.Duration
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
}

// RateLimitConfig configures the voucher application limiter.
type RateLimitConfig struct {
	Backend       string
	VoucherMax    int
	VoucherWindow time.Duration
}

// KafkaConfig configures event publishing. No brokers means events are only logged.
type KafkaConfig struct {
	Brokers          []string
	TopicPrefix      string
	CreateTopics     bool
	TopicPartitions  int
	TopicReplication int
}

// ObsConfig drives logging, metrics and tracing.
type ObsConfig struct {
	LogFormat         string
	LogLevel          string
	LogFile           string
	LogFileMaxSizeMB  int
	LogFileMaxBackups int
	MetricsEnabled    bool
	MetricsNamespace  string
	MetricsBucketsMS  string
	TracingEnabled    bool
	TracingExporter   string
	OTLPEndpoint      string
	TracingRatio      float64
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
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "toko-api"),
		JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "toko-frontend"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		Currency:           strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "VND")),
		Cart: CartConfig{
			TTL:                 parseDuration(k.String("CART_TTL"), "168h"),
			LockTTL:             parseDuration(k.String("CART_LOCK_TTL"), "10s"),
			MaxLines:            parseInt(k.String("CART_MAX_LINES"), 50),
			MaxQtyPerLine:       parseInt(k.String("CART_MAX_QTY_PER_LINE"), 99),
			ShippingFeeStandard: parseInt64(k.String("SHIPPING_FEE_STANDARD"), 30_000),
			ShippingFeeExpress:  parseInt64(k.String("SHIPPING_FEE_EXPRESS"), 50_000),
		},
		Lookup: LookupConfig{
			CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
			VoucherCacheTTL:     parseDuration(k.String("VOUCHER_CACHE_TTL"), "30s"),
			Timeout:             parseDuration(k.String("LOOKUP_TIMEOUT"), "2s"),
			BreakerMinRequests:  parseInt(k.String("BREAKER_MIN_REQUESTS"), 20),
			BreakerFailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
			BreakerOpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
		},
		Limits: RateLimitConfig{
			Backend:       strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_BACKEND"), "sliding")),
			VoucherMax:    parseInt(k.String("VOUCHER_RATE_LIMIT_MAX"), 10),
			VoucherWindow: parseDuration(k.String("VOUCHER_RATE_LIMIT_WINDOW"), "1m"),
		},
		Kafka: KafkaConfig{
			Brokers:          splitAndTrim(k.String("KAFKA_BROKERS")),
			TopicPrefix:      k.String("KAFKA_TOPIC_PREFIX"),
			CreateTopics:     parseBool(k.String("KAFKA_CREATE_TOPICS"), false),
			TopicPartitions:  parseInt(k.String("KAFKA_TOPIC_PARTITIONS"), 3),
			TopicReplication: parseInt(k.String("KAFKA_TOPIC_REPLICATION"), 1),
		},
		Obs: ObsConfig{
			LogFormat:         valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:          valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			LogFile:           strings.TrimSpace(k.String("OBS_LOG_FILE")),
			LogFileMaxSizeMB:  parseInt(k.String("OBS_LOG_FILE_MAX_SIZE_MB"), 100),
			LogFileMaxBackups: parseInt(k.String("OBS_LOG_FILE_MAX_BACKUPS"), 5),
			MetricsEnabled:    parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace:  valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "toko_cart"),
			MetricsBucketsMS:  k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:    parseBool(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:   valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:      k.String("OBS_OTLP_ENDPOINT"),
			TracingRatio:      parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		},
		IdemTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		BodySize: parseInt64(k.String("MAX_BODY_BYTES"), 1<<20),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.Cart.ShippingFeeStandard < 0 || cfg.Cart.ShippingFeeExpress < 0 {
		return nil, errors.New("shipping fees must not be negative")
	}
	switch cfg.Limits.Backend {
	case "sliding", "ulule":
	default:
		return nil, fmt.Errorf("RATE_LIMIT_BACKEND %q is not supported", cfg.Limits.Backend)
	}

	return cfg, nil
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

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
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
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseInt64(value string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
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
