package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/onramp/pkg/observability"
	"github.com/platinummonkey/onramp/pkg/storage/postgres"
	"github.com/platinummonkey/onramp/pkg/tiers"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Stripe        StripeConfig
	Tiers         TiersConfig
	Reconciler    ReconcilerConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	PrimaryURL     string
	ReplicaURLs    []string
	MaxConns       int
	MinConns       int
	Timeout        time.Duration
	MaxLifetime    time.Duration
	MaxIdleTime    time.Duration
	MigrateOnStart bool
}

// Connection converts the settings for the connection manager
func (d DatabaseConfig) Connection() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		PrimaryURL:  d.PrimaryURL,
		ReplicaURLs: d.ReplicaURLs,
		MaxConns:    d.MaxConns,
		MinConns:    d.MinConns,
		Timeout:     d.Timeout,
		MaxLifetime: d.MaxLifetime,
		MaxIdleTime: d.MaxIdleTime,
	}
}

// StripeConfig holds payment provider settings
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	// BaseURL overrides the Stripe API endpoint, e.g. for stripe-mock
	BaseURL       string
	CallTimeout   time.Duration
	MaxRetries    int
	PriceCacheTTL time.Duration
	PriceCacheMax int
	// PriceTiers maps Stripe price IDs to subscription tiers
	PriceTiers map[string]tiers.Tier
}

// TiersConfig points at an optional limit table override
type TiersConfig struct {
	File string
}

// ReconcilerConfig holds the periodic billing job settings
type ReconcilerConfig struct {
	UsageReportSchedule string
	TierSyncSchedule    string
	Concurrency         int
	RunOnStart          bool
	// SettleInterval is how far usage reports trail the database clock
	SettleInterval time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// OTel converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	ratio := o.OTelSampleRatio
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    &ratio,
	}
}

// LoadConfig loads configuration from ONRAMP_* environment variables
func LoadConfig() (*Config, error) {
	stripeCfg, err := loadStripeConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Stripe:        stripeCfg,
		Tiers:         TiersConfig{File: getEnv("ONRAMP_TIERS_FILE", "")},
		Reconciler:    loadReconcilerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ONRAMP_HOST", "0.0.0.0"),
		Port:            getEnv("ONRAMP_PORT", "8080"),
		ReadTimeout:     getEnvDuration("ONRAMP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ONRAMP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("ONRAMP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ONRAMP_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("ONRAMP_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		PrimaryURL:     getEnv("ONRAMP_DATABASE_URL", ""),
		ReplicaURLs:    postgres.ParseReplicaURLs(getEnv("ONRAMP_DATABASE_REPLICA_URLS", "")),
		MaxConns:       getEnvInt("ONRAMP_DATABASE_MAX_CONNS", 20),
		MinConns:       getEnvInt("ONRAMP_DATABASE_MIN_CONNS", 5),
		Timeout:        getEnvDuration("ONRAMP_DATABASE_TIMEOUT", 5*time.Second),
		MaxLifetime:    getEnvDuration("ONRAMP_DATABASE_MAX_LIFETIME", time.Hour),
		MaxIdleTime:    getEnvDuration("ONRAMP_DATABASE_MAX_IDLE_TIME", 10*time.Minute),
		MigrateOnStart: getEnvBool("ONRAMP_DATABASE_MIGRATE", false),
	}
}

func loadStripeConfig() (StripeConfig, error) {
	priceTiers, err := ParsePriceTiers(getEnv("ONRAMP_STRIPE_PRICE_TIERS", ""))
	if err != nil {
		return StripeConfig{}, err
	}
	return StripeConfig{
		APIKey:        getEnv("ONRAMP_STRIPE_API_KEY", ""),
		WebhookSecret: getEnv("ONRAMP_STRIPE_WEBHOOK_SECRET", ""),
		BaseURL:       getEnv("ONRAMP_STRIPE_BASE_URL", ""),
		CallTimeout:   getEnvDuration("ONRAMP_STRIPE_TIMEOUT", 10*time.Second),
		MaxRetries:    getEnvInt("ONRAMP_STRIPE_MAX_RETRIES", 3),
		PriceCacheTTL: getEnvDuration("ONRAMP_STRIPE_PRICE_CACHE_TTL", 15*time.Minute),
		PriceCacheMax: getEnvInt("ONRAMP_STRIPE_PRICE_CACHE_SIZE", 256),
		PriceTiers:    priceTiers,
	}, nil
}

func loadReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		UsageReportSchedule: getEnv("ONRAMP_RECONCILER_USAGE_SCHEDULE", "@hourly"),
		TierSyncSchedule:    getEnv("ONRAMP_RECONCILER_TIER_SCHEDULE", "@every 6h"),
		Concurrency:         getEnvInt("ONRAMP_RECONCILER_CONCURRENCY", 4),
		RunOnStart:          getEnvBool("ONRAMP_RECONCILER_RUN_ON_START", false),
		SettleInterval:      getEnvDuration("ONRAMP_RECONCILER_SETTLE_INTERVAL", 2*time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("ONRAMP_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("ONRAMP_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("ONRAMP_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("ONRAMP_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("ONRAMP_OTEL_SERVICE_NAME", "onramp"),
		OTelServiceVersion: getEnv("ONRAMP_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("ONRAMP_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("ONRAMP_OTEL_SAMPLE_RATIO", 1),
	}
}

// ParsePriceTiers parses "price_abc=PRO,price_def=GROWTH" into a price to tier map
func ParsePriceTiers(s string) (map[string]tiers.Tier, error) {
	result := make(map[string]tiers.Tier)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		priceID, tierName, ok := strings.Cut(pair, "=")
		priceID = strings.TrimSpace(priceID)
		if !ok || priceID == "" {
			return nil, fmt.Errorf("invalid price tier mapping %q (want price_id=TIER)", pair)
		}
		tier, err := tiers.ParseTier(tierName)
		if err != nil {
			return nil, fmt.Errorf("invalid price tier mapping %q: %w", pair, err)
		}
		if _, dup := result[priceID]; dup {
			return nil, fmt.Errorf("price %s mapped more than once", priceID)
		}
		result[priceID] = tier
	}
	return result, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.HealthPort == "" {
		return errors.New("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return errors.New("server port and health port must be different")
	}

	if c.Database.PrimaryURL == "" {
		return errors.New("database URL is required (ONRAMP_DATABASE_URL)")
	}
	if c.Database.MaxConns <= 0 {
		return errors.New("database max connections must be positive")
	}

	if c.Stripe.APIKey == "" {
		return errors.New("stripe API key is required (ONRAMP_STRIPE_API_KEY)")
	}
	if c.Stripe.CallTimeout <= 0 {
		return errors.New("stripe call timeout must be positive")
	}
	if c.Stripe.MaxRetries < 0 {
		return errors.New("stripe max retries must not be negative")
	}

	if c.Reconciler.Concurrency <= 0 {
		return errors.New("reconciler concurrency must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
