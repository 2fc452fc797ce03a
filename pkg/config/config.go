package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/schoolhouse/pkg/middleware"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
	"github.com/platinummonkey/schoolhouse/pkg/storage"
)

// Authentication modes
const (
	AuthModeOIDC = "oidc"
	AuthModeHMAC = "hmac"
)

// Identity provider types
const (
	IdentityProviderCognito = "cognito"
	IdentityProviderNoop    = "noop"
)

// minHMACSecretLength is the shortest accepted HS256 signing secret
const minHMACSecretLength = 32

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Token verification
	Auth AuthConfig

	// Account creation and password flows
	IdentityProvider IdentityProviderConfig

	// Policy and seed data files
	Policy PolicyConfig

	// Public password endpoints
	RateLimit RateLimitConfig

	// Observability configuration
	Observability ObservabilityConfig

	// User statistics
	Stats StatsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Addresses or CIDR ranges of proxies whose X-Forwarded-For is believed
	TrustedProxies []string
}

// AuthConfig selects how bearer tokens are verified
type AuthConfig struct {
	Mode       string
	Issuer     string
	ClientID   string
	HMACSecret string
}

// IdentityProviderConfig holds identity provider settings
type IdentityProviderConfig struct {
	Type              string
	Region            string
	UserPoolID        string
	ClientID          string
	ClientSecret      string
	Endpoint          string
	TemporaryPassword string
}

// CognitoIssuer is the token issuer of the configured user pool
func (c IdentityProviderConfig) CognitoIssuer() string {
	if c.Region == "" || c.UserPoolID == "" {
		return ""
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// PolicyConfig points at optional data files
type PolicyConfig struct {
	// CreatePolicyFile replaces the built-in create matrix when set
	CreatePolicyFile string
	// SeedFile replaces the built-in seed when set
	SeedFile string
	// Seed applies the seed at startup
	Seed bool
}

// RateLimitConfig limits the public password endpoints per client IP
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// StatsConfig schedules the user statistics refresh. An empty schedule
// disables it.
type StatsConfig struct {
	Schedule string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:           loadServerConfig(),
		Storage:          loadStorageConfig(),
		Auth:             loadAuthConfig(),
		IdentityProvider: loadIdentityProviderConfig(),
		Policy: PolicyConfig{
			CreatePolicyFile: getEnv("SCHOOLHOUSE_CREATE_POLICY_FILE", ""),
			SeedFile:         getEnv("SCHOOLHOUSE_SEED_FILE", ""),
			Seed:             getEnvBool("SCHOOLHOUSE_SEED", false),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvBool("SCHOOLHOUSE_RATE_LIMIT_ENABLED", true),
			RequestsPerWindow: getEnvInt("SCHOOLHOUSE_RATE_LIMIT_REQUESTS", 10),
			Window:            getEnvDuration("SCHOOLHOUSE_RATE_LIMIT_WINDOW", time.Minute),
			Burst:             getEnvInt("SCHOOLHOUSE_RATE_LIMIT_BURST", 5),
		},
		Observability: loadObservabilityConfig(),
		Stats: StatsConfig{
			Schedule: getEnv("SCHOOLHOUSE_STATS_SCHEDULE", "@every 5m"),
		},
	}

	// OIDC defaults to the Cognito pool's issuer and app client
	if cfg.Auth.Mode == AuthModeOIDC {
		if cfg.Auth.Issuer == "" {
			cfg.Auth.Issuer = cfg.IdentityProvider.CognitoIssuer()
		}
		if cfg.Auth.ClientID == "" {
			cfg.Auth.ClientID = cfg.IdentityProvider.ClientID
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SCHOOLHOUSE_HOST", "0.0.0.0"),
		Port:            getEnv("SCHOOLHOUSE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("SCHOOLHOUSE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SCHOOLHOUSE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("SCHOOLHOUSE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SCHOOLHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("SCHOOLHOUSE_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("SCHOOLHOUSE_HEALTH_PORT", "9090"),
		TrustedProxies:  getEnvList("SCHOOLHOUSE_TRUSTED_PROXIES"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// Storage type
	if storageType := getEnv("SCHOOLHOUSE_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}

	// PostgreSQL config
	if pgURL := getEnv("SCHOOLHOUSE_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	cfg.PostgresReplicaURLs = getEnvList("SCHOOLHOUSE_POSTGRES_REPLICA_URLS")
	if maxConns := getEnvInt("SCHOOLHOUSE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("SCHOOLHOUSE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("SCHOOLHOUSE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// Redis config
	if redisURL := getEnv("SCHOOLHOUSE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("SCHOOLHOUSE_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("SCHOOLHOUSE_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("SCHOOLHOUSE_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("SCHOOLHOUSE_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Identity cache config
	if size := getEnvInt("SCHOOLHOUSE_IDENTITY_CACHE_SIZE", 0); size > 0 {
		cfg.IdentityCacheSize = size
	}
	if ttl := getEnvDuration("SCHOOLHOUSE_IDENTITY_CACHE_TTL", 0); ttl > 0 {
		cfg.IdentityCacheTTL = ttl
	}

	return cfg
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		Mode:       strings.ToLower(getEnv("SCHOOLHOUSE_AUTH_MODE", AuthModeHMAC)),
		Issuer:     getEnv("SCHOOLHOUSE_AUTH_ISSUER", ""),
		ClientID:   getEnv("SCHOOLHOUSE_AUTH_CLIENT_ID", ""),
		HMACSecret: getEnv("SCHOOLHOUSE_AUTH_HMAC_SECRET", ""),
	}
}

func loadIdentityProviderConfig() IdentityProviderConfig {
	return IdentityProviderConfig{
		Type:              strings.ToLower(getEnv("SCHOOLHOUSE_IDP_TYPE", IdentityProviderNoop)),
		Region:            getEnv("SCHOOLHOUSE_COGNITO_REGION", ""),
		UserPoolID:        getEnv("SCHOOLHOUSE_COGNITO_USER_POOL_ID", ""),
		ClientID:          getEnv("SCHOOLHOUSE_COGNITO_CLIENT_ID", ""),
		ClientSecret:      getEnv("SCHOOLHOUSE_COGNITO_CLIENT_SECRET", ""),
		Endpoint:          getEnv("SCHOOLHOUSE_COGNITO_ENDPOINT", ""),
		TemporaryPassword: getEnv("SCHOOLHOUSE_TEMPORARY_PASSWORD", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("SCHOOLHOUSE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("SCHOOLHOUSE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("SCHOOLHOUSE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("SCHOOLHOUSE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("SCHOOLHOUSE_OTEL_SERVICE_NAME", "schoolhouse"),
		OTelServiceVersion: getEnv("SCHOOLHOUSE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("SCHOOLHOUSE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("SCHOOLHOUSE_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if _, err := middleware.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return err
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	switch c.Auth.Mode {
	case AuthModeHMAC:
		if len(c.Auth.HMACSecret) < minHMACSecretLength {
			return fmt.Errorf("hmac auth requires a secret of at least %d bytes", minHMACSecretLength)
		}
	case AuthModeOIDC:
		if c.Auth.Issuer == "" {
			return fmt.Errorf("oidc auth requires an issuer")
		}
		if c.Auth.ClientID == "" {
			return fmt.Errorf("oidc auth requires a client id")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be oidc or hmac)", c.Auth.Mode)
	}

	switch c.IdentityProvider.Type {
	case IdentityProviderNoop:
	case IdentityProviderCognito:
		if c.IdentityProvider.Region == "" || c.IdentityProvider.UserPoolID == "" {
			return fmt.Errorf("cognito requires region and user pool id")
		}
		if c.IdentityProvider.ClientID == "" {
			return fmt.Errorf("cognito requires a client id")
		}
	default:
		return fmt.Errorf("invalid identity provider: %s (must be cognito or noop)", c.IdentityProvider.Type)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerWindow < 1 || c.RateLimit.Window <= 0 || c.RateLimit.Burst < 0 {
			return fmt.Errorf("rate limit needs positive requests and window and a non-negative burst")
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	return nil
}

// OTel returns the tracing settings in the form observability.InitOTel takes
func (c ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Insecure:       c.OTelInsecure,
		SampleRatio:    c.OTelSampleRatio,
	}
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
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

// getEnvList splits a comma-separated environment variable, dropping blanks
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
