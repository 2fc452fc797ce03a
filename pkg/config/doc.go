// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	SCHOOLHOUSE_HOST="0.0.0.0"
//	SCHOOLHOUSE_PORT="8080"
//	SCHOOLHOUSE_HEALTH_PORT="9090"
//	SCHOOLHOUSE_TRUSTED_PROXIES=""         # e.g. "10.0.0.0/8,192.168.1.7"
//	SCHOOLHOUSE_READ_TIMEOUT="15s"
//	SCHOOLHOUSE_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	SCHOOLHOUSE_STORAGE_TYPE="postgres"  # memory, postgres
//	SCHOOLHOUSE_POSTGRES_URL="postgres://localhost/schoolhouse"
//	SCHOOLHOUSE_POSTGRES_REPLICA_URLS="postgres://replica1/schoolhouse,postgres://replica2/schoolhouse"
//	SCHOOLHOUSE_POSTGRES_MAX_CONNS="20"
//	SCHOOLHOUSE_REDIS_URL="redis://localhost:6379"
//	SCHOOLHOUSE_IDENTITY_CACHE_SIZE="10000"
//	SCHOOLHOUSE_IDENTITY_CACHE_TTL="5m"
//
// Authentication and identity provider:
//
//	SCHOOLHOUSE_AUTH_MODE="oidc"  # oidc, hmac
//	SCHOOLHOUSE_AUTH_HMAC_SECRET="..."  # hmac only, at least 32 bytes
//	SCHOOLHOUSE_IDP_TYPE="cognito"  # cognito, noop
//	SCHOOLHOUSE_COGNITO_REGION="eu-central-1"
//	SCHOOLHOUSE_COGNITO_USER_POOL_ID="eu-central-1_abc"
//	SCHOOLHOUSE_COGNITO_CLIENT_ID="..."
//
// In oidc mode the issuer and client id default to the Cognito pool.
//
// Policy, rate limits and statistics:
//
//	SCHOOLHOUSE_CREATE_POLICY_FILE="/etc/schoolhouse/create-policy.yaml"
//	SCHOOLHOUSE_SEED_FILE="/etc/schoolhouse/seed.yaml"
//	SCHOOLHOUSE_RATE_LIMIT_REQUESTS="10"
//	SCHOOLHOUSE_RATE_LIMIT_WINDOW="1m"
//	SCHOOLHOUSE_STATS_SCHEDULE="@every 5m"  # empty disables
//
// Observability settings:
//
//	SCHOOLHOUSE_LOG_LEVEL="info"  # debug, info, warn, error
//	SCHOOLHOUSE_METRICS_ENABLED="true"
//	SCHOOLHOUSE_OTEL_ENABLED="true"
//	SCHOOLHOUSE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Storage: %s\n", cfg.Storage.Type)
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
