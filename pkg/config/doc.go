// Package config loads onramp configuration from environment variables.
//
// Server settings:
//
//	ONRAMP_HOST="0.0.0.0"
//	ONRAMP_PORT="8080"
//	ONRAMP_HEALTH_PORT="9090"
//
// Database settings:
//
//	ONRAMP_DATABASE_URL="postgres://localhost/onramp?sslmode=disable"
//	ONRAMP_DATABASE_REPLICA_URLS="postgres://replica-1/onramp,postgres://replica-2/onramp"
//	ONRAMP_DATABASE_MIGRATE="true"
//
// Billing settings:
//
//	ONRAMP_STRIPE_API_KEY="sk_live_..."
//	ONRAMP_STRIPE_WEBHOOK_SECRET="whsec_..."
//	ONRAMP_STRIPE_TIMEOUT="10s"
//	ONRAMP_STRIPE_PRICE_TIERS="price_pro=PRO,price_growth=GROWTH"
//
// Tier limits default to the built-in table; ONRAMP_TIERS_FILE points at a
// YAML override. The reconciler binary reads ONRAMP_RECONCILER_* cron specs.
//
// Observability settings:
//
//	ONRAMP_LOG_LEVEL="info"  # debug, info, warn, error
//	ONRAMP_OTEL_ENABLED="true"
//	ONRAMP_OTEL_ENDPOINT="otel-collector:4317"
package config
