// Package config provides application configuration management from environment variables.
//
// Every variable carries the JOBOOST_ prefix. A .env file in the working
// directory, or the file named by JOBOOST_ENV_FILE, is loaded first without
// overriding variables already set.
//
// Server settings:
//
//	JOBOOST_PORT="8080"
//	JOBOOST_HEALTH_PORT="9090"
//	JOBOOST_CORS_ORIGINS="https://app.joboost.fr"
//
// Storage settings:
//
//	JOBOOST_STORAGE_BACKEND="postgres"  # postgres, bolt
//	JOBOOST_POSTGRES_URL="postgres://localhost/joboost?sslmode=disable"
//	JOBOOST_POSTGRES_REPLICA_URLS="postgres://replica1/joboost,postgres://replica2/joboost"
//	JOBOOST_BOLT_PATH="/var/lib/joboost/joboost.db"
//	JOBOOST_REDIS_URL="redis://localhost:6379"
//
// Payments and credentials:
//
//	JOBOOST_STRIPE_SECRET_KEY="sk_live_..."
//	JOBOOST_STRIPE_WEBHOOK_SECRET="whsec_..."
//	JOBOOST_PLANS_FILE="/etc/joboost/plans.yaml"
//	JOBOOST_FRANCETRAVAIL_CLIENT_ID="..."
//	JOBOOST_FRANCETRAVAIL_CLIENT_SECRET="..."
//	JOBOOST_JWT_SECRET="..."
//
// Job offers and the payment sweeper:
//
//	JOBOOST_JOOBLE_API_KEY="..."
//	JOBOOST_ADZUNA_APP_ID="..."
//	JOBOOST_ADZUNA_APP_KEY="..."
//	JOBOOST_SWEEPER_SCHEDULE="@every 5m"
//	JOBOOST_SWEEPER_IN_PROCESS="false"  # always true on the bolt backend
//
// Observability settings:
//
//	JOBOOST_LOG_LEVEL="info"  # debug, info, warn, error
//	JOBOOST_OTEL_ENABLED="true"
//	JOBOOST_OTEL_ENDPOINT="otel-collector:4317"
//
// Usage:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
