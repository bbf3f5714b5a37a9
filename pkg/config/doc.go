// Package config loads clinicq configuration from environment variables.
//
// Server settings:
//
//	CLINICQ_HOST="0.0.0.0"
//	CLINICQ_PORT="8080"
//	CLINICQ_HEALTH_PORT="9090"
//	CLINICQ_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	CLINICQ_SHARED_DATABASE_URL="postgres://clinicq@db/clinicq?sslmode=disable"
//	CLINICQ_DB_MAX_CONNS="10"
//	CLINICQ_MAX_TENANT_POOLS="64"
//
// Tenant directory settings:
//
//	CLINICQ_TENANT_DIRECTORY="sql"  # sql, file
//	CLINICQ_TENANT_DIRECTORY_FILE="/etc/clinicq/tenants.yaml"
//	CLINICQ_REDIS_URL="redis://localhost:6379/0"
//	CLINICQ_TENANT_CACHE_TTL="5m"
//
// Audit settings:
//
//	CLINICQ_AUDIT_MODE="sync"  # sync, async
//	CLINICQ_AUDIT_WRITE_TIMEOUT="5s"
//
// Observability settings:
//
//	CLINICQ_LOG_LEVEL="info"  # debug, info, warn, error
//	CLINICQ_METRICS_ENABLED="true"
//	CLINICQ_OTEL_ENABLED="true"
//	CLINICQ_OTEL_ENDPOINT="otel-collector:4317"
//	CLINICQ_OTEL_SAMPLE_RATIO="0.25"
package config
