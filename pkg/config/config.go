package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/clinicq/pkg/audit"
	"github.com/platinummonkey/clinicq/pkg/observability"
	"github.com/platinummonkey/clinicq/pkg/storage/postgres"
)

// Tenant directory backends
const (
	DirectorySQL  = "sql"
	DirectoryFile = "file"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration (shared database and tenant pools)
	Database DatabaseConfig

	// Tenant directory configuration
	Directory DirectoryConfig

	// Audit trail configuration
	Audit AuditConfig

	// Observability configuration
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

// DatabaseConfig holds connection settings shared by every database handle
type DatabaseConfig struct {
	SharedURL      string
	MaxConns       int
	MinConns       int
	Timeout        time.Duration
	MaxLifetime    time.Duration
	MaxIdleTime    time.Duration
	MaxTenantPools int
}

// DirectoryConfig selects where tenant database URLs come from
type DirectoryConfig struct {
	Type     string
	File     string
	RedisURL string
	CacheTTL time.Duration
}

// AuditConfig holds audit trail dispatch settings
type AuditConfig struct {
	Mode         audit.Mode
	WriteTimeout time.Duration
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

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	auditCfg, err := loadAuditConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Directory:     loadDirectoryConfig(),
		Audit:         auditCfg,
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CLINICQ_HOST", "0.0.0.0"),
		Port:            getEnv("CLINICQ_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CLINICQ_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CLINICQ_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CLINICQ_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CLINICQ_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CLINICQ_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	defaults := postgres.DefaultPoolConfig()

	return DatabaseConfig{
		SharedURL:      getEnv("CLINICQ_SHARED_DATABASE_URL", ""),
		MaxConns:       getEnvInt("CLINICQ_DB_MAX_CONNS", defaults.MaxConns),
		MinConns:       getEnvInt("CLINICQ_DB_MIN_CONNS", defaults.MinConns),
		Timeout:        getEnvDuration("CLINICQ_DB_TIMEOUT", defaults.Timeout),
		MaxLifetime:    getEnvDuration("CLINICQ_DB_MAX_LIFETIME", defaults.MaxLifetime),
		MaxIdleTime:    getEnvDuration("CLINICQ_DB_MAX_IDLE_TIME", defaults.MaxIdleTime),
		MaxTenantPools: getEnvInt("CLINICQ_MAX_TENANT_POOLS", defaults.MaxTenants),
	}
}

// loadDirectoryConfig loads tenant directory configuration from environment
func loadDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		Type:     strings.ToLower(getEnv("CLINICQ_TENANT_DIRECTORY", DirectorySQL)),
		File:     getEnv("CLINICQ_TENANT_DIRECTORY_FILE", ""),
		RedisURL: getEnv("CLINICQ_REDIS_URL", ""),
		CacheTTL: getEnvDuration("CLINICQ_TENANT_CACHE_TTL", postgres.DefaultDirectoryTTL),
	}
}

// loadAuditConfig loads audit configuration from environment
func loadAuditConfig() (AuditConfig, error) {
	mode, err := audit.ParseMode(getEnv("CLINICQ_AUDIT_MODE", string(audit.ModeSync)))
	if err != nil {
		return AuditConfig{}, err
	}

	return AuditConfig{
		Mode:         mode,
		WriteTimeout: getEnvDuration("CLINICQ_AUDIT_WRITE_TIMEOUT", audit.DefaultWriteTimeout),
	}, nil
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("CLINICQ_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CLINICQ_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CLINICQ_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CLINICQ_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CLINICQ_OTEL_SERVICE_NAME", "clinicq"),
		OTelServiceVersion: getEnv("CLINICQ_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CLINICQ_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("CLINICQ_OTEL_SAMPLE_RATIO", 1.0),
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

	// Validate database config
	if c.Database.SharedURL == "" {
		return fmt.Errorf("shared database URL is required")
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min connections must be between 0 and max connections")
	}
	if c.Database.MaxTenantPools <= 0 {
		return fmt.Errorf("max tenant pools must be positive")
	}

	// Validate tenant directory config
	switch c.Directory.Type {
	case DirectorySQL:
	case DirectoryFile:
		if c.Directory.File == "" {
			return fmt.Errorf("tenant directory file is required for file directory")
		}
	default:
		return fmt.Errorf("invalid tenant directory: %s (must be sql or file)", c.Directory.Type)
	}

	// Validate audit config
	if c.Audit.WriteTimeout <= 0 {
		return fmt.Errorf("audit write timeout must be positive")
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

// PoolConfig returns the tenant pool settings
func (c *Config) PoolConfig() postgres.PoolConfig {
	return postgres.PoolConfig{
		MaxConns:    c.Database.MaxConns,
		MinConns:    c.Database.MinConns,
		Timeout:     c.Database.Timeout,
		MaxLifetime: c.Database.MaxLifetime,
		MaxIdleTime: c.Database.MaxIdleTime,
		MaxTenants:  c.Database.MaxTenantPools,
	}
}

// OTelConfig returns the OpenTelemetry exporter settings
func (c *Config) OTelConfig() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
		SampleRatio:    c.Observability.OTelSampleRatio,
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
