// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown for clinicq.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Info("patient created")
//
// FromContext adds request_id, actor_id and tenant from the bound request
// context.
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordAuditEntry("PATIENT", "UPDATE", "tenant", took)
//
// All Record* helpers are safe on a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(sharedDB, redisClient, pool, version)
//	observability.RegisterHealthRoutes(router, checker)
package observability
