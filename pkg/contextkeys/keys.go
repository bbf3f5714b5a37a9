// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/clinicq/pkg/contextkeys"
//	ctx = contextkeys.WithTenant(ctx, "acme")
//	tenant := contextkeys.GetTenant(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestContextKey contains reqctx.RequestContext
	// Set by: reqctx.Run (pkg/reqctx/store.go), via middleware.RequestContextMiddleware
	// Required by: audit.Recorder (actor/request metadata), observability.FromContext
	// Type: reqctx.RequestContext
	RequestContextKey Key = "request_context"

	// TenantKey contains the acting tenant key
	// Set by: middleware.TenantMiddleware (pkg/middleware/tenant.go), background jobs
	// Required by: audit.Router for tenant-scoped item types
	// Type: string
	TenantKey Key = "tenant"

	// PrincipalKey contains the authenticated user ID
	// Set by: the authentication layer in front of the API
	// Used by: middleware.RequestContextMiddleware to derive the actor
	// Type: string
	PrincipalKey Key = "principal"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithTenant binds the acting tenant to the context
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, TenantKey, tenant)
}

// GetTenant retrieves the acting tenant from context
func GetTenant(ctx context.Context) string {
	if tenant, ok := ctx.Value(TenantKey).(string); ok {
		return tenant
	}
	return ""
}

// WithPrincipal adds the authenticated user ID to the context
func WithPrincipal(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, PrincipalKey, userID)
}

// GetPrincipal retrieves the authenticated user ID from context
func GetPrincipal(ctx context.Context) string {
	if userID, ok := ctx.Value(PrincipalKey).(string); ok {
		return userID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
