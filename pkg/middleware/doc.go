// Package middleware binds request-scoped audit metadata at the HTTP boundary.
//
// RequestContextMiddleware builds a reqctx.RequestContext for each request:
// the actor comes from a pluggable ActorFunc, the request id from the
// X-Request-ID header (or a fresh UUID, echoed back), the source from the
// method and path, and the client IP from X-Forwarded-For, X-Real-IP or the
// socket address.
//
// TenantMiddleware binds the acting tenant from the {tenant} route variable or
// the X-Tenant-ID header.
//
//	router := mux.NewRouter()
//	router.Use(middleware.RequestContextMiddleware(middleware.PrincipalActor, logger))
//	api := router.PathPrefix("/t/{tenant}").Subrouter()
//	api.Use(middleware.TenantMiddleware(directory), middleware.RequireTenant)
package middleware
