package middleware

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/clinicq/pkg/contextkeys"
	"github.com/platinummonkey/clinicq/pkg/httputil"
	"github.com/platinummonkey/clinicq/pkg/observability"
	"github.com/platinummonkey/clinicq/pkg/storage/postgres"
)

// TenantHeader names the acting tenant for routes without a {tenant} variable
const TenantHeader = "X-Tenant-ID"

// TenantVar is the mux route variable holding the tenant key
const TenantVar = "tenant"

var tenantKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// TenantMiddleware binds the acting tenant from the {tenant} route variable,
// falling back to the X-Tenant-ID header. Requests without a tenant pass
// through unbound; only shared entities can be audited for them.
//
// When directory is non-nil the tenant must be registered in it.
func TenantMiddleware(directory postgres.Directory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := mux.Vars(r)[TenantVar]
			if tenant == "" {
				tenant = r.Header.Get(TenantHeader)
			}

			if tenant == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !tenantKeyPattern.MatchString(tenant) {
				httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid tenant")
				return
			}

			if directory != nil {
				if _, err := directory.DSN(r.Context(), tenant); err != nil {
					if errors.Is(err, postgres.ErrTenantNotFound) {
						httputil.WriteErrorMessage(w, http.StatusNotFound, "tenant not found")
						return
					}
					observability.FromContext(r.Context()).WithError(err).WithField("tenant", tenant).Error("tenant lookup failed")
					httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "tenant lookup failed")
					return
				}
			}

			ctx := contextkeys.WithTenant(r.Context(), tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant rejects requests that reached it without a bound tenant
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contextkeys.GetTenant(r.Context()) == "" {
			httputil.WriteErrorMessage(w, http.StatusBadRequest, "tenant required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TenantFromRequest returns the tenant bound by TenantMiddleware
func TenantFromRequest(r *http.Request) string {
	return contextkeys.GetTenant(r.Context())
}
