package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/clinicq/pkg/httputil"
	"github.com/platinummonkey/clinicq/pkg/middleware"
	"github.com/platinummonkey/clinicq/pkg/observability"
	"github.com/platinummonkey/clinicq/pkg/storage/postgres"
)

// RouterConfig holds the dependencies of the API router
type RouterConfig struct {
	Queues    QueueService
	Directory postgres.Directory
	Actor     middleware.ActorFunc
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

// NewRouter builds the API router. Tenant routes live under /t/{tenant}.
func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()

	router.Use(
		middleware.RequestContextMiddleware(cfg.Actor, cfg.Logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
	)
	if cfg.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}

	tenant := router.PathPrefix("/t/{" + middleware.TenantVar + "}").Subrouter()
	tenant.Use(middleware.TenantMiddleware(cfg.Directory), middleware.RequireTenant)
	NewQueueHandlers(cfg.Queues).RegisterRoutes(tenant)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "not found")
	})

	return router
}
