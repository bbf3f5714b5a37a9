package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// readinessTimeout bounds one readiness probe across all dependencies
const readinessTimeout = 5 * time.Second

// TenantPoolStats reports how many tenant databases are currently open
type TenantPoolStats interface {
	Len() int
}

// HealthStatus is the body of the readiness endpoint
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	OpenTenants  *int                        `json:"open_tenants,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the outcome of probing one dependency
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// probe checks one dependency. A failing optional probe degrades the
// service; a failing required one makes it unhealthy.
type probe struct {
	name     string
	required bool
	check    func(ctx context.Context) (status string, err error)
}

// HealthChecker serves liveness and readiness for the clinicq server
type HealthChecker struct {
	probes  []probe
	tenants TenantPoolStats
	version string
}

// NewHealthChecker creates a health checker. The shared database is required
// for readiness; the redis DSN cache is optional. Any argument may be nil.
func NewHealthChecker(db *sql.DB, client *redis.Client, tenants TenantPoolStats, version string) *HealthChecker {
	h := &HealthChecker{tenants: tenants, version: version}
	if db != nil {
		h.probes = append(h.probes, probe{name: "shared_database", required: true, check: databaseProbe(db)})
	}
	if client != nil {
		h.probes = append(h.probes, probe{name: "redis", check: func(ctx context.Context) (string, error) {
			if err := client.Ping(ctx).Err(); err != nil {
				return StatusUnhealthy, err
			}
			return StatusHealthy, nil
		}})
	}
	return h
}

func databaseProbe(db *sql.DB) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		var one int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return StatusUnhealthy, err
		}
		stats := db.Stats()
		if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
			return StatusDegraded, nil
		}
		return StatusHealthy, nil
	}
}

// Check probes every dependency and folds the results into one status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.probes)),
	}

	for _, p := range h.probes {
		start := time.Now()
		result, err := p.check(ctx)
		dep := DependencyStatus{Status: result, Latency: time.Since(start), Timestamp: start}
		if err != nil {
			dep.Message = err.Error()
		} else if result == StatusDegraded {
			dep.Message = "connection pool exhausted"
		}
		status.Dependencies[p.name] = dep

		switch {
		case result == StatusHealthy:
		case p.required && result == StatusUnhealthy:
			status.Status = StatusUnhealthy
		case status.Status != StatusUnhealthy:
			status.Status = StatusDegraded
		}
	}

	if h.tenants != nil {
		n := h.tenants.Len()
		status.OpenTenants = &n
	}
	return status
}

// Liveness answers 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness answers 503 when a required dependency is down
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// RegisterHealthRoutes registers /health, /health/live and /health/ready
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/health", checker.Readiness).Methods(http.MethodGet)
	router.HandleFunc("/health/live", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", checker.Readiness).Methods(http.MethodGet)
}
