package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Audit metrics
	AuditEntriesTotal  *prometheus.CounterVec
	AuditSkippedTotal  *prometheus.CounterVec
	AuditFailuresTotal *prometheus.CounterVec
	AuditWriteDuration *prometheus.HistogramVec
	AuditHooksInFlight prometheus.Gauge

	// Tenant pool metrics
	TenantPoolOpen       prometheus.Gauge
	TenantPoolOpensTotal *prometheus.CounterVec
	TenantPoolEvictions  prometheus.Counter

	// Tenant directory cache metrics
	DirectoryCacheHitsTotal   prometheus.Counter
	DirectoryCacheMissesTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicq_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clinicq_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clinicq_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		AuditEntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicq_audit_entries_total",
				Help: "Total number of audit entries written",
			},
			[]string{"item_type", "event", "partition"},
		),
		AuditSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicq_audit_skipped_total",
				Help: "Total number of mutations that produced no audit entry",
			},
			[]string{"reason"},
		),
		AuditFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicq_audit_failures_total",
				Help: "Total number of audit recording failures",
			},
			[]string{"stage"},
		),
		AuditWriteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clinicq_audit_write_duration_seconds",
				Help:    "Audit entry write duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"partition"},
		),
		AuditHooksInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "clinicq_audit_hooks_in_flight",
				Help: "Number of asynchronous audit writes not yet finished",
			},
		),

		TenantPoolOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "clinicq_tenant_pool_open",
				Help: "Number of tenant database handles currently open",
			},
		),
		TenantPoolOpensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicq_tenant_pool_opens_total",
				Help: "Total number of tenant database open attempts",
			},
			[]string{"status"},
		),
		TenantPoolEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clinicq_tenant_pool_evictions_total",
				Help: "Total number of tenant database handles evicted and closed",
			},
		),

		DirectoryCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clinicq_tenant_directory_cache_hits_total",
				Help: "Total number of tenant DSN cache hits",
			},
		),
		DirectoryCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clinicq_tenant_directory_cache_misses_total",
				Help: "Total number of tenant DSN cache misses",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuditEntriesTotal,
		m.AuditSkippedTotal,
		m.AuditFailuresTotal,
		m.AuditWriteDuration,
		m.AuditHooksInFlight,
		m.TenantPoolOpen,
		m.TenantPoolOpensTotal,
		m.TenantPoolEvictions,
		m.DirectoryCacheHitsTotal,
		m.DirectoryCacheMissesTotal,
	)

	return m
}

// RecordAuditEntry counts a written audit entry. Safe on a nil receiver.
func (m *Metrics) RecordAuditEntry(itemType, event, partition string, took time.Duration) {
	if m == nil {
		return
	}
	m.AuditEntriesTotal.WithLabelValues(itemType, event, partition).Inc()
	m.AuditWriteDuration.WithLabelValues(partition).Observe(took.Seconds())
}

// RecordAuditSkip counts a mutation that produced no entry
func (m *Metrics) RecordAuditSkip(reason string) {
	if m == nil {
		return
	}
	m.AuditSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordAuditFailure counts a failed recording by the stage it failed in
func (m *Metrics) RecordAuditFailure(stage string) {
	if m == nil {
		return
	}
	m.AuditFailuresTotal.WithLabelValues(stage).Inc()
}

// HookStarted and HookFinished track asynchronous audit writes
func (m *Metrics) HookStarted() {
	if m == nil {
		return
	}
	m.AuditHooksInFlight.Inc()
}

func (m *Metrics) HookFinished() {
	if m == nil {
		return
	}
	m.AuditHooksInFlight.Dec()
}

// RecordTenantOpen counts a tenant database open attempt
func (m *Metrics) RecordTenantOpen(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.TenantPoolOpensTotal.WithLabelValues("error").Inc()
		return
	}
	m.TenantPoolOpensTotal.WithLabelValues("ok").Inc()
	m.TenantPoolOpen.Inc()
}

// RecordTenantEviction counts a tenant handle closed by the pool
func (m *Metrics) RecordTenantEviction() {
	if m == nil {
		return
	}
	m.TenantPoolEvictions.Inc()
	m.TenantPoolOpen.Dec()
}

// RecordDirectoryLookup counts a DSN cache hit or miss
func (m *Metrics) RecordDirectoryLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.DirectoryCacheHitsTotal.Inc()
		return
	}
	m.DirectoryCacheMissesTotal.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by their mux route template to keep cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
