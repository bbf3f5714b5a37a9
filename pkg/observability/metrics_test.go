package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}
		if metrics.AuditEntriesTotal == nil {
			t.Error("AuditEntriesTotal is nil")
		}
		if metrics.TenantPoolOpen == nil {
			t.Error("TenantPoolOpen is nil")
		}
	})

	t.Run("double registration panics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		defer func() {
			if recover() == nil {
				t.Error("expected panic on duplicate registration")
			}
		}()
		NewMetrics(registry)
	})
}

func TestMetrics_Audit(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordAuditEntry("PATIENT", "UPDATE", "tenant", 5*time.Millisecond)
	metrics.RecordAuditEntry("PATIENT", "UPDATE", "tenant", 5*time.Millisecond)
	metrics.RecordAuditSkip("untracked")
	metrics.RecordAuditFailure("write")

	if got := testutil.ToFloat64(metrics.AuditEntriesTotal.WithLabelValues("PATIENT", "UPDATE", "tenant")); got != 2 {
		t.Errorf("entries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.AuditSkippedTotal.WithLabelValues("untracked")); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.AuditFailuresTotal.WithLabelValues("write")); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}

	metrics.HookStarted()
	metrics.HookStarted()
	metrics.HookFinished()
	if got := testutil.ToFloat64(metrics.AuditHooksInFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
}

func TestMetrics_TenantPool(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordTenantOpen(nil)
	metrics.RecordTenantOpen(nil)
	metrics.RecordTenantOpen(errors.New("dial"))
	metrics.RecordTenantEviction()
	metrics.RecordDirectoryLookup(true)
	metrics.RecordDirectoryLookup(false)

	if got := testutil.ToFloat64(metrics.TenantPoolOpen); got != 1 {
		t.Errorf("open = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.TenantPoolOpensTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("open errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.DirectoryCacheHitsTotal); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var metrics *Metrics

	// none of these may panic
	metrics.RecordAuditEntry("USER", "CREATE", "shared", time.Millisecond)
	metrics.RecordAuditSkip("empty_diff")
	metrics.RecordAuditFailure("resolve")
	metrics.HookStarted()
	metrics.HookFinished()
	metrics.RecordTenantOpen(nil)
	metrics.RecordTenantEviction()
	metrics.RecordDirectoryLookup(true)
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/patients/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	})

	for _, id := range []string{"1", "2", "3"} {
		req := httptest.NewRequest(http.MethodPost, "/patients/"+id, nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/patients/{id}", "201"))
	if got != 3 {
		t.Errorf("requests = %v, want 3", got)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.RecordAuditSkip("untracked")

	router := mux.NewRouter()
	RegisterMetricsEndpoint(router, registry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `clinicq_audit_skipped_total{reason="untracked"} 1`) {
		t.Errorf("metrics output missing audit counter:\n%s", body)
	}
}
