package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/clinicq/pkg/audit"
	"github.com/platinummonkey/clinicq/pkg/middleware"
	"github.com/platinummonkey/clinicq/pkg/models"
	"github.com/platinummonkey/clinicq/pkg/observability"
	"github.com/platinummonkey/clinicq/pkg/queue"
	"github.com/platinummonkey/clinicq/pkg/reqctx"
	"github.com/platinummonkey/clinicq/pkg/storage"
	"github.com/platinummonkey/clinicq/pkg/storage/postgres"
)

var directory = &postgres.StaticDirectory{Tenants: map[string]string{"acme": "postgres://acme"}}

func TestRouter_TenantValidation(t *testing.T) {
	service := &fakeQueues{entry: &models.Queue{ID: "q1"}}
	router := newTestRouter(service, directory)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/t/acme/queues/q1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/t/hooli/queues/q1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/t/ACME/queues/q1", nil).Code)
}

func TestRouter_DirectoryOutage(t *testing.T) {
	down := postgres.DirectoryFunc(func(ctx context.Context, tenant string) (string, error) {
		return "", errors.New("directory unavailable")
	})
	router := newTestRouter(&fakeQueues{entry: &models.Queue{ID: "q1"}}, down)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, router, http.MethodGet, "/t/acme/queues/q1", nil).Code)
}

func TestRouter_RequestID(t *testing.T) {
	router := newTestRouter(&fakeQueues{entry: &models.Queue{ID: "q1"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/t/acme/queues/q1", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(middleware.RequestIDHeader))

	w = do(t, router, http.MethodGet, "/t/acme/queues/q1", nil)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestRouter_NotFound(t *testing.T) {
	w := do(t, newTestRouter(&fakeQueues{}, nil), http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestRouter_Metrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	router := NewRouter(RouterConfig{Queues: &fakeQueues{entry: &models.Queue{ID: "q1"}}, Metrics: metrics})

	do(t, router, http.MethodGet, "/t/acme/queues/q1", nil)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.HTTPRequestsTotal))
}

type tenantSource struct {
	db *sql.DB
}

func (s tenantSource) Shared(ctx context.Context) (*sql.DB, error) {
	return nil, errors.New("shared database not available")
}

func (s tenantSource) Tenant(ctx context.Context, key string) (*sql.DB, error) {
	return s.db, nil
}

type trail struct {
	mu      sync.Mutex
	entries []*audit.LogEntry
}

func (s *trail) Append(ctx context.Context, entry *audit.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func TestRouter_MutationIsAuditedWithRequestMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	source := tenantSource{db: db}
	store := &trail{}
	var partitions []audit.Partition
	recorder := audit.NewRecorder(audit.NewRouter(audit.HandleResolverFunc(
		func(ctx context.Context, p audit.Partition) (audit.Store, error) {
			partitions = append(partitions, p)
			return store, nil
		},
	)))
	service := queue.NewService(source, storage.NewMutator(source, audit.NewHookAdapter(recorder)))

	router := NewRouter(RouterConfig{
		Queues:    service,
		Directory: directory,
		Actor:     middleware.HeaderActor("X-User-ID"),
	})

	columns := []string{
		"id", "patient_id", "doctor_id", "branch_id", "service_id", "number", "status",
		"scheduled_at", "called_at", "created_at", "updated_at", "deleted_at",
	}
	booked := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM queues WHERE id = \\$1 AND deleted_at IS NULL FOR UPDATE").
		WithArgs("q1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"q1", "p1", "d1", "b1", nil, 1, "CALLED", booked, booked, booked, booked, nil,
		))
	mock.ExpectExec("UPDATE queues SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodPatch, "/t/acme/queues/q1/status", strings.NewReader(`{"status":"IN_SERVICE"}`))
	req.Header.Set(middleware.RequestIDHeader, "req-7")
	req.Header.Set("X-User-ID", "u-9")
	req.Header.Set("User-Agent", "front-desk/2.1")
	req.RemoteAddr = "10.1.2.3:5555"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, []audit.Partition{audit.TenantPartition("acme")}, partitions)
	assert.Equal(t, audit.EventUpdate, entry.Event)
	assert.Equal(t, audit.ItemTypeQueue, entry.ItemType)
	assert.Equal(t, "q1", *entry.ItemID)
	assert.Equal(t, "u-9", *entry.ActorID)
	assert.Equal(t, reqctx.ActorUser, entry.ActorType)
	assert.Equal(t, "req-7", *entry.RequestID)
	assert.Equal(t, "10.1.2.3", *entry.IP)
	assert.Equal(t, "front-desk/2.1", *entry.UserAgent)
	assert.Equal(t, "PATCH /t/acme/queues/q1/status", *entry.Source)
	assert.Equal(t, models.QueueCalled, entry.ObjectChanges.Before["status"])
	assert.Equal(t, models.QueueInService, entry.ObjectChanges.After["status"])
}
