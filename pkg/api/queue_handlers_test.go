package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/clinicq/pkg/audit"
	"github.com/platinummonkey/clinicq/pkg/contextkeys"
	"github.com/platinummonkey/clinicq/pkg/models"
	"github.com/platinummonkey/clinicq/pkg/queue"
	"github.com/platinummonkey/clinicq/pkg/storage/postgres"
)

// fakeQueues serves one queue entry and remembers the tenant of the last call
type fakeQueues struct {
	entry      *models.Queue
	err        error
	lastTenant string
	lastStatus models.QueueStatus
}

func (f *fakeQueues) seen(ctx context.Context) {
	f.lastTenant = contextkeys.GetTenant(ctx)
}

func (f *fakeQueues) Get(ctx context.Context, id string) (*models.Queue, error) {
	f.seen(ctx)
	if f.err != nil {
		return nil, f.err
	}
	if id != f.entry.ID {
		return nil, queue.ErrNotFound
	}
	return f.entry, nil
}

func (f *fakeQueues) Create(ctx context.Context, req queue.CreateRequest) (*models.Queue, error) {
	f.seen(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Queue{ID: "q-new", PatientID: req.PatientID, DoctorID: req.DoctorID, Status: models.QueueBooked}, nil
}

func (f *fakeQueues) UpdateStatus(ctx context.Context, id string, status models.QueueStatus) (*models.Queue, error) {
	f.seen(ctx)
	f.lastStatus = status
	if f.err != nil {
		return nil, f.err
	}
	updated := *f.entry
	updated.Status = status
	return &updated, nil
}

func (f *fakeQueues) Remove(ctx context.Context, id string) error {
	f.seen(ctx)
	return f.err
}

func (f *fakeQueues) Restore(ctx context.Context, id string) (*models.Queue, error) {
	f.seen(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return f.entry, nil
}

func newTestRouter(service QueueService, directory postgres.Directory) http.Handler {
	return NewRouter(RouterConfig{Queues: service, Directory: directory})
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestQueueHandlers_Get(t *testing.T) {
	service := &fakeQueues{entry: &models.Queue{ID: "q1", Status: models.QueueBooked}}
	router := newTestRouter(service, nil)

	w := do(t, router, http.MethodGet, "/t/acme/queues/q1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme", service.lastTenant)

	var got models.Queue
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "q1", got.ID)

	w = do(t, router, http.MethodGet, "/t/acme/queues/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueHandlers_Create(t *testing.T) {
	service := &fakeQueues{}
	router := newTestRouter(service, nil)

	w := do(t, router, http.MethodPost, "/t/acme/queues", queue.CreateRequest{
		PatientID: "p1", DoctorID: "d1", BranchID: "b1", ScheduledAt: time.Now(),
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	var got models.Queue
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "q-new", got.ID)
	assert.Equal(t, "p1", got.PatientID)

	w = do(t, router, http.MethodPost, "/t/acme/queues", map[string]string{"unknown": "field"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueHandlers_UpdateStatus(t *testing.T) {
	service := &fakeQueues{entry: &models.Queue{ID: "q1", Status: models.QueueBooked}}
	router := newTestRouter(service, nil)

	w := do(t, router, http.MethodPatch, "/t/acme/queues/q1/status", map[string]string{"status": "CALLED"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.QueueCalled, service.lastStatus)

	w = do(t, router, http.MethodPatch, "/t/acme/queues/q1/status", map[string]string{"status": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueHandlers_RemoveAndRestore(t *testing.T) {
	service := &fakeQueues{entry: &models.Queue{ID: "q1"}}
	router := newTestRouter(service, nil)

	w := do(t, router, http.MethodDelete, "/t/acme/queues/q1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodPost, "/t/acme/queues/q1/restore", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQueueHandlers_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", queue.ErrNotFound, http.StatusNotFound},
		{"invalid transition", fmt.Errorf("%w: COMPLETED to CALLED", queue.ErrInvalidTransition), http.StatusConflict},
		{"invalid request", queue.ErrInvalidRequest, http.StatusBadRequest},
		{"no tenant", audit.ErrNoTenant, http.StatusBadRequest},
		{"tenant gone", fmt.Errorf("tenant acme: %w", postgres.ErrTenantNotFound), http.StatusNotFound},
		{"unexpected", fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &fakeQueues{entry: &models.Queue{ID: "q1"}, err: tt.err}
			w := do(t, newTestRouter(service, nil), http.MethodPatch, "/t/acme/queues/q1/status",
				map[string]string{"status": "CALLED"})
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestQueueHandlers_InternalErrorsAreNotLeaked(t *testing.T) {
	service := &fakeQueues{err: fmt.Errorf("pq: password authentication failed")}
	w := do(t, newTestRouter(service, nil), http.MethodDelete, "/t/acme/queues/q1", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}
