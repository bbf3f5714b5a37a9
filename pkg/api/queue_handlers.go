// Package api exposes the clinic queue over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/clinicq/pkg/audit"
	"github.com/platinummonkey/clinicq/pkg/httputil"
	"github.com/platinummonkey/clinicq/pkg/models"
	"github.com/platinummonkey/clinicq/pkg/observability"
	"github.com/platinummonkey/clinicq/pkg/queue"
	"github.com/platinummonkey/clinicq/pkg/storage/postgres"
)

var queueErrors = []httputil.StatusMapping{
	{Err: queue.ErrNotFound, Status: http.StatusNotFound},
	{Err: queue.ErrInvalidTransition, Status: http.StatusConflict},
	{Err: queue.ErrInvalidRequest, Status: http.StatusBadRequest},
	{Err: audit.ErrNoTenant, Status: http.StatusBadRequest},
	{Err: postgres.ErrTenantNotFound, Status: http.StatusNotFound},
}

// QueueService is the part of queue.Service the handlers use
type QueueService interface {
	Get(ctx context.Context, id string) (*models.Queue, error)
	Create(ctx context.Context, req queue.CreateRequest) (*models.Queue, error)
	UpdateStatus(ctx context.Context, id string, status models.QueueStatus) (*models.Queue, error)
	Remove(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) (*models.Queue, error)
}

// QueueHandlers handles queue HTTP requests
type QueueHandlers struct {
	service QueueService
}

// NewQueueHandlers creates queue handlers
func NewQueueHandlers(service QueueService) *QueueHandlers {
	return &QueueHandlers{service: service}
}

// RegisterRoutes registers queue routes on a router scoped to one tenant
func (h *QueueHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/queues", h.CreateQueue).Methods("POST")
	router.HandleFunc("/queues/{id}", h.GetQueue).Methods("GET")
	router.HandleFunc("/queues/{id}/status", h.UpdateStatus).Methods("PATCH")
	router.HandleFunc("/queues/{id}", h.RemoveQueue).Methods("DELETE")
	router.HandleFunc("/queues/{id}/restore", h.RestoreQueue).Methods("POST")
}

// GetQueue returns one queue entry
func (h *QueueHandlers) GetQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, q)
}

// CreateQueue books a new queue entry
func (h *QueueHandlers) CreateQueue(w http.ResponseWriter, r *http.Request) {
	var req queue.CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	q, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusCreated, q)
}

type statusRequest struct {
	Status models.QueueStatus `json:"status"`
}

// UpdateStatus moves a queue entry to a new status
func (h *QueueHandlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req statusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Status == "" {
		httputil.WriteBadRequest(w, "status is required")
		return
	}

	q, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, q)
}

// RemoveQueue soft-deletes a queue entry
func (h *QueueHandlers) RemoveQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Remove(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RestoreQueue brings back a removed queue entry
func (h *QueueHandlers) RestoreQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	q, err := h.service.Restore(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, q)
}

func (h *QueueHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	observability.FromContext(r.Context()).WithError(err).Warn("queue request failed")
	httputil.WriteMappedError(w, err, queueErrors...)
}
