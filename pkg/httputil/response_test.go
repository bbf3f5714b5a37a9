package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusCreated, map[string]string{"id": "q1"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"q1"}`, w.Body.String())
}

func TestWriteErrorMessage_EchoesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-1")

	WriteErrorMessage(w, http.StatusNotFound, "queue entry not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "queue entry not found", body.Error)
	assert.Equal(t, "req-1", body.RequestID)
}

func TestWriteMappedError(t *testing.T) {
	errMissing := errors.New("missing")
	errConflict := errors.New("conflict")
	mappings := []StatusMapping{
		{Err: errMissing, Status: http.StatusNotFound},
		{Err: errConflict, Status: http.StatusConflict},
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"direct match", errMissing, http.StatusNotFound, "missing"},
		{"wrapped match", fmt.Errorf("queue q1: %w", errConflict), http.StatusConflict, "queue q1: conflict"},
		{"unmatched hides details", errors.New("pq: password authentication failed"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteMappedError(w, tt.err, mappings...)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, decodeError(t, w).Error)
		})
	}
}

func TestWriteHelpers(t *testing.T) {
	w := httptest.NewRecorder()
	WriteBadRequest(w, "bad")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	WriteNotFound(w, "gone")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	WriteError(w, http.StatusConflict, errors.New("taken"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "taken", decodeError(t, w).Error)

	w = httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
