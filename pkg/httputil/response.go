// Package httputil holds the JSON response, request parsing and middleware
// helpers shared by the clinicq HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response. The request id echoed by
// the request context middleware is repeated in the body.
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{
		Error:     message,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// WriteError writes err as a JSON error response with the given status code
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteErrorMessage(w, status, err.Error())
}

// StatusMapping pairs a sentinel error with the status it maps to
type StatusMapping struct {
	Err    error
	Status int
}

// WriteMappedError writes the status of the first mapping err matches.
// Unmatched errors become a 500 with a generic message so internals do not leak.
func WriteMappedError(w http.ResponseWriter, err error, mappings ...StatusMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			WriteError(w, m.Status, err)
			return
		}
	}
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
