package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mirabel-dev/folio/pkg/bulk"
	"github.com/mirabel-dev/folio/pkg/coordinator/models"
)

// writeJSON writes a JSON response with the given status code.
//
// If encoding fails, a last-resort error body is written instead.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// writeError writes the JSON error response for err, translating domain
// errors into their HTTP status codes in one place.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{
		"status": "error",
		"error":  err.Error(),
	})
}

// writeBadRequest writes a 400 with the error message.
func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"status": "error",
		"error":  err.Error(),
	})
}

// statusFor maps a domain error to its HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidFormat):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrWorkNotFound),
		errors.Is(err, models.ErrJobNotFound),
		errors.Is(err, models.ErrObjectNotFound),
		errors.Is(err, bulk.ErrUnknownDownload):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyReported):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
