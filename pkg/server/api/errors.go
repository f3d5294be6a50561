package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/GunnyMarc/verba/pkg/jobs"
	"github.com/GunnyMarc/verba/pkg/mediaexec"
)

// Note on API Error DTOs
//
// The JSON error payloads produced here (error, code, message) are part of
// the public API contract. Evolve them additively: add optional fields, do
// not remove or rename existing ones; breaking changes go to a new version.

// ErrorResponse represents a standard JSON error response.
// Used consistently across all API endpoints for error responses.
//
// Example:
//
//	{
//	  "error": "Not Found",
//	  "code": "JOB_NOT_FOUND",
//	  "message": "job not found"
//	}
type ErrorResponse struct {
	Error   string `json:"error"`             // Short error type (e.g., "Not Found", "Internal Server Error")
	Code    string `json:"code,omitempty"`    // Machine-readable error code (e.g., "JOB_NOT_FOUND", "INVALID_INPUT")
	Message string `json:"message,omitempty"` // Detailed error message (optional)
}

// WriteError writes a standard JSON error response to the client.
// It automatically determines the HTTP status code based on error type:
//   - mediaexec.ValidationError → 400 Bad Request
//   - jobs.ErrNotFound → 404 Not Found
//   - jobs.ErrPoolClosed → 503 Service Unavailable
//   - All other errors → 500 Internal Server Error
//
// It also logs the error with structured logging for observability.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var statusCode int
	var errorType string
	var errorCode string

	var validationErr *mediaexec.ValidationError
	switch {
	case errors.As(err, &validationErr):
		statusCode = http.StatusBadRequest
		errorType = "Bad Request"
		errorCode = "INVALID_INPUT"
	case errors.Is(err, jobs.ErrNotFound):
		statusCode = http.StatusNotFound
		errorType = "Not Found"
		errorCode = "JOB_NOT_FOUND"
	case errors.Is(err, jobs.ErrPoolClosed):
		statusCode = http.StatusServiceUnavailable
		errorType = "Service Unavailable"
		errorCode = "SHUTTING_DOWN"
	default:
		statusCode = http.StatusInternalServerError
		errorType = "Internal Server Error"
		errorCode = "INTERNAL_ERROR"
	}

	logEvent := log.Error().
		Str("component", "api").
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", statusCode).
		Str("error_code", errorCode).
		Err(err)

	switch {
	case statusCode == http.StatusNotFound:
		logEvent.Msg("Resource not found")
	case statusCode >= 500:
		logEvent.Msg("Internal server error")
	default:
		logEvent.Msg("Client error")
	}

	writeErrorResponse(w, statusCode, errorType, errorCode, err.Error())
}

// WriteJSONError writes a custom JSON error response with a specific status code.
// Use this when you need fine-grained control over the error response.
//
// Example:
//
//	WriteJSONError(w, http.StatusConflict, "Conflict", "JOB_NOT_FINISHED", "job is still running")
func WriteJSONError(w http.ResponseWriter, statusCode int, errorType, errorCode, message string) {
	writeErrorResponse(w, statusCode, errorType, errorCode, message)
}

// WriteJSON writes a JSON response to the client.
// Use this for successful API responses.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().
			Str("component", "api").
			Err(err).
			Msg("Failed to encode JSON response")
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, errorType, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   errorType,
		Code:    errorCode,
		Message: message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().
			Str("component", "api").
			Err(err).
			Msg("Failed to encode error response")
	}
}
