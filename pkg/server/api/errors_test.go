package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GunnyMarc/verba/pkg/jobs"
	"github.com/GunnyMarc/verba/pkg/mediaexec"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestWriteError_ValidationError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()

	WriteError(w, req, &mediaexec.ValidationError{Message: "unsupported audio format: .txt"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decodeError(t, w)
	require.Equal(t, "Bad Request", resp.Error)
	require.Equal(t, "INVALID_INPUT", resp.Code)
	require.Contains(t, resp.Message, "unsupported audio format")
}

func TestWriteError_WrappedValidationError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()

	wrapped := fmt.Errorf("submit: %w", &mediaexec.ValidationError{Message: "no input files"})
	WriteError(w, req, wrapped)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWriteError_JobNotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/deadbeef", nil)
	w := httptest.NewRecorder()

	WriteError(w, req, jobs.ErrNotFound)

	require.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeError(t, w)
	require.Equal(t, "JOB_NOT_FOUND", resp.Code)
}

func TestWriteError_PoolClosed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()

	WriteError(w, req, jobs.ErrPoolClosed)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeError(t, w)
	require.Equal(t, "SHUTTING_DOWN", resp.Code)
}

func TestWriteError_GenericError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()

	WriteError(w, req, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	require.Equal(t, "Internal Server Error", resp.Error)
	require.Equal(t, "INTERNAL_ERROR", resp.Code)
}

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSONError(w, http.StatusConflict, "Conflict", "JOB_NOT_FINISHED", "job is still running")

	require.Equal(t, http.StatusConflict, w.Code)
	resp := decodeError(t, w)
	require.Equal(t, "Conflict", resp.Error)
	require.Equal(t, "JOB_NOT_FINISHED", resp.Code)
	require.Equal(t, "job is still running", resp.Message)
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSON(w, http.StatusCreated, map[string]string{"job_id": "a1b2c3d4"})

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.JSONEq(t, `{"job_id":"a1b2c3d4"}`, w.Body.String())
}
