package httpx

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GunnyMarc/verba/pkg/config"
	"github.com/GunnyMarc/verba/pkg/server/api"
)

func testDeps() *api.Deps {
	ready := &atomic.Bool{}
	ready.Store(true)
	return &api.Deps{
		Settings: api.NewSettingsStore(nil),
		Ready:    ready,
	}
}

func TestNewRouter(t *testing.T) {
	cfg := config.DefaultConfig().Server
	router := NewRouter(cfg, testDeps())

	require.NotNil(t, router)
}

func TestNewRouter_HealthzMounted(t *testing.T) {
	cfg := config.DefaultConfig().Server
	router := NewRouter(cfg, testDeps())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())
}

func TestNewRouter_ReadyzMounted(t *testing.T) {
	cfg := config.DefaultConfig().Server
	deps := testDeps()
	router := NewRouter(cfg, deps)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	deps.Ready.Store(false)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNewRouter_SettingsMounted(t *testing.T) {
	cfg := config.DefaultConfig().Server
	router := NewRouter(cfg, testDeps())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "settings")
}

func TestNewRouter_MethodNotAllowed(t *testing.T) {
	cfg := config.DefaultConfig().Server
	router := NewRouter(cfg, testDeps())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/settings", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestNewRouter_UnknownPath(t *testing.T) {
	cfg := config.DefaultConfig().Server
	router := NewRouter(cfg, testDeps())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthzHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	HealthzHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())
}

func TestHealthzHandler_AlwaysReturnsOK(t *testing.T) {
	// Test multiple calls to ensure idempotency
	for range 5 {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()

		HealthzHandler(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "OK", w.Body.String())
	}
}
