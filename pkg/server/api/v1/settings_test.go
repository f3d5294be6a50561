package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GunnyMarc/verba/pkg/server/api"
)

// fakeKeyStore backs the key handlers without touching disk.
type fakeKeyStore struct {
	keys   map[string]string
	setErr error
}

func (f *fakeKeyStore) Set(vendor, apiKey string) error {
	if f.setErr != nil {
		return f.setErr
	}
	if f.keys == nil {
		f.keys = make(map[string]string)
	}
	if apiKey == "" {
		delete(f.keys, vendor)
		return nil
	}
	f.keys[vendor] = apiKey
	return nil
}

func (f *fakeKeyStore) Get(vendor string) (string, bool, error) {
	key, ok := f.keys[vendor]
	return key, ok, nil
}

func (f *fakeKeyStore) Vendors() ([]string, error) {
	out := make([]string, 0, len(f.keys))
	for v := range f.keys {
		out = append(out, v)
	}
	return out, nil
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeSettings(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Settings map[string]any `json:"settings"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Settings
}

func TestGetSettingsHandler(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Settings = api.NewSettingsStore(map[string]any{
		"whisper_model":  "base",
		"markdown_style": "detailed",
	})

	w := httptest.NewRecorder()
	GetSettingsHandler(deps)(w, httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil))

	require.Equal(t, http.StatusOK, w.Code)
	settings := decodeSettings(t, w)
	assert.Equal(t, "base", settings["whisper_model"])
	assert.Equal(t, "detailed", settings["markdown_style"])
}

func TestUpdateSettingsHandler(t *testing.T) {
	putSettings := func(t *testing.T, deps *api.Deps, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/settings", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		UpdateSettingsHandler(deps)(w, req)
		return w
	}

	t.Run("applies patch", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		deps.Settings = api.NewSettingsStore(map[string]any{"whisper_model": "base"})

		w := putSettings(t, deps, `{"whisper_model": "large-v3", "language": "de"}`)

		require.Equal(t, http.StatusOK, w.Code)
		settings := decodeSettings(t, w)
		assert.Equal(t, "large-v3", settings["whisper_model"])
		assert.Equal(t, "de", settings["language"])

		// The store itself changed, not just the response
		assert.Equal(t, "large-v3", deps.Settings.All()["whisper_model"])
	})

	t.Run("null clears a key", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		deps.Settings = api.NewSettingsStore(map[string]any{"language": "en"})

		w := putSettings(t, deps, `{"language": null}`)

		require.Equal(t, http.StatusOK, w.Code)
		_, present := decodeSettings(t, w)["language"]
		assert.False(t, present)
	})

	t.Run("rejects unknown markdown style", func(t *testing.T) {
		deps, _ := newTestDeps(t)

		w := putSettings(t, deps, `{"markdown_style": "fancy"}`)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_STYLE", decodeError(t, w).Code)
	})

	t.Run("accepts valid markdown style", func(t *testing.T) {
		deps, _ := newTestDeps(t)

		w := putSettings(t, deps, `{"markdown_style": "timestamped"}`)

		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		deps, _ := newTestDeps(t)

		w := putSettings(t, deps, `{not json`)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_JSON", decodeError(t, w).Code)
	})
}

func TestListKeysHandler(t *testing.T) {
	t.Run("lists stored vendors", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		deps.Keystore = &fakeKeyStore{keys: map[string]string{"openai": "sk-test"}}

		w := httptest.NewRecorder()
		ListKeysHandler(deps)(w, httptest.NewRequest(http.MethodGet, "/api/v1/settings/keys", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Vendors []string `json:"vendors"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, []string{"openai"}, body.Vendors)
	})

	t.Run("keystore disabled", func(t *testing.T) {
		deps, _ := newTestDeps(t)

		w := httptest.NewRecorder()
		ListKeysHandler(deps)(w, httptest.NewRequest(http.MethodGet, "/api/v1/settings/keys", nil))

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "KEYSTORE_DISABLED", decodeError(t, w).Code)
	})
}

func TestSetKeyHandler(t *testing.T) {
	putKey := func(t *testing.T, deps *api.Deps, vendor, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/settings/keys/"+vendor, bytes.NewBufferString(body))
		req.SetPathValue("vendor", vendor)
		w := httptest.NewRecorder()
		SetKeyHandler(deps)(w, req)
		return w
	}

	t.Run("stores a key", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		store := &fakeKeyStore{}
		deps.Keystore = store

		w := putKey(t, deps, "anthropic", `{"api_key": "sk-ant-test"}`)

		require.Equal(t, http.StatusNoContent, w.Code)
		key, ok, err := store.Get("anthropic")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "sk-ant-test", key)
	})

	t.Run("empty key removes the credential", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		store := &fakeKeyStore{keys: map[string]string{"openai": "sk-old"}}
		deps.Keystore = store

		w := putKey(t, deps, "openai", `{"api_key": ""}`)

		require.Equal(t, http.StatusNoContent, w.Code)
		_, ok, err := store.Get("openai")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown vendor", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		deps.Keystore = &fakeKeyStore{}

		w := putKey(t, deps, "copilot", `{"api_key": "x"}`)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "UNKNOWN_VENDOR", decodeError(t, w).Code)
	})

	t.Run("keystore disabled", func(t *testing.T) {
		deps, _ := newTestDeps(t)

		w := putKey(t, deps, "openai", `{"api_key": "x"}`)

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "KEYSTORE_DISABLED", decodeError(t, w).Code)
	})
}
