package v1

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/GunnyMarc/verba/pkg/markdown"
	"github.com/GunnyMarc/verba/pkg/mediaexec"
	"github.com/GunnyMarc/verba/pkg/server/api"
	"github.com/GunnyMarc/verba/pkg/summarize"
)

// GetSettingsHandler handles GET /api/v1/settings
//
// Returns the runtime defaults applied to new jobs.
func GetSettingsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]any{"settings": deps.Settings.All()})
	}
}

// UpdateSettingsHandler handles PUT /api/v1/settings
//
// Merges the request body into the runtime defaults and returns the new
// state. Null values remove a key.
func UpdateSettingsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "INVALID_JSON", "request body is not valid JSON")
			return
		}

		if style, ok := patch[mediaexec.SettingMarkdownStyle].(string); ok {
			if !markdown.Style(style).IsValid() {
				api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "INVALID_STYLE", "unknown markdown style: "+style)
				return
			}
		}

		updated := deps.Settings.Update(patch)
		api.WriteJSON(w, http.StatusOK, map[string]any{"settings": updated})
	}
}

// SetKeyRequest is the PUT /api/v1/settings/keys/{vendor} payload. An
// empty api_key removes the stored credential.
type SetKeyRequest struct {
	APIKey string `json:"api_key"`
}

// ListKeysHandler handles GET /api/v1/settings/keys
//
// Reports which vendors have a stored credential. Key material is never
// returned.
func ListKeysHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Keystore == nil {
			api.WriteJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "KEYSTORE_DISABLED", "keystore is not configured")
			return
		}

		vendors, err := deps.Keystore.Vendors()
		if err != nil {
			api.WriteError(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"vendors": vendors})
	}
}

// SetKeyHandler handles PUT /api/v1/settings/keys/{vendor}
//
// Stores (or with an empty key, removes) the API key for a vendor.
func SetKeyHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Keystore == nil {
			api.WriteJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "KEYSTORE_DISABLED", "keystore is not configured")
			return
		}

		vendor := r.PathValue("vendor")
		if !slices.Contains(summarize.Vendors(), vendor) {
			api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "UNKNOWN_VENDOR", "unknown vendor: "+vendor)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
		var req SetKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "INVALID_JSON", "request body is not valid JSON")
			return
		}

		if err := deps.Keystore.Set(vendor, req.APIKey); err != nil {
			api.WriteError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
