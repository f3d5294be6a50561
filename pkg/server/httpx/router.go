// Package httpx assembles the HTTP routing layer for the verba server.
package httpx

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GunnyMarc/verba/pkg/config"
	"github.com/GunnyMarc/verba/pkg/server/api"
	v1 "github.com/GunnyMarc/verba/pkg/server/api/v1"
)

// NewRouter builds the HTTP handler tree: the v1 job and settings API,
// plus the liveness and readiness probes.
func NewRouter(cfg config.ServerConfig, deps *api.Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/jobs", v1.CreateJobHandler(deps))
	mux.HandleFunc("GET /api/v1/jobs", v1.ListJobsHandler(deps))
	mux.HandleFunc("GET /api/v1/jobs/{id}", v1.GetJobHandler(deps))
	mux.HandleFunc("GET /api/v1/jobs/{id}/stream", v1.JobStreamHandler(deps))
	mux.HandleFunc("GET /api/v1/jobs/{id}/result", v1.JobResultHandler(deps))
	mux.HandleFunc("GET /api/v1/jobs/{id}/artifact", v1.JobArtifactHandler(deps))
	mux.HandleFunc("DELETE /api/v1/jobs/{id}", v1.DeleteJobHandler(deps))

	mux.HandleFunc("GET /api/v1/settings", v1.GetSettingsHandler(deps))
	mux.HandleFunc("PUT /api/v1/settings", v1.UpdateSettingsHandler(deps))
	mux.HandleFunc("GET /api/v1/settings/keys", v1.ListKeysHandler(deps))
	mux.HandleFunc("PUT /api/v1/settings/keys/{vendor}", v1.SetKeyHandler(deps))

	mux.HandleFunc("GET /healthz", HealthzHandler)
	mux.HandleFunc("GET /readyz", v1.ReadyzHandler(deps.Ready))

	log.Debug().
		Str("component", "httpx.router").
		Str("addr", cfg.Addr).
		Int("port", cfg.Port).
		Msg("Router assembled")

	return requestLogger(mux)
}

// HealthzHandler is the liveness probe. It answers OK whenever the
// process can serve requests at all.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// requestLogger logs one line per request at debug level. Streaming
// endpoints hold the connection open, so duration is logged on close.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("component", "httpx.router").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
