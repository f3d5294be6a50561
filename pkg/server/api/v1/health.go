package v1

import (
	"net/http"
	"sync/atomic"
)

// ReadyzHandler reports readiness: 200 "Ready" once the server has finished
// startup (config loaded, keystore open, workers running), 503 before that.
func ReadyzHandler(ready *atomic.Bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready == nil || !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Not Ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	}
}
