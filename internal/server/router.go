package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/logging"
)

// NewRouter mounts the agent API under /api.
func NewRouter(h *QueueHandler, hub *Hub) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(requestLogger)

	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api.HandleFunc("/queue", h.List).Methods(http.MethodGet)
	api.HandleFunc("/queue", h.Enqueue).Methods(http.MethodPost)
	api.HandleFunc("/queue", h.Clear).Methods(http.MethodDelete)
	api.HandleFunc("/queue/sync", h.Sync).Methods(http.MethodPost)
	api.HandleFunc("/queue/hydrate", h.Hydrate).Methods(http.MethodPost)
	api.HandleFunc("/queue/retry", h.RetryFailed).Methods(http.MethodPost)
	api.HandleFunc("/queue/{id}", h.Get).Methods(http.MethodGet)
	api.HandleFunc("/queue/{id}", h.Remove).Methods(http.MethodDelete)
	api.HandleFunc("/queue/{id}/retry", h.Retry).Methods(http.MethodPost)

	api.HandleFunc("/connectivity", h.SetConnectivity).Methods(http.MethodPut)

	if hub != nil {
		api.HandleFunc("/ws", hub.ServeWS).Methods(http.MethodGet)
	}

	return r
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Debug("Agent API request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}
