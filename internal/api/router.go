// Package api is the HTTP front door of the pairing service.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/parnexcodes/pairlink/internal/logging"
)

// NewRouter wires every route onto a gorilla router
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/code", h.Code).Methods(http.MethodGet)
	// Older clients call the root and /pair with the same query
	r.HandleFunc("/pair", h.Code).Methods(http.MethodGet)
	r.HandleFunc("/", h.Code).Methods(http.MethodGet)

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "not found"})
	})
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestLogger logs method, path and status. The query string carries the
// phone number, so it is left out.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Request(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
