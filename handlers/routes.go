package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// HeaderUserID carries the caller identity set by the auth layer in front
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"
	anonymousUser   = "anonymous"
)

// NewRouter registers the bulk routes behind request logging
func NewRouter(handler *BulkHandler, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/bulk", withCORS(handler.AdminBulk))
	mux.HandleFunc("/reviews/bulk", withCORS(handler.ReviewBulk))
	mux.HandleFunc("/admin/bulk/jobs", withCORS(handleJobsRoute(handler)))
	mux.HandleFunc("/health", handleHealth)
	return requestLogger(logger, mux)
}

// handleJobsRoute picks GetJob or ListJobs based on the id query parameter
func handleJobsRoute(handler *BulkHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "" {
			handler.GetJob(w, r)
		} else {
			handler.ListJobs(w, r)
		}
	}
}

func withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderUserID+", "+HeaderRequestID)

		if r.Method == http.MethodOptions {
			return
		}
		next(w, r)
	}
}

// handleHealth is a simple health check endpoint
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"healthy"}`)
}

// RequestorFrom returns the already-authorized caller identity
func RequestorFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderUserID)); id != "" {
		return id
	}
	return anonymousUser
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestLogger tags each request with a request id, puts a child logger in
// the request context and writes one access log line.
func requestLogger(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		l := logger.With().Str("request_id", requestID).Logger()
		r = r.WithContext(l.WithContext(r.Context()))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		l.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Str("user", RequestorFrom(r)).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
