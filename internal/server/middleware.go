package server

import (
	"context"
	"net/http"
	"time"
)

const requestTimeout = 10 * time.Second

// timeoutMiddleware bounds how long a single request's context stays valid,
// so a slow database or a wedged RP config fetch cannot pin a goroutine
// indefinitely.
func (h *Handler) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware records method, path, status, and duration for every
// request, and feeds method/pattern/status/duration into the
// http_requests_total and http_request_duration_seconds metrics. pattern
// labels the metrics instead of r.URL.Path so a route like
// /v1/recovery/tokens/{id} contributes one label value, not one per id.
func (h *Handler) loggingMiddleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		h.logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", duration,
			"correlationId", correlationIDFrom(r.Context()),
		)
		observeRequest(r.Method, pattern, wrapped.statusCode, duration)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code
// actually written, since http.ResponseWriter has no getter for it.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
