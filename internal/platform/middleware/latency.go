package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aegis/internal/platform/metrics"
)

// Latency records request counts and latency per route. Uses the chi route
// pattern rather than the raw path so ids do not explode label cardinality.
func Latency(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			pattern := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					pattern = p
				}
			}
			m.ObserveRequest(r.Method, pattern, rec.status, time.Since(start))
		})
	}
}
