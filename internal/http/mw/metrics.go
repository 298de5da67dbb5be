package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/veriscope/veriscope-api/internal/metrics"
)

// ObserveRequests returns middleware that records per-route request
// counts and latency. The route label uses the chi pattern (e.g.
// "/api/v1/finance/{ticker}/metrics/{metric}") so cardinality stays
// bounded regardless of path values.
func ObserveRequests(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveRequest(route, ww.Status(), time.Since(start))
		})
	}
}
