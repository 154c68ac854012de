package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// unmatched labels requests no route claimed, so scanners probing random
// paths cannot grow the label set.
const unmatched = "unmatched"

// Middleware records request count and latency labelled by the chi route
// pattern. It must be mounted on a chi router.
func Middleware(next http.Handler) http.Handler {
	if !enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routeLabel(r)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel reads the pattern chi matched, e.g. /api/v1/submissions/{id}.
// It is only complete after the router has served the request.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatched
	}
	if pattern := rctx.RoutePattern(); pattern != "" && pattern != "/*" {
		return pattern
	}
	return unmatched
}
