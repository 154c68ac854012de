// Package logging provides structured HTTP access logging.
package logging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/urlverifier/internal/middleware/realip"
)

// statusRecorder captures the status and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
		s.ResponseWriter.WriteHeader(code)
	}
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.WriteHeader(http.StatusOK)
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

var probes = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
}

// levelFor picks the record level. Probes are debug noise, server
// failures are errors, client mistakes are warnings.
func levelFor(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case probes[path]:
		return slog.LevelDebug
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Middleware logs one record per request with the request id, the matched
// chi route and the client address resolved by realip.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			defer func() {
				status := rec.status
				if status == 0 {
					status = http.StatusOK
				}
				attrs := []any{
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", rec.bytes,
					"duration", time.Since(start).String(),
					"client_ip", realip.GetClientIP(r),
				}
				if rctx := chi.RouteContext(r.Context()); rctx != nil {
					if pattern := rctx.RoutePattern(); pattern != "" {
						attrs = append(attrs, "route", pattern)
					}
				}
				logger.Log(r.Context(), levelFor(r.URL.Path, status), "request", attrs...)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
