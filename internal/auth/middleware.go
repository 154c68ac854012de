// Package auth guards write routes with API keys.
package auth

import (
	"context"
	"net/http"

	"github.com/pendergraft/urlverifier/internal/storage"
)

type contextKey struct{}

// Validator resolves a presented key to its stored record.
type Validator interface {
	ValidateAPIKey(ctx context.Context, key string) (*storage.APIKey, error)
}

// ErrorWriter writes a JSON error response.
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// KeyFromContext returns the key that authenticated the request, if any.
func KeyFromContext(ctx context.Context) *storage.APIKey {
	key, _ := ctx.Value(contextKey{}).(*storage.APIKey)
	return key
}

// Middleware rejects requests without a valid, unrevoked API key.
// Malformed keys are refused without a store lookup.
func Middleware(v Validator, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := FromRequest(r)
			if presented == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}
			if !WellFormed(presented) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}

			key, err := v.ValidateAPIKey(r.Context(), presented)
			if err != nil || key == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, key)))
		})
	}
}
