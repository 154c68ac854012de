// Package security provides request hardening middleware.
package security

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// scannerPrefixes are probe targets of generic web scanners. None of them
// exist on this server.
var scannerPrefixes = []string{
	"/wp-admin", "/wp-includes", "/wp-content", "/wp-login", "/xmlrpc.php",
	"/.git/", "/.env", "/.htaccess", "/.htpasswd", "/.php",
	"/cgi-bin/", "/phpmyadmin", "/phpinfo", "/server-status", "/web-inf/",
}

// traversalMarkers are rejected anywhere in the path, encoded or not.
var traversalMarkers = []string{"../", "..\\", "..%2f", "..%5c", "%2e%2e", "%00"}

var exempt = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
}

// Suspicious reports whether a request path looks like a scanner probe or
// a traversal attempt. Both the raw and the decoded forms are checked.
func Suspicious(u *url.URL) bool {
	forms := []string{strings.ToLower(u.EscapedPath()), strings.ToLower(u.Path)}
	if decoded, err := url.PathUnescape(u.EscapedPath()); err == nil {
		forms = append(forms, strings.ToLower(decoded))
	}

	for _, p := range forms {
		for _, prefix := range scannerPrefixes {
			if strings.HasPrefix(p, prefix) {
				return true
			}
		}
		for _, marker := range traversalMarkers {
			if strings.Contains(p, marker) {
				return true
			}
		}
	}
	return false
}

// FilterMiddleware answers suspicious requests with a generic 400 before
// they reach routing or rate limiting.
func FilterMiddleware(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !exempt[r.URL.Path] && Suspicious(r.URL) {
				reject(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
