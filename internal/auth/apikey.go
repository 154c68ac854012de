package auth

import (
	"net/http"
	"strings"
)

const (
	// KeyPrefix starts every API key issued by the server.
	KeyPrefix = "uv_key_"
	// keyHexLen is the length of the random hex part of a key.
	keyHexLen = 48
)

// FromRequest extracts an API key from X-API-Key or an Authorization
// bearer token. It returns "" when neither is present.
func FromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// WellFormed reports whether key has the shape of an issued key.
func WellFormed(key string) bool {
	rest, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok || len(rest) != keyHexLen {
		return false
	}
	for _, c := range rest {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
