// Package realip resolves the client address of a request, honoring
// X-Forwarded-For only when the peer is a trusted proxy.
package realip

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type contextKey struct{}

// Config holds the configuration for the real IP middleware
type Config struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR ranges or bare addresses
}

// Resolver decides which address a request originates from.
type Resolver struct {
	trust    bool
	prefixes []netip.Prefix
}

// NewResolver parses cfg. Entries that are neither a prefix nor an
// address are ignored.
func NewResolver(cfg Config) *Resolver {
	r := &Resolver{trust: cfg.TrustProxy}
	if !cfg.TrustProxy {
		return r
	}
	for _, entry := range cfg.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if p, err := netip.ParsePrefix(entry); err == nil {
			r.prefixes = append(r.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(entry); err == nil {
			r.prefixes = append(r.prefixes, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return r
}

// Trusted reports whether addr belongs to a trusted proxy.
func (r *Resolver) Trusted(addr string) bool {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range r.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// ClientIP returns the originating address of req. Forwarded hops are
// walked right to left; the first untrusted hop is the client.
func (r *Resolver) ClientIP(req *http.Request) string {
	peer := hostOnly(req.RemoteAddr)
	if !r.trust || !r.Trusted(peer) {
		return peer
	}

	xff := req.Header.Get("X-Forwarded-For")
	if xff == "" {
		if xri := strings.TrimSpace(req.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
		return peer
	}

	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !r.Trusted(hop) {
			return hop
		}
	}
	return strings.TrimSpace(hops[0])
}

// Middleware stores the resolved client address in the request context.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	resolver := NewResolver(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), contextKey{}, resolver.ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientIP returns the address stored by Middleware, or the peer
// address when the middleware did not run.
func GetClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(contextKey{}).(string); ok && ip != "" {
		return ip
	}
	return hostOnly(r.RemoteAddr)
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
