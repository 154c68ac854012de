package realip

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resolve(t *testing.T, cfg Config, remote string, headers map[string]string) string {
	t.Helper()

	var got string
	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClientIP(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestMiddleware(t *testing.T) {
	private := []string{"10.0.0.0/8", "192.168.0.0/16"}

	tests := []struct {
		name    string
		cfg     Config
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:    "proxy trust disabled ignores forwarded header",
			cfg:     Config{TrustProxy: false, TrustedProxies: private},
			remote:  "192.168.1.100:12345",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.50"},
			want:    "192.168.1.100",
		},
		{
			name:    "trusted peer uses first untrusted hop",
			cfg:     Config{TrustProxy: true, TrustedProxies: private},
			remote:  "10.0.0.1:12345",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.50, 10.0.0.5"},
			want:    "203.0.113.50",
		},
		{
			name:    "spoofed leftmost hop is skipped",
			cfg:     Config{TrustProxy: true, TrustedProxies: private},
			remote:  "10.0.0.1:12345",
			headers: map[string]string{"X-Forwarded-For": "1.1.1.1, 198.51.100.7, 10.0.0.5"},
			want:    "198.51.100.7",
		},
		{
			name:    "untrusted peer ignores forwarded header",
			cfg:     Config{TrustProxy: true, TrustedProxies: private},
			remote:  "8.8.8.8:443",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.50"},
			want:    "8.8.8.8",
		},
		{
			name:    "x-real-ip fallback",
			cfg:     Config{TrustProxy: true, TrustedProxies: private},
			remote:  "10.0.0.1:12345",
			headers: map[string]string{"X-Real-IP": " 203.0.113.9 "},
			want:    "203.0.113.9",
		},
		{
			name:    "all hops trusted returns leftmost",
			cfg:     Config{TrustProxy: true, TrustedProxies: private},
			remote:  "10.0.0.1:12345",
			headers: map[string]string{"X-Forwarded-For": "10.0.0.7, 10.0.0.5"},
			want:    "10.0.0.7",
		},
		{
			name:    "bare address entry",
			cfg:     Config{TrustProxy: true, TrustedProxies: []string{"127.0.0.1"}},
			remote:  "127.0.0.1:80",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.1"},
			want:    "203.0.113.1",
		},
		{
			name:   "ipv6 peer",
			cfg:    Config{},
			remote: "[2001:db8::1]:8080",
			want:   "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolve(t, tt.cfg, tt.remote, tt.headers))
		})
	}
}

func TestResolver_Trusted(t *testing.T) {
	r := NewResolver(Config{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8", "garbage", "::1"}})

	assert.True(t, r.Trusted("10.20.30.40"))
	assert.True(t, r.Trusted("::ffff:10.0.0.1"))
	assert.True(t, r.Trusted("::1"))
	assert.False(t, r.Trusted("11.0.0.1"))
	assert.False(t, r.Trusted("not-an-ip"))
}

func TestGetClientIP_WithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", GetClientIP(req))
}
