package http_test

import (
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP(t *testing.T) {
	trusted := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8", "192.0.2.1"}}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		config     *pkghttp.IPConfig
		want       string
	}{
		{
			name:       "direct client ignores spoofed headers",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4, 5.6.7.8",
			xRealIP:    "192.168.1.1",
			config:     trusted,
			want:       "203.0.113.10",
		},
		{
			name:       "trusted proxy range skips its own hop",
			remoteAddr: "10.0.0.5:54321",
			xff:        "203.0.113.42, 10.0.0.5",
			config:     trusted,
			want:       "203.0.113.42",
		},
		{
			name:       "trusted single address",
			remoteAddr: "192.0.2.1:443",
			xff:        "198.51.100.9",
			config:     trusted,
			want:       "198.51.100.9",
		},
		{
			name:       "invalid forwarded entries are skipped",
			remoteAddr: "10.0.0.5:54321",
			xff:        "203.0.113.42, garbage",
			config:     trusted,
			want:       "203.0.113.42",
		},
		{
			name:       "client supplied entries left of the real hop are ignored",
			remoteAddr: "10.0.0.5:54321",
			xff:        "1.1.1.1, 198.51.100.9",
			config:     trusted,
			want:       "198.51.100.9",
		},
		{
			name:       "chained trusted proxies are skipped",
			remoteAddr: "10.0.0.5:54321",
			xff:        "6.6.6.6, 198.51.100.9, 10.0.0.7, 192.0.2.1",
			config:     trusted,
			want:       "198.51.100.9",
		},
		{
			name:       "only trusted hops falls back to X-Real-IP",
			remoteAddr: "10.0.0.5:54321",
			xff:        "10.0.0.8, 10.0.0.7",
			xRealIP:    "203.0.113.77",
			config:     trusted,
			want:       "203.0.113.77",
		},
		{
			name:       "falls back to X-Real-IP",
			remoteAddr: "10.0.0.5:54321",
			xRealIP:    "203.0.113.77",
			config:     trusted,
			want:       "203.0.113.77",
		},
		{
			name:       "trusted proxy without headers",
			remoteAddr: "10.0.0.5:54321",
			config:     trusted,
			want:       "10.0.0.5",
		},
		{
			name:       "nil config never trusts headers",
			remoteAddr: "10.0.0.5:54321",
			xff:        "203.0.113.42",
			want:       "10.0.0.5",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "203.0.113.10",
			config:     trusted,
			want:       "203.0.113.10",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:8080",
			config:     trusted,
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			assert.Equal(t, tt.want, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}

func TestExtractClientIP_SpoofedPrefixKeepsOneKey(t *testing.T) {
	trusted := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	for _, spoof := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.5:443"
		req.Header.Set("X-Forwarded-For", spoof+", 198.51.100.9")

		assert.Equal(t, "198.51.100.9", pkghttp.ExtractClientIP(req, trusted), "spoofed prefix %s", spoof)
	}
}
