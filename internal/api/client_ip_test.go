package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPv4(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"remote only", "", "203.0.113.9:5123", "203.0.113.9"},
		{"first forwarded ipv4 wins", "198.51.100.4, 10.0.0.1", "203.0.113.9:5123", "198.51.100.4"},
		{"skips non-ipv4 forwarded entries", "2001:db8::1, unknown, 198.51.100.7", "203.0.113.9:5123", "198.51.100.7"},
		{"forwarded without ipv4 falls back to remote", "2001:db8::1", "203.0.113.9:5123", "203.0.113.9"},
		{"mapped ipv6 remote", "", "[::ffff:192.0.2.33]:443", "192.0.2.33"},
		{"mapped ipv6 forwarded", "::ffff:192.0.2.44", "[2001:db8::2]:443", "192.0.2.44"},
		{"pure ipv6 records nothing", "", "[2001:db8::2]:443", ""},
		{"remote without port", "", "192.0.2.5", "192.0.2.5"},
		{"garbage records nothing", "not-an-ip", "pipe", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, ClientIPv4(req))
		})
	}
}
