package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPv4 returns the caller's IPv4 address in dotted form, or "" when none is known.
// The first X-Forwarded-For entry that parses as IPv4 wins, then the transport peer.
// IPv4-mapped IPv6 addresses are reduced to IPv4.
func ClientIPv4(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for _, part := range strings.Split(forwarded, ",") {
			if ip, ok := parseIPv4(strings.TrimSpace(part)); ok {
				return ip
			}
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	if ip, ok := parseIPv4(host); ok {
		return ip
	}
	return ""
}

func parseIPv4(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return "", false
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return "", false
	}
	return addr.String(), true
}
