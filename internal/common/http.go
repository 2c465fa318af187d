package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the caller address used for rate limiting and audit entries.
// Forwarding headers are resolved into RemoteAddr by chi's RealIP middleware,
// so only the port is stripped here.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
