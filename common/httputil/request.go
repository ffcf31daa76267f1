package httputil

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// GetClientIP extracts the client IP address, honoring proxy headers in
// order: X-Forwarded-For (first entry), X-Real-IP, then RemoteAddr.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ParseIntParam parses an integer query parameter, falling back to
// defaultVal when the parameter is empty or not a number.
func ParseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return defaultVal
}

// Actor identifies the principal performing a request for audit purposes.
// The API is fronted by an external auth layer that sets X-Actor-ID; absent
// that, actions are attributed to the system principal.
func Actor(r *http.Request) string {
	if actor := r.Header.Get("X-Actor-ID"); actor != "" {
		return actor
	}
	return "system"
}
