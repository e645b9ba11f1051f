package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []string // CIDR ranges or single addresses of trusted proxies
}

// ExtractClientIP returns the address a request should be attributed to.
// Forwarding headers are honoured only when the direct peer is a trusted
// proxy. X-Forwarded-For is read from the right, since only the entries
// appended by our own proxies can be believed; anything to the left of the
// first untrusted hop was written by the client.
//
// Flow:
//  1. If request is from trusted proxy, walk X-Forwarded-For right to left and
//     use the first valid entry that is not itself a trusted proxy
//  2. If request is from trusted proxy, use X-Real-IP
//  3. Fall back to RemoteAddr
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config == nil || !isTrustedProxy(remoteIP, config.TrustedProxies) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := strings.TrimSpace(hops[i])
			if !isValidIP(ip) || isTrustedProxy(ip, config.TrustedProxies) {
				continue
			}
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); isValidIP(xri) {
		return xri
	}

	return remoteIP
}

// getRemoteAddr strips the port from RemoteAddr when present
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// isTrustedProxy reports whether ip matches a trusted CIDR range or address
func isTrustedProxy(ip string, trustedProxies []string) bool {
	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, entry := range trustedProxies {
		if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			if ipNet.Contains(clientIP) {
				return true
			}
			continue
		}
		if proxyIP := net.ParseIP(entry); proxyIP != nil && proxyIP.Equal(clientIP) {
			return true
		}
	}

	return false
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
