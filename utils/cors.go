package utils

import (
	"net"
	"net/url"
	"strings"
)

// IsAllowedOrigin reports whether an Origin header value belongs to the local
// network. Accepted origins are localhost, .local mDNS names, bare single-label
// hostnames, and private or link-local IPs. Everything reachable from the
// public internet is rejected; this service has no business being framed by it.
func IsAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()

	switch {
	case host == "localhost":
		return true
	case strings.HasSuffix(host, ".local"):
		return true
	case !strings.Contains(host, "."):
		// Single-label names only resolve on the LAN.
		return true
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate()
	}
	return false
}
