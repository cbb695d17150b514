package geoip

import (
	"net"
	"net/http"
	"strings"

	"github.com/vpnhouse/reqinspect/reqctx"
)

// AddrSource extracts a client address candidate from a request, "" when it has none.
type AddrSource func(*http.Request) string

// DefaultAddrSources is the order used when no sources are given.
var DefaultAddrSources = []AddrSource{
	ForwardedFor,
	RealIP,
	PeerAddr,
}

// ClientAddr returns the first valid address produced by sources.
// A garbled candidate never shadows the sources that follow it.
func ClientAddr(r *http.Request, sources ...AddrSource) string {
	if len(sources) == 0 {
		sources = DefaultAddrSources
	}
	for _, source := range sources {
		if ip := strings.TrimSpace(source(r)); reqctx.IsValidIP(ip) {
			return ip
		}
	}
	return ""
}

// ForwardedFor is the nearest valid hop of X-Forwarded-For, the one
// appended by the proxy in front of us. Hops are scanned right to left.
func ForwardedFor(r *http.Request) string {
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		if hop := strings.TrimSpace(hops[i]); reqctx.IsValidIP(hop) {
			return hop
		}
	}
	return ""
}

func RealIP(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Real-Ip"))
}

// PeerAddr is the host part of the connection address.
func PeerAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return host
}

// TrustedForwardedFor reads X-Forwarded-For only from requests carrying one
// of the CDN secrets, keyed by header name. No secrets means every proxy
// is trusted.
func TrustedForwardedFor(secrets map[string]string) AddrSource {
	return func(r *http.Request) string {
		if !fromTrustedCDN(r, secrets) {
			return ""
		}
		return ForwardedFor(r)
	}
}

func fromTrustedCDN(r *http.Request, secrets map[string]string) bool {
	if len(secrets) == 0 {
		return true
	}
	for header, secret := range secrets {
		if secret != "" && r.Header.Get(header) == secret {
			return true
		}
	}
	return false
}
