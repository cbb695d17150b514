package reqctx

import (
	"net/netip"
)

// IsValidIP reports whether s is an IPv4 dotted quad or an IPv6 literal.
// Zoned IPv6 addresses are rejected, no normalization or trimming is applied.
func IsValidIP(s string) bool {
	_, ok := ParseIP(s)
	return ok
}

// ParseIP parses s with the same rules as IsValidIP.
func ParseIP(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	if addr.Zone() != "" {
		return netip.Addr{}, false
	}
	return addr, true
}
