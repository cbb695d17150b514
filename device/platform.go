package device

import (
	"github.com/mileusna/useragent"
)

// Platform returns the operating system named by the user agent, e.g.
// "Android" or "Windows", "" when unknown.
func Platform(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	return useragent.Parse(userAgent).OS
}
