package reqctx

import (
	"net/http"
	"strings"
)

const cgiPrefix = "HTTP_"

// UserAgent is the standard header consulted when none of UserAgentHeaders carries a value.
const UserAgent = "HTTP_USER_AGENT"

// Gateways and transcoding proxies often replace User-Agent and keep
// the device signature in a vendor header, so these are checked first.
// Entries from HTTP_FROM to HTTP_PROFILE are kept for compatibility
// with existing integrations, they rarely carry a device signature.
var userAgentHeaders = []string{
	"HTTP_X_OPERAMINI_PHONE_UA",
	"HTTP_X_DEVICE_USER_AGENT",
	"HTTP_X_ORIGINAL_USER_AGENT",
	"HTTP_X_SKYFIRE_PHONE",
	"HTTP_X_BOLT_PHONE_UA",
	"HTTP_DEVICE_STOCK_UA",
	"HTTP_X_UCBROWSER_DEVICE_UA",
	"HTTP_FROM",
	"HTTP_X_SCANNER",
	"HTTP_X_REQUESTED_WITH",
	"HTTP_X_CSRF_TOKEN",
	"HTTP_X_WAP_PROFILE",
	"HTTP_PROFILE",
	"HTTP_X_NOKIA_IPADDRESS",
	"HTTP_X_NOKIA_GATEWAY_ID",
	"HTTP_X_ORANGE_ID",
	"HTTP_X_VODAFONE_3GPDPCONTEXT",
	"HTTP_X_HUAWEI_USERID",
	"HTTP_UA_OS",
	"HTTP_X_MOBILE_GATEWAY",
}

// UserAgentHeaders returns the prioritized header candidates in CGI form.
func UserAgentHeaders() []string {
	out := make([]string, len(userAgentHeaders))
	copy(out, userAgentHeaders)
	return out
}

// HeaderSet maps normalized header names to values.
// The zero value is an empty set ready to use.
type HeaderSet struct {
	values map[string]string
}

// NormalizeHeader converts any header spelling to the CGI form:
// "user-agent", "User-Agent" and "HTTP_USER_AGENT" all become "HTTP_USER_AGENT".
func NormalizeHeader(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "_")
	if !strings.HasPrefix(name, cgiPrefix) {
		name = cgiPrefix + name
	}
	return name
}

// NewHeaderSet copies m into a new HeaderSet.
// When two keys normalize to the same name the non-empty value wins.
func NewHeaderSet(m map[string]string) HeaderSet {
	h := HeaderSet{values: make(map[string]string, len(m))}
	for k, v := range m {
		h.set(k, v)
	}
	return h
}

// FromHTTPHeader builds a HeaderSet from net/http headers, taking the first value of each.
func FromHTTPHeader(header http.Header) HeaderSet {
	h := HeaderSet{values: make(map[string]string, len(header))}
	for k, vv := range header {
		if len(vv) == 0 {
			continue
		}
		h.set(k, vv[0])
	}
	return h
}

func (h *HeaderSet) set(name, value string) {
	key := NormalizeHeader(name)
	if prev, ok := h.values[key]; ok && strings.TrimSpace(prev) != "" && strings.TrimSpace(value) == "" {
		return
	}
	h.values[key] = value
}

// Get returns the value of the header regardless of how name is spelled.
func (h HeaderSet) Get(name string) (string, bool) {
	if h.values == nil {
		return "", false
	}
	v, ok := h.values[NormalizeHeader(name)]
	return v, ok
}

func (h HeaderSet) Len() int {
	return len(h.values)
}

// ResolveUserAgent returns the first non-blank value among UserAgentHeaders,
// then User-Agent, or "" when the client is unknown.
func ResolveUserAgent(h HeaderSet) string {
	for _, name := range userAgentHeaders {
		if v, ok := nonBlank(h, name); ok {
			return v
		}
	}
	if v, ok := nonBlank(h, UserAgent); ok {
		return v
	}
	return ""
}

func nonBlank(h HeaderSet, name string) (string, bool) {
	v, ok := h.Get(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}
