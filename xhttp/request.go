package xhttp

import (
	"bytes"
	"net/http"
	"sort"
	"strings"
)

// headers never written to logs
var sensitiveHeaders = map[string]bool{
	"Authorization":  true,
	"Authentication": true,
	"Cookie":         true,
	"X-Csrf-Token":   true,
}

type requestStringer struct {
	*http.Request
}

func (s *requestStringer) String() string {
	if s == nil || s.Request == nil {
		return ""
	}

	strBuff := bytes.NewBufferString("")
	strBuff.WriteString("RemoteAddress=" + s.Request.RemoteAddr + " ")
	strBuff.WriteString("Host=" + s.Request.Host + " ")
	strBuff.WriteString("Method=" + s.Request.Method + " ")
	if s.Request.URL != nil {
		strBuff.WriteString("URL=" + s.Request.URL.String() + " ")
	}

	names := make([]string, 0, len(s.Request.Header))
	for name := range s.Request.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		val := "***"
		if !sensitiveHeaders[http.CanonicalHeaderKey(name)] {
			val = strings.Join(s.Request.Header[name], ",")
		}
		strBuff.WriteString(name + "=[" + val + "] ")
	}

	return strings.TrimSuffix(strBuff.String(), " ")
}

// RequestStringer lazily formats r for debug logs, credentials masked.
func RequestStringer(r *http.Request) *requestStringer {
	return &requestStringer{Request: r}
}
