package reqctx

import (
	"net/url"
)

const (
	ParamGoogleClickID   = "gclid"
	ParamFacebookClickID = "fbclid"
	ParamGoogleAdsSource = "gad_source"
)

// Query maps query parameter names to values.
type Query map[string]string

// QueryFromValues keeps the first value of every parameter.
func QueryFromValues(values url.Values) Query {
	q := make(Query, len(values))
	for k, vv := range values {
		if len(vv) == 0 {
			continue
		}
		q[k] = vv[0]
	}
	return q
}

// TrackingParams holds the advertising identifiers found on a URL.
// A nil field means the parameter was absent or empty.
type TrackingParams struct {
	GoogleClickID   *string `json:"gclid,omitempty"`
	FacebookClickID *string `json:"fbclid,omitempty"`
	GoogleAdsSource *string `json:"gad_source,omitempty"`
}

func (p TrackingParams) Empty() bool {
	return p.GoogleClickID == nil && p.FacebookClickID == nil && p.GoogleAdsSource == nil
}

func ExtractTrackingParams(q Query) TrackingParams {
	return TrackingParams{
		GoogleClickID:   param(q, ParamGoogleClickID),
		FacebookClickID: param(q, ParamFacebookClickID),
		GoogleAdsSource: param(q, ParamGoogleAdsSource),
	}
}

func param(q Query, key string) *string {
	v, ok := q[key]
	if !ok || v == "" {
		return nil
	}
	return &v
}
