// Package inspect answers the questions a request handler usually asks about
// its client: is it a bot, what kind of device, where it comes from and
// which ad click identifiers it carries.
//
// Every method works on explicit inputs, the Inspector itself holds no per
// request state and is safe for concurrent use.
package inspect

import (
	"net/http"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/vpnhouse/reqinspect/crawler"
	"github.com/vpnhouse/reqinspect/device"
	"github.com/vpnhouse/reqinspect/geoip"
	"github.com/vpnhouse/reqinspect/reqctx"
	"github.com/vpnhouse/reqinspect/uacache"
	"github.com/vpnhouse/reqinspect/xerror"
)

// Profile is what the user agent tells about the client.
type Profile struct {
	UserAgent string      `json:"user_agent"`
	Bot       bool        `json:"bot"`
	BotName   string      `json:"bot_name,omitempty"`
	Device    device.Kind `json:"device"`
	OS        string      `json:"os,omitempty"`
}

// Report is everything known about one request.
type Report struct {
	Profile
	IP       string                `json:"ip,omitempty"`
	Country  *geoip.Country        `json:"country,omitempty"`
	Tracking reqctx.TrackingParams `json:"tracking"`
}

type Option func(s *Inspector) error

// WithGeoIP opens the MaxMind country database at path.
func WithGeoIP(path string, opts ...geoip.Option) Option {
	return func(s *Inspector) error {
		if path == "" {
			return nil
		}
		instance, err := geoip.Open(path, opts...)
		if err != nil {
			return xerror.EConfiguration("failed to load geoip database", err, zap.String("path", path))
		}
		s.geo = instance
		s.closers = append(s.closers, instance.Shutdown)
		return nil
	}
}

// WithGeoLookup uses an already opened country database. The caller keeps ownership.
func WithGeoLookup(l geoip.Lookuper) Option {
	return func(s *Inspector) error {
		if isNil(l) {
			return xerror.EInvalidArgument("geoip lookup is nil", nil)
		}
		s.geo = l
		return nil
	}
}

// isNil also catches typed nil pointers stored in the interface.
func isNil(l geoip.Lookuper) bool {
	if l == nil {
		return true
	}
	v := reflect.ValueOf(l)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Interface, reflect.Slice, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func WithCDNSecrets(secrets map[string]string) Option {
	return func(s *Inspector) error {
		s.cdnSecrets = secrets
		return nil
	}
}

func WithCrawler(c crawler.Classifier) Option {
	return func(s *Inspector) error {
		s.crawler = c
		return nil
	}
}

func WithDevice(c device.Classifier) Option {
	return func(s *Inspector) error {
		s.device = c
		return nil
	}
}

// WithCache memoizes profiles of up to size user agents for ttl.
// A zero ttl disables caching.
func WithCache(ttl time.Duration, size int) Option {
	return func(s *Inspector) error {
		if ttl <= 0 {
			return nil
		}
		s.cache = uacache.New[Profile](ttl, size)
		return nil
	}
}

type Inspector struct {
	crawler    crawler.Classifier
	device     device.Classifier
	geo        geoip.Lookuper
	cdnSecrets map[string]string
	cache      *uacache.Cache[Profile]
	closers    []func() error
}

// New builds an Inspector. Without options it detects bots and devices
// with the built-in classifiers and has no geo database.
func New(opts ...Option) (*Inspector, error) {
	s := &Inspector{}
	for _, o := range opts {
		if err := o(s); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	if s.crawler == nil {
		s.crawler = crawler.New()
	}
	if s.device == nil {
		s.device = device.NewUserAgent()
	}
	return s, nil
}

func (s *Inspector) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	s.geo = nil
	if s.cache != nil {
		s.cache.Stop()
	}
	return firstErr
}

func (s *Inspector) IsBot(h reqctx.HeaderSet) bool {
	return s.crawler.IsCrawler(reqctx.ResolveUserAgent(h))
}

// BotName returns the matched crawler signature, "" for humans.
func (s *Inspector) BotName(h reqctx.HeaderSet) string {
	return s.crawler.Match(reqctx.ResolveUserAgent(h))
}

// IsMobile is true for phones only, tablets are excluded.
func (s *Inspector) IsMobile(h reqctx.HeaderSet) bool {
	ua := reqctx.ResolveUserAgent(h)
	return s.device.IsMobile(ua) && !s.device.IsTablet(ua)
}

func (s *Inspector) IsTablet(h reqctx.HeaderSet) bool {
	return s.device.IsTablet(reqctx.ResolveUserAgent(h))
}

func (s *Inspector) IsComputer(h reqctx.HeaderSet) bool {
	ua := reqctx.ResolveUserAgent(h)
	return !s.device.IsMobile(ua) && !s.device.IsTablet(ua)
}

// Profile classifies the resolved user agent, cached when WithCache is set.
func (s *Inspector) Profile(h reqctx.HeaderSet) Profile {
	ua := reqctx.ResolveUserAgent(h)
	if s.cache == nil {
		return s.profile(ua)
	}
	return s.cache.GetOrCompute(ua, s.profile)
}

func (s *Inspector) profile(ua string) Profile {
	name := s.crawler.Match(ua)
	return Profile{
		UserAgent: ua,
		Bot:       name != "",
		BotName:   name,
		Device:    device.Classify(s.device, ua),
		OS:        device.Platform(ua),
	}
}

// CountryFromIP resolves ip. Fails with a configuration error when no
// database is set up and with an invalid argument error for a malformed
// ip; an address missing from the database is a NotFound result.
func (s *Inspector) CountryFromIP(ip string) (geoip.Result, error) {
	return s.resolver().Lookup(ip)
}

func (s *Inspector) TrackingParams(q reqctx.Query) reqctx.TrackingParams {
	return reqctx.ExtractTrackingParams(q)
}

// HasGeo reports whether a country database is configured.
func (s *Inspector) HasGeo() bool {
	return s.geo != nil
}

// Inspect builds the full report for r. Geo data is best effort: no
// database, an unknown origin or a NotFound address leave Country nil.
// A failing database lookup is returned along with the rest of the report.
func (s *Inspector) Inspect(r *http.Request) (Report, error) {
	report := Report{
		Profile:  s.Profile(reqctx.FromHTTPHeader(r.Header)),
		Tracking: reqctx.ExtractTrackingParams(reqctx.QueryFromValues(r.URL.Query())),
	}

	res := s.resolver()
	if !s.HasGeo() {
		report.IP = res.ClientIP(r)
		return report, nil
	}

	ip, result, err := res.ClientCountry(r)
	report.IP = ip
	if err != nil {
		return report, err
	}
	if result.Found() {
		country := result.Country
		report.Country = &country
	}
	return report, nil
}

func (s *Inspector) resolver() *geoip.Resolver {
	return &geoip.Resolver{Geo: s.geo, CDNSecrets: s.cdnSecrets}
}
