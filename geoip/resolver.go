package geoip

import (
	"net/http"
	"net/netip"

	"go.uber.org/zap"

	"github.com/vpnhouse/reqinspect/reqctx"
	"github.com/vpnhouse/reqinspect/xerror"
)

// Status tells a lookup answer apart from the zero Result returned with errors.
type Status int

const (
	Unknown Status = iota
	NotFound
	Found
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type Country struct {
	ISOCode       string `json:"country_code"`
	Name          string `json:"country_name"`
	ContinentCode string `json:"continent_code"`
	ContinentName string `json:"continent_name"`
}

// Result is Found with the Country filled or NotFound with a zero Country.
// Errors come with the Unknown zero value.
type Result struct {
	Status  Status
	Country Country
}

func (r Result) Found() bool {
	return r.Status == Found
}

// Lookuper is a country database, *Instance being the production one.
type Lookuper interface {
	Country(ip netip.Addr) (Result, error)
}

type Resolver struct {
	Geo        Lookuper
	CDNSecrets map[string]string
}

// Lookup validates ip and resolves it to a country.
// A missing database is reported before the address is even looked at,
// a malformed address never reaches the database.
func (s *Resolver) Lookup(ip string) (Result, error) {
	if s == nil || s.Geo == nil {
		return Result{}, xerror.EConfiguration("geoip database is not initialized", nil)
	}

	addr, ok := reqctx.ParseIP(ip)
	if !ok {
		return Result{}, xerror.EInvalidArgument("malformed ip address", nil, zap.String("ip", ip))
	}

	res, err := s.Geo.Country(addr.Unmap())
	if err != nil {
		if _, ok := xerror.KindOf(err); !ok {
			err = xerror.EInternalError("can't lookup country", err, zap.String("ip", ip))
		}
		return Result{}, err
	}
	return res, nil
}

// ClientIP returns the address the request came from, honoring CDN secrets.
func (s *Resolver) ClientIP(r *http.Request) string {
	var secrets map[string]string
	if s != nil {
		secrets = s.CDNSecrets
	}
	return ClientAddr(r, TrustedForwardedFor(secrets), PeerAddr)
}

// ClientCountry resolves the country of the request origin.
// An unknown or malformed origin address is not an error.
func (s *Resolver) ClientCountry(r *http.Request) (string, Result, error) {
	ip := s.ClientIP(r)
	if ip == "" {
		if s == nil || s.Geo == nil {
			return "", Result{}, xerror.EConfiguration("geoip database is not initialized", nil)
		}
		return "", Result{Status: NotFound}, nil
	}

	res, err := s.Lookup(ip)
	if err != nil {
		if xerror.IsInvalidArgument(err) {
			return ip, Result{Status: NotFound}, nil
		}
		zap.L().Error("failed to get country by ip", zap.String("ip", ip), zap.Error(err))
		return ip, Result{}, err
	}
	return ip, res, nil
}
