package geoip

import (
	"net"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
	"go.uber.org/zap"

	"github.com/vpnhouse/reqinspect/xerror"
)

const (
	defaultReloadInterval = time.Hour
	defaultLocale         = "en"
)

type Option func(s *Instance)

// WithReloadInterval sets how often the database file is checked for changes.
func WithReloadInterval(interval time.Duration) Option {
	return func(s *Instance) {
		if interval > 0 {
			s.reloadInterval = interval
		}
	}
}

// WithLocale selects the language of country and continent names.
func WithLocale(locale string) Option {
	return func(s *Instance) {
		if locale != "" {
			s.locale = locale
		}
	}
}

// Instance is a MaxMind country database reloaded in place whenever
// the file on disk changes. Safe for concurrent use.
type Instance struct {
	dbCountry      atomic.Pointer[db]
	locale         string
	reloadInterval time.Duration
	stop           chan struct{}
	done           chan struct{}
}

func Open(path string, opts ...Option) (*Instance, error) {
	reader, modTime, err := load(path, time.Time{})
	if err != nil {
		return nil, err
	}

	s := &Instance{
		locale:         defaultLocale,
		reloadInterval: defaultReloadInterval,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.dbCountry.Store(newDb(reader))

	go s.run(path, modTime)

	return s, nil
}

// Country looks ip up. An address outside of every network in the
// database yields a NotFound result and no error.
func (s *Instance) Country(ip netip.Addr) (Result, error) {
	db := s.dbCountry.Load()
	if db == nil {
		return Result{}, xerror.EInternalError("maxmind database instance was stopped or never started", nil)
	}

	var record geoip2.Country
	found, err := db.Lookup(net.IP(ip.Unmap().AsSlice()), &record)
	if err != nil {
		return Result{}, xerror.EInternalError("can't lookup country", err, zap.Stringer("ip", ip))
	}
	if !found {
		return Result{Status: NotFound}, nil
	}

	return Result{
		Status: Found,
		Country: Country{
			ISOCode:       record.Country.IsoCode,
			Name:          localized(record.Country.Names, s.locale),
			ContinentCode: record.Continent.Code,
			ContinentName: localized(record.Continent.Names, s.locale),
		},
	}, nil
}

func localized(names map[string]string, locale string) string {
	if name, ok := names[locale]; ok {
		return name
	}
	return names[defaultLocale]
}

func (s *Instance) Shutdown() error {
	db := s.dbCountry.Swap(nil)
	if db == nil {
		return nil
	}

	close(s.stop)
	<-s.done

	err := db.Close()
	if err != nil {
		return xerror.EInternalError("can't close maxminddb country database", err)
	}
	return nil
}

func (s *Instance) Running() bool {
	return s.dbCountry.Load() != nil
}

func (s *Instance) run(path string, modTime time.Time) {
	ticker := time.NewTicker(s.reloadInterval)
	defer ticker.Stop()

	var reader *maxminddb.Reader
	var err error

	for {
		select {
		case <-s.stop:
			close(s.done)
			return
		case <-ticker.C:
			reader, modTime, err = load(path, modTime)

			if err != nil {
				zap.L().Error("failed to load maxmind db", zap.Error(err))
				continue
			}
			if reader == nil {
				continue
			}
			db := s.dbCountry.Swap(newDb(reader))
			if db == nil {
				// Shutdown raced with the reload, drop the fresh reader
				_ = s.dbCountry.Swap(nil).Close()
				continue
			}
			err = db.Close()
			if err != nil {
				zap.L().Error("failed to close old maxmind db", zap.Error(err))
			}
		}
	}
}

func load(path string, prevModTime time.Time) (*maxminddb.Reader, time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, prevModTime, xerror.EConfiguration("can't stat maxminddb country database", err, zap.String("path", path))
	}

	modTime := fi.ModTime()
	if modTime.Equal(prevModTime) {
		zap.L().Debug("maxmind database remains unchanged", zap.Time("modification_time", prevModTime))
		return nil, prevModTime, nil
	}

	if !prevModTime.IsZero() {
		zap.L().Info("maxmind database modified, reloading",
			zap.Time("last_modification_time", prevModTime),
			zap.Time("modification_time", modTime),
			zap.Duration("modified_ago", modTime.Sub(prevModTime)),
		)
	}

	db, err := maxminddb.Open(path)
	if err != nil || db == nil {
		return nil, prevModTime, xerror.EConfiguration("can't open maxminddb country database", err, zap.String("path", path))
	}

	zap.L().Info("maxmind database is successfully loaded",
		zap.String("path", path), zap.Time("modification_time", modTime))

	return db, modTime, nil
}
