package geoip

import (
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maxmind/mmdbwriter"
	"github.com/maxmind/mmdbwriter/mmdbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vpnhouse/reqinspect/xerror"
)

func setupLogger(t *testing.T) {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	logger, err := loggerConfig.Build()
	if err != nil {
		t.Fatal(err)
		return
	}

	zap.ReplaceGlobals(logger)
}

func TestOpenMissingDatabase(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"))
	require.Error(t, err)
	assert.True(t, xerror.IsConfiguration(err))
}

func TestOpenCorruptDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.mmdb")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a maxmind database"), 0o600))

	_, err := Open(path)
	require.Error(t, err)
	assert.True(t, xerror.IsConfiguration(err))
}

func TestStoppedInstance(t *testing.T) {
	var s Instance
	assert.False(t, s.Running())
	assert.NoError(t, s.Shutdown())

	_, err := s.Country(netip.MustParseAddr("192.0.2.1"))
	assert.True(t, xerror.IsInternal(err))
}

func TestLocalized(t *testing.T) {
	names := map[string]string{"en": "Germany", "de": "Deutschland"}
	assert.Equal(t, "Deutschland", localized(names, "de"))
	assert.Equal(t, "Germany", localized(names, "fr"))
	assert.Equal(t, "", localized(nil, "en"))
}

type network struct {
	cidr    string
	country mmdbtype.Map
}

func countryRecord(iso string, names map[string]string) mmdbtype.Map {
	localized := mmdbtype.Map{}
	for lang, name := range names {
		localized[mmdbtype.String(lang)] = mmdbtype.String(name)
	}
	return mmdbtype.Map{
		"country": mmdbtype.Map{
			"iso_code": mmdbtype.String(iso),
			"names":    localized,
		},
		"continent": mmdbtype.Map{
			"code":  mmdbtype.String("EU"),
			"names": mmdbtype.Map{"en": mmdbtype.String("Europe"), "de": mmdbtype.String("Europa")},
		},
	}
}

// writeCountryDB builds a GeoIP2-Country shaped database at path. The file is
// swapped in with a rename so readers holding the old mapping are unaffected.
func writeCountryDB(t *testing.T, path string, networks ...network) {
	t.Helper()

	tree, err := mmdbwriter.New(mmdbwriter.Options{
		DatabaseType: "GeoIP2-Country",
		RecordSize:   24,
	})
	require.NoError(t, err)

	for _, n := range networks {
		_, ipNet, err := net.ParseCIDR(n.cidr)
		require.NoError(t, err)
		require.NoError(t, tree.Insert(ipNet, n.country))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "*.mmdb.tmp")
	require.NoError(t, err)
	_, err = tree.WriteTo(tmp)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())
	require.NoError(t, os.Rename(tmp.Name(), path))
}

var (
	unitedKingdom = network{"81.2.69.0/24", countryRecord("GB", map[string]string{
		"en": "United Kingdom", "de": "Vereinigtes Königreich",
	})}
	sweden = network{"2a02:ff0::/32", countryRecord("SE", map[string]string{"en": "Sweden"})}
	// a network known to the database without any country data
	continentOnly = network{"89.160.20.112/28", mmdbtype.Map{
		"continent": mmdbtype.Map{"code": mmdbtype.String("EU")},
	}}
)

func TestInstanceCountry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "country.mmdb")
	writeCountryDB(t, path, unitedKingdom, sweden, continentOnly)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Shutdown()
	assert.True(t, s.Running())

	gb := Country{ISOCode: "GB", Name: "United Kingdom", ContinentCode: "EU", ContinentName: "Europe"}
	for _, ip := range []string{"81.2.69.160", "::ffff:81.2.69.160", "81.2.69.0", "81.2.69.255"} {
		res, err := s.Country(netip.MustParseAddr(ip))
		require.NoError(t, err, ip)
		assert.Equal(t, Result{Status: Found, Country: gb}, res, ip)
	}

	res, err := s.Country(netip.MustParseAddr("2a02:ff0:1::7"))
	require.NoError(t, err)
	assert.Equal(t, "SE", res.Country.ISOCode)

	res, err = s.Country(netip.MustParseAddr("89.160.20.113"))
	require.NoError(t, err)
	assert.Equal(t, Found, res.Status)
	assert.Equal(t, Country{ContinentCode: "EU"}, res.Country)

	// valid but unregistered addresses are an answer, not a failure
	for _, ip := range []string{"8.8.8.8", "81.2.70.1", "2001:4860::8888", "127.0.0.1"} {
		res, err := s.Country(netip.MustParseAddr(ip))
		require.NoError(t, err, ip)
		assert.Equal(t, Result{Status: NotFound}, res, ip)
	}
}

func TestInstanceLocale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "country.mmdb")
	writeCountryDB(t, path, unitedKingdom, sweden)

	de, err := Open(path, WithLocale("de"))
	require.NoError(t, err)
	defer de.Shutdown()

	res, err := de.Country(netip.MustParseAddr("81.2.69.160"))
	require.NoError(t, err)
	assert.Equal(t, "Vereinigtes Königreich", res.Country.Name)
	assert.Equal(t, "Europa", res.Country.ContinentName)

	// no german name for Sweden, english is used
	res, err = de.Country(netip.MustParseAddr("2a02:ff0::1"))
	require.NoError(t, err)
	assert.Equal(t, "Sweden", res.Country.Name)
}

func TestInstanceThroughResolver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "country.mmdb")
	writeCountryDB(t, path, unitedKingdom)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Shutdown()

	r := &Resolver{Geo: s}
	res, err := r.Lookup("81.2.69.160")
	require.NoError(t, err)
	assert.Equal(t, "GB", res.Country.ISOCode)

	res, err = r.Lookup("8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Status)

	res, err = r.Lookup("fe80::1%eth0")
	assert.True(t, xerror.IsInvalidArgument(err))
	assert.Equal(t, Unknown, res.Status)

	require.NoError(t, s.Shutdown())
	assert.False(t, s.Running())
	_, err = r.Lookup("81.2.69.160")
	assert.True(t, xerror.IsInternal(err))
}

func TestInstanceReload(t *testing.T) {
	setupLogger(t)

	path := filepath.Join(t.TempDir(), "country.mmdb")
	writeCountryDB(t, path, unitedKingdom)

	s, err := Open(path, WithReloadInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer s.Shutdown()

	ip := netip.MustParseAddr("81.2.69.160")
	res, err := s.Country(ip)
	require.NoError(t, err)
	require.Equal(t, "GB", res.Country.ISOCode)

	var wg sync.WaitGroup
	wg.Add(1)
	stop := make(chan struct{})
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_, err := s.Country(ip)
			assert.NoError(t, err)
			time.Sleep(time.Millisecond)
		}
	}()

	writeCountryDB(t, path, network{"81.2.69.0/24", countryRecord("FR", map[string]string{"en": "France"})})
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(time.Hour)))

	assert.Eventually(t, func() bool {
		res, err := s.Country(ip)
		return err == nil && res.Country.ISOCode == "FR"
	}, 2*time.Second, 10*time.Millisecond)

	close(stop)
	wg.Wait()
}
