package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "reqinspect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
geoip:
  path: /var/lib/geoip/GeoLite2-Country.mmdb
  locale: de
device:
  backend: uasurfer
cache:
  ttl: 1m
  size: 50
http:
  addr: 127.0.0.1:9000
  cors: true
  metrics_recorder: standard
  pprof: true
  tls_cert: /etc/reqinspect/tls.crt
  tls_key: /etc/reqinspect/tls.key
  disable_http2: true
log:
  level: debug
  format: json
cdn_secrets:
  X-CDN-Secret: s3cr3t
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/geoip/GeoLite2-Country.mmdb", cfg.GeoIP.Path)
	assert.Equal(t, "de", cfg.GeoIP.Locale)
	assert.Equal(t, time.Hour, cfg.GeoIP.ReloadInterval)
	assert.Equal(t, "uasurfer", cfg.Device.Backend)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 50, cfg.Cache.Size)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.True(t, cfg.HTTP.CORS)
	assert.True(t, cfg.HTTP.Metrics)
	assert.Equal(t, RecorderStandard, cfg.HTTP.MetricsRecorder)
	assert.True(t, cfg.HTTP.Pprof)
	assert.Equal(t, "/etc/reqinspect/tls.crt", cfg.HTTP.TLSCert)
	assert.Equal(t, "/etc/reqinspect/tls.key", cfg.HTTP.TLSKey)
	assert.True(t, cfg.HTTP.DisableHTTP2)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, map[string]string{"X-CDN-Secret": "s3cr3t"}, cfg.CDNSecrets)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
geoip:
  path: /from/file.mmdb
cache:
  ttl: 1m
`)

	t.Setenv("REQINSPECT_GEOIP_PATH", "/from/env.mmdb")
	t.Setenv("REQINSPECT_CACHE_TTL", "0s")
	t.Setenv("REQINSPECT_HTTP_METRICS", "false")
	t.Setenv("REQINSPECT_CDN_SECRETS", "X-CDN-Secret:abc")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.mmdb", cfg.GeoIP.Path)
	assert.Equal(t, time.Duration(0), cfg.Cache.TTL)
	assert.False(t, cfg.HTTP.Metrics)
	assert.Equal(t, map[string]string{"X-CDN-Secret": "abc"}, cfg.CDNSecrets)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "geoip: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "device:\n  backend: wurfl\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "log:\n  level: loud\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "cache:\n  size: -1\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "http:\n  metrics_recorder: statsd\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "http:\n  tls_cert: /etc/reqinspect/tls.crt\n"))
	assert.Error(t, err)

	t.Setenv("REQINSPECT_CACHE_SIZE", "many")
	_, err = Load("")
	assert.Error(t, err)
}
