// Package config loads the settings of the inspection service from a YAML
// file and REQINSPECT_ prefixed environment variables, the latter winning.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/vpnhouse/reqinspect/device"
	"github.com/vpnhouse/reqinspect/xap"
)

const EnvPrefix = "REQINSPECT_"

type GeoIP struct {
	Path           string        `yaml:"path" env:"PATH"`
	Locale         string        `yaml:"locale" env:"LOCALE"`
	ReloadInterval time.Duration `yaml:"reload_interval" env:"RELOAD_INTERVAL"`
}

type Device struct {
	Backend string `yaml:"backend" env:"BACKEND"`
}

type Cache struct {
	TTL  time.Duration `yaml:"ttl" env:"TTL"`
	Size int           `yaml:"size" env:"SIZE"`
}

const (
	// RecorderInspect records request metrics next to the inspection counters
	// in the reqinspect namespace.
	RecorderInspect = "inspect"
	// RecorderStandard records the generic http_request_* metrics of go-http-metrics.
	RecorderStandard = "standard"
)

type HTTP struct {
	Addr            string `yaml:"addr" env:"ADDR"`
	CORS            bool   `yaml:"cors" env:"CORS"`
	Metrics         bool   `yaml:"metrics" env:"METRICS"`
	MetricsRecorder string `yaml:"metrics_recorder" env:"METRICS_RECORDER"`
	Pprof           bool   `yaml:"pprof" env:"PPROF"`
	TLSCert         string `yaml:"tls_cert" env:"TLS_CERT"`
	TLSKey          string `yaml:"tls_key" env:"TLS_KEY"`
	DisableHTTP2    bool   `yaml:"disable_http2" env:"DISABLE_HTTP2"`
}

type Log struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type Config struct {
	GeoIP  GeoIP  `yaml:"geoip" envPrefix:"GEOIP_"`
	Device Device `yaml:"device" envPrefix:"DEVICE_"`
	Cache  Cache  `yaml:"cache" envPrefix:"CACHE_"`
	HTTP   HTTP   `yaml:"http" envPrefix:"HTTP_"`
	Log    Log    `yaml:"log" envPrefix:"LOG_"`

	// header name -> expected value, proves the request went through our CDN
	CDNSecrets map[string]string `yaml:"cdn_secrets" env:"CDN_SECRETS"`
}

func Default() Config {
	return Config{
		GeoIP: GeoIP{
			Locale:         "en",
			ReloadInterval: time.Hour,
		},
		Device: Device{
			Backend: device.BackendUserAgent,
		},
		Cache: Cache{
			TTL:  10 * time.Minute,
			Size: 10000,
		},
		HTTP: HTTP{
			Addr:            ":8080",
			Metrics:         true,
			MetricsRecorder: RecorderInspect,
		},
		Log: Log{
			Level:  "info",
			Format: xap.FormatConsole,
		},
	}
}

// Load reads path, when not empty, on top of the defaults and then applies
// the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := device.ByName(c.Device.Backend); err != nil {
		return fmt.Errorf("device.backend: %w", err)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative")
	}
	if c.GeoIP.ReloadInterval < 0 {
		return fmt.Errorf("geoip.reload_interval must not be negative")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	switch c.HTTP.MetricsRecorder {
	case RecorderInspect, RecorderStandard:
	default:
		return fmt.Errorf("http.metrics_recorder: unknown recorder %q", c.HTTP.MetricsRecorder)
	}
	if (c.HTTP.TLSCert == "") != (c.HTTP.TLSKey == "") {
		return fmt.Errorf("http.tls_cert and http.tls_key go together")
	}
	if _, err := xap.New(c.Log.Level, c.Log.Format); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}
