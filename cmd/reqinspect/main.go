// Command reqinspect serves the inspection report of the calling request.
//
//	GET /inspect          report for the caller as JSON
//	GET /country/{ip}     country of an arbitrary address
//	GET /metrics          prometheus metrics, local networks only
//	GET /debug/pprof/     profiler, when enabled
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vpnhouse/reqinspect/config"
	"github.com/vpnhouse/reqinspect/device"
	"github.com/vpnhouse/reqinspect/geoip"
	"github.com/vpnhouse/reqinspect/inspect"
	"github.com/vpnhouse/reqinspect/xap"
	"github.com/vpnhouse/reqinspect/xhttp"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	restoreLogger, err := xap.ReplaceGlobals(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer restoreLogger()

	classifier, err := device.ByName(cfg.Device.Backend)
	if err != nil {
		return err
	}

	inspector, err := inspect.New(
		inspect.WithGeoIP(cfg.GeoIP.Path,
			geoip.WithLocale(cfg.GeoIP.Locale),
			geoip.WithReloadInterval(cfg.GeoIP.ReloadInterval)),
		inspect.WithCDNSecrets(cfg.CDNSecrets),
		inspect.WithDevice(classifier),
		inspect.WithCache(cfg.Cache.TTL, cfg.Cache.Size),
	)
	if err != nil {
		return err
	}
	defer inspector.Close()

	if !inspector.HasGeo() {
		zap.L().Warn("geoip database is not configured, country lookups are disabled")
	}

	measure := xhttp.NewMeasure(xhttp.MeasureOptions{
		Namespace:    "reqinspect",
		ServiceName:  "reqinspect",
		AllowedPaths: []string{"/inspect", "/country/{ip}"},
	})

	opts, err := serverOptions(cfg.HTTP, measure)
	if err != nil {
		return err
	}

	srv := xhttp.New(opts...)
	srv.Router().With(xhttp.InspectMiddleware(inspector, measure)).Get("/inspect", xhttp.ReportHandler)
	srv.Router().Get("/country/{ip}", xhttp.CountryHandler(inspector))

	if err := srv.Run(cfg.HTTP.Addr); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	zap.L().Info("shutting down", zap.Stringer("signal", s))

	return srv.Shutdown()
}

func serverOptions(cfg config.HTTP, measure *xhttp.Measure) ([]xhttp.Option, error) {
	opts := []xhttp.Option{xhttp.WithLogger()}
	if cfg.CORS {
		opts = append(opts, xhttp.WithCORS())
	}
	if cfg.TLSCert != "" {
		tlsConfig, err := xhttp.LoadTLS(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, xhttp.WithSSL(tlsConfig))
	}
	if cfg.DisableHTTP2 {
		opts = append(opts, xhttp.WithDisableHTTPv2())
	}

	// route registering options go last
	if cfg.Metrics {
		if cfg.MetricsRecorder == config.RecorderStandard {
			// the inspection counters still land in the default registry
			opts = append(opts, xhttp.WithMetrics(nil))
		} else {
			opts = append(opts, xhttp.WithMetrics(measure))
		}
	}
	if cfg.Pprof {
		opts = append(opts, xhttp.WithPprof())
	}
	return opts, nil
}
