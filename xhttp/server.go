// Copyright 2021 The VPN House Authors. All rights reserved.
// Use of this source code is governed by a AGPL-style
// license that can be found in the LICENSE file.

package xhttp

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	metrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	middlewarestd "github.com/slok/go-http-metrics/middleware/std"
	"go.uber.org/zap"

	"github.com/vpnhouse/reqinspect/xerror"
)

// initialize the measuring middleware only once
var (
	measureMW = middleware.New(middleware.Config{
		Recorder:      metrics.NewRecorder(metrics.Config{}),
		GroupedStatus: true,
	})
	MetricsSourceAllowed = []netip.Prefix{
		netip.MustParsePrefix("127.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.0/12"),
		netip.MustParsePrefix("::1/128"),
	}
)

type Middleware = func(http.Handler) http.Handler

type Option func(w *Server)

func WithMiddleware(mw Middleware) Option {
	return func(w *Server) {
		w.router.Use(mw)
	}
}

// WithMetrics exposes /metrics to MetricsSourceAllowed. When m is not nil
// it is used for both the request metrics and the exposition, otherwise the
// go-http-metrics recorder and the default registry are.
// It registers a route, so middleware options must precede it.
func WithMetrics(m *Measure) Option {
	return func(w *Server) {
		var exposition http.Handler
		if m != nil {
			w.router.Use(m.Middleware())
			exposition = m.Handler()
		} else {
			w.router.Use(func(handler http.Handler) http.Handler {
				return middlewarestd.Handler("", measureMW, handler)
			})
			exposition = promhttp.Handler()
		}

		w.router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			if !metricsAllowed(r.RemoteAddr) {
				notFoundHandler(w, r)
				return
			}
			exposition.ServeHTTP(w, r)
		})
	}
}

func metricsAllowed(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	zap.L().Debug("Metrics requested", zap.Stringer("addr", addr))
	for _, allowed := range MetricsSourceAllowed {
		if allowed.Contains(addr) {
			return true
		}
	}
	return false
}

func WithCORS() Option {
	return func(w *Server) {
		cfg := cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{
				http.MethodHead,
				http.MethodGet,
				http.MethodPost,
			},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}
		w.router.Use(cors.Handler(cfg))
	}
}

func WithDisableHTTPv2() Option {
	return func(w *Server) {
		w.disablev2 = true
	}
}

func WithLogger() Option {
	return func(w *Server) {
		w.router.Use(requestLogger)
	}
}

// LoadTLS reads a PEM encoded certificate chain and its private key.
func LoadTLS(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, xerror.EConfiguration("can't load tls certificate", err,
			zap.String("cert", certFile), zap.String("key", keyFile))
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func WithSSL(cfg *tls.Config) Option {
	return func(w *Server) {
		w.tlsConfig = cfg
	}
}

// WithPprof mounts the profiler under /debug. Like WithMetrics it registers routes.
func WithPprof() Option {
	return func(w *Server) {
		w.router.Mount("/debug", chi_middleware.Profiler())
	}
}

type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tlsConfig *tls.Config
	router    chi.Router
	disablev2 bool
	addr      net.Addr
}

// Run starts the http server asynchronously.
func (w *Server) Run(addr string) error {
	srv := &http.Server{
		Handler:     w.router,
		Addr:        addr,
		TLSConfig:   w.tlsConfig,
		ReadTimeout: 10 * time.Second,
	}

	if w.disablev2 {
		srv.TLSNextProto = make(map[string]func(*http.Server, *tls.Conn, http.Handler))
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return xerror.EInternalError("failed to start http listener", err, zap.String("addr", addr))
	}
	w.addr = lis.Addr()

	withTLS := w.tlsConfig != nil
	zap.L().Info("starting HTTP server", zap.Stringer("addr", w.addr), zap.Bool("with_tls", withTLS))

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()

		defer w.cancel()
		<-w.ctx.Done()
		srv.Shutdown(context.Background())
	}()

	go func() {
		defer w.wg.Done()

		var err error
		if withTLS {
			err = srv.ServeTLS(lis, "", "")
		} else {
			err = srv.Serve(lis)
		}

		if err != nil && err != http.ErrServerClosed {
			zap.L().Error("http listener failed", zap.String("addr", addr), zap.Error(err))
		}
	}()

	return nil
}

// Addr is the address the server listens on, nil before Run.
func (w *Server) Addr() net.Addr {
	return w.addr
}

// Router exposes chi.Router for the external registration of handlers.
// usage:
//
//	h.Router().Get("/apt/path", myHandler)
//	h.Router().Post("/apt/verb", myOtherHandler)
func (w *Server) Router() chi.Router {
	return w.router
}

func New(opts ...Option) *Server {
	r := chi.NewRouter()
	// always respond with JSON by using the custom error handlers
	r.NotFound(notFoundHandler)
	r.MethodNotAllowed(notAllowedHandler)

	ctx, cancel := context.WithCancel(context.Background())
	h := &Server{
		ctx:    ctx,
		cancel: cancel,
		router: r,
	}
	for _, o := range opts {
		o(h)
	}

	return h
}

func (w *Server) Shutdown() error {
	w.cancel()
	w.wg.Wait()
	return nil
}

func (w *Server) Running() bool {
	return w.ctx.Err() == nil
}

type errorResponse struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Result: http.StatusText(status),
		Error:  msg,
	})
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

func notAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chi_middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.Stringer("request", RequestStringer(r)))
	})
}
