package xhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vpnhouse/reqinspect/inspect"
	"github.com/vpnhouse/reqinspect/xerror"
)

type reportKey struct{}

// ReportFromContext returns the report stored by InspectMiddleware.
func ReportFromContext(ctx context.Context) (inspect.Report, bool) {
	report, ok := ctx.Value(reportKey{}).(inspect.Report)
	return report, ok
}

// InspectMiddleware inspects every request and stores the report in its
// context. Geo lookup failures are logged and never fail the request.
// measure may be nil.
func InspectMiddleware(inspector *inspect.Inspector, measure *Measure) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			report, err := inspector.Inspect(r)
			if err != nil {
				fields := []zap.Field{zap.Stringer("request", RequestStringer(r))}
				var xerr *xerror.Error
				if errors.As(err, &xerr) {
					fields = append(fields, xerr.ZapFields()...)
				} else {
					fields = append(fields, zap.Error(err))
				}
				zap.L().Warn("request inspection is incomplete", fields...)
			}
			if measure != nil {
				measure.ObserveReport(report, err)
			}

			ctx := context.WithValue(r.Context(), reportKey{}, report)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ReportHandler responds with the report of the calling request as JSON.
func ReportHandler(w http.ResponseWriter, r *http.Request) {
	report, ok := ReportFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "request was not inspected")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		zap.L().Debug("failed to write report", zap.Error(err))
	}
}

// CountryHandler resolves the {ip} URL parameter.
func CountryHandler(inspector *inspect.Inspector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := chi.URLParam(r, "ip")
		res, err := inspector.CountryFromIP(ip)
		switch {
		case xerror.IsInvalidArgument(err):
			writeError(w, http.StatusBadRequest, "malformed ip address")
			return
		case xerror.IsConfiguration(err):
			writeError(w, http.StatusServiceUnavailable, "geoip database is not configured")
			return
		case err != nil:
			zap.L().Error("country lookup failed", zap.String("ip", ip), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "country lookup failed")
			return
		case !res.Found():
			writeError(w, http.StatusNotFound, "address is not in the database")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res.Country)
	}
}
