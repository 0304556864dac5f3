package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentConfig configures Instrument.
type InstrumentConfig struct {
	Service        string
	Routes         RouteFinder
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// Skip excludes matching requests from tracing and metrics. Long-lived
	// streams are usually skipped.
	Skip func(*http.Request) bool
}

// Instrument traces and measures requests with otelhttp. Spans are named
// after the matched route.
func Instrument(cfg InstrumentConfig) Middleware {
	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return routeOrUnknown(cfg.Routes, r)
		}),
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}
	if cfg.Skip != nil {
		opts = append(opts, otelhttp.WithFilter(func(r *http.Request) bool {
			return !cfg.Skip(r)
		}))
	}
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, cfg.Service, opts...)
	}
}

// Labeler adds the matched route to the otelhttp metric attributes. It must
// run inside Instrument.
func Labeler(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if labeler, ok := otelhttp.LabelerFromContext(r.Context()); ok {
				labeler.Add(attribute.String("http.route", routeOrUnknown(find, r)))
			}
			next.ServeHTTP(w, r)
		})
	}
}
