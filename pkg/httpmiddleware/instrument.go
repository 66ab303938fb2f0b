package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentConfig carries the telemetry providers for HTTP instrumentation.
type InstrumentConfig struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Instrument returns a middleware that wraps the handler with otelhttp,
// producing spans and metrics named after the given service.
func Instrument(service string, cfg InstrumentConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service,
			otelhttp.WithTracerProvider(cfg.TracerProvider),
			otelhttp.WithMeterProvider(cfg.MeterProvider),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithMetricAttributesFn(func(r *http.Request) []attribute.KeyValue {
				return []attribute.KeyValue{attribute.String("http.method", r.Method)}
			}),
		)
	}
}
