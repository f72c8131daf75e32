package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the OpenTelemetry trace SDK. The spec calls only
// for span telemetry (one parent span per pipeline run, one child span per
// stage) — no metrics pipeline is wired, since nothing in this runtime
// exposes a scrape endpoint.
type ProviderConfig struct {
	// ServiceName is the service name reported on every span. Default: "holdtalk".
	ServiceName string

	// ServiceVersion is the service version reported on every span.
	ServiceVersion string

	// TraceExporter is an optional span exporter. When nil, spans are
	// recorded in-process but never exported — every StartSpan call still
	// succeeds and returns a valid, inert span, satisfying "if not
	// initialized, all span operations are no-ops."
	TraceExporter sdktrace.SpanExporter
}

// InitProvider builds a TracerProvider from cfg and registers it as the
// global OTel tracer provider. Returns a shutdown function to flush and
// close the exporter, intended to be deferred from main().
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "holdtalk"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		opts = append(opts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
