package observe

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// Resource attribute keys describing which receptionist a process answers
// calls as.
const (
	ReceptionistKey = attribute.Key("frontdesk.receptionist")
	BusinessKey     = attribute.Key("frontdesk.business")
)

// ProviderConfig describes the receptionist deployment reported in telemetry.
type ProviderConfig struct {
	// ServiceName defaults to "frontdesk".
	ServiceName    string
	ServiceVersion string

	// Receptionist and Business come from the agent config ("Maya",
	// "Glamour Salon"). Empty values are omitted from the resource.
	Receptionist string
	Business     string

	// Registerer receives the Prometheus collector. Default:
	// prometheus.DefaultRegisterer, which [MetricsHandler] serves.
	Registerer prometheus.Registerer

	// TraceExporter receives call spans. When nil, spans are recorded for
	// correlation ids and log enrichment but never exported.
	TraceExporter sdktrace.SpanExporter
}

// deploymentResource builds the resource every call span and metric carries.
func deploymentResource(cfg ProviderConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Receptionist != "" {
		attrs = append(attrs, ReceptionistKey.String(cfg.Receptionist))
	}
	if cfg.Business != "" {
		attrs = append(attrs, BusinessKey.String(cfg.Business))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

// InitProvider installs global meter and tracer providers for the
// receptionist. Call, reply and provider metrics are bridged to Prometheus
// and served by [MetricsHandler]. The returned shutdown flushes both
// providers and should run once the last call has been drained.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "frontdesk"
	}
	res, err := deploymentResource(cfg)
	if err != nil {
		return nil, err
	}

	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	promExp, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(promExp))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}

// MetricsHandler serves the default Prometheus registry, which is where
// [InitProvider] registers the OTel bridge unless told otherwise.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
