package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Trace exporter names accepted by [ProviderConfig.Traces].
const (
	TracesNone   = "none"
	TracesStdout = "stdout"
)

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "memoira".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// Traces selects the span exporter: "" or "none" keeps spans in process
	// for correlation IDs only, "stdout" writes them as JSON to TraceOutput.
	Traces string

	// TraceOutput receives stdout spans. Default: os.Stdout.
	TraceOutput io.Writer

	// SampleRatio is the fraction of root traces sampled. Zero samples all.
	SampleRatio float64

	// TraceExporter, when set, is used instead of the exporter named by
	// Traces.
	TraceExporter sdktrace.SpanExporter

	// Registerer receives the Prometheus collector. Default:
	// prometheus.DefaultRegisterer, which promhttp.Handler serves.
	Registerer prometheus.Registerer

	// Local skips installing the providers as the OTel globals.
	Local bool
}

// Providers holds the SDK providers built by [InitProvider].
type Providers struct {
	Resource       *resource.Resource
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

// Shutdown flushes pending spans and closes both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(p.TracerProvider.Shutdown(ctx), p.MeterProvider.Shutdown(ctx))
}

// InitProvider builds the tracer and meter providers described by cfg.
// Metrics are bridged to Prometheus so they can be scraped via /metrics.
// Unless cfg.Local is set both providers become the OTel globals.
//
// Call [Providers.Shutdown] in a defer from main().
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Providers, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "memoira"
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("observe: sample ratio %v must be in [0, 1]", cfg.SampleRatio)
	}

	// Schemaless so the merge never conflicts with the SDK's own schema URL.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	exp, err := spanExporter(cfg)
	if err != nil {
		return nil, err
	}

	promOpts := []promexporter.Option{}
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	promExp, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	}
	if exp != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	if !cfg.Local {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
	}

	attrs := []any{"traces", exporterName(cfg, exp)}
	for _, kv := range res.Attributes() {
		attrs = append(attrs, string(kv.Key), kv.Value.Emit())
	}
	slog.InfoContext(ctx, "telemetry initialised", attrs...)

	return &Providers{Resource: res, TracerProvider: tp, MeterProvider: mp}, nil
}

func spanExporter(cfg ProviderConfig) (sdktrace.SpanExporter, error) {
	if cfg.TraceExporter != nil {
		return cfg.TraceExporter, nil
	}
	switch cfg.Traces {
	case "", TracesNone:
		return nil, nil
	case TracesStdout:
		w := cfg.TraceOutput
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("observe: stdout trace exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("observe: unknown trace exporter %q", cfg.Traces)
	}
}

func exporterName(cfg ProviderConfig, exp sdktrace.SpanExporter) string {
	switch {
	case cfg.TraceExporter != nil:
		return "custom"
	case exp == nil:
		return TracesNone
	default:
		return cfg.Traces
	}
}
