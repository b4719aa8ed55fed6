// Package observe provides application-wide observability primitives for
// Memoira: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Memoira metrics.
const meterName = "github.com/MrWong99/memoira"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Audio quality ---

	// Analyses counts quality analyses. Use with attribute:
	//   attribute.String("verdict", "accept"|"review"|"unreadable")
	Analyses metric.Int64Counter

	// QualityWarnings counts individual quality findings. Use with attribute:
	//   attribute.String("kind", ...)
	QualityWarnings metric.Int64Counter

	// SaveOutcomes counts save attempts. Use with attribute:
	//   attribute.String("outcome", "saved"|"needs_review"|"failed")
	SaveOutcomes metric.Int64Counter

	// --- Transcription ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// TranscriptConfidence tracks the confidence score of stored transcripts.
	TranscriptConfidence metric.Float64Histogram

	// TranscriptFlags counts validation flags raised. Use with attribute:
	//   attribute.String("flag", ...)
	TranscriptFlags metric.Int64Counter

	// --- Providers ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes: attribute.String("provider", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// LiveSessions tracks open live level-meter connections.
	LiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// transcription calls, which run from sub-second to minutes.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// confidenceBuckets splits the 0..1 confidence scale.
var confidenceBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Quality counters.
	if met.Analyses, err = m.Int64Counter("memoira.quality.analyses",
		metric.WithDescription("Total audio quality analyses by verdict."),
	); err != nil {
		return nil, err
	}
	if met.QualityWarnings, err = m.Int64Counter("memoira.quality.warnings",
		metric.WithDescription("Total audio quality warnings by kind."),
	); err != nil {
		return nil, err
	}
	if met.SaveOutcomes, err = m.Int64Counter("memoira.recording.saves",
		metric.WithDescription("Total recording save attempts by outcome."),
	); err != nil {
		return nil, err
	}

	// Transcription.
	if met.STTDuration, err = m.Float64Histogram("memoira.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptConfidence, err = m.Float64Histogram("memoira.transcript.confidence",
		metric.WithDescription("Confidence score of stored transcripts."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptFlags, err = m.Int64Counter("memoira.transcript.flags",
		metric.WithDescription("Total transcript validation flags by name."),
	); err != nil {
		return nil, err
	}

	// Providers.
	if met.ProviderRequests, err = m.Int64Counter("memoira.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("memoira.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("memoira.provider.breaker_transitions",
		metric.WithDescription("Circuit breaker state changes by provider and target state."),
	); err != nil {
		return nil, err
	}

	if met.LiveSessions, err = m.Int64UpDownCounter("memoira.live.sessions",
		metric.WithDescription("Number of open live level-meter connections."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("memoira.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route, and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAnalysis records one quality analysis: its verdict and one increment
// per warning kind.
func (m *Metrics) RecordAnalysis(ctx context.Context, verdict string, kinds []string) {
	m.Analyses.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
	for _, k := range kinds {
		m.QualityWarnings.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", k)))
	}
}

// RecordSave records the outcome of a save attempt.
func (m *Metrics) RecordSave(ctx context.Context, outcome string) {
	m.SaveOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTranscript records the confidence and flags of a stored transcript.
func (m *Metrics) RecordTranscript(ctx context.Context, confidence float64, flags []string) {
	m.TranscriptConfidence.Record(ctx, confidence)
	for _, f := range flags {
		m.TranscriptFlags.Add(ctx, 1, metric.WithAttributes(attribute.String("flag", f)))
	}
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBreakerTransition records a circuit breaker state change. Its
// signature matches the breaker's OnStateChange hook once bound.
func (m *Metrics) RecordBreakerTransition(provider, to string) {
	m.BreakerTransitions.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("to", to),
		),
	)
}
