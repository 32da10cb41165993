// Package observe provides application-wide observability primitives for
// Orato: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all Orato metrics.
const meterName = "github.com/anneliv/orato"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscribeDuration tracks speech-to-text transcription latency.
	TranscribeDuration metric.Float64Histogram

	// AnalysisDuration tracks fluency analysis latency, from transcript in
	// to metrics out.
	AnalysisDuration metric.Float64Histogram

	// FeedbackDuration tracks coaching feedback generation latency.
	FeedbackDuration metric.Float64Histogram

	// --- Counters ---

	// TranscriberRequests counts transcriber API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	TranscriberRequests metric.Int64Counter

	// SessionsRecorded counts practice sessions written to the store. Use
	// with attribute: attribute.String("exercise_type", ...)
	SessionsRecorded metric.Int64Counter

	// LiveTicks counts live-tracker metric recomputations.
	LiveTicks metric.Int64Counter

	// --- Error counters ---

	// TranscriberErrors counts transcriber errors by provider.
	TranscriberErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveLiveSessions tracks the number of open live tracking streams.
	ActiveLiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...), attribute.String("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// transcription and analysis latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscribeDuration, err = m.Float64Histogram("orato.transcribe.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("orato.analysis.duration",
		metric.WithDescription("Latency of fluency analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FeedbackDuration, err = m.Float64Histogram("orato.feedback.duration",
		metric.WithDescription("Latency of coaching feedback generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TranscriberRequests, err = m.Int64Counter("orato.transcriber.requests",
		metric.WithDescription("Total transcriber API requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.SessionsRecorded, err = m.Int64Counter("orato.sessions.recorded",
		metric.WithDescription("Total practice sessions recorded by exercise type."),
	); err != nil {
		return nil, err
	}
	if met.LiveTicks, err = m.Int64Counter("orato.live.ticks",
		metric.WithDescription("Total live-tracker metric recomputations."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.TranscriberErrors, err = m.Int64Counter("orato.transcriber.errors",
		metric.WithDescription("Total transcriber errors by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveLiveSessions, err = m.Int64UpDownCounter("orato.active_live_sessions",
		metric.WithDescription("Number of open live tracking streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("orato.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// RecordTranscriberRequest is a convenience method that records a
// transcriber request counter increment with the standard attribute set.
func (m *Metrics) RecordTranscriberRequest(ctx context.Context, provider, status string) {
	m.TranscriberRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordTranscriberError is a convenience method that records a transcriber
// error counter increment.
func (m *Metrics) RecordTranscriberError(ctx context.Context, provider string) {
	m.TranscriberErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordSessionRecorded is a convenience method that records a session
// counter increment by exercise type.
func (m *Metrics) RecordSessionRecorded(ctx context.Context, exerciseType string) {
	m.SessionsRecorded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("exercise_type", exerciseType)),
	)
}
