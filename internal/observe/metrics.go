// Package observe provides application-wide observability primitives for
// Taiwa: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Taiwa metrics.
const meterName = "github.com/taiwalabs/taiwa"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecognizeDuration tracks speech recognition latency for a finalized
	// utterance.
	RecognizeDuration metric.Float64Histogram

	// RespondDuration tracks coach reply generation latency.
	RespondDuration metric.Float64Histogram

	// SynthesizeDuration tracks speech synthesis latency.
	SynthesizeDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end latency from utterance close to the
	// first paced audio frame of the coach reply.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Utterances counts finalized learner utterances. Use with attribute:
	//   attribute.String("transport", ...)
	Utterances metric.Int64Counter

	// PartialUpdates counts partial transcript updates pushed to clients.
	PartialUpdates metric.Int64Counter

	// FramesDropped counts inbound audio frames dropped before segmentation.
	// Use with attribute:
	//   attribute.String("reason", ...) — "busy" or "size"
	FramesDropped metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// HistoryErrors counts history store failures. Use with attribute:
	//   attribute.String("op", ...) — "append" or "recall"
	HistoryErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live coaching sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
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
	if met.RecognizeDuration, err = m.Float64Histogram("taiwa.recognize.duration",
		metric.WithDescription("Latency of speech recognition on a finalized utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RespondDuration, err = m.Float64Histogram("taiwa.respond.duration",
		metric.WithDescription("Latency of coach reply generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesizeDuration, err = m.Float64Histogram("taiwa.synthesize.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("taiwa.pipeline.duration",
		metric.WithDescription("End-to-end latency from utterance close to first paced audio frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("taiwa.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("taiwa.utterances",
		metric.WithDescription("Total finalized learner utterances by transport."),
	); err != nil {
		return nil, err
	}
	if met.PartialUpdates, err = m.Int64Counter("taiwa.partial.updates",
		metric.WithDescription("Total partial transcript updates pushed to clients."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("taiwa.frames.dropped",
		metric.WithDescription("Total inbound audio frames dropped by reason."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("taiwa.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.HistoryErrors, err = m.Int64Counter("taiwa.history.errors",
		metric.WithDescription("Total history store failures by operation."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("taiwa.active_sessions",
		metric.WithDescription("Number of live coaching sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("taiwa.http.request.duration",
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

// RecordUtterance is a convenience method that records a finalized utterance
// counter increment.
func (m *Metrics) RecordUtterance(ctx context.Context, transport string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("transport", transport)),
	)
}

// RecordFrameDrop is a convenience method that records a dropped inbound
// frame counter increment.
func (m *Metrics) RecordFrameDrop(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordHistoryError is a convenience method that records a history store
// failure counter increment.
func (m *Metrics) RecordHistoryError(ctx context.Context, op string) {
	m.HistoryErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}
