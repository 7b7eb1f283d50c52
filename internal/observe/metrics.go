// Package observe provides application-wide observability primitives for
// VoxBridge: OpenTelemetry metrics, distributed tracing, and HTTP middleware
// that ties them together.
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

// meterName is the instrumentation scope name used for all VoxBridge metrics.
const meterName = "github.com/voxbridge/voxbridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Gauges ---

	// ActiveCalls tracks the number of live call sessions.
	ActiveCalls metric.Int64UpDownCounter

	// --- Histograms ---

	// CallDuration tracks completed call duration. Use with attribute:
	//   attribute.String("provider", ...)
	CallDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text turn latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM generation latency per turn.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency per sentence.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// AudioBytesIn counts provider→bot audio bytes by provider.
	AudioBytesIn metric.Int64Counter

	// AudioBytesOut counts bot→provider audio bytes by provider.
	AudioBytesOut metric.Int64Counter

	// BargeIns counts barge-in detections by provider.
	BargeIns metric.Int64Counter

	// TurnsDetected counts completed user turns in pipeline mode.
	TurnsDetected metric.Int64Counter

	// Escalations counts escalation triggers. Use with attribute:
	//   attribute.String("trigger", ...)
	Escalations metric.Int64Counter

	// SerializerErrors counts recoverable wire parse failures by provider.
	SerializerErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes: stage, name, to.
	BreakerTransitions metric.Int64Counter

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

// callBuckets defines histogram bucket boundaries (in seconds) for whole-call
// durations.
var callBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("voxbridge.active_calls",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.CallDuration, err = m.Float64Histogram("voxbridge.call.duration",
		metric.WithDescription("Completed call duration by provider."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("voxbridge.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("voxbridge.llm.duration",
		metric.WithDescription("Latency of LLM generation per turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voxbridge.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis per sentence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AudioBytesIn, err = m.Int64Counter("voxbridge.audio.bytes_in",
		metric.WithDescription("Inbound audio bytes by provider."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.AudioBytesOut, err = m.Int64Counter("voxbridge.audio.bytes_out",
		metric.WithDescription("Outbound audio bytes by provider."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("voxbridge.barge_ins",
		metric.WithDescription("Barge-in detections by provider."),
	); err != nil {
		return nil, err
	}
	if met.TurnsDetected, err = m.Int64Counter("voxbridge.turns_detected",
		metric.WithDescription("Completed user turns in pipeline mode."),
	); err != nil {
		return nil, err
	}
	if met.Escalations, err = m.Int64Counter("voxbridge.escalations",
		metric.WithDescription("Escalation triggers by trigger kind."),
	); err != nil {
		return nil, err
	}
	if met.SerializerErrors, err = m.Int64Counter("voxbridge.serializer.errors",
		metric.WithDescription("Recoverable wire parse failures by provider."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("voxbridge.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by stage, breaker name and target state."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxbridge.http.request.duration",
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

// RecordCallEnd records the end of one call: gauge decrement plus duration.
func (m *Metrics) RecordCallEnd(ctx context.Context, provider string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	m.ActiveCalls.Add(ctx, -1, attrs)
	m.CallDuration.Record(ctx, seconds, attrs)
}

// RecordEscalation records one escalation trigger.
func (m *Metrics) RecordEscalation(ctx context.Context, trigger string) {
	m.Escalations.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// RecordBreakerTransition records one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, stage, name, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("name", name),
		attribute.String("to", to),
	))
}
