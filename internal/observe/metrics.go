// Package observe wires ispitch into OpenTelemetry: metric instruments for
// the analysis pipeline and its providers, tracing helpers, trace-aware
// logging, and an HTTP middleware for the API.
//
// Metrics are exported to Prometheus through the OTel exporter bridge set up
// by [InitProvider]. [DefaultMetrics] uses the global meter provider; tests
// should build their own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// scopeName is the instrumentation scope of every ispitch instrument.
const scopeName = "github.com/MrWong99/ispitch"

// Metrics holds the application's instruments. The OTel types are safe for
// concurrent use.
type Metrics struct {
	// StageDuration tracks pipeline stage latency. Attributes: stage, status.
	StageDuration metric.Float64Histogram

	// TranscriberDuration tracks transcription latency. Attribute: provider.
	TranscriberDuration metric.Float64Histogram

	// LLMDuration tracks completion latency of the LLM-backed analyzers.
	// Attribute: analyzer.
	LLMDuration metric.Float64Histogram

	// Analyses counts finished runs. Attribute: status (COMPLETED or FAILED).
	Analyses metric.Int64Counter

	// ProviderRequests counts provider calls. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider calls. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// ActiveRuns is the number of analyses currently executing.
	ActiveRuns metric.Int64UpDownCounter

	// QueueDepth is the number of analyses waiting for a worker.
	QueueDepth metric.Int64UpDownCounter

	// StreamSubscribers is the number of open SSE and WebSocket streams.
	StreamSubscribers metric.Int64UpDownCounter

	// HTTPRequestDuration tracks API latency. Attributes: method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets (seconds) cover everything from an instant silence pass to a
// long transcription.
var stageBuckets = []float64{
	0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

var httpBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(scopeName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("ispitch.pipeline.stage.duration",
		metric.WithDescription("Latency of a pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriberDuration, err = m.Float64Histogram("ispitch.transcriber.duration",
		metric.WithDescription("Latency of audio transcription by provider."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("ispitch.llm.duration",
		metric.WithDescription("Latency of LLM completions by analyzer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Analyses, err = m.Int64Counter("ispitch.analyses",
		metric.WithDescription("Finished analyses by terminal status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("ispitch.provider.requests",
		metric.WithDescription("Provider calls by provider, kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("ispitch.provider.errors",
		metric.WithDescription("Failed provider calls by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveRuns, err = m.Int64UpDownCounter("ispitch.active_runs",
		metric.WithDescription("Analyses currently executing."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("ispitch.queue.depth",
		metric.WithDescription("Analyses waiting for a worker."),
	); err != nil {
		return nil, err
	}
	if met.StreamSubscribers, err = m.Int64UpDownCounter("ispitch.stream.subscribers",
		metric.WithDescription("Open progress streams."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("ispitch.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(httpBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide [Metrics] on the global meter
// provider, created on first use. It panics if instrument creation fails,
// which the global provider never does.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordStage records the duration and outcome of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", statusOf(err)),
		),
	)
}

// RecordTranscription records a transcription attempt against provider.
func (m *Metrics) RecordTranscription(ctx context.Context, provider string, d time.Duration, err error) {
	m.TranscriberDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)),
	)
	m.RecordProviderRequest(ctx, provider, "transcriber", statusOf(err))
	if err != nil {
		m.RecordProviderError(ctx, provider, "transcriber")
	}
}

// RecordLLM records the latency of one completion made on behalf of
// analyzer. Per-backend request counts are recorded by the failover layer.
func (m *Metrics) RecordLLM(ctx context.Context, analyzer string, d time.Duration, err error) {
	m.LLMDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("analyzer", analyzer),
			attribute.String("status", statusOf(err)),
		),
	)
}

// RecordAnalysis counts a run that ended in status.
func (m *Metrics) RecordAnalysis(ctx context.Context, status string) {
	m.Analyses.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
