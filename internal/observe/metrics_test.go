package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWith returns the value of the Int64 sum data point whose attributes
// include every kv.
func sumWith(t *testing.T, m *metricdata.Metrics, kv ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: data is %T, want Sum[int64]", m.Name, m.Data)
	}
	for _, dp := range sum.DataPoints {
		match := true
		for _, want := range kv {
			if v, ok := dp.Attributes.Value(want.Key); !ok || v != want.Value {
				match = false
				break
			}
		}
		if match {
			return dp.Value
		}
	}
	return 0
}

func TestRecordStage(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "transcribe", 2*time.Second, nil)
	m.RecordStage(ctx, "transcribe", time.Second, errors.New("boom"))

	got := findMetric(collect(t, reader), "ispitch.pipeline.stage.duration")
	if got == nil {
		t.Fatal("stage histogram not recorded")
	}
	hist, ok := got.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data is %T, want Histogram[float64]", got.Data)
	}
	if len(hist.DataPoints) != 2 {
		t.Fatalf("data points = %d, want 2 (ok and error)", len(hist.DataPoints))
	}
	for _, dp := range hist.DataPoints {
		status, _ := dp.Attributes.Value("status")
		if dp.Count != 1 {
			t.Errorf("status %s: count = %d, want 1", status.AsString(), dp.Count)
		}
	}
}

func TestRecordTranscription_CountsErrors(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTranscription(ctx, "openai", time.Second, nil)
	m.RecordTranscription(ctx, "openai", time.Second, errors.New("rate limited"))
	m.RecordTranscription(ctx, "deepgram", time.Second, nil)

	rm := collect(t, reader)

	reqs := findMetric(rm, "ispitch.provider.requests")
	if reqs == nil {
		t.Fatal("provider requests not recorded")
	}
	if n := sumWith(t, reqs, Attr("provider", "openai"), Attr("status", "ok")); n != 1 {
		t.Errorf("openai ok = %d, want 1", n)
	}
	if n := sumWith(t, reqs, Attr("provider", "openai"), Attr("status", "error")); n != 1 {
		t.Errorf("openai error = %d, want 1", n)
	}

	errs := findMetric(rm, "ispitch.provider.errors")
	if errs == nil {
		t.Fatal("provider errors not recorded")
	}
	if n := sumWith(t, errs, Attr("provider", "openai"), Attr("kind", "transcriber")); n != 1 {
		t.Errorf("openai errors = %d, want 1", n)
	}
	if n := sumWith(t, errs, Attr("provider", "deepgram")); n != 0 {
		t.Errorf("deepgram errors = %d, want 0", n)
	}

	if findMetric(rm, "ispitch.transcriber.duration") == nil {
		t.Error("transcriber duration not recorded")
	}
}

func TestRecordLLM(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)

	m.RecordLLM(context.Background(), "sentiment", 300*time.Millisecond, errors.New("bad json"))

	rm := collect(t, reader)
	hist := findMetric(rm, "ispitch.llm.duration")
	if hist == nil {
		t.Fatal("llm duration not recorded")
	}
	dps := hist.Data.(metricdata.Histogram[float64]).DataPoints
	if len(dps) != 1 {
		t.Fatalf("got %d data points, want 1", len(dps))
	}
	if v, _ := dps[0].Attributes.Value("status"); v.AsString() != "error" {
		t.Errorf("status = %q, want error", v.AsString())
	}
	if findMetric(rm, "ispitch.provider.errors") != nil {
		t.Error("RecordLLM should not count provider errors")
	}
}

func TestRecordAnalysis(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAnalysis(ctx, "COMPLETED")
	m.RecordAnalysis(ctx, "COMPLETED")
	m.RecordAnalysis(ctx, "FAILED")

	got := findMetric(collect(t, reader), "ispitch.analyses")
	if got == nil {
		t.Fatal("analyses counter not recorded")
	}
	if n := sumWith(t, got, Attr("status", "COMPLETED")); n != 2 {
		t.Errorf("COMPLETED = %d, want 2", n)
	}
	if n := sumWith(t, got, Attr("status", "FAILED")); n != 1 {
		t.Errorf("FAILED = %d, want 1", n)
	}
}

func TestUpDownCounters(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveRuns.Add(ctx, 3)
	m.ActiveRuns.Add(ctx, -1)
	m.QueueDepth.Add(ctx, 5)
	m.StreamSubscribers.Add(ctx, 1)
	m.StreamSubscribers.Add(ctx, -1)

	rm := collect(t, reader)
	tests := []struct {
		name string
		want int64
	}{
		{"ispitch.active_runs", 2},
		{"ispitch.queue.depth", 5},
		{"ispitch.stream.subscribers", 0},
	}
	for _, tt := range tests {
		got := findMetric(rm, tt.name)
		if got == nil {
			t.Errorf("%s not recorded", tt.name)
			continue
		}
		if n := sumWith(t, got); n != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, n, tt.want)
		}
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	t.Parallel()
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
