package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/ispitch/internal/observe"
	"github.com/MrWong99/ispitch/pkg/analysis"
	"github.com/MrWong99/ispitch/pkg/provider/llm"
	llmmock "github.com/MrWong99/ispitch/pkg/provider/llm/mock"
	"github.com/MrWong99/ispitch/pkg/provider/transcriber"
	trmock "github.com/MrWong99/ispitch/pkg/provider/transcriber/mock"
)

func TestDo_FirstHealthyMemberWins(t *testing.T) {
	t.Parallel()

	g := NewGroup("primary", "p", BreakerConfig{MaxFailures: 1, Cooldown: time.Hour})
	g.Add("secondary", "s")
	g.Add("tertiary", "t")

	var mu sync.Mutex
	var attempts []string
	g.Observe(func(_ context.Context, name string, _ time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, name)
	})

	call := func(ctx context.Context, v string) (string, error) {
		if v == "p" {
			return "", errBackend
		}
		return "answer from " + v, nil
	}

	got, err := Do(context.Background(), g, call)
	if err != nil || got != "answer from s" {
		t.Fatalf("Do = %q, %v", got, err)
	}
	if strings.Join(attempts, ",") != "primary,secondary" {
		t.Errorf("attempts = %v", attempts)
	}

	// The primary's circuit is now open: it is skipped without an observed
	// attempt.
	attempts = nil
	if _, err := Do(context.Background(), g, call); err != nil {
		t.Fatalf("second Do: %v", err)
	}
	if strings.Join(attempts, ",") != "secondary" {
		t.Errorf("attempts with open primary = %v", attempts)
	}
	if g.Breaker("primary").State() != StateOpen {
		t.Errorf("primary breaker = %v", g.Breaker("primary").State())
	}
	if g.Breaker("nope") != nil {
		t.Error("Breaker(unknown) should be nil")
	}
}

func TestDo_AllFail(t *testing.T) {
	t.Parallel()
	g := NewGroup("a", 1, BreakerConfig{})
	g.Add("b", 2)

	_, err := Do(context.Background(), g, func(_ context.Context, v int) (int, error) {
		return 0, errors.New("boom")
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !strings.Contains(err.Error(), "a: boom") || !strings.Contains(err.Error(), "b: boom") {
		t.Errorf("err = %v, want every attempt listed", err)
	}
}

func TestDo_StopsWhenContextDone(t *testing.T) {
	t.Parallel()
	g := NewGroup("a", "a", BreakerConfig{})
	g.Add("b", "b")

	ctx, cancel := context.WithCancel(context.Background())
	var called []string
	_, err := Do(ctx, g, func(_ context.Context, v string) (string, error) {
		called = append(called, v)
		cancel()
		return "", context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(called) != 1 {
		t.Errorf("called %v, fallback must not run after cancellation", called)
	}
}

func newMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func counter(t *testing.T, reader *sdkmetric.ManualReader, name string, kv ...string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
		points:
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				for i := 0; i+1 < len(kv); i += 2 {
					if v, ok := dp.Attributes.Value(attribute.Key(kv[i])); !ok || v.AsString() != kv[i+1] {
						continue points
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func TestTranscriber_Failover(t *testing.T) {
	t.Parallel()

	primary := &trmock.Provider{Err: transcriber.Errorf("openai", "503")}
	secondary := &trmock.Provider{Result: &analysis.Transcription{Text: "olá"}}
	m, reader := newMetrics(t)

	tr := NewTranscriber("openai", primary, BreakerConfig{}, m)
	tr.AddFallback("whisper", secondary)
	if got := strings.Join(tr.Providers(), ","); got != "openai,whisper" {
		t.Errorf("Providers = %s", got)
	}

	res, err := tr.Transcribe(context.Background(), "/tmp/a.wav")
	if err != nil || res.Text != "olá" {
		t.Fatalf("Transcribe = %+v, %v", res, err)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d/%d", primary.CallCount(), secondary.CallCount())
	}
	if n := counter(t, reader, "ispitch.provider.errors", "provider", "openai", "kind", "transcriber"); n != 1 {
		t.Errorf("openai errors = %d, want 1", n)
	}
	if n := counter(t, reader, "ispitch.provider.requests", "provider", "whisper", "status", "ok"); n != 1 {
		t.Errorf("whisper ok requests = %d, want 1", n)
	}
}

func TestTranscriber_AllFailIsTranscriberError(t *testing.T) {
	t.Parallel()
	m, _ := newMetrics(t)
	tr := NewTranscriber("openai", &trmock.Provider{Err: errBackend}, BreakerConfig{}, m)
	tr.AddFallback("deepgram", &trmock.Provider{Err: errBackend})

	_, err := tr.Transcribe(context.Background(), "/tmp/a.wav")
	te, ok := transcriber.AsError(err)
	if !ok {
		t.Fatalf("err = %T %v, want *transcriber.Error", err, err)
	}
	if te.Provider != "deepgram" || !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %+v", te)
	}
}

func TestLLM_Failover(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{
		CompleteErr:        errBackend,
		CapabilitiesResult: llm.ModelCapabilities{ContextWindow: 128000},
	}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{"topics":[]}`}}
	m, reader := newMetrics(t)

	l := NewLLM("openai", primary, BreakerConfig{}, m)
	l.AddFallback("ollama", secondary)

	resp, err := l.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil || resp.Content != `{"topics":[]}` {
		t.Fatalf("Complete = %+v, %v", resp, err)
	}
	if len(secondary.Calls()) != 1 {
		t.Errorf("secondary calls = %d", len(secondary.Calls()))
	}
	if l.Capabilities().ContextWindow != 128000 {
		t.Errorf("Capabilities should come from the primary")
	}
	if n := counter(t, reader, "ispitch.provider.errors", "provider", "openai", "kind", "llm"); n != 1 {
		t.Errorf("openai llm errors = %d, want 1", n)
	}
}
