package resilience

import (
	"context"
	"time"

	"github.com/MrWong99/ispitch/internal/observe"
	"github.com/MrWong99/ispitch/pkg/analysis"
	"github.com/MrWong99/ispitch/pkg/provider/transcriber"
)

// Transcriber fails over between transcription backends.
type Transcriber struct {
	group *Group[transcriber.Provider]
}

var _ transcriber.Provider = (*Transcriber)(nil)

// NewTranscriber returns a Transcriber preferring primary. Every attempt is
// recorded on m, or on [observe.DefaultMetrics] when m is nil.
func NewTranscriber(name string, primary transcriber.Provider, cfg BreakerConfig, m *observe.Metrics) *Transcriber {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	g := NewGroup(name, primary, cfg)
	g.Observe(func(ctx context.Context, provider string, d time.Duration, err error) {
		m.RecordTranscription(ctx, provider, d, err)
	})
	return &Transcriber{group: g}
}

// AddFallback registers another backend, tried after those already added.
func (t *Transcriber) AddFallback(name string, p transcriber.Provider) {
	t.group.Add(name, p)
}

// Providers lists the backends in the order they are tried.
func (t *Transcriber) Providers() []string { return t.group.Names() }

// Transcribe asks each backend in turn. When all fail the error is a
// *transcriber.Error naming the last backend tried.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (*analysis.Transcription, error) {
	tr, err := Do(ctx, t.group, func(ctx context.Context, p transcriber.Provider) (*analysis.Transcription, error) {
		return p.Transcribe(ctx, audioPath)
	})
	if err != nil {
		names := t.group.Names()
		return nil, &transcriber.Error{Provider: names[len(names)-1], Err: err}
	}
	return tr, nil
}
