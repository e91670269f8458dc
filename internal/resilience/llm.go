package resilience

import (
	"context"
	"time"

	"github.com/MrWong99/ispitch/internal/observe"
	"github.com/MrWong99/ispitch/pkg/provider/llm"
)

// LLM fails over between chat-completion backends.
type LLM struct {
	group *Group[llm.Provider]
}

var _ llm.Provider = (*LLM)(nil)

// NewLLM returns an LLM preferring primary. Attempts are counted on m, or on
// [observe.DefaultMetrics] when m is nil.
func NewLLM(name string, primary llm.Provider, cfg BreakerConfig, m *observe.Metrics) *LLM {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	g := NewGroup(name, primary, cfg)
	g.Observe(func(ctx context.Context, provider string, _ time.Duration, err error) {
		status := "ok"
		if err != nil {
			status = "error"
			m.RecordProviderError(ctx, provider, "llm")
		}
		m.RecordProviderRequest(ctx, provider, "llm", status)
	})
	return &LLM{group: g}
}

// AddFallback registers another backend.
func (l *LLM) AddFallback(name string, p llm.Provider) {
	l.group.Add(name, p)
}

// Complete sends req to the first backend that answers.
func (l *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, l.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities reports the primary's model. Prompts are sized for it, so a
// fallback with a smaller window may truncate.
func (l *LLM) Capabilities() llm.ModelCapabilities {
	return l.group.Primary().Capabilities()
}
