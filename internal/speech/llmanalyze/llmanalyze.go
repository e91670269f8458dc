// Package llmanalyze implements the speech analyzers that need language
// understanding: topic extraction, a sentiment timeline, an agreement
// grammar check and synonym suggestions. Each one asks an [llm.Provider] for
// a strict JSON document and maps it onto the analysis types.
package llmanalyze

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/ispitch/internal/observe"
	"github.com/MrWong99/ispitch/pkg/provider/llm"
)

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 1024

	// charsPerToken is the rough ratio used to keep prompts inside the
	// model's context window.
	charsPerToken = 4
)

// Option configures every analyzer in this package.
type Option func(*options)

type options struct {
	temperature float64
	maxTokens   int
	metrics     *observe.Metrics
}

// WithTemperature sets the sampling temperature. Default: 0.2.
func WithTemperature(t float64) Option {
	return func(o *options) {
		o.temperature = t
	}
}

// WithMaxTokens caps the answer length. Default: 1024.
func WithMaxTokens(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithMetrics records completion latency on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// client is embedded by every analyzer. name labels its metrics.
type client struct {
	name string
	llm  llm.Provider
	opts options
}

func newClient(name string, p llm.Provider, opts []Option) (client, error) {
	if p == nil {
		return client{}, fmt.Errorf("llmanalyze: %s: llm provider must not be nil", name)
	}
	c := client{name: name, llm: p, opts: options{temperature: defaultTemperature, maxTokens: defaultMaxTokens}}
	for _, o := range opts {
		o(&c.opts)
	}
	if c.opts.metrics == nil {
		c.opts.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// ask sends one system/user exchange and decodes the JSON answer into v.
func (c client) ask(ctx context.Context, system, user string, v any) error {
	start := time.Now()
	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: c.fit(user)}},
		Temperature:  c.opts.temperature,
		MaxTokens:    c.opts.maxTokens,
		JSONMode:     true,
	})
	c.opts.metrics.RecordLLM(ctx, c.name, time.Since(start), err)
	if err != nil {
		return err
	}
	return llm.DecodeJSON(resp.Content, v)
}

// fit trims user so the prompt leaves room for the answer.
func (c client) fit(user string) string {
	caps := c.llm.Capabilities()
	if caps.ContextWindow <= 0 {
		return user
	}
	budget := (caps.ContextWindow - c.opts.maxTokens - 512) * charsPerToken
	r := []rune(user)
	if budget <= 0 || len(r) <= budget {
		return user
	}
	return string(r[:budget])
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
