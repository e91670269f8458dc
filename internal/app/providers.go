package app

import (
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/ispitch/internal/config"
	"github.com/MrWong99/ispitch/internal/observe"
	"github.com/MrWong99/ispitch/internal/resilience"
	"github.com/MrWong99/ispitch/pkg/provider/llm"
	"github.com/MrWong99/ispitch/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/ispitch/pkg/provider/llm/openai"
	"github.com/MrWong99/ispitch/pkg/provider/transcriber"
	"github.com/MrWong99/ispitch/pkg/provider/transcriber/deepgram"
	tropenai "github.com/MrWong99/ispitch/pkg/provider/transcriber/openai"
	"github.com/MrWong99/ispitch/pkg/provider/transcriber/whisper"
)

// Providers holds the backends the pipeline runs on. A nil LLM disables the
// LLM-based analyzers.
type Providers struct {
	Transcriber transcriber.Provider
	LLM         llm.Provider
}

// RegisterBuiltinProviders registers a factory for every provider name
// shipped with ispitch. decode turns non-WAV uploads into PCM for the
// whisper backends; language is the default transcription language.
func RegisterBuiltinProviders(reg *config.Registry, decode whisper.Decoder, language string) {
	// ── Transcribers ─────────────────────────────────────────────────────

	reg.RegisterTranscriber("openai", func(e config.ProviderEntry) (transcriber.Provider, error) {
		opts := []tropenai.Option{tropenai.WithLanguage(language)}
		if e.Model != "" {
			opts = append(opts, tropenai.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, tropenai.WithBaseURL(e.BaseURL))
		}
		if p := e.Option("prompt"); p != "" {
			opts = append(opts, tropenai.WithPrompt(p))
		}
		p, err := tropenai.New(e.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterTranscriber("deepgram", func(e config.ProviderEntry) (transcriber.Provider, error) {
		opts := []deepgram.Option{deepgram.WithLanguage(language)}
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(e.BaseURL))
		}
		p, err := deepgram.New(e.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// whisper is a whisper.cpp server; BaseURL is its address.
	reg.RegisterTranscriber("whisper", func(e config.ProviderEntry) (transcriber.Provider, error) {
		opts := []whisper.Option{whisper.WithLanguage(language), whisper.WithDecoder(decode)}
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		p, err := whisper.New(e.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// whisper-native runs the model in process; Model is the model file.
	reg.RegisterTranscriber("whisper-native", func(e config.ProviderEntry) (transcriber.Provider, error) {
		p, err := whisper.NewNative(e.Model,
			whisper.WithNativeLanguage(language),
			whisper.WithNativeDecoder(decode),
		)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// ── LLMs ─────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(e.BaseURL))
		}
		if org := e.Option("organization"); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		p, err := llmopenai.New(e.APIKey, e.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// The remaining backends go through any-llm with an optional key and
	// base URL. ollama and the llama.cpp servers are usually keyless.
	for _, name := range anyllm.SupportedProviders {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			p, err := anyllm.New(name, e.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}
}

// BuildProviders instantiates the configured backends through reg and wraps
// each kind in a circuit-breaking failover chain.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	pc := cfg.Providers
	bc := resilience.BreakerConfig{
		MaxFailures: pc.CircuitBreaker.MaxFailures,
		Cooldown:    pc.CircuitBreaker.Cooldown,
		Probes:      pc.CircuitBreaker.Probes,
	}

	primary, err := reg.CreateTranscriber(pc.Transcriber)
	if err != nil {
		return nil, fmt.Errorf("app: build providers: %w", err)
	}
	tr := resilience.NewTranscriber(pc.Transcriber.Name, primary, bc, m)
	for _, fb := range pc.TranscriberFallbacks {
		p, err := reg.CreateTranscriber(fb)
		if err != nil {
			return nil, fmt.Errorf("app: build providers: fallback: %w", err)
		}
		tr.AddFallback(fb.Name, p)
	}
	slog.Info("provider created", "kind", "transcriber", "chain", tr.Providers())

	out := &Providers{Transcriber: tr}
	if pc.LLM.Name == "" {
		slog.Info("no llm configured, llm analyzers disabled")
		return out, nil
	}

	primaryLLM, err := reg.CreateLLM(pc.LLM)
	if err != nil {
		return nil, fmt.Errorf("app: build providers: %w", err)
	}
	chain := resilience.NewLLM(pc.LLM.Name, primaryLLM, bc, m)
	for _, fb := range pc.LLMFallbacks {
		p, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("app: build providers: fallback: %w", err)
		}
		chain.AddFallback(fb.Name, p)
	}
	slog.Info("provider created", "kind", "llm", "name", pc.LLM.Name, "fallbacks", len(pc.LLMFallbacks))
	out.LLM = chain
	return out, nil
}
