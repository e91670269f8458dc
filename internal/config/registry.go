package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/ispitch/pkg/provider/llm"
	"github.com/MrWong99/ispitch/pkg/provider/transcriber"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// TranscriberFactory builds a transcription backend from its config entry.
type TranscriberFactory func(ProviderEntry) (transcriber.Provider, error)

// LLMFactory builds an LLM backend from its config entry.
type LLMFactory func(ProviderEntry) (llm.Provider, error)

// Registry maps provider names to factories. It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	transcribers map[string]TranscriberFactory
	llms         map[string]LLMFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transcribers: make(map[string]TranscriberFactory),
		llms:         make(map[string]LLMFactory),
	}
}

// RegisterTranscriber registers f under name, replacing any earlier factory.
func (r *Registry) RegisterTranscriber(name string, f TranscriberFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcribers[name] = f
}

// RegisterLLM registers f under name, replacing any earlier factory.
func (r *Registry) RegisterLLM(name string, f LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llms[name] = f
}

// CreateTranscriber builds the transcriber named by entry.Name.
func (r *Registry) CreateTranscriber(entry ProviderEntry) (transcriber.Provider, error) {
	r.mu.RLock()
	f, ok := r.transcribers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcriber %q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := f(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create transcriber %q: %w", entry.Name, err)
	}
	return p, nil
}

// CreateLLM builds the LLM named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f, ok := r.llms[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm %q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := f(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create llm %q: %w", entry.Name, err)
	}
	return p, nil
}

// Transcribers returns the registered transcriber names, sorted.
func (r *Registry) Transcribers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transcribers))
	for n := range r.transcribers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// LLMs returns the registered LLM names, sorted.
func (r *Registry) LLMs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llms))
	for n := range r.llms {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
