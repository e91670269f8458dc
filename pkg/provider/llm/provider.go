// Package llm defines the Provider interface for chat-completion backends.
//
// The speech analyzers use an LLM for the judgement-heavy tasks: topic
// extraction, per-segment sentiment, agreement checks and synonym
// suggestions. Every such call is a single non-streaming completion that is
// asked to answer with a JSON document, so the interface is deliberately
// narrow.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete sends req and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the configured model.
	Capabilities() ModelCapabilities
}
