// Package transcriber defines the Provider interface for batch speech-to-text
// backends.
//
// A transcriber turns one audio file on disk into a [analysis.Transcription]:
// the full text plus segments carrying per-word timestamps. Word timings are
// required downstream (silence detection, filler occurrences, sentiment
// timelines), so every implementation must return them, synthesising them
// from segment boundaries when the backend does not report word timings
// itself.
//
// Implementations must be safe for concurrent use.
package transcriber

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/ispitch/pkg/analysis"
)

// Provider is the abstraction over any transcription backend.
type Provider interface {
	// Transcribe reads the audio file at audioPath and returns its
	// transcription. Failures are reported as *Error.
	Transcribe(ctx context.Context, audioPath string) (*analysis.Transcription, error)
}

// Error is the failure type of every [Provider]. Provider names the backend
// that failed.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcription failed (%s): %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error for provider with a formatted cause. A %w verb in
// format is preserved for errors.Is.
func Errorf(provider, format string, args ...any) *Error {
	return &Error{Provider: provider, Err: fmt.Errorf(format, args...)}
}

// AsError reports whether err is or wraps an *Error.
func AsError(err error) (*Error, bool) {
	var te *Error
	ok := errors.As(err, &te)
	return te, ok
}
