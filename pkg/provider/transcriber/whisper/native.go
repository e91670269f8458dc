// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/ispitch/pkg/analysis"
	"github.com/MrWong99/ispitch/pkg/provider/transcriber"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

const nativeProviderName = "whisper-native"

var _ transcriber.Provider = (*NativeProvider)(nil)

// NativeProvider implements transcriber.Provider using the whisper.cpp Go
// bindings. The model is loaded once and shared; every Transcribe call
// creates its own context, so calls may run concurrently.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	decoder  Decoder
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription (e.g., "pt").
// Defaults to "pt".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeDecoder sets how audio files are loaded. Defaults to
// [DecodeWAV].
func WithNativeDecoder(d Decoder) NativeOption {
	return func(p *NativeProvider) { p.decoder = d }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
		decoder:  DecodeWAV,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe decodes audioPath, runs inference with token timestamps
// enabled, and rebuilds word timings from the tokens.
func (p *NativeProvider) Transcribe(ctx context.Context, audioPath string) (*analysis.Transcription, error) {
	pcm, err := p.decoder(ctx, audioPath)
	if err != nil {
		return nil, transcriber.Errorf(nativeProviderName, "decode audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, transcriber.Errorf(nativeProviderName, "before inference: %w", err)
	}
	samples := pcm.Float32Mono(modelSampleRate)

	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, transcriber.Errorf(nativeProviderName, "create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "err", err)
	}
	wctx.SetTokenTimestamps(true)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, transcriber.Errorf(nativeProviderName, "process audio: %w", err)
	}

	var segments []analysis.Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, transcriber.Errorf(nativeProviderName, "read segment: %w", err)
		}
		toks := make([]token, 0, len(seg.Tokens))
		for _, t := range seg.Tokens {
			toks = append(toks, token{text: t.Text, start: t.Start, end: t.End})
		}
		s := analysis.Segment{
			ID:    len(segments),
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Text:  strings.TrimSpace(seg.Text),
			Words: mergeTokens(toks),
		}
		if len(s.Words) == 0 {
			s.Words = transcriber.SynthesizeWords(s.Text, s.Start, s.End)
		}
		segments = append(segments, s)
	}
	if segments == nil {
		segments = []analysis.Segment{}
	}
	return &analysis.Transcription{Text: transcriber.JoinSegments(segments), Segments: segments}, nil
}

type token struct {
	text       string
	start, end time.Duration
}

// mergeTokens joins sub-word tokens into words. A token starting with a space
// begins a new word; control tokens such as "[_BEG_]" or "<|endoftext|>" are
// dropped.
func mergeTokens(toks []token) []analysis.Word {
	words := []analysis.Word{}
	for _, t := range toks {
		if t.text == "" || strings.HasPrefix(t.text, "[_") || strings.HasPrefix(t.text, "<|") {
			continue
		}
		startsWord := strings.HasPrefix(t.text, " ") || len(words) == 0
		piece := strings.TrimSpace(t.text)
		if piece == "" {
			continue
		}
		if startsWord {
			words = append(words, analysis.Word{Word: piece, Start: t.start.Seconds(), End: t.end.Seconds()})
			continue
		}
		last := &words[len(words)-1]
		last.Word += piece
		last.End = t.end.Seconds()
	}
	return words
}
