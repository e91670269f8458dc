// Package acoustic measures the audio itself: duration, speaking rate and
// prosody (pitch, loudness and voice quality).
//
// WAV input is read natively. Other formats are handed to ffmpeg, which must
// be installed for MP3 uploads.
package acoustic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/MrWong99/ispitch/pkg/analysis"
	"github.com/MrWong99/ispitch/pkg/audio"
)

// Option is a functional option for [Analyzer].
type Option func(*Analyzer)

// WithFFmpeg sets the ffmpeg wrapper used for non-WAV input.
func WithFFmpeg(f *FFmpeg) Option {
	return func(a *Analyzer) {
		a.ffmpeg = f
	}
}

// WithProsodyConfig overrides the pitch tracker settings.
func WithProsodyConfig(c ProsodyConfig) Option {
	return func(a *Analyzer) {
		a.prosody = c
	}
}

// Analyzer implements the audio stage.
type Analyzer struct {
	ffmpeg  *FFmpeg
	prosody ProsodyConfig
}

// New returns an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{ffmpeg: &FFmpeg{}, prosody: DefaultProsodyConfig()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AudioDuration returns the length of the file at path in seconds.
func (a *Analyzer) AudioDuration(ctx context.Context, path string) (float64, error) {
	info, err := audio.ProbeWAVFile(path)
	switch {
	case err == nil:
		return info.Duration().Seconds(), nil
	case errors.Is(err, audio.ErrNotWAV), errors.Is(err, audio.ErrUnsupportedEncoding):
		return a.ffmpeg.Probe(ctx, path)
	default:
		return 0, fmt.Errorf("acoustic: duration: %w", err)
	}
}

// SpeechRate implements the audio port's speaking-rate measure.
func (a *Analyzer) SpeechRate(text string, audioDuration, silenceDuration float64) float64 {
	return SpeechRate(text, audioDuration, silenceDuration)
}

// Prosody decodes path and measures its prosody.
func (a *Analyzer) Prosody(ctx context.Context, path string) (*analysis.ProsodyAnalysis, error) {
	pcm, err := a.ffmpeg.Decode(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("acoustic: decode: %w", err)
	}
	return MeasureProsody(ctx, pcm, a.prosody)
}

// SpeechRate returns words per minute of speech, excluding silence, rounded
// to two decimals. It is 0 when text is blank or either duration leaves no
// speaking time.
func SpeechRate(text string, audioDuration, silenceDuration float64) float64 {
	words := len(strings.Fields(text))
	if words == 0 || audioDuration <= 0 {
		return 0
	}
	speech := audioDuration - silenceDuration
	if speech <= 0 {
		return 0
	}
	return round2(float64(words) / speech * 60)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
