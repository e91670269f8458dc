// Package openai provides a transcriber.Provider backed by the OpenAI audio
// transcription API (whisper-1 and compatible models).
//
// Requests ask for the verbose JSON format with both word and segment
// timestamp granularities. The API returns words as one flat list; they are
// distributed over the returned segments by start time.
//
// Any OpenAI-compatible server (e.g. a self-hosted faster-whisper gateway)
// can be targeted with [WithBaseURL].
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrWong99/ispitch/pkg/analysis"
	"github.com/MrWong99/ispitch/pkg/provider/transcriber"
	goopenai "github.com/sashabaranov/go-openai"
)

const providerName = "openai"

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel overrides the transcription model. Defaults to whisper-1.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the ISO-639-1 language hint (e.g. "pt").
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithPrompt sets an initial prompt. Prompts that contain hesitations
// ("hã, né, tipo") keep the model from silently dropping filler words.
func WithPrompt(prompt string) Option {
	return func(p *Provider) { p.prompt = prompt }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements transcriber.Provider using go-openai.
type Provider struct {
	client     *goopenai.Client
	model      string
	language   string
	prompt     string
	baseURL    string
	httpClient *http.Client
}

var _ transcriber.Provider = (*Provider)(nil)

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai transcriber: apiKey must not be empty")
	}
	p := &Provider{model: goopenai.Whisper1}
	for _, o := range opts {
		o(p)
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if p.baseURL != "" {
		cfg.BaseURL = p.baseURL
	}
	if p.httpClient != nil {
		cfg.HTTPClient = p.httpClient
	}
	p.client = goopenai.NewClientWithConfig(cfg)
	return p, nil
}

// Transcribe uploads the file at audioPath and converts the verbose response.
func (p *Provider) Transcribe(ctx context.Context, audioPath string) (*analysis.Transcription, error) {
	resp, err := p.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    p.model,
		FilePath: audioPath,
		Prompt:   p.prompt,
		Language: p.language,
		Format:   goopenai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []goopenai.TranscriptionTimestampGranularity{
			goopenai.TranscriptionTimestampGranularityWord,
			goopenai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return nil, transcriber.Errorf(providerName, "create transcription: %w", err)
	}
	return convert(resp), nil
}

func convert(resp goopenai.AudioResponse) *analysis.Transcription {
	segments := make([]analysis.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, analysis.Segment{
			ID:    s.ID,
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
	}

	words := make([]analysis.Word, 0, len(resp.Words))
	for _, w := range resp.Words {
		words = append(words, analysis.Word{Word: strings.TrimSpace(w.Word), Start: w.Start, End: w.End})
	}

	switch {
	case len(segments) == 0 && len(words) > 0:
		// Word granularity only: treat the whole file as one segment.
		segments = []analysis.Segment{{
			Start: words[0].Start,
			End:   words[len(words)-1].End,
			Text:  strings.TrimSpace(resp.Text),
			Words: words,
		}}
	case len(words) > 0:
		transcriber.AssignWords(segments, words)
	default:
		for i := range segments {
			segments[i].Words = transcriber.SynthesizeWords(segments[i].Text, segments[i].Start, segments[i].End)
		}
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		text = transcriber.JoinSegments(segments)
	}
	return &analysis.Transcription{Text: text, Segments: segments}
}
