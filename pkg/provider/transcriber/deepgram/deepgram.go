// Package deepgram provides a transcriber.Provider backed by the Deepgram
// pre-recorded audio API.
//
// The audio file is streamed as the request body. Utterance segmentation is
// requested so that segments line up with natural pauses; when the response
// carries no utterances, the channel transcript becomes a single segment.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/ispitch/pkg/analysis"
	"github.com/MrWong99/ispitch/pkg/provider/transcriber"
)

const (
	providerName     = "deepgram"
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "pt-BR"
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "pt-BR").
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpoint overrides the API endpoint. Used by tests and proxies.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements transcriber.Provider backed by Deepgram.
type Provider struct {
	apiKey     string
	model      string
	language   string
	endpoint   string
	httpClient *http.Client
}

var _ transcriber.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		endpoint:   deepgramEndpoint,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// buildURL constructs the request URL with recognition options.
func (p *Provider) buildURL() (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("utterances", "true")
	// Keep "hum", "né" and friends in the transcript.
	q.Set("filler_words", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type dgWord struct {
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
}

// deepgramResponse is the subset of the pre-recorded response this provider
// reads.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string   `json:"transcript"`
				Words      []dgWord `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Start      float64  `json:"start"`
			End        float64  `json:"end"`
			Transcript string   `json:"transcript"`
			Words      []dgWord `json:"words"`
		} `json:"utterances"`
	} `json:"results"`
}

// Transcribe uploads the file at audioPath to Deepgram.
func (p *Provider) Transcribe(ctx context.Context, audioPath string) (*analysis.Transcription, error) {
	endpoint, err := p.buildURL()
	if err != nil {
		return nil, transcriber.Errorf(providerName, "build URL: %w", err)
	}
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, transcriber.Errorf(providerName, "open audio: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, f)
	if err != nil {
		return nil, transcriber.Errorf(providerName, "create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", contentType(audioPath))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, transcriber.Errorf(providerName, "http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, transcriber.Errorf(providerName, "server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var dr deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, transcriber.Errorf(providerName, "parse JSON response: %w", err)
	}
	return convert(dr)
}

func convert(dr deepgramResponse) (*analysis.Transcription, error) {
	if len(dr.Results.Channels) == 0 || len(dr.Results.Channels[0].Alternatives) == 0 {
		return nil, transcriber.Errorf(providerName, "response has no transcript alternatives")
	}
	alt := dr.Results.Channels[0].Alternatives[0]

	var segments []analysis.Segment
	if len(dr.Results.Utterances) > 0 {
		segments = make([]analysis.Segment, 0, len(dr.Results.Utterances))
		for i, u := range dr.Results.Utterances {
			segments = append(segments, analysis.Segment{
				ID:    i,
				Start: u.Start,
				End:   u.End,
				Text:  strings.TrimSpace(u.Transcript),
				Words: toWords(u.Words),
			})
		}
	} else if len(alt.Words) > 0 {
		words := toWords(alt.Words)
		segments = []analysis.Segment{{
			Start: words[0].Start,
			End:   words[len(words)-1].End,
			Text:  strings.TrimSpace(alt.Transcript),
			Words: words,
		}}
	}
	if segments == nil {
		segments = []analysis.Segment{}
	}

	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		text = transcriber.JoinSegments(segments)
	}
	return &analysis.Transcription{Text: text, Segments: segments}, nil
}

func toWords(in []dgWord) []analysis.Word {
	out := make([]analysis.Word, 0, len(in))
	for _, w := range in {
		word := w.PunctuatedWord
		if word == "" {
			word = w.Word
		}
		out = append(out, analysis.Word{Word: word, Start: w.Start, End: w.End})
	}
	return out
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	default:
		return fmt.Sprintf("audio/%s", strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	}
}
