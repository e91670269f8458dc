// Package whisper provides transcriber.Provider implementations backed by
// whisper.cpp: [Provider] talks to a running whisper-server over HTTP and
// [NativeProvider] runs the model in-process through the CGO bindings.
//
// Both need word timings. The HTTP provider requests the verbose JSON format,
// which carries per-segment words; the native provider enables token
// timestamps and merges sub-word tokens back into words.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("pt"))
//	tr, err := p.Transcribe(ctx, "/tmp/upload.wav")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/ispitch/pkg/analysis"
	"github.com/MrWong99/ispitch/pkg/audio"
	"github.com/MrWong99/ispitch/pkg/provider/transcriber"
)

const (
	providerName    = "whisper"
	defaultLanguage = "pt"

	// modelSampleRate is the only rate whisper models accept.
	modelSampleRate = 16000
)

// Decoder loads the audio at path as PCM. It lets callers plug in format
// conversion (e.g. ffmpeg) for inputs that are not WAV.
type Decoder func(ctx context.Context, path string) (*audio.PCM, error)

// DecodeWAV is the default [Decoder]; it only understands 16-bit PCM WAV.
func DecodeWAV(_ context.Context, path string) (*audio.PCM, error) {
	return audio.DecodeWAVFile(path)
}

var _ transcriber.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it
// was started with; this is the default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the language code sent to the server (e.g., "pt", "en").
// Defaults to "pt".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithDecoder makes the provider decode and re-encode audio as 16 kHz mono
// WAV before upload. Without a decoder the file is uploaded unchanged, which
// requires the server to run with --convert for non-WAV input.
func WithDecoder(d Decoder) Option {
	return func(p *Provider) { p.decoder = d }
}

// WithHTTPClient replaces the default HTTP client (5 minute timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements transcriber.Provider backed by a whisper.cpp HTTP
// server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	decoder    Decoder
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// verboseResponse is the verbose_json body of POST /inference.
type verboseResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"words"`
	} `json:"segments"`
}

// Transcribe posts the audio at audioPath to /inference as
// multipart/form-data and converts the verbose response.
func (p *Provider) Transcribe(ctx context.Context, audioPath string) (*analysis.Transcription, error) {
	payload, filename, err := p.payload(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, transcriber.Errorf(providerName, "create form file: %w", err)
	}
	if _, err := fw.Write(payload); err != nil {
		return nil, transcriber.Errorf(providerName, "write audio data: %w", err)
	}
	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        p.language,
		"model":           p.model,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, transcriber.Errorf(providerName, "write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, transcriber.Errorf(providerName, "close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return nil, transcriber.Errorf(providerName, "create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, transcriber.Errorf(providerName, "http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transcriber.Errorf(providerName, "server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transcriber.Errorf(providerName, "read response body: %w", err)
	}
	var vr verboseResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, transcriber.Errorf(providerName, "parse JSON response: %w", err)
	}
	return vr.transcription(), nil
}

// payload returns the bytes to upload and the filename to announce.
func (p *Provider) payload(ctx context.Context, audioPath string) ([]byte, string, error) {
	if p.decoder == nil {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			return nil, "", transcriber.Errorf(providerName, "read audio: %w", err)
		}
		return data, filepath.Base(audioPath), nil
	}

	pcm, err := p.decoder(ctx, audioPath)
	if err != nil {
		return nil, "", transcriber.Errorf(providerName, "decode audio: %w", err)
	}
	mono := toModelPCM(pcm)
	var buf bytes.Buffer
	if err := audio.EncodeWAV(&buf, mono); err != nil {
		return nil, "", transcriber.Errorf(providerName, "encode wav: %w", err)
	}
	return buf.Bytes(), "audio.wav", nil
}

func (vr verboseResponse) transcription() *analysis.Transcription {
	segments := make([]analysis.Segment, 0, len(vr.Segments))
	for _, s := range vr.Segments {
		seg := analysis.Segment{
			ID:    s.ID,
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		}
		if len(s.Words) > 0 {
			seg.Words = make([]analysis.Word, 0, len(s.Words))
			for _, w := range s.Words {
				word := strings.TrimSpace(w.Word)
				if word == "" {
					continue
				}
				seg.Words = append(seg.Words, analysis.Word{Word: word, Start: w.Start, End: w.End})
			}
		} else {
			seg.Words = transcriber.SynthesizeWords(seg.Text, seg.Start, seg.End)
		}
		segments = append(segments, seg)
	}

	text := strings.TrimSpace(vr.Text)
	if text == "" {
		text = transcriber.JoinSegments(segments)
	}
	return &analysis.Transcription{Text: text, Segments: segments}
}

// toModelPCM down-mixes and resamples pcm to 16 kHz mono.
func toModelPCM(pcm *audio.PCM) *audio.PCM {
	floats := pcm.Float32Mono(modelSampleRate)
	samples := make([]int16, len(floats))
	for i, v := range floats {
		s := float64(v) * 32767
		samples[i] = int16(max(-32768, min(32767, s)))
	}
	return &audio.PCM{Format: audio.Format{SampleRate: modelSampleRate, Channels: 1}, Samples: samples}
}

func (p *Provider) String() string {
	return fmt.Sprintf("whisper(%s)", p.serverURL)
}
