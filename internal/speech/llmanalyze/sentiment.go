package llmanalyze

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/ispitch/internal/speech/segment"
	"github.com/MrWong99/ispitch/pkg/analysis"
	"github.com/MrWong99/ispitch/pkg/provider/llm"
)

// Sentiment labels.
const (
	Positive = "positive"
	Neutral  = "neutral"
	Negative = "negative"
)

const sentimentPrompt = `Você classifica o sentimento de trechos de uma fala em português.
Para cada trecho numerado, responda com o sentimento ("positive", "neutral" ou "negative")
e a intensidade entre 0 e 1.
Responda somente com JSON no formato:
{"segments":[{"index":0,"sentiment":"positive","score":0.8}]}`

// SentimentAnalyzer builds a sentiment timeline, one entry per sentence.
type SentimentAnalyzer struct {
	client
	pause float64
}

// NewSentimentAnalyzer returns a SentimentAnalyzer backed by p.
func NewSentimentAnalyzer(p llm.Provider, opts ...Option) (*SentimentAnalyzer, error) {
	c, err := newClient("sentiment", p, opts)
	if err != nil {
		return nil, err
	}
	return &SentimentAnalyzer{client: c, pause: segment.DefaultPause}, nil
}

// Analyze segments tr and classifies every sentence in one request.
// Sentences the model skips are reported as neutral with score 0.
func (a *SentimentAnalyzer) Analyze(ctx context.Context, tr *analysis.Transcription) (*analysis.SentimentAnalysis, error) {
	out := &analysis.SentimentAnalysis{Timeline: []analysis.SentimentSegment{}}
	sentences := segment.Split(tr.Words(), a.pause)
	if len(sentences) == 0 {
		return out, nil
	}

	var b strings.Builder
	for i, s := range sentences {
		fmt.Fprintf(&b, "[%d] %s\n", i, s.Text)
	}

	var resp struct {
		Segments []struct {
			Index     int     `json:"index"`
			Sentiment string  `json:"sentiment"`
			Score     float64 `json:"score"`
		} `json:"segments"`
	}
	if err := a.ask(ctx, sentimentPrompt, b.String(), &resp); err != nil {
		return nil, fmt.Errorf("llmanalyze: sentiment: %w", err)
	}

	labels := make([]analysis.SentimentSegment, len(sentences))
	for i, s := range sentences {
		labels[i] = analysis.SentimentSegment{
			StartTime: round(s.Start, 2),
			EndTime:   round(s.End, 2),
			Sentiment: Neutral,
		}
	}
	for _, r := range resp.Segments {
		if r.Index < 0 || r.Index >= len(labels) {
			continue
		}
		labels[r.Index].Sentiment = normalizeSentiment(r.Sentiment)
		labels[r.Index].Score = round(min(max(r.Score, 0), 1), 4)
	}
	out.Timeline = labels
	return out, nil
}

func normalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "positivo", "pos":
		return Positive
	case "negative", "negativo", "neg":
		return Negative
	default:
		return Neutral
	}
}
