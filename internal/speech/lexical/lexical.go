// Package lexical measures the lexical richness of a transcript as its
// type/token ratio.
package lexical

import (
	"context"
	"math"

	"github.com/MrWong99/ispitch/internal/speech"
	"github.com/MrWong99/ispitch/pkg/analysis"
)

// Analyzer implements the lexical-richness stage.
type Analyzer struct{}

// New returns an Analyzer.
func New() *Analyzer { return &Analyzer{} }

// Analyze computes the type/token ratio of tr's text. Empty text yields a
// zero result, not an error.
func (*Analyzer) Analyze(_ context.Context, tr *analysis.Transcription) (*analysis.LexicalRichness, error) {
	return Measure(tr.Text), nil
}

// Measure lowercases text, strips punctuation and returns unique/total words
// as a percentage rounded to two decimals.
func Measure(text string) *analysis.LexicalRichness {
	tokens := speech.Tokens(text)
	if len(tokens) == 0 {
		return &analysis.LexicalRichness{}
	}
	unique := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		unique[t] = struct{}{}
	}
	ttr := float64(len(unique)) / float64(len(tokens)) * 100
	return &analysis.LexicalRichness{
		TypeTokenRatio: math.Round(ttr*100) / 100,
		UniqueWords:    len(unique),
		TotalWords:     len(tokens),
	}
}
