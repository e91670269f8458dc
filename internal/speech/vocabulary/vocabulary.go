// Package vocabulary finds the most repeated content words of a transcript
// and proposes alternatives for them.
package vocabulary

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/ispitch/internal/speech"
	"github.com/MrWong99/ispitch/pkg/analysis"
)

const (
	defaultTopN     = 5
	maxAlternatives = 5
	minWordLength   = 2
)

// SynonymProvider looks up alternatives for a batch of words. Missing words
// may be absent from the result.
type SynonymProvider interface {
	Synonyms(ctx context.Context, words []string) (map[string][]string, error)
}

// Option is a functional option for [Analyzer].
type Option func(*Analyzer)

// WithTopN sets how many words get suggestions. Default: 5.
func WithTopN(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.topN = n
		}
	}
}

// WithStopwords replaces the Portuguese stopword list.
func WithStopwords(words ...string) Option {
	return func(a *Analyzer) {
		a.stopwords = toSet(words)
	}
}

// Analyzer implements the vocabulary stage.
type Analyzer struct {
	synonyms  SynonymProvider
	stopwords map[string]bool
	topN      int
}

// New returns an Analyzer that asks synonyms for alternatives.
func New(synonyms SynonymProvider, opts ...Option) (*Analyzer, error) {
	if synonyms == nil {
		return nil, fmt.Errorf("vocabulary: synonym provider must not be nil")
	}
	a := &Analyzer{
		synonyms:  synonyms,
		stopwords: toSet(PortugueseStopwords),
		topN:      defaultTopN,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Analyze returns up to topN suggestions ordered by descending frequency.
// Ties keep the order of first appearance.
func (a *Analyzer) Analyze(ctx context.Context, tr *analysis.Transcription) (*analysis.VocabularyAnalysis, error) {
	out := &analysis.VocabularyAnalysis{Suggestions: []analysis.VocabularySuggestion{}}
	frequent := a.mostFrequent(tr.Text)
	if len(frequent) == 0 {
		return out, nil
	}

	words := make([]string, len(frequent))
	for i, f := range frequent {
		words[i] = f.word
	}
	syn, err := a.synonyms.Synonyms(ctx, words)
	if err != nil {
		return nil, fmt.Errorf("vocabulary: synonyms: %w", err)
	}

	for _, f := range frequent {
		out.Suggestions = append(out.Suggestions, analysis.VocabularySuggestion{
			Word:         f.word,
			Count:        f.count,
			Alternatives: alternatives(f.word, syn[f.word]),
		})
	}
	return out, nil
}

type wordCount struct {
	word  string
	count int
	first int
}

func (a *Analyzer) mostFrequent(text string) []wordCount {
	counts := map[string]*wordCount{}
	var order []*wordCount
	for _, w := range speech.Tokens(text, '\'') {
		if a.stopwords[w] || utf8.RuneCountInString(w) <= minWordLength {
			continue
		}
		c, ok := counts[w]
		if !ok {
			c = &wordCount{word: w, first: len(order)}
			counts[w] = c
			order = append(order, c)
		}
		c.count++
	}
	slices.SortStableFunc(order, func(x, y *wordCount) int { return y.count - x.count })

	n := min(a.topN, len(order))
	out := make([]wordCount, n)
	for i := range n {
		out[i] = *order[i]
	}
	return out
}

// alternatives drops the word itself and duplicates, then caps the list.
func alternatives(word string, candidates []string) []string {
	out := []string{}
	seen := map[string]bool{strings.ToLower(word): true}
	for _, c := range candidates {
		c = strings.TrimSpace(strings.ReplaceAll(c, "_", " "))
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
		if len(out) == maxAlternatives {
			break
		}
	}
	return out
}

func toSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = true
	}
	return m
}
