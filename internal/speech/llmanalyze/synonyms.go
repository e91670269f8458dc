package llmanalyze

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/ispitch/internal/speech/vocabulary"
	"github.com/MrWong99/ispitch/pkg/provider/llm"
)

const synonymsPrompt = `Você sugere sinônimos em português do Brasil adequados a uma apresentação oral.
Para cada palavra da lista, sugira até 5 alternativas de mesmo sentido.
Responda somente com JSON no formato:
{"synonyms":{"palavra":["alternativa1","alternativa2"]}}`

// Synonyms implements vocabulary.SynonymProvider with one request per batch.
type Synonyms struct {
	client
}

// NewSynonyms returns a Synonyms provider backed by p.
func NewSynonyms(p llm.Provider, opts ...Option) (*Synonyms, error) {
	c, err := newClient("synonyms", p, opts)
	if err != nil {
		return nil, err
	}
	return &Synonyms{client: c}, nil
}

// Synonyms implements [vocabulary.SynonymProvider].
func (s *Synonyms) Synonyms(ctx context.Context, words []string) (map[string][]string, error) {
	if len(words) == 0 {
		return map[string][]string{}, nil
	}
	var resp struct {
		Synonyms map[string][]string `json:"synonyms"`
	}
	if err := s.ask(ctx, synonymsPrompt, strings.Join(words, "\n"), &resp); err != nil {
		return nil, fmt.Errorf("llmanalyze: synonyms: %w", err)
	}

	// Models sometimes change the key's case.
	byLower := make(map[string][]string, len(resp.Synonyms))
	for k, v := range resp.Synonyms {
		byLower[strings.ToLower(strings.TrimSpace(k))] = v
	}
	out := make(map[string][]string, len(words))
	for _, w := range words {
		if alts, ok := byLower[strings.ToLower(w)]; ok {
			out[w] = alts
		}
	}
	return out, nil
}

var _ vocabulary.SynonymProvider = (*Synonyms)(nil)
