package vocabulary

import (
	"context"
	"strings"
)

// StaticSynonyms is a fixed thesaurus keyed by lowercase word. It serves
// deployments without an LLM and tests.
type StaticSynonyms map[string][]string

// Synonyms implements [SynonymProvider].
func (s StaticSynonyms) Synonyms(_ context.Context, words []string) (map[string][]string, error) {
	out := make(map[string][]string, len(words))
	for _, w := range words {
		if alts, ok := s[strings.ToLower(w)]; ok {
			out[w] = alts
		}
	}
	return out, nil
}

var _ SynonymProvider = StaticSynonyms(nil)
