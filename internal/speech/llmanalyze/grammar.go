package llmanalyze

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/ispitch/pkg/analysis"
	"github.com/MrWong99/ispitch/pkg/provider/llm"
)

// Agreement rule identifiers.
const (
	RuleNominalAgreement = "CONCORDANCIA_NOMINAL"
	RuleVerbalAgreement  = "CONCORDANCIA_VERBAL"
)

const grammarPrompt = `Você revisa transcrições de fala em português do Brasil.
Aponte somente erros de concordância nominal ou verbal. Ignore pontuação, vícios de linguagem e estilo.
Copie o trecho errado exatamente como aparece no texto.
Responda somente com JSON no formato:
{"issues":[{"text":"trecho","type":"nominal|verbal","message":"explicação curta","suggestions":["correção"]}]}`

// GrammarChecker reports agreement errors.
type GrammarChecker struct {
	client
}

// NewGrammarChecker returns a GrammarChecker backed by p.
func NewGrammarChecker(p llm.Provider, opts ...Option) (*GrammarChecker, error) {
	c, err := newClient("grammar", p, opts)
	if err != nil {
		return nil, err
	}
	return &GrammarChecker{client: c}, nil
}

// Analyze checks tr.Text. Issues whose excerpt cannot be found in the text
// are dropped, so every reported offset is valid.
func (g *GrammarChecker) Analyze(ctx context.Context, tr *analysis.Transcription) (*analysis.GrammarAnalysis, error) {
	out := &analysis.GrammarAnalysis{Issues: []analysis.GrammarIssue{}}
	if strings.TrimSpace(tr.Text) == "" {
		return out, nil
	}

	var resp struct {
		Issues []struct {
			Text        string   `json:"text"`
			Type        string   `json:"type"`
			Message     string   `json:"message"`
			Suggestions []string `json:"suggestions"`
		} `json:"issues"`
	}
	if err := g.ask(ctx, grammarPrompt, tr.Text, &resp); err != nil {
		return nil, fmt.Errorf("llmanalyze: grammar: %w", err)
	}

	cursor := 0
	for _, is := range resp.Issues {
		excerpt := strings.TrimSpace(is.Text)
		if excerpt == "" {
			continue
		}
		byteOff, ok := locate(tr.Text, excerpt, cursor)
		if !ok {
			continue
		}
		cursor = byteOff + len(excerpt)

		rule, short := RuleNominalAgreement, "Concordância nominal"
		if strings.Contains(strings.ToLower(is.Type), "verb") {
			rule, short = RuleVerbalAgreement, "Concordância verbal"
		}
		suggestions := is.Suggestions
		if suggestions == nil {
			suggestions = []string{}
		}
		out.Issues = append(out.Issues, analysis.GrammarIssue{
			Offset:       utf8.RuneCountInString(tr.Text[:byteOff]),
			Length:       utf8.RuneCountInString(excerpt),
			Message:      strings.TrimSpace(is.Message),
			ShortMessage: short,
			Text:         tr.Text[byteOff : byteOff+len(excerpt)],
			Suggestions:  suggestions,
			RuleID:       rule,
		})
	}
	return out, nil
}

// locate finds excerpt in text at or after byte offset from, falling back to
// a search from the start and then to a case-insensitive search.
func locate(text, excerpt string, from int) (int, bool) {
	if i := strings.Index(text[from:], excerpt); i >= 0 {
		return from + i, true
	}
	if i := strings.Index(text, excerpt); i >= 0 {
		return i, true
	}
	lower, lowerExcerpt := strings.ToLower(text), strings.ToLower(excerpt)
	if len(lower) != len(text) || len(lowerExcerpt) != len(excerpt) {
		return 0, false
	}
	if i := strings.Index(lower, lowerExcerpt); i >= 0 {
		return i, true
	}
	return 0, false
}
