package llmanalyze

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/ispitch/pkg/analysis"
	"github.com/MrWong99/ispitch/pkg/provider/llm"
)

const (
	// MinWordsForTopics is the shortest transcript worth summarising.
	MinWordsForTopics = 50

	maxTopics      = 5
	maxTitleRunes  = 80
	undefinedTopic = "Tópico Indefinido"
)

const topicsPrompt = `Você analisa transcrições de apresentações orais em português.
Identifique os principais tópicos abordados (no máximo 5), na ordem em que aparecem.
Ignore vícios de linguagem como "né", "tipo" e "então".
Responda somente com JSON no formato:
{"topics":[{"topic":"título curto (até 10 palavras)","summary":"resumo objetivo em uma ou duas frases"}]}`

// TopicAnalyzer extracts the topics of a talk.
type TopicAnalyzer struct {
	client
}

// NewTopicAnalyzer returns a TopicAnalyzer backed by p.
func NewTopicAnalyzer(p llm.Provider, opts ...Option) (*TopicAnalyzer, error) {
	c, err := newClient("topics", p, opts)
	if err != nil {
		return nil, err
	}
	return &TopicAnalyzer{client: c}, nil
}

// Analyze returns no topics for transcripts shorter than [MinWordsForTopics]
// without calling the model.
func (a *TopicAnalyzer) Analyze(ctx context.Context, tr *analysis.Transcription) (*analysis.TopicAnalysis, error) {
	out := &analysis.TopicAnalysis{Topics: []analysis.Topic{}}
	if len(strings.Fields(tr.Text)) < MinWordsForTopics {
		return out, nil
	}

	var resp struct {
		Topics []struct {
			Topic   string `json:"topic"`
			Summary string `json:"summary"`
		} `json:"topics"`
	}
	if err := a.ask(ctx, topicsPrompt, tr.Text, &resp); err != nil {
		return nil, fmt.Errorf("llmanalyze: topics: %w", err)
	}
	for _, t := range resp.Topics {
		summary := strings.Join(strings.Fields(t.Summary), " ")
		if summary == "" {
			continue
		}
		out.Topics = append(out.Topics, analysis.Topic{Topic: cleanTitle(t.Topic), Summary: summary})
		if len(out.Topics) == maxTopics {
			break
		}
	}
	return out, nil
}

// cleanTitle normalises whitespace, drops trailing punctuation, shortens
// long titles at a word boundary and capitalises the first letter.
func cleanTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ".:!?")
	if s == "" {
		return undefinedTopic
	}
	if utf8.RuneCountInString(s) > maxTitleRunes {
		r := []rune(s)[:maxTitleRunes]
		cut := string(r)
		if i := strings.LastIndexByte(cut, ' '); i > 0 {
			cut = cut[:i]
		}
		s = cut + "..."
	}
	first, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(first)) + s[size:]
}
