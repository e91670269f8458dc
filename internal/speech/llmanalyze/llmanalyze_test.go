package llmanalyze

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/ispitch/pkg/analysis"
	"github.com/MrWong99/ispitch/pkg/provider/llm"
	"github.com/MrWong99/ispitch/pkg/provider/llm/mock"
)

func answering(content string) *mock.Provider {
	return &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: content}}
}

func longText(words int) string {
	return strings.TrimSpace(strings.Repeat("palavra ", words))
}

func TestNew_NilProvider(t *testing.T) {
	t.Parallel()

	if _, err := NewTopicAnalyzer(nil); err == nil {
		t.Error("NewTopicAnalyzer(nil) succeeded")
	}
	if _, err := NewSentimentAnalyzer(nil); err == nil {
		t.Error("NewSentimentAnalyzer(nil) succeeded")
	}
	if _, err := NewGrammarChecker(nil); err == nil {
		t.Error("NewGrammarChecker(nil) succeeded")
	}
	if _, err := NewSynonyms(nil); err == nil {
		t.Error("NewSynonyms(nil) succeeded")
	}
}

func TestTopicAnalyzer_ShortTextSkipsModel(t *testing.T) {
	t.Parallel()

	p := answering(`{"topics":[{"topic":"x","summary":"y"}]}`)
	a, _ := NewTopicAnalyzer(p)
	got, err := a.Analyze(context.Background(), &analysis.Transcription{Text: longText(MinWordsForTopics - 1)})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Topics == nil || len(got.Topics) != 0 {
		t.Errorf("topics = %#v, want empty", got.Topics)
	}
	if n := len(p.Calls()); n != 0 {
		t.Errorf("model called %d times", n)
	}
}

func TestTopicAnalyzer_Analyze(t *testing.T) {
	t.Parallel()

	p := answering("```json\n" + `{"topics":[
		{"topic":"introdução ao projeto.","summary":"  Apresenta o   projeto. "},
		{"topic":"","summary":"Sem título."},
		{"topic":"vazio","summary":""}
	]}` + "\n```")
	a, _ := NewTopicAnalyzer(p, WithTemperature(0.5), WithMaxTokens(200))
	got, err := a.Analyze(context.Background(), &analysis.Transcription{Text: longText(MinWordsForTopics)})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(got.Topics) != 2 {
		t.Fatalf("topics = %+v", got.Topics)
	}
	if got.Topics[0].Topic != "Introdução ao projeto" || got.Topics[0].Summary != "Apresenta o projeto." {
		t.Errorf("topic[0] = %+v", got.Topics[0])
	}
	if got.Topics[1].Topic != undefinedTopic {
		t.Errorf("topic[1] = %q, want %q", got.Topics[1].Topic, undefinedTopic)
	}

	req := p.Calls()[0].Req
	if !req.JSONMode || req.Temperature != 0.5 || req.MaxTokens != 200 {
		t.Errorf("request = %+v", req)
	}
}

func TestTopicAnalyzer_ModelError(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteErr: errors.New("rate limited")}
	a, _ := NewTopicAnalyzer(p)
	if _, err := a.Analyze(context.Background(), &analysis.Transcription{Text: longText(60)}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCleanTitle(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("abcdefghi ", 10)
	got := cleanTitle(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) > maxTitleRunes+3 {
		t.Errorf("cleanTitle(long) = %q", got)
	}
	if got := cleanTitle("  ética   na  IA? "); got != "Ética na IA" {
		t.Errorf("cleanTitle = %q", got)
	}
}

func TestSentimentAnalyzer_Analyze(t *testing.T) {
	t.Parallel()

	tr := &analysis.Transcription{Segments: []analysis.Segment{{Words: []analysis.Word{
		{Word: "Adorei", Start: 0.004, End: 0.5}, {Word: "isso.", Start: 0.55, End: 1.0},
		{Word: "Foi", Start: 1.1, End: 1.3}, {Word: "péssimo.", Start: 1.35, End: 1.9},
		{Word: "Ok.", Start: 2.0, End: 2.2},
	}}}}
	p := answering(`{"segments":[
		{"index":0,"sentiment":"positivo","score":0.91234},
		{"index":1,"sentiment":"negative","score":1.7},
		{"index":9,"sentiment":"positive","score":0.5}
	]}`)
	a, _ := NewSentimentAnalyzer(p)
	got, err := a.Analyze(context.Background(), tr)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	want := []analysis.SentimentSegment{
		{StartTime: 0, EndTime: 1, Sentiment: Positive, Score: 0.9123},
		{StartTime: 1.1, EndTime: 1.9, Sentiment: Negative, Score: 1},
		{StartTime: 2, EndTime: 2.2, Sentiment: Neutral, Score: 0},
	}
	if len(got.Timeline) != len(want) {
		t.Fatalf("timeline = %+v", got.Timeline)
	}
	for i := range want {
		if got.Timeline[i] != want[i] {
			t.Errorf("timeline[%d] = %+v, want %+v", i, got.Timeline[i], want[i])
		}
	}

	prompt := p.Calls()[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "[1] Foi péssimo.") {
		t.Errorf("prompt does not list sentences: %q", prompt)
	}
}

func TestSentimentAnalyzer_NoWords(t *testing.T) {
	t.Parallel()

	p := answering(`{}`)
	a, _ := NewSentimentAnalyzer(p)
	got, err := a.Analyze(context.Background(), &analysis.Transcription{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Timeline == nil || len(got.Timeline) != 0 || len(p.Calls()) != 0 {
		t.Errorf("timeline = %#v, calls = %d", got.Timeline, len(p.Calls()))
	}
}

func TestGrammarChecker_Analyze(t *testing.T) {
	t.Parallel()

	text := "Então, é ótimo. As menino chegou e os aluno saiu."
	p := answering(`{"issues":[
		{"text":"As menino","type":"nominal","message":"Artigo e substantivo devem concordar.","suggestions":["Os meninos"]},
		{"text":"os aluno saiu","type":"verbal","message":"Sujeito e verbo devem concordar."},
		{"text":"inventado","type":"nominal","message":"não existe"}
	]}`)
	g, _ := NewGrammarChecker(p)
	got, err := g.Analyze(context.Background(), &analysis.Transcription{Text: text})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(got.Issues) != 2 {
		t.Fatalf("issues = %+v", got.Issues)
	}

	first := got.Issues[0]
	if first.Offset != 16 || first.Length != 9 || first.Text != "As menino" {
		t.Errorf("first issue = %+v", first)
	}
	if first.RuleID != RuleNominalAgreement || len(first.Suggestions) != 1 {
		t.Errorf("first issue = %+v", first)
	}
	second := got.Issues[1]
	if second.RuleID != RuleVerbalAgreement || second.Suggestions == nil {
		t.Errorf("second issue = %+v", second)
	}
	if []rune(text)[second.Offset] != 'o' {
		t.Errorf("second offset %d does not point at the excerpt", second.Offset)
	}
}

func TestGrammarChecker_EmptyText(t *testing.T) {
	t.Parallel()

	p := answering(`{}`)
	g, _ := NewGrammarChecker(p)
	got, err := g.Analyze(context.Background(), &analysis.Transcription{Text: "  "})
	if err != nil || len(got.Issues) != 0 || len(p.Calls()) != 0 {
		t.Errorf("got %+v, %v, calls=%d", got, err, len(p.Calls()))
	}
}

func TestSynonyms(t *testing.T) {
	t.Parallel()

	p := answering(`{"synonyms":{"Projeto":["plano","iniciativa"],"outro":["x"]}}`)
	s, _ := NewSynonyms(p)
	got, err := s.Synonyms(context.Background(), []string{"projeto", "equipe"})
	if err != nil {
		t.Fatalf("Synonyms: %v", err)
	}
	if len(got["projeto"]) != 2 {
		t.Errorf("projeto = %v", got["projeto"])
	}
	if _, ok := got["equipe"]; ok {
		t.Error("equipe should be absent")
	}
	if _, ok := got["outro"]; ok {
		t.Error("unrequested words must be dropped")
	}
}

func TestSynonyms_BadJSON(t *testing.T) {
	t.Parallel()

	s, _ := NewSynonyms(answering("não sei"))
	if _, err := s.Synonyms(context.Background(), []string{"projeto"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestClient_FitsContextWindow(t *testing.T) {
	t.Parallel()

	p := answering(`{}`)
	p.CapabilitiesResult = llm.ModelCapabilities{ContextWindow: 1600}
	c, _ := newClient("test", p, []Option{WithMaxTokens(1000)})
	got := c.fit(strings.Repeat("a", 1000))
	if want := (1600 - 1000 - 512) * charsPerToken; len(got) != want {
		t.Errorf("fit length = %d, want %d", len(got), want)
	}
	if got := c.fit("curto"); got != "curto" {
		t.Errorf("fit(short) = %q", got)
	}
}
