package analysis

// Silence is a gap between words (or before the first word) that met the
// silence threshold. All values are seconds rounded to two decimals.
type Silence struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

// SilenceAnalysis summarises every detected silence.
type SilenceAnalysis struct {
	// Duration is the total silence in seconds.
	Duration float64   `json:"duration"`
	Silences []Silence `json:"silences"`
	// Pauses always equals len(Silences).
	Pauses int `json:"pauses"`
}

// FillerOccurrence locates one filler word in the audio.
type FillerOccurrence struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// FillerWordsAnalysis counts filler words ("né", "tipo", "hã", ...).
type FillerWordsAnalysis struct {
	Total        int                `json:"total"`
	Distribution map[string]int     `json:"distribution"`
	Occurrences  []FillerOccurrence `json:"occurrences"`
}

// LexicalRichness holds the type/token ratio of a transcript.
type LexicalRichness struct {
	// TypeTokenRatio is unique/total words as a percentage, two decimals.
	TypeTokenRatio float64 `json:"typeTokenRatio"`
	UniqueWords    int     `json:"uniqueWords"`
	TotalWords     int     `json:"totalWords"`
}

// VocabularySuggestion proposes alternatives for an overused word.
type VocabularySuggestion struct {
	Word         string   `json:"word"`
	Count        int      `json:"count"`
	Alternatives []string `json:"alternatives"`
}

type VocabularyAnalysis struct {
	Suggestions []VocabularySuggestion `json:"suggestions"`
}

type Topic struct {
	Topic   string `json:"topic"`
	Summary string `json:"summary"`
}

type TopicAnalysis struct {
	Topics []Topic `json:"topics"`
}

// SentimentSegment is the sentiment of one stretch of speech.
type SentimentSegment struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	// Sentiment is "positive", "neutral" or "negative".
	Sentiment string  `json:"sentiment"`
	Score     float64 `json:"score"`
}

type SentimentAnalysis struct {
	Timeline []SentimentSegment `json:"timeline"`
}

// GrammarIssue is one problem found by the grammar checker. Offset and Length
// index runes of the transcript text.
type GrammarIssue struct {
	Offset       int      `json:"offset"`
	Length       int      `json:"length"`
	Message      string   `json:"message"`
	ShortMessage string   `json:"shortMessage"`
	Text         string   `json:"text"`
	Suggestions  []string `json:"suggestions"`
	RuleID       string   `json:"ruleId"`
}

type GrammarAnalysis struct {
	Issues []GrammarIssue `json:"issues"`
}

// SpeechAnalysis is everything derived from the transcription alone.
// SilenceAnalysis and FillerWordsAnalysis are always present on a completed
// analysis; the remaining fields are nil when their analyzer is not
// configured.
type SpeechAnalysis struct {
	SilenceAnalysis     SilenceAnalysis     `json:"silenceAnalysis"`
	FillerWordsAnalysis FillerWordsAnalysis `json:"fillerwordsAnalysis"`

	Vocabulary      *VocabularyAnalysis `json:"vocabularyAnalysis,omitempty"`
	LexicalRichness *LexicalRichness    `json:"lexicalRichness,omitempty"`
	Topics          *TopicAnalysis      `json:"topicAnalysis,omitempty"`
	Sentiment       *SentimentAnalysis  `json:"sentimentAnalysis,omitempty"`
	Grammar         *GrammarAnalysis    `json:"grammarAnalysis,omitempty"`
}
