// Package segment splits a word-timed transcription into sentences.
package segment

import (
	"strings"

	"github.com/MrWong99/ispitch/internal/speech"
	"github.com/MrWong99/ispitch/pkg/analysis"
)

// DefaultPause is the gap, in seconds, that ends a sentence even without
// punctuation.
const DefaultPause = 0.7

// Sentence is a run of consecutive words.
type Sentence struct {
	Text  string
	Start float64
	End   float64
	Words []analysis.Word
}

// Split groups words into sentences. A sentence ends after a word carrying
// terminal punctuation or before a gap of at least pause seconds. pause <= 0
// selects [DefaultPause].
func Split(words []analysis.Word, pause float64) []Sentence {
	if pause <= 0 {
		pause = DefaultPause
	}
	var (
		out []Sentence
		cur []analysis.Word
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		texts := make([]string, len(cur))
		for i, w := range cur {
			texts[i] = strings.TrimSpace(w.Word)
		}
		out = append(out, Sentence{
			Text:  strings.Join(texts, " "),
			Start: cur[0].Start,
			End:   cur[len(cur)-1].End,
			Words: cur,
		})
		cur = nil
	}

	for i, w := range words {
		if i > 0 && len(cur) > 0 && w.Start-words[i-1].End >= pause {
			flush()
		}
		cur = append(cur, w)
		if _, _, trail := speech.SplitPunct(w.Word); speech.EndsSentence(trail) {
			flush()
		}
	}
	flush()
	return out
}
