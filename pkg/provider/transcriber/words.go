package transcriber

import (
	"math"
	"strings"

	"github.com/MrWong99/ispitch/pkg/analysis"
)

// AssignWords distributes a flat, time-ordered word list over segments: each
// word goes to the last segment whose start is not after the word's start.
// Words before the first segment go to the first segment. Existing segment
// words are replaced.
func AssignWords(segments []analysis.Segment, words []analysis.Word) {
	if len(segments) == 0 {
		return
	}
	for i := range segments {
		segments[i].Words = []analysis.Word{}
	}
	seg := 0
	for _, w := range words {
		for seg+1 < len(segments) && segments[seg+1].Start <= w.Start {
			seg++
		}
		segments[seg].Words = append(segments[seg].Words, w)
	}
}

// SynthesizeWords splits a segment's text on whitespace and spreads the words
// evenly across [start, end], weighted by rune length. It is the fallback for
// backends that only report segment timings.
func SynthesizeWords(text string, start, end float64) []analysis.Word {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return []analysis.Word{}
	}
	total := 0
	for _, f := range fields {
		total += len([]rune(f))
	}
	span := math.Max(end-start, 0)
	words := make([]analysis.Word, 0, len(fields))
	cursor := start
	for _, f := range fields {
		d := span * float64(len([]rune(f))) / float64(total)
		words = append(words, analysis.Word{Word: f, Start: cursor, End: cursor + d})
		cursor += d
	}
	return words
}

// JoinSegments builds the transcription text from segment texts.
func JoinSegments(segments []analysis.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
