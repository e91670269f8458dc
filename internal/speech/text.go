// Package speech holds the text-level analyzers that run on a transcription:
// filler words, lexical richness, vocabulary repetition, sentence segmentation
// and the LLM-backed topic, sentiment and grammar checks. The analyzers live
// in sub-packages; this package only provides the tokenisation they share.
package speech

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// IsWordRune reports whether r survives normalisation: letters, digits and
// the underscore.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// Tokens lowercases text, removes every rune that is neither a word rune,
// whitespace nor listed in keep, and splits on whitespace.
func Tokens(text string, keep ...rune) []string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case IsWordRune(r), unicode.IsSpace(r):
			return r
		}
		for _, k := range keep {
			if r == k {
				return r
			}
		}
		return -1
	}, strings.ToLower(text))
	return strings.Fields(clean)
}

// SplitPunct separates a transcribed word such as "né?" or "(então," into
// its leading punctuation, its lowercase core and its trailing punctuation.
func SplitPunct(word string) (lead, core, trail string) {
	word = strings.TrimSpace(word)
	start := strings.IndexFunc(word, IsWordRune)
	if start < 0 {
		return word, "", ""
	}
	last := strings.LastIndexFunc(word, IsWordRune)
	_, size := utf8.DecodeRuneInString(word[last:])
	end := last + size
	return word[:start], strings.ToLower(word[start:end]), word[end:]
}

// EndsSentence reports whether trailing punctuation closes a sentence.
func EndsSentence(trail string) bool {
	return strings.ContainsAny(trail, ".!?…")
}
