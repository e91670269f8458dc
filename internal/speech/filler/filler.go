// Package filler detects Portuguese filler words ("né", "tipo", "hã", ...) in
// a word-timed transcription.
//
// Words are matched in context, since most fillers are also ordinary words:
//
//   - pure hesitations (hã, ãh, hum) always count, including elongated forms
//     such as "hummm" or "hããã";
//   - end fillers (né, tá, ok) count when followed by punctuation;
//   - every other filler counts when followed by a comma;
//   - a drawn-out "é..." counts as its own filler.
package filler

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/ispitch/internal/speech"
	"github.com/MrWong99/ispitch/pkg/analysis"
)

// Default word lists.
var (
	DefaultFillers      = []string{"hã", "ãh", "hum", "né", "tipo", "então", "aí", "assim", "bom", "certo", "ok", "tá"}
	DefaultEndFillers   = []string{"né", "tá", "ok"}
	DefaultHesitations  = []string{"hã", "ãh", "hum"}
	defaultFuzzyMinimum = 0.88
)

// EHesitation is the distribution key for a drawn-out "é".
const EHesitation = "é..."

// spellings transcribers use for a hesitation that collapsing alone does not
// normalise.
var spellings = map[string]string{"hm": "hum", "hun": "hum", "han": "hã"}

// Option is a functional option for [Detector].
type Option func(*Detector)

// WithFillers replaces the filler list. Hesitations and end fillers not in
// the list are still honoured.
func WithFillers(words ...string) Option {
	return func(d *Detector) {
		d.fillers = toSet(words)
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler similarity for an
// elongated hesitation to match. Default: 0.88.
func WithFuzzyThreshold(threshold float64) Option {
	return func(d *Detector) {
		d.fuzzy = threshold
	}
}

// Detector implements the filler-word stage. It is read-only after
// construction and safe for concurrent use.
type Detector struct {
	fillers     map[string]bool
	endFillers  map[string]bool
	hesitations []string
	fuzzy       float64
}

// New returns a Detector with the Portuguese defaults.
func New(opts ...Option) *Detector {
	d := &Detector{
		fillers:     toSet(DefaultFillers),
		endFillers:  toSet(DefaultEndFillers),
		hesitations: DefaultHesitations,
		fuzzy:       defaultFuzzyMinimum,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Analyze counts the fillers in tr. The result always has a non-nil
// distribution and occurrence list.
func (d *Detector) Analyze(_ context.Context, tr *analysis.Transcription) (*analysis.FillerWordsAnalysis, error) {
	out := &analysis.FillerWordsAnalysis{
		Distribution: map[string]int{},
		Occurrences:  []analysis.FillerOccurrence{},
	}
	for _, w := range tr.Words() {
		key, ok := d.classify(w.Word)
		if !ok {
			continue
		}
		out.Total++
		out.Distribution[key]++
		out.Occurrences = append(out.Occurrences, analysis.FillerOccurrence{
			Word:  key,
			Start: w.Start,
			End:   w.End,
		})
	}
	return out, nil
}

// classify returns the distribution key of word when it is used as a filler.
func (d *Detector) classify(word string) (string, bool) {
	_, core, trail := speech.SplitPunct(word)
	if core == "" {
		return "", false
	}

	if core == "é" && (strings.HasPrefix(trail, "...") || strings.HasPrefix(trail, "…")) {
		return EHesitation, true
	}
	if h, ok := d.hesitation(core); ok {
		return h, true
	}
	if d.endFillers[core] && trail != "" {
		return core, true
	}
	if d.fillers[core] && strings.HasPrefix(trail, ",") {
		return core, true
	}
	return "", false
}

// hesitation matches core against the pure hesitations, tolerating elongation.
func (d *Detector) hesitation(core string) (string, bool) {
	collapsed := collapseRepeats(core)
	if h, ok := spellings[collapsed]; ok {
		collapsed = h
	}
	for _, h := range d.hesitations {
		if collapsed == h {
			return h, true
		}
	}
	first := []rune(collapsed)[0]
	best, bestScore := "", 0.0
	for _, h := range d.hesitations {
		if []rune(h)[0] != first {
			continue
		}
		if s := matchr.JaroWinkler(collapsed, h, false); s >= d.fuzzy && s > bestScore {
			best, bestScore = h, s
		}
	}
	return best, best != ""
}

// collapseRepeats folds runs of the same rune: "hummm" -> "hum".
func collapseRepeats(s string) string {
	var b strings.Builder
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

func toSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = true
	}
	return m
}
