// Package silence finds pauses in a word-timed transcription.
package silence

import (
	"math"

	"github.com/MrWong99/ispitch/pkg/analysis"
)

// DefaultThresholdMs is the minimum gap, in milliseconds, reported as a
// silence when no threshold is configured.
const DefaultThresholdMs = 1000

// Detect returns every silence in words that lasts at least thresholdMs.
//
// A leading silence from 0 to the first word is reported only when the first
// word starts strictly after the threshold. Gaps between consecutive words
// are inclusive: a gap of exactly thresholdMs counts. Start, End and Duration
// are rounded to two decimals; the total is the sum of the rounded
// durations. A non-positive threshold falls back to [DefaultThresholdMs].
func Detect(words []analysis.Word, thresholdMs int) analysis.SilenceAnalysis {
	if thresholdMs <= 0 {
		thresholdMs = DefaultThresholdMs
	}
	out := analysis.SilenceAnalysis{Silences: []analysis.Silence{}}
	if len(words) == 0 {
		return out
	}

	threshold := float64(thresholdMs) / 1000
	if first := words[0].Start; first > threshold {
		out.Silences = append(out.Silences, analysis.Silence{
			Start:    0,
			End:      round2(first),
			Duration: round2(first),
		})
	}

	for i := 0; i < len(words)-1; i++ {
		end := words[i].End
		next := words[i+1].Start
		gap := next - end
		if gap*1000 >= float64(thresholdMs) {
			out.Silences = append(out.Silences, analysis.Silence{
				Start:    round2(end),
				End:      round2(next),
				Duration: round2(gap),
			})
		}
	}

	var total float64
	for _, s := range out.Silences {
		total += s.Duration
	}
	out.Duration = round2(total)
	out.Pauses = len(out.Silences)
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
