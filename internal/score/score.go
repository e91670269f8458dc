// Package score turns a completed analysis into a single 0-100 presentation
// score.
//
// The score starts at 100 and sums a fixed list of adjustments: filler words,
// pauses, speaking rate, lexical richness and prosody. Every adjustment is
// skipped when the measurement it depends on is absent; an absent value is
// never read as zero.
package score

import (
	"math"

	"github.com/MrWong99/ispitch/pkg/analysis"
)

const (
	base = 100.0

	fillerPenalty = 3.0
	pausePenalty  = 5.0

	idealRate   = 150.0
	minGoodRate = 100.0
	maxGoodRate = 160.0
	ratePenalty = 0.5

	lexicalThreshold = 50.0
	lexicalBonus     = 5.0

	prosodyBonus = 10.0
)

// Adjustment is one signed contribution to the score.
type Adjustment struct {
	Name   string  `json:"name"`
	Points float64 `json:"points"`
}

// Breakdown explains how a score was reached.
type Breakdown struct {
	Base        float64      `json:"base"`
	Adjustments []Adjustment `json:"adjustments"`
	// Raw is Base plus every adjustment, before rounding and clamping.
	Raw   float64 `json:"raw"`
	Score int     `json:"score"`
}

// Score returns the presentation score of a in [0, 100]. It returns 0 when
// the speech or audio analysis is missing. Score is pure: repeated calls on
// the same input return the same value.
func Score(a *analysis.Analysis) int {
	return Explain(a).Score
}

// Explain computes the score of a together with each adjustment applied, in
// evaluation order.
func Explain(a *analysis.Analysis) Breakdown {
	if a == nil || a.SpeechAnalysis == nil || a.AudioAnalysis == nil {
		return Breakdown{Adjustments: []Adjustment{}}
	}
	sp, au := a.SpeechAnalysis, a.AudioAnalysis

	b := Breakdown{Base: base, Adjustments: []Adjustment{}}
	add := func(name string, pts float64) {
		if pts != 0 {
			b.Adjustments = append(b.Adjustments, Adjustment{Name: name, Points: pts})
		}
	}

	add("filler_words", -fillerPenalty*float64(sp.FillerWordsAnalysis.Total))
	add("pauses", -pausePenalty*float64(sp.SilenceAnalysis.Pauses))
	add("speech_rate", -rateDeduction(au.SpeechRate))

	if lr := sp.LexicalRichness; lr != nil && lr.TypeTokenRatio > lexicalThreshold {
		add("lexical_richness", lexicalBonus)
	}

	if p := au.Prosody; p != nil {
		var evaluated, good int

		pitch, ok := pitchDeduction(p.Pitch.StdevSemitones)
		evaluated++
		if ok {
			good++
		}
		add("pitch_variation", -pitch)

		if in := p.Intensity; in != nil {
			d, ok := intensityDeduction(in.Stdev)
			evaluated++
			if ok {
				good++
			}
			add("intensity_variation", -d)
		}

		if vq := p.VocalQuality; vq != nil {
			d, ok := voiceQualityDeduction(*vq)
			evaluated++
			if ok {
				good++
			}
			add("voice_quality", -d)
		}

		if evaluated > 0 && float64(good) >= float64(evaluated)/2 {
			add("prosody_bonus", prosodyBonus)
		}
	}

	b.Raw = b.Base
	for _, adj := range b.Adjustments {
		b.Raw += adj.Points
	}
	b.Score = clamp(int(math.RoundToEven(b.Raw)), 0, 100)
	return b
}

func rateDeduction(rate float64) float64 {
	if rate >= minGoodRate && rate <= maxGoodRate {
		return 0
	}
	return ratePenalty * math.Abs(idealRate-rate)
}

// pitchDeduction grades pitch variation in semitones. ok reports whether the
// variation is within the comfortable band.
func pitchDeduction(stdevSemitones float64) (deduction float64, ok bool) {
	switch {
	case stdevSemitones < 15:
		return 10, false
	case stdevSemitones > 40:
		return math.Min(5, (stdevSemitones-40)*0.2), false
	default:
		return 0, true
	}
}

func intensityDeduction(stdevDB float64) (deduction float64, ok bool) {
	switch {
	case stdevDB < 3:
		return 8, false
	case stdevDB > 10:
		return math.Min(4, (stdevDB-10)*0.3), false
	default:
		return 0, true
	}
}

func voiceQualityDeduction(vq analysis.VocalQuality) (deduction float64, ok bool) {
	issues := 0
	if vq.Jitter > 1.0 {
		deduction += (vq.Jitter - 1.0) * 3
		issues++
	}
	if vq.Shimmer > 3.0 {
		deduction += (vq.Shimmer - 3.0) * 3
		issues++
	}
	if vq.HNR < 15 {
		deduction += (15 - vq.HNR) * 0.5
		issues++
	}
	return deduction, issues == 0
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
