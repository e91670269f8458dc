package score

import (
	"testing"

	"github.com/MrWong99/ispitch/pkg/analysis"
)

func completed(fillers, pauses int, rate float64) *analysis.Analysis {
	return &analysis.Analysis{
		ID:     "a1",
		Status: analysis.StatusCompleted,
		SpeechAnalysis: &analysis.SpeechAnalysis{
			SilenceAnalysis:     analysis.SilenceAnalysis{Pauses: pauses},
			FillerWordsAnalysis: analysis.FillerWordsAnalysis{Total: fillers},
		},
		AudioAnalysis: &analysis.AudioAnalysis{Duration: 60, SpeechRate: rate},
	}
}

func TestScore_Scenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    *analysis.Analysis
		want int
	}{
		{"ideal rate with three fillers", completed(3, 0, 150), 91},
		{"fast speaker", completed(3, 0, 200), 66},
		{"rate at lower bound", completed(0, 0, 100), 100},
		{"rate at upper bound", completed(0, 0, 160), 100},
		{"slow speaker", completed(0, 0, 90), 70},
		{"pauses", completed(0, 2, 150), 90},
		{"clamped at zero", completed(50, 0, 150), 0},
		{"missing speech analysis", &analysis.Analysis{AudioAnalysis: &analysis.AudioAnalysis{}}, 0},
		{"missing audio analysis", &analysis.Analysis{SpeechAnalysis: &analysis.SpeechAnalysis{}}, 0},
		{"nil analysis", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Score(tt.a); got != tt.want {
				t.Errorf("Score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScore_LexicalBonus(t *testing.T) {
	t.Parallel()

	a := completed(3, 0, 150)
	a.SpeechAnalysis.LexicalRichness = &analysis.LexicalRichness{TypeTokenRatio: 50.0}
	if got := Score(a); got != 91 {
		t.Errorf("TTR 50: Score = %d, want 91", got)
	}
	a.SpeechAnalysis.LexicalRichness.TypeTokenRatio = 50.01
	if got := Score(a); got != 96 {
		t.Errorf("TTR 50.01: Score = %d, want 96", got)
	}
}

func TestScore_ClampedAtHundred(t *testing.T) {
	t.Parallel()

	a := completed(0, 0, 150)
	a.SpeechAnalysis.LexicalRichness = &analysis.LexicalRichness{TypeTokenRatio: 80}
	a.AudioAnalysis.Prosody = &analysis.ProsodyAnalysis{
		Pitch: analysis.PitchAnalysis{StdevSemitones: 20},
	}
	b := Explain(a)
	if b.Raw != 115 {
		t.Errorf("Raw = %v, want 115", b.Raw)
	}
	if b.Score != 100 {
		t.Errorf("Score = %d, want 100", b.Score)
	}
}

func TestScore_Prosody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prosody analysis.ProsodyAnalysis
		want    int
	}{
		{
			name:    "monotone pitch only",
			prosody: analysis.ProsodyAnalysis{Pitch: analysis.PitchAnalysis{StdevSemitones: 10}},
			want:    90,
		},
		{
			name:    "excessive pitch is capped",
			prosody: analysis.ProsodyAnalysis{Pitch: analysis.PitchAnalysis{StdevSemitones: 100}},
			want:    95,
		},
		{
			name: "monotone pitch, good intensity earns bonus",
			prosody: analysis.ProsodyAnalysis{
				Pitch:     analysis.PitchAnalysis{StdevSemitones: 10},
				Intensity: &analysis.IntensityAnalysis{Stdev: 5},
			},
			want: 100,
		},
		{
			name: "flat intensity and poor voice quality",
			prosody: analysis.ProsodyAnalysis{
				Pitch:        analysis.PitchAnalysis{StdevSemitones: 20},
				Intensity:    &analysis.IntensityAnalysis{Stdev: 2},
				VocalQuality: &analysis.VocalQuality{Jitter: 2, Shimmer: 4, HNR: 10},
			},
			// -8 intensity, -(3 + 3 + 2.5) voice quality, 1 of 3 good: no bonus.
			want: 84,
		},
		{
			name: "excessive intensity capped, healthy voice",
			prosody: analysis.ProsodyAnalysis{
				Pitch:        analysis.PitchAnalysis{StdevSemitones: 20},
				Intensity:    &analysis.IntensityAnalysis{Stdev: 30},
				VocalQuality: &analysis.VocalQuality{Jitter: 0.5, Shimmer: 2, HNR: 20},
			},
			want: 100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := completed(0, 0, 150)
			p := tt.prosody
			a.AudioAnalysis.Prosody = &p
			if got := Score(a); got != tt.want {
				t.Errorf("Score = %d, want %d (breakdown %+v)", got, tt.want, Explain(a))
			}
		})
	}
}

func TestScore_Idempotent(t *testing.T) {
	t.Parallel()

	a := completed(2, 1, 175)
	a.AudioAnalysis.Prosody = &analysis.ProsodyAnalysis{
		Pitch:        analysis.PitchAnalysis{StdevSemitones: 42},
		VocalQuality: &analysis.VocalQuality{Jitter: 1.3, Shimmer: 2, HNR: 18},
	}
	first := Score(a)
	second := Score(a)
	if first != second {
		t.Errorf("Score not idempotent: %d then %d", first, second)
	}
}

func TestScore_RoundsHalfToEven(t *testing.T) {
	t.Parallel()

	// 100 - 0.5*|150-165| = 92.5
	if got := Score(completed(0, 0, 165)); got != 92 {
		t.Errorf("Score = %d, want 92", got)
	}
	// 100 - 0.5*|150-167| = 91.5
	if got := Score(completed(0, 0, 167)); got != 92 {
		t.Errorf("Score = %d, want 92", got)
	}
}

func TestExplain_ListsAdjustments(t *testing.T) {
	t.Parallel()

	b := Explain(completed(3, 1, 200))
	want := map[string]float64{"filler_words": -9, "pauses": -5, "speech_rate": -25}
	if len(b.Adjustments) != len(want) {
		t.Fatalf("Adjustments = %+v", b.Adjustments)
	}
	for _, adj := range b.Adjustments {
		if want[adj.Name] != adj.Points {
			t.Errorf("%s = %v, want %v", adj.Name, adj.Points, want[adj.Name])
		}
	}
	if b.Score != 61 {
		t.Errorf("Score = %d, want 61", b.Score)
	}
}
