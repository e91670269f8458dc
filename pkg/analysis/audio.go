package analysis

// PitchPoint is one sample of the pitch track. Pitch is nil for unvoiced
// frames.
type PitchPoint struct {
	Time  float64  `json:"time"`
	Pitch *float64 `json:"pitch"`
}

// PitchAnalysis summarises fundamental frequency in Hz.
type PitchAnalysis struct {
	Mean  float64 `json:"meanPitch"`
	Min   float64 `json:"minPitch"`
	Max   float64 `json:"maxPitch"`
	Stdev float64 `json:"stdevPitch"`
	// StdevSemitones is the pitch variation on a perceptual scale; the score
	// engine uses it to detect monotone delivery.
	StdevSemitones float64      `json:"stdevPitchSemitones"`
	Contour        []PitchPoint `json:"pitchContour,omitempty"`
}

// IntensityPoint is one sample of the loudness track in dB.
type IntensityPoint struct {
	Time   float64 `json:"time"`
	Volume float64 `json:"volume"`
}

type IntensityAnalysis struct {
	Mean    float64          `json:"meanIntensity"`
	Min     float64          `json:"minIntensity"`
	Max     float64          `json:"maxIntensity"`
	Stdev   float64          `json:"stdevIntensity"`
	Contour []IntensityPoint `json:"intensityContour,omitempty"`
}

// VocalQuality holds local jitter (%), local shimmer (%) and the
// harmonics-to-noise ratio (dB).
type VocalQuality struct {
	Jitter  float64 `json:"jitter"`
	Shimmer float64 `json:"shimmer"`
	HNR     float64 `json:"hnr"`
}

// ProsodyAnalysis groups the acoustic delivery metrics. Pitch is always set;
// Intensity and VocalQuality are nil when they could not be measured.
type ProsodyAnalysis struct {
	Pitch        PitchAnalysis      `json:"pitchAnalysis"`
	Intensity    *IntensityAnalysis `json:"intensityAnalysis,omitempty"`
	VocalQuality *VocalQuality      `json:"vocalQuality,omitempty"`
}

// AudioAnalysis is the output of the audio stage.
type AudioAnalysis struct {
	// Duration is the audio length in seconds.
	Duration float64 `json:"duration"`
	// SpeechRate is words per minute of actual speech (silence excluded).
	SpeechRate float64          `json:"speechRate"`
	Prosody    *ProsodyAnalysis `json:"prosodyAnalysis,omitempty"`
}
