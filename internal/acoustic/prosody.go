package acoustic

import (
	"context"
	"errors"
	"math"

	"github.com/MrWong99/ispitch/pkg/analysis"
	"github.com/MrWong99/ispitch/pkg/audio"
)

// ErrNoAudio is returned when there are no samples to analyse.
var ErrNoAudio = errors.New("acoustic: no audio samples")

// refPressure is the 0 dB SPL reference; samples are treated as pascal.
const refPressure = 2e-5

// ProsodyConfig tunes the frame-based pitch and intensity tracker.
type ProsodyConfig struct {
	// SampleRate the signal is resampled to before analysis.
	SampleRate int
	// Frame and Hop are in seconds.
	Frame float64
	Hop   float64
	// MinPitch and MaxPitch bound the F0 search in Hz.
	MinPitch float64
	MaxPitch float64
	// VoicingThreshold is the normalised autocorrelation a frame needs to
	// count as voiced.
	VoicingThreshold float64
	// SilenceRatio: frames quieter than this fraction of the loudest frame's
	// RMS are unvoiced and excluded from intensity.
	SilenceRatio float64
	// ContourStep is the spacing of the reported contours in seconds.
	ContourStep float64
}

// DefaultProsodyConfig suits adult speech.
func DefaultProsodyConfig() ProsodyConfig {
	return ProsodyConfig{
		SampleRate:       8000,
		Frame:            0.04,
		Hop:              0.01,
		MinPitch:         75,
		MaxPitch:         500,
		VoicingThreshold: 0.5,
		SilenceRatio:     0.03,
		ContourStep:      0.1,
	}
}

type frame struct {
	time   float64
	rms    float64
	peak   float64
	f0     float64 // 0 when unvoiced
	corr   float64
	voiced bool
}

// MeasureProsody computes pitch, intensity and voice quality of pcm. Pitch
// is always returned; Intensity is nil for a silent signal and VocalQuality
// is nil with fewer than three voiced frames.
func MeasureProsody(ctx context.Context, pcm *audio.PCM, cfg ProsodyConfig) (*analysis.ProsodyAnalysis, error) {
	if pcm == nil || pcm.Frames() == 0 || pcm.SampleRate <= 0 {
		return nil, ErrNoAudio
	}
	samples := audio.Resample(pcm.Mono(), pcm.SampleRate, cfg.SampleRate)

	frames, err := track(ctx, samples, cfg)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrNoAudio
	}

	return &analysis.ProsodyAnalysis{
		Pitch:        pitchAnalysis(frames, cfg),
		Intensity:    intensityAnalysis(frames, cfg),
		VocalQuality: vocalQuality(frames),
	}, nil
}

// track splits samples into overlapping frames and estimates F0 per frame
// with normalised autocorrelation.
func track(ctx context.Context, samples []float64, cfg ProsodyConfig) ([]frame, error) {
	rate := float64(cfg.SampleRate)
	size := int(cfg.Frame * rate)
	hop := max(int(cfg.Hop*rate), 1)
	minLag := int(rate / cfg.MaxPitch)
	maxLag := int(math.Ceil(rate / cfg.MinPitch))
	if size <= maxLag+1 {
		size = maxLag + 2
	}

	var frames []frame
	var loudest float64
	buf := make([]float64, size)
	for start := 0; start+size <= len(samples); start += hop {
		if len(frames)%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		copy(buf, samples[start:start+size])
		mean := 0.0
		for _, v := range buf {
			mean += v
		}
		mean /= float64(size)

		var energy, peak float64
		for i := range buf {
			buf[i] -= mean
			energy += buf[i] * buf[i]
			peak = max(peak, math.Abs(buf[i]))
		}
		fr := frame{
			time: (float64(start) + float64(size)/2) / rate,
			rms:  math.Sqrt(energy / float64(size)),
			peak: peak,
		}
		loudest = max(loudest, fr.rms)
		if energy > 0 {
			fr.f0, fr.corr = pitchOf(buf, rate, minLag, maxLag)
		}
		frames = append(frames, fr)
	}

	floor := loudest * cfg.SilenceRatio
	for i := range frames {
		fr := &frames[i]
		fr.voiced = fr.rms > 0 && fr.rms >= floor && fr.corr >= cfg.VoicingThreshold && fr.f0 > 0
		if !fr.voiced {
			fr.f0 = 0
		}
	}
	return frames, nil
}

// pitchOf picks the first autocorrelation peak within 90% of the best one,
// which avoids locking onto a multiple of the period.
func pitchOf(x []float64, rate float64, minLag, maxLag int) (f0, corr float64) {
	maxLag = min(maxLag, len(x)-2)
	if minLag < 1 || minLag >= maxLag {
		return 0, 0
	}
	r := make([]float64, maxLag+2)
	best := 0.0
	for lag := minLag - 1; lag <= maxLag+1; lag++ {
		var num, e1, e2 float64
		for i := 0; i+lag < len(x); i++ {
			num += x[i] * x[i+lag]
			e1 += x[i] * x[i]
			e2 += x[i+lag] * x[i+lag]
		}
		if e1 > 0 && e2 > 0 {
			r[lag] = num / math.Sqrt(e1*e2)
		}
		if lag >= minLag && lag <= maxLag {
			best = max(best, r[lag])
		}
	}
	if best <= 0 {
		return 0, 0
	}
	for lag := minLag; lag <= maxLag; lag++ {
		if r[lag] < 0.9*best || r[lag] < r[lag-1] || r[lag] < r[lag+1] {
			continue
		}
		// Parabolic interpolation around the peak.
		a, b, c := r[lag-1], r[lag], r[lag+1]
		shift := 0.0
		if d := a - 2*b + c; d != 0 {
			shift = 0.5 * (a - c) / d
		}
		return rate / (float64(lag) + shift), b
	}
	return 0, 0
}

func pitchAnalysis(frames []frame, cfg ProsodyConfig) analysis.PitchAnalysis {
	var hz, st []float64
	for _, fr := range frames {
		if fr.voiced {
			hz = append(hz, fr.f0)
			st = append(st, 12*math.Log2(fr.f0))
		}
	}
	pa := analysis.PitchAnalysis{Contour: []analysis.PitchPoint{}}
	if len(hz) > 0 {
		lo, hi := minMax(hz)
		pa.Mean = round2(mean(hz))
		pa.Min = round2(lo)
		pa.Max = round2(hi)
		pa.Stdev = round2(stdev(hz))
		pa.StdevSemitones = round2(stdev(st))
	}
	for _, fr := range sampleContour(frames, cfg) {
		p := analysis.PitchPoint{Time: round2(fr.time)}
		if fr.voiced {
			v := round2(fr.f0)
			p.Pitch = &v
		}
		pa.Contour = append(pa.Contour, p)
	}
	return pa
}

func intensityAnalysis(frames []frame, cfg ProsodyConfig) *analysis.IntensityAnalysis {
	var loudest float64
	for _, fr := range frames {
		loudest = max(loudest, fr.rms)
	}
	if loudest == 0 {
		return nil
	}
	floor := loudest * cfg.SilenceRatio

	var db []float64
	for _, fr := range frames {
		if fr.rms >= floor {
			db = append(db, decibels(fr.rms))
		}
	}
	lo, hi := minMax(db)
	ia := &analysis.IntensityAnalysis{
		Mean:    round2(mean(db)),
		Min:     round2(lo),
		Max:     round2(hi),
		Stdev:   round2(stdev(db)),
		Contour: []analysis.IntensityPoint{},
	}
	for _, fr := range sampleContour(frames, cfg) {
		ia.Contour = append(ia.Contour, analysis.IntensityPoint{
			Time:   round2(fr.time),
			Volume: round2(decibels(fr.rms)),
		})
	}
	return ia
}

// vocalQuality derives local jitter and shimmer from consecutive voiced
// frames and the harmonics-to-noise ratio from their periodicity.
func vocalQuality(frames []frame) *analysis.VocalQuality {
	var voiced []frame
	for _, fr := range frames {
		if fr.voiced {
			voiced = append(voiced, fr)
		}
	}
	if len(voiced) < 3 {
		return nil
	}

	var periodDiff, periodSum, ampDiff, ampSum, hnr float64
	pairs := 0
	for i, fr := range voiced {
		periodSum += 1 / fr.f0
		ampSum += fr.peak
		c := min(fr.corr, 0.9999)
		hnr += 10 * math.Log10(c/(1-c))
		if i == 0 {
			continue
		}
		prev := voiced[i-1]
		periodDiff += math.Abs(1/fr.f0 - 1/prev.f0)
		ampDiff += math.Abs(fr.peak - prev.peak)
		pairs++
	}
	n := float64(len(voiced))
	vq := &analysis.VocalQuality{HNR: round2(hnr / n)}
	if periodSum > 0 {
		vq.Jitter = round2(periodDiff / float64(pairs) / (periodSum / n) * 100)
	}
	if ampSum > 0 {
		vq.Shimmer = round2(ampDiff / float64(pairs) / (ampSum / n) * 100)
	}
	return vq
}

func sampleContour(frames []frame, cfg ProsodyConfig) []frame {
	step := max(int(math.Round(cfg.ContourStep/cfg.Hop)), 1)
	out := make([]frame, 0, len(frames)/step+1)
	for i := 0; i < len(frames); i += step {
		out = append(out, frames[i])
	}
	return out
}

func decibels(rms float64) float64 {
	if rms <= 0 {
		return 0
	}
	return max(20*math.Log10(rms/refPressure), 0)
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

// stdev is the sample standard deviation.
func stdev(v []float64) float64 {
	if len(v) < 2 {
		return 0
	}
	m := mean(v)
	s := 0.0
	for _, x := range v {
		s += (x - m) * (x - m)
	}
	return math.Sqrt(s / float64(len(v)-1))
}

func minMax(v []float64) (lo, hi float64) {
	if len(v) == 0 {
		return 0, 0
	}
	lo, hi = v[0], v[0]
	for _, x := range v[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	return lo, hi
}
