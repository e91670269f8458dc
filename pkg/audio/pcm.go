// Package audio holds the PCM and WAV plumbing shared by the transcription
// and acoustic analysis code: decoding uploaded WAV files, down-mixing to
// mono, and linear resampling.
package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// PCM is decoded 16-bit audio. Samples are interleaved by channel.
type PCM struct {
	Format
	Samples []int16
}

// Frames returns the number of sample frames (samples per channel).
func (p *PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Duration returns the playback length of p.
func (p *PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}

// Mono down-mixes p by averaging all channels per frame and normalises the
// result to [-1, 1].
func (p *PCM) Mono() []float64 {
	ch := max(p.Channels, 1)
	frames := len(p.Samples) / ch
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range ch {
			sum += float64(p.Samples[i*ch+c]) / 32768.0
		}
		out[i] = sum / float64(ch)
	}
	return out
}

// Float32Mono is [PCM.Mono] resampled to rate, in the float32 layout
// whisper.cpp expects.
func (p *PCM) Float32Mono(rate int) []float32 {
	mono := Resample(p.Mono(), p.SampleRate, rate)
	out := make([]float32, len(mono))
	for i, v := range mono {
		out[i] = float32(v)
	}
	return out
}

// Resample converts samples from srcRate to dstRate using linear
// interpolation. Equal or invalid rates return samples unchanged.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}
