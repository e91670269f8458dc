package acoustic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MrWong99/ispitch/pkg/audio"
)

const (
	defaultFFmpeg  = "ffmpeg"
	defaultFFprobe = "ffprobe"

	// AnalysisRate is the sample rate non-WAV input is converted to.
	AnalysisRate = 16000
)

// FFmpeg wraps the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	// Bin and ProbeBin default to "ffmpeg" and "ffprobe" on PATH.
	Bin      string
	ProbeBin string
	// TempDir receives converted files. Empty means os.TempDir().
	TempDir string
}

func (f *FFmpeg) bin() string {
	if f == nil || f.Bin == "" {
		return defaultFFmpeg
	}
	return f.Bin
}

func (f *FFmpeg) probeBin() string {
	if f == nil || f.ProbeBin == "" {
		// ffprobe ships next to ffmpeg.
		if f != nil && f.Bin != "" && filepath.Dir(f.Bin) != "." {
			return filepath.Join(filepath.Dir(f.Bin), defaultFFprobe)
		}
		return defaultFFprobe
	}
	return f.ProbeBin
}

// ConvertToWAV writes a mono 16 kHz 16-bit WAV copy of in and returns its
// path. The caller removes the file.
func (f *FFmpeg) ConvertToWAV(ctx context.Context, in string) (string, error) {
	dir := ""
	if f != nil {
		dir = f.TempDir
	}
	out, err := os.CreateTemp(dir, "ispitch-*.wav")
	if err != nil {
		return "", fmt.Errorf("acoustic: create temp wav: %w", err)
	}
	path := out.Name()
	out.Close()

	cmd := exec.CommandContext(ctx, f.bin(),
		"-y", "-v", "error",
		"-i", in,
		"-vn",
		"-ac", "1", "-ar", strconv.Itoa(AnalysisRate),
		"-acodec", "pcm_s16le",
		"-f", "wav",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("acoustic: ffmpeg convert: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return path, nil
}

// Probe returns the container duration of path in seconds.
func (f *FFmpeg) Probe(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.probeBin(),
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("acoustic: ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("acoustic: ffprobe duration %q: %w", strings.TrimSpace(stdout.String()), err)
	}
	return d, nil
}

// Decode returns the PCM content of path. 16-bit WAV files are read
// directly; anything else goes through ffmpeg first. Its signature matches
// the whisper transcriber's Decoder.
func (f *FFmpeg) Decode(ctx context.Context, path string) (*audio.PCM, error) {
	pcm, err := audio.DecodeWAVFile(path)
	if err == nil {
		return pcm, nil
	}
	if !errors.Is(err, audio.ErrNotWAV) && !errors.Is(err, audio.ErrUnsupportedEncoding) {
		return nil, err
	}

	wav, err := f.ConvertToWAV(ctx, path)
	if err != nil {
		return nil, err
	}
	defer os.Remove(wav)
	return audio.DecodeWAVFile(wav)
}
