package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrNotWAV is returned when the input lacks a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// ErrUnsupportedEncoding is returned by [DecodeWAV] for anything other than
// 16-bit integer PCM.
var ErrUnsupportedEncoding = errors.New("audio: unsupported WAV encoding")

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// WAVInfo is the header summary of a WAV stream.
type WAVInfo struct {
	Format
	BitsPerSample int
	AudioFormat   int
	// DataBytes is the size of the data chunk.
	DataBytes int64
}

// Duration derives the playback length from the header alone.
func (h WAVInfo) Duration() time.Duration {
	bytesPerSec := int64(h.SampleRate) * int64(h.Channels) * int64(h.BitsPerSample/8)
	if bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(h.DataBytes * int64(time.Second) / bytesPerSec)
}

// ProbeWAV reads chunk headers from r up to the data chunk and returns the
// stream layout. It does not read sample data.
func ProbeWAV(r io.Reader) (WAVInfo, error) {
	info, _, err := readHeader(r)
	return info, err
}

// ProbeWAVFile is [ProbeWAV] on the file at path.
func ProbeWAVFile(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()
	return ProbeWAV(bufio.NewReader(f))
}

// DecodeWAV reads a complete 16-bit PCM WAV stream.
func DecodeWAV(r io.Reader) (*PCM, error) {
	info, data, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if info.BitsPerSample != 16 || (info.AudioFormat != formatPCM && info.AudioFormat != formatExtensible) {
		return nil, fmt.Errorf("%w: format %d, %d bits", ErrUnsupportedEncoding, info.AudioFormat, info.BitsPerSample)
	}

	raw, err := io.ReadAll(io.LimitReader(data, info.DataBytes))
	if err != nil {
		return nil, fmt.Errorf("audio: read samples: %w", err)
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return &PCM{Format: info.Format, Samples: samples}, nil
}

// DecodeWAVFile is [DecodeWAV] on the file at path.
func DecodeWAVFile(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()
	return DecodeWAV(bufio.NewReader(f))
}

// EncodeWAV writes p as a canonical 44-byte-header PCM WAV stream.
func EncodeWAV(w io.Writer, p *PCM) error {
	const bps = 16
	dataSize := len(p.Samples) * 2
	hdr := make([]byte, 44)

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+dataSize))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], formatPCM)
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(p.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(p.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(p.SampleRate*p.Channels*bps/8))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(p.Channels*bps/8))
	binary.LittleEndian.PutUint16(hdr[34:36], bps)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(dataSize))

	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("audio: write wav header: %w", err)
	}
	body := make([]byte, dataSize)
	for i, s := range p.Samples {
		binary.LittleEndian.PutUint16(body[i*2:], uint16(s))
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("audio: write wav data: %w", err)
	}
	return nil
}

// readHeader walks the RIFF chunks until the data chunk and returns r
// positioned at the first sample byte.
func readHeader(r io.Reader) (WAVInfo, io.Reader, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return WAVInfo{}, nil, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WAVInfo{}, nil, ErrNotWAV
	}

	var (
		info   WAVInfo
		gotFmt bool
		chunk  [8]byte
	)
	for {
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return WAVInfo{}, nil, fmt.Errorf("audio: no data chunk: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return WAVInfo{}, nil, fmt.Errorf("audio: fmt chunk too short (%d bytes)", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return WAVInfo{}, nil, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			info.AudioFormat = int(binary.LittleEndian.Uint16(body[0:2]))
			info.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			gotFmt = true
			if size%2 == 1 {
				if _, err := io.CopyN(io.Discard, r, 1); err != nil {
					return WAVInfo{}, nil, fmt.Errorf("audio: skip pad byte: %w", err)
				}
			}
		case "data":
			if !gotFmt {
				return WAVInfo{}, nil, errors.New("audio: data chunk before fmt chunk")
			}
			if info.Channels <= 0 || info.SampleRate <= 0 {
				return WAVInfo{}, nil, fmt.Errorf("audio: invalid format %s", info.Format)
			}
			info.DataBytes = size
			return info, r, nil
		default:
			// LIST, fact, etc. Chunks are word-aligned.
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return WAVInfo{}, nil, fmt.Errorf("audio: skip %q chunk: %w", id, err)
			}
		}
	}
}
