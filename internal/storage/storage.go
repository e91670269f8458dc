// Package storage accepts uploaded recordings and keeps them on local disk
// until their analysis has finished.
package storage

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxBytes is the default upload limit (60 MiB).
const DefaultMaxBytes int64 = 60 << 20

// DefaultContentTypes are the accepted upload types.
var DefaultContentTypes = []string{"audio/mpeg", "audio/wav"}

var (
	// ErrUnsupportedType is returned for uploads whose content type is not
	// accepted.
	ErrUnsupportedType = errors.New("storage: unsupported content type")

	// ErrTooLarge is returned for uploads above the size limit.
	ErrTooLarge = errors.New("storage: file too large")
)

// aliases maps the spellings clients send to the canonical type.
var aliases = map[string]string{
	"audio/mp3":      "audio/mpeg",
	"audio/mpeg3":    "audio/mpeg",
	"audio/x-mp3":    "audio/mpeg",
	"audio/x-wav":    "audio/wav",
	"audio/wave":     "audio/wav",
	"audio/vnd.wave": "audio/wav",
}

var extensions = map[string]string{
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/ogg":  ".ogg",
	"audio/webm": ".webm",
	"audio/mp4":  ".m4a",
	"audio/flac": ".flac",
}

// Local stores uploads as temporary files in one directory.
type Local struct {
	dir      string
	maxBytes int64
	allowed  map[string]bool
}

// Option configures [Local].
type Option func(*Local)

// WithMaxBytes sets the upload size limit. Non-positive values keep the
// default.
func WithMaxBytes(n int64) Option {
	return func(l *Local) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithContentTypes replaces the accepted content types.
func WithContentTypes(types ...string) Option {
	return func(l *Local) {
		if len(types) == 0 {
			return
		}
		l.allowed = make(map[string]bool, len(types))
		for _, t := range types {
			l.allowed[canonical(t)] = true
		}
	}
}

// New creates dir if needed. An empty dir means the OS temp directory.
func New(dir string, opts ...Option) (*Local, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "ispitch")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create dir %s: %w", dir, err)
	}
	l := &Local{dir: dir, maxBytes: DefaultMaxBytes}
	WithContentTypes(DefaultContentTypes...)(l)
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Dir returns the directory uploads are written to.
func (l *Local) Dir() string { return l.dir }

// MaxBytes returns the upload size limit.
func (l *Local) MaxBytes() int64 { return l.maxBytes }

// Validate checks an upload's declared content type and size. A negative
// size means unknown and is checked while saving instead.
func (l *Local) Validate(contentType string, size int64) error {
	ct := canonical(contentType)
	if !l.allowed[ct] {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	if size > l.maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, l.maxBytes)
	}
	return nil
}

// SaveTemporaryFile validates the upload and copies r to a new file with a
// random name. The extension follows the content type, falling back to the
// client's filename. It returns the path of the stored file.
func (l *Local) SaveTemporaryFile(filename, contentType string, size int64, r io.Reader) (string, error) {
	if err := l.Validate(contentType, size); err != nil {
		return "", err
	}

	ext := extensions[canonical(contentType)]
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	path := filepath.Join(l.dir, uuid.NewString()+ext)

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("storage: create %s: %w", path, err)
	}
	cleanup := func(err error) (string, error) {
		out.Close()
		os.Remove(path)
		return "", err
	}

	n, err := io.Copy(out, io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return cleanup(fmt.Errorf("storage: write %s: %w", path, err))
	}
	if n > l.maxBytes {
		return cleanup(fmt.Errorf("%w: limit %d bytes", ErrTooLarge, l.maxBytes))
	}
	if n == 0 {
		return cleanup(errors.New("storage: empty upload"))
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("storage: close %s: %w", path, err)
	}
	return path, nil
}

// CleanupTemporaryFile removes a file previously returned by
// SaveTemporaryFile. A missing file is not an error; a path outside the
// storage directory is refused.
func (l *Local) CleanupTemporaryFile(path string) error {
	if path == "" {
		return nil
	}
	rel, err := filepath.Rel(l.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("storage: refusing to remove %s outside %s", path, l.dir)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}
	return nil
}

// canonical strips parameters and maps aliases.
func canonical(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	if a, ok := aliases[mt]; ok {
		return a
	}
	return mt
}
