package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	l, err := New(t.TempDir(), WithMaxBytes(100))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		name        string
		contentType string
		size        int64
		wantErr     error
	}{
		{"mpeg", "audio/mpeg", 10, nil},
		{"wav", "audio/wav", 100, nil},
		{"wav alias", "audio/x-wav", 10, nil},
		{"mp3 alias with params", "audio/mp3; charset=binary", 10, nil},
		{"unknown size", "audio/mpeg", -1, nil},
		{"ogg", "audio/ogg", 10, ErrUnsupportedType},
		{"pdf", "application/pdf", 10, ErrUnsupportedType},
		{"empty type", "", 10, ErrUnsupportedType},
		{"too large", "audio/wav", 101, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := l.Validate(tt.contentType, tt.size)
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithContentTypes(t *testing.T) {
	t.Parallel()
	l, _ := New(t.TempDir(), WithContentTypes("audio/ogg"))
	if err := l.Validate("audio/ogg", 1); err != nil {
		t.Errorf("ogg rejected: %v", err)
	}
	if err := l.Validate("audio/mpeg", 1); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("mpeg accepted after replacing the list: %v", err)
	}
}

func TestSaveAndCleanup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	l, _ := New(dir)

	path, err := l.SaveTemporaryFile("Minha Palestra.MP3", "audio/mpeg", -1, strings.NewReader("ID3 fake mp3"))
	if err != nil {
		t.Fatalf("SaveTemporaryFile: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path %s not in %s", path, dir)
	}
	if filepath.Ext(path) != ".mp3" {
		t.Errorf("ext = %s, want .mp3", filepath.Ext(path))
	}
	if strings.Contains(path, "Palestra") {
		t.Errorf("client filename leaked into path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "ID3 fake mp3" {
		t.Errorf("content = %q, %v", data, err)
	}

	if err := l.CleanupTemporaryFile(path); err != nil {
		t.Fatalf("CleanupTemporaryFile: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still exists: %v", err)
	}
	if err := l.CleanupTemporaryFile(path); err != nil {
		t.Errorf("second cleanup = %v, want nil for a missing file", err)
	}
}

func TestSaveTemporaryFile_TooLargeStream(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	l, _ := New(dir, WithMaxBytes(8))

	_, err := l.SaveTemporaryFile("a.wav", "audio/wav", -1, bytes.NewReader(make([]byte, 9)))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("partial upload left behind: %v", entries)
	}

	if _, err := l.SaveTemporaryFile("a.wav", "audio/wav", -1, bytes.NewReader(make([]byte, 8))); err != nil {
		t.Errorf("upload at the limit rejected: %v", err)
	}
}

func TestSaveTemporaryFile_Empty(t *testing.T) {
	t.Parallel()
	l, _ := New(t.TempDir())
	if _, err := l.SaveTemporaryFile("a.wav", "audio/wav", 0, strings.NewReader("")); err == nil {
		t.Error("empty upload accepted")
	}
}

func TestCleanupTemporaryFile_OutsideDir(t *testing.T) {
	t.Parallel()
	l, _ := New(t.TempDir())
	other := filepath.Join(t.TempDir(), "keep.wav")
	if err := os.WriteFile(other, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := l.CleanupTemporaryFile(other); err == nil {
		t.Error("removed a file outside the storage directory")
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("file outside dir touched: %v", err)
	}
	if err := l.CleanupTemporaryFile(""); err != nil {
		t.Errorf("empty path = %v, want nil", err)
	}
}
