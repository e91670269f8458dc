package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/ispitch/pkg/provider/transcriber"
)

const utteranceResponse = `{
  "results": {
    "channels": [{"alternatives": [{
      "transcript": "olá pessoal né vamos lá",
      "words": []
    }]}],
    "utterances": [
      {"start": 0.2, "end": 1.5, "transcript": "Olá pessoal, né?", "words": [
        {"word": "olá", "punctuated_word": "Olá", "start": 0.2, "end": 0.5},
        {"word": "pessoal", "punctuated_word": "pessoal,", "start": 0.6, "end": 1.1},
        {"word": "né", "punctuated_word": "né?", "start": 1.2, "end": 1.5}
      ]},
      {"start": 3.0, "end": 3.8, "transcript": "Vamos lá.", "words": [
        {"word": "vamos", "punctuated_word": "Vamos", "start": 3.0, "end": 3.3},
        {"word": "lá", "punctuated_word": "lá.", "start": 3.4, "end": 3.8}
      ]}
    ]
  }
}`

func TestBuildURL(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("pt"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := p.buildURL()
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	for _, want := range []string{"model=base", "language=pt", "utterances=true", "filler_words=true"} {
		if !strings.Contains(raw, want) {
			t.Errorf("URL %q missing %q", raw, want)
		}
	}
}

func TestTranscribe_Utterances(t *testing.T) {
	var gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(utteranceResponse))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "talk.wav")
	if err := os.WriteFile(path, []byte("RIFFdata"), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := New("secret", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := p.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotAuth != "Token secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotType != "audio/wav" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if string(gotBody) != "RIFFdata" {
		t.Errorf("body = %q", gotBody)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(tr.Segments))
	}
	words := tr.Words()
	if len(words) != 5 {
		t.Fatalf("words = %d, want 5", len(words))
	}
	if words[2].Word != "né?" {
		t.Errorf("punctuated word = %q, want né?", words[2].Word)
	}
}

func TestConvert_NoUtterances(t *testing.T) {
	raw := `{"results":{"channels":[{"alternatives":[{"transcript":"bom dia","words":[
		{"word":"bom","start":0,"end":0.3},{"word":"dia","start":0.4,"end":0.8}]}]}]}}`
	var dr deepgramResponse
	if err := json.Unmarshal([]byte(raw), &dr); err != nil {
		t.Fatal(err)
	}

	tr, err := convert(dr)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(tr.Segments) != 1 || tr.Segments[0].End != 0.8 {
		t.Errorf("segments = %+v", tr.Segments)
	}
	if tr.Segments[0].Words[1].Word != "dia" {
		t.Errorf("unpunctuated word should fall back to word: %+v", tr.Segments[0].Words)
	}

	if _, err := convert(deepgramResponse{}); err == nil {
		t.Error("expected error for empty response")
	}
}

func TestTranscribe_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "talk.mp3")
	_ = os.WriteFile(path, []byte("x"), 0o600)

	p, _ := New("bad", WithEndpoint(srv.URL))
	_, err := p.Transcribe(context.Background(), path)
	var te *transcriber.Error
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *transcriber.Error", err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error %q should mention status", err)
	}
}
