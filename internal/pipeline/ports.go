package pipeline

import (
	"context"

	"github.com/MrWong99/ispitch/pkg/analysis"
)

// Transcriber turns an audio file into a timed transcription. Failures
// should be *transcriber.Error. Any transcriber.Provider satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*analysis.Transcription, error)
}

// FillerWordDetector is the one required speech analyzer.
type FillerWordDetector interface {
	Analyze(ctx context.Context, tr *analysis.Transcription) (*analysis.FillerWordsAnalysis, error)
}

type VocabularyAnalyzer interface {
	Analyze(ctx context.Context, tr *analysis.Transcription) (*analysis.VocabularyAnalysis, error)
}

type LexicalRichnessAnalyzer interface {
	Analyze(ctx context.Context, tr *analysis.Transcription) (*analysis.LexicalRichness, error)
}

type TopicAnalyzer interface {
	Analyze(ctx context.Context, tr *analysis.Transcription) (*analysis.TopicAnalysis, error)
}

type SentimentAnalyzer interface {
	Analyze(ctx context.Context, tr *analysis.Transcription) (*analysis.SentimentAnalysis, error)
}

type GrammarChecker interface {
	Analyze(ctx context.Context, tr *analysis.Transcription) (*analysis.GrammarAnalysis, error)
}

// AudioAnalyzer measures the recording itself.
type AudioAnalyzer interface {
	// AudioDuration returns the length of the file at path in seconds.
	AudioDuration(ctx context.Context, path string) (float64, error)

	// SpeechRate returns words per minute of speech, excluding silence.
	SpeechRate(text string, audioDuration, silenceDuration float64) float64
}

// ProsodyAnalyzer extracts pitch, intensity and voice-quality metrics.
type ProsodyAnalyzer interface {
	Prosody(ctx context.Context, path string) (*analysis.ProsodyAnalysis, error)
}

// Repository persists analyses.
type Repository interface {
	// Save inserts or replaces a and returns the stored copy.
	Save(ctx context.Context, a *analysis.Analysis) (*analysis.Analysis, error)
	FindByID(ctx context.Context, id string) (*analysis.Analysis, error)
}

// Notifier delivers progress events to whoever watches an analysis.
// Delivery is at most once.
type Notifier interface {
	Publish(ctx context.Context, analysisID string, ev analysis.Event) error
}

// Storage owns the uploaded audio files.
type Storage interface {
	// CleanupTemporaryFile removes path. A file that is already gone is not
	// an error.
	CleanupTemporaryFile(path string) error
}

// Ports bundles the collaborators of an [Orchestrator]. Transcriber,
// Fillers, Audio and Notifier are required. Every other field may be left
// nil, in which case the matching part of the result stays absent.
type Ports struct {
	Transcriber Transcriber
	Fillers     FillerWordDetector
	Audio       AudioAnalyzer
	Notifier    Notifier

	Vocabulary VocabularyAnalyzer
	Lexical    LexicalRichnessAnalyzer
	Topics     TopicAnalyzer
	Sentiment  SentimentAnalyzer
	Grammar    GrammarChecker
	Prosody    ProsodyAnalyzer
}
