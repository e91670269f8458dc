package pipeline_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/ispitch/internal/pipeline"
	"github.com/MrWong99/ispitch/internal/pipeline/mock"
	"github.com/MrWong99/ispitch/internal/speech/filler"
	"github.com/MrWong99/ispitch/pkg/analysis"
	"github.com/MrWong99/ispitch/pkg/provider/transcriber"
	transcribermock "github.com/MrWong99/ispitch/pkg/provider/transcriber/mock"
)

type analyzeFunc[T any] func(context.Context, *analysis.Transcription) (*T, error)

func (f analyzeFunc[T]) Analyze(ctx context.Context, tr *analysis.Transcription) (*T, error) {
	return f(ctx, tr)
}

type fakeAudio struct {
	mu          sync.Mutex
	duration    float64
	durationErr error
	gotSilence  float64
	calls       int
}

func (f *fakeAudio) AudioDuration(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.duration, f.durationErr
}

func (f *fakeAudio) SpeechRate(text string, audioDuration, silenceDuration float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotSilence = silenceDuration
	return float64(len(strings.Fields(text))) / (audioDuration - silenceDuration) * 60
}

type prosodyFunc func(context.Context, string) (*analysis.ProsodyAnalysis, error)

func (f prosodyFunc) Prosody(ctx context.Context, path string) (*analysis.ProsodyAnalysis, error) {
	return f(ctx, path)
}

// sample has one 1.2 s gap and two fillers ("bom," and "né.").
func sample() *analysis.Transcription {
	return &analysis.Transcription{
		Text: "bom, hoje eu vou falar né.",
		Segments: []analysis.Segment{{
			ID: 0, Start: 0, End: 3.3, Text: "bom, hoje eu vou falar né.",
			Words: []analysis.Word{
				{Word: "bom,", Start: 0, End: 0.4},
				{Word: "hoje", Start: 0.5, End: 0.8},
				{Word: "eu", Start: 2.0, End: 2.2},
				{Word: "vou", Start: 2.3, End: 2.5},
				{Word: "falar", Start: 2.6, End: 3.0},
				{Word: "né.", Start: 3.1, End: 3.3},
			},
		}},
	}
}

type fixture struct {
	trans    *transcribermock.Provider
	audio    *fakeAudio
	notifier *mock.Notifier
	ports    pipeline.Ports
}

func newFixture() *fixture {
	f := &fixture{
		trans:    &transcribermock.Provider{Result: sample()},
		audio:    &fakeAudio{duration: 10},
		notifier: &mock.Notifier{},
	}
	f.ports = pipeline.Ports{
		Transcriber: f.trans,
		Fillers:     filler.New(),
		Audio:       f.audio,
		Notifier:    f.notifier,
	}
	return f
}

func (f *fixture) run(t *testing.T, opts ...pipeline.Option) (*analysis.Analysis, error) {
	t.Helper()
	o, err := pipeline.New(f.ports, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o.Execute(context.Background(), pipeline.Request{
		AnalysisID: "a1", AudioPath: "/tmp/a1.wav", Filename: "talk.wav", UserID: "u1",
	})
}

func TestExecute_Success(t *testing.T) {
	t.Parallel()
	f := newFixture()
	fixed := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	a, err := f.run(t, pipeline.WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if a.Status != analysis.StatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", a.Status)
	}
	if a.Score != nil {
		t.Errorf("Score = %d, want absent", *a.Score)
	}
	if a.ID != "a1" || a.UserID != "u1" || a.Filename != "talk.wav" {
		t.Errorf("identity = %s/%s/%s", a.ID, a.UserID, a.Filename)
	}
	if !a.UpdatedAt.Equal(fixed) {
		t.Errorf("UpdatedAt = %v, want %v", a.UpdatedAt, fixed)
	}

	sil := a.SpeechAnalysis.SilenceAnalysis
	if sil.Pauses != 1 || sil.Duration != 1.2 {
		t.Errorf("silence = %+v, want one 1.2s pause", sil)
	}
	if got := a.SpeechAnalysis.FillerWordsAnalysis.Total; got != 2 {
		t.Errorf("fillers = %d, want 2", got)
	}
	if f.audio.gotSilence != 1.2 {
		t.Errorf("speech rate got silence %v, want 1.2", f.audio.gotSilence)
	}
	if a.AudioAnalysis.Duration != 10 {
		t.Errorf("Duration = %v, want 10", a.AudioAnalysis.Duration)
	}
	if a.AudioAnalysis.Prosody != nil {
		t.Error("prosody present without a prosody analyzer")
	}

	sa := a.SpeechAnalysis
	if sa.Vocabulary != nil || sa.LexicalRichness != nil || sa.Topics != nil || sa.Sentiment != nil || sa.Grammar != nil {
		t.Errorf("unconfigured analyzers produced output: %+v", sa)
	}

	want := []analysis.Status{analysis.StatusTranscribing, analysis.StatusAnalyzingSpeech, analysis.StatusAnalyzingAudio}
	if got := f.notifier.Statuses(); !slices.Equal(got, want) {
		t.Errorf("published %v, want %v", got, want)
	}
	for _, c := range f.notifier.Calls {
		if c.AnalysisID != "a1" {
			t.Errorf("published on %q, want a1", c.AnalysisID)
		}
	}
}

func TestExecute_OptionalAnalyzers(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.ports.Lexical = analyzeFunc[analysis.LexicalRichness](func(context.Context, *analysis.Transcription) (*analysis.LexicalRichness, error) {
		return &analysis.LexicalRichness{TypeTokenRatio: 100, UniqueWords: 6, TotalWords: 6}, nil
	})
	f.ports.Topics = analyzeFunc[analysis.TopicAnalysis](func(context.Context, *analysis.Transcription) (*analysis.TopicAnalysis, error) {
		return &analysis.TopicAnalysis{Topics: []analysis.Topic{{Topic: "Apresentação"}}}, nil
	})
	f.ports.Prosody = prosodyFunc(func(context.Context, string) (*analysis.ProsodyAnalysis, error) {
		return &analysis.ProsodyAnalysis{Pitch: analysis.PitchAnalysis{Mean: 180}}, nil
	})

	a, err := f.run(t)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if a.SpeechAnalysis.LexicalRichness == nil || a.SpeechAnalysis.LexicalRichness.TotalWords != 6 {
		t.Errorf("LexicalRichness = %+v", a.SpeechAnalysis.LexicalRichness)
	}
	if a.SpeechAnalysis.Topics == nil || len(a.SpeechAnalysis.Topics.Topics) != 1 {
		t.Errorf("Topics = %+v", a.SpeechAnalysis.Topics)
	}
	if a.SpeechAnalysis.Sentiment != nil {
		t.Error("Sentiment present without analyzer")
	}
	if a.AudioAnalysis.Prosody == nil || a.AudioAnalysis.Prosody.Pitch.Mean != 180 {
		t.Errorf("Prosody = %+v", a.AudioAnalysis.Prosody)
	}
}

func TestExecute_SpeechAnalyzersRunConcurrently(t *testing.T) {
	t.Parallel()
	f := newFixture()
	topicsIn, sentimentIn := make(chan struct{}), make(chan struct{})
	wait := func(ch chan struct{}) error {
		select {
		case <-ch:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("other analyzer never started")
		}
	}
	f.ports.Topics = analyzeFunc[analysis.TopicAnalysis](func(context.Context, *analysis.Transcription) (*analysis.TopicAnalysis, error) {
		close(topicsIn)
		return &analysis.TopicAnalysis{}, wait(sentimentIn)
	})
	f.ports.Sentiment = analyzeFunc[analysis.SentimentAnalysis](func(context.Context, *analysis.Transcription) (*analysis.SentimentAnalysis, error) {
		close(sentimentIn)
		return &analysis.SentimentAnalysis{}, wait(topicsIn)
	})

	if _, err := f.run(t); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestExecute_TranscriptionFailure(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.trans.Err = transcriber.Errorf("openai", "quota exceeded")

	a, err := f.run(t)
	if a != nil {
		t.Errorf("result = %+v, want nil", a)
	}
	var se *pipeline.StageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StageError", err)
	}
	if se.Stage != pipeline.StageTranscription {
		t.Errorf("Stage = %s, want transcription", se.Stage)
	}
	if te, ok := transcriber.AsError(err); !ok || te.Provider != "openai" {
		t.Errorf("transcriber error not preserved: %v", err)
	}
	if f.audio.calls != 0 {
		t.Error("audio stage ran after a transcription failure")
	}
	if got := f.notifier.Statuses(); !slices.Equal(got, []analysis.Status{analysis.StatusTranscribing}) {
		t.Errorf("published %v, want only TRANSCRIBING", got)
	}
}

func TestExecute_NilTranscription(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.trans.Result = nil

	_, err := f.run(t)
	if stage, ok := pipeline.FailedStage(err); !ok || stage != pipeline.StageTranscription {
		t.Errorf("FailedStage = %s, %v; want transcription", stage, ok)
	}
}

func TestExecute_SpeechStageIsAllOrNothing(t *testing.T) {
	t.Parallel()
	f := newFixture()
	errGrammar := errors.New("llm unavailable")
	f.ports.Lexical = analyzeFunc[analysis.LexicalRichness](func(context.Context, *analysis.Transcription) (*analysis.LexicalRichness, error) {
		return &analysis.LexicalRichness{}, nil
	})
	f.ports.Grammar = analyzeFunc[analysis.GrammarAnalysis](func(context.Context, *analysis.Transcription) (*analysis.GrammarAnalysis, error) {
		return nil, errGrammar
	})

	_, err := f.run(t)
	if stage, ok := pipeline.FailedStage(err); !ok || stage != pipeline.StageSpeechAnalysis {
		t.Fatalf("FailedStage = %s, %v; want speech_analysis", stage, ok)
	}
	if !errors.Is(err, errGrammar) {
		t.Errorf("err = %v, want wrapping the grammar error", err)
	}
	if !strings.Contains(err.Error(), "grammar") {
		t.Errorf("err = %q, want analyzer name", err)
	}
	if f.audio.calls != 0 {
		t.Error("audio stage ran after a speech failure")
	}
	want := []analysis.Status{analysis.StatusTranscribing, analysis.StatusAnalyzingSpeech}
	if got := f.notifier.Statuses(); !slices.Equal(got, want) {
		t.Errorf("published %v, want %v", got, want)
	}
}

func TestExecute_AnalyzerPanic(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.ports.Vocabulary = analyzeFunc[analysis.VocabularyAnalysis](func(context.Context, *analysis.Transcription) (*analysis.VocabularyAnalysis, error) {
		panic("index out of range")
	})

	_, err := f.run(t)
	if stage, ok := pipeline.FailedStage(err); !ok || stage != pipeline.StageSpeechAnalysis {
		t.Fatalf("FailedStage = %s, %v; want speech_analysis", stage, ok)
	}
	if !strings.Contains(err.Error(), "panic") {
		t.Errorf("err = %q, want panic mentioned", err)
	}
}

func TestExecute_AudioFailures(t *testing.T) {
	t.Parallel()

	t.Run("duration", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.audio.durationErr = errors.New("not a wav file")
		_, err := f.run(t)
		if stage, ok := pipeline.FailedStage(err); !ok || stage != pipeline.StageAudioAnalysis {
			t.Errorf("FailedStage = %s, %v; want audio_analysis", stage, ok)
		}
	})

	t.Run("prosody", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.ports.Prosody = prosodyFunc(func(context.Context, string) (*analysis.ProsodyAnalysis, error) {
			return nil, errors.New("ffmpeg missing")
		})
		_, err := f.run(t)
		if stage, ok := pipeline.FailedStage(err); !ok || stage != pipeline.StageAudioAnalysis {
			t.Errorf("FailedStage = %s, %v; want audio_analysis", stage, ok)
		}
		want := []analysis.Status{analysis.StatusTranscribing, analysis.StatusAnalyzingSpeech, analysis.StatusAnalyzingAudio}
		if got := f.notifier.Statuses(); !slices.Equal(got, want) {
			t.Errorf("published %v, want %v", got, want)
		}
	})
}

func TestExecute_StageTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.trans.TranscribeFunc = func(ctx context.Context, _ string) (*analysis.Transcription, error) {
		<-ctx.Done()
		return nil, transcriber.Errorf("whisper", "%w", ctx.Err())
	}

	_, err := f.run(t, pipeline.WithStageTimeout(20*time.Millisecond))
	if stage, ok := pipeline.FailedStage(err); !ok || stage != pipeline.StageTranscription {
		t.Fatalf("FailedStage = %s, %v; want transcription", stage, ok)
	}
	if !errors.Is(err, pipeline.ErrStageTimeout) {
		t.Errorf("err = %v, want ErrStageTimeout", err)
	}
}

func TestExecute_NotifierFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.notifier.Err = errors.New("redis down")

	a, err := f.run(t)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if a.Status != analysis.StatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", a.Status)
	}
	if len(f.notifier.Calls) != 3 {
		t.Errorf("publish attempts = %d, want 3", len(f.notifier.Calls))
	}
}

func TestExecute_SilenceThreshold(t *testing.T) {
	t.Parallel()
	f := newFixture()
	o, err := pipeline.New(f.ports, pipeline.WithSilenceThreshold(2000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := pipeline.Request{AnalysisID: "a1", AudioPath: "/tmp/a1.wav"}

	a, err := o.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n := a.SpeechAnalysis.SilenceAnalysis.Pauses; n != 0 {
		t.Errorf("pauses at 2000ms = %d, want 0", n)
	}

	o.SetSilenceThreshold(500)
	if o.SilenceThreshold() != 500 {
		t.Fatalf("SilenceThreshold = %d, want 500", o.SilenceThreshold())
	}
	a, err = o.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if n := a.SpeechAnalysis.SilenceAnalysis.Pauses; n != 1 {
		t.Errorf("pauses at 500ms = %d, want 1", n)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := pipeline.New(pipeline.Ports{}); err == nil {
		t.Fatal("New with no ports succeeded")
	} else {
		for _, want := range []string{"transcriber", "filler", "audio", "notifier"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("err = %q, missing %q", err, want)
			}
		}
	}

	f := newFixture()
	if _, err := pipeline.New(f.ports, pipeline.WithStageTimeout(-time.Second)); err == nil {
		t.Error("negative timeout accepted")
	}
}

func TestExecute_InvalidRequest(t *testing.T) {
	t.Parallel()
	f := newFixture()
	o, err := pipeline.New(f.ports)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := o.Execute(context.Background(), pipeline.Request{}); err == nil {
		t.Error("empty request accepted")
	}
	if f.trans.CallCount() != 0 {
		t.Error("transcriber called for an invalid request")
	}
}
