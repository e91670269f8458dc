// Package pipeline runs one speech analysis from audio file to measurements.
//
// The [Orchestrator] drives three stages in order: transcription, speech
// analysis (silence, filler words and the optional text analyzers, run
// concurrently) and audio analysis (duration, speech rate and optional
// prosody). Before each stage it publishes a status_update event through the
// [Notifier]. It never writes to a repository; persisting the result, scoring
// it and reporting failures is the workflow's job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/ispitch/internal/observe"
	"github.com/MrWong99/ispitch/internal/silence"
	"github.com/MrWong99/ispitch/pkg/analysis"
)

// Request identifies one run.
type Request struct {
	AnalysisID string
	AudioPath  string
	Filename   string
	UserID     string
}

func (r Request) validate() error {
	var errs []error
	if r.AnalysisID == "" {
		errs = append(errs, errors.New("analysis id is required"))
	}
	if r.AudioPath == "" {
		errs = append(errs, errors.New("audio path is required"))
	}
	return errors.Join(errs...)
}

// Orchestrator executes the pipeline. It is safe for concurrent use; each
// Execute call works on its own analysis.
type Orchestrator struct {
	ports        Ports
	stageTimeout time.Duration
	metrics      *observe.Metrics
	now          func() time.Time

	silenceMs atomic.Int64
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithStageTimeout bounds every stage. Zero, the default, means no limit.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stageTimeout = d }
}

// WithSilenceThreshold sets the minimum gap, in milliseconds, counted as a
// silence. Defaults to [silence.DefaultThresholdMs].
func WithSilenceThreshold(ms int) Option {
	return func(o *Orchestrator) { o.silenceMs.Store(int64(ms)) }
}

// WithMetrics records stage timings on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces time.Now for the analysis timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New validates ports and returns an Orchestrator.
func New(ports Ports, opts ...Option) (*Orchestrator, error) {
	var errs []error
	if ports.Transcriber == nil {
		errs = append(errs, errors.New("transcriber is required"))
	}
	if ports.Fillers == nil {
		errs = append(errs, errors.New("filler word detector is required"))
	}
	if ports.Audio == nil {
		errs = append(errs, errors.New("audio analyzer is required"))
	}
	if ports.Notifier == nil {
		errs = append(errs, errors.New("notifier is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	o := &Orchestrator{ports: ports, now: time.Now}
	o.silenceMs.Store(silence.DefaultThresholdMs)
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.stageTimeout < 0 {
		return nil, fmt.Errorf("pipeline: negative stage timeout %s", o.stageTimeout)
	}
	return o, nil
}

// SetSilenceThreshold changes the silence threshold for runs that have not
// reached the speech stage yet.
func (o *Orchestrator) SetSilenceThreshold(ms int) {
	o.silenceMs.Store(int64(ms))
}

// SilenceThreshold returns the current threshold in milliseconds.
func (o *Orchestrator) SilenceThreshold() int {
	return int(o.silenceMs.Load())
}

// Execute runs every stage for req and returns the COMPLETED analysis with
// no score. Any failure is a *StageError.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*analysis.Analysis, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("pipeline: invalid request: %w", err)
	}

	ctx, span := observe.StartSpan(ctx, "pipeline.Execute",
		trace.WithAttributes(attribute.String("analysis_id", req.AnalysisID)),
	)
	defer span.End()

	a := analysis.NewPending(req.AnalysisID, req.UserID, req.Filename, o.now())

	tr, err := runStage(ctx, o, a, StageTranscription, analysis.StatusTranscribing,
		func(ctx context.Context) (*analysis.Transcription, error) {
			tr, err := o.ports.Transcriber.Transcribe(ctx, req.AudioPath)
			if err != nil {
				return nil, err
			}
			if tr == nil {
				return nil, errors.New("transcriber returned no result")
			}
			return tr, nil
		})
	if err != nil {
		return nil, err
	}
	a.Transcription = tr

	sa, err := runStage(ctx, o, a, StageSpeechAnalysis, analysis.StatusAnalyzingSpeech,
		func(ctx context.Context) (*analysis.SpeechAnalysis, error) {
			return o.analyzeSpeech(ctx, tr)
		})
	if err != nil {
		return nil, err
	}
	a.SpeechAnalysis = sa

	aa, err := runStage(ctx, o, a, StageAudioAnalysis, analysis.StatusAnalyzingAudio,
		func(ctx context.Context) (*analysis.AudioAnalysis, error) {
			return o.analyzeAudio(ctx, req.AudioPath, tr.Text, sa.SilenceAnalysis.Duration)
		})
	if err != nil {
		return nil, err
	}
	a.AudioAnalysis = aa

	if err := a.Advance(analysis.StatusCompleted, o.now()); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return a, nil
}

// runStage publishes status, then runs fn under the stage timeout with a
// span and a duration measurement. Errors come back as *StageError.
func runStage[T any](ctx context.Context, o *Orchestrator, a *analysis.Analysis, stage Stage, status analysis.Status, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := a.Advance(status, o.now()); err != nil {
		return zero, &StageError{Stage: stage, Err: err}
	}
	o.publish(ctx, a.ID, status)

	ctx, span := observe.StartSpan(ctx, "pipeline."+string(stage))
	start := time.Now()

	stageCtx := ctx
	if o.stageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, o.stageTimeout)
		defer cancel()
	}

	res, err := fn(stageCtx)
	if err != nil && ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", ErrStageTimeout, o.stageTimeout, err)
	}

	o.metrics.RecordStage(ctx, string(stage), time.Since(start), err)
	observe.EndSpan(span, err)
	if err != nil {
		observe.Logger(ctx).Warn("pipeline stage failed",
			slog.String("analysis_id", a.ID),
			slog.String("stage", string(stage)),
			slog.Any("err", err),
		)
		return zero, &StageError{Stage: stage, Err: err}
	}
	return res, nil
}

func (o *Orchestrator) publish(ctx context.Context, id string, status analysis.Status) {
	if err := o.ports.Notifier.Publish(ctx, id, analysis.StatusEvent(status)); err != nil {
		observe.Logger(ctx).Warn("failed to publish status",
			slog.String("analysis_id", id),
			slog.String("status", string(status)),
			slog.Any("err", err),
		)
	}
}

// analyzeSpeech runs every speech analyzer concurrently. Any single failure
// fails the whole stage.
func (o *Orchestrator) analyzeSpeech(ctx context.Context, tr *analysis.Transcription) (*analysis.SpeechAnalysis, error) {
	sa := &analysis.SpeechAnalysis{}
	threshold := o.SilenceThreshold()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(guard("silence", func() error {
		sa.SilenceAnalysis = silence.Detect(tr.Words(), threshold)
		return nil
	}))
	g.Go(guard("filler words", func() error {
		res, err := o.ports.Fillers.Analyze(gctx, tr)
		if err != nil {
			return err
		}
		if res == nil {
			return errors.New("detector returned no result")
		}
		sa.FillerWordsAnalysis = *res
		return nil
	}))

	goOptional(g, gctx, "vocabulary", o.ports.Vocabulary, tr, &sa.Vocabulary)
	goOptional(g, gctx, "lexical richness", o.ports.Lexical, tr, &sa.LexicalRichness)
	goOptional(g, gctx, "topics", o.ports.Topics, tr, &sa.Topics)
	goOptional(g, gctx, "sentiment", o.ports.Sentiment, tr, &sa.Sentiment)
	goOptional(g, gctx, "grammar", o.ports.Grammar, tr, &sa.Grammar)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sa, nil
}

type analyzer[T any] interface {
	Analyze(ctx context.Context, tr *analysis.Transcription) (*T, error)
}

// goOptional schedules a on g when it is configured. Its result lands in
// dst; each analyzer owns a distinct field.
func goOptional[T any](g *errgroup.Group, ctx context.Context, name string, a analyzer[T], tr *analysis.Transcription, dst **T) {
	if a == nil {
		return
	}
	g.Go(guard(name, func() error {
		res, err := a.Analyze(ctx, tr)
		if err != nil {
			return err
		}
		*dst = res
		return nil
	}))
}

// guard names the analyzer in its error and turns a panic into one, so a
// misbehaving analyzer fails the stage instead of the process.
func guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s: panic: %v", name, r)
			}
		}()
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

func (o *Orchestrator) analyzeAudio(ctx context.Context, path, text string, silenceDuration float64) (*analysis.AudioAnalysis, error) {
	dur, err := o.ports.Audio.AudioDuration(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("duration: %w", err)
	}
	aa := &analysis.AudioAnalysis{
		Duration:   dur,
		SpeechRate: o.ports.Audio.SpeechRate(text, dur, silenceDuration),
	}
	if o.ports.Prosody != nil {
		p, err := o.ports.Prosody.Prosody(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("prosody: %w", err)
		}
		aa.Prosody = p
	}
	return aa, nil
}
