// Package workflow supervises a single analysis run end to end: it executes
// the pipeline, scores and persists the result, reports the outcome to
// subscribers and always releases the uploaded file.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/ispitch/internal/observe"
	"github.com/MrWong99/ispitch/internal/pipeline"
	"github.com/MrWong99/ispitch/internal/score"
	"github.com/MrWong99/ispitch/pkg/analysis"
)

// Executor runs the analysis stages. [pipeline.Orchestrator] implements it.
type Executor interface {
	Execute(ctx context.Context, req pipeline.Request) (*analysis.Analysis, error)
}

var _ Executor = (*pipeline.Orchestrator)(nil)

// Supervisor turns every pipeline outcome into exactly one terminal record.
type Supervisor struct {
	exec     Executor
	repo     pipeline.Repository
	notifier pipeline.Notifier
	storage  pipeline.Storage
	metrics  *observe.Metrics
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a [Supervisor].
type Option func(*Supervisor)

// WithMetrics records run outcomes on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithLogger sends run logs to l instead of the trace-aware default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// WithClock replaces time.Now for the timestamps of FAILED records.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

// New returns a Supervisor. Every collaborator is required.
func New(exec Executor, repo pipeline.Repository, notifier pipeline.Notifier, storage pipeline.Storage, opts ...Option) (*Supervisor, error) {
	var errs []error
	if exec == nil {
		errs = append(errs, errors.New("executor is required"))
	}
	if repo == nil {
		errs = append(errs, errors.New("repository is required"))
	}
	if notifier == nil {
		errs = append(errs, errors.New("notifier is required"))
	}
	if storage == nil {
		errs = append(errs, errors.New("storage is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}

	s := &Supervisor{
		exec:     exec,
		repo:     repo,
		notifier: notifier,
		storage:  storage,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// unrecorded is logged as the outcome of a run that left no terminal record.
const unrecorded = "UNRECORDED"

// Run executes req and records its outcome. Stage failures, including a
// panic inside a stage or while completing, end in a FAILED record and are
// not returned. The only error is a persistence failure that left no
// terminal record behind. The audio file is cleaned up exactly once
// whatever happens.
//
// Terminal writes use a context detached from ctx, so a run cancelled by a
// shutdown still records its outcome.
func (s *Supervisor) Run(ctx context.Context, req pipeline.Request) (err error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "workflow.Run",
		trace.WithAttributes(attribute.String("analysis_id", req.AnalysisID)),
	)
	log := s.logger(ctx).With(slog.String("analysis_id", req.AnalysisID))

	s.metrics.ActiveRuns.Add(ctx, 1)
	outcome := unrecorded

	defer func() {
		s.metrics.ActiveRuns.Add(ctx, -1)
		if cerr := s.storage.CleanupTemporaryFile(req.AudioPath); cerr != nil {
			log.Warn("failed to clean up audio file",
				slog.String("path", req.AudioPath),
				slog.Any("err", cerr),
			)
		}
		observe.EndSpan(span, err)
		log.Info("analysis finished",
			slog.String("status", outcome),
			slog.Duration("duration", time.Since(start)),
		)
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workflow: analysis %s: panic: %v", req.AnalysisID, r)
			log.Error("workflow panicked", slog.Any("panic", r))
		}
	}()

	a, err := s.execute(ctx, req)
	if err == nil {
		err = s.complete(ctx, a)
		if err == nil {
			outcome = string(analysis.StatusCompleted)
			return nil
		}
	}

	log.Error("analysis failed", slog.Any("err", err))
	if err := s.fail(ctx, req); err != nil {
		return err
	}
	outcome = string(analysis.StatusFailed)
	return nil
}

func (s *Supervisor) logger(ctx context.Context) *slog.Logger {
	if s.log != nil {
		return s.log
	}
	return observe.Logger(ctx)
}

// execute calls the executor, converting a panic into an error.
func (s *Supervisor) execute(ctx context.Context, req pipeline.Request) (a *analysis.Analysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			a, err = nil, fmt.Errorf("workflow: pipeline panic: %v", r)
		}
	}()
	return s.exec.Execute(ctx, req)
}

// complete scores and saves a, then announces the result followed by the
// terminal status. A panic before the save succeeded becomes an error so
// the caller records FAILED; after it, the COMPLETED record stands.
func (s *Supervisor) complete(ctx context.Context, a *analysis.Analysis) (err error) {
	ctx = context.WithoutCancel(ctx)
	persisted := false
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if persisted {
			s.logger(ctx).Error("panic after saving completed analysis",
				slog.String("analysis_id", a.ID),
				slog.Any("panic", r),
			)
			err = nil
			return
		}
		err = fmt.Errorf("workflow: completion panic: %v", r)
	}()

	bd := score.Explain(a)
	a.Score = analysis.IntPtr(bd.Score)
	s.logger(ctx).Debug("analysis scored",
		slog.String("analysis_id", a.ID),
		slog.Int("score", bd.Score),
		slog.Any("adjustments", bd.Adjustments),
	)

	saved, err := s.repo.Save(ctx, a)
	if err != nil {
		return fmt.Errorf("workflow: save completed analysis: %w", err)
	}
	persisted = true
	if saved == nil {
		saved = a
	}

	ev, err := analysis.ResultEvent(saved)
	if err != nil {
		s.logger(ctx).Warn("failed to encode result", slog.String("analysis_id", a.ID), slog.Any("err", err))
	} else {
		s.publish(ctx, a.ID, ev)
	}
	s.publish(ctx, a.ID, analysis.StatusEvent(analysis.StatusCompleted))
	s.metrics.RecordAnalysis(ctx, string(analysis.StatusCompleted))
	return nil
}

// fail persists the minimal FAILED record and announces it.
func (s *Supervisor) fail(ctx context.Context, req pipeline.Request) error {
	ctx = context.WithoutCancel(ctx)
	failed := analysis.NewFailed(req.AnalysisID, req.UserID, req.Filename, s.now())
	_, saveErr := s.repo.Save(ctx, failed)

	s.publish(ctx, req.AnalysisID, analysis.StatusEvent(analysis.StatusFailed))
	s.metrics.RecordAnalysis(ctx, string(analysis.StatusFailed))

	if saveErr != nil {
		return fmt.Errorf("workflow: save failed analysis %s: %w", req.AnalysisID, saveErr)
	}
	return nil
}

func (s *Supervisor) publish(ctx context.Context, id string, ev analysis.Event) {
	if err := s.notifier.Publish(ctx, id, ev); err != nil {
		s.logger(ctx).Warn("failed to publish event",
			slog.String("analysis_id", id),
			slog.String("event", string(ev.Event)),
			slog.Any("err", err),
		)
	}
}
