// Package worker runs analyses in the background on a fixed number of
// goroutines fed by a bounded queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/ispitch/internal/observe"
	"github.com/MrWong99/ispitch/internal/pipeline"
)

var (
	// ErrQueueFull is returned by [Pool.Submit] when no queue slot is free.
	ErrQueueFull = errors.New("worker: queue full")

	// ErrStopped is returned by [Pool.Submit] after [Pool.Stop].
	ErrStopped = errors.New("worker: pool stopped")

	// ErrDuplicate is returned when the analysis is already queued or
	// running.
	ErrDuplicate = errors.New("worker: analysis already scheduled")
)

// Defaults used when the corresponding option is absent or non-positive.
const (
	DefaultConcurrency = 2
	DefaultQueueSize   = 32
)

// Runner executes one analysis. [workflow.Supervisor] implements it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) error
}

// Pool schedules [pipeline.Request]s onto its workers. At most one run per
// analysis id is in flight at a time.
type Pool struct {
	runner      Runner
	concurrency int
	queueSize   int
	metrics     *observe.Metrics

	mu       sync.Mutex
	queue    chan pipeline.Request
	inflight map[string]struct{}
	started  bool
	stopped  bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Option configures a [Pool].
type Option func(*Pool)

// WithConcurrency sets the number of workers.
func WithConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithQueueSize sets how many requests may wait for a worker.
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithMetrics records queue depth on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// New returns a pool that is not yet running. Call [Pool.Start].
func New(runner Runner, opts ...Option) (*Pool, error) {
	if runner == nil {
		return nil, errors.New("worker: runner is required")
	}
	p := &Pool{
		runner:      runner,
		concurrency: DefaultConcurrency,
		queueSize:   DefaultQueueSize,
		inflight:    make(map[string]struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	p.queue = make(chan pipeline.Request, p.queueSize)
	return p, nil
}

// Start launches the workers. Runs inherit ctx's values; cancelling ctx
// aborts in-flight runs. Start is a no-op on a started pool.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := range p.concurrency {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	slog.Info("worker pool started", "concurrency", p.concurrency, "queue_size", p.queueSize)
}

// Submit enqueues req without blocking.
func (p *Pool) Submit(ctx context.Context, req pipeline.Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if _, ok := p.inflight[req.AnalysisID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, req.AnalysisID)
	}
	select {
	case p.queue <- req:
	default:
		return ErrQueueFull
	}
	p.inflight[req.AnalysisID] = struct{}{}
	p.metrics.QueueDepth.Add(ctx, 1)
	return nil
}

// Stop rejects new submissions and waits for queued and running analyses to
// finish. If ctx expires first, in-flight runs are cancelled and ctx's error
// is returned once the workers have exited.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		slog.Info("worker pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("worker: drain: %w", ctx.Err())
	}
}

// Pending returns the number of analyses queued or running.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

// Check reports whether the pool accepts work. It is used as a readiness
// probe.
func (p *Pool) Check(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.stopped:
		return ErrStopped
	case !p.started:
		return errors.New("worker: pool not started")
	}
	return nil
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	for req := range p.queue {
		p.metrics.QueueDepth.Add(ctx, -1)
		p.run(ctx, id, req)
	}
}

func (p *Pool) run(ctx context.Context, id int, req pipeline.Request) {
	defer func() {
		p.mu.Lock()
		delete(p.inflight, req.AnalysisID)
		p.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("analysis run panicked", "worker", id, "analysis_id", req.AnalysisID, "panic", r)
		}
	}()

	if err := p.runner.Run(ctx, req); err != nil {
		slog.Error("analysis run failed", "worker", id, "analysis_id", req.AnalysisID, "err", err)
	}
}
