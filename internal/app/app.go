// Package app wires the ispitch subsystems into a running service.
//
// New builds every subsystem from the config, Run serves HTTP until its
// context ends, and Shutdown drains the worker pool and releases resources
// in order. Tests inject doubles through the functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/ispitch/internal/acoustic"
	"github.com/MrWong99/ispitch/internal/api"
	"github.com/MrWong99/ispitch/internal/config"
	"github.com/MrWong99/ispitch/internal/health"
	"github.com/MrWong99/ispitch/internal/mcpserver"
	"github.com/MrWong99/ispitch/internal/notify"
	"github.com/MrWong99/ispitch/internal/observe"
	"github.com/MrWong99/ispitch/internal/pipeline"
	"github.com/MrWong99/ispitch/internal/speech/filler"
	"github.com/MrWong99/ispitch/internal/speech/lexical"
	"github.com/MrWong99/ispitch/internal/speech/llmanalyze"
	"github.com/MrWong99/ispitch/internal/speech/vocabulary"
	"github.com/MrWong99/ispitch/internal/storage"
	"github.com/MrWong99/ispitch/internal/store"
	"github.com/MrWong99/ispitch/internal/worker"
	"github.com/MrWong99/ispitch/internal/workflow"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	version   string

	metrics        *observe.Metrics
	metricsHandler http.Handler

	store   store.Store
	broker  notify.Broker
	uploads *storage.Local
	orch    *pipeline.Orchestrator
	pool    *worker.Pool
	health  *health.Handler
	api     *api.Server

	server     *http.Server
	cancelReqs context.CancelFunc

	// closers run in order during Shutdown, after the pool has drained.
	closers []func(context.Context) error

	startOnce sync.Once
	stopOnce  sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a repository instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithBroker injects an event broker instead of creating one from config.
func WithBroker(b notify.Broker) Option {
	return func(a *App) { a.broker = b }
}

// WithMetrics records on m and serves h at /metrics.
func WithMetrics(m *observe.Metrics, h http.Handler) Option {
	return func(a *App) {
		a.metrics = m
		a.metricsHandler = h
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithCloser registers fn to run at the end of Shutdown.
func WithCloser(fn func(context.Context) error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App. providers.Transcriber is required.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Transcriber == nil {
		return nil, errors.New("app: a transcriber is required")
	}
	a := &App{cfg: cfg, providers: providers, version: "dev"}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	// injected closers run last
	injected := a.closers
	a.closers = nil

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.initBroker()

	uploads, err := storage.New(cfg.Storage.TempDir,
		storage.WithMaxBytes(cfg.Storage.MaxUploadBytes),
		storage.WithContentTypes(cfg.Storage.AllowedContentTypes...),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}
	a.uploads = uploads

	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	sup, err := workflow.New(a.orch, a.store, a.broker, a.uploads, workflow.WithMetrics(a.metrics))
	if err != nil {
		return nil, fmt.Errorf("app: init workflow: %w", err)
	}
	a.pool, err = worker.New(sup,
		worker.WithConcurrency(cfg.Worker.Concurrency),
		worker.WithQueueSize(cfg.Worker.QueueSize),
		worker.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init worker pool: %w", err)
	}

	a.health = health.New([]health.Checker{
		health.CheckFunc("store", a.store.Ping),
		health.CheckFunc("broker", a.broker.Ping),
		health.CheckFunc("worker", a.pool.Check),
	})

	deps := api.Deps{
		Store:     a.store,
		Broker:    a.broker,
		Uploads:   a.uploads,
		Scheduler: a.pool,
		Health:    a.health,
		Metrics:   a.metricsHandler,
	}
	if cfg.MCP.Enabled {
		deps.MCP = mcpserver.Handler(mcpserver.New(a.store, a.version))
	}
	a.api, err = api.New(deps,
		api.WithMetrics(a.metrics),
		api.WithStreamIdleTimeout(cfg.Notifier.SubscribeTimeout),
		api.WithOriginPatterns(cfg.Server.AllowedOrigins...),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init api: %w", err)
	}

	a.closers = append(a.closers, injected...)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if a.cfg.Database.PostgresDSN == "" {
		slog.Warn("no postgres_dsn configured, analyses are kept in memory")
		a.store = store.NewMemStore()
		return nil
	}
	pg, pool, err := store.Connect(ctx, a.cfg.Database.PostgresDSN)
	if err != nil {
		return err
	}
	a.store = pg
	a.closers = append(a.closers, func(context.Context) error {
		pool.Close()
		return nil
	})
	return nil
}

func (a *App) initBroker() {
	if a.broker == nil {
		switch a.cfg.Notifier.Backend {
		case config.NotifierRedis:
			n := a.cfg.Notifier
			a.broker = notify.NewRedis(n.RedisAddr, n.RedisPassword, n.RedisDB)
		default:
			a.broker = notify.NewHub()
		}
	}
	b := a.broker
	a.closers = append(a.closers, func(context.Context) error { return b.Close() })
}

// initPipeline assembles the orchestrator ports. Analyzers switched off in
// the config, or needing an LLM when none is configured, stay nil.
func (a *App) initPipeline() error {
	cfg := a.cfg.Analysis
	ac := acoustic.New(acoustic.WithFFmpeg(&acoustic.FFmpeg{
		Bin:      a.cfg.Storage.FFmpegPath,
		ProbeBin: a.cfg.Storage.FFprobePath,
		TempDir:  a.uploads.Dir(),
	}))

	ports := pipeline.Ports{
		Transcriber: a.providers.Transcriber,
		Fillers:     filler.New(),
		Audio:       ac,
		Notifier:    a.broker,
	}
	if cfg.Enabled(config.AnalyzerLexical) {
		ports.Lexical = lexical.New()
	}
	if cfg.Enabled(config.AnalyzerProsody) {
		ports.Prosody = ac
	}

	p := a.providers.LLM
	llmOpts := []llmanalyze.Option{llmanalyze.WithMetrics(a.metrics)}
	if cfg.Enabled(config.AnalyzerVocabulary) {
		var syn vocabulary.SynonymProvider = vocabulary.StaticSynonyms{}
		if p != nil {
			s, err := llmanalyze.NewSynonyms(p, llmOpts...)
			if err != nil {
				return err
			}
			syn = s
		}
		v, err := vocabulary.New(syn)
		if err != nil {
			return err
		}
		ports.Vocabulary = v
	}
	if p != nil {
		if cfg.Enabled(config.AnalyzerTopics) {
			t, err := llmanalyze.NewTopicAnalyzer(p, llmOpts...)
			if err != nil {
				return err
			}
			ports.Topics = t
		}
		if cfg.Enabled(config.AnalyzerSentiment) {
			s, err := llmanalyze.NewSentimentAnalyzer(p, llmOpts...)
			if err != nil {
				return err
			}
			ports.Sentiment = s
		}
		if cfg.Enabled(config.AnalyzerGrammar) {
			g, err := llmanalyze.NewGrammarChecker(p, llmOpts...)
			if err != nil {
				return err
			}
			ports.Grammar = g
		}
	}

	orch, err := pipeline.New(ports,
		pipeline.WithStageTimeout(cfg.StageTimeout),
		pipeline.WithSilenceThreshold(cfg.SilenceThresholdMs),
		pipeline.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

// Handler returns the HTTP handler of the service.
func (a *App) Handler() http.Handler { return a.api.Handler() }

// Start launches the worker pool. Runs are detached from ctx's cancellation
// so a shutdown signal lets them drain.
func (a *App) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		a.pool.Start(context.WithoutCancel(ctx))
	})
}

// SetSilenceThreshold changes the pause threshold for analyses that start
// afterwards.
func (a *App) SetSilenceThreshold(ms int) {
	a.orch.SetSilenceThreshold(ms)
	slog.Info("silence threshold updated", "ms", ms)
}

// Run starts the worker pool and serves HTTP on the configured address
// until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is like Run but accepts connections on ln.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.Start(ctx)

	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancelReqs = cancel
	a.server = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return reqCtx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Serve(ln) }()
	slog.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting requests, ends open progress streams, drains the
// worker pool and runs the closers. Closers still run when ctx expires
// during the drain.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "pending", a.pool.Pending())

		if a.cancelReqs != nil {
			a.cancelReqs()
		}
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}
		if err := a.pool.Stop(ctx); err != nil {
			errs = append(errs, err)
		}

		closeCtx := context.WithoutCancel(ctx)
		for i, closer := range a.closers {
			if err := closer(closeCtx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}
