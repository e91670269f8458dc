// Command ispitch serves the speech analysis API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/ispitch/internal/acoustic"
	"github.com/MrWong99/ispitch/internal/app"
	"github.com/MrWong99/ispitch/internal/config"
	"github.com/MrWong99/ispitch/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "ispitch: %v\n", err)
		return 1
	}

	// ── Configuration + hot reload ─────────────────────────────────────────────
	var (
		level       slog.LevelVar
		application *app.App
	)
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(&level, application, config.Diff(old, new))
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ispitch: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ispitch: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("ispitch starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"transcriber", cfg.Providers.Transcriber.Name,
		"llm", cfg.Providers.LLM.Name,
		"notifier", cfg.Notifier.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	ffmpeg := &acoustic.FFmpeg{
		Bin:      cfg.Storage.FFmpegPath,
		ProbeBin: cfg.Storage.FFprobePath,
		TempDir:  cfg.Storage.TempDir,
	}
	app.RegisterBuiltinProviders(reg, ffmpeg.Decode, cfg.Analysis.Language)
	slog.Debug("registered providers", "transcribers", reg.Transcribers(), "llms", reg.LLMs())

	providers, err := app.BuildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err = app.New(ctx, cfg, providers,
		app.WithMetrics(metrics, tel.MetricsHandler()),
		app.WithVersion(version),
		app.WithCloser(tel.Shutdown),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	go watcher.Run(ctx)

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyReload applies the hot-reloadable part of d.
func applyReload(level *slog.LevelVar, application *app.App, d config.ConfigDiff) {
	if d.LogLevelChanged {
		level.Set(d.NewLogLevel.Level())
		slog.Info("log level updated", "level", d.NewLogLevel)
	}
	if d.SilenceThresholdChanged && application != nil {
		application.SetSilenceThreshold(d.NewSilenceThresholdMs)
	}
	if len(d.Restart) > 0 {
		slog.Warn("config changes take effect after a restart", "sections", d.Restart)
	}
}
