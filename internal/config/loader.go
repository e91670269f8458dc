package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/ispitch/internal/silence"
	"github.com/MrWong99/ispitch/internal/storage"
	"github.com/MrWong99/ispitch/internal/worker"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcriber": {"openai", "deepgram", "whisper", "whisper-native"},
	"llm":         {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Defaults applied by [ApplyDefaults] to zero-valued fields.
const (
	DefaultListenAddr       = ":8080"
	DefaultLanguage         = "pt"
	DefaultStageTimeout     = 5 * time.Minute
	DefaultSubscribeTimeout = 10 * time.Minute
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultFFmpegPath       = "ffmpeg"
	DefaultFFprobePath      = "ffprobe"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are given) into the process environment. Missing files are ignored and
// variables already set are left alone.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load env file %q: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references in the YAML read from r, decodes
// it with unknown keys rejected, fills defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Analysis.SilenceThresholdMs == 0 {
		cfg.Analysis.SilenceThresholdMs = silence.DefaultThresholdMs
	}
	if cfg.Analysis.Language == "" {
		cfg.Analysis.Language = DefaultLanguage
	}
	if cfg.Analysis.StageTimeout == 0 {
		cfg.Analysis.StageTimeout = DefaultStageTimeout
	}
	if cfg.Storage.MaxUploadBytes == 0 {
		cfg.Storage.MaxUploadBytes = storage.DefaultMaxBytes
	}
	if len(cfg.Storage.AllowedContentTypes) == 0 {
		cfg.Storage.AllowedContentTypes = slices.Clone(storage.DefaultContentTypes)
	}
	if cfg.Storage.FFmpegPath == "" {
		cfg.Storage.FFmpegPath = DefaultFFmpegPath
	}
	if cfg.Storage.FFprobePath == "" {
		cfg.Storage.FFprobePath = DefaultFFprobePath
	}
	if cfg.Notifier.Backend == "" {
		cfg.Notifier.Backend = NotifierMemory
	}
	if cfg.Notifier.SubscribeTimeout == 0 {
		cfg.Notifier.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = worker.DefaultConcurrency
	}
	if cfg.Worker.QueueSize == 0 {
		cfg.Worker.QueueSize = worker.DefaultQueueSize
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}

	if cfg.Providers.Transcriber.Name == "" {
		errs = append(errs, errors.New("providers.transcriber.name is required"))
	}
	validateProviderName("transcriber", cfg.Providers.Transcriber.Name)
	for i, fb := range cfg.Providers.TranscriberFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.transcriber_fallbacks[%d].name is required", i))
		}
		validateProviderName("transcriber", fb.Name)
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	if cfg.Providers.LLM.Name == "" && len(cfg.Providers.LLMFallbacks) > 0 {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}
	cb := cfg.Providers.CircuitBreaker
	if cb.MaxFailures < 0 || cb.Probes < 0 || cb.Cooldown < 0 {
		errs = append(errs, errors.New("providers.circuit_breaker values must not be negative"))
	}

	if cfg.Analysis.SilenceThresholdMs < 0 {
		errs = append(errs, fmt.Errorf("analysis.silence_threshold_ms must not be negative, got %d", cfg.Analysis.SilenceThresholdMs))
	}
	if cfg.Analysis.StageTimeout < 0 {
		errs = append(errs, errors.New("analysis.stage_timeout must not be negative"))
	}
	for i, a := range cfg.Analysis.Analyzers {
		if !a.IsValid() {
			errs = append(errs, fmt.Errorf("analysis.analyzers[%d] %q is unknown", i, a))
			continue
		}
		if a.NeedsLLM() && cfg.Providers.LLM.Name == "" {
			slog.Warn("analyzer needs an llm provider and will be skipped", "analyzer", a)
		}
	}

	if cfg.Storage.MaxUploadBytes < 0 {
		errs = append(errs, errors.New("storage.max_upload_bytes must not be negative"))
	}

	switch cfg.Notifier.Backend {
	case "", NotifierMemory:
	case NotifierRedis:
		if cfg.Notifier.RedisAddr == "" {
			errs = append(errs, errors.New("notifier.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifier.backend %q is invalid; valid values: memory, redis", cfg.Notifier.Backend))
	}
	if cfg.Notifier.SubscribeTimeout < 0 {
		errs = append(errs, errors.New("notifier.subscribe_timeout must not be negative"))
	}

	if cfg.Worker.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("worker.concurrency must not be negative, got %d", cfg.Worker.Concurrency))
	}
	if cfg.Worker.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("worker.queue_size must not be negative, got %d", cfg.Worker.QueueSize))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
