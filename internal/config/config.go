// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry of the ispitch service.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto slog. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Analyzer names an optional speech or audio analyzer.
type Analyzer string

const (
	AnalyzerVocabulary Analyzer = "vocabulary"
	AnalyzerLexical    Analyzer = "lexical"
	AnalyzerTopics     Analyzer = "topics"
	AnalyzerSentiment  Analyzer = "sentiment"
	AnalyzerGrammar    Analyzer = "grammar"
	AnalyzerProsody    Analyzer = "prosody"
)

// AllAnalyzers is the default analyzer set.
var AllAnalyzers = []Analyzer{
	AnalyzerVocabulary, AnalyzerLexical, AnalyzerTopics,
	AnalyzerSentiment, AnalyzerGrammar, AnalyzerProsody,
}

// NeedsLLM reports whether a runs on the LLM provider.
func (a Analyzer) NeedsLLM() bool {
	return a == AnalyzerTopics || a == AnalyzerSentiment || a == AnalyzerGrammar
}

// IsValid reports whether a is a known analyzer.
func (a Analyzer) IsValid() bool {
	for _, known := range AllAnalyzers {
		if a == known {
			return true
		}
	}
	return false
}

// NotifierBackend selects how progress events travel.
type NotifierBackend string

const (
	NotifierMemory NotifierBackend = "memory"
	NotifierRedis  NotifierBackend = "redis"
)

// Config is the root configuration, usually loaded with [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Worker    WorkerConfig    `yaml:"worker"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	ListenAddr string   `yaml:"listen_addr"`
	LogLevel   LogLevel `yaml:"log_level"`

	// AllowedOrigins lists the cross-origin hosts allowed to open WebSocket
	// streams (e.g. "app.example.com").
	AllowedOrigins []string `yaml:"allowed_origins"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProvidersConfig selects the transcription and LLM backends. Fallbacks are
// tried in order when the primary fails or its circuit is open.
type ProvidersConfig struct {
	Transcriber          ProviderEntry   `yaml:"transcriber"`
	TranscriberFallbacks []ProviderEntry `yaml:"transcriber_fallbacks"`
	LLM                  ProviderEntry   `yaml:"llm"`
	LLMFallbacks         []ProviderEntry `yaml:"llm_fallbacks"`
	CircuitBreaker       BreakerConfig   `yaml:"circuit_breaker"`
}

// ProviderEntry configures one backend. Name selects the factory in the
// [Registry].
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// Model is a model id for API backends and a model file for whisper-native.
	Model string `yaml:"model"`

	// Options carries backend-specific settings.
	Options map[string]any `yaml:"options"`
}

// Option returns the string value of a backend-specific option, or "".
func (e ProviderEntry) Option(key string) string {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// BreakerConfig tunes the per-backend circuit breakers.
type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
	Probes      int           `yaml:"probes"`
}

// AnalysisConfig tunes the pipeline.
type AnalysisConfig struct {
	// SilenceThresholdMs is the minimum gap counted as a pause. Hot-reloadable.
	SilenceThresholdMs int `yaml:"silence_threshold_ms"`

	// Language is the transcription language code.
	Language string `yaml:"language"`

	// StageTimeout bounds each pipeline stage. Zero disables the bound.
	StageTimeout time.Duration `yaml:"stage_timeout"`

	// Analyzers lists the optional analyzers to run. Empty means all.
	Analyzers []Analyzer `yaml:"analyzers"`
}

// Enabled reports whether a should run.
func (c AnalysisConfig) Enabled(a Analyzer) bool {
	if len(c.Analyzers) == 0 {
		return true
	}
	for _, x := range c.Analyzers {
		if x == a {
			return true
		}
	}
	return false
}

// StorageConfig controls where uploads live and what is accepted.
type StorageConfig struct {
	TempDir             string   `yaml:"temp_dir"`
	MaxUploadBytes      int64    `yaml:"max_upload_bytes"`
	AllowedContentTypes []string `yaml:"allowed_content_types"`
	FFmpegPath          string   `yaml:"ffmpeg_path"`
	FFprobePath         string   `yaml:"ffprobe_path"`
}

// DatabaseConfig selects the analysis repository. An empty DSN keeps
// analyses in memory.
type DatabaseConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// NotifierConfig selects the progress event broker.
type NotifierConfig struct {
	Backend       NotifierBackend `yaml:"backend"`
	RedisAddr     string          `yaml:"redis_addr"`
	RedisPassword string          `yaml:"redis_password"`
	RedisDB       int             `yaml:"redis_db"`

	// SubscribeTimeout closes a progress stream that saw no event for this
	// long.
	SubscribeTimeout time.Duration `yaml:"subscribe_timeout"`
}

// WorkerConfig sizes the background worker pool.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
	QueueSize   int `yaml:"queue_size"`
}

// MCPConfig toggles the MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}
