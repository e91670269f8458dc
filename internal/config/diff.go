package config

import "reflect"

// ConfigDiff describes what changed between two configs. Only the log level
// and the silence threshold are applied live; any other change is listed in
// Restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SilenceThresholdChanged bool
	NewSilenceThresholdMs   int

	// Restart names the sections whose changes take effect on restart.
	Restart []string
}

// IsEmpty reports whether the configs were equivalent.
func (d ConfigDiff) IsEmpty() bool {
	return !d.LogLevelChanged && !d.SilenceThresholdChanged && len(d.Restart) == 0
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff
	if old == nil || new == nil {
		return d
	}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Analysis.SilenceThresholdMs != new.Analysis.SilenceThresholdMs {
		d.SilenceThresholdChanged = true
		d.NewSilenceThresholdMs = new.Analysis.SilenceThresholdMs
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	oldAnalysis, newAnalysis := old.Analysis, new.Analysis
	oldAnalysis.SilenceThresholdMs, newAnalysis.SilenceThresholdMs = 0, 0

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"providers", old.Providers, new.Providers},
		{"analysis", oldAnalysis, newAnalysis},
		{"storage", old.Storage, new.Storage},
		{"database", old.Database, new.Database},
		{"notifier", old.Notifier, new.Notifier},
		{"worker", old.Worker, new.Worker},
		{"mcp", old.MCP, new.MCP},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.Restart = append(d.Restart, s.name)
		}
	}
	return d
}
