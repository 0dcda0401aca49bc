// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"time"

	"firestige.xyz/pcaplens/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `pcaplens:` root key in YAML.
type GlobalConfig struct {
	Log      LogConfig      `mapstructure:"log"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Output   OutputConfig   `mapstructure:"output"`
	Sinks    []SinkConfig   `mapstructure:"sinks"`
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ─── Analysis ───

// AnalysisConfig controls the lookups and filtering of one run.
type AnalysisConfig struct {
	ResolveHostnames bool          `mapstructure:"resolve_hostnames"`
	ResolveTimeout   time.Duration `mapstructure:"resolve_timeout"`    // Per reverse lookup
	ResolverCacheTTL time.Duration `mapstructure:"resolver_cache_ttl"` // Positive and negative answers
	VendorLookup     bool          `mapstructure:"vendor_lookup"`
	BPFFilter        string        `mapstructure:"bpf_filter"` // Empty = every frame
}

// ─── Output ───

// OutputConfig selects how results are printed to stdout.
type OutputConfig struct {
	Format string `mapstructure:"format"` // json / yaml / table
	Pretty bool   `mapstructure:"pretty"`
}

// SinkConfig declares one additional result destination.
type SinkConfig struct {
	Type    string         `mapstructure:"type"` // stdout / file / kafka
	Options map[string]any `mapstructure:"options"`
}

// ─── HTTP Server ───

// ServerConfig configures the upload endpoint.
type ServerConfig struct {
	Listen         string        `mapstructure:"listen"`
	MaxUploadMB    int64         `mapstructure:"max_upload_mb"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TempDir        string        `mapstructure:"temp_dir"` // Empty = os.TempDir()
}

// MaxUploadBytes returns the upload limit in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB << 20
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
	Loki LokiOutputConfig `mapstructure:"loki"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`  // MB
	MaxAgeDays int  `mapstructure:"max_age_days"` // Days
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// LokiOutputConfig configures Loki log output.
type LokiOutputConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	Endpoint     string            `mapstructure:"endpoint"`
	Labels       map[string]string `mapstructure:"labels"`
	BatchSize    int               `mapstructure:"batch_size"`
	BatchTimeout string            `mapstructure:"batch_timeout"`
}

// ValidateAndApplyDefaults validates configuration and fills runtime
// defaults that viper cannot express.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return invalid("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}
	if cfg.Log.Outputs.Loki.Enabled && cfg.Log.Outputs.Loki.Endpoint == "" {
		return invalid("log.outputs.loki.endpoint is required when loki output is enabled")
	}
	if bt := cfg.Log.Outputs.Loki.BatchTimeout; bt != "" {
		if _, err := time.ParseDuration(bt); err != nil {
			return invalid("invalid log.outputs.loki.batch_timeout: %s", bt)
		}
	}

	// ── Analysis ──
	if cfg.Analysis.ResolveTimeout < 0 || cfg.Analysis.ResolverCacheTTL < 0 {
		return invalid("analysis timeouts must not be negative")
	}

	// ── Output ──
	switch cfg.Output.Format {
	case "json", "yaml", "table":
	default:
		return invalid("invalid output format: %s (must be json/yaml/table)", cfg.Output.Format)
	}
	for i, s := range cfg.Sinks {
		if s.Type == "" {
			return invalid("sinks[%d].type is required", i)
		}
		if s.Options == nil {
			cfg.Sinks[i].Options = map[string]any{}
		}
	}

	// ── Server ──
	if cfg.Server.Listen == "" {
		return invalid("server.listen is required")
	}
	if cfg.Server.MaxUploadMB <= 0 {
		return invalid("server.max_upload_mb must be positive, got %d", cfg.Server.MaxUploadMB)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return invalid("server.request_timeout must be positive")
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics are enabled")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}
