package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// configRoot is the top-level wrapper matching the YAML structure `pcaplens: ...`.
type configRoot struct {
	Pcaplens GlobalConfig `mapstructure:"pcaplens"`
}

// Load loads configuration from file. An empty path yields the defaults,
// still subject to environment overrides.
// The YAML file uses `pcaplens:` as root key; env vars use the PCAPLENS_ prefix (e.g., PCAPLENS_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `pcaplens.` key prefix maps to `PCAPLENS_` via the key replacer
	// (e.g., key "pcaplens.log.level" → env "PCAPLENS_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Pcaplens

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "pcaplens." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("pcaplens.log.level", "info")
	v.SetDefault("pcaplens.log.format", "text")
	v.SetDefault("pcaplens.log.outputs.file.enabled", false)
	v.SetDefault("pcaplens.log.outputs.file.path", "/var/log/pcaplens/pcaplens.log")
	v.SetDefault("pcaplens.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("pcaplens.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("pcaplens.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("pcaplens.log.outputs.file.rotation.compress", true)
	v.SetDefault("pcaplens.log.outputs.loki.enabled", false)
	v.SetDefault("pcaplens.log.outputs.loki.endpoint", "")
	v.SetDefault("pcaplens.log.outputs.loki.batch_size", 100)
	v.SetDefault("pcaplens.log.outputs.loki.batch_timeout", "1s")

	// Analysis defaults
	v.SetDefault("pcaplens.analysis.resolve_hostnames", true)
	v.SetDefault("pcaplens.analysis.resolve_timeout", "2s")
	v.SetDefault("pcaplens.analysis.resolver_cache_ttl", "10m")
	v.SetDefault("pcaplens.analysis.vendor_lookup", true)
	v.SetDefault("pcaplens.analysis.bpf_filter", "")

	// Output defaults
	v.SetDefault("pcaplens.output.format", "json")
	v.SetDefault("pcaplens.output.pretty", false)

	// Server defaults
	v.SetDefault("pcaplens.server.listen", ":8000")
	v.SetDefault("pcaplens.server.max_upload_mb", 100)
	v.SetDefault("pcaplens.server.request_timeout", "2m")
	v.SetDefault("pcaplens.server.temp_dir", "")

	// Metrics defaults
	v.SetDefault("pcaplens.metrics.enabled", true)
	v.SetDefault("pcaplens.metrics.listen", ":9091")
	v.SetDefault("pcaplens.metrics.path", "/metrics")
}
