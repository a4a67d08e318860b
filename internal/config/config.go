// Package config handles the TOML runtime configuration for the warden
// daemon: where data lives, how telemetry is exported and how often the
// loop runs. Governance policy (thresholds, paths) lives in the YAML
// governance file and is loaded separately.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Data   DataConfig   `toml:"data"`
	Loop   LoopConfig   `toml:"loop"`
	Server ServerConfig `toml:"server"`
	OTEL   OTELConfig   `toml:"otel"`
	Log    LogConfig    `toml:"log"`
}

// DataConfig holds storage locations. PolicyDir is a fallback for
// deployments that keep veto policies next to the data dir instead of
// naming them in the governance file.
type DataConfig struct {
	Dir            string `toml:"dir"`
	TicketDir      string `toml:"ticket_dir"`
	InboxDir       string `toml:"inbox_dir"`
	GovernanceFile string `toml:"governance_file"`
	PolicyDir      string `toml:"policy_dir"`
}

// LoopConfig holds observe-decide-act loop settings.
type LoopConfig struct {
	IntervalStr string `toml:"interval"`
	Interval    time.Duration
	OneShot     bool `toml:"one_shot"`
}

// ServerConfig holds the metrics/health HTTP listener settings.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint"`
	Insecure    bool          `toml:"insecure"`
	ServiceName string        `toml:"service_name"`
	Traces      TracesConfig  `toml:"traces"`
	Metrics     MetricsConfig `toml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled"`
	SampleRate float64 `toml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-chosen
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseInterval(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Loop.Interval, _ = time.ParseDuration(cfg.Loop.IntervalStr)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "/var/lib/warden"
	}
	if cfg.Data.TicketDir == "" {
		cfg.Data.TicketDir = cfg.Data.Dir + "/tickets"
	}
	if cfg.Data.InboxDir == "" {
		cfg.Data.InboxDir = cfg.Data.Dir + "/inbox"
	}
	if cfg.Loop.IntervalStr == "" {
		cfg.Loop.IntervalStr = "30s"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":9464"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "warden"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func parseInterval(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Loop.IntervalStr)
	if err != nil {
		return fmt.Errorf("parse interval %q: %w", cfg.Loop.IntervalStr, err)
	}
	cfg.Loop.Interval = d
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if c.Loop.Interval <= 0 {
		return fmt.Errorf("loop: interval must be positive (got %v)", c.Loop.Interval)
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}
