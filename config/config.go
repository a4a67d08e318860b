// Package config loads the YAML governance configuration.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/wardenhq/warden/types"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a field unset
const (
	DefaultConfidenceThreshold = 0.80
	DefaultMaxActionsPerHour   = 20
	DefaultMaxBlastRadius      = 3
	DefaultCascadingThreshold  = 3
	DefaultWindow              = time.Hour
	DefaultPathTimeout         = 30 * time.Second
	DefaultRecordRetention     = 7 * 24 * time.Hour
)

// Config is the governance configuration
type Config struct {
	Version   string          `yaml:"version"`
	Governor  GovernorConfig  `yaml:"governor"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Paths     []PathConfig    `yaml:"paths"`
	Rollback  RollbackConfig  `yaml:"rollback,omitempty"`
	Retention RetentionConfig `yaml:"retention,omitempty"`
}

// GovernorConfig holds the safety thresholds
type GovernorConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// TierThresholds override the default threshold per risk tier
	TierThresholds    map[types.RiskTier]float64 `yaml:"tier_thresholds,omitempty"`
	MaxActionsPerHour int                        `yaml:"max_actions_per_hour"`
	MaxBlastRadius    int                        `yaml:"max_blast_radius"`
	// PolicyDir optionally points at a directory of Rego veto policies
	PolicyDir string `yaml:"policy_dir,omitempty"`
	// ClassifierPolicy optionally points at a Rego file mapping targets to
	// blast units; distinct targets count individually when unset
	ClassifierPolicy string `yaml:"classifier_policy,omitempty"`
}

// Threshold returns the confidence threshold for a risk tier
func (g *GovernorConfig) Threshold(tier types.RiskTier) float64 {
	if t, ok := g.TierThresholds[tier]; ok {
		return t
	}
	return g.ConfidenceThreshold
}

// MonitorConfig holds the cascading failure settings
type MonitorConfig struct {
	CascadingThreshold int           `yaml:"cascading_threshold"`
	Window             time.Duration `yaml:"window"`
}

// PathConfig is one execution backend's dispatch settings
type PathConfig struct {
	Name                string        `yaml:"name" json:"name"`
	Enabled             bool          `yaml:"enabled" json:"enabled"`
	Priority            int           `yaml:"priority" json:"priority"`
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	ReliabilityEstimate float64       `yaml:"reliability_estimate,omitempty" json:"reliability_estimate,omitempty"`
}

// RollbackConfig decides whether a failed action rolls back automatically
// or waits for an operator
type RollbackConfig struct {
	Auto bool `yaml:"auto"`
}

// RetentionConfig bounds how long terminal records are kept
type RetentionConfig struct {
	Records time.Duration `yaml:"records"`
}

// Load reads, defaults and validates the governance config
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a fully defaulted config with the standard three paths
func Default() *Config {
	cfg := &Config{
		Version: "v1",
		Paths: []PathConfig{
			{Name: "local", Enabled: true, Priority: 1, Timeout: DefaultPathTimeout},
			{Name: "webhook", Enabled: true, Priority: 2, Timeout: DefaultPathTimeout},
			{Name: "manual", Enabled: true, Priority: 100, Timeout: DefaultPathTimeout},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields
func (c *Config) ApplyDefaults() {
	if c.Governor.ConfidenceThreshold == 0 {
		c.Governor.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.Governor.MaxActionsPerHour == 0 {
		c.Governor.MaxActionsPerHour = DefaultMaxActionsPerHour
	}
	if c.Governor.MaxBlastRadius == 0 {
		c.Governor.MaxBlastRadius = DefaultMaxBlastRadius
	}
	if c.Monitor.CascadingThreshold == 0 {
		c.Monitor.CascadingThreshold = DefaultCascadingThreshold
	}
	if c.Monitor.Window == 0 {
		c.Monitor.Window = DefaultWindow
	}
	if c.Retention.Records == 0 {
		c.Retention.Records = DefaultRecordRetention
	}
	for i := range c.Paths {
		if c.Paths[i].Timeout == 0 {
			c.Paths[i].Timeout = DefaultPathTimeout
		}
	}
}

// Validate rejects configurations the governor must not start with
func (c *Config) Validate() error {
	if c.Version == "" {
		return &types.ConfigurationError{Field: "version", Msg: "version is required"}
	}
	if t := c.Governor.ConfidenceThreshold; t < 0 || t > 1 {
		return &types.ConfigurationError{Field: "governor.confidence_threshold", Msg: fmt.Sprintf("%v outside [0,1]", t)}
	}
	for tier, t := range c.Governor.TierThresholds {
		if !tier.Valid() {
			return &types.ConfigurationError{Field: "governor.tier_thresholds", Msg: fmt.Sprintf("unknown tier %q", tier)}
		}
		if t < 0 || t > 1 {
			return &types.ConfigurationError{Field: "governor.tier_thresholds", Msg: fmt.Sprintf("%v outside [0,1]", t)}
		}
	}
	if c.Governor.MaxActionsPerHour < 1 {
		return &types.ConfigurationError{Field: "governor.max_actions_per_hour", Msg: "must be at least 1"}
	}
	if c.Governor.MaxBlastRadius < 1 {
		return &types.ConfigurationError{Field: "governor.max_blast_radius", Msg: "must be at least 1"}
	}
	if c.Monitor.CascadingThreshold < 1 {
		return &types.ConfigurationError{Field: "monitor.cascading_threshold", Msg: "must be at least 1"}
	}
	if c.Monitor.Window <= 0 {
		return &types.ConfigurationError{Field: "monitor.window", Msg: "must be positive"}
	}
	return c.validatePaths()
}

func (c *Config) validatePaths() error {
	if len(c.Paths) == 0 {
		return &types.ConfigurationError{Field: "paths", Msg: "at least one path is required"}
	}

	names := make(map[string]bool, len(c.Paths))
	anyEnabled := false
	for i, p := range c.Paths {
		if p.Name == "" {
			return &types.ConfigurationError{Field: "paths", Msg: fmt.Sprintf("path %d has no name", i)}
		}
		if names[p.Name] {
			return &types.ConfigurationError{Field: "paths", Msg: fmt.Sprintf("duplicate path %q", p.Name)}
		}
		names[p.Name] = true
		if p.Timeout <= 0 {
			return &types.ConfigurationError{Field: "paths", Msg: fmt.Sprintf("path %q has non-positive timeout", p.Name)}
		}
		if p.ReliabilityEstimate < 0 || p.ReliabilityEstimate > 1 {
			return &types.ConfigurationError{Field: "paths", Msg: fmt.Sprintf("path %q reliability outside [0,1]", p.Name)}
		}
		if p.Enabled {
			anyEnabled = true
		}
	}
	if !anyEnabled {
		return &types.ConfigurationError{Field: "paths", Msg: "no path is enabled"}
	}
	return nil
}

// EnabledPaths returns the enabled paths sorted by ascending priority
func (c *Config) EnabledPaths() []PathConfig {
	var enabled []PathConfig
	for _, p := range c.Paths {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority < enabled[j].Priority
	})
	return enabled
}
