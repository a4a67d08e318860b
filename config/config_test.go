package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/wardenhq/warden/types"
)

func TestLoad(t *testing.T) {
	content := `
version: v1

governor:
  confidence_threshold: 0.85
  tier_thresholds:
    high: 0.95
  max_actions_per_hour: 10
  max_blast_radius: 2

monitor:
  cascading_threshold: 3
  window: 1h

paths:
  - name: local
    enabled: true
    priority: 1
    timeout: 5s
    reliability_estimate: 0.99
  - name: webhook
    enabled: false
    priority: 2
  - name: manual
    enabled: true
    priority: 100

rollback:
  auto: true
`
	tmpfile, err := os.CreateTemp("", "warden-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Governor.ConfidenceThreshold != 0.85 {
		t.Errorf("ConfidenceThreshold = %v, want 0.85", cfg.Governor.ConfidenceThreshold)
	}
	if got := cfg.Governor.Threshold(types.TierHigh); got != 0.95 {
		t.Errorf("Threshold(high) = %v, want 0.95", got)
	}
	if got := cfg.Governor.Threshold(types.TierLow); got != 0.85 {
		t.Errorf("Threshold(low) = %v, want default 0.85", got)
	}
	if cfg.Governor.MaxActionsPerHour != 10 {
		t.Errorf("MaxActionsPerHour = %v, want 10", cfg.Governor.MaxActionsPerHour)
	}
	if !cfg.Rollback.Auto {
		t.Error("Rollback.Auto should be true")
	}

	// webhook disabled: only local and manual remain, in priority order
	enabled := cfg.EnabledPaths()
	if len(enabled) != 2 {
		t.Fatalf("EnabledPaths() = %d paths, want 2", len(enabled))
	}
	if enabled[0].Name != "local" || enabled[1].Name != "manual" {
		t.Errorf("EnabledPaths() order = [%s %s], want [local manual]", enabled[0].Name, enabled[1].Name)
	}

	// webhook path got the default timeout even though disabled
	if cfg.Paths[1].Timeout != DefaultPathTimeout {
		t.Errorf("webhook timeout = %v, want default %v", cfg.Paths[1].Timeout, DefaultPathTimeout)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() config invalid: %v", err)
	}
	if cfg.Governor.MaxActionsPerHour != DefaultMaxActionsPerHour {
		t.Errorf("MaxActionsPerHour = %v, want %v", cfg.Governor.MaxActionsPerHour, DefaultMaxActionsPerHour)
	}
	if cfg.Monitor.Window != time.Hour {
		t.Errorf("Window = %v, want 1h", cfg.Monitor.Window)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing version", func(c *Config) { c.Version = "" }},
		{"threshold above one", func(c *Config) { c.Governor.ConfidenceThreshold = 1.2 }},
		{"bad tier name", func(c *Config) {
			c.Governor.TierThresholds = map[types.RiskTier]float64{"extreme": 0.5}
		}},
		{"zero rate limit", func(c *Config) { c.Governor.MaxActionsPerHour = -1 }},
		{"zero blast radius", func(c *Config) { c.Governor.MaxBlastRadius = -1 }},
		{"no paths", func(c *Config) { c.Paths = nil }},
		{"duplicate paths", func(c *Config) {
			c.Paths = append(c.Paths, c.Paths[0])
		}},
		{"all paths disabled", func(c *Config) {
			for i := range c.Paths {
				c.Paths[i].Enabled = false
			}
		}},
		{"negative window", func(c *Config) { c.Monitor.Window = -time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should have failed")
			}
			var cfgErr *types.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("error type = %T, want *types.ConfigurationError", err)
			}
		})
	}
}
