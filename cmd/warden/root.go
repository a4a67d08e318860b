package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	iconfig "github.com/wardenhq/warden/internal/config"
)

var (
	version    = "0.1.0"
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "warden",
		Short: "Autonomous Action Governor",
		Long: `Warden - Autonomous Action Governor

Warden stands between autonomous systems and production. Every proposed
action passes an ordered safety check chain - halt flag, confidence,
rate limit, blast radius - before it may execute, and execution falls
through prioritized paths ending in a human handoff that cannot fail.

Cascading failures trip a process-wide halt that survives restarts and
only an operator can clear.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Warden {{.Version}} - Autonomous Action Governor
`)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to warden.toml (defaults apply when unset)")
}

// loadRuntimeConfig resolves the --config flag
func loadRuntimeConfig() (*iconfig.Config, error) {
	if configPath == "" {
		return iconfig.Default(), nil
	}
	cfg, err := iconfig.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
