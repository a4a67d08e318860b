package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/dispatch"
	"github.com/wardenhq/warden/internal/daemon"
)

var (
	daemonInterval   time.Duration
	daemonAddr       string
	daemonDataDir    string
	daemonInbox      string
	daemonGovernance string
	daemonWebhookURL string
	daemonOneShot    bool
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the governance daemon",
	Long: `Run Warden in daemon mode.

The daemon polls the inbox directory for candidate actions on the
configured interval, evaluates each one against the safety policy,
dispatches admitted actions through the path chain, and records every
decision and state change for audit. Detectors propose actions by
dropping one JSON file per action into the inbox.

Features:
- Observe-decide-act loop with graceful shutdown
- Prometheus metrics on /metrics, health on /healthz
- Governance config hot reload for dispatch paths
- Persistent halt flag and action history`,
	Example: `  warden daemon                                # Run with defaults
  warden daemon --interval 15s                 # Poll every 15 seconds
  warden daemon --addr :9100                   # Custom metrics listener
  warden daemon --governance governance.yaml   # Explicit policy file
  warden daemon --webhook https://exec.internal/hooks/warden
  warden daemon --one-shot                     # Single cycle, then exit`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Loop interval (overrides config)")
	daemonCmd.Flags().StringVar(&daemonAddr, "addr", "", "Metrics HTTP listen address (overrides config)")
	daemonCmd.Flags().StringVar(&daemonDataDir, "data-dir", "", "Data directory (overrides config)")
	daemonCmd.Flags().StringVar(&daemonInbox, "inbox", "", "Action drop directory (overrides config)")
	daemonCmd.Flags().StringVar(&daemonGovernance, "governance", "", "Governance YAML file (overrides config)")
	daemonCmd.Flags().StringVar(&daemonWebhookURL, "webhook", "", "Webhook execution endpoint")
	daemonCmd.Flags().BoolVar(&daemonOneShot, "one-shot", false, "Run a single cycle and exit")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadRuntimeConfig()
	if err != nil {
		return err
	}
	if daemonInterval > 0 {
		cfg.Loop.Interval = daemonInterval
	}
	if daemonAddr != "" {
		cfg.Server.Addr = daemonAddr
	}
	if daemonDataDir != "" {
		cfg.Data.Dir = daemonDataDir
		cfg.Data.TicketDir = daemonDataDir + "/tickets"
		cfg.Data.InboxDir = daemonDataDir + "/inbox"
	}
	if daemonInbox != "" {
		cfg.Data.InboxDir = daemonInbox
	}
	if daemonGovernance != "" {
		cfg.Data.GovernanceFile = daemonGovernance
	}
	if daemonOneShot {
		cfg.Loop.OneShot = true
	}

	ctx := context.Background()
	source, err := daemon.NewDropDirSource(cfg.Data.InboxDir)
	if err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	d, err := daemon.New(ctx, cfg, source)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer func() { _ = d.Close(ctx) }()

	if daemonWebhookURL != "" {
		d.RegisterExecutor(dispatch.NewWebhookExecutor("webhook", daemonWebhookURL))
	}

	fmt.Printf("Warden daemon starting\n")
	fmt.Printf("  data:     %s\n", cfg.Data.Dir)
	fmt.Printf("  inbox:    %s\n", cfg.Data.InboxDir)
	fmt.Printf("  interval: %s\n", cfg.Loop.Interval)
	fmt.Printf("  metrics:  http://localhost%s/metrics\n", cfg.Server.Addr)

	return d.Run(ctx)
}
