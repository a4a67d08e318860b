package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/daemon"
)

var haltReason string

// haltCmd represents the halt command
var haltCmd = &cobra.Command{
	Use:   "halt",
	Short: "Suspend all autonomous execution",
	Long: `Trip the process-wide halt flag. Every action submitted after this
is denied until an operator runs 'warden resume'. The flag is
persisted, so it survives daemon restarts.`,
	Example: `  warden halt --reason "incident INC-4211 in progress"`,
	RunE:    runHalt,
}

// resumeCmd represents the resume command
var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Clear the halt flag and re-enable autonomy",
	Long: `Clear the persisted halt flag. Only run this after reviewing what
tripped it - the failure window starts empty afterwards, so the next
cascading failure needs the full threshold to trip again.`,
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(haltCmd)
	rootCmd.AddCommand(resumeCmd)

	haltCmd.Flags().StringVar(&haltReason, "reason", "manual", "Why autonomy is being suspended")
}

func runHalt(cmd *cobra.Command, args []string) error {
	return withPipeline(func(ctx context.Context, d *daemon.Daemon) error {
		d.Core().Halt(ctx, haltReason)
		fmt.Printf("Autonomy suspended: %s\n", haltReason)
		return nil
	})
}

func runResume(cmd *cobra.Command, args []string) error {
	return withPipeline(func(ctx context.Context, d *daemon.Daemon) error {
		status := d.Core().Status()
		if !status.Active {
			fmt.Println("Autonomy is not suspended")
			return nil
		}
		d.Core().Resume(ctx)
		fmt.Printf("Autonomy resumed (was halted since %s: %s)\n",
			status.TrippedAt.Format("2006-01-02 15:04:05"), status.Reason)
		return nil
	})
}

// withPipeline runs fn against a short-lived pipeline over the
// configured data dir
func withPipeline(fn func(context.Context, *daemon.Daemon) error) error {
	cfg, err := loadRuntimeConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	d, err := daemon.New(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("open pipeline: %w", err)
	}
	defer func() { _ = d.Close(ctx) }()
	return fn(ctx, d)
}
