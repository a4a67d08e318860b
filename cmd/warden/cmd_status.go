package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/daemon"
	"github.com/wardenhq/warden/types"
)

var statusActionID string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show governance state",
	Long: `Show the halt flag and, with --action, the recorded lifecycle of a
single action including every path attempt.`,
	Example: `  warden status
  warden status --action 7d4c2f1a`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusActionID, "action", "", "Show one action's record")
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withPipeline(func(ctx context.Context, d *daemon.Daemon) error {
		if statusActionID != "" {
			return printActionRecord(d, statusActionID)
		}

		status := d.Core().Status()
		if status.Active {
			fmt.Printf("HALTED since %s: %s\n",
				status.TrippedAt.Format("2006-01-02 15:04:05"), status.Reason)
		} else {
			fmt.Println("Autonomy active")
		}
		return nil
	})
}

func printActionRecord(d *daemon.Daemon, actionID string) error {
	record, err := d.Core().Record(actionID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("unknown action %s", actionID)
	}

	fmt.Printf("Action %s (%s)\n", record.Action.ID, record.Action.Type)
	fmt.Printf("  state:      %s\n", record.State)
	fmt.Printf("  targets:    %v\n", record.Action.Targets)
	fmt.Printf("  confidence: %.2f\n", record.Action.Confidence)
	fmt.Printf("  updated:    %s\n", record.UpdatedAt.Format("2006-01-02 15:04:05"))
	if len(record.Attempts) > 0 {
		fmt.Println("  attempts:")
		for _, attempt := range record.Attempts {
			printAttempt(attempt)
		}
	}
	return nil
}

func printAttempt(attempt types.ExecutionAttempt) {
	line := fmt.Sprintf("    %-10s %-9s %s", attempt.Path, attempt.Outcome,
		attempt.FinishedAt.Sub(attempt.StartedAt).Round(time.Millisecond))
	if attempt.Error != "" {
		line += " - " + attempt.Error
	}
	fmt.Println(line)
}
