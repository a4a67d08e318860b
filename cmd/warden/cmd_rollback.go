package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/daemon"
)

// rollbackCmd represents the rollback command
var rollbackCmd = &cobra.Command{
	Use:   "rollback <action-id>",
	Short: "Roll back a failed action",
	Long: `Reverse a failed action through the path that last touched it. Only
records in the FAILED state can be rolled back; anything else is
rejected without changing the record.`,
	Example: `  warden rollback 7d4c2f1a`,
	Args:    cobra.ExactArgs(1),
	RunE:    runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	actionID := args[0]
	return withPipeline(func(ctx context.Context, d *daemon.Daemon) error {
		if err := d.Core().Rollback(ctx, actionID); err != nil {
			return err
		}
		fmt.Printf("Action %s rolled back\n", actionID)
		return nil
	})
}
