package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/wal"
)

var (
	auditSince  time.Duration
	auditAction string
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Replay the decision journal",
	Long: `Print the write-ahead journal: every proposal, decision, dispatch
attempt, state change and halt event in order. This is the record an
incident review works from.`,
	Example: `  warden audit                      # Everything retained
  warden audit --since 2h           # Last two hours
  warden audit --action 7d4c2f1a    # One action's trail`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "Only entries newer than this")
	auditCmd.Flags().StringVar(&auditAction, "action", "", "Only entries for one action")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadRuntimeConfig()
	if err != nil {
		return err
	}

	since := time.Time{}
	if auditSince > 0 {
		since = time.Now().Add(-auditSince)
	}

	count := 0
	err = wal.Replay(cfg.Data.Dir, since, func(entry *wal.Entry) error {
		if auditAction != "" && entry.ActionID != auditAction {
			return nil
		}
		printEntry(entry)
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}

	fmt.Printf("\n%d entries\n", count)
	return nil
}

func printEntry(entry *wal.Entry) {
	line := fmt.Sprintf("%s  #%-6d %-12s", entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Sequence, entry.Type)
	if entry.ActionID != "" {
		line += " " + entry.ActionID
	}
	if entry.Error != "" {
		line += "  error=" + entry.Error
	}
	fmt.Println(line)
	if len(entry.Data) > 0 {
		fmt.Printf("    %s\n", entry.Data)
	}
}
