package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	govconfig "github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/storage"
	"github.com/wardenhq/warden/wal"
)

var cleanupDryRun bool

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Evict old records and journal files",
	Long: `Remove terminal action records older than the configured retention
and journal files past their retention window. Active records and the
halt flag are never touched.`,
	Example: `  warden cleanup
  warden cleanup --dry-run`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Report what would be removed without removing it")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadRuntimeConfig()
	if err != nil {
		return err
	}

	governance := govconfig.Default()
	if cfg.Data.GovernanceFile != "" {
		governance, err = govconfig.Load(cfg.Data.GovernanceFile)
		if err != nil {
			return err
		}
	}

	walConfig := wal.DefaultConfig()
	if cleanupDryRun {
		fmt.Printf("Dry run: journal retention %d day(s), record retention %s\n",
			walConfig.RetentionDays, governance.Retention.Records)
		return nil
	}

	stats, err := wal.CleanupWithStats(cfg.Data.Dir, walConfig)
	if err != nil {
		return fmt.Errorf("remove journal files: %w", err)
	}
	fmt.Printf("Journal: %d file(s) removed, %d bytes freed\n", stats.FilesRemoved, stats.BytesFreed)

	store, err := storage.NewRecordStore(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer func() { _ = store.Close() }()

	cutoff := time.Now().Add(-governance.Retention.Records)
	evicted, err := store.EvictBefore(cutoff)
	if err != nil {
		return fmt.Errorf("evict records: %w", err)
	}
	fmt.Printf("Records: %d revision(s) evicted (older than %s)\n", evicted, governance.Retention.Records)
	return nil
}
