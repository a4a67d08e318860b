package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/dispatch"
	"github.com/wardenhq/warden/internal/daemon"
	"github.com/wardenhq/warden/types"
)

var (
	submitFile       string
	submitType       string
	submitTargets    []string
	submitTier       string
	submitConfidence float64
	submitReason     string
	submitWebhookURL string
)

// submitCmd represents the submit command
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Propose one action through the governance pipeline",
	Long: `Propose a single action and run it through the full pipeline:
safety evaluation, dispatch, lifecycle recording. Useful for testing
policies and for scripted one-off actions.

The action comes from a JSON file or from flags.`,
	Example: `  warden submit --file action.json
  warden submit --type restart --target svc-web --tier low --confidence 0.92 --reason "error spike"
  warden submit --type notify --target oncall --tier read_only --confidence 0.3 --reason "fyi"`,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitFile, "file", "", "Action JSON file")
	submitCmd.Flags().StringVar(&submitType, "type", "", "Action type (deploy, rollback, scale, restart, notify)")
	submitCmd.Flags().StringSliceVar(&submitTargets, "target", nil, "Target service or resource (repeatable)")
	submitCmd.Flags().StringVar(&submitTier, "tier", string(types.TierLow), "Risk tier (read_only, low, medium, high)")
	submitCmd.Flags().Float64Var(&submitConfidence, "confidence", 0, "Proposer confidence in [0,1]")
	submitCmd.Flags().StringVar(&submitReason, "reason", "", "Why this action is proposed")
	submitCmd.Flags().StringVar(&submitWebhookURL, "webhook", "", "Webhook execution endpoint")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	action, err := buildAction()
	if err != nil {
		return err
	}

	cfg, err := loadRuntimeConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	d, err := daemon.New(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	defer func() { _ = d.Close(ctx) }()

	if submitWebhookURL != "" {
		d.RegisterExecutor(dispatch.NewWebhookExecutor("webhook", submitWebhookURL))
	}

	result, err := d.Core().Submit(ctx, action)
	if result == nil {
		return err
	}
	printDecision(result.Decision)

	var policyErr *types.PolicyViolation
	if errors.As(err, &policyErr) {
		os.Exit(2)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Executed via %s path (%d attempt(s))\n", result.Dispatch.Path, len(result.Dispatch.Attempts))
	return nil
}

func buildAction() (types.Action, error) {
	if submitFile != "" {
		data, err := os.ReadFile(submitFile) // #nosec G304 -- operator-chosen path
		if err != nil {
			return types.Action{}, fmt.Errorf("read action file: %w", err)
		}
		var action types.Action
		if err := json.Unmarshal(data, &action); err != nil {
			return types.Action{}, fmt.Errorf("parse action file: %w", err)
		}
		if action.ID == "" {
			action.ID = uuid.NewString()
		}
		if action.ProposedAt.IsZero() {
			action.ProposedAt = time.Now()
		}
		return action, nil
	}

	return types.Action{
		ID:         uuid.NewString(),
		Type:       submitType,
		Targets:    submitTargets,
		RiskTier:   types.RiskTier(submitTier),
		Confidence: submitConfidence,
		Reason:     submitReason,
		ProposedAt: time.Now(),
	}, nil
}

func printDecision(decision types.Decision) {
	fmt.Printf("Action %s: %s", decision.ActionID, strings.ToUpper(string(decision.Verdict)))
	if len(decision.Reasons) > 0 {
		fmt.Printf(" (%s)", strings.Join(decision.Reasons, ", "))
	}
	fmt.Println()
}
