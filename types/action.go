package types

import (
	"fmt"
	"time"
)

// Action types understood by the dispatch paths
const (
	ActionDeploy   = "deploy"   // Roll out a new version of a service
	ActionRollback = "rollback" // Revert a service to its previous version
	ActionScale    = "scale"    // Change replica/instance count
	ActionRestart  = "restart"  // Restart a service
	ActionNotify   = "notify"   // Send a notification only
)

// RiskTier classifies how dangerous an action is if it goes wrong
type RiskTier string

const (
	TierReadOnly RiskTier = "read_only" // Observing, notifying - cannot break anything
	TierLow      RiskTier = "low"
	TierMedium   RiskTier = "medium"
	TierHigh     RiskTier = "high"
)

// Valid reports whether the tier is one of the known tiers
func (t RiskTier) Valid() bool {
	switch t {
	case TierReadOnly, TierLow, TierMedium, TierHigh:
		return true
	}
	return false
}

// Action is a proposed autonomous operation. Immutable once created.
//
// Confidence is in [0,1]. A zero value means "no confidence" - an action
// submitted without a score fails closed.
type Action struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Targets    []string       `json:"targets"`
	RiskTier   RiskTier       `json:"risk_tier"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason,omitempty"`
	ProposedAt time.Time      `json:"proposed_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Validate ensures the action is well formed
func (a *Action) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("action id cannot be empty")
	}
	if a.Type == "" {
		return fmt.Errorf("action type cannot be empty")
	}
	if len(a.Targets) == 0 {
		return fmt.Errorf("action must name at least one target")
	}
	for i, target := range a.Targets {
		if target == "" {
			return fmt.Errorf("action target %d is empty", i)
		}
	}
	if !a.RiskTier.Valid() {
		return fmt.Errorf("unknown risk tier %q", a.RiskTier)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", a.Confidence)
	}
	return nil
}

// IsReadOnly reports whether the action cannot modify infrastructure
func (a *Action) IsReadOnly() bool {
	return a.RiskTier == TierReadOnly
}
