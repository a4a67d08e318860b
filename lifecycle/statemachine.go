// Package lifecycle tracks action records through their state machine.
package lifecycle

import (
	"time"

	"github.com/wardenhq/warden/types"
)

// validTransitions is the full transition table. Monotonic except the
// explicit FAILED -> ROLLING_BACK -> ROLLED_BACK branch.
var validTransitions = map[types.ActionState][]types.ActionState{
	types.StatePending:     {types.StateExecuting},
	types.StateExecuting:   {types.StateSucceeded, types.StateFailed},
	types.StateFailed:      {types.StateRollingBack},
	types.StateRollingBack: {types.StateRolledBack},
}

// CanTransition reports whether from -> to is a legal move
func CanTransition(from, to types.ActionState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NewRecord creates the lifecycle record for an admitted action
func NewRecord(action types.Action, now time.Time) *types.ActionRecord {
	return &types.ActionRecord{
		Action:    action,
		State:     types.StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves a record to the next state. An illegal move returns
// StateTransitionError and leaves the record untouched; callers log the
// error and drop the triggering event.
func Transition(record *types.ActionRecord, to types.ActionState, now time.Time) error {
	if !CanTransition(record.State, to) {
		return &types.StateTransitionError{
			ActionID: record.ActionID(),
			From:     record.State,
			To:       to,
		}
	}
	record.State = to
	record.UpdatedAt = now
	return nil
}

// AppendAttempt adds one path attempt to the record's audit trail
func AppendAttempt(record *types.ActionRecord, attempt types.ExecutionAttempt) {
	record.Attempts = append(record.Attempts, attempt)
	record.UpdatedAt = attempt.FinishedAt
}
