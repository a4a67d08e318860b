package types

import "time"

// ActionState is one step of an action's lifecycle
type ActionState string

const (
	StatePending     ActionState = "pending"
	StateExecuting   ActionState = "executing"
	StateSucceeded   ActionState = "succeeded"
	StateFailed      ActionState = "failed"
	StateRollingBack ActionState = "rolling_back"
	StateRolledBack  ActionState = "rolled_back"
)

// Terminal reports whether no further transitions are expected.
// FAILED is terminal until a rollback is initiated.
func (s ActionState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateRolledBack:
		return true
	}
	return false
}

// AttemptOutcome is the result of one path attempt
type AttemptOutcome string

const (
	OutcomeSuccess   AttemptOutcome = "success"
	OutcomeFailed    AttemptOutcome = "failed"
	OutcomeTimeout   AttemptOutcome = "timeout"
	OutcomeExhausted AttemptOutcome = "exhausted" // Every enabled path failed
	OutcomeHalted    AttemptOutcome = "halted"    // Remaining paths skipped after a halt trip
)

// ExecutionAttempt is one try of one path for one action. Append-only.
type ExecutionAttempt struct {
	ActionID   string         `json:"action_id"`
	Path       string         `json:"path"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Outcome    AttemptOutcome `json:"outcome"`
	Error      string         `json:"error,omitempty"`
}

// ActionRecord is the lifecycle instance for one admitted action.
// Exactly one active record per action id at a time.
type ActionRecord struct {
	Action    Action             `json:"action"`
	State     ActionState        `json:"state"`
	Attempts  []ExecutionAttempt `json:"attempts,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ActionID returns the id of the underlying action
func (r *ActionRecord) ActionID() string {
	return r.Action.ID
}

// CountsAsFailure reports whether the record's terminal state feeds the
// cascading failure window
func (r *ActionRecord) CountsAsFailure() bool {
	return r.State == StateFailed || r.State == StateRolledBack
}

// HaltStatus is a read-only snapshot of the process-wide autonomy switch
type HaltStatus struct {
	Active    bool      `json:"active"`
	Reason    string    `json:"reason,omitempty"`
	TrippedAt time.Time `json:"tripped_at,omitempty"`
}
