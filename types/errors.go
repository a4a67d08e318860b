package types

import (
	"fmt"
	"strings"
)

// PolicyViolation means the governor refused the action. Terminal for that
// action instance - retrying requires proposing a new action.
type PolicyViolation struct {
	ActionID string
	Verdict  Verdict
	Reasons  []string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("action %s %s: %s", e.ActionID, e.Verdict, strings.Join(e.Reasons, ", "))
}

// AdapterFailure is one failed path attempt. The dispatcher recovers from
// these by trying the next path; it never surfaces alone.
type AdapterFailure struct {
	Path string
	Err  error
}

func (e *AdapterFailure) Error() string {
	return fmt.Sprintf("path %s: %v", e.Path, e.Err)
}

func (e *AdapterFailure) Unwrap() error {
	return e.Err
}

// DispatchExhausted means every enabled path failed for the action
type DispatchExhausted struct {
	ActionID string
	Attempts int
}

func (e *DispatchExhausted) Error() string {
	return fmt.Sprintf("action %s: all %d path attempts failed", e.ActionID, e.Attempts)
}

// StateTransitionError reports an invalid state-machine move. The triggering
// event is logged and dropped; the record stays unchanged.
type StateTransitionError struct {
	ActionID string
	From     ActionState
	To       ActionState
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("action %s: invalid transition %s -> %s", e.ActionID, e.From, e.To)
}

// ConfigurationError means startup configuration is invalid. The governor
// refuses to start rather than run with bad thresholds.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Msg)
}
