package types

import "time"

// Verdict is the governor's answer for one action
type Verdict string

const (
	VerdictAllow    Verdict = "allow"
	VerdictDeny     Verdict = "deny"
	VerdictEscalate Verdict = "escalate" // Needs a human before it may run
)

// Decision reasons, stable strings for audit and tests
const (
	ReasonHalted        = "halted"
	ReasonLowConfidence = "low_confidence"
	ReasonRateLimited   = "rate_limited"
	ReasonBlastRadius   = "blast_radius_exceeded"
	ReasonInvalidAction = "invalid_action"
	ReasonPolicyDenied  = "policy_denied"
	ReasonAdmitted      = "admitted"
)

// Decision is the governor's verdict on one action. One per evaluation,
// recorded for audit regardless of outcome.
type Decision struct {
	ActionID    string    `json:"action_id"`
	Verdict     Verdict   `json:"verdict"`
	Reasons     []string  `json:"reasons"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Allowed reports whether the action may be dispatched
func (d *Decision) Allowed() bool {
	return d.Verdict == VerdictAllow
}

// Reason returns the first (primary) reason, or "" when none was recorded
func (d *Decision) Reason() string {
	if len(d.Reasons) == 0 {
		return ""
	}
	return d.Reasons[0]
}
