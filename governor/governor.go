// Package governor decides whether a proposed autonomous action is safe to
// run. Checks apply in strict order; the first match wins.
package governor

import (
	"context"
	"time"

	"github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/telemetry"
	"github.com/wardenhq/warden/types"
)

// HaltReader exposes the autonomy kill switch to the check chain
type HaltReader interface {
	Active() bool
}

// InFlightSource accounts for the targets of admitted actions,
// implemented by the lifecycle tracker. ReserveTargets must evaluate
// admit and record the reservation under one lock, so blast radius
// admission cannot race with itself.
type InFlightSource interface {
	InFlightTargets() []string
	ReserveTargets(actionID string, targets []string, admit func(inFlight []string) bool) bool
	ReleaseTargets(actionID string)
}

// Classifier maps a raw target to its blast unit. The counting rule
// (service, region, environment) is a deployment decision, so it is a
// predicate, not a hard-coded interpretation.
type Classifier interface {
	Unit(target string) string
}

// IdentityClassifier counts each distinct target as its own blast unit
type IdentityClassifier struct{}

func (IdentityClassifier) Unit(target string) string { return target }

// Vetoer is an optional extra policy gate consulted after the built-in
// checks, implemented by the OPA policy engine.
type Vetoer interface {
	Veto(ctx context.Context, action types.Action, inFlight []string) (bool, string, error)
}

// Governor evaluates actions against the safety policy
type Governor struct {
	cfg        config.GovernorConfig
	halt       HaltReader
	inFlight   InFlightSource
	classifier Classifier
	vetoer     Vetoer
	window     *admissionWindow
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time
}

// New creates a governor. The configuration must already be validated;
// thresholds are trusted here.
func New(cfg config.GovernorConfig, halt HaltReader, inFlight InFlightSource) *Governor {
	return &Governor{
		cfg:        cfg,
		halt:       halt,
		inFlight:   inFlight,
		classifier: IdentityClassifier{},
		window:     newAdmissionWindow(cfg.MaxActionsPerHour, time.Hour),
		logger:     telemetry.NewLogger("governor"),
		now:        time.Now,
	}
}

// WithClassifier overrides the blast-unit predicate
func (g *Governor) WithClassifier(c Classifier) *Governor {
	g.classifier = c
	return g
}

// WithVetoer attaches an extra policy gate
func (g *Governor) WithVetoer(v Vetoer) *Governor {
	g.vetoer = v
	return g
}

// WithMetrics attaches the metric instrument set
func (g *Governor) WithMetrics(m *telemetry.Metrics) *Governor {
	g.metrics = m
	return g
}

// Evaluate runs the check chain and returns the decision. On ALLOW one unit
// of rate budget has already been reserved.
func (g *Governor) Evaluate(ctx context.Context, action types.Action) types.Decision {
	decision := g.evaluate(ctx, action)
	g.logger.LogDecision(ctx, action, decision)
	if g.metrics != nil {
		g.metrics.RecordDecision(ctx, string(decision.Verdict), decision.Reason())
	}
	return decision
}

func (g *Governor) evaluate(ctx context.Context, action types.Action) types.Decision {
	// 1. Halt wins over everything; no further checks
	if g.halt.Active() {
		return g.decide(action, types.VerdictDeny, types.ReasonHalted)
	}

	// Malformed actions are denied, never crash the governor
	if err := action.Validate(); err != nil {
		return g.decide(action, types.VerdictDeny, types.ReasonInvalidAction, err.Error())
	}

	// 2. Confidence gate. A missing score is zero: fail closed. Read-only
	// actions bypass the gate.
	if !action.IsReadOnly() && action.Confidence < g.cfg.Threshold(action.RiskTier) {
		return g.decide(action, types.VerdictEscalate, types.ReasonLowConfidence)
	}

	// 3. Rolling-hour rate limit
	if g.window.Full() {
		return g.decide(action, types.VerdictDeny, types.ReasonRateLimited)
	}

	// 4. Blast radius: distinct units touched by this action plus all
	// in-flight actions. Check and reservation are one atomic step under
	// the source's lock; two interleaved evaluations cannot both take the
	// last units. The reservation holds until tracking begins or a later
	// check rejects the action.
	reserved := g.inFlight.ReserveTargets(action.ID, action.Targets, func(inFlight []string) bool {
		return g.blastRadius(action, inFlight) <= g.cfg.MaxBlastRadius
	})
	if !reserved {
		return g.decide(action, types.VerdictDeny, types.ReasonBlastRadius)
	}

	// 5. Optional veto policies
	if g.vetoer != nil {
		veto, reason, err := g.vetoer.Veto(ctx, action, g.inFlight.InFlightTargets())
		if err != nil {
			// A broken policy engine fails closed
			g.logger.WithContext(ctx).Error().
				Err(err).
				Str("action_id", action.ID).
				Msg("policy evaluation failed")
			g.inFlight.ReleaseTargets(action.ID)
			return g.decide(action, types.VerdictDeny, types.ReasonPolicyDenied, err.Error())
		}
		if veto {
			g.inFlight.ReleaseTargets(action.ID)
			return g.decide(action, types.VerdictDeny, types.ReasonPolicyDenied, reason)
		}
	}

	// Reserve budget atomically; a concurrent evaluation may have taken the
	// last unit since the peek above.
	if !g.window.TryAdmit() {
		g.inFlight.ReleaseTargets(action.ID)
		return g.decide(action, types.VerdictDeny, types.ReasonRateLimited)
	}

	return g.decide(action, types.VerdictAllow, types.ReasonAdmitted)
}

func (g *Governor) blastRadius(action types.Action, inFlight []string) int {
	units := make(map[string]struct{})
	for _, target := range action.Targets {
		units[g.classifier.Unit(target)] = struct{}{}
	}
	for _, target := range inFlight {
		units[g.classifier.Unit(target)] = struct{}{}
	}
	return len(units)
}

func (g *Governor) decide(action types.Action, verdict types.Verdict, reasons ...string) types.Decision {
	return types.Decision{
		ActionID:    action.ID,
		Verdict:     verdict,
		Reasons:     reasons,
		EvaluatedAt: g.now(),
	}
}

// Admitted returns how much of the rolling rate budget is spent
func (g *Governor) Admitted() int {
	return g.window.Admitted()
}
