// Package policy evaluates operator-written Rego policies against proposed
// actions. Policies can veto an action the built-in checks would admit, and
// can redefine how blast-radius units are counted.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wardenhq/warden/telemetry"
	"github.com/wardenhq/warden/types"
)

// VetoInput is the document handed to every veto policy
type VetoInput struct {
	Action    types.Action `json:"action"`
	InFlight  []string     `json:"in_flight"`
	Timestamp time.Time    `json:"timestamp"`
}

// Engine holds compiled Rego queries. Policies live under the warden.*
// namespace and express a veto as a `deny` rule producing reason strings:
//
//	package warden.freeze
//
//	import rego.v1
//
//	deny contains "deploys frozen" if {
//	    input.action.type == "deploy"
//	    time.weekday(time.now_ns()) == "Friday"
//	}
type Engine struct {
	logger  *telemetry.Logger
	tracer  trace.Tracer
	queries map[string]rego.PreparedEvalQuery
}

// NewEngine creates an empty policy engine
func NewEngine() *Engine {
	return &Engine{
		logger:  telemetry.NewLogger("policy-engine"),
		tracer:  otel.Tracer("policy-engine"),
		queries: make(map[string]rego.PreparedEvalQuery),
	}
}

// LoadPolicy compiles one Rego module
func (e *Engine) LoadPolicy(ctx context.Context, name string, regoCode string) error {
	ctx, span := e.tracer.Start(ctx, "policy_engine.load_policy",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	query := rego.New(
		rego.Query("data.warden"),
		rego.Module(name, regoCode),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("compile policy %s: %w", name, err)
	}

	e.queries[name] = prepared

	e.logger.WithContext(ctx).Info().
		Str("policy_name", name).
		Msg("policy loaded")

	return nil
}

// PolicyCount returns the number of loaded policies
func (e *Engine) PolicyCount() int {
	return len(e.queries)
}

// Veto evaluates every loaded policy against the action. The first deny
// reason wins. An evaluation error surfaces so the governor can fail closed.
func (e *Engine) Veto(ctx context.Context, action types.Action, inFlight []string) (bool, string, error) {
	ctx, span := e.tracer.Start(ctx, "policy_engine.veto",
		trace.WithAttributes(attribute.String("action.id", action.ID)))
	defer span.End()

	input := VetoInput{
		Action:    action,
		InFlight:  inFlight,
		Timestamp: time.Now(),
	}

	for name, query := range e.queries {
		reasons, err := e.denyReasons(ctx, query, input)
		if err != nil {
			return false, "", fmt.Errorf("policy %s: %w", name, err)
		}
		if len(reasons) > 0 {
			e.logger.WithContext(ctx).Info().
				Str("action_id", action.ID).
				Str("policy_name", name).
				Strs("reasons", reasons).
				Msg("action vetoed by policy")
			return true, reasons[0], nil
		}
	}

	return false, "", nil
}

func (e *Engine) denyReasons(ctx context.Context, query rego.PreparedEvalQuery, input VetoInput) ([]string, error) {
	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}

	var reasons []string
	for _, result := range results {
		for _, expr := range result.Expressions {
			collectDenyReasons(expr.Value, &reasons)
		}
	}
	return reasons, nil
}

// collectDenyReasons walks the data.warden document tree picking up every
// string produced by a deny rule. OPA returns untyped JSON here; the shape
// is decided by the policies at runtime.
func collectDenyReasons(value any, reasons *[]string) {
	node, ok := value.(map[string]any)
	if !ok {
		return
	}
	for key, child := range node {
		if key == "deny" {
			appendReasonStrings(child, reasons)
			continue
		}
		collectDenyReasons(child, reasons)
	}
}

func appendReasonStrings(value any, reasons *[]string) {
	list, ok := value.([]any)
	if !ok {
		return
	}
	for _, item := range list {
		if s, ok := item.(string); ok {
			*reasons = append(*reasons, s)
		}
	}
}
