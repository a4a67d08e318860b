package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

// RegoClassifier maps targets to blast-radius units through a Rego rule.
// The policy defines `unit` under warden.blast:
//
//	package warden.blast
//
//	import rego.v1
//
//	unit := split(input.target, "/")[0]
type RegoClassifier struct {
	query rego.PreparedEvalQuery
}

// NewRegoClassifier compiles a classifier policy
func NewRegoClassifier(ctx context.Context, regoCode string) (*RegoClassifier, error) {
	query := rego.New(
		rego.Query("data.warden.blast.unit"),
		rego.Module("blast", regoCode),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile blast classifier: %w", err)
	}

	return &RegoClassifier{query: prepared}, nil
}

// Unit returns the blast unit for a target. Falls back to the target itself
// when the policy does not produce a unit: an incomplete policy must widen
// the radius, never shrink it.
func (c *RegoClassifier) Unit(target string) string {
	results, err := c.query.Eval(context.Background(),
		rego.EvalInput(map[string]any{"target": target}))
	if err != nil || len(results) == 0 || len(results[0].Expressions) == 0 {
		return target
	}
	if unit, ok := results[0].Expressions[0].Value.(string); ok && unit != "" {
		return unit
	}
	return target
}
