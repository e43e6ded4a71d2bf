// Package safety implements the Safety Enforcer (C6, spec.md §4.6) as a
// thin Go wrapper around an embedded Rego policy module, grounded on the
// open-policy-agent/opa/v1/rego API shape the jordigilh-kubernaut pack
// member's rego.Evaluator exercises (its own evaluator source was filtered
// out of the retrieved pack — only its tests survived — so this wraps the
// OPA library's documented Go API directly rather than that missing file).
// PolicyConfig is still constructed once at startup and passed in
// explicitly, never read from a hidden singleton, per the "global policy
// state" design note — only the evaluation mechanism moved to Rego.
package safety

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/dimfeld/ashford/internal/metrics"
	"github.com/dimfeld/ashford/internal/model"
)

//go:embed policy.rego
var policyModule string

// PolicyConfig is the Safety Enforcer's only input besides the decision
// itself, mirroring Config.Policy in internal/config.
type PolicyConfig struct {
	ApprovalAlways    map[model.ActionType]bool
	ConfidenceDefault float64
}

// Result is the Safety Enforcer's verdict.
type Result struct {
	RequiresApproval bool
	Overrides        []model.SafetyOverride
}

// preparedQuery is compiled once from the embedded module and reused for
// every Evaluate call; Rego compilation is the expensive part, evaluation
// against a fresh input is cheap.
var preparedQuery = mustPrepareQuery()

func mustPrepareQuery() rego.PreparedEvalQuery {
	q, err := rego.New(
		rego.Query("data.ashford.safety"),
		rego.Module("policy.rego", policyModule),
	).PrepareForEval(context.Background())
	if err != nil {
		panic(fmt.Sprintf("safety: compile embedded policy: %v", err))
	}
	return q
}

// Evaluate classifies decision against policy, returning every applicable
// override. safeMode comes from the matching DeterministicRule when
// source=deterministic, and is always SafeModeDefault for source=llm (the
// spec notes LowConfidence "cannot apply" to deterministic decisions since
// their confidence is fixed at 1.0, so safe_mode only ever bypasses
// DangerousAction/LowConfidence on the deterministic path).
func Evaluate(decision model.DecisionOutput, safeMode model.SafeMode, policy PolicyConfig) Result {
	approvalAlways := make([]string, 0, len(policy.ApprovalAlways))
	for a, on := range policy.ApprovalAlways {
		if on {
			approvalAlways = append(approvalAlways, string(a))
		}
	}

	input := map[string]interface{}{
		"danger_level":       string(model.DangerLevelOf(decision.ActionType)),
		"source":             string(decision.Source),
		"safe_mode":          string(safeMode),
		"confidence":         decision.Confidence,
		"confidence_default": policy.ConfidenceDefault,
		"action_type":        string(decision.ActionType),
		"approval_always":    approvalAlways,
		"needs_approval":     decision.NeedsApproval,
	}

	rs, err := preparedQuery.Eval(context.Background(), rego.EvalInput(input))
	if err != nil || len(rs) == 0 || len(rs[0].Expressions) == 0 {
		// Fail closed: an evaluator error must never silently approve a
		// dangerous action. A decision with no clear verdict from the
		// policy is treated as requiring approval.
		metrics.SafetyOverridesApplied.WithLabelValues(string(model.OverrideDangerousAction)).Inc()
		return Result{RequiresApproval: true, Overrides: []model.SafetyOverride{model.OverrideDangerousAction}}
	}

	doc, _ := rs[0].Expressions[0].Value.(map[string]interface{})
	result := Result{
		RequiresApproval: boolField(doc, "requires_approval"),
		Overrides:        overridesField(doc, "overrides"),
	}
	for _, o := range result.Overrides {
		metrics.SafetyOverridesApplied.WithLabelValues(string(o)).Inc()
	}
	return result
}

func boolField(doc map[string]interface{}, key string) bool {
	v, _ := doc[key].(bool)
	return v
}

func overridesField(doc map[string]interface{}, key string) []model.SafetyOverride {
	raw, _ := doc[key].([]interface{})
	if len(raw) == 0 {
		return nil
	}
	out := make([]model.SafetyOverride, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, model.SafetyOverride(s))
		}
	}
	return out
}

// NewPolicyConfig builds a PolicyConfig from the plain string list Config.Policy
// carries in TOML.
func NewPolicyConfig(approvalAlways []string, confidenceDefault float64) PolicyConfig {
	set := make(map[model.ActionType]bool, len(approvalAlways))
	for _, a := range approvalAlways {
		set[model.ActionType(a)] = true
	}
	return PolicyConfig{ApprovalAlways: set, ConfidenceDefault: confidenceDefault}
}
