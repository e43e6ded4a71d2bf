package rules

import (
	"github.com/dimfeld/ashford/internal/logging"
	"github.com/dimfeld/ashford/internal/model"
)

// MatchResult is the outcome of running the deterministic rule set against
// a message: the first matching rule, if any, plus any ConditionErrors
// encountered along the way for rules that were skipped.
type MatchResult struct {
	Rule   *model.DeterministicRule
	Errors []error
}

// FirstMatch implements §4.3's "Rule match policy": rules are evaluated in
// (priority ASC, id ASC) order (the Loader already sorted them), and the
// first matching rule wins. A rule whose condition tree fails to evaluate
// is skipped and its error recorded, but evaluation continues.
func FirstMatch(rules []model.DeterministicRule, msg *model.Message) MatchResult {
	var result MatchResult
	for i := range rules {
		rule := &rules[i]
		ok, err := Evaluate(rule.ID, rule.Conditions, msg)
		if err != nil {
			logging.Warn("rules: condition evaluation failed, skipping rule", "rule_id", rule.ID, "err", err.Error())
			result.Errors = append(result.Errors, err)
			continue
		}
		if ok {
			result.Rule = rule
			return result
		}
	}
	return result
}
