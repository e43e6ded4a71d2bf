// Package rules implements the Rule Loader (C2) and Deterministic Evaluator
// (C3) from spec.md §4.2-§4.3: loading scoped DeterministicRule/LlmRule/
// Direction rows and evaluating a condition tree against a Message.
package rules

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/dimfeld/ashford/internal/model"
)

// ConditionError is a fatal per-rule evaluation failure (regex compile
// failure, unknown leaf kind), per §4.3: "propagated as a Condition fatal
// error (the rule is skipped and the failure recorded; system continues)".
type ConditionError struct {
	RuleID string
	Err    error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition error in rule %s: %v", e.RuleID, e.Err)
}

func (e *ConditionError) Unwrap() error { return e.Err }

// Evaluate evaluates a condition tree against msg, per §4.3's leaf/node
// match table. ruleID is carried only for error attribution.
func Evaluate(ruleID string, c model.Condition, msg *model.Message) (bool, error) {
	switch model.ConditionNodeKind(c.Kind) {
	case model.NodeAnd:
		for _, child := range c.Children {
			ok, err := Evaluate(ruleID, child, msg)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case model.NodeOr:
		for _, child := range c.Children {
			ok, err := Evaluate(ruleID, child, msg)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case model.NodeNot:
		if len(c.Children) != 1 {
			return false, &ConditionError{RuleID: ruleID, Err: fmt.Errorf("not node requires exactly 1 child, got %d", len(c.Children))}
		}
		ok, err := Evaluate(ruleID, c.Children[0], msg)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}

	return evaluateLeaf(ruleID, c, msg)
}

func evaluateLeaf(ruleID string, c model.Condition, msg *model.Message) (bool, error) {
	switch model.ConditionLeafKind(c.Kind) {
	case model.LeafSenderEmail:
		matched, err := path.Match(strings.ToLower(c.SenderEmailGlob), strings.ToLower(msg.SenderEmail))
		if err != nil {
			return false, &ConditionError{RuleID: ruleID, Err: err}
		}
		return matched, nil

	case model.LeafSenderDomain:
		return strings.EqualFold(SenderDomain(msg.SenderEmail), c.SenderDomain), nil

	case model.LeafSubjectContains:
		if msg.Subject == "" {
			return false, nil
		}
		return strings.Contains(strings.ToLower(msg.Subject), strings.ToLower(c.SubjectSubstring)), nil

	case model.LeafSubjectRegex:
		re, err := regexp.Compile(c.SubjectPattern)
		if err != nil {
			return false, &ConditionError{RuleID: ruleID, Err: err}
		}
		return re.MatchString(msg.Subject), nil

	case model.LeafHeaderMatch:
		var value string
		var found bool
		for k, v := range msg.Headers {
			if strings.EqualFold(k, c.HeaderName) {
				value, found = v, true
				break
			}
		}
		if !found {
			return false, nil
		}
		re, err := regexp.Compile(c.HeaderPattern)
		if err != nil {
			return false, &ConditionError{RuleID: ruleID, Err: err}
		}
		return re.MatchString(value), nil

	case model.LeafLabelPresent:
		for _, id := range msg.LabelIDs {
			if id == c.LabelID {
				return true, nil
			}
		}
		return false, nil
	}

	return false, &ConditionError{RuleID: ruleID, Err: fmt.Errorf("unknown condition kind %q", c.Kind)}
}

// SenderDomain derives the domain from an email address: the substring
// after the final '@', lowercased, per §4.2.
func SenderDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}
