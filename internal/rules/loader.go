package rules

import (
	"context"

	"github.com/dimfeld/ashford/internal/model"
	"github.com/dimfeld/ashford/internal/store"
)

// Loader implements the Rule Loader (C2): given (account_id, sender_email),
// derives sender_domain and fetches every rule/direction in scope.
type Loader struct {
	rules      *store.RuleStore
	directions *store.DirectionStore
}

// Bundle is everything the rule engine needs for one classification.
type Bundle struct {
	Deterministic []model.DeterministicRule
	LLM           []model.LlmRule
	Directions    []model.Direction
}

// NewLoader builds a Loader over the given stores.
func NewLoader(rules *store.RuleStore, directions *store.DirectionStore) *Loader {
	return &Loader{rules: rules, directions: directions}
}

// Load fetches the full in-scope Bundle for (accountID, senderEmail).
func (l *Loader) Load(ctx context.Context, accountID, senderEmail string) (*Bundle, error) {
	domain := SenderDomain(senderEmail)

	det, err := l.rules.DeterministicRulesForScope(ctx, accountID, senderEmail, domain)
	if err != nil {
		return nil, err
	}
	llm, err := l.rules.LlmRulesForScope(ctx, accountID, senderEmail, domain)
	if err != nil {
		return nil, err
	}
	dirs, err := l.directions.Enabled(ctx)
	if err != nil {
		return nil, err
	}

	return &Bundle{Deterministic: det, LLM: llm, Directions: dirs}, nil
}
