package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/dimfeld/ashford/internal/model"
)

// RuleStore persists DeterministicRule, LlmRule rows (spec §4.2, C2).
type RuleStore struct {
	db *sql.DB
}

// DeterministicRulesForScope implements the rule loader's scope union
// (spec §4.2): global, the account, the message's domain, or the exact
// sender, sorted by (priority ASC, id ASC).
func (s *RuleStore) DeterministicRulesForScope(ctx context.Context, accountID, senderEmail, senderDomain string) ([]model.DeterministicRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, scope, scope_ref, priority, enabled, disabled_reason,
		       conditions, action_type, action_parameters, safe_mode, created_at, updated_at
		FROM deterministic_rules
		WHERE enabled = true
		  AND (
		    scope = 'global'
		    OR (scope = 'account' AND scope_ref = $1)
		    OR (scope = 'domain' AND lower(scope_ref) = lower($2))
		    OR (scope = 'sender' AND lower(scope_ref) = lower($3))
		  )
		ORDER BY priority ASC, id ASC
	`, accountID, senderDomain, senderEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DeterministicRule
	for rows.Next() {
		var r model.DeterministicRule
		var scope, safeMode string
		var disabledReason sql.NullString
		var conditionsRaw []byte

		if err := rows.Scan(&r.ID, &r.Name, &scope, &r.ScopeRef, &r.Priority, &r.Enabled,
			&disabledReason, &conditionsRaw, &r.ActionType, &r.ActionParameters, &safeMode,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Scope = model.RuleScope(scope)
		r.SafeMode = model.SafeMode(safeMode)
		r.DisabledReason = disabledReason.String
		if err := json.Unmarshal(conditionsRaw, &r.Conditions); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LlmRulesForScope mirrors DeterministicRulesForScope's scope union for
// LlmRule rows, deduping by id as §4.2 requires (the union already produces
// distinct ids per row, so no extra dedup step is needed beyond DISTINCT).
func (s *RuleStore) LlmRulesForScope(ctx context.Context, accountID, senderEmail, senderDomain string) ([]model.LlmRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT id, name, scope, scope_ref, rule_text, enabled, metadata, created_at
		FROM llm_rules
		WHERE enabled = true
		  AND (
		    scope = 'global'
		    OR (scope = 'account' AND scope_ref = $1)
		    OR (scope = 'domain' AND lower(scope_ref) = lower($2))
		    OR (scope = 'sender' AND lower(scope_ref) = lower($3))
		  )
		ORDER BY id ASC
	`, accountID, senderDomain, senderEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LlmRule
	for rows.Next() {
		var r model.LlmRule
		var scope string
		if err := rows.Scan(&r.ID, &r.Name, &scope, &r.ScopeRef, &r.RuleText, &r.Enabled,
			&r.Metadata, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Scope = model.RuleScope(scope)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DisableRule marks a rule disabled with a reason, used when its
// label_present leaf names a label no longer present in the cache (§3's
// "A DeterministicRule referencing a label that no longer exists" invariant).
func (s *RuleStore) DisableRule(ctx context.Context, ruleID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deterministic_rules SET enabled = false, disabled_reason = $2, updated_at = NOW() WHERE id = $1
	`, ruleID, reason)
	return err
}

// CreateDeterministicRule inserts a new rule.
func (s *RuleStore) CreateDeterministicRule(ctx context.Context, r *model.DeterministicRule) error {
	r.ID = uuid.New().String()
	conditionsRaw, err := json.Marshal(r.Conditions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deterministic_rules
			(id, name, scope, scope_ref, priority, enabled, disabled_reason, conditions,
			 action_type, action_parameters, safe_mode, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, NOW(), NOW())
	`, r.ID, r.Name, strings.ToLower(string(r.Scope)), r.ScopeRef, r.Priority, r.Enabled,
		r.DisabledReason, conditionsRaw, r.ActionType, r.ActionParameters, r.SafeMode)
	return err
}

// ListDeterministicRules returns every deterministic rule, enabled or not,
// ordered by (priority ASC, id ASC), for the rule-admin API.
func (s *RuleStore) ListDeterministicRules(ctx context.Context) ([]model.DeterministicRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, scope, scope_ref, priority, enabled, disabled_reason,
		       conditions, action_type, action_parameters, safe_mode, created_at, updated_at
		FROM deterministic_rules
		ORDER BY priority ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DeterministicRule
	for rows.Next() {
		var r model.DeterministicRule
		var scope, safeMode string
		var disabledReason sql.NullString
		var conditionsRaw []byte

		if err := rows.Scan(&r.ID, &r.Name, &scope, &r.ScopeRef, &r.Priority, &r.Enabled,
			&disabledReason, &conditionsRaw, &r.ActionType, &r.ActionParameters, &safeMode,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Scope = model.RuleScope(scope)
		r.SafeMode = model.SafeMode(safeMode)
		r.DisabledReason = disabledReason.String
		if err := json.Unmarshal(conditionsRaw, &r.Conditions); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateDeterministicRule overwrites a rule's editable fields in place.
func (s *RuleStore) UpdateDeterministicRule(ctx context.Context, r *model.DeterministicRule) error {
	conditionsRaw, err := json.Marshal(r.Conditions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE deterministic_rules
		SET name = $2, scope = $3, scope_ref = $4, priority = $5, enabled = $6,
		    disabled_reason = NULLIF($7, ''), conditions = $8, action_type = $9,
		    action_parameters = $10, safe_mode = $11, updated_at = NOW()
		WHERE id = $1
	`, r.ID, r.Name, strings.ToLower(string(r.Scope)), r.ScopeRef, r.Priority, r.Enabled,
		r.DisabledReason, conditionsRaw, r.ActionType, r.ActionParameters, r.SafeMode)
	return err
}

// DeleteDeterministicRule removes a rule permanently.
func (s *RuleStore) DeleteDeterministicRule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM deterministic_rules WHERE id = $1`, id)
	return err
}

// SwapDeterministicRulePriority exchanges the priority of two rules in one
// transaction (two reads, two updates), so two concurrent readers of DeterministicRulesForScope never
// observe a state with two rules holding the same priority rank (and thus
// an ambiguous first-match order) — per §5's note that priority reordering
// needs transactional, not read-then-write, semantics. Returns the number
// of rows updated (2 on success) so the caller can detect a missing id.
func (s *RuleStore) SwapDeterministicRulePriority(ctx context.Context, idA, idB string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var prioA, prioB int
	if err := tx.QueryRowContext(ctx, `SELECT priority FROM deterministic_rules WHERE id = $1`, idA).Scan(&prioA); err != nil {
		return 0, err
	}
	if err := tx.QueryRowContext(ctx, `SELECT priority FROM deterministic_rules WHERE id = $1`, idB).Scan(&prioB); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE deterministic_rules SET priority = $2, updated_at = NOW() WHERE id = $1`, idA, prioB)
	if err != nil {
		return 0, err
	}
	rowsA, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, `UPDATE deterministic_rules SET priority = $2, updated_at = NOW() WHERE id = $1`, idB, prioA)
	if err != nil {
		return 0, err
	}
	rowsB, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return rowsA + rowsB, tx.Commit()
}

// CreateLlmRule inserts a new situational guidance rule.
func (s *RuleStore) CreateLlmRule(ctx context.Context, r *model.LlmRule) error {
	r.ID = uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_rules (id, name, scope, scope_ref, rule_text, enabled, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, r.ID, r.Name, strings.ToLower(string(r.Scope)), r.ScopeRef, r.RuleText, r.Enabled, r.Metadata)
	return err
}

// ListLlmRules returns every llm rule, enabled or not.
func (s *RuleStore) ListLlmRules(ctx context.Context) ([]model.LlmRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, scope, scope_ref, rule_text, enabled, metadata, created_at
		FROM llm_rules ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LlmRule
	for rows.Next() {
		var r model.LlmRule
		var scope string
		if err := rows.Scan(&r.ID, &r.Name, &scope, &r.ScopeRef, &r.RuleText, &r.Enabled,
			&r.Metadata, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Scope = model.RuleScope(scope)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateLlmRule overwrites a llm rule's editable fields in place.
func (s *RuleStore) UpdateLlmRule(ctx context.Context, r *model.LlmRule) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE llm_rules SET name = $2, scope = $3, scope_ref = $4, rule_text = $5,
		       enabled = $6, metadata = $7 WHERE id = $1
	`, r.ID, r.Name, strings.ToLower(string(r.Scope)), r.ScopeRef, r.RuleText, r.Enabled, r.Metadata)
	return err
}

// DeleteLlmRule removes a llm rule permanently.
func (s *RuleStore) DeleteLlmRule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM llm_rules WHERE id = $1`, id)
	return err
}

// DirectionStore persists global, always-applied Direction guardrails.
type DirectionStore struct {
	db *sql.DB
}

// Enabled returns enabled directions ordered by created_at ASC (§4.2).
func (s *DirectionStore) Enabled(ctx context.Context) ([]model.Direction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, enabled, created_at FROM directions WHERE enabled = true ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Direction
	for rows.Next() {
		var d model.Direction
		if err := rows.Scan(&d.ID, &d.Content, &d.Enabled, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// List returns every direction, enabled or not, for the admin API.
func (s *DirectionStore) List(ctx context.Context) ([]model.Direction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, enabled, created_at FROM directions ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Direction
	for rows.Next() {
		var d model.Direction
		if err := rows.Scan(&d.ID, &d.Content, &d.Enabled, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Create inserts a new direction.
func (s *DirectionStore) Create(ctx context.Context, d *model.Direction) error {
	d.ID = uuid.New().String()
	return s.db.QueryRowContext(ctx, `
		INSERT INTO directions (id, content, enabled, created_at) VALUES ($1, $2, $3, NOW())
		RETURNING created_at
	`, d.ID, d.Content, d.Enabled).Scan(&d.CreatedAt)
}

// Update overwrites a direction's editable fields in place.
func (s *DirectionStore) Update(ctx context.Context, d *model.Direction) error {
	_, err := s.db.ExecContext(ctx, `UPDATE directions SET content = $2, enabled = $3 WHERE id = $1`, d.ID, d.Content, d.Enabled)
	return err
}

// Delete removes a direction permanently.
func (s *DirectionStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM directions WHERE id = $1`, id)
	return err
}
