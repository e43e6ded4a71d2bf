package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/dimfeld/ashford/internal/model"
)

// LabelStore caches provider (Gmail) labels locally so the Prompt Builder
// can translate label ids to names and back without a provider round trip
// per message (spec §4.4).
type LabelStore struct {
	db *sql.DB
}

// ForAccount returns all cached labels for an account.
func (s *LabelStore) ForAccount(ctx context.Context, accountID string) ([]model.Label, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, provider_label_id, name, type, COALESCE(description, ''), available_to_classifier
		FROM labels WHERE account_id = $1
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Label
	for rows.Next() {
		var l model.Label
		var labelType string
		if err := rows.Scan(&l.ID, &l.AccountID, &l.ProviderLabelID, &l.Name, &labelType,
			&l.Description, &l.AvailableToClassifier); err != nil {
			return nil, err
		}
		l.Type = model.LabelType(labelType)
		out = append(out, l)
	}
	return out, rows.Err()
}

// Upsert syncs a provider label into the cache, preserving user-edited
// fields (description, available_to_classifier) across syncs per §3's
// "user-editable fields preserved across syncs" clause — the DO UPDATE
// clause only touches name/type, never description or available_to_classifier.
func (s *LabelStore) Upsert(ctx context.Context, accountID, providerLabelID, name string, labelType model.LabelType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO labels (id, account_id, provider_label_id, name, type, available_to_classifier)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (account_id, provider_label_id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type
	`, uuid.New().String(), accountID, providerLabelID, name, labelType)
	return err
}

// ByProviderID looks up a cached label by its provider label id.
func (s *LabelStore) ByProviderID(ctx context.Context, accountID, providerLabelID string) (*model.Label, error) {
	var l model.Label
	var labelType string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, provider_label_id, name, type, COALESCE(description, ''), available_to_classifier
		FROM labels WHERE account_id = $1 AND provider_label_id = $2
	`, accountID, providerLabelID).Scan(&l.ID, &l.AccountID, &l.ProviderLabelID, &l.Name, &labelType,
		&l.Description, &l.AvailableToClassifier)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.Type = model.LabelType(labelType)
	return &l, nil
}

// ByName looks up a cached label by its display name, case-insensitively,
// for translating an LLM-returned label name back to a provider id.
func (s *LabelStore) ByName(ctx context.Context, accountID, name string) (*model.Label, error) {
	var l model.Label
	var labelType string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, provider_label_id, name, type, COALESCE(description, ''), available_to_classifier
		FROM labels WHERE account_id = $1 AND lower(name) = lower($2)
	`, accountID, name).Scan(&l.ID, &l.AccountID, &l.ProviderLabelID, &l.Name, &labelType,
		&l.Description, &l.AvailableToClassifier)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.Type = model.LabelType(labelType)
	return &l, nil
}
