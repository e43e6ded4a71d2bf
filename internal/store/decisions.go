package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/dimfeld/ashford/internal/model"
)

// DecisionStore persists Decision rows (created once per classification
// outcome, spec §4.7 step 4-5).
type DecisionStore struct {
	db *sql.DB
}

// Create inserts a Decision, stamping its id and created_at.
func (s *DecisionStore) Create(ctx context.Context, d *model.Decision) error {
	d.ID = uuid.New().String()

	explanations, err := json.Marshal(d.Explanations)
	if err != nil {
		return err
	}
	undoHint, err := json.Marshal(d.UndoHint)
	if err != nil {
		return err
	}
	telemetry, err := json.Marshal(d.Telemetry)
	if err != nil {
		return err
	}

	return s.db.QueryRowContext(ctx, `
		INSERT INTO decisions
			(id, account_id, message_id, source, action_type, parameters, confidence,
			 needs_approval, rationale, explanations, undo_hint, telemetry, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING created_at
	`, d.ID, d.AccountID, d.MessageID, d.Source, d.ActionType, d.Parameters, d.Confidence,
		d.NeedsApproval, d.Rationale, explanations, undoHint, telemetry).Scan(&d.CreatedAt)
}

// Get retrieves a Decision by id.
func (s *DecisionStore) Get(ctx context.Context, id string) (*model.Decision, error) {
	var d model.Decision
	var source string
	var explanations, undoHint, telemetry []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, message_id, source, action_type, parameters, confidence,
		       needs_approval, rationale, explanations, undo_hint, telemetry, created_at
		FROM decisions WHERE id = $1
	`, id).Scan(&d.ID, &d.AccountID, &d.MessageID, &source, &d.ActionType, &d.Parameters,
		&d.Confidence, &d.NeedsApproval, &d.Rationale, &explanations, &undoHint, &telemetry, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Source = model.DecisionSource(source)
	if err := json.Unmarshal(explanations, &d.Explanations); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(undoHint, &d.UndoHint); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(telemetry, &d.Telemetry); err != nil {
		return nil, err
	}
	return &d, nil
}
