package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/dimfeld/ashford/internal/model"
)

// ActionLinkStore persists the ActionLink relation — the undo/approval/
// spawn DAG's source of truth (the "cyclic action graphs" design note:
// links are their own relation, never object references).
type ActionLinkStore struct {
	db *sql.DB
}

// Create inserts a link. The caller is responsible for ensuring only one
// undo_of row exists per effect_action_id; the DB's unique partial index
// (see migrations) is the actual invariant enforcer.
func (s *ActionLinkStore) Create(ctx context.Context, causeActionID, effectActionID string, relation model.ActionLinkRelation) (*model.ActionLink, error) {
	link := &model.ActionLink{
		ID:             uuid.New().String(),
		CauseActionID:  causeActionID,
		EffectActionID: effectActionID,
		Relation:       relation,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO action_links (id, cause_action_id, effect_action_id, relation, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at
	`, link.ID, causeActionID, effectActionID, relation).Scan(&link.CreatedAt)
	if err != nil {
		return nil, err
	}
	return link, nil
}

// UndoOf returns the action that undoes effectActionID, if one exists.
func (s *ActionLinkStore) UndoOf(ctx context.Context, effectActionID string) (string, error) {
	var causeID string
	err := s.db.QueryRowContext(ctx, `
		SELECT cause_action_id FROM action_links WHERE effect_action_id = $1 AND relation = 'undo_of'
	`, effectActionID).Scan(&causeID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return causeID, err
}
