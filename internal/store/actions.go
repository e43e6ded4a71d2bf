package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dimfeld/ashford/internal/model"
)

// ActionStore persists Action rows and enforces the lifecycle transition
// table (model.CanTransitionAction) at the store boundary, so no caller can
// write an illegal status edge even if it forgot to check first.
type ActionStore struct {
	db *sql.DB
}

// Create inserts a new Action in status Queued (or ApprovedPending, when
// the caller already knows the Safety Enforcer requires approval).
func (s *ActionStore) Create(ctx context.Context, a *model.Action) error {
	a.ID = uuid.New().String()
	if a.Status == "" {
		a.Status = model.ActionStatusQueued
	}

	var undoHint []byte
	if a.UndoHint != nil {
		var err error
		undoHint, err = json.Marshal(a.UndoHint)
		if err != nil {
			return err
		}
	}

	return s.db.QueryRowContext(ctx, `
		INSERT INTO actions
			(id, account_id, message_id, decision_id, action_type, parameters, status,
			 undo_hint, trace_id, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at
	`, a.ID, a.AccountID, a.MessageID, a.DecisionID, a.ActionType, a.Parameters, a.Status,
		undoHint, a.TraceID).Scan(&a.CreatedAt, &a.UpdatedAt)
}

// Get retrieves an Action by id.
func (s *ActionStore) Get(ctx context.Context, id string) (*model.Action, error) {
	return scanActionRow(s.db.QueryRowContext(ctx, `
		SELECT id, account_id, message_id, COALESCE(decision_id, ''), action_type, parameters,
		       status, COALESCE(error, ''), executed_at, undo_hint, COALESCE(trace_id, ''),
		       created_at, updated_at
		FROM actions WHERE id = $1
	`, id))
}

// Transition moves an Action to a new status, rejecting any edge not in
// model.CanTransitionAction (spec §3's state diagram).
func (s *ActionStore) Transition(ctx context.Context, id string, to model.ActionStatus, errMsg string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !model.CanTransitionAction(a.Status, to) {
		return fmt.Errorf("store: illegal action transition %s -> %s for action %s", a.Status, to, id)
	}

	var executedAt interface{}
	if to == model.ActionStatusCompleted || to == model.ActionStatusFailed {
		executedAt = "NOW()"
	}
	if executedAt != nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE actions SET status = $2, error = NULLIF($3, ''), executed_at = NOW(), updated_at = NOW() WHERE id = $1
		`, id, to, errMsg)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE actions SET status = $2, error = NULLIF($3, ''), updated_at = NOW() WHERE id = $1
		`, id, to, errMsg)
	}
	return err
}

// ActionFilter narrows List to a subset of actions for the admin API.
// Zero-value fields are not filtered on.
type ActionFilter struct {
	AccountID  string
	Status     model.ActionStatus
	ActionType model.ActionType
	Limit      int
}

// List returns actions matching filter, most recently created first.
func (s *ActionStore) List(ctx context.Context, f ActionFilter) ([]model.Action, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, message_id, COALESCE(decision_id, ''), action_type, parameters,
		       status, COALESCE(error, ''), executed_at, undo_hint, COALESCE(trace_id, ''),
		       created_at, updated_at
		FROM actions
		WHERE ($1 = '' OR account_id = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR action_type = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`, f.AccountID, string(f.Status), string(f.ActionType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Action
	for rows.Next() {
		a, err := scanActionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SetUndoHint records the pre-image-derived undo hint at execution time
// (spec §4.8).
func (s *ActionStore) SetUndoHint(ctx context.Context, id string, hint model.UndoHint) error {
	raw, err := json.Marshal(hint)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE actions SET undo_hint = $2, updated_at = NOW() WHERE id = $1`, id, raw)
	return err
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting Get and
// List share one decode path.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanActionRow(row *sql.Row) (*model.Action, error) {
	return scanActionAny(row)
}

func scanActionRows(rows *sql.Rows) (*model.Action, error) {
	return scanActionAny(rows)
}

func scanActionAny(row rowScanner) (*model.Action, error) {
	var a model.Action
	var actionType, status string
	var undoHintRaw []byte
	var executedAt sql.NullTime

	err := row.Scan(&a.ID, &a.AccountID, &a.MessageID, &a.DecisionID, &actionType, &a.Parameters,
		&status, &a.Error, &executedAt, &undoHintRaw, &a.TraceID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ActionType = model.ActionType(actionType)
	a.Status = model.ActionStatus(status)
	if executedAt.Valid {
		a.ExecutedAt = &executedAt.Time
	}
	if len(undoHintRaw) > 0 {
		var hint model.UndoHint
		if err := json.Unmarshal(undoHintRaw, &hint); err != nil {
			return nil, err
		}
		a.UndoHint = &hint
	}
	return &a, nil
}
