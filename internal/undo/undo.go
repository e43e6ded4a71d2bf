// Package undo implements the Undo Subsystem (C9, spec.md §4.9): given a
// completed Action A with a reversible undo_hint, synthesize the inverse
// Action U, link it to A, and enqueue it for execution. Grounded on the
// teacher's campaign-pause path (internal/worker's cancellation of
// in-flight sends via a linked follow-up row) generalized to an explicit
// ActionLink relation rather than a status flag.
package undo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dimfeld/ashford/internal/model"
	"github.com/dimfeld/ashford/internal/store"
)

// Service triggers undo for a completed Action, per §4.9's eligibility
// rules and idempotent-duplicate handling.
type Service struct {
	store *store.Store
}

// New builds a Service.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// ErrNotUndoable is returned when A fails one of §4.9's eligibility checks.
type ErrNotUndoable struct {
	Reason string
}

func (e *ErrNotUndoable) Error() string { return "undo: not undoable: " + e.Reason }

// Trigger synthesizes and enqueues the inverse of actionID, or returns the
// existing undo action if one was already created for it (idempotent, per
// the unique partial index on action_links backing UndoOf).
func (s *Service) Trigger(ctx context.Context, actionID string) (*model.Action, error) {
	a, err := s.store.Actions.Get(ctx, actionID)
	if err != nil {
		return nil, model.NewKindError(model.ErrLoader, fmt.Errorf("undo: load action %s: %w", actionID, err))
	}

	if a.Status != model.ActionStatusCompleted {
		return nil, &ErrNotUndoable{Reason: fmt.Sprintf("action %s is %s, not Completed", actionID, a.Status)}
	}
	if a.UndoHint == nil || a.UndoHint.InverseAction == model.InverseNone {
		return nil, &ErrNotUndoable{Reason: fmt.Sprintf("action %s has no reversible undo_hint", actionID)}
	}

	if existingID, err := s.store.ActionLinks.UndoOf(ctx, actionID); err != nil {
		return nil, model.NewKindError(model.ErrLoader, fmt.Errorf("undo: check existing undo link: %w", err))
	} else if existingID != "" {
		existing, err := s.store.Actions.Get(ctx, existingID)
		if err != nil {
			return nil, model.NewKindError(model.ErrLoader, fmt.Errorf("undo: load existing undo action %s: %w", existingID, err))
		}
		return existing, nil
	}

	params := a.UndoHint.InverseParameters
	if params == nil {
		params = json.RawMessage(`{}`)
	}
	u := &model.Action{
		AccountID:  a.AccountID,
		MessageID:  a.MessageID,
		DecisionID: "",
		ActionType: model.ActionType(a.UndoHint.InverseAction),
		Parameters: params,
		Status:     model.ActionStatusQueued,
		TraceID:    a.TraceID,
	}
	if err := s.store.Actions.Create(ctx, u); err != nil {
		return nil, model.NewKindError(model.ErrIntegrity, fmt.Errorf("undo: create undo action: %w", err))
	}

	if _, err := s.store.ActionLinks.Create(ctx, u.ID, actionID, model.RelationUndoOf); err != nil {
		// A racing Trigger may have linked its own undo first; the partial
		// unique index on action_links(effect_action_id) WHERE relation='undo_of'
		// is the actual arbiter. Re-check before giving up; the action u
		// inserted above is then left Queued with no link and no job.
		if existingID, lookupErr := s.store.ActionLinks.UndoOf(ctx, actionID); lookupErr == nil && existingID != "" {
			return s.store.Actions.Get(ctx, existingID)
		}
		return nil, model.NewKindError(model.ErrIntegrity, fmt.Errorf("undo: link undo action: %w", err))
	}

	if _, err := s.store.Jobs.Enqueue(ctx, model.JobTypeActionGmail, model.ActionGmailPayload{ActionID: u.ID},
		0, model.ActionIdempotencyKey(u.ID), nil); err != nil {
		return nil, model.NewKindError(model.ErrIntegrity, fmt.Errorf("undo: enqueue undo action: %w", err))
	}

	return u, nil
}
