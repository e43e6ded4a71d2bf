// Package approval implements Approval Transitions (C10, spec.md §4.10):
// moving an ApprovedPending Action to Queued (enqueueing its execution) or
// to Rejected, and recording the approver link when the approver is itself
// an action. Grounded on the teacher's campaign-approval gate (internal/
// mailing's send-after-review step) generalized from a single boolean flag
// to the full ApprovedPending/Queued/Rejected state machine.
package approval

import (
	"context"
	"fmt"

	"github.com/dimfeld/ashford/internal/model"
	"github.com/dimfeld/ashford/internal/store"
)

// Service applies approval/rejection decisions to ApprovedPending actions.
type Service struct {
	store *store.Store
}

// New builds a Service.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// ErrNotPending is returned when target isn't ApprovedPending.
type ErrNotPending struct {
	ActionID string
	Status   model.ActionStatus
}

func (e *ErrNotPending) Error() string {
	return fmt.Sprintf("approval: action %s is %s, not ApprovedPending", e.ActionID, e.Status)
}

// Approve transitions actionID ApprovedPending -> Queued and enqueues its
// action.gmail job. approverActionID is recorded as an approval_for link
// when non-empty (the approver is itself an action, e.g. a UI-triggered
// escalation resolution); otherwise the approval is audit-log only, per
// §4.10's closing clause.
func (s *Service) Approve(ctx context.Context, actionID, approverActionID string) error {
	a, err := s.store.Actions.Get(ctx, actionID)
	if err != nil {
		return model.NewKindError(model.ErrLoader, fmt.Errorf("approval: load action %s: %w", actionID, err))
	}
	if a.Status != model.ActionStatusApprovedPending {
		return &ErrNotPending{ActionID: actionID, Status: a.Status}
	}

	if err := s.store.Actions.Transition(ctx, actionID, model.ActionStatusQueued, ""); err != nil {
		return model.NewKindError(model.ErrInternalInvariant, fmt.Errorf("approval: pending->queued: %w", err))
	}

	if approverActionID != "" {
		if _, err := s.store.ActionLinks.Create(ctx, approverActionID, actionID, model.RelationApprovalFor); err != nil {
			return model.NewKindError(model.ErrIntegrity, fmt.Errorf("approval: link approver: %w", err))
		}
	}

	if _, err := s.store.Jobs.Enqueue(ctx, model.JobTypeActionGmail, model.ActionGmailPayload{ActionID: actionID},
		0, model.ActionIdempotencyKey(actionID), nil); err != nil {
		return model.NewKindError(model.ErrIntegrity, fmt.Errorf("approval: enqueue action: %w", err))
	}
	return nil
}

// Reject transitions actionID ApprovedPending -> Rejected. No action job is
// ever enqueued for a rejected action.
func (s *Service) Reject(ctx context.Context, actionID, approverActionID string) error {
	a, err := s.store.Actions.Get(ctx, actionID)
	if err != nil {
		return model.NewKindError(model.ErrLoader, fmt.Errorf("approval: load action %s: %w", actionID, err))
	}
	if a.Status != model.ActionStatusApprovedPending {
		return &ErrNotPending{ActionID: actionID, Status: a.Status}
	}

	if err := s.store.Actions.Transition(ctx, actionID, model.ActionStatusRejected, ""); err != nil {
		return model.NewKindError(model.ErrInternalInvariant, fmt.Errorf("approval: pending->rejected: %w", err))
	}

	if approverActionID != "" {
		if _, err := s.store.ActionLinks.Create(ctx, approverActionID, actionID, model.RelationApprovalFor); err != nil {
			return model.NewKindError(model.ErrIntegrity, fmt.Errorf("approval: link approver: %w", err))
		}
	}
	return nil
}
