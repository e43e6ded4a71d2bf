// Package snooze implements the Snooze/Unsnooze Scheduler (C11, spec.md
// §4.11): the handler registered for model.JobTypeUnsnoozeGmail. Grounded
// on the teacher's scheduled-send wake path (internal/worker's delayed job
// handling) generalized from "send now" to "restore to inbox now".
package snooze

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dimfeld/ashford/internal/logging"
	"github.com/dimfeld/ashford/internal/model"
	"github.com/dimfeld/ashford/internal/provider"
	"github.com/dimfeld/ashford/internal/store"
)

// Scheduler wakes a snoozed message at its unsnooze.gmail job's not_before.
type Scheduler struct {
	store    *store.Store
	provider provider.Provider
}

// New builds a Scheduler.
func New(st *store.Store, p provider.Provider) *Scheduler {
	return &Scheduler{store: st, provider: p}
}

// Handle is the queue.Handler registered for model.JobTypeUnsnoozeGmail.
func (s *Scheduler) Handle(ctx context.Context, job *model.Job) error {
	var payload model.UnsnoozeGmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return model.NewKindError(model.ErrInternalInvariant, fmt.Errorf("snooze: decode payload: %w", err))
	}

	msg, err := s.store.Messages.Get(ctx, payload.MessageID)
	if err != nil {
		return model.NewKindError(model.ErrLoader, fmt.Errorf("snooze: load message %s: %w", payload.MessageID, err))
	}

	if err := s.provider.AddLabel(ctx, msg.AccountID, msg.ProviderMessageID, provider.LabelInbox); err != nil {
		if provider.NotFound(err) {
			// Deleted messages are treated as successful no-ops, per §4.11.
			logging.Info("snooze: message gone, treating wake as success", "message_id", msg.ID)
			return nil
		}
		return provider.ClassifyErr(err)
	}
	if err := s.provider.RemoveLabel(ctx, msg.AccountID, msg.ProviderMessageID, payload.SnoozeLabelID); err != nil {
		if provider.NotFound(err) {
			return nil
		}
		return provider.ClassifyErr(err)
	}
	return nil
}
