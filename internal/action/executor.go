// Package action implements the Action Executor (C8, spec.md §4.8): the
// handler registered for model.JobTypeActionGmail. Grounded on the
// teacher's BatchSendWorker.processSingleSend (internal/worker/
// send_worker_batch.go in the teacher repository): snapshot state, CAS the
// row to an in-flight status, dispatch to a per-kind sender, translate the
// provider result back into a status transition.
package action

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dimfeld/ashford/internal/logging"
	"github.com/dimfeld/ashford/internal/metrics"
	"github.com/dimfeld/ashford/internal/model"
	"github.com/dimfeld/ashford/internal/provider"
	"github.com/dimfeld/ashford/internal/store"
	"github.com/dimfeld/ashford/internal/tracing"
)

// Executor dispatches a Queued Action to the provider and records the
// result, per §4.8's table of action -> provider effect -> inverse.
type Executor struct {
	store       *store.Store
	provider    provider.Provider
	rateLimiter *provider.RateLimiter
	limitPerMin int
	snoozeLabel string
	fromAddress string
	tracer      trace.Tracer
}

// New builds an Executor. limitPerMin bounds provider calls per account per
// minute (0 disables the limiter entirely, useful in tests). fromAddress is
// the single account's own address, stamped into the From header of
// forward/auto_reply sends (no multi-account provider selection, per
// spec.md's non-goals). tracer is optional; a nil tracer falls back to the
// global no-op tracer so tests never need to call tracing.Init.
func New(st *store.Store, p provider.Provider, rl *provider.RateLimiter, limitPerMin int, snoozeLabel, fromAddress string, tracer trace.Tracer) *Executor {
	if tracer == nil {
		tracer = otel.Tracer("ashford")
	}
	return &Executor{store: st, provider: p, rateLimiter: rl, limitPerMin: limitPerMin, snoozeLabel: snoozeLabel, fromAddress: fromAddress, tracer: tracer}
}

// Handle is the queue.Handler registered for model.JobTypeActionGmail.
func (e *Executor) Handle(ctx context.Context, job *model.Job) error {
	var payload model.ActionGmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return model.NewKindError(model.ErrInternalInvariant, fmt.Errorf("action: decode payload: %w", err))
	}

	a, err := e.store.Actions.Get(ctx, payload.ActionID)
	if err != nil {
		return model.NewKindError(model.ErrLoader, fmt.Errorf("action: load action %s: %w", payload.ActionID, err))
	}

	ctx, _, endSpan := tracing.JobSpan(ctx, e.tracer, "action.handle",
		attribute.String("action_id", a.ID), attribute.String("action_type", string(a.ActionType)))
	handleErr := e.handle(ctx, a)
	endSpan(handleErr)
	return handleErr
}

func (e *Executor) handle(ctx context.Context, a *model.Action) error {
	if a.Status != model.ActionStatusQueued && a.Status != model.ActionStatusExecuting {
		// Already moved on (e.g. a duplicate delivery of the same job after
		// a prior attempt committed); nothing left to do. An Executing action
		// is one whose earlier attempt failed retryably, and is run again.
		logging.Info("action: skipping action that is neither queued nor executing", "action_id", a.ID, "status", string(a.Status))
		return nil
	}

	msg, err := e.store.Messages.Get(ctx, a.MessageID)
	if err != nil {
		return model.NewKindError(model.ErrLoader, fmt.Errorf("action: load message %s: %w", a.MessageID, err))
	}

	if e.rateLimiter != nil && e.limitPerMin > 0 {
		allowed, wait, err := e.rateLimiter.Allow(ctx, a.AccountID, e.limitPerMin)
		if err != nil {
			return model.NewKindError(model.ErrTransientProvider, fmt.Errorf("action: rate limit: %w", err))
		}
		if !allowed {
			return model.NewKindError(model.ErrTransientProvider, fmt.Errorf("action: rate limited, retry after %s", wait))
		}
	}

	pre, err := e.provider.PreImage(ctx, a.AccountID, msg.ProviderMessageID)
	if err != nil {
		return classifyProviderErr(err)
	}

	if a.Status == model.ActionStatusQueued {
		if err := e.store.Actions.Transition(ctx, a.ID, model.ActionStatusExecuting, ""); err != nil {
			return model.NewKindError(model.ErrInternalInvariant, fmt.Errorf("action: queued->executing: %w", err))
		}
	}

	hint, execErr := e.dispatch(ctx, a, msg, pre)
	if execErr != nil {
		if ke, ok := model.AsKindError(execErr); ok && ke.Retryable() {
			// Leave the action in Executing; the reaper requeues the job
			// and a future worker will retry against the same row.
			return execErr
		}
		if err := e.store.Actions.Transition(ctx, a.ID, model.ActionStatusFailed, execErr.Error()); err != nil {
			logging.Warn("action: failed to record Failed transition", "action_id", a.ID, "err", err.Error())
		}
		metrics.ActionsExecuted.WithLabelValues(string(a.ActionType), "failed").Inc()
		return execErr
	}

	if hint != nil {
		if err := e.store.Actions.SetUndoHint(ctx, a.ID, *hint); err != nil {
			return model.NewKindError(model.ErrIntegrity, fmt.Errorf("action: set undo hint: %w", err))
		}
	}
	if err := e.store.Actions.Transition(ctx, a.ID, model.ActionStatusCompleted, ""); err != nil {
		return model.NewKindError(model.ErrInternalInvariant, fmt.Errorf("action: executing->completed: %w", err))
	}
	metrics.ActionsExecuted.WithLabelValues(string(a.ActionType), "completed").Inc()
	return nil
}

// dispatch runs the provider effect for a.ActionType and returns the undo
// hint to record, per §4.8's table.
func (e *Executor) dispatch(ctx context.Context, a *model.Action, msg *model.Message, pre *provider.PreImage) (*model.UndoHint, error) {
	pmid := msg.ProviderMessageID

	switch a.ActionType {
	case model.ActionArchive:
		if err := e.provider.RemoveLabel(ctx, a.AccountID, pmid, provider.LabelInbox); err != nil {
			return nil, classifyProviderErr(err)
		}
		return &model.UndoHint{InverseAction: model.InverseApplyLabel, InverseParameters: labelParams(provider.LabelInbox)}, nil

	case model.ActionApplyLabel:
		labelID, err := labelIDParam(a.Parameters)
		if err != nil {
			return nil, model.NewKindError(model.ErrInternalInvariant, err)
		}
		if err := e.provider.AddLabel(ctx, a.AccountID, pmid, labelID); err != nil {
			return nil, classifyProviderErr(err)
		}
		return &model.UndoHint{InverseAction: model.InverseRemoveLabel, InverseParameters: labelParams(labelID)}, nil

	case model.ActionRemoveLabel:
		labelID, err := labelIDParam(a.Parameters)
		if err != nil {
			return nil, model.NewKindError(model.ErrInternalInvariant, err)
		}
		if err := e.provider.RemoveLabel(ctx, a.AccountID, pmid, labelID); err != nil {
			return nil, classifyProviderErr(err)
		}
		return &model.UndoHint{InverseAction: model.InverseApplyLabel, InverseParameters: labelParams(labelID)}, nil

	case model.ActionMarkRead:
		if err := e.provider.RemoveLabel(ctx, a.AccountID, pmid, provider.LabelUnread); err != nil {
			return nil, classifyProviderErr(err)
		}
		return &model.UndoHint{InverseAction: model.InverseMarkUnread}, nil

	case model.ActionMarkUnread:
		if err := e.provider.AddLabel(ctx, a.AccountID, pmid, provider.LabelUnread); err != nil {
			return nil, classifyProviderErr(err)
		}
		return &model.UndoHint{InverseAction: model.InverseMarkRead}, nil

	case model.ActionStar:
		if err := e.provider.AddLabel(ctx, a.AccountID, pmid, provider.LabelStarred); err != nil {
			return nil, classifyProviderErr(err)
		}
		return &model.UndoHint{InverseAction: model.InverseUnstar}, nil

	case model.ActionUnstar:
		if err := e.provider.RemoveLabel(ctx, a.AccountID, pmid, provider.LabelStarred); err != nil {
			return nil, classifyProviderErr(err)
		}
		return &model.UndoHint{InverseAction: model.InverseStar}, nil

	case model.ActionTrash:
		if err := e.provider.Trash(ctx, a.AccountID, pmid); err != nil {
			return nil, classifyProviderErr(err)
		}
		return &model.UndoHint{InverseAction: model.InverseRestore}, nil

	case model.ActionRestore:
		if err := e.provider.Untrash(ctx, a.AccountID, pmid); err != nil {
			return nil, classifyProviderErr(err)
		}
		return &model.UndoHint{InverseAction: model.InverseTrash}, nil

	case model.ActionDelete:
		if err := e.provider.Delete(ctx, a.AccountID, pmid); err != nil {
			return nil, classifyProviderErr(err)
		}
		return &model.UndoHint{InverseAction: model.InverseNone}, nil

	case model.ActionForward, model.ActionAutoReply:
		if err := e.sendMIME(ctx, a, msg); err != nil {
			return nil, classifyProviderErr(err)
		}
		return &model.UndoHint{InverseAction: model.InverseNone}, nil

	case model.ActionSnooze:
		return e.snooze(ctx, a, msg)

	case model.ActionUnapplyLabel:
		// archive/apply_label/remove_label now synthesize apply_label/
		// remove_label inverses directly (§4.8's table), so nothing produces
		// unapply_label in practice; kept for the inverse-token vocabulary's
		// exhaustiveness (spec.md's glossary still lists it). Same effect as
		// remove_label: strip the label_id parameter back off.
		labelID, err := labelIDParam(a.Parameters)
		if err != nil {
			return nil, model.NewKindError(model.ErrInternalInvariant, err)
		}
		if err := e.provider.RemoveLabel(ctx, a.AccountID, pmid, labelID); err != nil {
			return nil, classifyProviderErr(err)
		}
		return &model.UndoHint{InverseAction: model.InverseNone}, nil

	case model.ActionUnsnooze:
		// Undo of snooze (§4.9): cancel the pending unsnooze.gmail job, add
		// INBOX back, remove the snooze label — the reverse of C11's wake.
		labelID, err := labelIDParam(a.Parameters)
		if err != nil {
			return nil, model.NewKindError(model.ErrInternalInvariant, err)
		}
		if err := e.store.Jobs.CancelPendingUnsnooze(ctx, a.MessageID); err != nil {
			return nil, model.NewKindError(model.ErrIntegrity, fmt.Errorf("action: cancel pending unsnooze: %w", err))
		}
		if err := e.provider.AddLabel(ctx, a.AccountID, pmid, provider.LabelInbox); err != nil {
			return nil, classifyProviderErr(err)
		}
		if err := e.provider.RemoveLabel(ctx, a.AccountID, pmid, labelID); err != nil {
			return nil, classifyProviderErr(err)
		}
		return &model.UndoHint{InverseAction: model.InverseNone}, nil

	case model.ActionDeleteReply, model.ActionReopenTask, model.ActionRemoveNote, model.ActionDeescalate:
		// Inverses of delete/create_task/add_note/escalate. None of those
		// forward actions ever produce a non-none undo_hint (delete is
		// irreversible; create_task/add_note/escalate have no provider
		// effect to begin with), so the undo subsystem never synthesizes
		// these in practice. Handled for exhaustiveness, not reachability.
		return &model.UndoHint{InverseAction: model.InverseNone}, nil

	case model.ActionNone, model.ActionAddNote, model.ActionCreateTask, model.ActionEscalate:
		// No provider effect; these are recorded for audit/UI only.
		return &model.UndoHint{InverseAction: model.InverseNone}, nil

	default:
		return nil, model.NewKindError(model.ErrInternalInvariant, fmt.Errorf("action: unknown action type %q", a.ActionType))
	}
}

// sendMIMEParams is the Action.Parameters shape for forward/auto_reply,
// carried verbatim from the Decision the action was created from.
type sendMIMEParams struct {
	To        []string              `json:"to"`
	Cc        []string              `json:"cc,omitempty"`
	Bcc       []string              `json:"bcc,omitempty"`
	Subject   string                `json:"subject"`
	BodyPlain string                `json:"body_plain"`
	BodyHTML  string                `json:"body_html,omitempty"`
	Reply     bool                  `json:"reply"` // true for auto_reply, false for forward
	Attachments []sendMIMEAttachment `json:"attachments,omitempty"`
}

type sendMIMEAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	DataBase64  string `json:"data_base64"`
}

// sendMIME builds the RFC-5322 envelope for a forward/auto_reply action and
// hands it to the provider, per §4.8's MIME paragraph: In-Reply-To/
// References set only for replies, the thread id passed through to keep the
// provider-side conversation.
func (e *Executor) sendMIME(ctx context.Context, a *model.Action, msg *model.Message) error {
	var p sendMIMEParams
	if err := json.Unmarshal(a.Parameters, &p); err != nil {
		return model.NewKindError(model.ErrInternalInvariant, fmt.Errorf("action: decode send parameters: %w", err))
	}

	mm := provider.MIMEMessage{
		From:      e.fromAddress,
		To:        p.To,
		Cc:        p.Cc,
		Bcc:       p.Bcc,
		Subject:   p.Subject,
		BodyPlain: p.BodyPlain,
		BodyHTML:  p.BodyHTML,
		ThreadID:  msg.ThreadID,
	}
	if p.Reply {
		mm.InReplyTo = msg.Headers["Message-ID"]
		mm.References = msg.Headers["References"]
		if mm.References == "" {
			mm.References = mm.InReplyTo
		}
	}
	for _, att := range p.Attachments {
		data, err := base64.StdEncoding.DecodeString(att.DataBase64)
		if err != nil {
			return model.NewKindError(model.ErrInternalInvariant, fmt.Errorf("action: decode attachment %q: %w", att.Filename, err))
		}
		mm.Attachments = append(mm.Attachments, provider.Attachment{
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Data:        data,
		})
	}

	return e.provider.Send(ctx, a.AccountID, mm)
}

const oneYear = 365 * 24 * time.Hour

// snoozeParams accepts either an absolute wake time or a relative offset,
// per §4.8's "Snooze parameter parsing" paragraph.
type snoozeParams struct {
	Until  *time.Time `json:"until"`
	Amount int        `json:"amount"`
	Units  string     `json:"units"` // minutes | hours | days
}

func (p snoozeParams) resolve() (time.Time, error) {
	if p.Until != nil {
		return *p.Until, nil
	}
	var unit time.Duration
	switch p.Units {
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	default:
		return time.Time{}, fmt.Errorf("action: invalid snooze units %q", p.Units)
	}
	if p.Amount <= 0 {
		return time.Time{}, fmt.Errorf("action: invalid snooze amount %d", p.Amount)
	}
	d := time.Duration(p.Amount) * unit
	if d > oneYear {
		return time.Time{}, fmt.Errorf("action: snooze amount exceeds one year")
	}
	return time.Now().Add(d), nil
}

// snooze implements §4.8's snooze row: remove INBOX, ensure the snooze
// label exists, add it, and enqueue the unsnooze.gmail wake job.
func (e *Executor) snooze(ctx context.Context, a *model.Action, msg *model.Message) (*model.UndoHint, error) {
	var p snoozeParams
	if err := json.Unmarshal(a.Parameters, &p); err != nil {
		return nil, model.NewKindError(model.ErrInternalInvariant, fmt.Errorf("action: decode snooze parameters: %w", err))
	}
	target, err := p.resolve()
	if err != nil {
		return nil, model.NewKindError(model.ErrInternalInvariant, err)
	}

	labelID, err := e.provider.EnsureLabel(ctx, a.AccountID, e.snoozeLabel)
	if err != nil {
		return nil, classifyProviderErr(err)
	}

	pmid := msg.ProviderMessageID
	if err := e.provider.RemoveLabel(ctx, a.AccountID, pmid, provider.LabelInbox); err != nil {
		return nil, classifyProviderErr(err)
	}
	if err := e.provider.AddLabel(ctx, a.AccountID, pmid, labelID); err != nil {
		return nil, classifyProviderErr(err)
	}

	payload := model.UnsnoozeGmailPayload{MessageID: msg.ID, SnoozeLabelID: labelID}
	idempotencyKey := "unsnooze:" + msg.ID
	if _, err := e.store.Jobs.Enqueue(ctx, model.JobTypeUnsnoozeGmail, payload, 0, idempotencyKey, &target); err != nil {
		return nil, model.NewKindError(model.ErrIntegrity, fmt.Errorf("action: enqueue unsnooze: %w", err))
	}

	return &model.UndoHint{InverseAction: model.InverseUnsnooze, InverseParameters: labelParams(labelID)}, nil
}

func labelParams(labelID string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"label_id": labelID})
	return b
}

func labelIDParam(params json.RawMessage) (string, error) {
	var p struct {
		LabelID string `json:"label_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return "", fmt.Errorf("action: decode label_id parameter: %w", err)
	}
	if p.LabelID == "" {
		return "", fmt.Errorf("action: missing label_id parameter")
	}
	return p.LabelID, nil
}

// classifyProviderErr maps a provider error onto the job queue's retry
// taxonomy (§7). The executor has no 404-tolerant action (unlike the
// Snooze Scheduler), so a 404 here surfaces as a permanent
// failure rather than a success.
func classifyProviderErr(err error) error {
	if provider.NotFound(err) {
		return model.NewKindError(model.ErrPermanentProvider, err)
	}
	return provider.ClassifyErr(err)
}
