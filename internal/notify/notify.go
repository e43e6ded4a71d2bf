// Package notify implements the approval.notify job (spec.md §4.1's job
// type list): posting a Slack message summarizing an ApprovedPending
// action so a human can approve or reject it out of band. Grounded on
// jordigilh-kubernaut's use of github.com/slack-go/slack for operator
// notifications — the out-of-band leg of the externally-specified
// "Approval channel"; the approval decision itself still flows through
// C10's DB-backed transitions, never Slack interactivity.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/dimfeld/ashford/internal/model"
	"github.com/dimfeld/ashford/internal/store"
)

// Notifier posts approval-needed summaries to a configured Slack channel.
type Notifier struct {
	store    *store.Store
	client   *slack.Client
	channel  string
	approveURLBase string
}

// New builds a Notifier. approveURLBase is prefixed to the action id to
// build the approve/reject links embedded in the message (e.g. the
// Ashford API's `/actions/{id}/approve` and `/reject` endpoints).
func New(st *store.Store, client *slack.Client, channel, approveURLBase string) *Notifier {
	return &Notifier{store: st, client: client, channel: channel, approveURLBase: approveURLBase}
}

// Handle is the queue.Handler registered for model.JobTypeApprovalNotify.
func (n *Notifier) Handle(ctx context.Context, job *model.Job) error {
	var payload model.ApprovalNotifyPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return model.NewKindError(model.ErrInternalInvariant, fmt.Errorf("notify: decode payload: %w", err))
	}

	a, err := n.store.Actions.Get(ctx, payload.ActionID)
	if err != nil {
		return model.NewKindError(model.ErrLoader, fmt.Errorf("notify: load action %s: %w", payload.ActionID, err))
	}

	msg, err := n.store.Messages.Get(ctx, a.MessageID)
	if err != nil {
		return model.NewKindError(model.ErrLoader, fmt.Errorf("notify: load message %s: %w", a.MessageID, err))
	}

	blocks := n.buildBlocks(a, msg)
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionBlocks(blocks...)); err != nil {
		// Slack's client surfaces rate limits and 5xx as plain errors with
		// no transient/permanent partition of its own; treat all of them
		// as retryable, since a dropped notification is silently harmless
		// to retry and costly to lose.
		return model.NewKindError(model.ErrTransientProvider, fmt.Errorf("notify: post message: %w", err))
	}
	return nil
}

func (n *Notifier) buildBlocks(a *model.Action, msg *model.Message) []slack.Block {
	header := slack.NewTextBlockObject(slack.PlainTextType, "Ashford needs approval", false, false)
	summary := fmt.Sprintf("*Action:* `%s`\n*From:* %s\n*Subject:* %s", a.ActionType, msg.SenderEmail, msg.Subject)
	body := slack.NewTextBlockObject(slack.MarkdownType, summary, false, false)

	approveText := slack.NewTextBlockObject(slack.PlainTextType, "Approve", false, false)
	rejectText := slack.NewTextBlockObject(slack.PlainTextType, "Reject", false, false)
	approveBtn := slack.NewButtonBlockElement("approve", a.ID, approveText)
	approveBtn.URL = fmt.Sprintf("%s/actions/%s/approve", n.approveURLBase, a.ID)
	rejectBtn := slack.NewButtonBlockElement("reject", a.ID, rejectText)
	rejectBtn.URL = fmt.Sprintf("%s/actions/%s/reject", n.approveURLBase, a.ID)

	return []slack.Block{
		slack.NewHeaderBlock(header),
		slack.NewSectionBlock(body, nil, nil),
		slack.NewActionBlock("approval_"+a.ID, approveBtn, rejectBtn),
	}
}
