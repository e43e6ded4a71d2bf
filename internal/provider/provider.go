// Package provider defines the mail-provider boundary (spec.md's "Mail
// provider client... assumed to offer idempotent retries and typed errors
// partitioned into transient and permanent") and GmailProvider, a plain
// Gmail REST adapter the Action Executor (C8) calls through. A fully-featured OAuth
// Gmail API client is out of scope per spec.md's non-goals (no secret
// storage, no provider selection) — this package gives the executor
// something real to call against, grounded on the teacher's ESP client
// shape (internal/mailing's SparkPost/Mailgun/SES adapters all implement
// the same send-envelope interface the teacher's worker calls through).
package provider

import (
	"context"
	"fmt"

	"github.com/dimfeld/ashford/internal/model"
)

// PreImage is re-exported from model for callers that only import
// provider; Gmail's label/trash state is what the executor snapshots
// before mutating, per §4.8.
type PreImage = model.PreImage

// MIMEMessage is the RFC-5322 envelope the Action Executor builds for
// forward/auto_reply before handing it to Send.
type MIMEMessage struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	BodyPlain   string
	BodyHTML    string
	InReplyTo   string // set for replies, omitted for forwards
	References  string
	ThreadID    string // optional: keep the provider-side conversation
	Attachments []Attachment
}

// Attachment is one RFC-2045 base64 part of a MIMEMessage.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Error partitions provider failures into the two buckets spec.md assumes
// the provider offers: Transient (retry) and Permanent (don't).
type Error struct {
	Transient bool
	Cause     error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("provider: %s error: %v", kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// NotFound reports whether err represents the provider's 404-equivalent,
// which the Snooze Scheduler (C11) treats as a successful no-op rather than
// a failure.
func NotFound(err error) bool {
	nf, ok := err.(interface{ NotFound() bool })
	return ok && nf.NotFound()
}

// ClassifyErr maps a raw provider error onto the job queue's retry
// taxonomy (§7): *Error{Transient} to the matching model.ErrKind, an
// already-classified model.KindError passed through, anything else
// defaulting to transient (fail open on unrecognized failures so a
// novel error doesn't permanently strand a job).
func ClassifyErr(err error) error {
	if pe, ok := err.(*Error); ok {
		if pe.Transient {
			return model.NewKindError(model.ErrTransientProvider, pe)
		}
		return model.NewKindError(model.ErrPermanentProvider, pe)
	}
	if _, ok := model.AsKindError(err); ok {
		return err
	}
	return model.NewKindError(model.ErrTransientProvider, err)
}

// Provider is everything the Action Executor and Snooze Scheduler need
// from Gmail. Every method is assumed idempotent under retry, per
// spec.md's provider contract.
type Provider interface {
	// PreImage reads the message's current label/trash/starred/unread
	// state for the undo-hint snapshot (§4.8).
	PreImage(ctx context.Context, accountID, providerMessageID string) (*PreImage, error)

	AddLabel(ctx context.Context, accountID, providerMessageID, labelID string) error
	RemoveLabel(ctx context.Context, accountID, providerMessageID, labelID string) error

	Trash(ctx context.Context, accountID, providerMessageID string) error
	Untrash(ctx context.Context, accountID, providerMessageID string) error
	Delete(ctx context.Context, accountID, providerMessageID string) error

	// EnsureLabel returns the provider-side id for name, creating it if
	// absent (used by snooze to materialize "Ashford/Snoozed" once).
	EnsureLabel(ctx context.Context, accountID, name string) (labelID string, err error)

	Send(ctx context.Context, accountID string, msg MIMEMessage) error
}

// WellKnownLabels are Gmail's fixed system label ids, per §4.8's table
// (archive/mark_read/star map directly onto these).
const (
	LabelInbox   = "INBOX"
	LabelUnread  = "UNREAD"
	LabelStarred = "STARRED"
)
