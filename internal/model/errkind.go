package model

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrKind is the error taxonomy from spec.md §7. Every error that crosses a
// job-handler boundary is classified into exactly one of these so the Job
// Queue knows whether to retry.
type ErrKind string

const (
	ErrTransientProvider ErrKind = "transient_provider"
	ErrPermanentProvider ErrKind = "permanent_provider"
	ErrAuth              ErrKind = "auth"
	ErrLLMTransient      ErrKind = "llm_transient"
	ErrLLMParse          ErrKind = "llm_parse"
	ErrCondition         ErrKind = "condition"
	ErrLoader            ErrKind = "loader"
	ErrIntegrity         ErrKind = "integrity"
	ErrInternalInvariant ErrKind = "internal_invariant"
)

// retryable reports whether the job queue should schedule a retry for this
// kind of error (§7's Policy column), independent of attempts remaining.
var retryable = map[ErrKind]bool{
	ErrTransientProvider: true,
	ErrPermanentProvider: false,
	ErrAuth:              true, // retryable once after refresh; see KindError.AuthRetried
	ErrLLMTransient:      true,
	ErrLLMParse:          false, // handled inline by emitting a safe decision, not retried
	ErrCondition:         false, // fatal per-rule, not per-job
	ErrLoader:            true,
	ErrIntegrity:         false, // not retried; idempotent unique-key conflicts are resolved as success before one is raised
	ErrInternalInvariant: false,
}

// KindError wraps an underlying error with its taxonomy classification.
type KindError struct {
	Kind       ErrKind
	Cause      error
	AuthRetried bool // set once an Auth error's single retry has been spent
}

func (e *KindError) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *KindError) Unwrap() error { return e.Cause }

// Retryable reports whether the job queue should requeue the job that
// produced this error, per §7.
func (e *KindError) Retryable() bool {
	if e.Kind == ErrAuth && e.AuthRetried {
		return false
	}
	return retryable[e.Kind]
}

// NewKindError classifies cause under kind, preserving it as the %w chain
// root via github.com/pkg/errors.WithStack so callers can still recover the
// original error with errors.Cause for logging.
func NewKindError(kind ErrKind, cause error) *KindError {
	return &KindError{Kind: kind, Cause: pkgerrors.WithStack(cause)}
}

// AsKindError extracts a *KindError from err's chain, if any.
func AsKindError(err error) (*KindError, bool) {
	for err != nil {
		if ke, ok := err.(*KindError); ok {
			return ke, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
