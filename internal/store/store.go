// Package store persists Ashford's §3 data model to Postgres using
// database/sql and github.com/lib/pq, mirroring the teacher's
// internal/mailing.Store (internal/mailing/store.go in the teacher
// repository): a thin struct wrapping *sql.DB, one method per query, plain
// parameterized SQL rather than an ORM.
package store

import (
	"database/sql"
)

// Store is the root handle for all Ashford repositories. Each repository
// (Jobs, Decisions, Actions, ...) is a typed view over the same pool,
// following the teacher's one-struct-per-domain-table convention.
type Store struct {
	db *sql.DB

	Jobs        *JobStore
	Rules       *RuleStore
	Decisions   *DecisionStore
	Actions     *ActionStore
	ActionLinks *ActionLinkStore
	Labels      *LabelStore
	Directions  *DirectionStore
	Messages    *MessageStore
}

// New wraps an already-opened *sql.DB (configured by the caller per
// Config.Database — max open/idle conns, conn lifetime) in a Store.
func New(db *sql.DB) *Store {
	return &Store{
		db:          db,
		Jobs:        &JobStore{db: db},
		Rules:       &RuleStore{db: db},
		Decisions:   &DecisionStore{db: db},
		Actions:     &ActionStore{db: db},
		ActionLinks: &ActionLinkStore{db: db},
		Labels:      &LabelStore{db: db},
		Directions:  &DirectionStore{db: db},
		Messages:    &MessageStore{db: db},
	}
}

// DB exposes the underlying pool for callers that need it directly, e.g.
// the admin API's priority-swap lock, whose Postgres advisory-lock fallback
// runs on this pool (internal/api/handlers.go).
func (s *Store) DB() *sql.DB { return s.db }
