package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock serializes a critical section across API replicas — currently
// only the §5 priority-swap transaction, which reads and writes two
// deterministic_rules rows and needs an outer lock so two concurrent swap
// requests for the same scope don't race on each other's row-count check.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// NewLock creates a lock for the priority-swap critical section using the
// best available backend. If redisClient is non-nil, uses Redis (preferred
// across API replicas). Otherwise falls back to a PostgreSQL advisory lock,
// which is enough for a single-instance deployment.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// =============================================================================
// PostgreSQL advisory lock (fallback when no Redis client is configured)
// =============================================================================
// Uses pg_try_advisory_lock / pg_advisory_unlock, which are session-scoped:
// the lock is released automatically if the DB connection drops, so a
// crashed request can't wedge the swap lock forever the way a TTL-less Redis
// key would.

// PGAdvisoryLock implements DistLock using a PostgreSQL advisory lock keyed
// by an fnv64a hash of the swap scope, so callers pass a human-readable key
// ("priority_swap:acct_1") rather than juggling int64 lock IDs themselves.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock. Returns true if successful.
// pg_try_advisory_lock returns immediately rather than blocking, so a
// contended swap fails fast instead of queuing behind the holder.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

// Release releases the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
