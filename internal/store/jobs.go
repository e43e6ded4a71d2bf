package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/dimfeld/ashford/internal/model"
)

// JobStore implements the Job Queue's durable state (spec §4.1, C1).
type JobStore struct {
	db *sql.DB
}

// Enqueue inserts a new job. If idempotencyKey is non-empty and any job
// already holds it (in any state, terminal included: the key is unique
// across the whole table), Enqueue treats the conflict as success and
// returns the existing job's id, per §4.1's "Idempotency" clause.
func (s *JobStore) Enqueue(ctx context.Context, jobType model.JobType, payload interface{}, priority int, idempotencyKey string, notBefore *time.Time) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	var existing string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO jobs (id, type, payload, priority, state, attempts, max_attempts, not_before, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'queued', 0, $5, $6, NULLIF($7, ''), NOW(), NOW())
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL
		DO UPDATE SET idempotency_key = jobs.idempotency_key
		RETURNING id
	`, id, string(jobType), raw, priority, defaultMaxAttempts(jobType), notBefore, idempotencyKey).Scan(&existing)
	if err != nil {
		return "", err
	}
	return existing, nil
}

func defaultMaxAttempts(t model.JobType) int {
	switch t {
	case model.JobTypeOutboundSend, model.JobTypeActionGmail:
		return 8
	default:
		return 5
	}
}

// Dispatch claims the oldest eligible queued job, per §4.1's "Dispatch"
// clause: single-statement UPDATE ... WHERE ... RETURNING, so concurrent
// workers never observe the same row. Returns nil, nil when no job is
// eligible.
func (s *JobStore) Dispatch(ctx context.Context, workerID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		WITH claimed AS (
			UPDATE jobs
			SET state = 'running',
			    attempts = attempts + 1,
			    heartbeat_at = NOW(),
			    updated_at = NOW()
			WHERE id = (
				SELECT id FROM jobs
				WHERE state = 'queued'
				  AND (not_before IS NULL OR not_before <= NOW())
				ORDER BY priority ASC, created_at ASC
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, type, payload, priority, state, attempts, max_attempts,
			          not_before, idempotency_key, last_error, heartbeat_at, created_at, updated_at
		)
		SELECT * FROM claimed
	`)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = workerID // reserved for a future worker_id column; not yet persisted
	return job, nil
}

// Heartbeat refreshes heartbeat_at for a running job, per §4.1's
// "Heartbeats" clause.
func (s *JobStore) Heartbeat(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET heartbeat_at = NOW() WHERE id = $1 AND state = 'running'`, jobID)
	return err
}

// Complete marks a job as completed.
func (s *JobStore) Complete(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET state = 'completed', updated_at = NOW() WHERE id = $1`, jobID)
	return err
}

// Retry applies §4.1's backoff formula, or fails the job outright when
// attempts are exhausted or the error is non-retryable.
func (s *JobStore) Retry(ctx context.Context, jobID string, attempts, maxAttempts int, retryable bool, lastErr string) error {
	if !retryable || attempts >= maxAttempts {
		_, err := s.db.ExecContext(ctx, `
			UPDATE jobs SET state = 'failed', last_error = $2, updated_at = NOW() WHERE id = $1
		`, jobID, lastErr)
		return err
	}

	backoff := backoffDuration(attempts)
	notBefore := time.Now().Add(backoff)
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = 'queued', not_before = $2, last_error = $3, updated_at = NOW() WHERE id = $1
	`, jobID, notBefore, lastErr)
	return err
}

// backoffDuration implements base * 2^(attempts-1) * (1 + U[-0.2, 0.2]),
// base = 5s, per §4.1.
func backoffDuration(attempts int) time.Duration {
	const base = 5 * time.Second
	mult := 1 << uint(attempts-1)
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(float64(base*time.Duration(mult)) * jitter)
}

// Reap reclaims jobs whose heartbeat is older than staleAfter, returning
// them to queued with not_before pushed out by backoffDuration(attempts)
// rather than made immediately eligible, per §4.1: a stale heartbeat usually
// means the job itself is wedged on a flaky dependency, and reaping it
// straight back to the front of the queue would just retry into the same
// outage. attempts is not bumped here — Dispatch already incremented it when
// the job was claimed the first time.
func (s *JobStore) Reap(ctx context.Context, staleAfter time.Duration) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, attempts FROM jobs
		WHERE state = 'running' AND heartbeat_at < NOW() - $1::interval
	`, staleAfter.String())
	if err != nil {
		return 0, err
	}
	type stale struct {
		id       string
		attempts int
	}
	var reclaim []stale
	for rows.Next() {
		var j stale
		if err := rows.Scan(&j.id, &j.attempts); err != nil {
			rows.Close()
			return 0, err
		}
		reclaim = append(reclaim, j)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	rows.Close()

	var n int64
	for _, j := range reclaim {
		notBefore := time.Now().Add(backoffDuration(j.attempts))
		res, err := s.db.ExecContext(ctx, `
			UPDATE jobs SET state = 'queued', not_before = $2, updated_at = NOW() WHERE id = $1
		`, j.id, notBefore)
		if err != nil {
			return n, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return n, err
		}
		n += affected
	}
	return n, nil
}

// CancelPendingUnsnooze cancels any still-queued unsnooze.gmail job for
// messageID, per §4.9's undo-of-snooze clause ("cancel pending unsnooze
// job"). A no-op if the job already ran or doesn't exist.
func (s *JobStore) CancelPendingUnsnooze(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = 'canceled', updated_at = NOW()
		WHERE type = $1 AND state = 'queued' AND payload->>'message_id' = $2
	`, string(model.JobTypeUnsnoozeGmail), messageID)
	return err
}

func scanJob(row *sql.Row) (*model.Job, error) {
	var j model.Job
	var jobType string
	var notBefore, heartbeatAt sql.NullTime
	var idempotencyKey, lastError sql.NullString

	err := row.Scan(&j.ID, &jobType, &j.Payload, &j.Priority, &j.State, &j.Attempts, &j.MaxAttempts,
		&notBefore, &idempotencyKey, &lastError, &heartbeatAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Type = model.JobType(jobType)
	if notBefore.Valid {
		j.NotBefore = &notBefore.Time
	}
	if heartbeatAt.Valid {
		j.HeartbeatAt = &heartbeatAt.Time
	}
	j.IdempotencyKey = idempotencyKey.String
	j.LastError = lastError.String
	return &j, nil
}
