package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dimfeld/ashford/internal/model"
)

func setupTestDB(t *testing.T) (*JobStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &JobStore{db: db}, mock, func() { db.Close() }
}

func TestJobStore_Enqueue(t *testing.T) {
	js, mock, cleanup := setupTestDB(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id"}).AddRow("job-1")
	mock.ExpectQuery("INSERT INTO jobs").WillReturnRows(rows)

	id, err := js.Enqueue(context.Background(), model.JobTypeClassify,
		model.ClassifyPayload{AccountID: "acct_1", MessageID: "msg_1"}, 10, "classify:acct_1:msg_1", nil)
	require.NoError(t, err)
	require.Equal(t, "job-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_Dispatch_NoneEligible(t *testing.T) {
	js, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("WITH claimed AS").WillReturnError(sql.ErrNoRows)

	job, err := js.Dispatch(context.Background(), "worker-1")
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestJobStore_Retry_ExhaustedFails(t *testing.T) {
	js, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE jobs SET state = 'failed'").WillReturnResult(sqlmock.NewResult(0, 1))

	err := js.Retry(context.Background(), "job-1", 5, 5, true, "boom")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_Retry_NonRetryableFailsImmediately(t *testing.T) {
	js, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE jobs SET state = 'failed'").WillReturnResult(sqlmock.NewResult(0, 1))

	err := js.Retry(context.Background(), "job-1", 1, 5, false, "permanent")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_Retry_Requeues(t *testing.T) {
	js, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE jobs SET state = 'queued'").WillReturnResult(sqlmock.NewResult(0, 1))

	err := js.Retry(context.Background(), "job-1", 2, 5, true, "transient")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// notBeforeInFuture matches a time.Time argument that is strictly later than
// the moment the query was issued, catching a regression back to not_before
// = NOW() (which would make a reaped job immediately eligible again).
type notBeforeInFuture struct{}

func (notBeforeInFuture) Match(v interface{}) bool {
	t, ok := v.(time.Time)
	return ok && t.After(time.Now())
}

func TestJobStore_Reap_AppliesBackoffNotImmediateRetry(t *testing.T) {
	js, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, attempts FROM jobs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "attempts"}).AddRow("job-1", 3))
	mock.ExpectExec("UPDATE jobs SET state = 'queued'").
		WithArgs("job-1", notBeforeInFuture{}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := js.Reap(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_Reap_NoneStale(t *testing.T) {
	js, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, attempts FROM jobs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "attempts"}))

	n, err := js.Reap(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
