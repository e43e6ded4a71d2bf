package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dimfeld/ashford/internal/model"
)

func setupActionStoreTestDB(t *testing.T) (*ActionStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &ActionStore{db: db}, mock, func() { db.Close() }
}

func actionColumns() []string {
	return []string{
		"id", "account_id", "message_id", "decision_id", "action_type", "parameters",
		"status", "error", "executed_at", "undo_hint", "trace_id", "created_at", "updated_at",
	}
}

func TestActionStore_List_FiltersByStatus(t *testing.T) {
	as, mock, cleanup := setupActionStoreTestDB(t)
	defer cleanup()

	rows := sqlmock.NewRows(actionColumns()).
		AddRow("act_1", "acct_1", "msg_1", "", "archive", []byte(`{}`), "Completed", "", nil, nil, "", time.Now(), time.Now())
	mock.ExpectQuery("FROM actions").
		WithArgs("acct_1", string(model.ActionStatusCompleted), "", 100).
		WillReturnRows(rows)

	out, err := as.List(context.Background(), ActionFilter{AccountID: "acct_1", Status: model.ActionStatusCompleted})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, model.ActionStatusCompleted, out[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActionStore_List_DefaultsLimitWhenUnset(t *testing.T) {
	as, mock, cleanup := setupActionStoreTestDB(t)
	defer cleanup()

	rows := sqlmock.NewRows(actionColumns())
	mock.ExpectQuery("FROM actions").
		WithArgs("", "", "", 100).
		WillReturnRows(rows)

	out, err := as.List(context.Background(), ActionFilter{})
	require.NoError(t, err)
	require.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActionStore_Create_StampsQueuedStatus(t *testing.T) {
	as, mock, cleanup := setupActionStoreTestDB(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO actions").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))

	a := &model.Action{AccountID: "acct_1", MessageID: "msg_1", ActionType: model.ActionArchive, Parameters: []byte(`{}`)}
	err := as.Create(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, model.ActionStatusQueued, a.Status)
	require.NotEmpty(t, a.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
