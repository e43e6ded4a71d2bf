package action

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimfeld/ashford/internal/model"
	"github.com/dimfeld/ashford/internal/provider"
	"github.com/dimfeld/ashford/internal/store"
)

// undoHintInverse matches a SetUndoHint exec's undo_hint JSON arg against an
// expected inverse_action token, without caring about byte-for-byte JSON
// layout.
type undoHintInverse struct{ want model.InverseActionType }

func (m undoHintInverse) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	var hint model.UndoHint
	if err := json.Unmarshal(b, &hint); err != nil {
		return false
	}
	return hint.InverseAction == m.want
}

// fakeProvider is a hand-rolled provider.Provider double, in the spirit of
// the teacher's MockBatchESPSender: no mock framework, just a struct that
// records calls and lets tests script failures per-method.
type fakeProvider struct {
	pre          *provider.PreImage
	preErr       error
	addErr       error
	removeErr    error
	trashErr     error
	untrashErr   error
	deleteErr    error
	ensureLabel  string
	ensureErr    error
	sendErr      error

	added     []string
	removed   []string
	sent      []provider.MIMEMessage
}

func (f *fakeProvider) PreImage(ctx context.Context, accountID, providerMessageID string) (*provider.PreImage, error) {
	if f.preErr != nil {
		return nil, f.preErr
	}
	if f.pre != nil {
		return f.pre, nil
	}
	return &provider.PreImage{}, nil
}

func (f *fakeProvider) AddLabel(ctx context.Context, accountID, providerMessageID, labelID string) error {
	f.added = append(f.added, labelID)
	return f.addErr
}

func (f *fakeProvider) RemoveLabel(ctx context.Context, accountID, providerMessageID, labelID string) error {
	f.removed = append(f.removed, labelID)
	return f.removeErr
}

func (f *fakeProvider) Trash(ctx context.Context, accountID, providerMessageID string) error   { return f.trashErr }
func (f *fakeProvider) Untrash(ctx context.Context, accountID, providerMessageID string) error { return f.untrashErr }
func (f *fakeProvider) Delete(ctx context.Context, accountID, providerMessageID string) error  { return f.deleteErr }

func (f *fakeProvider) EnsureLabel(ctx context.Context, accountID, name string) (string, error) {
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	if f.ensureLabel != "" {
		return f.ensureLabel, nil
	}
	return "Label_snooze", nil
}

func (f *fakeProvider) Send(ctx context.Context, accountID string, msg provider.MIMEMessage) error {
	f.sent = append(f.sent, msg)
	return f.sendErr
}

func setupExecutorStore(t *testing.T) (*store.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return store.New(db), mock, func() { db.Close() }
}

func actionRows(id, accountID, messageID, actionType, status string, params json.RawMessage) *sqlmock.Rows {
	if params == nil {
		params = json.RawMessage(`{}`)
	}
	return sqlmock.NewRows([]string{
		"id", "account_id", "message_id", "decision_id", "action_type", "parameters",
		"status", "error", "executed_at", "undo_hint", "trace_id", "created_at", "updated_at",
	}).AddRow(id, accountID, messageID, "", actionType, []byte(params), status, "", nil, nil, "", time.Now(), time.Now())
}

func messageRows(id, accountID, providerMessageID string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "account_id", "thread_id", "provider_message_id", "sender_email", "sender_name",
		"to", "cc", "bcc", "subject", "snippet", "headers", "body_plain", "body_html_sanitized",
		"label_ids", "created_at",
	}).AddRow(id, accountID, "thread_1", providerMessageID, "sender@example.com", "Sender",
		[]byte(`["me@example.com"]`), []byte(`[]`), []byte(`[]`), "Hello", "", []byte(`{}`),
		"body text", "", []byte(`[]`), time.Now())
}

func TestExecutor_Handle_Archive_Success(t *testing.T) {
	st, mock, cleanup := setupExecutorStore(t)
	defer cleanup()

	mock.ExpectQuery("FROM actions").WillReturnRows(actionRows("act_1", "acct_1", "msg_1", "archive", "Queued", nil))
	mock.ExpectQuery("FROM messages").WillReturnRows(messageRows("msg_1", "acct_1", "provmsg_1"))
	mock.ExpectQuery("FROM actions").WillReturnRows(actionRows("act_1", "acct_1", "msg_1", "archive", "Queued", nil))
	mock.ExpectExec("UPDATE actions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE actions SET undo_hint").
		WithArgs("act_1", undoHintInverse{want: model.InverseApplyLabel}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM actions").WillReturnRows(actionRows("act_1", "acct_1", "msg_1", "archive", "Executing", nil))
	mock.ExpectExec("UPDATE actions").WillReturnResult(sqlmock.NewResult(0, 1))

	fp := &fakeProvider{}
	ex := New(st, fp, nil, 0, "Ashford/Snoozed", "ashford@example.com", nil)

	job := &model.Job{Payload: mustMarshal(t, model.ActionGmailPayload{ActionID: "act_1"})}
	err := ex.Handle(context.Background(), job)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{provider.LabelInbox}, fp.removed)
}

// Regression test for the inverse-token mix-up between apply_label and
// remove_label: archiving (and remove_label) must synthesize an
// apply_label undo so the message is restored, not a no-op remove_label.
func TestExecutor_Dispatch_ArchiveAndLabelInverses(t *testing.T) {
	ex := &Executor{provider: &fakeProvider{}}

	hint, err := ex.dispatch(context.Background(),
		&model.Action{ActionType: model.ActionArchive},
		&model.Message{ProviderMessageID: "provmsg_1"},
		&provider.PreImage{})
	require.NoError(t, err)
	assert.Equal(t, model.InverseApplyLabel, hint.InverseAction)

	hint, err = ex.dispatch(context.Background(),
		&model.Action{ActionType: model.ActionRemoveLabel, Parameters: json.RawMessage(`{"label_id":"Label_x"}`)},
		&model.Message{ProviderMessageID: "provmsg_1"},
		&provider.PreImage{})
	require.NoError(t, err)
	assert.Equal(t, model.InverseApplyLabel, hint.InverseAction)

	hint, err = ex.dispatch(context.Background(),
		&model.Action{ActionType: model.ActionApplyLabel, Parameters: json.RawMessage(`{"label_id":"Label_x"}`)},
		&model.Message{ProviderMessageID: "provmsg_1"},
		&provider.PreImage{})
	require.NoError(t, err)
	assert.Equal(t, model.InverseRemoveLabel, hint.InverseAction)
}

func TestExecutor_Handle_NonQueuedAction_IsNoOp(t *testing.T) {
	st, mock, cleanup := setupExecutorStore(t)
	defer cleanup()

	mock.ExpectQuery("FROM actions").WillReturnRows(actionRows("act_1", "acct_1", "msg_1", "archive", "Completed", nil))

	fp := &fakeProvider{}
	ex := New(st, fp, nil, 0, "Ashford/Snoozed", "ashford@example.com", nil)

	job := &model.Job{Payload: mustMarshal(t, model.ActionGmailPayload{ActionID: "act_1"})}
	err := ex.Handle(context.Background(), job)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, fp.removed)
}

func TestExecutor_Handle_TransientProviderError_LeavesExecuting(t *testing.T) {
	st, mock, cleanup := setupExecutorStore(t)
	defer cleanup()

	mock.ExpectQuery("FROM actions").WillReturnRows(actionRows("act_1", "acct_1", "msg_1", "archive", "Queued", nil))
	mock.ExpectQuery("FROM messages").WillReturnRows(messageRows("msg_1", "acct_1", "provmsg_1"))
	mock.ExpectQuery("FROM actions").WillReturnRows(actionRows("act_1", "acct_1", "msg_1", "archive", "Queued", nil))
	mock.ExpectExec("UPDATE actions").WillReturnResult(sqlmock.NewResult(0, 1))

	fp := &fakeProvider{removeErr: &provider.Error{Transient: true, Cause: assert.AnError}}
	ex := New(st, fp, nil, 0, "Ashford/Snoozed", "ashford@example.com", nil)

	job := &model.Job{Payload: mustMarshal(t, model.ActionGmailPayload{ActionID: "act_1"})}
	err := ex.Handle(context.Background(), job)
	require.Error(t, err)
	ke, ok := model.AsKindError(err)
	require.True(t, ok)
	assert.True(t, ke.Retryable())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_Handle_PermanentProviderError_MarksFailed(t *testing.T) {
	st, mock, cleanup := setupExecutorStore(t)
	defer cleanup()

	mock.ExpectQuery("FROM actions").WillReturnRows(actionRows("act_1", "acct_1", "msg_1", "archive", "Queued", nil))
	mock.ExpectQuery("FROM messages").WillReturnRows(messageRows("msg_1", "acct_1", "provmsg_1"))
	mock.ExpectQuery("FROM actions").WillReturnRows(actionRows("act_1", "acct_1", "msg_1", "archive", "Queued", nil))
	mock.ExpectExec("UPDATE actions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM actions").WillReturnRows(actionRows("act_1", "acct_1", "msg_1", "archive", "Executing", nil))
	mock.ExpectExec("UPDATE actions").WillReturnResult(sqlmock.NewResult(0, 1))

	fp := &fakeProvider{removeErr: &provider.Error{Transient: false, Cause: assert.AnError}}
	ex := New(st, fp, nil, 0, "Ashford/Snoozed", "ashford@example.com", nil)

	job := &model.Job{Payload: mustMarshal(t, model.ActionGmailPayload{ActionID: "act_1"})}
	err := ex.Handle(context.Background(), job)
	require.Error(t, err)
	ke, ok := model.AsKindError(err)
	require.True(t, ok)
	assert.False(t, ke.Retryable())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_Snooze_EnqueuesUnsnoozeJob(t *testing.T) {
	st, mock, cleanup := setupExecutorStore(t)
	defer cleanup()

	params := json.RawMessage(`{"amount": 2, "units": "hours"}`)
	mock.ExpectQuery("FROM actions").WillReturnRows(actionRows("act_1", "acct_1", "msg_1", "snooze", "Queued", params))
	mock.ExpectQuery("FROM messages").WillReturnRows(messageRows("msg_1", "acct_1", "provmsg_1"))
	mock.ExpectQuery("FROM actions").WillReturnRows(actionRows("act_1", "acct_1", "msg_1", "snooze", "Queued", params))
	mock.ExpectExec("UPDATE actions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO jobs").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-1"))
	mock.ExpectExec("UPDATE actions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM actions").WillReturnRows(actionRows("act_1", "acct_1", "msg_1", "snooze", "Executing", params))
	mock.ExpectExec("UPDATE actions").WillReturnResult(sqlmock.NewResult(0, 1))

	fp := &fakeProvider{ensureLabel: "Label_snooze"}
	ex := New(st, fp, nil, 0, "Ashford/Snoozed", "ashford@example.com", nil)

	job := &model.Job{Payload: mustMarshal(t, model.ActionGmailPayload{ActionID: "act_1"})}
	err := ex.Handle(context.Background(), job)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, fp.removed, provider.LabelInbox)
	assert.Contains(t, fp.added, "Label_snooze")
}

func TestSnoozeParams_Resolve(t *testing.T) {
	t.Run("hours", func(t *testing.T) {
		p := snoozeParams{Amount: 2, Units: "hours"}
		target, err := p.resolve()
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(2*time.Hour), target, 2*time.Second)
	})

	t.Run("exceeds one year", func(t *testing.T) {
		p := snoozeParams{Amount: 400, Units: "days"}
		_, err := p.resolve()
		require.Error(t, err)
	})

	t.Run("invalid units", func(t *testing.T) {
		p := snoozeParams{Amount: 1, Units: "fortnights"}
		_, err := p.resolve()
		require.Error(t, err)
	})

	t.Run("explicit until wins", func(t *testing.T) {
		until := time.Now().Add(48 * time.Hour)
		p := snoozeParams{Until: &until}
		target, err := p.resolve()
		require.NoError(t, err)
		assert.Equal(t, until, target)
	})
}

func TestClassifyProviderErr(t *testing.T) {
	t.Run("transient provider error", func(t *testing.T) {
		ke, ok := model.AsKindError(classifyProviderErr(&provider.Error{Transient: true, Cause: assert.AnError}))
		require.True(t, ok)
		assert.True(t, ke.Retryable())
	})

	t.Run("permanent provider error", func(t *testing.T) {
		ke, ok := model.AsKindError(classifyProviderErr(&provider.Error{Transient: false, Cause: assert.AnError}))
		require.True(t, ok)
		assert.False(t, ke.Retryable())
	})
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
