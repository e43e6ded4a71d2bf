package classify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dimfeld/ashford/internal/llm"
	"github.com/dimfeld/ashford/internal/model"
	"github.com/dimfeld/ashford/internal/prompt"
	"github.com/dimfeld/ashford/internal/safety"
	"github.com/dimfeld/ashford/internal/store"
)

type fakeLLM struct {
	resp *llm.Response
	err  error
}

func (f *fakeLLM) Classify(ctx context.Context, p prompt.Prompt) (*llm.Response, error) {
	return f.resp, f.err
}

func setupTestStore(t *testing.T) (*store.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return store.New(db), mock, func() { db.Close() }
}

func expectMessageLoad(mock sqlmock.Sqlmock, msgID string) {
	rows := sqlmock.NewRows([]string{
		"id", "account_id", "thread_id", "provider_message_id", "sender_email", "sender_name",
		"to", "cc", "bcc", "subject", "snippet", "headers", "body_plain", "body_html_sanitized",
		"label_ids", "created_at",
	}).AddRow(msgID, "acct_1", "thread_1", "provmsg_1", "sender@example.com", "Sender",
		[]byte(`["me@example.com"]`), []byte(`[]`), []byte(`[]`), "Hello", "", []byte(`{}`),
		"body text", "", []byte(`[]`), time.Now())
	mock.ExpectQuery("SELECT id, account_id, thread_id, provider_message_id").WillReturnRows(rows)
}

func expectEmptyRuleLoad(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM deterministic_rules").WillReturnRows(sqlmock.NewRows([]string{
		"id", "name", "scope", "scope_ref", "priority", "enabled", "disabled_reason",
		"conditions", "action_type", "action_parameters", "safe_mode", "created_at", "updated_at",
	}))
	mock.ExpectQuery("FROM llm_rules").WillReturnRows(sqlmock.NewRows([]string{
		"id", "name", "scope", "scope_ref", "rule_text", "enabled", "metadata", "created_at",
	}))
	mock.ExpectQuery("FROM directions").WillReturnRows(sqlmock.NewRows([]string{
		"id", "content", "enabled", "created_at",
	}))
}

func expectEmptyLabelLoad(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM labels").WillReturnRows(sqlmock.NewRows([]string{
		"id", "account_id", "provider_label_id", "name", "type", "description", "available_to_classifier",
	}))
}

func TestOrchestrator_Handle_LLMDecision_NoApproval(t *testing.T) {
	st, mock, cleanup := setupTestStore(t)
	defer cleanup()

	expectMessageLoad(mock, "msg_1")
	expectEmptyRuleLoad(mock)
	expectEmptyLabelLoad(mock)
	mock.ExpectQuery("INSERT INTO decisions").WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery("INSERT INTO actions").WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectQuery("INSERT INTO jobs").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-2"))

	decisionJSON := `{
		"message_ref": {"provider": "gmail", "account_id": "acct_1", "thread_id": "thread_1", "message_id": "msg_1"},
		"decision": {"action": "archive", "confidence": 0.95, "needs_approval": false, "rationale": "newsletter"},
		"undo_hint": {"inverse_action": "restore"}
	}`
	fake := &fakeLLM{resp: &llm.Response{ToolCallJSON: json.RawMessage(decisionJSON)}}

	o := New(st, fake, safety.NewPolicyConfig([]string{"delete", "forward"}, 0.7), true, nil)

	job := &model.Job{Payload: mustMarshal(model.ClassifyPayload{AccountID: "acct_1", MessageID: "msg_1"})}
	err := o.Handle(context.Background(), job)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_Handle_LLMParseFailure_FallsBackSafely(t *testing.T) {
	st, mock, cleanup := setupTestStore(t)
	defer cleanup()

	expectMessageLoad(mock, "msg_1")
	expectEmptyRuleLoad(mock)
	expectEmptyLabelLoad(mock)
	mock.ExpectQuery("INSERT INTO decisions").
		WithArgs(sqlmock.AnyArg(), "acct_1", "msg_1", string(model.SourceLLM), string(model.ActionNone),
			decisionParamsArg{}, 0.0, true, "classifier_unavailable", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery("INSERT INTO actions").
		WithArgs(sqlmock.AnyArg(), "acct_1", "msg_1", sqlmock.AnyArg(), string(model.ActionNone), decisionParamsArg{},
			string(model.ActionStatusApprovedPending), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectQuery("INSERT INTO jobs").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-3"))

	fake := &fakeLLM{resp: &llm.Response{Text: "I'm not sure what to do here."}}
	o := New(st, fake, safety.NewPolicyConfig(nil, 0.7), true, nil)

	job := &model.Job{Payload: mustMarshal(model.ClassifyPayload{AccountID: "acct_1", MessageID: "msg_1"})}
	err := o.Handle(context.Background(), job)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// decisionParamsArg matches any JSON-object `{}` style parameters blob
// without caring about byte-for-byte key ordering.
type decisionParamsArg struct{}

func (decisionParamsArg) Match(v interface{}) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	var m map[string]interface{}
	return json.Unmarshal(b, &m) == nil
}

func TestOrchestrator_Handle_ApprovalRequired_EnqueuesNotify(t *testing.T) {
	st, mock, cleanup := setupTestStore(t)
	defer cleanup()

	expectMessageLoad(mock, "msg_1")
	expectEmptyRuleLoad(mock)
	expectEmptyLabelLoad(mock)
	mock.ExpectQuery("INSERT INTO decisions").WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery("INSERT INTO actions").WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectQuery("INSERT INTO jobs").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-4"))

	decisionJSON := `{
		"message_ref": {"provider": "gmail", "account_id": "acct_1", "thread_id": "thread_1", "message_id": "msg_1"},
		"decision": {"action": "delete", "confidence": 0.95, "needs_approval": false, "rationale": "spam"},
		"undo_hint": {"inverse_action": "restore"}
	}`
	fake := &fakeLLM{resp: &llm.Response{ToolCallJSON: json.RawMessage(decisionJSON)}}
	o := New(st, fake, safety.NewPolicyConfig([]string{"delete"}, 0.7), true, nil)

	job := &model.Job{Payload: mustMarshal(model.ClassifyPayload{AccountID: "acct_1", MessageID: "msg_1"})}
	err := o.Handle(context.Background(), job)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
