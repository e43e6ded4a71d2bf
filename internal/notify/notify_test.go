package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/require"

	"github.com/dimfeld/ashford/internal/model"
	"github.com/dimfeld/ashford/internal/store"
)

func setupNotifyStore(t *testing.T) (*store.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return store.New(db), mock, func() { db.Close() }
}

func actionRow(id string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "account_id", "message_id", "decision_id", "action_type", "parameters",
		"status", "error", "executed_at", "undo_hint", "trace_id", "created_at", "updated_at",
	}).AddRow(id, "acct_1", "msg_1", "", "delete", []byte(`{}`), "ApprovedPending", "", nil, nil, "", time.Now(), time.Now())
}

func msgRow(id string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "account_id", "thread_id", "provider_message_id", "sender_email", "sender_name",
		"to", "cc", "bcc", "subject", "snippet", "headers", "body_plain", "body_html_sanitized",
		"label_ids", "created_at",
	}).AddRow(id, "acct_1", "thread_1", "provmsg_1", "sender@example.com", "Sender",
		[]byte(`[]`), []byte(`[]`), []byte(`[]`), "Refund request", "", []byte(`{}`), "body", "", []byte(`[]`), time.Now())
}

func TestHandle_PostsApprovalMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true, "channel": "C123", "ts": "1"}`))
	}))
	defer server.Close()

	st, mock, cleanup := setupNotifyStore(t)
	defer cleanup()
	mock.ExpectQuery("FROM actions").WillReturnRows(actionRow("act_1"))
	mock.ExpectQuery("FROM messages").WillReturnRows(msgRow("msg_1"))

	client := slack.New("xoxb-test", slack.OptionAPIURL(server.URL+"/"))
	n := New(st, client, "#approvals", "https://ashford.example.com")

	payload, _ := json.Marshal(model.ApprovalNotifyPayload{ActionID: "act_1"})
	err := n.Handle(context.Background(), &model.Job{Payload: payload})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
