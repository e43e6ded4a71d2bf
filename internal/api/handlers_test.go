package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dimfeld/ashford/internal/store"
)

func setupTestServer(t *testing.T) (http.Handler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	st := store.New(db)
	h := NewHandlers(st, nil, 5)
	router := SetupRoutes(h, CORSOrigins{"http://localhost:5173"})
	return router, mock, func() { db.Close() }
}

func TestHealthCheck(t *testing.T) {
	router, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListActions_ReturnsRows(t *testing.T) {
	router, mock, cleanup := setupTestServer(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{
		"id", "account_id", "message_id", "decision_id", "action_type", "parameters",
		"status", "error", "executed_at", "undo_hint", "trace_id", "created_at", "updated_at",
	}).AddRow("act_1", "acct_1", "msg_1", "", "archive", []byte(`{}`), "Completed", "", nil, nil, "", time.Now(), time.Now())
	mock.ExpectQuery("FROM actions").WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodGet, "/api/actions/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveAction_NotPending_ReturnsConflict(t *testing.T) {
	router, mock, cleanup := setupTestServer(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{
		"id", "account_id", "message_id", "decision_id", "action_type", "parameters",
		"status", "error", "executed_at", "undo_hint", "trace_id", "created_at", "updated_at",
	}).AddRow("act_1", "acct_1", "msg_1", "", "archive", []byte(`{}`), "Completed", "", nil, nil, "", time.Now(), time.Now())
	mock.ExpectQuery("FROM actions").WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodPost, "/api/actions/act_1/approve", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDeterministicRule_PersistsAndReturns(t *testing.T) {
	router, mock, cleanup := setupTestServer(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO deterministic_rules").WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"name":"archive newsletters","scope":"global","priority":10,"enabled":true,
		"conditions":{"kind":"sender_domain","sender_domain":"newsletter.example.com"},
		"action_type":"archive","action_parameters":{},"safe_mode":"default"}`
	req := httptest.NewRequest(http.MethodPost, "/api/rules/deterministic/", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotEmpty(t, got["ID"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSwapDeterministicRulePriority_MissingIDs_BadRequest(t *testing.T) {
	router, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/api/rules/deterministic/swap-priority", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
