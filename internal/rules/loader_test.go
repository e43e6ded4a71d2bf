package rules

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dimfeld/ashford/internal/store"
)

func TestLoader_Load_UnionsAllThreeScopes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.New(db)
	loader := NewLoader(st.Rules, st.Directions)

	detRows := sqlmock.NewRows([]string{
		"id", "name", "scope", "scope_ref", "priority", "enabled", "disabled_reason",
		"conditions", "action_type", "action_parameters", "safe_mode", "created_at", "updated_at",
	}).AddRow("rule-1", "archive newsletters", "global", "", 10, true, nil,
		[]byte(`{"kind":"leaf","leaf":"sender_domain"}`), "archive", []byte(`{}`), "suggest", time.Now(), time.Now())
	mock.ExpectQuery("FROM deterministic_rules").
		WithArgs("acct_1", "example.com", "alerts@example.com").
		WillReturnRows(detRows)

	llmRows := sqlmock.NewRows([]string{
		"id", "name", "scope", "scope_ref", "rule_text", "enabled", "metadata", "created_at",
	})
	mock.ExpectQuery("FROM llm_rules").
		WithArgs("acct_1", "example.com", "alerts@example.com").
		WillReturnRows(llmRows)

	dirRows := sqlmock.NewRows([]string{"id", "content", "enabled", "created_at"}).
		AddRow("dir-1", "Never send outbound mail without approval.", true, time.Now())
	mock.ExpectQuery("FROM directions").WillReturnRows(dirRows)

	bundle, err := loader.Load(context.Background(), "acct_1", "alerts@example.com")
	require.NoError(t, err)
	require.Len(t, bundle.Deterministic, 1)
	require.Empty(t, bundle.LLM)
	require.Len(t, bundle.Directions, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
