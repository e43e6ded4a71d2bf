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

func setupRuleStoreTestDB(t *testing.T) (*RuleStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &RuleStore{db: db}, mock, func() { db.Close() }
}

func TestRuleStore_SwapDeterministicRulePriority_BothFound(t *testing.T) {
	rs, mock, cleanup := setupRuleStoreTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT priority FROM deterministic_rules WHERE id = \\$1").
		WithArgs("rule-a").WillReturnRows(sqlmock.NewRows([]string{"priority"}).AddRow(10))
	mock.ExpectQuery("SELECT priority FROM deterministic_rules WHERE id = \\$1").
		WithArgs("rule-b").WillReturnRows(sqlmock.NewRows([]string{"priority"}).AddRow(20))
	mock.ExpectExec("UPDATE deterministic_rules SET priority").
		WithArgs("rule-a", 20).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE deterministic_rules SET priority").
		WithArgs("rule-b", 10).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rows, err := rs.SwapDeterministicRulePriority(context.Background(), "rule-a", "rule-b")
	require.NoError(t, err)
	require.Equal(t, int64(2), rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleStore_SwapDeterministicRulePriority_MissingIDRollsBack(t *testing.T) {
	rs, mock, cleanup := setupRuleStoreTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT priority FROM deterministic_rules WHERE id = \\$1").
		WithArgs("rule-a").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := rs.SwapDeterministicRulePriority(context.Background(), "rule-a", "rule-b")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleStore_CreateDeterministicRule_AssignsID(t *testing.T) {
	rs, mock, cleanup := setupRuleStoreTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO deterministic_rules").WillReturnResult(sqlmock.NewResult(0, 1))

	rule := &model.DeterministicRule{
		Name:       "archive newsletters",
		Scope:      model.ScopeGlobal,
		Priority:   5,
		Enabled:    true,
		Conditions: model.Condition{Kind: model.ConditionLeafKindOrNode(model.LeafSenderDomain)},
		ActionType: model.ActionArchive,
		SafeMode:   model.SafeModeDefault,
	}
	err := rs.CreateDeterministicRule(context.Background(), rule)
	require.NoError(t, err)
	require.NotEmpty(t, rule.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDirectionStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ds := &DirectionStore{db: db}

	mock.ExpectQuery("INSERT INTO directions").WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	d := &model.Direction{Content: "Never send outbound mail without approval.", Enabled: true}
	err = ds.Create(context.Background(), d)
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
