package balance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockService(t *testing.T) (pgxmock.PgxPoolIface, *Service) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewService(NewRepository(mock))
}

func TestGetSummary(t *testing.T) {
	mock, svc := newMockService(t)

	projectID := uuid.New()
	childID := uuid.New()
	checkingID := uuid.New()
	savingsID := uuid.New()
	lastActivity := time.Now()

	mock.ExpectQuery(`FROM accounts a`).
		WithArgs(projectID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "account_type", "currency_code", "balance", "txn_count", "last_activity",
		}).
			AddRow(checkingID, "Joint Checking", "checking", "EUR", int64(125050), int64(42), &lastActivity).
			AddRow(savingsID, "Savings", "savings", "EUR", int64(500000), int64(3), (*time.Time)(nil)))

	mock.ExpectQuery(`WITH RECURSIVE subtree`).
		WithArgs(projectID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "balance", "txn_count"}).
			AddRow(projectID, "Household", int64(625050), int64(45)).
			AddRow(childID, "Vacation Fund", int64(-20000), int64(2)))

	mock.ExpectQuery(`date_trunc`).
		WithArgs(projectID).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(int64(-34200)))

	summary, err := svc.GetSummary(context.Background(), projectID, "EUR")
	require.NoError(t, err)

	// Total spans the whole subtree, not just the root project
	assert.Equal(t, int64(605050), summary.TotalMinor)
	assert.Equal(t, int64(-34200), summary.MonthChangeMinor)
	assert.Equal(t, "EUR", summary.CurrencyCode)

	require.Len(t, summary.Accounts, 2)
	assert.Equal(t, "Joint Checking", summary.Accounts[0].AccountName)
	assert.Equal(t, int64(125050), summary.Accounts[0].BalanceMinor)
	assert.NotEmpty(t, summary.Accounts[0].BalanceDisplay)
	assert.Nil(t, summary.Accounts[1].LastActivity)

	require.Len(t, summary.Subtree, 2)
	assert.Equal(t, int64(-20000), summary.Subtree[1].BalanceMinor)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSummaryEmptyProject(t *testing.T) {
	mock, svc := newMockService(t)

	projectID := uuid.New()

	mock.ExpectQuery(`FROM accounts a`).
		WithArgs(projectID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "account_type", "currency_code", "balance", "txn_count", "last_activity",
		}))

	mock.ExpectQuery(`WITH RECURSIVE subtree`).
		WithArgs(projectID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "balance", "txn_count"}).
			AddRow(projectID, "Empty", int64(0), int64(0)))

	mock.ExpectQuery(`date_trunc`).
		WithArgs(projectID).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))

	summary, err := svc.GetSummary(context.Background(), projectID, "EUR")
	require.NoError(t, err)

	assert.Equal(t, int64(0), summary.TotalMinor)
	assert.Empty(t, summary.Accounts)
	require.Len(t, summary.Subtree, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
