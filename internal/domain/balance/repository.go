// Package balance computes project and account balance rollups from the
// transaction ledger.
package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccountBalance is the summed ledger of one account
type AccountBalance struct {
	AccountID    uuid.UUID
	AccountName  string
	AccountType  string
	CurrencyCode string
	BalanceMinor int64
	TxnCount     int64
	LastActivity *time.Time
}

// ProjectBalance is the summed ledger of one project in the subtree
type ProjectBalance struct {
	ProjectID    uuid.UUID
	ProjectName  string
	BalanceMinor int64
	TxnCount     int64
}

// DB is the subset of pgxpool.Pool the repository relies on. It is satisfied
// by *pgxpool.Pool in production and by pgxmock pools in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// Repository handles balance queries
type Repository struct {
	pool DB
}

// NewRepository creates a new balance repository
func NewRepository(pool DB) *Repository {
	return &Repository{pool: pool}
}

// AccountBalances sums transactions per account within one project.
func (r *Repository) AccountBalances(ctx context.Context, projectID uuid.UUID) ([]AccountBalance, error) {
	query := `
		SELECT
			a.id,
			a.name,
			a.account_type,
			a.currency_code,
			COALESCE(SUM(t.amount_minor), 0) AS balance,
			COUNT(t.id) AS txn_count,
			MAX(t.occurred_on) AS last_activity
		FROM accounts a
		LEFT JOIN transactions t ON t.account_id = a.id
		WHERE a.project_id = $1
		GROUP BY a.id, a.name, a.account_type, a.currency_code
		ORDER BY a.name`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query account balances: %w", err)
	}
	defer rows.Close()

	var balances []AccountBalance
	for rows.Next() {
		var b AccountBalance
		err := rows.Scan(
			&b.AccountID,
			&b.AccountName,
			&b.AccountType,
			&b.CurrencyCode,
			&b.BalanceMinor,
			&b.TxnCount,
			&b.LastActivity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account balance: %w", err)
		}
		balances = append(balances, b)
	}

	return balances, rows.Err()
}

// SubtreeBalances sums transactions per project across the project and all of
// its descendants. The recursive CTE walks parent_id downward.
func (r *Repository) SubtreeBalances(ctx context.Context, projectID uuid.UUID) ([]ProjectBalance, error) {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT id, name FROM projects WHERE id = $1
			UNION ALL
			SELECT p.id, p.name
			FROM projects p
			JOIN subtree s ON p.parent_id = s.id
		)
		SELECT
			s.id,
			s.name,
			COALESCE(SUM(t.amount_minor), 0) AS balance,
			COUNT(t.id) AS txn_count
		FROM subtree s
		LEFT JOIN transactions t ON t.project_id = s.id
		GROUP BY s.id, s.name
		ORDER BY s.name`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtree balances: %w", err)
	}
	defer rows.Close()

	var balances []ProjectBalance
	for rows.Next() {
		var b ProjectBalance
		if err := rows.Scan(&b.ProjectID, &b.ProjectName, &b.BalanceMinor, &b.TxnCount); err != nil {
			return nil, fmt.Errorf("failed to scan subtree balance: %w", err)
		}
		balances = append(balances, b)
	}

	return balances, rows.Err()
}

// MonthlyChange sums the current calendar month's transactions of a project.
func (r *Repository) MonthlyChange(ctx context.Context, projectID uuid.UUID) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount_minor), 0)
		FROM transactions
		WHERE project_id = $1
		  AND occurred_on >= date_trunc('month', CURRENT_DATE)`

	var total int64
	if err := r.pool.QueryRow(ctx, query, projectID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to query monthly change: %w", err)
	}
	return total, nil
}
