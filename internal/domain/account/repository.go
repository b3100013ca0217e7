// Package account manages the bank accounts of a project.
package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Account types
const (
	TypeChecking = "checking"
	TypeSavings  = "savings"
	TypeCredit   = "credit"
	TypeCash     = "cash"
)

// ValidType reports whether t is a supported account type.
func ValidType(t string) bool {
	switch t {
	case TypeChecking, TypeSavings, TypeCredit, TypeCash:
		return true
	}
	return false
}

// Account is one bank account within a project
type Account struct {
	ID           uuid.UUID
	ProjectID    uuid.UUID
	Name         string
	AccountType  string
	CurrencyCode string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository handles account persistence
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new account repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, project_id, name, account_type, currency_code, created_at, updated_at`

// Create inserts a new account
func (r *Repository) Create(ctx context.Context, account *Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	query := `
		INSERT INTO accounts (id, project_id, name, account_type, currency_code)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		account.ID,
		account.ProjectID,
		account.Name,
		account.AccountType,
		account.CurrencyCode,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByID retrieves an account scoped to a project
func (r *Repository) GetByID(ctx context.Context, projectID, accountID uuid.UUID) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 AND project_id = $2`

	var a Account
	err := r.pool.QueryRow(ctx, query, accountID, projectID).Scan(
		&a.ID,
		&a.ProjectID,
		&a.Name,
		&a.AccountType,
		&a.CurrencyCode,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

// ListByProject retrieves all accounts of a project
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE project_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		var a Account
		err := rows.Scan(
			&a.ID,
			&a.ProjectID,
			&a.Name,
			&a.AccountType,
			&a.CurrencyCode,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &a)
	}

	return accounts, rows.Err()
}

// Update updates an account's name and type
func (r *Repository) Update(ctx context.Context, account *Account) error {
	query := `
		UPDATE accounts
		SET name = $3, account_type = $4, currency_code = $5, updated_at = now()
		WHERE id = $1 AND project_id = $2
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		account.ID,
		account.ProjectID,
		account.Name,
		account.AccountType,
		account.CurrencyCode,
	).Scan(&account.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return sql.ErrNoRows
	}
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// Delete removes an account and cascades to its transactions
func (r *Repository) Delete(ctx context.Context, projectID, accountID uuid.UUID) error {
	query := `DELETE FROM accounts WHERE id = $1 AND project_id = $2`

	result, err := r.pool.Exec(ctx, query, accountID, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Exists reports whether the account belongs to the project
func (r *Repository) Exists(ctx context.Context, projectID, accountID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1 AND project_id = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, accountID, projectID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check account: %w", err)
	}
	return exists, nil
}
