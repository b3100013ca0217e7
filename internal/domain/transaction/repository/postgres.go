package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// transactionColumns aggregates the tag join into a uuid array so a listing
// is one query, not one per row.
const transactionColumns = `
	t.id, t.project_id, t.account_id, t.amount_minor, t.occurred_on,
	t.description, t.notes, t.fingerprint, t.batch_id,
	COALESCE(array_agg(tt.tag_id) FILTER (WHERE tt.tag_id IS NOT NULL), '{}') AS tag_ids,
	t.created_at, t.updated_at`

const transactionGroupBy = `GROUP BY t.id`

// PostgresTransactionRepository implements TransactionRepository using PostgreSQL
type PostgresTransactionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTransactionRepository creates a new PostgreSQL transaction repository
func NewPostgresTransactionRepository(pool *pgxpool.Pool) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{pool: pool}
}

// Create inserts a transaction and its tag joins
func (r *PostgresTransactionRepository) Create(ctx context.Context, txn *Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO transactions (id, project_id, account_id, amount_minor, occurred_on,
		                          description, notes, fingerprint, batch_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err = tx.QueryRow(ctx, query,
		txn.ID,
		txn.ProjectID,
		txn.AccountID,
		txn.AmountMinor,
		txn.OccurredOn,
		txn.Description,
		txn.Notes,
		txn.Fingerprint,
		txn.BatchID,
	).Scan(&txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	for _, tagID := range txn.TagIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO transaction_tags (transaction_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			txn.ID, tagID)
		if err != nil {
			return fmt.Errorf("failed to tag transaction: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction scoped to a project
func (r *PostgresTransactionRepository) GetByID(ctx context.Context, projectID, txnID uuid.UUID) (*Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		LEFT JOIN transaction_tags tt ON tt.transaction_id = t.id
		WHERE t.id = $1 AND t.project_id = $2
		` + transactionGroupBy

	txn, err := scanTransaction(r.pool.QueryRow(ctx, query, txnID, projectID))
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// List retrieves transactions for a project, newest first, applying filters
func (r *PostgresTransactionRepository) List(ctx context.Context, projectID uuid.UUID, filter Filter) ([]*Transaction, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT ` + transactionColumns + `
		FROM transactions t
		LEFT JOIN transaction_tags tt ON tt.transaction_id = t.id
		WHERE t.project_id = $1`)

	args := []any{projectID}

	addArg := func(clause string, value any) {
		args = append(args, value)
		fmt.Fprintf(&sb, " AND "+clause, len(args))
	}

	if filter.AccountID != nil {
		addArg("t.account_id = $%d", *filter.AccountID)
	}
	if filter.From != nil {
		addArg("t.occurred_on >= $%d", *filter.From)
	}
	if filter.To != nil {
		addArg("t.occurred_on <= $%d", *filter.To)
	}
	if filter.TagID != nil {
		addArg("t.id IN (SELECT transaction_id FROM transaction_tags WHERE tag_id = $%d)", *filter.TagID)
	}
	if len(filter.IDs) > 0 {
		addArg("t.id = ANY($%d)", filter.IDs)
	}

	sb.WriteString(" " + transactionGroupBy)
	sb.WriteString(" ORDER BY t.occurred_on DESC, t.created_at DESC")

	if filter.Limit > 0 {
		addArgTrailing(&sb, &args, "LIMIT", filter.Limit)
	}
	if filter.Offset > 0 {
		addArgTrailing(&sb, &args, "OFFSET", filter.Offset)
	}

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}

	return txns, rows.Err()
}

func addArgTrailing(sb *strings.Builder, args *[]any, keyword string, value int) {
	*args = append(*args, value)
	fmt.Fprintf(sb, " %s $%d", keyword, len(*args))
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(
		&t.ID,
		&t.ProjectID,
		&t.AccountID,
		&t.AmountMinor,
		&t.OccurredOn,
		&t.Description,
		&t.Notes,
		&t.Fingerprint,
		&t.BatchID,
		&t.TagIDs,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return &t, nil
}

// UpdateNotes replaces a transaction's free-text notes
func (r *PostgresTransactionRepository) UpdateNotes(ctx context.Context, projectID, txnID uuid.UUID, notes *string) error {
	query := `
		UPDATE transactions
		SET notes = $3, updated_at = now()
		WHERE id = $1 AND project_id = $2`

	result, err := r.pool.Exec(ctx, query, txnID, projectID, notes)
	if err != nil {
		return fmt.Errorf("failed to update transaction notes: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReplaceTags overwrites a transaction's tag assignment
func (r *PostgresTransactionRepository) ReplaceTags(ctx context.Context, projectID, txnID uuid.UUID, tagIDs []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1 AND project_id = $2)`,
		txnID, projectID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check transaction: %w", err)
	}
	if !exists {
		return sql.ErrNoRows
	}

	if _, err := tx.Exec(ctx, `DELETE FROM transaction_tags WHERE transaction_id = $1`, txnID); err != nil {
		return fmt.Errorf("failed to clear transaction tags: %w", err)
	}
	for _, tagID := range tagIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO transaction_tags (transaction_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			txnID, tagID)
		if err != nil {
			return fmt.Errorf("failed to tag transaction: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete removes a transaction; tag joins cascade
func (r *PostgresTransactionRepository) Delete(ctx context.Context, projectID, txnID uuid.UUID) error {
	query := `DELETE FROM transactions WHERE id = $1 AND project_id = $2`

	result, err := r.pool.Exec(ctx, query, txnID, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListIndexEntries retrieves id and description for every transaction of a
// project, for the search index.
func (r *PostgresTransactionRepository) ListIndexEntries(ctx context.Context, projectID uuid.UUID) ([]IndexEntry, error) {
	query := `SELECT id, project_id, description FROM transactions WHERE project_id = $1`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list index entries: %w", err)
	}
	defer rows.Close()

	var entries []IndexEntry
	for rows.Next() {
		var e IndexEntry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan index entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
