package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the repository relies on. It is satisfied
// by *pgxpool.Pool in production and by pgxmock pools in tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// PostgresImportRepository implements ImportRepository using PostgreSQL
type PostgresImportRepository struct {
	db DB
}

// NewPostgresImportRepository creates a new PostgreSQL import repository
func NewPostgresImportRepository(db DB) *PostgresImportRepository {
	return &PostgresImportRepository{db: db}
}

// CreateBatch creates a new import batch
func (r *PostgresImportRepository) CreateBatch(ctx context.Context, batch *Batch) error {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	if batch.Status == "" {
		batch.Status = BatchStatusUploading
	}

	query := `
		INSERT INTO import_batches (id, project_id, account_id, original_filename, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		batch.ID,
		batch.ProjectID,
		batch.AccountID,
		batch.OriginalFilename,
		batch.Status,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create import batch: %w", err)
	}

	return nil
}

// GetBatch retrieves a batch by ID within a project. A batch belonging to a
// different project is reported as absent.
func (r *PostgresImportRepository) GetBatch(ctx context.Context, projectID, batchID uuid.UUID) (*Batch, error) {
	query := `
		SELECT id, project_id, account_id, original_filename, row_count, status,
		       blob_key, date_header, amount_header, description_header,
		       created_at, completed_at, updated_at
		FROM import_batches
		WHERE id = $1 AND project_id = $2`

	var b Batch
	err := r.db.QueryRow(ctx, query, batchID, projectID).Scan(
		&b.ID,
		&b.ProjectID,
		&b.AccountID,
		&b.OriginalFilename,
		&b.RowCount,
		&b.Status,
		&b.BlobKey,
		&b.DateHeader,
		&b.AmountHeader,
		&b.DescriptionHeader,
		&b.CreatedAt,
		&b.CompletedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get import batch: %w", err)
	}

	return &b, nil
}

// ListBatches retrieves all batches for a project, newest first
func (r *PostgresImportRepository) ListBatches(ctx context.Context, projectID uuid.UUID) ([]*Batch, error) {
	query := `
		SELECT id, project_id, account_id, original_filename, row_count, status,
		       blob_key, date_header, amount_header, description_header,
		       created_at, completed_at, updated_at
		FROM import_batches
		WHERE project_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list import batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		var b Batch
		err := rows.Scan(
			&b.ID,
			&b.ProjectID,
			&b.AccountID,
			&b.OriginalFilename,
			&b.RowCount,
			&b.Status,
			&b.BlobKey,
			&b.DateHeader,
			&b.AmountHeader,
			&b.DescriptionHeader,
			&b.CreatedAt,
			&b.CompletedAt,
			&b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import batch: %w", err)
		}
		batches = append(batches, &b)
	}

	return batches, rows.Err()
}

// SetBatchBlobKey records where the raw upload is stored and advances the
// batch to the mapping state.
func (r *PostgresImportRepository) SetBatchBlobKey(ctx context.Context, batchID uuid.UUID, blobKey string) error {
	query := `
		UPDATE import_batches
		SET blob_key = $2, status = $3, updated_at = now()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, batchID, blobKey, BatchStatusMapping)
	if err != nil {
		return fmt.Errorf("failed to set batch blob key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// DeleteBatch removes a batch. Staging rows go with it via cascade.
func (r *PostgresImportRepository) DeleteBatch(ctx context.Context, projectID, batchID uuid.UUID) error {
	query := `DELETE FROM import_batches WHERE id = $1 AND project_id = $2`

	result, err := r.db.Exec(ctx, query, batchID, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete import batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// StageRows stores the confirmed column mapping and the parsed rows, then
// moves the batch to reviewing. Everything runs in one transaction so a
// failed parse never leaves a half-staged batch behind.
func (r *PostgresImportRepository) StageRows(ctx context.Context, batchID uuid.UUID, dateHeader, amountHeader, descriptionHeader *string, rows []*StagingRow) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batchQuery := `
		UPDATE import_batches
		SET date_header = $2, amount_header = $3, description_header = $4,
		    row_count = $5, status = $6, updated_at = now()
		WHERE id = $1 AND status = $7`

	result, err := tx.Exec(ctx, batchQuery,
		batchID,
		dateHeader,
		amountHeader,
		descriptionHeader,
		len(rows),
		BatchStatusReviewing,
		BatchStatusMapping,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch mapping: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrBatchNotMapping
	}

	rowQuery := `
		INSERT INTO staging_rows (id, batch_id, row_index, raw_fields, fingerprint,
		                          amount_minor, date_text, description, is_duplicate, tag_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		if row.TagIDs == nil {
			row.TagIDs = []uuid.UUID{}
		}
		_, err := tx.Exec(ctx, rowQuery,
			row.ID,
			batchID,
			row.RowIndex,
			row.RawFields,
			row.Fingerprint,
			row.AmountMinor,
			row.DateText,
			row.Description,
			row.IsDuplicate,
			row.TagIDs,
		)
		if err != nil {
			return fmt.Errorf("failed to create staging row %d: %w", row.RowIndex, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListStagingRows retrieves all staging rows of a batch in statement order
func (r *PostgresImportRepository) ListStagingRows(ctx context.Context, batchID uuid.UUID) ([]*StagingRow, error) {
	query := `
		SELECT id, batch_id, row_index, raw_fields, fingerprint, amount_minor,
		       date_text, description, is_duplicate, is_excluded, tag_ids, created_at
		FROM staging_rows
		WHERE batch_id = $1
		ORDER BY row_index`

	return r.queryStagingRows(ctx, query, batchID)
}

// ListNonExcludedRows retrieves the staging rows that will be part of a commit
func (r *PostgresImportRepository) ListNonExcludedRows(ctx context.Context, batchID uuid.UUID) ([]*StagingRow, error) {
	query := `
		SELECT id, batch_id, row_index, raw_fields, fingerprint, amount_minor,
		       date_text, description, is_duplicate, is_excluded, tag_ids, created_at
		FROM staging_rows
		WHERE batch_id = $1 AND is_excluded = FALSE
		ORDER BY row_index`

	return r.queryStagingRows(ctx, query, batchID)
}

func (r *PostgresImportRepository) queryStagingRows(ctx context.Context, query string, batchID uuid.UUID) ([]*StagingRow, error) {
	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list staging rows: %w", err)
	}
	defer rows.Close()

	var staged []*StagingRow
	for rows.Next() {
		var s StagingRow
		err := rows.Scan(
			&s.ID,
			&s.BatchID,
			&s.RowIndex,
			&s.RawFields,
			&s.Fingerprint,
			&s.AmountMinor,
			&s.DateText,
			&s.Description,
			&s.IsDuplicate,
			&s.IsExcluded,
			&s.TagIDs,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staging row: %w", err)
		}
		staged = append(staged, &s)
	}

	return staged, rows.Err()
}

// ToggleRowExcluded flips the exclusion flag of a staging row and returns the
// new value. The flip happens in a single statement so concurrent toggles
// cannot lose updates.
func (r *PostgresImportRepository) ToggleRowExcluded(ctx context.Context, batchID, rowID uuid.UUID) (bool, error) {
	query := `
		UPDATE staging_rows
		SET is_excluded = NOT is_excluded
		WHERE id = $1 AND batch_id = $2
		RETURNING is_excluded`

	var excluded bool
	err := r.db.QueryRow(ctx, query, rowID, batchID).Scan(&excluded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, sql.ErrNoRows
		}
		return false, fmt.Errorf("failed to toggle staging row: %w", err)
	}

	return excluded, nil
}

// ReplaceRowTags overwrites the tag assignment of a staging row
func (r *PostgresImportRepository) ReplaceRowTags(ctx context.Context, batchID, rowID uuid.UUID, tagIDs []uuid.UUID) error {
	if tagIDs == nil {
		tagIDs = []uuid.UUID{}
	}

	query := `
		UPDATE staging_rows
		SET tag_ids = $3
		WHERE id = $1 AND batch_id = $2`

	result, err := r.db.Exec(ctx, query, rowID, batchID, tagIDs)
	if err != nil {
		return fmt.Errorf("failed to replace staging row tags: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// DeleteStagingRows removes all staging rows of a batch
func (r *PostgresImportRepository) DeleteStagingRows(ctx context.Context, batchID uuid.UUID) error {
	query := `DELETE FROM staging_rows WHERE batch_id = $1`

	_, err := r.db.Exec(ctx, query, batchID)
	if err != nil {
		return fmt.Errorf("failed to delete staging rows: %w", err)
	}

	return nil
}

// ExistingFingerprints reports which of the given fingerprints already exist
// on committed transactions in the project.
func (r *PostgresImportRepository) ExistingFingerprints(ctx context.Context, projectID uuid.UUID, fingerprints []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(fingerprints) == 0 {
		return existing, nil
	}

	query := `
		SELECT DISTINCT fingerprint
		FROM transactions
		WHERE project_id = $1 AND fingerprint = ANY($2)`

	rows, err := r.db.Query(ctx, query, projectID, fingerprints)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		existing[fp] = struct{}{}
	}

	return existing, rows.Err()
}

// CommitBatch turns the prepared records into permanent transactions. The
// status update doubles as a fence: a batch that already completed, or that a
// concurrent commit got to first, affects zero rows and the whole transaction
// rolls back.
func (r *PostgresImportRepository) CommitBatch(ctx context.Context, batchID uuid.UUID, records []*TransactionRecord) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	fenceQuery := `
		UPDATE import_batches
		SET status = $2, completed_at = now(), blob_key = NULL, updated_at = now()
		WHERE id = $1 AND status = $3`

	result, err := tx.Exec(ctx, fenceQuery, batchID, BatchStatusCompleted, BatchStatusReviewing)
	if err != nil {
		return 0, fmt.Errorf("failed to complete batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return 0, ErrBatchNotReviewing
	}

	txnQuery := `
		INSERT INTO transactions (id, project_id, account_id, amount_minor,
		                          occurred_on, description, fingerprint, batch_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	tagQuery := `
		INSERT INTO transaction_tags (transaction_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	for _, rec := range records {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		_, err := tx.Exec(ctx, txnQuery,
			rec.ID,
			rec.ProjectID,
			rec.AccountID,
			rec.AmountMinor,
			rec.OccurredOn,
			rec.Description,
			rec.Fingerprint,
			batchID,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transaction: %w", err)
		}

		for _, tagID := range rec.TagIDs {
			_, err := tx.Exec(ctx, tagQuery, rec.ID, tagID)
			if err != nil {
				return 0, fmt.Errorf("failed to insert transaction tag: %w", err)
			}
		}
	}

	deleteQuery := `DELETE FROM staging_rows WHERE batch_id = $1`
	if _, err := tx.Exec(ctx, deleteQuery, batchID); err != nil {
		return 0, fmt.Errorf("failed to delete staging rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(records), nil
}

// ListStaleBatches retrieves unfinished batches that have not been touched
// since the given cutoff.
func (r *PostgresImportRepository) ListStaleBatches(ctx context.Context, olderThan time.Time) ([]*Batch, error) {
	query := `
		SELECT id, project_id, account_id, original_filename, row_count, status,
		       blob_key, date_header, amount_header, description_header,
		       created_at, completed_at, updated_at
		FROM import_batches
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at`

	active := []string{
		string(BatchStatusUploading),
		string(BatchStatusMapping),
		string(BatchStatusReviewing),
	}

	rows, err := r.db.Query(ctx, query, active, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		var b Batch
		err := rows.Scan(
			&b.ID,
			&b.ProjectID,
			&b.AccountID,
			&b.OriginalFilename,
			&b.RowCount,
			&b.Status,
			&b.BlobKey,
			&b.DateHeader,
			&b.AmountHeader,
			&b.DescriptionHeader,
			&b.CreatedAt,
			&b.CompletedAt,
			&b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import batch: %w", err)
		}
		batches = append(batches, &b)
	}

	return batches, rows.Err()
}

// MarkBatchAbandoned moves an unfinished batch to the abandoned state and
// clears its blob key. Completed batches are left untouched.
func (r *PostgresImportRepository) MarkBatchAbandoned(ctx context.Context, batchID uuid.UUID) error {
	query := `
		UPDATE import_batches
		SET status = $2, blob_key = NULL, updated_at = now()
		WHERE id = $1 AND status <> $3`

	result, err := r.db.Exec(ctx, query, batchID, BatchStatusAbandoned, BatchStatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to abandon batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}

	return nil
}
