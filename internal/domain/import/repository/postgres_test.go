package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresImportRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresImportRepository(mock)
}

func TestCreateBatch(t *testing.T) {
	mock, repo := newMockRepo(t)

	projectID := uuid.New()
	accountID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO import_batches`).
		WithArgs(pgxmock.AnyArg(), projectID, accountID, "statement.csv", BatchStatusUploading).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	batch := &Batch{
		ProjectID:        projectID,
		AccountID:        accountID,
		OriginalFilename: "statement.csv",
	}

	err := repo.CreateBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, batch.ID)
	assert.Equal(t, BatchStatusUploading, batch.Status)
	assert.Equal(t, now, batch.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBatch(t *testing.T) {
	mock, repo := newMockRepo(t)

	projectID := uuid.New()
	batchID := uuid.New()
	accountID := uuid.New()
	now := time.Now()
	blobKey := "imports/" + projectID.String() + "/" + batchID.String() + ".csv"

	mock.ExpectQuery(`SELECT id, project_id, account_id, original_filename`).
		WithArgs(batchID, projectID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "project_id", "account_id", "original_filename", "row_count", "status",
			"blob_key", "date_header", "amount_header", "description_header",
			"created_at", "completed_at", "updated_at",
		}).AddRow(
			batchID, projectID, accountID, "statement.csv", 0, BatchStatusMapping,
			&blobKey, nil, nil, nil,
			now, nil, now,
		))

	batch, err := repo.GetBatch(context.Background(), projectID, batchID)
	require.NoError(t, err)
	assert.Equal(t, batchID, batch.ID)
	assert.Equal(t, BatchStatusMapping, batch.Status)
	require.NotNil(t, batch.BlobKey)
	assert.Equal(t, blobKey, *batch.BlobKey)
	assert.Nil(t, batch.DateHeader)
	assert.Nil(t, batch.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBatchNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	projectID := uuid.New()
	batchID := uuid.New()

	mock.ExpectQuery(`SELECT id, project_id, account_id, original_filename`).
		WithArgs(batchID, projectID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetBatch(context.Background(), projectID, batchID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetBatchBlobKey(t *testing.T) {
	mock, repo := newMockRepo(t)

	batchID := uuid.New()

	mock.ExpectExec(`UPDATE import_batches`).
		WithArgs(batchID, "imports/p/b.csv", BatchStatusMapping).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.SetBatchBlobKey(context.Background(), batchID, "imports/p/b.csv")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStageRows(t *testing.T) {
	mock, repo := newMockRepo(t)

	batchID := uuid.New()
	dateHeader := "Date"
	amountHeader := "Amount"
	descHeader := "Description"
	amount := int64(-4250)

	rows := []*StagingRow{
		{
			RowIndex:    0,
			RawFields:   []string{"2024-01-15", "-42.50", "Coffee"},
			Fingerprint: "0000abcd",
			AmountMinor: &amount,
			DateText:    "2024-01-15",
			Description: "Coffee",
			IsDuplicate: false,
		},
		{
			RowIndex:    1,
			RawFields:   []string{"2024-01-16", "-9.99", "Lunch"},
			Fingerprint: "0000beef",
			DateText:    "2024-01-16",
			Description: "Lunch",
			IsDuplicate: true,
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE import_batches`).
		WithArgs(batchID, &dateHeader, &amountHeader, &descHeader, 2, BatchStatusReviewing, BatchStatusMapping).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO staging_rows`).
		WithArgs(pgxmock.AnyArg(), batchID, 0, rows[0].RawFields, "0000abcd",
			&amount, "2024-01-15", "Coffee", false, []uuid.UUID{}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO staging_rows`).
		WithArgs(pgxmock.AnyArg(), batchID, 1, rows[1].RawFields, "0000beef",
			(*int64)(nil), "2024-01-16", "Lunch", true, []uuid.UUID{}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.StageRows(context.Background(), batchID, &dateHeader, &amountHeader, &descHeader, rows)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, rows[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStageRowsWrongState(t *testing.T) {
	mock, repo := newMockRepo(t)

	batchID := uuid.New()
	amountHeader := "Amount"
	descHeader := "Description"

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE import_batches`).
		WithArgs(batchID, (*string)(nil), &amountHeader, &descHeader, 0, BatchStatusReviewing, BatchStatusMapping).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.StageRows(context.Background(), batchID, nil, &amountHeader, &descHeader, nil)
	assert.ErrorIs(t, err, ErrBatchNotMapping)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleRowExcluded(t *testing.T) {
	mock, repo := newMockRepo(t)

	batchID := uuid.New()
	rowID := uuid.New()

	mock.ExpectQuery(`UPDATE staging_rows`).
		WithArgs(rowID, batchID).
		WillReturnRows(pgxmock.NewRows([]string{"is_excluded"}).AddRow(true))

	excluded, err := repo.ToggleRowExcluded(context.Background(), batchID, rowID)
	require.NoError(t, err)
	assert.True(t, excluded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleRowExcludedNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	batchID := uuid.New()
	rowID := uuid.New()

	mock.ExpectQuery(`UPDATE staging_rows`).
		WithArgs(rowID, batchID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.ToggleRowExcluded(context.Background(), batchID, rowID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRowTags(t *testing.T) {
	mock, repo := newMockRepo(t)

	batchID := uuid.New()
	rowID := uuid.New()
	tagIDs := []uuid.UUID{uuid.New(), uuid.New()}

	mock.ExpectExec(`UPDATE staging_rows`).
		WithArgs(rowID, batchID, tagIDs).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.ReplaceRowTags(context.Background(), batchID, rowID, tagIDs)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRowTagsNilBecomesEmpty(t *testing.T) {
	mock, repo := newMockRepo(t)

	batchID := uuid.New()
	rowID := uuid.New()

	mock.ExpectExec(`UPDATE staging_rows`).
		WithArgs(rowID, batchID, []uuid.UUID{}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.ReplaceRowTags(context.Background(), batchID, rowID, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNonExcludedRows(t *testing.T) {
	mock, repo := newMockRepo(t)

	batchID := uuid.New()
	now := time.Now()
	amount := int64(1700)

	mock.ExpectQuery(`SELECT id, batch_id, row_index`).
		WithArgs(batchID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "batch_id", "row_index", "raw_fields", "fingerprint", "amount_minor",
			"date_text", "description", "is_duplicate", "is_excluded", "tag_ids", "created_at",
		}).AddRow(
			uuid.New(), batchID, 0, []string{"a", "b"}, "00001111", &amount,
			"2024-02-01", "Groceries", false, false, []uuid.UUID{}, now,
		).AddRow(
			uuid.New(), batchID, 2, []string{"c", "d"}, "00002222", nil,
			"bad date", "Rent", true, false, []uuid.UUID{uuid.New()}, now,
		))

	rows, err := repo.ListNonExcludedRows(context.Background(), batchID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].RowIndex)
	require.NotNil(t, rows[0].AmountMinor)
	assert.Equal(t, int64(1700), *rows[0].AmountMinor)
	assert.Nil(t, rows[1].AmountMinor)
	assert.True(t, rows[1].IsDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingFingerprints(t *testing.T) {
	mock, repo := newMockRepo(t)

	projectID := uuid.New()

	mock.ExpectQuery(`SELECT DISTINCT fingerprint`).
		WithArgs(projectID, []string{"0000aaaa", "0000bbbb"}).
		WillReturnRows(pgxmock.NewRows([]string{"fingerprint"}).AddRow("0000bbbb"))

	existing, err := repo.ExistingFingerprints(context.Background(), projectID, []string{"0000aaaa", "0000bbbb"})
	require.NoError(t, err)
	_, hasA := existing["0000aaaa"]
	_, hasB := existing["0000bbbb"]
	assert.False(t, hasA)
	assert.True(t, hasB)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingFingerprintsEmptyInput(t *testing.T) {
	_, repo := newMockRepo(t)

	existing, err := repo.ExistingFingerprints(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestCommitBatch(t *testing.T) {
	mock, repo := newMockRepo(t)

	batchID := uuid.New()
	projectID := uuid.New()
	accountID := uuid.New()
	tagID := uuid.New()
	fp := "0000abcd"
	occurred := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	records := []*TransactionRecord{
		{
			ProjectID:   projectID,
			AccountID:   accountID,
			AmountMinor: -4250,
			OccurredOn:  occurred,
			Description: "Coffee",
			Fingerprint: &fp,
			TagIDs:      []uuid.UUID{tagID},
		},
		{
			ProjectID:   projectID,
			AccountID:   accountID,
			AmountMinor: 0,
			OccurredOn:  occurred,
			Description: "Unparsed amount",
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE import_batches`).
		WithArgs(batchID, BatchStatusCompleted, BatchStatusReviewing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(pgxmock.AnyArg(), projectID, accountID, int64(-4250), occurred, "Coffee", &fp, batchID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO transaction_tags`).
		WithArgs(pgxmock.AnyArg(), tagID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(pgxmock.AnyArg(), projectID, accountID, int64(0), occurred, "Unparsed amount", (*string)(nil), batchID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM staging_rows`).
		WithArgs(batchID).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	created, err := repo.CommitBatch(context.Background(), batchID, records)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.NotEqual(t, uuid.Nil, records[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitBatchNotReviewing(t *testing.T) {
	mock, repo := newMockRepo(t)

	batchID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE import_batches`).
		WithArgs(batchID, BatchStatusCompleted, BatchStatusReviewing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := repo.CommitBatch(context.Background(), batchID, nil)
	assert.ErrorIs(t, err, ErrBatchNotReviewing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkBatchAbandoned(t *testing.T) {
	mock, repo := newMockRepo(t)

	batchID := uuid.New()

	mock.ExpectExec(`UPDATE import_batches`).
		WithArgs(batchID, BatchStatusAbandoned, BatchStatusCompleted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.MarkBatchAbandoned(context.Background(), batchID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkBatchAbandonedAlreadyCompleted(t *testing.T) {
	mock, repo := newMockRepo(t)

	batchID := uuid.New()

	mock.ExpectExec(`UPDATE import_batches`).
		WithArgs(batchID, BatchStatusAbandoned, BatchStatusCompleted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.MarkBatchAbandoned(context.Background(), batchID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
