// Package e2etest exercises the full import pipeline in memory: upload,
// column mapping, duplicate detection, tag suggestion, review edits, and
// commit, against fake storage backends.
package e2etest

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	importrepo "github.com/hearthbooks/hearthbooks/internal/domain/import/repository"
	importservice "github.com/hearthbooks/hearthbooks/internal/domain/import/service"
	"github.com/hearthbooks/hearthbooks/internal/domain/suggest"
	"github.com/hearthbooks/hearthbooks/pkg/blob"
)

const statementCSV = `Date,Amount,Description
2024-03-01,-42.17,ALBERT HEIJN 1376
2024-03-02,-9.99,SPOTIFY AB
2024-03-03,2850.00,SALARY ACME CORP
2024-03-04,-15.40,THUISBEZORGD.NL
`

// fakeBlobStore is an in-memory blob.Store
type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (s *fakeBlobStore) Put(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *fakeBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return data, nil
}

func (s *fakeBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeBlobStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// fakeImportRepo is an in-memory ImportRepository good enough for the
// pipeline's state machine.
type fakeImportRepo struct {
	mu           sync.Mutex
	batches      map[uuid.UUID]*importrepo.Batch
	rows         map[uuid.UUID][]*importrepo.StagingRow
	fingerprints map[string]struct{}
	committed    []*importrepo.TransactionRecord
}

func newFakeImportRepo() *fakeImportRepo {
	return &fakeImportRepo{
		batches:      make(map[uuid.UUID]*importrepo.Batch),
		rows:         make(map[uuid.UUID][]*importrepo.StagingRow),
		fingerprints: make(map[string]struct{}),
	}
}

func (r *fakeImportRepo) CreateBatch(_ context.Context, batch *importrepo.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	batch.Status = importrepo.BatchStatusUploading
	batch.CreatedAt = time.Now()
	r.batches[batch.ID] = batch
	return nil
}

func (r *fakeImportRepo) GetBatch(_ context.Context, projectID, batchID uuid.UUID) (*importrepo.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[batchID]
	if !ok || batch.ProjectID != projectID {
		return nil, sql.ErrNoRows
	}
	copied := *batch
	return &copied, nil
}

func (r *fakeImportRepo) ListBatches(_ context.Context, projectID uuid.UUID) ([]*importrepo.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*importrepo.Batch
	for _, b := range r.batches {
		if b.ProjectID == projectID {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeImportRepo) SetBatchBlobKey(_ context.Context, batchID uuid.UUID, blobKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := r.batches[batchID]
	batch.BlobKey = &blobKey
	batch.Status = importrepo.BatchStatusMapping
	return nil
}

func (r *fakeImportRepo) DeleteBatch(_ context.Context, projectID, batchID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[batchID]
	if !ok || batch.ProjectID != projectID {
		return sql.ErrNoRows
	}
	delete(r.batches, batchID)
	delete(r.rows, batchID)
	return nil
}

func (r *fakeImportRepo) StageRows(_ context.Context, batchID uuid.UUID, dateHeader, amountHeader, descriptionHeader *string, rows []*importrepo.StagingRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := r.batches[batchID]
	if batch.Status != importrepo.BatchStatusMapping {
		return importrepo.ErrBatchNotMapping
	}
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		row.BatchID = batchID
	}
	r.rows[batchID] = rows
	batch.DateHeader = dateHeader
	batch.AmountHeader = amountHeader
	batch.DescriptionHeader = descriptionHeader
	batch.RowCount = len(rows)
	batch.Status = importrepo.BatchStatusReviewing
	return nil
}

func (r *fakeImportRepo) ListStagingRows(_ context.Context, batchID uuid.UUID) ([]*importrepo.StagingRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[batchID], nil
}

func (r *fakeImportRepo) ListNonExcludedRows(_ context.Context, batchID uuid.UUID) ([]*importrepo.StagingRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*importrepo.StagingRow
	for _, row := range r.rows[batchID] {
		if !row.IsExcluded {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeImportRepo) ToggleRowExcluded(_ context.Context, batchID, rowID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows[batchID] {
		if row.ID == rowID {
			row.IsExcluded = !row.IsExcluded
			return row.IsExcluded, nil
		}
	}
	return false, sql.ErrNoRows
}

func (r *fakeImportRepo) ReplaceRowTags(_ context.Context, batchID, rowID uuid.UUID, tagIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows[batchID] {
		if row.ID == rowID {
			row.TagIDs = tagIDs
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *fakeImportRepo) DeleteStagingRows(_ context.Context, batchID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, batchID)
	return nil
}

func (r *fakeImportRepo) ExistingFingerprints(_ context.Context, _ uuid.UUID, fingerprints []string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]struct{})
	for _, fp := range fingerprints {
		if _, ok := r.fingerprints[fp]; ok {
			out[fp] = struct{}{}
		}
	}
	return out, nil
}

func (r *fakeImportRepo) CommitBatch(_ context.Context, batchID uuid.UUID, records []*importrepo.TransactionRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := r.batches[batchID]
	if batch.Status != importrepo.BatchStatusReviewing {
		return 0, importrepo.ErrBatchNotReviewing
	}
	for _, rec := range records {
		r.committed = append(r.committed, rec)
		if rec.Fingerprint != nil {
			r.fingerprints[*rec.Fingerprint] = struct{}{}
		}
	}
	delete(r.rows, batchID)
	now := time.Now()
	batch.Status = importrepo.BatchStatusCompleted
	batch.CompletedAt = &now
	batch.BlobKey = nil
	return len(records), nil
}

func (r *fakeImportRepo) ListStaleBatches(_ context.Context, olderThan time.Time) ([]*importrepo.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*importrepo.Batch
	for _, b := range r.batches {
		done := b.Status == importrepo.BatchStatusCompleted || b.Status == importrepo.BatchStatusAbandoned
		if !done && b.CreatedAt.Before(olderThan) {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeImportRepo) MarkBatchAbandoned(_ context.Context, batchID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[batchID]
	if !ok {
		return sql.ErrNoRows
	}
	if batch.Status == importrepo.BatchStatusCompleted || batch.Status == importrepo.BatchStatusAbandoned {
		return sql.ErrNoRows
	}
	batch.Status = importrepo.BatchStatusAbandoned
	batch.BlobKey = nil
	return nil
}

type fakeAccounts struct{ accountID uuid.UUID }

func (f fakeAccounts) AccountInProject(_ context.Context, _, accountID uuid.UUID) (bool, error) {
	return accountID == f.accountID, nil
}

type fakeTags struct{ options []suggest.TagOption }

func (f fakeTags) ProjectTagOptions(_ context.Context, _ uuid.UUID) ([]suggest.TagOption, error) {
	return f.options, nil
}

func newPipeline(t *testing.T) (*importservice.ImportService, *fakeImportRepo, *fakeBlobStore, uuid.UUID, uuid.UUID, []suggest.TagOption) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	repo := newFakeImportRepo()
	blobs := newFakeBlobStore()
	projectID := uuid.New()
	accountID := uuid.New()

	groceries := suggest.TagOption{ID: uuid.New(), Name: "albert heijn"}
	subscriptions := suggest.TagOption{ID: uuid.New(), Name: "spotify"}
	vocabulary := []suggest.TagOption{groceries, subscriptions}

	svc := importservice.NewImportService(repo, blobs, fakeAccounts{accountID: accountID}, 1<<20, logger).
		WithSuggester(suggest.NewKeywordSuggester(logger), fakeTags{options: vocabulary})

	return svc, repo, blobs, projectID, accountID, vocabulary
}

func TestImportPipelineEndToEnd(t *testing.T) {
	svc, repo, blobs, projectID, accountID, vocabulary := newPipeline(t)
	ctx := context.Background()

	// Upload: batch lands in mapping with heuristic column guesses
	preview, err := svc.StartImport(ctx, projectID, accountID, "statement.csv", []byte(statementCSV))
	require.NoError(t, err)
	batchID := preview.Batch.ID

	assert.Equal(t, importrepo.BatchStatusMapping, preview.Batch.Status)
	assert.Equal(t, []string{"Date", "Amount", "Description"}, preview.Headers)
	assert.Len(t, preview.Sample, 4)
	assert.Equal(t, "Date", preview.Suggested.DateHeader)
	assert.Equal(t, "Amount", preview.Suggested.AmountHeader)
	assert.Equal(t, "Description", preview.Suggested.DescriptionHeader)
	assert.Equal(t, 1, blobs.len())

	// Confirm mapping: rows staged, amounts parsed to minor units
	rows, err := svc.ConfirmMapping(ctx, projectID, batchID, "Date", "Amount", "Description")
	require.NoError(t, err)
	require.Len(t, rows, 4)

	require.NotNil(t, rows[0].AmountMinor)
	assert.Equal(t, int64(-4217), *rows[0].AmountMinor)
	require.NotNil(t, rows[2].AmountMinor)
	assert.Equal(t, int64(285000), *rows[2].AmountMinor)
	for _, row := range rows {
		assert.False(t, row.IsDuplicate)
	}

	batch, err := svc.GetBatch(ctx, projectID, batchID)
	require.NoError(t, err)
	assert.Equal(t, importrepo.BatchStatusReviewing, batch.Status)

	// Suggest: keyword matching tags the grocery and spotify rows
	applied, err := svc.SuggestTags(ctx, projectID, batchID)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	staged, err := svc.ListReviewRows(ctx, projectID, batchID)
	require.NoError(t, err)
	require.Len(t, staged, 4)
	assert.Equal(t, []uuid.UUID{vocabulary[0].ID}, staged[0].TagIDs)
	assert.Equal(t, []uuid.UUID{vocabulary[1].ID}, staged[1].TagIDs)

	// Review edits: exclude the salary row, hand-tag the takeaway row
	excluded, err := svc.ToggleRowExclusion(ctx, projectID, batchID, staged[2].ID)
	require.NoError(t, err)
	assert.True(t, excluded)

	err = svc.UpdateRowTags(ctx, projectID, batchID, staged[3].ID, []uuid.UUID{vocabulary[0].ID})
	require.NoError(t, err)

	// Commit: three transactions, blob gone, batch completed
	created, err := svc.CommitBatch(ctx, projectID, batchID)
	require.NoError(t, err)
	assert.Equal(t, 3, created)
	assert.Equal(t, 0, blobs.len())

	batch, err = svc.GetBatch(ctx, projectID, batchID)
	require.NoError(t, err)
	assert.Equal(t, importrepo.BatchStatusCompleted, batch.Status)
	assert.Nil(t, batch.BlobKey)

	require.Len(t, repo.committed, 3)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), repo.committed[0].OccurredOn)
	assert.Equal(t, "ALBERT HEIJN 1376", repo.committed[0].Description)
	for _, rec := range repo.committed {
		assert.NotEqual(t, "SALARY ACME CORP", rec.Description, "excluded row must not commit")
	}

	// Committing twice is rejected by the state machine
	_, err = svc.CommitBatch(ctx, projectID, batchID)
	assert.ErrorIs(t, err, importservice.ErrBatchState)
}

func TestImportPipelineDuplicateDetection(t *testing.T) {
	svc, _, _, projectID, accountID, _ := newPipeline(t)
	ctx := context.Background()

	// First import commits everything
	preview, err := svc.StartImport(ctx, projectID, accountID, "march.csv", []byte(statementCSV))
	require.NoError(t, err)
	_, err = svc.ConfirmMapping(ctx, projectID, preview.Batch.ID, "Date", "Amount", "Description")
	require.NoError(t, err)
	_, err = svc.CommitBatch(ctx, projectID, preview.Batch.ID)
	require.NoError(t, err)

	// Re-uploading the same statement flags every row as a duplicate
	preview2, err := svc.StartImport(ctx, projectID, accountID, "march-again.csv", []byte(statementCSV))
	require.NoError(t, err)
	rows, err := svc.ConfirmMapping(ctx, projectID, preview2.Batch.ID, "Date", "Amount", "Description")
	require.NoError(t, err)

	for _, row := range rows {
		assert.True(t, row.IsDuplicate, "row %d should be flagged", row.RowIndex)
	}
}

func TestImportPipelineValidation(t *testing.T) {
	svc, _, _, projectID, accountID, _ := newPipeline(t)
	ctx := context.Background()

	_, err := svc.StartImport(ctx, projectID, accountID, "empty.csv", nil)
	assert.ErrorIs(t, err, importservice.ErrNoFile)

	_, err = svc.StartImport(ctx, projectID, uuid.Nil, "x.csv", []byte(statementCSV))
	assert.ErrorIs(t, err, importservice.ErrNoAccount)

	big := strings.Repeat("a", 1<<21)
	_, err = svc.StartImport(ctx, projectID, accountID, "big.csv", []byte(big))
	assert.ErrorIs(t, err, importservice.ErrFileTooLarge)

	// Unknown account answers as not-found
	_, err = svc.StartImport(ctx, projectID, uuid.New(), "x.csv", []byte(statementCSV))
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// Mapping without required columns
	preview, err := svc.StartImport(ctx, projectID, accountID, "x.csv", []byte(statementCSV))
	require.NoError(t, err)
	_, err = svc.ConfirmMapping(ctx, projectID, preview.Batch.ID, "Date", "", "Description")
	assert.ErrorIs(t, err, importservice.ErrMappingIncomplete)
	_, err = svc.ConfirmMapping(ctx, projectID, preview.Batch.ID, "Date", "Nope", "Description")
	assert.ErrorIs(t, err, importservice.ErrHeaderNotFound)
}

func TestImportPipelineCommitAllExcluded(t *testing.T) {
	svc, _, _, projectID, accountID, _ := newPipeline(t)
	ctx := context.Background()

	preview, err := svc.StartImport(ctx, projectID, accountID, "x.csv", []byte(statementCSV))
	require.NoError(t, err)
	rows, err := svc.ConfirmMapping(ctx, projectID, preview.Batch.ID, "Date", "Amount", "Description")
	require.NoError(t, err)

	for _, row := range rows {
		_, err := svc.ToggleRowExclusion(ctx, projectID, preview.Batch.ID, row.ID)
		require.NoError(t, err)
	}

	_, err = svc.CommitBatch(ctx, projectID, preview.Batch.ID)
	assert.ErrorIs(t, err, importservice.ErrNothingToCommit)
}

func TestImportPipelineAbandonAndSweep(t *testing.T) {
	svc, repo, blobs, projectID, accountID, _ := newPipeline(t)
	ctx := context.Background()

	// Explicit abandon drops the upload and the staged rows; the batch row
	// itself survives for the history listing.
	preview, err := svc.StartImport(ctx, projectID, accountID, "x.csv", []byte(statementCSV))
	require.NoError(t, err)
	_, err = svc.ConfirmMapping(ctx, projectID, preview.Batch.ID, "Date", "Amount", "Description")
	require.NoError(t, err)

	require.NoError(t, svc.AbandonBatch(ctx, projectID, preview.Batch.ID))
	assert.Equal(t, 0, blobs.len())

	batch, err := svc.GetBatch(ctx, projectID, preview.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, importrepo.BatchStatusAbandoned, batch.Status)

	rows, err := svc.ListReviewRows(ctx, projectID, preview.Batch.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Abandoning again is a state error
	assert.ErrorIs(t, svc.AbandonBatch(ctx, projectID, preview.Batch.ID), importservice.ErrBatchState)

	// Sweeper abandons only stale unfinished batches
	stale, err := svc.StartImport(ctx, projectID, accountID, "old.csv", []byte(statementCSV))
	require.NoError(t, err)
	_, err = svc.ConfirmMapping(ctx, projectID, stale.Batch.ID, "Date", "Amount", "Description")
	require.NoError(t, err)
	repo.mu.Lock()
	repo.batches[stale.Batch.ID].CreatedAt = time.Now().Add(-100 * time.Hour)
	repo.mu.Unlock()

	fresh, err := svc.StartImport(ctx, projectID, accountID, "new.csv", []byte(statementCSV))
	require.NoError(t, err)

	abandoned, err := svc.AbandonStaleBatches(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, abandoned)

	staleBatch, err := svc.GetBatch(ctx, projectID, stale.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, importrepo.BatchStatusAbandoned, staleBatch.Status)

	staleRows, err := svc.ListReviewRows(ctx, projectID, stale.Batch.ID)
	require.NoError(t, err)
	assert.Empty(t, staleRows)

	freshBatch, err := svc.GetBatch(ctx, projectID, fresh.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, importrepo.BatchStatusMapping, freshBatch.Status)
}
