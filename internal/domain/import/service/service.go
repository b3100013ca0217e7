// Package service provides the import pipeline orchestration: upload,
// column mapping, duplicate detection, review and commit.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/hearthbooks/hearthbooks/internal/domain/import/mapper"
	"github.com/hearthbooks/hearthbooks/internal/domain/import/parser"
	"github.com/hearthbooks/hearthbooks/internal/domain/import/repository"
	"github.com/hearthbooks/hearthbooks/internal/domain/import/rowhash"
	"github.com/hearthbooks/hearthbooks/internal/domain/suggest"
	"github.com/hearthbooks/hearthbooks/pkg/blob"
	"github.com/hearthbooks/hearthbooks/pkg/money"
)

var tracer = otel.Tracer("hearthbooks.import")

// Validation errors surfaced to the user without any state change
var (
	ErrNoFile            = errors.New("no file provided")
	ErrFileTooLarge      = errors.New("file exceeds the upload size limit")
	ErrNoAccount         = errors.New("no account selected")
	ErrMappingIncomplete = errors.New("amount and description columns are required")
	ErrHeaderNotFound    = errors.New("mapped column not present in the file")
	ErrBatchState        = errors.New("batch is not in the right state for this operation")
	ErrNothingToCommit   = errors.New("no rows selected for import")
)

// sampleRowLimit caps how many parsed rows the mapping preview includes
const sampleRowLimit = 5

// TagVocabulary provides the tag options of a project for suggestion runs
type TagVocabulary interface {
	ProjectTagOptions(ctx context.Context, projectID uuid.UUID) ([]suggest.TagOption, error)
}

// AccountChecker verifies that an account belongs to a project
type AccountChecker interface {
	AccountInProject(ctx context.Context, projectID, accountID uuid.UUID) (bool, error)
}

// Preview is what the mapping screen needs: the parsed headers, a few sample
// rows, and the heuristic column guesses to seed the dropdowns.
type Preview struct {
	Batch     *repository.Batch
	Headers   []string
	Sample    [][]string
	Suggested mapper.Suggestion
}

// ImportService orchestrates the statement import pipeline
type ImportService struct {
	repo           repository.ImportRepository
	blobs          blob.Store
	suggester      suggest.Suggester
	tags           TagVocabulary
	accounts       AccountChecker
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewImportService creates a new import service
func NewImportService(repo repository.ImportRepository, blobs blob.Store, accounts AccountChecker, maxUploadBytes int64, logger *slog.Logger) *ImportService {
	return &ImportService{
		repo:           repo,
		blobs:          blobs,
		accounts:       accounts,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// WithSuggester adds tag suggestion support to the import service
func (s *ImportService) WithSuggester(suggester suggest.Suggester, tags TagVocabulary) *ImportService {
	s.suggester = suggester
	s.tags = tags
	return s
}

// StartImport stores the uploaded statement, creates the batch, and returns
// the mapping preview. The batch ends up in the mapping state.
func (s *ImportService) StartImport(ctx context.Context, projectID, accountID uuid.UUID, filename string, data []byte) (*Preview, error) {
	ctx, span := tracer.Start(ctx, "ImportService.StartImport")
	defer span.End()

	if accountID == uuid.Nil {
		return nil, ErrNoAccount
	}
	if len(data) == 0 {
		return nil, ErrNoFile
	}
	if s.maxUploadBytes > 0 && int64(len(data)) > s.maxUploadBytes {
		return nil, ErrFileTooLarge
	}

	ok, err := s.accounts.AccountInProject(ctx, projectID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to check account: %w", err)
	}
	if !ok {
		return nil, sql.ErrNoRows
	}

	if filename == "" {
		filename = "statement.csv"
	}

	batch := &repository.Batch{
		ProjectID:        projectID,
		AccountID:        accountID,
		OriginalFilename: filename,
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}

	key := blobKey(projectID, batch.ID, filename)
	if err := s.blobs.Put(ctx, key, data, contentType(key)); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	if err := s.repo.SetBatchBlobKey(ctx, batch.ID, key); err != nil {
		return nil, err
	}
	batch.BlobKey = &key
	batch.Status = repository.BatchStatusMapping

	doc, err := parseDocument(key, data)
	if err != nil {
		return nil, err
	}

	return buildPreview(batch, doc), nil
}

// GetBatch retrieves a batch scoped to a project
func (s *ImportService) GetBatch(ctx context.Context, projectID, batchID uuid.UUID) (*repository.Batch, error) {
	return s.repo.GetBatch(ctx, projectID, batchID)
}

// ListBatches retrieves the import history of a project
func (s *ImportService) ListBatches(ctx context.Context, projectID uuid.UUID) ([]*repository.Batch, error) {
	return s.repo.ListBatches(ctx, projectID)
}

// PreviewBatch re-parses the stored upload for a batch still awaiting its
// column mapping, so the mapping screen survives a page reload.
func (s *ImportService) PreviewBatch(ctx context.Context, projectID, batchID uuid.UUID) (*Preview, error) {
	batch, err := s.repo.GetBatch(ctx, projectID, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != repository.BatchStatusMapping || batch.BlobKey == nil {
		return nil, ErrBatchState
	}

	data, err := s.blobs.Get(ctx, *batch.BlobKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to load upload: %w", err)
	}

	doc, err := parseDocument(*batch.BlobKey, data)
	if err != nil {
		return nil, err
	}

	return buildPreview(batch, doc), nil
}

// ConfirmMapping applies the user-confirmed column mapping: the stored file
// is parsed, every row is fingerprinted and checked against the project's
// committed transactions, and the resulting staging rows move the batch to
// reviewing. The date column may be left unmapped; amount and description
// are required.
func (s *ImportService) ConfirmMapping(ctx context.Context, projectID, batchID uuid.UUID, dateHeader, amountHeader, descriptionHeader string) ([]*repository.StagingRow, error) {
	ctx, span := tracer.Start(ctx, "ImportService.ConfirmMapping")
	defer span.End()

	if amountHeader == "" || descriptionHeader == "" {
		return nil, ErrMappingIncomplete
	}

	batch, err := s.repo.GetBatch(ctx, projectID, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != repository.BatchStatusMapping || batch.BlobKey == nil {
		return nil, ErrBatchState
	}

	data, err := s.blobs.Get(ctx, *batch.BlobKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to load upload: %w", err)
	}

	doc, err := parseDocument(*batch.BlobKey, data)
	if err != nil {
		return nil, err
	}

	amountIdx := doc.HeaderIndex(amountHeader)
	descriptionIdx := doc.HeaderIndex(descriptionHeader)
	if amountIdx < 0 || descriptionIdx < 0 {
		return nil, ErrHeaderNotFound
	}
	dateIdx := -1
	if dateHeader != "" {
		dateIdx = doc.HeaderIndex(dateHeader)
		if dateIdx < 0 {
			return nil, ErrHeaderNotFound
		}
	}

	rows := make([]*repository.StagingRow, 0, len(doc.Rows))
	fingerprints := make([]string, 0, len(doc.Rows))
	for i, raw := range doc.Rows {
		fp := rowhash.Fingerprint(raw)
		fingerprints = append(fingerprints, fp)

		row := &repository.StagingRow{
			RowIndex:    i,
			RawFields:   raw,
			Fingerprint: fp,
			Description: doc.Field(raw, descriptionIdx),
		}
		if dateIdx >= 0 {
			row.DateText = doc.Field(raw, dateIdx)
		}
		if minor, err := money.ParseMinor(doc.Field(raw, amountIdx)); err == nil {
			row.AmountMinor = &minor
		}
		rows = append(rows, row)
	}

	// Duplicate status is a snapshot against transactions committed so far.
	// It is not re-evaluated later, even if other batches commit in between.
	existing, err := s.repo.ExistingFingerprints(ctx, projectID, fingerprints)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		_, row.IsDuplicate = existing[row.Fingerprint]
	}

	var datePtr *string
	if dateHeader != "" {
		datePtr = &dateHeader
	}
	if err := s.repo.StageRows(ctx, batchID, datePtr, &amountHeader, &descriptionHeader, rows); err != nil {
		return nil, err
	}

	return rows, nil
}

// ListReviewRows retrieves the staging rows of a batch for the review screen
func (s *ImportService) ListReviewRows(ctx context.Context, projectID, batchID uuid.UUID) ([]*repository.StagingRow, error) {
	if _, err := s.repo.GetBatch(ctx, projectID, batchID); err != nil {
		return nil, err
	}
	return s.repo.ListStagingRows(ctx, batchID)
}

// ToggleRowExclusion flips whether a staged row will be part of the commit
func (s *ImportService) ToggleRowExclusion(ctx context.Context, projectID, batchID, rowID uuid.UUID) (bool, error) {
	if _, err := s.repo.GetBatch(ctx, projectID, batchID); err != nil {
		return false, err
	}
	return s.repo.ToggleRowExcluded(ctx, batchID, rowID)
}

// UpdateRowTags overwrites the pending tag list of a staged row
func (s *ImportService) UpdateRowTags(ctx context.Context, projectID, batchID, rowID uuid.UUID, tagIDs []uuid.UUID) error {
	if _, err := s.repo.GetBatch(ctx, projectID, batchID); err != nil {
		return err
	}
	return s.repo.ReplaceRowTags(ctx, batchID, rowID, tagIDs)
}

// SuggestTags runs the tag suggester over the batch's non-excluded rows and
// applies whatever suggestions came back. Suggestion failures never fail the
// request: with no suggester configured, or when every model call fails, the
// result is simply zero applied suggestions. Storage failures while applying
// do fail, and rows already updated stay updated.
func (s *ImportService) SuggestTags(ctx context.Context, projectID, batchID uuid.UUID) (int, error) {
	ctx, span := tracer.Start(ctx, "ImportService.SuggestTags")
	defer span.End()

	batch, err := s.repo.GetBatch(ctx, projectID, batchID)
	if err != nil {
		return 0, err
	}
	if batch.Status != repository.BatchStatusReviewing {
		return 0, ErrBatchState
	}

	if s.suggester == nil || s.tags == nil {
		s.logger.InfoContext(ctx, "tag suggestion not configured, skipping", "batch_id", batchID)
		return 0, nil
	}

	staged, err := s.repo.ListNonExcludedRows(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if len(staged) == 0 {
		return 0, nil
	}

	vocabulary, err := s.tags.ProjectTagOptions(ctx, projectID)
	if err != nil {
		return 0, err
	}

	rows := make([]suggest.Row, len(staged))
	for i, r := range staged {
		rows[i] = suggest.Row{ID: r.ID, Description: r.Description, AmountMinor: r.AmountMinor}
	}

	suggestions := s.suggester.SuggestTags(ctx, rows, vocabulary)

	applied := 0
	for _, sg := range suggestions {
		if err := s.repo.ReplaceRowTags(ctx, batchID, sg.RowID, sg.TagIDs); err != nil {
			return applied, fmt.Errorf("failed to apply suggestion: %w", err)
		}
		applied++
	}

	return applied, nil
}

// CommitBatch turns the batch's non-excluded staging rows into permanent
// transactions. Rows whose amount never parsed commit as zero; rows whose
// date never parsed commit dated today. A batch with zero non-excluded rows
// is rejected before anything is written. After the relational commit the
// stored upload is deleted best-effort.
func (s *ImportService) CommitBatch(ctx context.Context, projectID, batchID uuid.UUID) (int, error) {
	ctx, span := tracer.Start(ctx, "ImportService.CommitBatch")
	defer span.End()

	batch, err := s.repo.GetBatch(ctx, projectID, batchID)
	if err != nil {
		return 0, err
	}
	if batch.Status != repository.BatchStatusReviewing {
		return 0, ErrBatchState
	}

	staged, err := s.repo.ListNonExcludedRows(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if len(staged) == 0 {
		return 0, ErrNothingToCommit
	}

	today := time.Now()
	records := make([]*repository.TransactionRecord, len(staged))
	for i, row := range staged {
		rec := &repository.TransactionRecord{
			ProjectID:   projectID,
			AccountID:   batch.AccountID,
			Description: row.Description,
			OccurredOn:  today,
			TagIDs:      row.TagIDs,
		}
		if row.AmountMinor != nil {
			rec.AmountMinor = *row.AmountMinor
		}
		if parsed, ok := parser.ParseDate(row.DateText); ok {
			rec.OccurredOn = parsed
		}
		if row.Fingerprint != "" {
			fp := row.Fingerprint
			rec.Fingerprint = &fp
		}
		records[i] = rec
	}

	created, err := s.repo.CommitBatch(ctx, batchID, records)
	if err != nil {
		return 0, err
	}

	s.deleteBlob(ctx, batch.BlobKey)

	batchesCompleted.Inc()
	transactionsImported.Add(float64(created))

	s.logger.InfoContext(ctx, "import batch committed",
		"batch_id", batchID, "project_id", projectID, "transactions", created)

	return created, nil
}

// DeleteBatch removes a batch, its staging rows, and its stored upload
func (s *ImportService) DeleteBatch(ctx context.Context, projectID, batchID uuid.UUID) error {
	batch, err := s.repo.GetBatch(ctx, projectID, batchID)
	if err != nil {
		return err
	}

	s.deleteBlob(ctx, batch.BlobKey)

	return s.repo.DeleteBatch(ctx, projectID, batchID)
}

// AbandonBatch marks an unfinished batch abandoned, drops its upload, and
// deletes its staging rows. The batch row itself stays behind for audit.
// Completed batches cannot be abandoned.
func (s *ImportService) AbandonBatch(ctx context.Context, projectID, batchID uuid.UUID) error {
	batch, err := s.repo.GetBatch(ctx, projectID, batchID)
	if err != nil {
		return err
	}
	if batch.Status == repository.BatchStatusCompleted {
		return ErrBatchState
	}

	s.deleteBlob(ctx, batch.BlobKey)

	if err := s.repo.MarkBatchAbandoned(ctx, batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBatchState
		}
		return err
	}

	// The kept batch row means no cascade fires; clean up explicitly
	if err := s.repo.DeleteStagingRows(ctx, batchID); err != nil {
		return fmt.Errorf("failed to delete staging rows: %w", err)
	}

	batchesAbandoned.Inc()
	return nil
}

// AbandonStaleBatches abandons every unfinished batch untouched for longer
// than ttl. Used by the nightly sweeper. Per-batch failures are logged and
// skipped so one bad batch cannot wedge the sweep.
func (s *ImportService) AbandonStaleBatches(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)

	stale, err := s.repo.ListStaleBatches(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	abandoned := 0
	for _, batch := range stale {
		s.deleteBlob(ctx, batch.BlobKey)

		if err := s.repo.MarkBatchAbandoned(ctx, batch.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to abandon stale batch", "batch_id", batch.ID, "error", err)
			continue
		}
		if err := s.repo.DeleteStagingRows(ctx, batch.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to delete staging rows of stale batch", "batch_id", batch.ID, "error", err)
		}
		batchesAbandoned.Inc()
		abandoned++
	}

	return abandoned, nil
}

// deleteBlob removes a stored upload best-effort. A missing or failing blob
// store never fails the surrounding operation.
func (s *ImportService) deleteBlob(ctx context.Context, key *string) {
	if key == nil || *key == "" {
		return
	}
	if err := s.blobs.Delete(ctx, *key); err != nil {
		s.logger.WarnContext(ctx, "failed to delete import blob", "key", *key, "error", err)
	}
}

// blobKey builds the storage key for a batch's raw upload. Spreadsheet
// uploads keep their extension so re-parsing picks the right parser.
func blobKey(projectID, batchID uuid.UUID, filename string) string {
	ext := ".csv"
	if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		ext = ".xlsx"
	}
	return fmt.Sprintf("imports/%s/%s%s", projectID, batchID, ext)
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".xlsx") {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

func parseDocument(key string, data []byte) (parser.Document, error) {
	if strings.HasSuffix(key, ".xlsx") {
		return parser.ParseXLSX(data)
	}
	return parser.Parse(string(data)), nil
}

func buildPreview(batch *repository.Batch, doc parser.Document) *Preview {
	sample := doc.Rows
	if len(sample) > sampleRowLimit {
		sample = sample[:sampleRowLimit]
	}
	return &Preview{
		Batch:     batch,
		Headers:   doc.Headers,
		Sample:    sample,
		Suggested: mapper.Suggest(doc.Headers),
	}
}
