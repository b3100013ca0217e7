// Package repository provides database operations for import batches and
// their staging rows.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// BatchStatus represents the lifecycle state of an import batch
type BatchStatus string

const (
	BatchStatusUploading BatchStatus = "uploading"
	BatchStatusMapping   BatchStatus = "mapping"
	BatchStatusReviewing BatchStatus = "reviewing"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusAbandoned BatchStatus = "abandoned"
)

var (
	// ErrBatchNotMapping is returned when staging rows are written against a
	// batch that already left the mapping state.
	ErrBatchNotMapping = errors.New("import batch is not awaiting column mapping")

	// ErrBatchNotReviewing is returned when a commit races another commit or
	// targets a batch outside the reviewing state.
	ErrBatchNotReviewing = errors.New("import batch is not in reviewing state")
)

// Batch represents one statement upload and its review/commit workflow
type Batch struct {
	ID                uuid.UUID
	ProjectID         uuid.UUID
	AccountID         uuid.UUID
	OriginalFilename  string
	RowCount          int
	Status            BatchStatus
	BlobKey           *string
	DateHeader        *string
	AmountHeader      *string
	DescriptionHeader *string
	CreatedAt         time.Time
	CompletedAt       *time.Time
	UpdatedAt         time.Time
}

// StagingRow is one parsed-but-not-yet-committed statement line
type StagingRow struct {
	ID          uuid.UUID
	BatchID     uuid.UUID
	RowIndex    int
	RawFields   []string
	Fingerprint string
	AmountMinor *int64
	DateText    string
	Description string
	IsDuplicate bool
	IsExcluded  bool
	TagIDs      []uuid.UUID
	CreatedAt   time.Time
}

// TransactionRecord is a permanent transaction built from a staging row,
// ready to be materialized at commit time.
type TransactionRecord struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	AccountID   uuid.UUID
	AmountMinor int64
	OccurredOn  time.Time
	Description string
	Fingerprint *string
	TagIDs      []uuid.UUID
}

// ImportRepository defines persistence operations for the import pipeline
type ImportRepository interface {
	// Batch lifecycle
	CreateBatch(ctx context.Context, batch *Batch) error
	GetBatch(ctx context.Context, projectID, batchID uuid.UUID) (*Batch, error)
	ListBatches(ctx context.Context, projectID uuid.UUID) ([]*Batch, error)
	SetBatchBlobKey(ctx context.Context, batchID uuid.UUID, blobKey string) error
	DeleteBatch(ctx context.Context, projectID, batchID uuid.UUID) error

	// StageRows persists the confirmed column mapping, bulk-creates the
	// parsed staging rows, and moves the batch to reviewing, all within one
	// transaction.
	StageRows(ctx context.Context, batchID uuid.UUID, dateHeader, amountHeader, descriptionHeader *string, rows []*StagingRow) error

	// Review operations
	ListStagingRows(ctx context.Context, batchID uuid.UUID) ([]*StagingRow, error)
	ListNonExcludedRows(ctx context.Context, batchID uuid.UUID) ([]*StagingRow, error)
	ToggleRowExcluded(ctx context.Context, batchID, rowID uuid.UUID) (bool, error)
	ReplaceRowTags(ctx context.Context, batchID, rowID uuid.UUID, tagIDs []uuid.UUID) error
	DeleteStagingRows(ctx context.Context, batchID uuid.UUID) error

	// ExistingFingerprints returns which of the given fingerprints already
	// belong to a committed transaction in the project.
	ExistingFingerprints(ctx context.Context, projectID uuid.UUID, fingerprints []string) (map[string]struct{}, error)

	// CommitBatch materializes the given records as permanent transactions
	// with their tag joins, deletes every staging row of the batch, marks
	// the batch completed, and clears its blob key. The relational writes
	// run in a single transaction; a batch outside reviewing fails with
	// ErrBatchNotReviewing. Returns the number of transactions created.
	CommitBatch(ctx context.Context, batchID uuid.UUID, records []*TransactionRecord) (int, error)

	// Sweeper support
	ListStaleBatches(ctx context.Context, olderThan time.Time) ([]*Batch, error)
	MarkBatchAbandoned(ctx context.Context, batchID uuid.UUID) error
}
