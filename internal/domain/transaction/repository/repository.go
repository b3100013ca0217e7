// Package repository provides persistence for permanent transactions and
// their tag assignments.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Transaction is one permanent ledger entry. The sign of AmountMinor encodes
// debit versus credit.
type Transaction struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	AccountID   uuid.UUID
	AmountMinor int64
	OccurredOn  time.Time
	Description string
	Notes       *string
	Fingerprint *string
	BatchID     *uuid.UUID
	TagIDs      []uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Filter narrows a transaction listing. Nil fields are ignored.
type Filter struct {
	AccountID *uuid.UUID
	TagID     *uuid.UUID
	From      *time.Time
	To        *time.Time
	IDs       []uuid.UUID
	Limit     int
	Offset    int
}

// IndexEntry is the slice of a transaction the search index needs
type IndexEntry struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Description string
}

// TransactionRepository defines persistence operations for transactions
type TransactionRepository interface {
	Create(ctx context.Context, txn *Transaction) error
	GetByID(ctx context.Context, projectID, txnID uuid.UUID) (*Transaction, error)
	List(ctx context.Context, projectID uuid.UUID, filter Filter) ([]*Transaction, error)
	UpdateNotes(ctx context.Context, projectID, txnID uuid.UUID, notes *string) error
	ReplaceTags(ctx context.Context, projectID, txnID uuid.UUID, tagIDs []uuid.UUID) error
	Delete(ctx context.Context, projectID, txnID uuid.UUID) error

	// ListIndexEntries feeds the description search index.
	ListIndexEntries(ctx context.Context, projectID uuid.UUID) ([]IndexEntry, error)
}
