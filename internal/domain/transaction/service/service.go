// Package service implements the transaction ledger: listing with filters,
// manual entry, tagging, description search, and CSV export.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hearthbooks/hearthbooks/internal/domain/transaction/repository"
	"github.com/hearthbooks/hearthbooks/pkg/money"
)

var (
	// ErrDescriptionRequired is returned for a manual entry without a
	// description.
	ErrDescriptionRequired = errors.New("transaction description is required")

	// ErrNoAccount is returned for a manual entry without an account.
	ErrNoAccount = errors.New("no account selected")
)

// TransactionService coordinates ledger business logic
type TransactionService struct {
	repo   repository.TransactionRepository
	search *SearchIndex
	logger *slog.Logger
}

// NewTransactionService creates a new transaction service
func NewTransactionService(repo repository.TransactionRepository, search *SearchIndex, logger *slog.Logger) *TransactionService {
	return &TransactionService{repo: repo, search: search, logger: logger}
}

// View is a transaction with its amount pre-formatted for display
type View struct {
	*repository.Transaction
	AmountDisplay string
}

func (s *TransactionService) toViews(txns []*repository.Transaction, currencyCode string) []*View {
	views := make([]*View, len(txns))
	for i, t := range txns {
		views[i] = &View{
			Transaction:   t,
			AmountDisplay: money.Format(t.AmountMinor, currencyCode),
		}
	}
	return views
}

// CreateTransaction records a manual ledger entry
func (s *TransactionService) CreateTransaction(ctx context.Context, projectID, accountID uuid.UUID, amountMinor int64, occurredOn time.Time, description string, notes *string, tagIDs []uuid.UUID) (*repository.Transaction, error) {
	if description == "" {
		return nil, ErrDescriptionRequired
	}
	if accountID == uuid.Nil {
		return nil, ErrNoAccount
	}
	if occurredOn.IsZero() {
		occurredOn = time.Now()
	}

	txn := &repository.Transaction{
		ProjectID:   projectID,
		AccountID:   accountID,
		AmountMinor: amountMinor,
		OccurredOn:  occurredOn,
		Description: description,
		Notes:       notes,
		TagIDs:      tagIDs,
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, err
	}

	if err := s.search.Add(txn); err != nil {
		s.logger.WarnContext(ctx, "failed to index transaction", "transaction_id", txn.ID, "error", err)
	}

	return txn, nil
}

// GetTransaction retrieves one transaction scoped to a project
func (s *TransactionService) GetTransaction(ctx context.Context, projectID, txnID uuid.UUID) (*repository.Transaction, error) {
	return s.repo.GetByID(ctx, projectID, txnID)
}

// ListTransactions retrieves a filtered project listing with display amounts
func (s *TransactionService) ListTransactions(ctx context.Context, projectID uuid.UUID, currencyCode string, filter repository.Filter) ([]*View, error) {
	txns, err := s.repo.List(ctx, projectID, filter)
	if err != nil {
		return nil, err
	}
	return s.toViews(txns, currencyCode), nil
}

// SearchTransactions runs a full-text description search, then loads the
// matching rows. The index is rebuilt from storage when stale, so rows
// committed by the import pipeline show up too.
func (s *TransactionService) SearchTransactions(ctx context.Context, projectID uuid.UUID, currencyCode, query string, limit int) ([]*View, error) {
	if s.search.Stale(projectID) {
		entries, err := s.repo.ListIndexEntries(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if err := s.search.Refresh(projectID, entries); err != nil {
			s.logger.WarnContext(ctx, "failed to refresh search index", "project_id", projectID, "error", err)
		}
	}

	ids, err := s.search.Search(projectID, query, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*View{}, nil
	}

	txns, err := s.repo.List(ctx, projectID, repository.Filter{IDs: ids})
	if err != nil {
		return nil, err
	}
	return s.toViews(txns, currencyCode), nil
}

// UpdateNotes replaces a transaction's notes
func (s *TransactionService) UpdateNotes(ctx context.Context, projectID, txnID uuid.UUID, notes *string) error {
	return s.repo.UpdateNotes(ctx, projectID, txnID, notes)
}

// ReplaceTags overwrites a transaction's tag assignment
func (s *TransactionService) ReplaceTags(ctx context.Context, projectID, txnID uuid.UUID, tagIDs []uuid.UUID) error {
	return s.repo.ReplaceTags(ctx, projectID, txnID, tagIDs)
}

// DeleteTransaction removes a transaction
func (s *TransactionService) DeleteTransaction(ctx context.Context, projectID, txnID uuid.UUID) error {
	if err := s.repo.Delete(ctx, projectID, txnID); err != nil {
		return err
	}
	if err := s.search.Remove(txnID); err != nil {
		s.logger.WarnContext(ctx, "failed to deindex transaction", "transaction_id", txnID, "error", err)
	}
	return nil
}
