package account

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

var (
	// ErrNameRequired is returned when an account is created without a name.
	ErrNameRequired = errors.New("account name is required")

	// ErrInvalidType is returned for an unsupported account type.
	ErrInvalidType = errors.New("account type must be checking, savings, credit, or cash")
)

// Service handles account business logic
type Service struct {
	repo   *Repository
	logger *slog.Logger
}

// NewService creates a new account service
func NewService(repo *Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateAccount creates an account in a project
func (s *Service) CreateAccount(ctx context.Context, projectID uuid.UUID, name, accountType, currencyCode string) (*Account, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	if accountType == "" {
		accountType = TypeChecking
	}
	if !ValidType(accountType) {
		return nil, ErrInvalidType
	}
	if currencyCode == "" {
		currencyCode = "EUR"
	}

	account := &Account{
		ProjectID:    projectID,
		Name:         name,
		AccountType:  accountType,
		CurrencyCode: currencyCode,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "account created", "account_id", account.ID, "project_id", projectID)
	return account, nil
}

// GetAccount retrieves an account scoped to a project
func (s *Service) GetAccount(ctx context.Context, projectID, accountID uuid.UUID) (*Account, error) {
	return s.repo.GetByID(ctx, projectID, accountID)
}

// ListAccounts retrieves all accounts of a project
func (s *Service) ListAccounts(ctx context.Context, projectID uuid.UUID) ([]*Account, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// UpdateAccount updates an account's name, type, and currency
func (s *Service) UpdateAccount(ctx context.Context, projectID, accountID uuid.UUID, name, accountType, currencyCode string) (*Account, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	if accountType != "" && !ValidType(accountType) {
		return nil, ErrInvalidType
	}

	account, err := s.repo.GetByID(ctx, projectID, accountID)
	if err != nil {
		return nil, err
	}
	account.Name = name
	if accountType != "" {
		account.AccountType = accountType
	}
	if currencyCode != "" {
		account.CurrencyCode = currencyCode
	}

	if err := s.repo.Update(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteAccount removes an account and its transactions
func (s *Service) DeleteAccount(ctx context.Context, projectID, accountID uuid.UUID) error {
	return s.repo.Delete(ctx, projectID, accountID)
}

// AccountInProject reports whether an account belongs to a project. The
// import pipeline uses this as its upload precondition.
func (s *Service) AccountInProject(ctx context.Context, projectID, accountID uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, projectID, accountID)
}
