package balance

import (
	"context"

	"github.com/google/uuid"

	"github.com/hearthbooks/hearthbooks/pkg/money"
)

// Service handles balance business logic
type Service struct {
	repo *Repository
}

// NewService creates a new balance service
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// AccountSummary is one account's balance with a display amount
type AccountSummary struct {
	AccountBalance
	BalanceDisplay string
}

// ProjectSummary is one subtree project's balance with a display amount
type ProjectSummary struct {
	ProjectBalance
	BalanceDisplay string
}

// Summary is the complete balance response for a project
type Summary struct {
	TotalMinor         int64
	TotalDisplay       string
	MonthChangeMinor   int64
	MonthChangeDisplay string
	CurrencyCode       string
	Accounts           []AccountSummary
	Subtree            []ProjectSummary
}

// GetSummary computes a project's balance rollup. The total covers the whole
// subtree; per-account lines cover the project itself.
func (s *Service) GetSummary(ctx context.Context, projectID uuid.UUID, currencyCode string) (*Summary, error) {
	accounts, err := s.repo.AccountBalances(ctx, projectID)
	if err != nil {
		return nil, err
	}

	subtree, err := s.repo.SubtreeBalances(ctx, projectID)
	if err != nil {
		return nil, err
	}

	monthChange, err := s.repo.MonthlyChange(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var total int64
	projects := make([]ProjectSummary, 0, len(subtree))
	for _, p := range subtree {
		total += p.BalanceMinor
		projects = append(projects, ProjectSummary{
			ProjectBalance: p,
			BalanceDisplay: money.Format(p.BalanceMinor, currencyCode),
		})
	}

	accountSummaries := make([]AccountSummary, 0, len(accounts))
	for _, a := range accounts {
		accountSummaries = append(accountSummaries, AccountSummary{
			AccountBalance: a,
			BalanceDisplay: money.Format(a.BalanceMinor, a.CurrencyCode),
		})
	}

	return &Summary{
		TotalMinor:         total,
		TotalDisplay:       money.Format(total, currencyCode),
		MonthChangeMinor:   monthChange,
		MonthChangeDisplay: money.Format(monthChange, currencyCode),
		CurrencyCode:       currencyCode,
		Accounts:           accountSummaries,
		Subtree:            projects,
	}, nil
}
