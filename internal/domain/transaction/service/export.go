package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/hearthbooks/hearthbooks/internal/domain/suggest"
	"github.com/hearthbooks/hearthbooks/internal/domain/transaction/repository"
	"github.com/hearthbooks/hearthbooks/pkg/money"
)

// TagLister resolves the tag vocabulary of a project, for export rows.
type TagLister interface {
	ProjectTagOptions(ctx context.Context, projectID uuid.UUID) ([]suggest.TagOption, error)
}

// exportRow is one line of the CSV export
type exportRow struct {
	Date        string `csv:"date"`
	Amount      string `csv:"amount"`
	Description string `csv:"description"`
	Notes       string `csv:"notes"`
	Tags        string `csv:"tags"`
}

// ExportCSV streams the project's filtered transactions as CSV. Tag IDs are
// resolved to names so the file is readable outside the app.
func (s *TransactionService) ExportCSV(ctx context.Context, w io.Writer, projectID uuid.UUID, currencyCode string, filter repository.Filter, tags TagLister) error {
	txns, err := s.repo.List(ctx, projectID, filter)
	if err != nil {
		return err
	}

	options, err := tags.ProjectTagOptions(ctx, projectID)
	if err != nil {
		return err
	}
	names := make(map[uuid.UUID]string, len(options))
	for _, opt := range options {
		names[opt.ID] = opt.Name
	}

	rows := make([]exportRow, 0, len(txns))
	for _, t := range txns {
		tagNames := make([]string, 0, len(t.TagIDs))
		for _, id := range t.TagIDs {
			if name, ok := names[id]; ok {
				tagNames = append(tagNames, name)
			}
		}
		notes := ""
		if t.Notes != nil {
			notes = *t.Notes
		}
		rows = append(rows, exportRow{
			Date:        t.OccurredOn.Format("2006-01-02"),
			Amount:      money.Format(t.AmountMinor, currencyCode),
			Description: t.Description,
			Notes:       notes,
			Tags:        strings.Join(tagNames, "; "),
		})
	}

	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to write csv export: %w", err)
	}
	return nil
}
