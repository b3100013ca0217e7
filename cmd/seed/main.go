// Command seed fills a development database with demo data: one demo user,
// a household project with a child project, accounts, tags, and a few months
// of transactions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/hearthbooks/hearthbooks/internal/domain/account"
	authrepo "github.com/hearthbooks/hearthbooks/internal/domain/auth/repository"
	importrepo "github.com/hearthbooks/hearthbooks/internal/domain/import/repository"
	"github.com/hearthbooks/hearthbooks/internal/domain/import/rowhash"
	projectrepo "github.com/hearthbooks/hearthbooks/internal/domain/project/repository"
	"github.com/hearthbooks/hearthbooks/internal/domain/tag"
	transactionrepo "github.com/hearthbooks/hearthbooks/internal/domain/transaction/repository"
	"github.com/hearthbooks/hearthbooks/pkg/config"
	"github.com/hearthbooks/hearthbooks/pkg/db"
	"github.com/hearthbooks/hearthbooks/pkg/money"
)

const (
	demoEmail    = "demo@hearthbooks.app"
	demoPassword = "demo-password"
)

var merchants = []string{
	"ALBERT HEIJN 1376", "SPOTIFY AB", "NS GROEP IZ OV-CHIPKAART",
	"SHELL STATION 4411", "BOL.COM BV", "ZIGGO SERVICES", "THUISBEZORGD.NL",
	"IKEA AMSTERDAM", "HEMA BV", "GEMEENTE BELASTINGEN",
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Server.Environment == "production" {
		logger.Error("refusing to seed a production database")
		os.Exit(1)
	}

	database, err := db.New(db.Config{DSN: cfg.Database.DSN(), MaxConns: 5}, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.RunMigrations(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := seed(ctx, database, logger); err != nil {
		logger.Error("seeding failed", "error", err)
		os.Exit(1)
	}

	logger.Info("seed complete", "email", demoEmail, "password", demoPassword)
}

func seed(ctx context.Context, database *db.DB, logger *slog.Logger) error {
	gofakeit.Seed(42)

	users := authrepo.NewPostgresAuthRepository(database.Pool)
	projects := projectrepo.NewPostgresProjectRepository(database.Pool)
	accounts := account.NewRepository(database.Pool)
	tags := tag.NewRepository(database.Pool)
	transactions := transactionrepo.NewPostgresTransactionRepository(database.Pool)

	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash demo password: %w", err)
	}

	user, err := users.CreateUser(ctx, demoEmail, "demo", string(hash), "Demo Household")
	if err != nil {
		return fmt.Errorf("failed to create demo user (already seeded?): %w", err)
	}
	logger.Info("created demo user", "user_id", user.ID)

	household := &projectrepo.Project{
		Name:         "Household",
		CurrencyCode: "EUR",
		CreatedBy:    user.ID,
	}
	if err := projects.Create(ctx, household); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	if err := projects.AddMember(ctx, household.ID, user.ID, projectrepo.RoleOwner); err != nil {
		return fmt.Errorf("failed to add owner: %w", err)
	}

	vacation := &projectrepo.Project{
		Name:         "Vacation Fund",
		CurrencyCode: "EUR",
		ParentID:     &household.ID,
		CreatedBy:    user.ID,
	}
	if err := projects.Create(ctx, vacation); err != nil {
		return fmt.Errorf("failed to create child project: %w", err)
	}

	checking := &account.Account{
		ProjectID:    household.ID,
		Name:         "Joint Checking",
		AccountType:  account.TypeChecking,
		CurrencyCode: "EUR",
	}
	savings := &account.Account{
		ProjectID:    household.ID,
		Name:         "Savings",
		AccountType:  account.TypeSavings,
		CurrencyCode: "EUR",
	}
	for _, a := range []*account.Account{checking, savings} {
		if err := accounts.Create(ctx, a); err != nil {
			return fmt.Errorf("failed to create account %q: %w", a.Name, err)
		}
	}

	tagNames := []string{"groceries", "transport", "subscriptions", "eating out", "utilities", "fun"}
	tagIDs := make([]uuid.UUID, 0, len(tagNames))
	for _, name := range tagNames {
		t := &tag.Tag{ProjectID: household.ID, Name: name}
		if err := tags.Create(ctx, t); err != nil {
			return fmt.Errorf("failed to create tag %q: %w", name, err)
		}
		tagIDs = append(tagIDs, t.ID)
	}

	// Three months of spending plus a monthly salary credit
	now := time.Now()
	created := 0
	for day := 0; day < 90; day++ {
		date := now.AddDate(0, 0, -day)

		if date.Day() == 25 {
			salary := &transactionrepo.Transaction{
				ProjectID:   household.ID,
				AccountID:   checking.ID,
				AmountMinor: 285000,
				OccurredOn:  date,
				Description: "SALARY ACME CORP",
			}
			if err := transactions.Create(ctx, salary); err != nil {
				return fmt.Errorf("failed to create salary transaction: %w", err)
			}
			created++
		}

		for i := 0; i < gofakeit.Number(0, 3); i++ {
			txn := &transactionrepo.Transaction{
				ProjectID:   household.ID,
				AccountID:   checking.ID,
				AmountMinor: -int64(gofakeit.Number(250, 12000)),
				OccurredOn:  date,
				Description: merchants[gofakeit.Number(0, len(merchants)-1)],
				TagIDs:      []uuid.UUID{tagIDs[gofakeit.Number(0, len(tagIDs)-1)]},
			}
			if err := transactions.Create(ctx, txn); err != nil {
				return fmt.Errorf("failed to create transaction: %w", err)
			}
			created++
		}
	}

	if err := seedPendingImport(ctx, database, household.ID, checking.ID); err != nil {
		return err
	}

	logger.Info("seeded demo data",
		"projects", 2, "accounts", 2, "tags", len(tagNames), "transactions", created)
	return nil
}

// seedPendingImport leaves one batch sitting in review so the import screen
// has something to show on first login.
func seedPendingImport(ctx context.Context, database *db.DB, projectID, accountID uuid.UUID) error {
	imports := importrepo.NewPostgresImportRepository(database.Pool)

	batch := &importrepo.Batch{
		ProjectID:        projectID,
		AccountID:        accountID,
		OriginalFilename: "march-statement.csv",
	}
	if err := imports.CreateBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to create demo batch: %w", err)
	}
	key := fmt.Sprintf("imports/%s/%s.csv", projectID, batch.ID)
	if err := imports.SetBatchBlobKey(ctx, batch.ID, key); err != nil {
		return fmt.Errorf("failed to set demo batch blob key: %w", err)
	}

	raw := [][]string{
		{"2024-03-01", "-42.17", "ALBERT HEIJN 1376"},
		{"2024-03-02", "-9.99", "SPOTIFY AB"},
		{"2024-03-03", "-15.40", "THUISBEZORGD.NL"},
	}
	rows := make([]*importrepo.StagingRow, len(raw))
	for i, fields := range raw {
		minor, err := money.ParseMinor(fields[1])
		if err != nil {
			return fmt.Errorf("failed to parse demo amount: %w", err)
		}
		rows[i] = &importrepo.StagingRow{
			RowIndex:    i,
			RawFields:   fields,
			Fingerprint: rowhash.Fingerprint(fields),
			AmountMinor: &minor,
			DateText:    fields[0],
			Description: fields[2],
		}
	}

	dateHeader, amountHeader, descriptionHeader := "Date", "Amount", "Description"
	if err := imports.StageRows(ctx, batch.ID, &dateHeader, &amountHeader, &descriptionHeader, rows); err != nil {
		return fmt.Errorf("failed to stage demo rows: %w", err)
	}
	return nil
}
