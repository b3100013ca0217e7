package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"

	"github.com/hearthbooks/hearthbooks/internal/domain/account"
	accounthandler "github.com/hearthbooks/hearthbooks/internal/domain/account/handler"
	authhandler "github.com/hearthbooks/hearthbooks/internal/domain/auth/handler"
	authrepo "github.com/hearthbooks/hearthbooks/internal/domain/auth/repository"
	authservice "github.com/hearthbooks/hearthbooks/internal/domain/auth/service"
	"github.com/hearthbooks/hearthbooks/internal/domain/balance"
	balancehandler "github.com/hearthbooks/hearthbooks/internal/domain/balance/handler"
	importhandler "github.com/hearthbooks/hearthbooks/internal/domain/import/handler"
	importrepo "github.com/hearthbooks/hearthbooks/internal/domain/import/repository"
	importservice "github.com/hearthbooks/hearthbooks/internal/domain/import/service"
	projecthandler "github.com/hearthbooks/hearthbooks/internal/domain/project/handler"
	projectrepo "github.com/hearthbooks/hearthbooks/internal/domain/project/repository"
	projectservice "github.com/hearthbooks/hearthbooks/internal/domain/project/service"
	"github.com/hearthbooks/hearthbooks/internal/domain/suggest"
	"github.com/hearthbooks/hearthbooks/internal/domain/tag"
	taghandler "github.com/hearthbooks/hearthbooks/internal/domain/tag/handler"
	transactionhandler "github.com/hearthbooks/hearthbooks/internal/domain/transaction/handler"
	transactionrepo "github.com/hearthbooks/hearthbooks/internal/domain/transaction/repository"
	transactionservice "github.com/hearthbooks/hearthbooks/internal/domain/transaction/service"
	"github.com/hearthbooks/hearthbooks/pkg/blob"
	"github.com/hearthbooks/hearthbooks/pkg/config"
	"github.com/hearthbooks/hearthbooks/pkg/cron"
	"github.com/hearthbooks/hearthbooks/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Shared infrastructure
	SessionStore sessions.Store
	BlobStore    blob.Store
	Scheduler    *cron.Scheduler
	OAuthEnabled bool

	// Repositories
	AuthRepo        authrepo.AuthRepository
	ProjectRepo     projectrepo.ProjectRepository
	AccountRepo     *account.Repository
	TagRepo         *tag.Repository
	TransactionRepo transactionrepo.TransactionRepository
	ImportRepo      importrepo.ImportRepository
	BalanceRepo     *balance.Repository

	// Services
	TokenManager       authservice.TokenManager
	AuthService        *authservice.AuthService
	ProjectService     *projectservice.ProjectService
	AccountService     *account.Service
	TagService         *tag.Service
	TransactionService *transactionservice.TransactionService
	ImportService      *importservice.ImportService
	BalanceService     *balance.Service

	// Handlers
	AuthHandler        *authhandler.AuthHandler
	ProjectHandler     *projecthandler.ProjectHandler
	AccountHandler     *accounthandler.AccountHandler
	TagHandler         *taghandler.TagHandler
	TransactionHandler *transactionhandler.TransactionHandler
	ImportHandler      *importhandler.ImportHandler
	BalanceHandler     *balancehandler.BalanceHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initInfrastructure(ctx); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	deps.initRepositories()

	if err := deps.initServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initInfrastructure sets up blob storage, cookie sessions, and OAuth.
func (d *Dependencies) initInfrastructure(ctx context.Context) error {
	store, err := blob.New(ctx, &blob.Config{
		Backend:   blob.Backend(d.Config.Blob.Backend),
		LocalPath: d.Config.Blob.LocalPath,
		GCSBucket: d.Config.Blob.GCSBucket,
	})
	if err != nil {
		return fmt.Errorf("failed to init blob store: %w", err)
	}
	d.BlobStore = store

	cookieStore := sessions.NewCookieStore([]byte(d.Config.Auth.SessionKey))
	cookieStore.Options.HttpOnly = true
	cookieStore.Options.Secure = d.Config.Server.Environment == "production"
	cookieStore.Options.MaxAge = d.Config.Auth.RefreshTokenTTLHrs * 3600
	d.SessionStore = cookieStore
	gothic.Store = cookieStore

	if d.Config.Auth.GoogleClientID != "" && d.Config.Auth.GoogleClientSecret != "" {
		callback := d.Config.Server.BaseURL + "/auth/oauth/google/callback"
		goth.UseProviders(google.New(d.Config.Auth.GoogleClientID, d.Config.Auth.GoogleClientSecret, callback, "email", "profile"))
		d.OAuthEnabled = true
		d.Logger.Info("google oauth enabled")
	}

	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() {
	d.AuthRepo = authrepo.NewPostgresAuthRepository(d.DB.Pool)
	d.ProjectRepo = projectrepo.NewPostgresProjectRepository(d.DB.Pool)
	d.AccountRepo = account.NewRepository(d.DB.Pool)
	d.TagRepo = tag.NewRepository(d.DB.Pool)
	d.TransactionRepo = transactionrepo.NewPostgresTransactionRepository(d.DB.Pool)
	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool)
	d.BalanceRepo = balance.NewRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices(ctx context.Context) error {
	accessTTL := time.Duration(d.Config.Auth.AccessTokenTTLMin) * time.Minute
	refreshTTL := time.Duration(d.Config.Auth.RefreshTokenTTLHrs) * time.Hour

	d.TokenManager = authservice.NewJWTTokenManager(d.Config.Auth.JWTSecret, accessTTL, refreshTTL)
	emailSender := authservice.NewResendEmailSender(
		d.Config.Email.ResendAPIKey,
		d.Config.Email.FromAddress,
		d.Config.Server.BaseURL,
		d.Logger,
	)
	d.AuthService = authservice.NewAuthService(d.AuthRepo, d.TokenManager, emailSender, d.Logger, refreshTTL)

	d.ProjectService = projectservice.NewProjectService(d.ProjectRepo, d.Logger)
	d.AccountService = account.NewService(d.AccountRepo, d.Logger)
	d.TagService = tag.NewService(d.TagRepo, d.Logger)

	searchIndex, err := transactionservice.NewSearchIndex()
	if err != nil {
		return fmt.Errorf("failed to init search index: %w", err)
	}
	d.TransactionService = transactionservice.NewTransactionService(d.TransactionRepo, searchIndex, d.Logger)

	// Import service, with the tag suggester picked by configuration: Gemini
	// when a key is set, keyword matching otherwise.
	d.ImportService = importservice.NewImportService(
		d.ImportRepo,
		d.BlobStore,
		d.AccountService,
		int64(d.Config.Import.MaxUploadBytes),
		d.Logger,
	)

	var suggester suggest.Suggester
	if d.Config.Gemini.APIKey != "" {
		gemini, err := suggest.NewGeminiSuggester(ctx, d.Config.Gemini.APIKey, d.Config.Gemini.Model, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to init gemini suggester: %w", err)
		}
		suggester = gemini
		d.Logger.Info("gemini tag suggester enabled", "model", d.Config.Gemini.Model)
	} else {
		suggester = suggest.NewKeywordSuggester(d.Logger)
		d.Logger.Info("keyword tag suggester enabled")
	}
	d.ImportService.WithSuggester(suggester, d.TagService)

	d.BalanceService = balance.NewService(d.BalanceRepo)

	d.Scheduler = cron.NewScheduler(
		d.ImportService,
		time.Duration(d.Config.Import.StaleBatchTTL)*time.Hour,
		d.Logger,
	)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.AuthHandler = authhandler.NewAuthHandler(d.AuthService, d.SessionStore, d.OAuthEnabled, d.Logger)
	d.ProjectHandler = projecthandler.NewProjectHandler(d.ProjectService, d.Logger)
	d.AccountHandler = accounthandler.NewAccountHandler(d.AccountService, d.Logger)
	d.TagHandler = taghandler.NewTagHandler(d.TagService, d.Logger)
	d.TransactionHandler = transactionhandler.NewTransactionHandler(d.TransactionService, d.ProjectService, d.TagService, d.Logger)
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Logger)
	d.BalanceHandler = balancehandler.NewBalanceHandler(d.BalanceService, d.ProjectService, d.Logger)

	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
