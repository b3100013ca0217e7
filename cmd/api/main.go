package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hearthbooks/hearthbooks/internal/server"
	"github.com/hearthbooks/hearthbooks/pkg/config"
)

func main() {
	// Missing .env is fine; containers set real environment variables
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := InitDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Cleanup()

	if err := deps.Scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	srv := server.New(server.Options{
		Config:       cfg,
		Logger:       logger,
		SessionStore: deps.SessionStore,
		Tokens:       deps.AuthService,
		Roles:        deps.ProjectService,
		Public: []server.RouteRegistrar{
			deps.AuthHandler,
		},
		Authed: []server.RouteRegistrar{
			server.RegistrarFunc(deps.AuthHandler.RegisterProtected),
			deps.ProjectHandler,
		},
		ProjectScoped: []server.RouteRegistrar{
			deps.AccountHandler,
			deps.TagHandler,
			deps.TransactionHandler,
			deps.ImportHandler,
			deps.BalanceHandler,
		},
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.Server.Environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
