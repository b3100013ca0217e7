// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// BatchSweeper abandons import batches left unfinished for longer than ttl.
type BatchSweeper interface {
	AbandonStaleBatches(ctx context.Context, ttl time.Duration) (int, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron          *cron.Cron
	sweeper       BatchSweeper
	staleBatchTTL time.Duration
	logger        *slog.Logger
}

// NewScheduler creates a new job scheduler.
func NewScheduler(sweeper BatchSweeper, staleBatchTTL time.Duration, logger *slog.Logger) *Scheduler {
	// Standard 5-field format, no seconds
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:          c,
		sweeper:       sweeper,
		staleBatchTTL: staleBatchTTL,
		logger:        logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	// Stale import batch sweep: runs nightly at 3:00 AM
	_, err := s.cron.AddFunc("0 3 * * *", s.sweepStaleBatches)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow manually triggers the stale batch sweep (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.sweepStaleBatches()
}

func (s *Scheduler) sweepStaleBatches() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	s.logger.Info("starting stale import batch sweep", slog.Duration("ttl", s.staleBatchTTL))

	abandoned, err := s.sweeper.AbandonStaleBatches(ctx, s.staleBatchTTL)
	if err != nil {
		s.logger.Error("stale batch sweep failed", slog.Any("error", err))
		return
	}

	s.logger.Info("stale import batch sweep completed", slog.Int("batches_abandoned", abandoned))
}
