// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
)

// DefaultSchedule runs the bulk recategorization daily at 2:00 AM.
const DefaultSchedule = "0 2 * * *"

// Recategorizer is the bulk recategorization entry point.
type Recategorizer interface {
	RecategorizeTransactions(ctx context.Context, mode categorization.Mode) (categorization.Result, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron          *cron.Cron
	recategorizer Recategorizer
	mode          categorization.Mode
	schedule      string
	timeout       time.Duration
	logger        *slog.Logger
}

// NewScheduler creates a new job scheduler. An empty schedule uses
// DefaultSchedule.
func NewScheduler(r Recategorizer, schedule string, mode categorization.Mode, logger *slog.Logger) *Scheduler {
	// Standard 5-field format, no seconds.
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if mode == "" {
		mode = categorization.ModeUncategorized
	}
	return &Scheduler{
		cron:          c,
		recategorizer: r,
		mode:          mode,
		schedule:      schedule,
		timeout:       30 * time.Minute,
		logger:        logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.recategorize); err != nil {
		return fmt.Errorf("invalid recategorization schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("schedule", s.schedule),
		slog.String("mode", string(s.mode)),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers the recategorization synchronously.
func (s *Scheduler) RunNow() (categorization.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.recategorizer.RecategorizeTransactions(ctx, s.mode)
}

func (s *Scheduler) recategorize() {
	s.logger.Info("starting scheduled recategorization", slog.String("mode", string(s.mode)))

	res, err := s.RunNow()
	if err != nil {
		s.logger.Error("scheduled recategorization failed", slog.Any("error", err))
		return
	}
	s.logger.Info("scheduled recategorization completed",
		slog.Int("assigned", res.Assigned),
		slog.Int("uncategorized", res.Uncategorized),
		slog.Int("conflicts", res.Conflicts),
	)
}
