package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/SAP-F-2025/quiz-grading-service/internal/services"
)

// Config controls the background sweeps
type Config struct {
	ExpireSpec       string
	GradePendingSpec string
	BatchSize        int
	RunTimeout       time.Duration
}

// Scheduler runs the expiry sweep and the pending grading recovery on cron
// schedules. Runs of the same job never overlap.
type Scheduler struct {
	cron     *cron.Cron
	attempts services.AttemptService
	grading  services.GradingService
	config   Config
	logger   *slog.Logger
	now      func() time.Time
}

func NewScheduler(attempts services.AttemptService, grading services.GradingService, config Config, logger *slog.Logger) *Scheduler {
	if config.RunTimeout <= 0 {
		config.RunTimeout = 5 * time.Minute
	}

	cronLogger := cronLogAdapter{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		attempts: attempts,
		grading:  grading,
		config:   config,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.config.ExpireSpec, s.ExpireOverdueAttempts); err != nil {
		return fmt.Errorf("invalid expire schedule %q: %w", s.config.ExpireSpec, err)
	}
	if _, err := s.cron.AddFunc(s.config.GradePendingSpec, s.GradePendingAttempts); err != nil {
		return fmt.Errorf("invalid grade pending schedule %q: %w", s.config.GradePendingSpec, err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started",
		"expire_spec", s.config.ExpireSpec,
		"grade_pending_spec", s.config.GradePendingSpec)
	return nil
}

// Stop waits for running jobs or until ctx is done
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out with jobs still running")
	}
}

// ExpireOverdueAttempts expires attempts past their deadline and grace
func (s *Scheduler) ExpireOverdueAttempts() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.RunTimeout)
	defer cancel()

	count, err := s.attempts.ExpireOverdue(ctx, s.now(), s.config.BatchSize)
	if err != nil {
		s.logger.Error("Expiry sweep failed", "error", err, "expired", count)
		return
	}
	s.logger.Debug("Expiry sweep finished", "expired", count)
}

// GradePendingAttempts retries grading of submitted attempts without a result
func (s *Scheduler) GradePendingAttempts() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.RunTimeout)
	defer cancel()

	report, err := s.grading.GradePending(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.Error("Pending grading run failed", "error", err)
		return
	}
	if report.Failed > 0 {
		s.logger.Warn("Some attempts are still pending grading",
			"failed", report.Failed,
			"attempt_ids", report.FailedAttemptIDs)
	}
}

// cronLogAdapter routes cron's logging to slog
type cronLogAdapter struct {
	logger *slog.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
