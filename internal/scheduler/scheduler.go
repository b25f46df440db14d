package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type reminderSender interface {
	SendPendingDigests(ctx context.Context) (int, error)
}

type exportCleaner interface {
	Cleanup(ttl time.Duration) ([]string, error)
}

// Config holds the cron specs in standard five field form.
type Config struct {
	ReminderSpec string
	CleanupSpec  string
	ExportTTL    time.Duration
	JobTimeout   time.Duration
}

// Scheduler runs the periodic reminder and export cleanup jobs.
type Scheduler struct {
	cron      *cron.Cron
	reminders reminderSender
	exports   exportCleaner
	cfg       Config
	logger    *zap.Logger
}

// New registers the jobs. A job whose dependency is nil is skipped.
func New(reminders reminderSender, exports exportCleaner, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		reminders: reminders,
		exports:   exports,
		cfg:       cfg,
		logger:    logger,
	}
	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	if s.reminders != nil && s.cfg.ReminderSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.ReminderSpec, s.SendReminders); err != nil {
			return fmt.Errorf("register reminder job: %w", err)
		}
	}
	if s.exports != nil && s.cfg.CleanupSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.CleanupSpec, s.CleanupExports); err != nil {
			return fmt.Errorf("register cleanup job: %w", err)
		}
	}
	s.logger.Info("cron jobs registered", zap.Int("jobs", len(s.cron.Entries())))
	return nil
}

// SendReminders queues the pending request digests.
func (s *Scheduler) SendReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	sent, err := s.reminders.SendPendingDigests(ctx)
	if err != nil {
		s.logger.Error("reminder job failed", zap.Error(err))
		return
	}
	s.logger.Info("reminder job finished", zap.Int("emails", sent))
}

// CleanupExports removes export files older than the configured TTL.
func (s *Scheduler) CleanupExports() {
	removed, err := s.exports.Cleanup(s.cfg.ExportTTL)
	if err != nil {
		s.logger.Error("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("files", len(removed)))
	}
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron scheduler started")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("cron scheduler stopped")
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
