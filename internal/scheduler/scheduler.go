// Package scheduler wires up the cron job that crawls the latest posting day
// and then notifies subscribers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/perm-crawler/internal/ingest"
	"github.com/JakeFAU/perm-crawler/internal/report"
)

// Crawler runs the daily crawl.
type Crawler interface {
	RunLatest(ctx context.Context) (ingest.DateSummary, error)
}

// Notifier sends the daily observation.
type Notifier interface {
	Notify(ctx context.Context) (report.Observation, error)
}

// Config controls when the job fires.
type Config struct {
	// Spec is a five-field cron expression evaluated in Location.
	Spec     string
	Location *time.Location
	// Notify sends the observation after a successful crawl.
	Notify bool
}

// Scheduler wraps robfig/cron and manages the crawl loop.
type Scheduler struct {
	cron     *cron.Cron
	cfg      Config
	crawler  Crawler
	notifier Notifier
	logger   *zap.Logger
}

// New creates a Scheduler. notifier may be nil when notifications are disabled.
func New(cfg Config, crawler Crawler, notifier Notifier, logger *zap.Logger) (*Scheduler, error) {
	if crawler == nil {
		return nil, errors.New("crawler is required")
	}
	if cfg.Spec == "" {
		return nil, errors.New("cron spec is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(cfg.Location)),
		cfg:      cfg,
		crawler:  crawler,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// Start registers the job and starts the scheduler. Runs are skipped while a
// previous run is still in progress.
func (s *Scheduler) Start(ctx context.Context) error {
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		s.RunOnce(ctx)
	}))
	if _, err := s.cron.AddJob(s.cfg.Spec, job); err != nil {
		return fmt.Errorf("cron.AddJob: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.cfg.Spec), zap.Stringer("location", s.cfg.Location))
	return nil
}

// Stop halts the scheduler and returns a context that is done once any running job finishes.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	s.logger.Info("scheduler stopped")
	return ctx
}

// RunOnce performs one crawl and, if configured, one notification.
func (s *Scheduler) RunOnce(ctx context.Context) {
	summary, err := s.crawler.RunLatest(ctx)
	if err != nil {
		s.logger.Error("scheduled crawl failed",
			zap.String("date", summary.Date.Format("2006-01-02")),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("scheduled crawl finished",
		zap.String("date", summary.Date.Format("2006-01-02")),
		zap.Int("cases_created", summary.CasesCreated),
	)
	if !s.cfg.Notify || s.notifier == nil {
		return
	}
	obs, err := s.notifier.Notify(ctx)
	if err != nil {
		s.logger.Error("scheduled notification failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled notification finished", zap.Int("records", obs.Records))
}
