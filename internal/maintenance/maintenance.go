// Package maintenance runs the periodic housekeeping sweeps: idle session
// eviction and retention pruning for finished jobs and analytics events.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type Sessions interface {
	PruneIdle(maxIdle time.Duration) int
}

type Store interface {
	PruneFinishedJobs(ctx context.Context, before time.Time) (int64, error)
	PruneAnalyticsEvents(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	SessionIdle        time.Duration
	JobRetention       time.Duration
	AnalyticsRetention time.Duration
	// Cron specs; the defaults sweep sessions every ten minutes and
	// retention nightly.
	SessionSpec   string
	RetentionSpec string
}

func (c Config) withDefaults() Config {
	if c.SessionIdle <= 0 {
		c.SessionIdle = 2 * time.Hour
	}
	if c.JobRetention <= 0 {
		c.JobRetention = 7 * 24 * time.Hour
	}
	if c.AnalyticsRetention <= 0 {
		c.AnalyticsRetention = 90 * 24 * time.Hour
	}
	if c.SessionSpec == "" {
		c.SessionSpec = "*/10 * * * *"
	}
	if c.RetentionSpec == "" {
		c.RetentionSpec = "13 3 * * *"
	}
	return c
}

type Service struct {
	cfg      Config
	sessions Sessions
	store    Store
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config, sessions Sessions, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		sessions: sessions,
		store:    store,
		logger:   logger.With("component", "maintenance"),
		now:      time.Now,
	}
}

// Start schedules the sweeps and blocks until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(s.cfg.SessionSpec, func() { s.SweepSessions() }); err != nil {
		return err
	}
	if _, err := scheduler.AddFunc(s.cfg.RetentionSpec, func() { s.SweepRetention(ctx) }); err != nil {
		return err
	}
	scheduler.Start()
	s.logger.Info("maintenance started",
		"session_spec", s.cfg.SessionSpec,
		"retention_spec", s.cfg.RetentionSpec)

	<-ctx.Done()
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	s.logger.Info("maintenance stopped")
	return nil
}

func (s *Service) SweepSessions() {
	if s.sessions == nil {
		return
	}
	if pruned := s.sessions.PruneIdle(s.cfg.SessionIdle); pruned > 0 {
		s.logger.Info("idle sessions pruned", "count", pruned)
	}
}

func (s *Service) SweepRetention(ctx context.Context) {
	if s.store == nil {
		return
	}
	now := s.now().UTC()

	jobs, err := s.store.PruneFinishedJobs(ctx, now.Add(-s.cfg.JobRetention))
	if err != nil {
		s.logger.Error("job retention sweep failed", "error", err)
	} else if jobs > 0 {
		s.logger.Info("finished jobs pruned", "count", jobs)
	}

	events, err := s.store.PruneAnalyticsEvents(ctx, now.Add(-s.cfg.AnalyticsRetention))
	if err != nil {
		s.logger.Error("analytics retention sweep failed", "error", err)
	} else if events > 0 {
		s.logger.Info("analytics events pruned", "count", events)
	}
}
