// Package jobs drains the persistent job queue: named side effects the
// pipeline enqueues fire-and-forget, delivered at-least-once with
// exponential backoff and a dead-letter state.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/destekhq/runtime/internal/retry"
	"github.com/destekhq/runtime/internal/store"
)

type Handler func(ctx context.Context, job store.Job) error

type Queue interface {
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]store.Job, error)
	MarkJobSucceeded(ctx context.Context, id string) error
	MarkJobFailed(ctx context.Context, id string, jobErr error, nextRun time.Time) error
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize < 1 {
		c.BatchSize = 20
	}
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	return c
}

type Worker struct {
	cfg      Config
	queue    Queue
	handlers map[string]Handler
	backoff  func(int) time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewWorker(cfg Config, queue Queue, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg:      cfg.withDefaults(),
		queue:    queue,
		handlers: map[string]Handler{},
		backoff:  retry.ExponentialBackoff(30*time.Second, 10*time.Minute),
		logger:   logger.With("component", "job-worker"),
		now:      time.Now,
	}
}

// Register binds a handler to a job name. Jobs without a handler fail and
// eventually dead-letter, which surfaces wiring mistakes in the counters.
func (w *Worker) Register(name string, handler Handler) {
	w.handlers[name] = handler
}

// Run polls for due jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.logger.Info("job worker started", "interval", w.cfg.PollInterval.String())
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("job worker stopped")
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("job sweep failed", "error", err)
			}
		}
	}
}

// RunOnce claims one batch of due jobs and processes it, returning how
// many jobs were handled.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	claimed, err := w.queue.ClaimDueJobs(ctx, w.now().UTC(), w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due jobs: %w", err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, job := range claimed {
		wg.Add(1)
		sem <- struct{}{}
		go func(job store.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			w.process(ctx, job)
		}(job)
	}
	wg.Wait()
	return len(claimed), nil
}

func (w *Worker) process(ctx context.Context, job store.Job) {
	handler, ok := w.handlers[job.Name]
	if !ok {
		w.fail(ctx, job, fmt.Errorf("no handler registered for %q", job.Name))
		return
	}

	if err := handler(ctx, job); err != nil {
		w.fail(ctx, job, err)
		return
	}
	if err := w.queue.MarkJobSucceeded(ctx, job.ID); err != nil {
		w.logger.Error("job succeeded but could not be marked", "job", job.ID, "error", err)
	}
}

func (w *Worker) fail(ctx context.Context, job store.Job, jobErr error) {
	nextRun := w.now().UTC().Add(w.backoff(job.Attempts - 1))
	w.logger.Warn("job attempt failed",
		"job", job.ID,
		"name", job.Name,
		"attempt", job.Attempts,
		"error", jobErr)
	if err := w.queue.MarkJobFailed(ctx, job.ID, jobErr, nextRun); err != nil {
		w.logger.Error("job failure could not be recorded", "job", job.ID, "error", err)
	}
}
