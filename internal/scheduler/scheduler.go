// Package scheduler triggers periodic polls on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/observability"
)

// Job is one scheduled poll.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context) error

// Run calls f.
func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

// Config controls the scheduler.
type Config struct {
	// Schedule is a standard five-field cron expression or a descriptor
	// such as "@daily".
	Schedule string
	// Timeout bounds a single run. Zero means no bound.
	Timeout time.Duration
}

// Scheduler runs a Job on a cron schedule, skipping ticks while the
// previous run is still in progress.
type Scheduler struct {
	cron    *cron.Cron
	job     Job
	cfg     Config
	logger  zerolog.Logger
	running atomic.Bool

	mu      sync.Mutex
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// New validates cfg.Schedule and creates a stopped scheduler.
func New(cfg Config, job Job, logger zerolog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("parse poll schedule %q: %w", cfg.Schedule, err)
	}

	logger = observability.WithComponent(logger, "scheduler")
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger{logger: logger}),
		),
		job:    job,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Start registers the job and starts the cron loop. Runs use a context
// derived from ctx so that Stop or cancelling ctx aborts an in-flight run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)
	id, err := s.cron.AddFunc(s.cfg.Schedule, s.tick)
	if err != nil {
		s.cancel()
		return fmt.Errorf("add poll job: %w", err)
	}
	s.entryID = id
	s.cron.Start()

	s.logger.Info().
		Str("schedule", s.cfg.Schedule).
		Time("next_run", s.cron.Entry(id).Next).
		Msg("poll scheduler started")
	return nil
}

// Stop stops the cron loop, cancels an in-flight run and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	done := s.cron.Stop()
	if cancel != nil {
		cancel()
	}

	select {
	case <-done.Done():
		s.logger.Info().Msg("poll scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for scheduled poll: %w", ctx.Err())
	}
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	err := s.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPollInProgress):
		s.logger.Warn().Msg("previous poll still running, skipping tick")
	default:
		s.logger.Error().Err(err).Msg("scheduled poll failed")
	}
}

// RunOnce runs the job now unless a run is already in progress, in which
// case it returns domain.ErrPollInProgress.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return domain.ErrPollInProgress
	}
	defer s.running.Store(false)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	s.logger.Info().Msg("scheduled poll started")
	if err := s.job.Run(ctx); err != nil {
		return err
	}
	s.logger.Info().Dur("elapsed", time.Since(start)).Msg("scheduled poll finished")
	return nil
}

// cronLogger routes robfig/cron logs to zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
