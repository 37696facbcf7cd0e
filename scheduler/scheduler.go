// Package scheduler runs the tracker job on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Locker guards a run across processes.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Scheduler invokes a job every interval, and once immediately when
// runOnStart is set. Runs never overlap within the process; a tick that
// arrives while a run is in progress is dropped.
type Scheduler struct {
	interval   time.Duration
	runOnStart bool
	job        Job
	locker     Locker
	logger     *slog.Logger
}

// New returns a scheduler that calls job every interval.
func New(interval time.Duration, runOnStart bool, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		interval:   interval,
		runOnStart: runOnStart,
		job:        job,
		logger:     logger,
	}
}

// WithLocker makes every run acquire l first and skip when it is held.
func (s *Scheduler) WithLocker(l Locker) *Scheduler {
	s.locker = l
	return s
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}

	if s.runOnStart {
		s.runJob(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runJob(ctx)
		}
	}
}

// RunOnce executes a single guarded run. It reports false when the lock
// was held elsewhere.
func (s *Scheduler) RunOnce(ctx context.Context) (bool, error) {
	if s.locker != nil {
		ok, err := s.locker.Acquire(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		defer func() {
			// release even when ctx was cancelled mid-run
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.locker.Release(releaseCtx); err != nil {
				s.logger.Warn("lock release failed", slog.Any("error", err))
			}
		}()
	}
	return true, s.job(ctx)
}

func (s *Scheduler) runJob(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	ran, err := s.RunOnce(ctx)
	switch {
	case err != nil:
		s.logger.Error("scheduled run failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err),
		)
	case !ran:
		s.logger.Info("scheduled run skipped, lock held elsewhere")
	default:
		s.logger.Debug("scheduled run finished", slog.Duration("elapsed", time.Since(start)))
	}
}
