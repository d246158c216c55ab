// Package scheduler owns the relay job state machines: it spawns one runner
// per running job, hosts the deletion sweeper, and is the only component that
// transitions job status.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tmt-films/AutoPostingv2/internal/logger"
	"github.com/tmt-films/AutoPostingv2/internal/relay/gateway"
	"github.com/tmt-films/AutoPostingv2/internal/relay/models"
	"github.com/tmt-films/AutoPostingv2/internal/relay/ratelimit"
	"github.com/tmt-films/AutoPostingv2/internal/relay/repository"
)

// DefaultShutdownGrace bounds how long Shutdown waits for in-flight cycles.
const DefaultShutdownGrace = 30 * time.Second

type runnerHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler is the lifecycle manager: the single source of truth for which
// jobs are currently executing in this process. One runner handle per job id
// guarantees a job is never double-spawned.
type Scheduler struct {
	mu      sync.Mutex
	runners map[string]*runnerHandle
	started bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	sweepDone  chan struct{}

	jobs      repository.JobRepository
	deletions repository.DeletionRepository
	gw        gateway.Gateway
	limiter   *ratelimit.Limiter
}

// New creates a scheduler. Call Start to rehydrate persisted jobs.
func New(jobs repository.JobRepository, deletions repository.DeletionRepository, gw gateway.Gateway, limiter *ratelimit.Limiter) *Scheduler {
	return &Scheduler{
		runners:   make(map[string]*runnerHandle),
		jobs:      jobs,
		deletions: deletions,
		gw:        gw,
		limiter:   limiter,
	}
}

// Start loads every job persisted as running and spawns its runner, then
// starts the deletion sweeper. A job that fails sanity checks is logged and
// skipped; only store unavailability is fatal.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	jobs, err := s.jobs.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("failed to load running jobs: %w", err)
	}

	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())
	s.started = true

	resumed := 0
	for _, job := range jobs {
		if err := sanityCheck(job); err != nil {
			logger.L().Errorf("Job %s: skipping corrupt record on resume: %v", job.ID, err)
			continue
		}
		s.spawnLocked(job.ID)
		resumed++
		logger.L().Infof("Resumed job %q (%s) from cursor %d", job.Name, job.ID, job.Cursor)
	}

	s.sweepDone = make(chan struct{})
	sw := newSweeper(s.deletions, s.gw, s.limiter)
	go func() {
		defer close(s.sweepDone)
		sw.run(s.baseCtx)
	}()

	logger.L().Infof("Scheduler started, %d job(s) resumed", resumed)
	return nil
}

// CreateJob validates and persists a new job with status stopped.
// Returns the new job id.
func (s *Scheduler) CreateJob(ctx context.Context, cfg JobConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	job := cfg.toJob(uuid.New().String())
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to persist job: %w", err)
	}

	logger.L().Infof("Created job %q (%s): %d -> %d, batch %d every %s",
		job.Name, job.ID, job.SourceChannelID, job.TargetChannelID, job.BatchSize, job.PollInterval)
	return job.ID, nil
}

// StartJob transitions a job to running and spawns its runner.
// Starting an already-running job is a no-op.
func (s *Scheduler) StartJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return fmt.Errorf("scheduler is not started")
	}
	if _, active := s.runners[id]; active {
		return nil // idempotent
	}

	job, err := s.getJob(ctx, id)
	if err != nil {
		return err
	}
	if err := s.jobs.UpdateStatus(ctx, id, models.JobStatusRunning, ""); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	s.spawnLocked(job.ID)
	logger.L().Infof("Started job %q (%s)", job.Name, id)
	return nil
}

// StopJob cancels the job's runner, waits for its in-flight cycle, and
// transitions the job to stopped. Stopping a stopped job is a no-op.
func (s *Scheduler) StopJob(ctx context.Context, id string) error {
	return s.halt(ctx, id, models.JobStatusStopped)
}

// PauseJob is StopJob with a paused status, so the operator can distinguish
// "intentionally done" from "temporarily held".
func (s *Scheduler) PauseJob(ctx context.Context, id string) error {
	return s.halt(ctx, id, models.JobStatusPaused)
}

func (s *Scheduler) halt(ctx context.Context, id string, status models.JobStatus) error {
	s.mu.Lock()
	handle := s.runners[id]
	delete(s.runners, id)
	s.mu.Unlock()

	if handle != nil {
		handle.cancel()
		<-handle.done // graceful: current cycle finishes its commit
	}

	job, err := s.getJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == status {
		return nil // idempotent
	}
	if err := s.jobs.UpdateStatus(ctx, id, status, job.LastError); err != nil {
		return fmt.Errorf("failed to mark job %s: %w", status, err)
	}

	logger.L().Infof("Job %q (%s) is now %s", job.Name, id, status)
	return nil
}

// EditJob merges the patch into a stopped or paused job and re-validates the
// result. Running jobs are rejected with ErrJobBusy rather than guessing at
// hot-reload semantics.
func (s *Scheduler) EditJob(ctx context.Context, id string, patch JobPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busyLocked(id) {
		return ErrJobBusy
	}
	job, err := s.getJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusRunning {
		return ErrJobBusy
	}

	patch.apply(job)
	if err := configOf(job).Validate(); err != nil {
		return err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to persist edit: %w", err)
	}

	logger.L().Infof("Edited job %q (%s)", job.Name, id)
	return nil
}

// ResetJob rewinds a stopped or paused job to the start of its range, zeroes
// its counters, and discards its pending deletions.
func (s *Scheduler) ResetJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busyLocked(id) {
		return ErrJobBusy
	}
	job, err := s.getJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusRunning {
		return ErrJobBusy
	}

	if err := s.jobs.ResetProgress(ctx, id, job.InitialCursor()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to reset job: %w", err)
	}
	if _, err := s.deletions.DeleteByJob(ctx, id); err != nil {
		logger.L().Warnf("Job %s: failed to drop pending deletions on reset: %v", id, err)
	}

	logger.L().Infof("Reset job %q (%s) to cursor %d", job.Name, id, job.InitialCursor())
	return nil
}

// DeleteJob stops the runner if active, then removes the job and every
// pending deletion it owns.
func (s *Scheduler) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	handle := s.runners[id]
	delete(s.runners, id)
	s.mu.Unlock()

	if handle != nil {
		handle.cancel()
		<-handle.done
	}

	if n, err := s.deletions.DeleteByJob(ctx, id); err != nil {
		logger.L().Warnf("Job %s: failed to drop pending deletions: %v", id, err)
	} else if n > 0 {
		logger.L().Infof("Job %s: cancelled %d pending deletion(s)", id, n)
	}

	if err := s.jobs.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}

	logger.L().Infof("Deleted job %s", id)
	return nil
}

// ListJobs returns all jobs, newest first.
func (s *Scheduler) ListJobs(ctx context.Context) ([]*models.Job, error) {
	return s.jobs.List(ctx)
}

// JobStatus returns the current record of one job.
func (s *Scheduler) JobStatus(ctx context.Context, id string) (*models.Job, error) {
	return s.getJob(ctx, id)
}

// Shutdown signals every runner and the sweeper, then waits up to grace for
// in-flight cycles to finish. Jobs keep their running status in the store so
// the next process resumes them.
func (s *Scheduler) Shutdown(grace time.Duration) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.baseCancel()

	waiting := make([]chan struct{}, 0, len(s.runners)+1)
	for _, h := range s.runners {
		h.cancel()
		waiting = append(waiting, h.done)
	}
	s.runners = make(map[string]*runnerHandle)
	if s.sweepDone != nil {
		waiting = append(waiting, s.sweepDone)
	}
	s.mu.Unlock()

	if grace <= 0 {
		grace = DefaultShutdownGrace
	}
	deadline := time.NewTimer(grace)
	defer deadline.Stop()

	for _, done := range waiting {
		select {
		case <-done:
		case <-deadline.C:
			// Anomaly, not a hang: the process proceeds with shutdown.
			logger.L().Error("Shutdown grace period expired with runners still in flight")
			return
		}
	}
	logger.L().Info("Scheduler shut down cleanly")
}

// spawnLocked starts a runner goroutine for the job id. Caller holds s.mu.
func (s *Scheduler) spawnLocked(id string) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	handle := &runnerHandle{cancel: cancel, done: make(chan struct{})}
	s.runners[id] = handle

	r := newRunner(id, s.jobs, s.deletions, s.gw, s.limiter)
	go func() {
		defer close(handle.done)
		r.run(ctx)

		// Self-terminated runners (permanent error, stale cursor, deleted
		// job) must release their handle so a later StartJob can respawn.
		s.mu.Lock()
		if s.runners[id] == handle {
			delete(s.runners, id)
		}
		s.mu.Unlock()
	}()
}

func (s *Scheduler) busyLocked(id string) bool {
	_, active := s.runners[id]
	return active
}

func (s *Scheduler) getJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return job, nil
}

// sanityCheck guards rehydration against records an older or buggy writer
// left behind.
func sanityCheck(job *models.Job) error {
	if job.ID == "" {
		return fmt.Errorf("empty job id")
	}
	if job.SourceChannelID == 0 || job.TargetChannelID == 0 {
		return fmt.Errorf("missing channel ids")
	}
	if job.BatchSize < 1 {
		return fmt.Errorf("non-positive batch size %d", job.BatchSize)
	}
	if job.PollInterval <= 0 {
		return fmt.Errorf("non-positive poll interval %s", job.PollInterval)
	}
	if !job.FilterMode.Valid() {
		return fmt.Errorf("unknown filter mode %q", job.FilterMode)
	}
	return nil
}
