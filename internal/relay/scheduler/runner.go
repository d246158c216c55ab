package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmt-films/AutoPostingv2/internal/logger"
	"github.com/tmt-films/AutoPostingv2/internal/metrics"
	"github.com/tmt-films/AutoPostingv2/internal/relay/gateway"
	"github.com/tmt-films/AutoPostingv2/internal/relay/models"
	"github.com/tmt-films/AutoPostingv2/internal/relay/ratelimit"
	"github.com/tmt-films/AutoPostingv2/internal/relay/repository"
)

const (
	// maxForwardAttempts bounds transient retries per message.
	maxForwardAttempts = 4
	// retryBaseDelay is the first backoff step; it doubles per attempt.
	retryBaseDelay = 2 * time.Second
	// maxRetryPerMessage caps the total time spent on one wedged message,
	// including provider-requested flood waits.
	maxRetryPerMessage = 5 * time.Minute
	// acquireTimeout bounds a single rate-limiter wait.
	acquireTimeout = 2 * time.Minute

	// commitAttempts/commitBackoff govern store-write retries during a
	// commit. A commit is never silently dropped.
	commitAttempts = 5
	commitBackoff  = time.Second
	// commitTimeout bounds the commit that is allowed to finish after a
	// cancellation signal.
	commitTimeout = 30 * time.Second
)

// errCursorStale means a compare-and-set on the cursor lost against another
// writer; this runner is outdated and must exit without touching the job.
var errCursorStale = errors.New("cursor advanced by another writer")

// errJobStopped means the job record is gone or no longer running.
var errJobStopped = errors.New("job no longer running")

// runner executes one job's poll-forward-schedule cycle until cancelled.
// All durable state lives in the repositories; the runner only keeps the job
// id and reloads the record at each cycle boundary, so operator-visible state
// is never stale by more than one cycle.
type runner struct {
	jobID     string
	jobs      repository.JobRepository
	deletions repository.DeletionRepository
	gw        gateway.Gateway
	limiter   *ratelimit.Limiter

	backoffBase time.Duration
}

func newRunner(jobID string, jobs repository.JobRepository, deletions repository.DeletionRepository, gw gateway.Gateway, limiter *ratelimit.Limiter) *runner {
	return &runner{
		jobID:       jobID,
		jobs:        jobs,
		deletions:   deletions,
		gw:          gw,
		limiter:     limiter,
		backoffBase: retryBaseDelay,
	}
}

// run loops cycles until ctx is cancelled or the job stops itself.
func (r *runner) run(ctx context.Context) {
	logger.L().Infof("Job %s: runner started", r.jobID)

	for {
		interval, err := r.cycle(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.L().Infof("Job %s: runner exiting: %v", r.jobID, err)
			}
			return
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.L().Infof("Job %s: runner stopped", r.jobID)
			return
		case <-timer.C:
		}
	}
}

// cycle runs one batch and returns how long to sleep before the next one.
// A non-nil error terminates the runner.
func (r *runner) cycle(ctx context.Context) (time.Duration, error) {
	job, err := r.jobs.GetByID(ctx, r.jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, errJobStopped
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		// Store hiccup: skip this cycle, keep the runner alive.
		logger.L().Errorf("Job %s: failed to load record: %v", r.jobID, err)
		return MinPollInterval, nil
	}
	if job.Status != models.JobStatusRunning {
		return 0, errJobStopped
	}

	msgs, err := r.gw.FetchSince(ctx, job.SourceChannelID, job.Cursor, job.BatchSize)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		logger.L().Errorf("Job %s: batch fetch failed: %v", r.jobID, err)
		return job.PollInterval, nil
	}

	forwarded := 0
	for _, msg := range msgs {
		// Cooperative cancellation point: between messages, never mid-commit.
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if !job.OpenEnded() && msg.MessageID > job.EndPostID {
			break
		}

		if !job.FilterMode.Matches(msg) {
			// Filtered posts still advance the cursor so they are checked
			// exactly once.
			if err := r.advanceCursor(ctx, job, msg.MessageID); err != nil {
				return 0, err
			}
			continue
		}

		fwdID, err := r.forwardWithRetry(ctx, job, msg)
		switch {
		case err == nil:
			if err := r.commitForward(ctx, job, msg, fwdID); err != nil {
				return 0, err
			}
			forwarded++
			metrics.MessagesForwarded.WithLabelValues(job.ID).Inc()
			if err := r.jobs.IncrementCounters(ctx, job.ID, 1, 0); err != nil {
				logger.L().Warnf("Job %s: failed to bump processed counter: %v", r.jobID, err)
			}

		case gateway.IsPermanent(err):
			// Operator must fix this (permissions, deleted target). Stop the
			// job and surface the error on the record. The cursor stays on
			// the failing message.
			logger.L().Errorf("Job %s: permanent platform error on message %d: %v", r.jobID, msg.MessageID, err)
			r.recordStop(ctx, err)
			return 0, fmt.Errorf("stopped on permanent error: %w", err)

		case ctx.Err() != nil:
			return 0, ctx.Err()

		default:
			// Retries exhausted: skip the message so one bad post cannot
			// stall the job forever.
			logger.L().Warnf("Job %s: skipping message %d after retries: %v", r.jobID, msg.MessageID, err)
			metrics.ForwardErrors.WithLabelValues(job.ID).Inc()
			if err := r.advanceCursor(ctx, job, msg.MessageID); err != nil {
				return 0, err
			}
			if err := r.jobs.IncrementCounters(ctx, job.ID, 0, 1); err != nil {
				logger.L().Warnf("Job %s: failed to bump error counter: %v", r.jobID, err)
			}
		}
	}

	if err := r.jobs.TouchLastRun(ctx, job.ID, time.Now()); err != nil && ctx.Err() == nil {
		logger.L().Warnf("Job %s: failed to record last run: %v", r.jobID, err)
	}
	if forwarded > 0 {
		logger.L().Infof("Job %s: forwarded %d message(s), cursor at %d", r.jobID, forwarded, job.Cursor)
	}

	if job.RangeExhausted() {
		// Bounded range fully processed: stay running but slow down, in case
		// the operator extends the range.
		return 2 * job.PollInterval, nil
	}
	return job.PollInterval, nil
}

// forwardWithRetry forwards one message, retrying transient failures with
// exponential backoff and honoring provider flood-wait hints. It returns a
// permanent error unchanged and the last transient error on exhaustion.
func (r *runner) forwardWithRetry(ctx context.Context, job *models.Job, msg *models.SourceMessage) (int, error) {
	caption := BuildCaption(job, msg)
	deadline := time.Now().Add(maxRetryPerMessage)

	var lastErr error
	for attempt := 0; attempt < maxForwardAttempts; attempt++ {
		acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
		err := r.limiter.Acquire(acquireCtx, job.TargetChannelID)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			lastErr = fmt.Errorf("rate limiter wait: %w", err)
			continue
		}

		fwdID, err := r.gw.Forward(ctx, msg, job.TargetChannelID, caption, job.Buttons)
		if err == nil {
			return fwdID, nil
		}
		if gateway.IsPermanent(err) {
			return 0, err
		}
		lastErr = err

		if attempt == maxForwardAttempts-1 {
			break
		}
		delay := r.backoffBase << attempt
		if ra := gateway.RetryAfter(err); ra > delay {
			delay = ra
		}
		if time.Now().Add(delay).After(deadline) {
			break
		}
		logger.L().Warnf("Job %s: forward attempt %d for message %d failed: %v, retrying in %s",
			r.jobID, attempt+1, msg.MessageID, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
	return 0, lastErr
}

// commitForward persists the outcome of a successful forward: the deletion
// record (when auto-delete is configured) and then the cursor advance. The
// deletion record goes first so a crash in between re-forwards one message
// rather than leaking an undeletable copy.
func (r *runner) commitForward(ctx context.Context, job *models.Job, msg *models.SourceMessage, fwdID int) error {
	if job.AutoDelete() {
		now := time.Now().UTC()
		rec := &models.DeletionRecord{
			JobID:     job.ID,
			ChatID:    job.TargetChannelID,
			MessageID: fwdID,
			DueAt:     now.Add(job.AutoDeleteAfter),
			CreatedAt: now,
		}
		if err := r.withStoreRetry(ctx, func(c context.Context) error {
			return r.deletions.Create(c, rec)
		}); err != nil {
			return fmt.Errorf("failed to persist deletion record: %w", err)
		}
	}
	return r.advanceCursor(ctx, job, msg.MessageID)
}

// advanceCursor commits the new cursor via compare-and-set and mirrors it
// into the in-memory record. Losing the CAS means another writer owns the
// job now; this runner must exit.
func (r *runner) advanceCursor(ctx context.Context, job *models.Job, next int) error {
	var swapped bool
	err := r.withStoreRetry(ctx, func(c context.Context) error {
		ok, err := r.jobs.CompareAndSetCursor(c, job.ID, job.Cursor, next)
		if err != nil {
			return err
		}
		swapped = ok
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	if !swapped {
		logger.L().Errorf("Job %s: cursor %d no longer current, yielding to the newer runner", r.jobID, job.Cursor)
		return errCursorStale
	}
	job.Cursor = next
	return nil
}

// recordStop transitions the job to stopped and surfaces the error on the
// record for the operator, on a context that survives runner cancellation.
func (r *runner) recordStop(ctx context.Context, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	if err := r.jobs.UpdateStatus(cctx, r.jobID, models.JobStatusStopped, cause.Error()); err != nil {
		logger.L().Errorf("Job %s: failed to record stop reason: %v", r.jobID, err)
	}
}

// withStoreRetry runs a store write with bounded backoff. The write runs on
// a context detached from runner cancellation but bounded by commitTimeout,
// so stop/shutdown lets an in-flight commit finish instead of tearing it.
func (r *runner) withStoreRetry(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < commitAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(commitBackoff * time.Duration(attempt))
		}
		if err := fn(cctx); err != nil {
			lastErr = err
			logger.L().Warnf("Job %s: store write attempt %d failed: %v", r.jobID, attempt+1, err)
			continue
		}
		return nil
	}
	return lastErr
}
