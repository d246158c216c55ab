package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/tmt-films/AutoPostingv2/internal/logger"
	"github.com/tmt-films/AutoPostingv2/internal/metrics"
	"github.com/tmt-films/AutoPostingv2/internal/relay/gateway"
	"github.com/tmt-films/AutoPostingv2/internal/relay/ratelimit"
	"github.com/tmt-films/AutoPostingv2/internal/relay/repository"
)

const (
	// sweepInterval is the scan cadence for due deletions.
	sweepInterval = 15 * time.Second
	// sweepBatchLimit bounds one tick's workload; the remainder is already
	// due and picked up next tick.
	sweepBatchLimit = 100
)

// sweeper is the single background loop executing due deletion records
// across all jobs. Transient failures are left in place and naturally
// retried by the next scan; permanent failures drop the record so one stuck
// deletion never blocks the rest.
type sweeper struct {
	deletions repository.DeletionRepository
	gw        gateway.Gateway
	limiter   *ratelimit.Limiter
}

func newSweeper(deletions repository.DeletionRepository, gw gateway.Gateway, limiter *ratelimit.Limiter) *sweeper {
	return &sweeper{
		deletions: deletions,
		gw:        gw,
		limiter:   limiter,
	}
}

func (s *sweeper) run(ctx context.Context) {
	logger.L().Info("Deletion sweeper started")
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.L().Info("Deletion sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *sweeper) sweep(ctx context.Context) {
	records, err := s.deletions.FindDue(ctx, time.Now(), sweepBatchLimit)
	if err != nil {
		if ctx.Err() == nil {
			logger.L().Errorf("Sweeper: failed to scan due deletions: %v", err)
		}
		return
	}
	if len(records) == 0 {
		return
	}

	logger.L().Debugf("Sweeper: %d deletion(s) due", len(records))

	executed := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}
		if err := s.limiter.Acquire(ctx, rec.ChatID); err != nil {
			return
		}

		err := s.gw.Delete(ctx, rec.ChatID, rec.MessageID)
		switch {
		case err == nil, errors.Is(err, gateway.ErrAlreadyDeleted):
			// Already-gone counts as done; the goal was for the message to
			// not exist.
			if derr := s.deletions.Delete(ctx, rec.ID); derr != nil {
				logger.L().Errorf("Sweeper: failed to remove executed record %s: %v", rec.ID.Hex(), derr)
				continue
			}
			metrics.MessagesDeleted.Inc()
			executed++

		case gateway.IsPermanent(err):
			logger.L().Errorf("Sweeper: dropping deletion for chat %d message %d after permanent error: %v",
				rec.ChatID, rec.MessageID, err)
			if derr := s.deletions.Delete(ctx, rec.ID); derr != nil {
				logger.L().Errorf("Sweeper: failed to drop record %s: %v", rec.ID.Hex(), derr)
			}
			metrics.DeletionFailures.Inc()

		default:
			// Transient: leave the record, the next tick re-scans it.
			logger.L().Warnf("Sweeper: delete of chat %d message %d failed, will retry: %v",
				rec.ChatID, rec.MessageID, err)
		}
	}

	if executed > 0 {
		logger.L().Infof("Sweeper: executed %d deletion(s)", executed)
	}
}
