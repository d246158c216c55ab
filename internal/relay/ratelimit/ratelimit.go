// Package ratelimit gates outbound forward/delete calls per target chat so
// concurrent jobs aimed at the same channel cannot trip provider throttling.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per target chat id. Buckets are created on
// first use and share the same rate and capacity. Waiters on a bucket are
// served in FIFO order by rate.Limiter.
type Limiter struct {
	mu      sync.Mutex
	perChat map[int64]*rate.Limiter

	ratePerSec float64
	burst      int
}

// New creates a limiter registry. ratePerSec is the sustained token refill
// rate per chat, burst the bucket capacity.
func New(ratePerSec float64, burst int) *Limiter {
	if ratePerSec <= 0 {
		ratePerSec = 0.5
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		perChat:    make(map[int64]*rate.Limiter),
		ratePerSec: ratePerSec,
		burst:      burst,
	}
}

// Acquire consumes one token for the chat, blocking the caller (not the
// process) until a token is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, chatID int64) error {
	return l.bucket(chatID).Wait(ctx)
}

// Allow consumes a token without blocking, reporting whether one was free.
func (l *Limiter) Allow(chatID int64) bool {
	return l.bucket(chatID).Allow()
}

func (l *Limiter) bucket(chatID int64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.perChat[chatID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.ratePerSec), l.burst)
		l.perChat[chatID] = lim
	}
	return lim
}
