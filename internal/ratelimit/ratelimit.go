// Package ratelimit throttles chat commands per user.
//
// Each key (a Discord user ID) gets its own token bucket from
// golang.org/x/time/rate: Burst commands may go through back to back, after
// which one token refills every Interval.
//
// WHY A SEPARATE LIMIT FROM THE BUMP COOLDOWN?
// The cooldown is per server and only counts successful bumps. This limit is
// per user and is checked before any store lookup. A !bump that gets past it
// spends a token even if the cooldown or the owner check then turns it down.
// A !bump this limiter turns away spends nothing, so spamming the command
// does not push the next allowed attempt further out.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	entries  map[string]*entry
	interval time.Duration
	burst    int
}

func New(interval time.Duration, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		entries:  make(map[string]*entry),
		interval: interval,
		burst:    burst,
	}
}

// Allow consumes one token for key at now. When the bucket is empty it
// returns false and how long the caller must wait for the next token; the
// rejected attempt does not eat into future capacity.
func (l *Limiter) Allow(key string, now time.Time) (time.Duration, bool) {
	if l.interval <= 0 {
		return 0, true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(l.interval), l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return l.interval, false
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return wait, false
	}
	return 0, true
}

// Prune drops buckets that have been idle long enough to be full again.
// A dropped key behaves exactly like one never seen.
func (l *Limiter) Prune(now time.Time) int {
	idle := l.interval * time.Duration(l.burst)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) >= idle {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Run prunes every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := l.Prune(now); removed > 0 {
				logger.Debug("pruned idle rate limit buckets",
					slog.Int("removed", removed),
					slog.Int("tracked", l.Len()),
				)
			}
		}
	}
}
