package memorylimiter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limit defines window and max count for the gate.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultLimit is 4 calls per second.
var DefaultLimit = Limit{Limit: 4, Window: time.Second}

// Limiter is an in-memory sliding-window gate shared by every caller in the
// process. Callers over the limit block until a slot frees up.
type Limiter struct {
	mu  sync.Mutex
	lim Limit
	// timestamps holds admission times, oldest first.
	timestamps []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs a limiter. A zero or negative limit falls back to DefaultLimit.
func New(lim Limit) *Limiter {
	if lim.Limit <= 0 || lim.Window <= 0 {
		lim = DefaultLimit
	}
	return &Limiter{
		lim:        lim,
		timestamps: make([]time.Time, 0, lim.Limit),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Wait blocks until the call may proceed, or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	for {
		d, ok := l.reserve()
		if ok {
			return nil
		}
		if err := l.sleep(ctx, d); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
}

// reserve admits a call if the window has room. Otherwise it returns how long
// until the oldest admission leaves the window.
func (l *Limiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.lim.Window)

	// Prune timestamps outside the window.
	pruneIdx := 0
	for pruneIdx < len(l.timestamps) && !l.timestamps[pruneIdx].After(windowStart) {
		pruneIdx++
	}
	if pruneIdx > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[pruneIdx:]...)
	}

	if len(l.timestamps) >= l.lim.Limit {
		return l.timestamps[0].Add(l.lim.Window).Sub(now), false
	}
	l.timestamps = append(l.timestamps, now)
	return 0, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
