package redislimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limit defines window and max count for the gate.
type Limit struct {
	Limit  int
	Window time.Duration
}

// Limiter is a Redis-backed sliding window gate using a ZSET. Every process
// pointing at the same key shares one budget.
type Limiter struct {
	rdb *redis.Client
	key string
	lim Limit
}

func New(rdb *redis.Client, key string, lim Limit) *Limiter {
	if key == "" {
		key = "rolesync:ratelimit:actions"
	}
	if lim.Limit <= 0 || lim.Window <= 0 {
		lim = Limit{Limit: 4, Window: time.Second}
	}
	return &Limiter{rdb: rdb, key: key, lim: lim}
}

// Allow records one call if the window has room.
func (l *Limiter) Allow(ctx context.Context) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	now := time.Now().UnixNano() / 1e6 // ms
	start := now - l.lim.Window.Milliseconds()
	member := uuid.NewString()
	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, l.key, redis.Z{Score: float64(now), Member: member})
	pipe.ZRemRangeByScore(ctx, l.key, "0", fmt.Sprintf("%d", start))
	countCmd := pipe.ZCard(ctx, l.key)
	pipe.Expire(ctx, l.key, l.lim.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	count, err := countCmd.Result()
	if err != nil {
		return false, err
	}
	if count > int64(l.lim.Limit) {
		l.rdb.ZRem(ctx, l.key, member)
		return false, nil
	}
	return true, nil
}

// Wait blocks until a call is admitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		ok, err := l.Allow(ctx)
		if err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
		if ok {
			return nil
		}
		t := time.NewTimer(l.retryAfter(ctx))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// retryAfter estimates when the oldest admission leaves the window.
func (l *Limiter) retryAfter(ctx context.Context) time.Duration {
	fallback := l.lim.Window / time.Duration(l.lim.Limit)
	oldest, err := l.rdb.ZRangeWithScores(ctx, l.key, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return fallback
	}
	expires := time.UnixMilli(int64(oldest[0].Score)).Add(l.lim.Window)
	d := time.Until(expires) + time.Millisecond
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
