package memorylimiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func newFakeLimiter(lim Limit) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(lim)
	l.now = clock.Now
	l.sleep = clock.Sleep
	return l, clock
}

func TestWait_NeverExceedsWindow(t *testing.T) {
	lim := Limit{Limit: 4, Window: time.Second}
	l, clock := newFakeLimiter(lim)

	var admitted []time.Time
	for i := 0; i < 25; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
		admitted = append(admitted, clock.Now())
	}

	for i := lim.Limit; i < len(admitted); i++ {
		if gap := admitted[i].Sub(admitted[i-lim.Limit]); gap < lim.Window {
			t.Fatalf("calls %d and %d only %s apart; more than %d calls in one window", i-lim.Limit, i, gap, lim.Limit)
		}
	}
	// The first burst goes through without waiting.
	if !admitted[3].Equal(admitted[0]) {
		t.Errorf("first %d calls should not block", lim.Limit)
	}
	if want := admitted[0].Add(6 * time.Second); !admitted[24].Equal(want) {
		t.Errorf("25th call admitted at %v, want %v", admitted[24], want)
	}
}

func TestReserve_DeniesWithoutRecording(t *testing.T) {
	l, clock := newFakeLimiter(Limit{Limit: 2, Window: time.Second})
	for i := 0; i < 2; i++ {
		if _, ok := l.reserve(); !ok {
			t.Fatalf("call %d should be admitted", i)
		}
	}
	clock.now = clock.now.Add(300 * time.Millisecond)
	wait, ok := l.reserve()
	if ok {
		t.Fatal("third call inside the window should be denied")
	}
	if wait != 700*time.Millisecond {
		t.Fatalf("wait %s, want 700ms", wait)
	}
	if _, ok := l.reserve(); ok {
		t.Fatal("denied calls must not take a slot")
	}
	clock.now = clock.now.Add(700 * time.Millisecond)
	if _, ok := l.reserve(); !ok {
		t.Fatal("call after the window should be admitted")
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	l := New(Limit{Limit: 1, Window: time.Hour})
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWait_SharedAcrossGoroutines(t *testing.T) {
	l := New(Limit{Limit: 4, Window: 50 * time.Millisecond})
	start := time.Now()

	var wg sync.WaitGroup
	for g := 0; g < 3; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 4; i++ {
				if err := l.Wait(context.Background()); err != nil {
					t.Errorf("wait: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	// 12 calls at 4 per window need at least two full windows.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("12 calls finished in %s; limiter is not shared", elapsed)
	}
}

func TestNew_DefaultsInvalidLimit(t *testing.T) {
	l := New(Limit{})
	if l.lim != DefaultLimit {
		t.Fatalf("expected default limit, got %+v", l.lim)
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("nil limiter should not block: %v", err)
	}
}
