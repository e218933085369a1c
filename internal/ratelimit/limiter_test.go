package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock drives a Limiter deterministically: every sleep requested by
// Wait advances virtual time by the requested duration.
type fakeClock struct {
	cur time.Time
}

func (c *fakeClock) install(l *Limiter) {
	l.now = func() time.Time { return c.cur }
	l.after = func(d time.Duration) <-chan time.Time {
		c.cur = c.cur.Add(d)
		ch := make(chan time.Time, 1)
		ch <- c.cur
		return ch
	}
}

func TestWait_RequestCap(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}
	l := New(Config{RequestsPerWindow: 2, Window: time.Minute})
	clock.install(l)

	ctx := context.Background()
	start := clock.cur

	for i := 0; i < 2; i++ {
		if err := l.Wait(ctx, 10); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if clock.cur != start {
		t.Fatal("first two requests should be admitted without waiting")
	}

	// Third request must wait until the oldest event leaves the window.
	if err := l.Wait(ctx, 10); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if waited := clock.cur.Sub(start); waited < time.Minute {
		t.Errorf("third request waited %s, want >= window (1m)", waited)
	}
}

func TestWait_TokenCap(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}
	l := New(Config{TokensPerWindow: 100, Window: time.Minute})
	clock.install(l)

	ctx := context.Background()
	start := clock.cur

	if err := l.Wait(ctx, 60); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if err := l.Wait(ctx, 40); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if clock.cur != start {
		t.Fatal("requests within token budget should not wait")
	}

	if err := l.Wait(ctx, 1); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if clock.cur.Sub(start) < time.Minute {
		t.Error("request over token budget admitted without waiting for the window to slide")
	}
}

func TestWait_OversizedRequestAdmittedAlone(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}
	l := New(Config{TokensPerWindow: 100, Window: time.Minute})
	clock.install(l)

	// A single request exceeding the whole budget is admitted in an
	// empty window rather than blocked forever.
	if err := l.Wait(context.Background(), 500); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if clock.cur != time.Unix(1000, 0) {
		t.Error("oversized request in empty window should be admitted immediately")
	}
}

func TestWait_SlidingWindowFrees(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}
	l := New(Config{RequestsPerWindow: 1, Window: time.Minute})
	clock.install(l)

	ctx := context.Background()
	if err := l.Wait(ctx, 1); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	// Move past the window manually; the next request must be admitted
	// without any sleep.
	clock.cur = clock.cur.Add(61 * time.Second)
	before := clock.cur
	if err := l.Wait(ctx, 1); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if clock.cur != before {
		t.Error("request after window slide should not wait")
	}
}

func TestWait_HonorsProviderReportedExhaustion(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1000, 0)}
	l := New(Config{RequestsPerWindow: 100, Window: time.Minute})
	clock.install(l)

	reset := clock.cur.Add(10 * time.Second)
	l.UpdateFromHeaders(0, 0, reset)

	start := clock.cur
	if err := l.Wait(context.Background(), 1); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if clock.cur.Before(reset) {
		t.Errorf("admitted at %s, before provider reset %s", clock.cur.Sub(start), reset.Sub(start))
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	l := New(Config{RequestsPerWindow: 1, Window: time.Minute})
	clock := &fakeClock{cur: time.Unix(1000, 0)}
	l.now = func() time.Time { return clock.cur }
	// Never fires: cancellation must win the select.
	l.after = func(time.Duration) <-chan time.Time { return make(chan time.Time) }

	ctx := context.Background()
	if err := l.Wait(ctx, 1); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := l.Wait(cancelled, 1); err != context.Canceled {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}
