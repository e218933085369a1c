// Package ratelimit provides sliding-window admission control for calls
// to the external embedding provider.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultWindow is the provider quota interval.
const DefaultWindow = time.Minute

// Config bounds admissions within any sliding window of the given length.
type Config struct {
	// RequestsPerWindow caps admitted requests; <= 0 means unlimited.
	RequestsPerWindow int
	// TokensPerWindow caps admitted tokens; <= 0 means unlimited.
	TokensPerWindow int
	// Window is the interval length; zero defaults to DefaultWindow.
	Window time.Duration
	// Smooth enables a proactive token bucket that spreads requests
	// evenly across the window instead of letting them burst.
	Smooth bool
}

type event struct {
	at     time.Time
	tokens int
}

// Limiter is a process-wide sliding-window rate limiter tracking both
// request count and token count. All embedding batches, regardless of
// originating document, contend for the same window. Admitted work is
// never dropped: Wait blocks until admission or context cancellation.
type Limiter struct {
	mu     sync.Mutex
	cfg    Config
	events []event

	// Provider-reported remaining quota, used to tighten the local
	// estimate opportunistically.
	remRequests int
	remTokens   int
	resetAt     time.Time
	hasRemote   bool

	bucket *rate.Limiter

	// Injectable clock for deterministic tests.
	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	l := &Limiter{
		cfg:   cfg,
		now:   time.Now,
		after: time.After,
	}
	if cfg.Smooth && cfg.RequestsPerWindow > 0 {
		perSecond := float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()
		l.bucket = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return l
}

// Wait blocks until the request (costing the given token estimate) can be
// admitted, or returns the context error on cancellation.
func (l *Limiter) Wait(ctx context.Context, tokens int) error {
	if l.bucket != nil {
		if err := l.bucket.Wait(ctx); err != nil {
			return err
		}
	}

	for {
		delay, ok := l.tryAdmit(tokens)
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.after(delay):
		}
	}
}

// tryAdmit admits the request if it fits in the current window, otherwise
// returns how long to wait before trying again.
func (l *Limiter) tryAdmit(tokens int) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	// Honor provider-reported exhaustion until the advertised reset.
	if l.hasRemote && now.Before(l.resetAt) {
		if l.remRequests <= 0 || (l.cfg.TokensPerWindow > 0 && l.remTokens < tokens) {
			return l.resetAt.Sub(now), false
		}
	}

	reqCount := len(l.events)
	tokSum := 0
	for _, e := range l.events {
		tokSum += e.tokens
	}

	reqOK := l.cfg.RequestsPerWindow <= 0 || reqCount < l.cfg.RequestsPerWindow
	tokOK := l.cfg.TokensPerWindow <= 0 || tokSum+tokens <= l.cfg.TokensPerWindow
	if l.cfg.TokensPerWindow > 0 && tokens > l.cfg.TokensPerWindow {
		// A single request larger than the whole budget is admitted
		// alone in an empty window rather than blocked forever.
		tokOK = tokSum == 0
	}

	if reqOK && tokOK {
		l.events = append(l.events, event{at: now, tokens: tokens})
		if l.hasRemote {
			l.remRequests--
			l.remTokens -= tokens
		}
		return 0, true
	}

	if len(l.events) == 0 {
		return l.cfg.Window, false
	}
	return l.events[0].at.Add(l.cfg.Window).Sub(now), false
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.events) && !l.events[i].at.After(cutoff) {
		i++
	}
	l.events = l.events[i:]
}

// UpdateFromHeaders feeds provider-reported remaining quota into the
// limiter. Providers advertise these via x-ratelimit-remaining-* headers;
// the limiter uses them to tighten its own estimate.
func (l *Limiter) UpdateFromHeaders(remainingRequests, remainingTokens int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remRequests = remainingRequests
	l.remTokens = remainingTokens
	l.resetAt = resetAt
	l.hasRemote = true
}
