// Package breaker implements a circuit breaker guarding the external
// embedding provider. Tripping open keeps a down provider from burning
// rate-limit quota on calls that cannot succeed.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of the breaker.
type State string

const (
	// Closed is normal operation.
	Closed State = "closed"
	// Open short-circuits all calls until the cooldown elapses.
	Open State = "open"
	// HalfOpen allows exactly one probe call.
	HalfOpen State = "half-open"
)

// ErrOpen is matched by errors.Is against *OpenError.
var ErrOpen = errors.New("circuit breaker open")

// OpenError is returned while the breaker is open. RetryAfter is the
// suggested delay before the next attempt.
type OpenError struct {
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker open, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

func (e *OpenError) Is(target error) bool { return target == ErrOpen }

// Breaker trips open after a run of consecutive failures, fails fast for
// a cooldown window, then half-opens to probe recovery.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration

	state    State
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// New creates a closed Breaker that opens after threshold consecutive
// failures and stays open for cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     Closed,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. While open it returns an
// *OpenError carrying the remaining cooldown; in half-open state only one
// probe is admitted at a time.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.cooldown {
			return &OpenError{RetryAfter: b.cooldown - elapsed}
		}
		b.state = HalfOpen
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			return &OpenError{RetryAfter: b.cooldown}
		}
		b.probing = true
		return nil
	}
	return nil
}

// RecordSuccess resets the failure run; a successful half-open probe
// closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	b.state = Closed
}

// RecordFailure counts a failure; the run reaching the threshold, or any
// failed half-open probe, opens the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.failures++
		if b.failures >= b.threshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.failures = 0
	b.probing = false
	b.openedAt = b.now()
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
