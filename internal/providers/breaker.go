package providers

import (
	"sync"
	"time"
)

// Breaker states.
const (
	BreakerClosed   = "closed"
	BreakerOpen     = "open"
	BreakerHalfOpen = "half_open"
)

const (
	breakerConsecutiveTrip = 5
	breakerWindowTrip      = 3
	breakerWindow          = 60 * time.Second
	breakerCooldown        = 60 * time.Second
)

// Breaker is a per-provider circuit breaker.
//
// Closed trips to Open on 5 consecutive failures or 3 failures within a
// 60-second window. Open transitions to HalfOpen after a 60-second cooldown
// and lets a single probe through; a successful probe closes the breaker, a
// failed one reopens it and restarts the cooldown.
type Breaker struct {
	mu          sync.Mutex
	state       string
	consecutive int
	recent      []time.Time
	openedAt    time.Time
	probing     bool

	now func() time.Time
}

func NewBreaker() *Breaker {
	return &Breaker{state: BreakerClosed, now: time.Now}
}

// Allow reports whether a request may be issued right now. In HalfOpen only
// one in-flight probe is admitted at a time.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= breakerCooldown {
			b.state = BreakerHalfOpen
			b.probing = true
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// ReleaseProbe gives back the HalfOpen probe slot when the admitted
// request was aborted before reaching the provider, so the next caller
// can probe instead.
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.probing = false
	}
}

// RecordSuccess resets the failure counters and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.consecutive = 0
	b.recent = b.recent[:0]
	b.probing = false
}

// RecordFailure counts one failure and trips the breaker when a threshold
// is crossed. A failed HalfOpen probe reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = now
		b.probing = false
		return
	}

	b.consecutive++

	// Keep only failures inside the rolling window.
	cutoff := now.Add(-breakerWindow)
	kept := b.recent[:0]
	for _, t := range b.recent {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.recent = append(kept, now)

	if b.consecutive >= breakerConsecutiveTrip || len(b.recent) >= breakerWindowTrip {
		b.state = BreakerOpen
		b.openedAt = now
	}
}

// State returns the current breaker state name.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
