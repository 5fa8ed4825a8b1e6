package infra

import (
	"math/rand"
	"time"
)

const (
	defaultBaseDelay = 250 * time.Millisecond
	defaultMaxDelay  = 30 * time.Second
)

// BackoffPolicy computes exponential retry delays with randomized jitter.
// The zero value is unusable; use DefaultBackoffPolicy.
type BackoffPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// JitterFrac randomizes each delay by ±JitterFrac of itself so
	// concurrent retriers do not hit the venue in lockstep.
	JitterFrac float64
}

// DefaultBackoffPolicy returns the standard venue-call backoff.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
		JitterFrac: 0.2,
	}
}

// Delay returns the backoff duration for the given attempt (0-based):
// base * 2^attempt, capped at MaxDelay, then jittered.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^31 seconds already dwarfs any sane MaxDelay.
	if attempt > 30 {
		attempt = 30
	}

	d := p.BaseDelay * time.Duration(1<<attempt)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}

	if p.JitterFrac > 0 {
		spread := float64(d) * p.JitterFrac
		d += time.Duration((rand.Float64()*2 - 1) * spread)
		if d < 0 {
			d = 0
		}
	}
	return d
}
