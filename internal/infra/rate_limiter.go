package infra

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a token bucket. Thread-safe and suitable for
// concurrent venue calls.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a bucket with the given burst size and refill rate
// in requests per second.
func NewRateLimiter(burst int, perSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: perSecond,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		deficit := 1 - r.tokens
		wait := time.Duration(deficit / r.refillRate * float64(time.Second))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// TryAcquire attempts to take a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// refill adds tokens based on elapsed time. Caller holds the mutex.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	r.tokens += elapsed * r.refillRate
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}
	r.lastRefill = now
}

// EndpointClass groups venue endpoints that share a rate budget and a
// circuit breaker. A broken placement path must not block cancellations.
type EndpointClass string

const (
	ClassPlacement EndpointClass = "placement"
	ClassCancel    EndpointClass = "cancel"
	ClassAccount   EndpointClass = "account"
)

// Governor bounds the outbound request rate per endpoint class. It is an
// injected dependency, never a package singleton, so tests can run with
// their own budgets.
type Governor struct {
	limiters map[EndpointClass]*RateLimiter
}

// GovernorConfig holds per-class budgets.
type GovernorConfig struct {
	PlacementBurst int
	PlacementRate  float64
	CancelBurst    int
	CancelRate     float64
	AccountBurst   int
	AccountRate    float64
}

// DefaultGovernorConfig mirrors typical venue limits, kept conservative to
// avoid bans.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		PlacementBurst: 5, PlacementRate: 10,
		CancelBurst: 5, CancelRate: 10,
		AccountBurst: 10, AccountRate: 20,
	}
}

// NewGovernor builds the per-class limiters.
func NewGovernor(cfg GovernorConfig) *Governor {
	return &Governor{limiters: map[EndpointClass]*RateLimiter{
		ClassPlacement: NewRateLimiter(cfg.PlacementBurst, cfg.PlacementRate),
		ClassCancel:    NewRateLimiter(cfg.CancelBurst, cfg.CancelRate),
		ClassAccount:   NewRateLimiter(cfg.AccountBurst, cfg.AccountRate),
	}}
}

// Wait blocks until the class's budget admits one request.
func (g *Governor) Wait(ctx context.Context, class EndpointClass) error {
	l, ok := g.limiters[class]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
