package infra

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
)

// RetryConfig bounds retries for transient venue failures.
type RetryConfig struct {
	MaxAttempts int
	Backoff     BackoffPolicy
}

// DefaultRetryConfig returns the standard retry bound.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Backoff: DefaultBackoffPolicy()}
}

// Retryer wraps venue calls with rate governance, a per-endpoint-class
// circuit breaker and bounded backoff. Only classified-transient errors are
// retried: retrying anything else can double-submit an order.
type Retryer struct {
	governor *Governor
	breakers map[EndpointClass]*CircuitBreaker
	cfg      RetryConfig
	log      *zap.Logger
}

// NewRetryer builds a retryer with one breaker per endpoint class so a
// broken placement path never blocks cancellations.
func NewRetryer(gov *Governor, cfg RetryConfig, breaker CircuitBreakerConfig, log *zap.Logger) *Retryer {
	breakers := make(map[EndpointClass]*CircuitBreaker, 3)
	for _, class := range []EndpointClass{ClassPlacement, ClassCancel, ClassAccount} {
		bc := breaker
		bc.Name = string(class)
		breakers[class] = NewCircuitBreaker(bc, log)
	}
	return &Retryer{governor: gov, breakers: breakers, cfg: cfg, log: log}
}

// Breaker exposes the breaker for an endpoint class (monitoring, callbacks).
func (r *Retryer) Breaker(class EndpointClass) *CircuitBreaker {
	return r.breakers[class]
}

// Do executes fn under the class's rate budget and breaker, retrying
// transient failures up to the configured bound. Permanent and ambiguous
// errors return immediately.
func (r *Retryer) Do(ctx context.Context, class EndpointClass, op string, fn func(ctx context.Context) error) error {
	cb := r.breakers[class]

	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if !cb.Allow() {
			return fmt.Errorf("%s: %w", op, domain.ErrBreakerOpen)
		}
		if err := r.governor.Wait(ctx, class); err != nil {
			return fmt.Errorf("%s: rate governor: %w", op, err)
		}

		err := fn(ctx)
		if err == nil {
			cb.RecordSuccess()
			return nil
		}

		switch {
		case domain.IsPermanent(err):
			// The venue answered; the request was simply bad. Not a
			// venue-health failure.
			cb.RecordSuccess()
			return err

		case domain.IsAmbiguous(err):
			cb.RecordFailure()
			return err

		default:
			cb.RecordFailure()
			lastErr = err
			if attempt == r.cfg.MaxAttempts-1 {
				break
			}
			delay := r.cfg.Backoff.Delay(attempt)
			r.log.Warn("transient venue failure, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%s: retries exhausted after %d attempts: %w", op, r.cfg.MaxAttempts, lastErr)
}

// DoValue is Do for calls that return a value.
func DoValue[T any](ctx context.Context, r *Retryer, class EndpointClass, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, class, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
